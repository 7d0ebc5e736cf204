package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// pollOnlyWatcher builds a Watcher with fsnotify disabled so pollOnce
// behaves deterministically under test, independent of OS notification
// timing or availability in the sandbox.
func pollOnlyWatcher(root string) *Watcher {
	w := New(root, nil, time.Hour, 8)
	if w.fsw != nil {
		w.fsw.Close()
		w.fsw = nil
	}
	return w
}

func TestWatcher_InitialSnapshotEmitsNoEvents(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("x = 1\n"), 0o644))

	w := pollOnlyWatcher(root)
	snapshot, err := w.walkSnapshot()
	require.NoError(t, err)
	w.snapshot = snapshot
	w.primed = true

	select {
	case ev := <-w.events:
		t.Fatalf("expected no events from baseline snapshot, got %+v", ev)
	default:
	}
}

func TestWatcher_PollDetectsCreatedFile(t *testing.T) {
	root := t.TempDir()
	w := pollOnlyWatcher(root)
	snapshot, err := w.walkSnapshot()
	require.NoError(t, err)
	w.snapshot = snapshot

	require.NoError(t, os.WriteFile(filepath.Join(root, "new.py"), []byte("x = 1\n"), 0o644))
	w.pollOnce()

	ev := <-w.events
	require.Equal(t, ChangeCreated, ev.Kind)
	require.Equal(t, "new.py", ev.Path)
}

func TestWatcher_PollDetectsModifiedFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "main.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))

	w := pollOnlyWatcher(root)
	snapshot, err := w.walkSnapshot()
	require.NoError(t, err)
	w.snapshot = snapshot

	require.NoError(t, os.Chtimes(path, time.Now().Add(time.Hour), time.Now().Add(time.Hour)))
	w.pollOnce()

	ev := <-w.events
	require.Equal(t, ChangeModified, ev.Kind)
}

func TestWatcher_PollDetectsDeletedFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "gone.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1\n"), 0o644))

	w := pollOnlyWatcher(root)
	snapshot, err := w.walkSnapshot()
	require.NoError(t, err)
	w.snapshot = snapshot

	require.NoError(t, os.Remove(path))
	w.pollOnce()

	ev := <-w.events
	require.Equal(t, ChangeDeleted, ev.Kind)
	require.Equal(t, "gone.py", ev.Path)
}

func TestWatcher_DropsOldestWhenQueueFull(t *testing.T) {
	root := t.TempDir()
	w := New(root, nil, time.Hour, 2)
	if w.fsw != nil {
		w.fsw.Close()
		w.fsw = nil
	}

	for i := 0; i < 5; i++ {
		w.emit(FileChangeEvent{Path: "f", Kind: ChangeModified, Timestamp: time.Now()})
	}
	require.Equal(t, int64(3), w.Dropped())
	require.Len(t, w.events, 2)
}

func TestWatcher_StartAndStopPollMode(t *testing.T) {
	root := t.TempDir()
	w := New(root, nil, 10*time.Millisecond, 8)
	if w.fsw != nil {
		w.fsw.Close()
		w.fsw = nil
	}

	ctx := context.Background()
	require.NoError(t, w.Start(ctx))
	w.Stop()
}
