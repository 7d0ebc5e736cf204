// Package watch implements the File Watcher: OS notifications where
// available, an mtime-snapshot poll as a portable fallback, both filtered
// through the Ignore Engine and emitting a bounded, drop-oldest event queue
// to the background indexer.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/codeplane-dev/codeplane/internal/ignore"
)

// ChangeKind classifies one FileChangeEvent.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
)

// FileChangeEvent is one path-level change emitted to the indexer.
type FileChangeEvent struct {
	Path      string
	Kind      ChangeKind
	Timestamp time.Time
}

// Watcher polls root (or watches it via fsnotify when available) and emits
// FileChangeEvent to a bounded channel. The first pass after Start only
// builds the mtime baseline; it never emits events for it.
type Watcher struct {
	root         string
	ign          *ignore.Engine
	pollInterval time.Duration

	events  chan FileChangeEvent
	dropped int64

	fsw *fsnotify.Watcher // nil when fsnotify setup failed; polling carries the whole job then

	mu       sync.Mutex
	snapshot map[string]time.Time
	primed   bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Watcher. queueCapacity bounds the event channel; once full,
// the oldest queued event is dropped to make room for the newest, and
// Dropped() reports how many were lost that way.
func New(root string, ign *ignore.Engine, pollInterval time.Duration, queueCapacity int) *Watcher {
	if queueCapacity <= 0 {
		queueCapacity = 1024
	}
	w := &Watcher{
		root:         root,
		ign:          ign,
		pollInterval: pollInterval,
		events:       make(chan FileChangeEvent, queueCapacity),
		snapshot:     make(map[string]time.Time),
	}
	if fsw, err := fsnotify.NewWatcher(); err == nil {
		w.fsw = fsw
	}
	return w
}

// Events returns the channel new FileChangeEvents arrive on.
func (w *Watcher) Events() <-chan FileChangeEvent {
	return w.events
}

// Dropped reports how many events were discarded because the queue was
// full when a new one arrived.
func (w *Watcher) Dropped() int64 {
	return atomic.LoadInt64(&w.dropped)
}

// Start builds the initial mtime baseline (no events emitted for it), then
// runs either the fsnotify event loop or the polling loop until ctx is
// canceled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	snapshot, err := w.walkSnapshot()
	if err != nil {
		cancel()
		return err
	}
	w.mu.Lock()
	w.snapshot = snapshot
	w.primed = true
	w.mu.Unlock()

	if w.fsw != nil {
		if err := w.addWatches(w.root); err != nil {
			w.fsw.Close()
			w.fsw = nil
		}
	}

	if w.fsw != nil {
		w.wg.Add(1)
		go w.runFsnotify(ctx)
	} else {
		w.wg.Add(1)
		go w.runPoll(ctx)
	}
	return nil
}

// Stop cancels the running loop and waits for it to exit.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	if w.fsw != nil {
		w.fsw.Close()
	}
}

func (w *Watcher) addWatches(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr == nil && rel != "." && w.ign != nil && w.ign.IsExcludedRel(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return nil // best effort; a directory we can't watch just won't surface OS events
		}
		return nil
	})
}

func (w *Watcher) runFsnotify(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFsnotifyEvent(ev)
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) handleFsnotifyEvent(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if w.ign != nil && w.ign.IsExcludedRel(rel) {
		return
	}

	info, statErr := os.Stat(ev.Name)
	if statErr == nil && info.IsDir() {
		if ev.Op&fsnotify.Create != 0 {
			_ = w.fsw.Add(ev.Name)
		}
		return
	}

	var kind ChangeKind
	switch {
	case ev.Op&fsnotify.Create != 0:
		kind = ChangeCreated
	case ev.Op&fsnotify.Write != 0:
		kind = ChangeModified
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		kind = ChangeDeleted
	default:
		return
	}

	w.mu.Lock()
	switch kind {
	case ChangeDeleted:
		delete(w.snapshot, rel)
	default:
		if info != nil {
			w.snapshot[rel] = info.ModTime()
		}
	}
	w.mu.Unlock()

	w.emit(FileChangeEvent{Path: rel, Kind: kind, Timestamp: time.Now()})
}

func (w *Watcher) runPoll(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollOnce()
		}
	}
}

func (w *Watcher) pollOnce() {
	current, err := w.walkSnapshot()
	if err != nil {
		return
	}

	w.mu.Lock()
	previous := w.snapshot
	w.snapshot = current
	w.mu.Unlock()

	now := time.Now()
	for path, mtime := range current {
		prevMtime, existed := previous[path]
		if !existed {
			w.emit(FileChangeEvent{Path: path, Kind: ChangeCreated, Timestamp: now})
		} else if !mtime.Equal(prevMtime) {
			w.emit(FileChangeEvent{Path: path, Kind: ChangeModified, Timestamp: now})
		}
	}
	for path := range previous {
		if _, stillExists := current[path]; !stillExists {
			w.emit(FileChangeEvent{Path: path, Kind: ChangeDeleted, Timestamp: now})
		}
	}
}

func (w *Watcher) walkSnapshot() (map[string]time.Time, error) {
	snapshot := make(map[string]time.Time)
	err := filepath.Walk(w.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(w.root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if w.ign != nil && w.ign.IsExcludedRel(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}
		snapshot[rel] = info.ModTime()
		return nil
	})
	return snapshot, err
}

// emit delivers ev to the event channel, dropping the oldest queued event
// and counting it when the channel is already full.
func (w *Watcher) emit(ev FileChangeEvent) {
	for {
		select {
		case w.events <- ev:
			return
		default:
		}
		select {
		case <-w.events:
			atomic.AddInt64(&w.dropped, 1)
		default:
			return
		}
	}
}
