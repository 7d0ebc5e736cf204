package filestate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeplane-dev/codeplane/internal/storage"
	"github.com/codeplane-dev/codeplane/internal/types"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func hashOf(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func insertIndexedFile(t *testing.T, s *storage.Store, repoRoot, path, content, declaredModule string) types.FileID {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(repoRoot, path)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(repoRoot, path), []byte(content), 0o644))

	res, err := s.DB().Exec(
		`INSERT INTO files (path, language_family, content_hash, indexed_at, declared_module)
		 VALUES (?, 'python', ?, ?, ?)`, path, hashOf(content), time.Unix(0, 0).UTC(), declaredModule)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return types.FileID(id)
}

func insertUnindexedFile(t *testing.T, s *storage.Store, path string) types.FileID {
	t.Helper()
	res, err := s.DB().Exec(`INSERT INTO files (path, language_family, content_hash) VALUES (?, 'python', '')`, path)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return types.FileID(id)
}

func insertExportedDef(t *testing.T, s *storage.Store, defUID string, fileID types.FileID, kind, name string) {
	t.Helper()
	_, err := s.DB().Exec(
		`INSERT INTO def_facts (def_uid, file_id, kind, name, lexical_path, start_line, start_col, end_line, end_col)
		 VALUES (?, ?, ?, ?, ?, 1, 0, 1, 1)`, defUID, fileID, kind, name, name)
	require.NoError(t, err)
}

func TestGetFileState_CleanAndCertainWhenNothingAmbiguous(t *testing.T) {
	repoRoot := t.TempDir()
	s := newTestStore(t)
	fileID := insertIndexedFile(t, s, repoRoot, "main.py", "print('hi')\n", "")

	svc := New(s, repoRoot)
	state, err := svc.GetFileState(context.Background(), fileID, 1)
	require.NoError(t, err)
	require.Equal(t, types.FreshnessClean, state.Freshness)
	require.Equal(t, types.CertaintyCertain, state.Certainty)
	require.Empty(t, state.Flags)
}

func TestGetFileState_UnindexedWhenNeverIndexed(t *testing.T) {
	repoRoot := t.TempDir()
	s := newTestStore(t)
	fileID := insertUnindexedFile(t, s, "main.py")

	svc := New(s, repoRoot)
	state, err := svc.GetFileState(context.Background(), fileID, 1)
	require.NoError(t, err)
	require.Equal(t, types.FreshnessUnindexed, state.Freshness)
	require.Equal(t, types.CertaintyUncertain, state.Certainty)
}

func TestGetFileState_UnindexedWhenDiskContentChanged(t *testing.T) {
	repoRoot := t.TempDir()
	s := newTestStore(t)
	fileID := insertIndexedFile(t, s, repoRoot, "main.py", "print('hi')\n", "")
	require.NoError(t, os.WriteFile(filepath.Join(repoRoot, "main.py"), []byte("print('changed')\n"), 0o644))

	svc := New(s, repoRoot)
	state, err := svc.GetFileState(context.Background(), fileID, 1)
	require.NoError(t, err)
	require.Equal(t, types.FreshnessUnindexed, state.Freshness)
}

func TestGetFileState_UncertainOnUnresolvedStrongRef(t *testing.T) {
	repoRoot := t.TempDir()
	s := newTestStore(t)
	fileID := insertIndexedFile(t, s, repoRoot, "main.py", "helper()\n", "")
	_, err := s.DB().Exec(
		`INSERT INTO ref_facts (file_id, token_text, start_line, start_col, end_line, end_col, role, ref_tier, certainty)
		 VALUES (?, 'helper', 1, 0, 1, 6, 'call', 'strong', 'uncertain')`, fileID)
	require.NoError(t, err)

	svc := New(s, repoRoot)
	state, err := svc.GetFileState(context.Background(), fileID, 1)
	require.NoError(t, err)
	require.Equal(t, types.FreshnessClean, state.Freshness)
	require.Equal(t, types.CertaintyUncertain, state.Certainty)
	require.Contains(t, state.Flags, types.FlagUnresolvedStrongRef)
}

func TestGetFileState_UncertainOnPartialTypeWalk(t *testing.T) {
	repoRoot := t.TempDir()
	s := newTestStore(t)
	fileID := insertIndexedFile(t, s, repoRoot, "main.py", "a.b.c\n", "")
	_, err := s.DB().Exec(
		`INSERT INTO member_access_facts (file_id, receiver_name, member_chain, start_line, start_col, end_line, end_col, resolved_type_path)
		 VALUES (?, 'a', 'b.c', 1, 0, 1, 5, 'SomeType.b')`, fileID)
	require.NoError(t, err)

	svc := New(s, repoRoot)
	state, err := svc.GetFileState(context.Background(), fileID, 1)
	require.NoError(t, err)
	require.Contains(t, state.Flags, types.FlagPartialTypeWalk)
}

func TestGetFileState_UncertainOnMissingImportTarget(t *testing.T) {
	repoRoot := t.TempDir()
	s := newTestStore(t)
	fileID := insertIndexedFile(t, s, repoRoot, "main.py", "import mystery\n", "")
	_, err := s.DB().Exec(
		`INSERT INTO import_facts (import_uid, file_id, imported_name, source_literal, import_kind, certainty, start_line, start_col, end_line, end_col)
		 VALUES ('imp:1', ?, 'mystery', 'mystery', 'module', 'uncertain', 1, 0, 1, 14)`, fileID)
	require.NoError(t, err)

	svc := New(s, repoRoot)
	state, err := svc.GetFileState(context.Background(), fileID, 1)
	require.NoError(t, err)
	require.Contains(t, state.Flags, types.FlagMissingImportTarget)
}

func TestGetFileState_UncertainOnAmbiguousExport(t *testing.T) {
	repoRoot := t.TempDir()
	s := newTestStore(t)
	fileA := insertIndexedFile(t, s, repoRoot, "pkg/a.py", "def run(): pass\n", "pkg")
	fileB := insertIndexedFile(t, s, repoRoot, "pkg/b.py", "def run(): pass\n", "pkg")
	insertExportedDef(t, s, "def:a.run", fileA, "function", "run")
	insertExportedDef(t, s, "def:b.run", fileB, "function", "run")

	svc := New(s, repoRoot)
	state, err := svc.GetFileState(context.Background(), fileA, 1)
	require.NoError(t, err)
	require.Contains(t, state.Flags, types.FlagAmbiguousExport)
}

func TestGetFileStatesBatch_MemoizesDuplicateIDs(t *testing.T) {
	repoRoot := t.TempDir()
	s := newTestStore(t)
	fileID := insertIndexedFile(t, s, repoRoot, "main.py", "print('hi')\n", "")

	svc := New(s, repoRoot)
	states, err := svc.GetFileStatesBatch(context.Background(), []types.FileID{fileID, fileID}, 1)
	require.NoError(t, err)
	require.Len(t, states, 1)
	require.Equal(t, types.FreshnessClean, states[fileID].Freshness)
}

func TestCheckMutationGate_ClassifiesEachBucket(t *testing.T) {
	repoRoot := t.TempDir()
	s := newTestStore(t)
	clean := insertIndexedFile(t, s, repoRoot, "clean.py", "x = 1\n", "")
	unindexed := insertUnindexedFile(t, s, "new.py")

	uncertain := insertIndexedFile(t, s, repoRoot, "uncertain.py", "helper()\n", "")
	_, err := s.DB().Exec(
		`INSERT INTO ref_facts (file_id, token_text, start_line, start_col, end_line, end_col, role, ref_tier, certainty)
		 VALUES (?, 'helper', 1, 0, 1, 6, 'call', 'strong', 'uncertain')`, uncertain)
	require.NoError(t, err)

	svc := New(s, repoRoot)
	result, err := svc.CheckMutationGate(context.Background(), []types.FileID{clean, unindexed, uncertain}, 1)
	require.NoError(t, err)
	require.Equal(t, []types.FileID{clean}, result.Allowed)
	require.Equal(t, []types.FileID{unindexed}, result.Blocked)
	require.Equal(t, []types.FileID{uncertain}, result.NeedsDecision)
	require.False(t, result.AllAllowed())
}
