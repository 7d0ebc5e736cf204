package resolve

import (
	"context"
	"path/filepath"
	"testing"

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

func insertFile(t *testing.T, s *storage.Store, path, family, declaredModule string) types.FileID {
	t.Helper()
	res, err := s.DB().Exec(
		`INSERT INTO files (path, language_family, content_hash, declared_module) VALUES (?, ?, '', ?)`,
		path, family, declaredModule)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return types.FileID(id)
}

func insertDef(t *testing.T, s *storage.Store, defUID string, fileID types.FileID, kind, name string) {
	t.Helper()
	_, err := s.DB().Exec(
		`INSERT INTO def_facts (def_uid, file_id, kind, name, lexical_path, start_line, start_col, end_line, end_col)
		 VALUES (?, ?, ?, ?, ?, 1, 0, 1, 1)`, defUID, fileID, kind, name, name)
	require.NoError(t, err)
}

func TestResolveImports_DefTargetPromotesDirectly(t *testing.T) {
	s := newTestStore(t)
	fileID := insertFile(t, s, "main.py", "python", "")

	_, err := s.DB().Exec(
		`INSERT INTO def_facts (def_uid, file_id, kind, name, lexical_path, start_line, start_col, end_line, end_col)
		 VALUES ('def:helper', ?, 'function', 'helper', 'helper', 1, 0, 1, 10)`, fileID)
	require.NoError(t, err)
	_, err = s.DB().Exec(
		`INSERT INTO local_bind_facts (file_id, name, target_kind, target_uid) VALUES (?, 'helper', 'DEF', 'def:helper')`, fileID)
	require.NoError(t, err)
	res, err := s.DB().Exec(
		`INSERT INTO ref_facts (file_id, token_text, start_line, start_col, end_line, end_col, role, ref_tier, certainty)
		 VALUES (?, 'helper', 5, 0, 5, 6, 'call', 'strong', 'uncertain')`, fileID)
	require.NoError(t, err)
	refID, _ := res.LastInsertId()

	stats, err := ResolveImportsAll(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, 1, stats.RefsProcessed)
	require.Equal(t, 1, stats.RefsResolved)

	var tier, targetUID string
	err = s.DB().QueryRow(`SELECT ref_tier, target_def_uid FROM ref_facts WHERE id = ?`, refID).Scan(&tier, &targetUID)
	require.NoError(t, err)
	require.Equal(t, "proven", tier)
	require.Equal(t, "def:helper", targetUID)
}

func TestResolveImports_ImportTargetFollowsModulePath(t *testing.T) {
	s := newTestStore(t)
	targetFileID := insertFile(t, s, "pkg/util.py", "python", "")
	_, err := s.DB().Exec(
		`INSERT INTO def_facts (def_uid, file_id, kind, name, lexical_path, start_line, start_col, end_line, end_col)
		 VALUES ('def:util.run', ?, 'function', 'run', 'run', 1, 0, 1, 10)`, targetFileID)
	require.NoError(t, err)

	importerFileID := insertFile(t, s, "main.py", "python", "")
	_, err = s.DB().Exec(
		`INSERT INTO import_facts (import_uid, file_id, imported_name, source_literal, import_kind, certainty, start_line, start_col, end_line, end_col)
		 VALUES ('imp:1', ?, 'run', 'pkg.util', 'module', 'certain', 1, 0, 1, 15)`, importerFileID)
	require.NoError(t, err)
	_, err = s.DB().Exec(
		`INSERT INTO local_bind_facts (file_id, name, target_kind, target_uid) VALUES (?, 'run', 'IMPORT', 'imp:1')`, importerFileID)
	require.NoError(t, err)
	res, err := s.DB().Exec(
		`INSERT INTO ref_facts (file_id, token_text, start_line, start_col, end_line, end_col, role, ref_tier, certainty)
		 VALUES (?, 'run', 3, 0, 3, 3, 'call', 'strong', 'uncertain')`, importerFileID)
	require.NoError(t, err)
	refID, _ := res.LastInsertId()

	stats, err := ResolveImportsAll(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, 1, stats.RefsResolved)

	var targetUID string
	err = s.DB().QueryRow(`SELECT target_def_uid FROM ref_facts WHERE id = ?`, refID).Scan(&targetUID)
	require.NoError(t, err)
	require.Equal(t, "def:util.run", targetUID)
}

func TestResolveImports_UnresolvableRefCounted(t *testing.T) {
	s := newTestStore(t)
	fileID := insertFile(t, s, "main.py", "python", "")
	_, err := s.DB().Exec(
		`INSERT INTO ref_facts (file_id, token_text, start_line, start_col, end_line, end_col, role, ref_tier, certainty)
		 VALUES (?, 'mystery', 1, 0, 1, 7, 'call', 'strong', 'uncertain')`, fileID)
	require.NoError(t, err)

	stats, err := ResolveImportsAll(context.Background(), s)
	require.NoError(t, err)
	require.Equal(t, 1, stats.RefsProcessed)
	require.Equal(t, 0, stats.RefsResolved)
	require.Equal(t, 1, stats.RefsUnresolved)
}

func TestResolveImportsForFiles_RestrictsToGivenFiles(t *testing.T) {
	s := newTestStore(t)
	fileA := insertFile(t, s, "a.py", "python", "")
	fileB := insertFile(t, s, "b.py", "python", "")
	for _, f := range []types.FileID{fileA, fileB} {
		_, err := s.DB().Exec(
			`INSERT INTO ref_facts (file_id, token_text, start_line, start_col, end_line, end_col, role, ref_tier, certainty)
			 VALUES (?, 'x', 1, 0, 1, 1, 'call', 'strong', 'uncertain')`, f)
		require.NoError(t, err)
	}

	stats, err := ResolveImportsForFiles(context.Background(), s, []types.FileID{fileA})
	require.NoError(t, err)
	require.Equal(t, 1, stats.RefsProcessed)
}

func TestResolveImportsForFiles_EmptyIsNoop(t *testing.T) {
	s := newTestStore(t)
	stats, err := ResolveImportsForFiles(context.Background(), s, nil)
	require.NoError(t, err)
	require.Equal(t, ImportStats{}, stats)
}
