package query

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeplane-dev/codeplane/internal/ignore"
	"github.com/codeplane-dev/codeplane/internal/lexical"
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

func insertFile(t *testing.T, s *storage.Store, path string) types.FileID {
	t.Helper()
	res, err := s.DB().Exec(`INSERT INTO files (path, language_family, content_hash, indexed_at) VALUES (?, 'go', 'h', CURRENT_TIMESTAMP)`, path)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return types.FileID(id)
}

func insertDef(t *testing.T, s *storage.Store, fileID types.FileID, unitID types.ContextID, kind, name, lexicalPath string, startLine int) {
	t.Helper()
	defUID := fmt.Sprintf("%d#%s#%s", fileID, name, lexicalPath)
	_, err := s.DB().Exec(
		`INSERT INTO def_facts (def_uid, file_id, unit_id, kind, name, lexical_path, start_line, start_col, end_line, end_col)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, 10)`,
		defUID, int64(fileID), int64(unitID), kind, name, lexicalPath, startLine, startLine)
	require.NoError(t, err)
}

func insertRef(t *testing.T, s *storage.Store, fileID types.FileID, token string, tier types.RefTier, startLine int) {
	t.Helper()
	_, err := s.DB().Exec(
		`INSERT INTO ref_facts (file_id, token_text, start_line, start_col, end_line, end_col, role, ref_tier, certainty)
		 VALUES (?, ?, ?, 0, ?, 5, 'read', ?, 'certain')`,
		int64(fileID), token, startLine, startLine, string(tier))
	require.NoError(t, err)
}

func insertImport(t *testing.T, s *storage.Store, fileID types.FileID, source string, resolved bool) {
	t.Helper()
	var resolvedPath any
	if resolved {
		resolvedPath = "somewhere.go"
	}
	_, err := s.DB().Exec(
		`INSERT INTO import_facts (import_uid, file_id, imported_name, source_literal, resolved_path, import_kind, certainty, start_line, start_col, end_line, end_col)
		 VALUES (?, ?, ?, ?, ?, 'module', 'certain', 1, 0, 1, 5)`,
		fmt.Sprintf("%d#%s", fileID, source), int64(fileID), source, source, resolvedPath)
	require.NoError(t, err)
}

func insertScope(t *testing.T, s *storage.Store, fileID types.FileID, kind types.ScopeKind, span types.Span) int64 {
	t.Helper()
	res, err := s.DB().Exec(
		`INSERT INTO scope_facts (file_id, kind, start_line, start_col, end_line, end_col) VALUES (?, ?, ?, ?, ?, ?)`,
		int64(fileID), string(kind), span.StartLine, span.StartCol, span.EndLine, span.EndCol)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func writeRepoFile(t *testing.T, repoRoot, relPath, content string) {
	t.Helper()
	full := filepath.Join(repoRoot, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestSearch_DefinitionsModeMatchesByName(t *testing.T) {
	s := newTestStore(t)
	fileID := insertFile(t, s, "pkg/foo.go")
	insertDef(t, s, fileID, 1, "function", "Greet", "Greet", 3)

	svc := New(s, nil, t.TempDir())
	resp, err := svc.Search(context.Background(), "Greet", ModeDefinitions, 10, nil)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	require.Equal(t, "pkg/foo.go", resp.Results[0].Path)
	require.Equal(t, 3, resp.Results[0].Line)
	require.Equal(t, 1.0, resp.Results[0].Score)
}

func TestSearch_DefinitionsModeFiltersByContext(t *testing.T) {
	s := newTestStore(t)
	fileA := insertFile(t, s, "a.go")
	fileB := insertFile(t, s, "b.go")
	insertDef(t, s, fileA, 1, "function", "Shared", "Shared", 1)
	insertDef(t, s, fileB, 2, "function", "Shared", "Shared", 1)

	svc := New(s, nil, t.TempDir())
	ctxID := types.ContextID(2)
	resp, err := svc.Search(context.Background(), "Shared", ModeDefinitions, 10, &ctxID)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	require.Equal(t, "b.go", resp.Results[0].Path)
}

func TestSearch_ReferencesModeMatchesByToken(t *testing.T) {
	s := newTestStore(t)
	fileID := insertFile(t, s, "pkg/foo.go")
	insertRef(t, s, fileID, "Greet", types.RefTierStrong, 7)

	svc := New(s, nil, t.TempDir())
	resp, err := svc.Search(context.Background(), "Greet", ModeReferences, 10, nil)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	require.Equal(t, 7, resp.Results[0].Line)
	require.Equal(t, 0.8, resp.Results[0].Score)
}

func TestSearch_LexicalModeDelegatesToLexicalIndex(t *testing.T) {
	s := newTestStore(t)
	lexIndex, err := lexical.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { lexIndex.Close() })
	require.NoError(t, lexIndex.AddFile("main.go", "package main\n\nfunc main() {}\n", 1, 1, []string{"main"}))
	require.NoError(t, lexIndex.Reload())

	svc := New(s, lexIndex, t.TempDir())
	resp, err := svc.Search(context.Background(), "package", ModeLexical, 10, nil)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	require.Equal(t, "main.go", resp.Results[0].Path)
}

func TestMapRepo_LanguagesAndTestLayout(t *testing.T) {
	repoRoot := t.TempDir()
	writeRepoFile(t, repoRoot, "main.go", "package main\n")
	writeRepoFile(t, repoRoot, "main_test.go", "package main\n")
	writeRepoFile(t, repoRoot, "notes.md", "# hi\n")

	s := newTestStore(t)
	svc := New(s, nil, repoRoot)
	ign, err := ignore.New(repoRoot, false, nil)
	require.NoError(t, err)

	result, err := svc.MapRepo(context.Background(), ign, MapRepoOptions{
		Include: []MapRepoInclude{IncludeLanguages, IncludeTestLayout},
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Languages)
	require.Contains(t, result.TestLayout, "main_test.go")
}

func TestMapRepo_StructureCountsLinesAndRespectsDepth(t *testing.T) {
	repoRoot := t.TempDir()
	writeRepoFile(t, repoRoot, "a.go", "line1\nline2\nline3\n")
	writeRepoFile(t, repoRoot, "nested/deep/b.go", "line1\n")

	s := newTestStore(t)
	svc := New(s, nil, repoRoot)
	ign, err := ignore.New(repoRoot, false, nil)
	require.NoError(t, err)

	result, err := svc.MapRepo(context.Background(), ign, MapRepoOptions{
		Include: []MapRepoInclude{IncludeStructure},
		Depth:   1,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Structure)

	var sawA, sawNested bool
	for _, child := range result.Structure.Children {
		if child.Path == "a.go" {
			sawA = true
			require.Equal(t, 3, child.LineCount)
		}
		if child.Path == "nested" {
			sawNested = true
		}
	}
	require.True(t, sawA)
	require.False(t, sawNested, "depth=1 should prune the nested directory entirely")
}

func TestMapRepo_DependenciesOnlyUnresolvedImports(t *testing.T) {
	s := newTestStore(t)
	fileID := insertFile(t, s, "main.go")
	insertImport(t, s, fileID, "github.com/external/pkg", false)
	insertImport(t, s, fileID, "./internal/local", true)

	svc := New(s, nil, t.TempDir())
	ign, err := ignore.New(t.TempDir(), false, nil)
	require.NoError(t, err)
	result, err := svc.MapRepo(context.Background(), ign, MapRepoOptions{Include: []MapRepoInclude{IncludeDependencies}})
	require.NoError(t, err)
	require.Equal(t, []string{"github.com/external/pkg"}, result.Dependencies)
}

func TestMapRepo_EntryPointsMatchConventionalNames(t *testing.T) {
	s := newTestStore(t)
	fileID := insertFile(t, s, "cmd/app/main.go")
	insertDef(t, s, fileID, 1, "function", "main", "main", 5)
	insertDef(t, s, fileID, 1, "function", "helper", "helper", 9)

	svc := New(s, nil, t.TempDir())
	ign, err := ignore.New(t.TempDir(), false, nil)
	require.NoError(t, err)
	result, err := svc.MapRepo(context.Background(), ign, MapRepoOptions{Include: []MapRepoInclude{IncludeEntryPoints}})
	require.NoError(t, err)
	require.Len(t, result.EntryPoints, 1)
	require.Equal(t, "main", result.EntryPoints[0].Name)
}

func TestMapRepo_PublicAPIExcludesUnderscorePrefixed(t *testing.T) {
	s := newTestStore(t)
	fileID := insertFile(t, s, "lib.go")
	insertDef(t, s, fileID, 1, "function", "Exported", "Exported", 1)
	insertDef(t, s, fileID, 1, "function", "_hidden", "_hidden", 2)

	svc := New(s, nil, t.TempDir())
	ign, err := ignore.New(t.TempDir(), false, nil)
	require.NoError(t, err)
	result, err := svc.MapRepo(context.Background(), ign, MapRepoOptions{Include: []MapRepoInclude{IncludePublicAPI}})
	require.NoError(t, err)
	require.Len(t, result.PublicAPI, 1)
	require.Equal(t, "Exported", result.PublicAPI[0].Name)
}

func TestReadScope_ReturnsSmallestEnclosingScopeOfPreferredKind(t *testing.T) {
	repoRoot := t.TempDir()
	writeRepoFile(t, repoRoot, "main.go", "package main\n\nfunc Foo() {\n\tx := 1\n\t_ = x\n}\n")

	s := newTestStore(t)
	fileID := insertFile(t, s, "main.go")
	insertScope(t, s, fileID, types.ScopeKindFile, types.Span{StartLine: 1, EndLine: 6})
	insertScope(t, s, fileID, types.ScopeKindFunction, types.Span{StartLine: 3, EndLine: 6})

	svc := New(s, nil, repoRoot)
	result, err := svc.ReadScope(context.Background(), fileID, 4, types.ScopeKindFunction, 0)
	require.NoError(t, err)
	require.True(t, result.Resolved)
	require.Equal(t, types.ScopeKindFunction, result.Kind)
	require.Equal(t, 3, result.Span.StartLine)
}

func TestReadScope_FallsBackToFileScopeWhenPreferenceAbsent(t *testing.T) {
	repoRoot := t.TempDir()
	writeRepoFile(t, repoRoot, "main.go", "package main\n\nfunc Foo() {}\n")

	s := newTestStore(t)
	fileID := insertFile(t, s, "main.go")
	insertScope(t, s, fileID, types.ScopeKindFile, types.Span{StartLine: 1, EndLine: 3})

	svc := New(s, nil, repoRoot)
	result, err := svc.ReadScope(context.Background(), fileID, 2, types.ScopeKindClass, 0)
	require.NoError(t, err)
	require.True(t, result.Resolved)
	require.Equal(t, types.ScopeKindFile, result.Kind)
}

func TestReadScope_WindowFallbackWhenNoScopesRecorded(t *testing.T) {
	repoRoot := t.TempDir()
	writeRepoFile(t, repoRoot, "plain.txt", "one\ntwo\nthree\nfour\nfive\n")

	s := newTestStore(t)
	fileID := insertFile(t, s, "plain.txt")

	svc := New(s, nil, repoRoot)
	result, err := svc.ReadScope(context.Background(), fileID, 3, types.ScopeKindBlock, 1)
	require.NoError(t, err)
	require.False(t, result.Resolved)
	require.Equal(t, 2, result.Span.StartLine)
	require.Equal(t, 4, result.Span.EndLine)
	require.Equal(t, "two\nthree\nfour", result.Content)
}
