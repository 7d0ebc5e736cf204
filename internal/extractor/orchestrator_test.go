package extractor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeplane-dev/codeplane/internal/storage"
	"github.com/codeplane-dev/codeplane/internal/tsparser"
	"github.com/codeplane-dev/codeplane/internal/types"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestFile(t *testing.T, s *storage.Store, path string) types.FileID {
	t.Helper()
	res, err := s.DB().Exec(
		`INSERT INTO files (path, language_family, content_hash) VALUES (?, 'go', '')`, path)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return types.FileID(id)
}

func TestOrchestrator_WritesFactsForBatch(t *testing.T) {
	s := newTestStore(t)
	fileID := insertTestFile(t, s, "main.go")

	o := NewOrchestrator(New(tsparser.New(), tsparser.NewParseCache()), s, 1)
	outcomes, err := o.Run(context.Background(), []FileInput{
		{
			FileID:  fileID,
			UnitID:  1,
			RelPath: "main.go",
			Family:  "go",
			Content: []byte("package main\n\nfunc Hello() string {\n\treturn \"hi\"\n}\n"),
		},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	require.NotEmpty(t, outcomes[0].InterfaceHash)

	var count int
	err = s.DB().QueryRow(`SELECT COUNT(*) FROM def_facts WHERE file_id = ?`, fileID).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestOrchestrator_ParallelWorkersExtractEveryFile(t *testing.T) {
	s := newTestStore(t)
	var inputs []FileInput
	for i := 0; i < 5; i++ {
		path := filepath.Join("pkg", "file.go") + string(rune('0'+i))
		fileID := insertTestFile(t, s, path)
		inputs = append(inputs, FileInput{
			FileID:  fileID,
			UnitID:  1,
			RelPath: path,
			Family:  "go",
			Content: []byte("package main\n\nfunc F() {}\n"),
		})
	}

	o := NewOrchestrator(New(tsparser.New(), tsparser.NewParseCache()), s, 4)
	outcomes, err := o.Run(context.Background(), inputs)
	require.NoError(t, err)
	require.Len(t, outcomes, 5)
	for _, out := range outcomes {
		require.NoError(t, out.Err)
	}
}

func TestOrchestrator_FailedFileRecordedNotFatal(t *testing.T) {
	s := newTestStore(t)
	fileID := insertTestFile(t, s, "weird.cobol")

	o := NewOrchestrator(New(tsparser.New(), tsparser.NewParseCache()), s, 1)
	outcomes, err := o.Run(context.Background(), []FileInput{
		{FileID: fileID, UnitID: 1, RelPath: "weird.cobol", Family: types.LanguageFamily("cobol"), Content: []byte("x")},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Error(t, outcomes[0].Err)
}

func TestOrchestrator_ReextractionReplacesFacts(t *testing.T) {
	s := newTestStore(t)
	fileID := insertTestFile(t, s, "main.go")
	o := NewOrchestrator(New(tsparser.New(), tsparser.NewParseCache()), s, 1)

	_, err := o.Run(context.Background(), []FileInput{
		{FileID: fileID, UnitID: 1, RelPath: "main.go", Family: "go", Content: []byte("package main\n\nfunc A() {}\nfunc B() {}\n")},
	})
	require.NoError(t, err)

	_, err = o.Run(context.Background(), []FileInput{
		{FileID: fileID, UnitID: 1, RelPath: "main.go", Family: "go", Content: []byte("package main\n\nfunc A() {}\n")},
	})
	require.NoError(t, err)

	var count int
	err = s.DB().QueryRow(`SELECT COUNT(*) FROM def_facts WHERE file_id = ?`, fileID).Scan(&count)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
