package lexical

import (
	"path/filepath"
	"testing"

	"github.com/codeplane-dev/codeplane/internal/types"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "tantivy"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestAddFile_NotVisibleUntilReload(t *testing.T) {
	idx := newTestIndex(t)
	if err := idx.AddFile("main.go", "func resolver() {}", 1, 1, []string{"resolver"}); err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	if got := idx.Search("resolver", 10, nil); len(got.Hits) != 0 {
		t.Fatalf("expected no hits before Reload, got %+v", got.Hits)
	}

	if err := idx.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := idx.Search("resolver", 10, nil); len(got.Hits) != 1 {
		t.Fatalf("expected one hit after Reload, got %+v", got.Hits)
	}
	if idx.DocCount() != 1 {
		t.Errorf("expected doc count 1, got %d", idx.DocCount())
	}
}

func TestAddFile_ReindexIsIdempotent(t *testing.T) {
	idx := newTestIndex(t)
	idx.AddFile("main.go", "package main\nfunc one() {}", 1, 1, []string{"one"})
	idx.Reload()
	idx.AddFile("main.go", "package main\nfunc two() {}", 1, 1, []string{"two"})
	idx.Reload()

	if idx.DocCount() != 1 {
		t.Fatalf("expected re-adding the same path to replace, not duplicate, got doc count %d", idx.DocCount())
	}
	if got := idx.Search("one", 10, nil); len(got.Hits) != 0 {
		t.Errorf("expected stale content no longer indexed, got %+v", got.Hits)
	}
	if got := idx.Search("two", 10, nil); len(got.Hits) != 1 {
		t.Errorf("expected new content indexed, got %+v", got.Hits)
	}
}

func TestRemoveFile(t *testing.T) {
	idx := newTestIndex(t)
	idx.AddFile("a.go", "package main", 1, 1, nil)
	idx.Reload()
	if err := idx.RemoveFile("a.go"); err != nil {
		t.Fatalf("RemoveFile: %v", err)
	}
	idx.Reload()

	if idx.DocCount() != 0 {
		t.Errorf("expected doc count 0 after remove, got %d", idx.DocCount())
	}
}

func TestSearch_StemmingMatchesVariants(t *testing.T) {
	idx := newTestIndex(t)
	idx.AddFile("a.go", "the resolver is resolving references", 1, 1, nil)
	idx.Reload()

	got := idx.Search("resolve", 10, nil)
	if len(got.Hits) != 1 {
		t.Fatalf("expected stemmed match for 'resolve', got %+v", got.Hits)
	}
}

func TestSearch_QuotedPhraseIsLiteral(t *testing.T) {
	idx := newTestIndex(t)
	idx.AddFile("a.go", "func resolveImport(name string)", 1, 1, nil)
	idx.AddFile("b.go", "func resolveExport(name string)", 1, 1, nil)
	idx.Reload()

	got := idx.Search(`"resolveImport"`, 10, nil)
	if len(got.Hits) != 1 || got.Hits[0].FilePath != "a.go" {
		t.Fatalf("expected exactly a.go for the literal phrase, got %+v", got.Hits)
	}
}

func TestSearch_ContextFilter(t *testing.T) {
	idx := newTestIndex(t)
	idx.AddFile("a.go", "func target() {}", 1, 1, nil)
	idx.AddFile("b.go", "func target() {}", 2, 2, nil)
	idx.Reload()

	ctx := types.ContextID(1)
	got := idx.Search("target", 10, &ctx)
	if len(got.Hits) != 1 || got.Hits[0].FilePath != "a.go" {
		t.Fatalf("expected only context 1's file, got %+v", got.Hits)
	}
}

func TestSearch_UnterminatedQuoteFallsBackLiterally(t *testing.T) {
	idx := newTestIndex(t)
	idx.AddFile("a.go", `has a literal "unterminated token somewhere`, 1, 1, nil)
	idx.Reload()

	got := idx.Search(`"unterminated`, 10, nil)
	if got.FallbackReason == "" {
		t.Fatalf("expected a FallbackReason for an unterminated quote")
	}
	if len(got.Hits) != 1 {
		t.Fatalf("expected the literal fallback to still find a.go, got %+v", got.Hits)
	}
}

func TestSearchSymbols_ExactBeforeFuzzy(t *testing.T) {
	idx := newTestIndex(t)
	idx.AddFile("a.go", "", 1, 1, []string{"resolveReference"})
	idx.Reload()

	got := idx.SearchSymbols("resolveReference", 10, nil)
	if len(got.Hits) != 1 || got.Hits[0].Score < 1 {
		t.Fatalf("expected an exact symbol hit scored by frequency, got %+v", got.Hits)
	}
}

func TestSearchSymbols_FuzzyFallbackOnTypo(t *testing.T) {
	idx := newTestIndex(t)
	idx.AddFile("a.go", "", 1, 1, []string{"resolveReference"})
	idx.Reload()

	got := idx.SearchSymbols("resolvRefrence", 10, nil)
	if len(got.Hits) != 1 {
		t.Fatalf("expected a fuzzy match for a typo'd symbol name, got %+v", got.Hits)
	}
}

func TestSearchPath_GlobMatch(t *testing.T) {
	idx := newTestIndex(t)
	idx.AddFile("internal/foo/bar.go", "", 1, 1, nil)
	idx.AddFile("cmd/main.go", "", 1, 1, nil)
	idx.Reload()

	got := idx.SearchPath("internal/**/*.go", 10, nil)
	if len(got.Hits) != 1 || got.Hits[0].FilePath != "internal/foo/bar.go" {
		t.Fatalf("expected only the internal match, got %+v", got.Hits)
	}
}

func TestOpen_ReplaysSegmentLogAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	idx, err := Open(filepath.Join(dir, "tantivy"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	idx.AddFile("a.go", "package main", 1, 1, nil)
	idx.Reload()
	idx.Close()

	reopened, err := Open(filepath.Join(dir, "tantivy"))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if reopened.DocCount() != 1 {
		t.Errorf("expected replayed doc count 1, got %d", reopened.DocCount())
	}
}

func TestClear_ResetsImmediately(t *testing.T) {
	idx := newTestIndex(t)
	idx.AddFile("a.go", "package main", 1, 1, nil)
	idx.Reload()
	if err := idx.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if idx.DocCount() != 0 {
		t.Errorf("expected doc count 0 after Clear, got %d", idx.DocCount())
	}
}
