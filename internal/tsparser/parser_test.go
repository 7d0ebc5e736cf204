package tsparser

import (
	"testing"

	"github.com/codeplane-dev/codeplane/internal/types"
)

func TestParseGoSource(t *testing.T) {
	p := New()
	src := []byte("package main\n\nfunc Hello() string {\n\treturn \"hi\"\n}\n")

	tree, err := p.Parse("go", src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	defer tree.Close()

	if tree.RootNode().HasError() {
		t.Errorf("expected no syntax errors in valid go source")
	}
}

func TestCapturesFindsFunctionDef(t *testing.T) {
	p := New()
	src := []byte("package main\n\nfunc Hello() string {\n\treturn \"hi\"\n}\n")

	tree, err := p.Parse("go", src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	defer tree.Close()

	captures, err := p.Captures("go", tree, src)
	if err != nil {
		t.Fatalf("Captures: %v", err)
	}

	found := false
	for _, c := range captures {
		text := string(src[c.Node.StartByte():c.Node.EndByte()])
		if c.Name == "def.function.name" && text == "Hello" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a def.function.name capture for Hello, got %d captures", len(captures))
	}
}

func TestUnregisteredFamilyErrors(t *testing.T) {
	p := New()
	if _, err := p.Parse(types.LanguageFamily("cobol"), []byte("x")); err == nil {
		t.Errorf("expected error for unregistered family")
	}
}

func TestHasGrammar(t *testing.T) {
	if !HasGrammar("python") {
		t.Errorf("expected python to have a registered grammar")
	}
	if HasGrammar("markdown") {
		t.Errorf("markdown has no grammar binding in this build")
	}
}

func TestParseCached_ReusesTree(t *testing.T) {
	p := New()
	cache := NewParseCache()
	src := []byte("package main\n\nfunc Hello() {}\n")

	tree1, err := p.ParseCached(cache, "go", src)
	if err != nil {
		t.Fatalf("ParseCached: %v", err)
	}
	tree2, err := p.ParseCached(cache, "go", src)
	if err != nil {
		t.Fatalf("ParseCached: %v", err)
	}
	if tree1 != tree2 {
		t.Errorf("expected identical content to hit the cache and return the same tree")
	}
}
