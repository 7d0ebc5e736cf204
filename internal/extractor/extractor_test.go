package extractor

import (
	"strings"
	"testing"

	"github.com/codeplane-dev/codeplane/internal/tsparser"
	"github.com/codeplane-dev/codeplane/internal/types"
)

func newTestExtractor() *Extractor {
	return New(tsparser.New(), tsparser.NewParseCache())
}

func TestExtractFile_GoFunctionDef(t *testing.T) {
	e := newTestExtractor()
	src := []byte("package main\n\nfunc Hello() string {\n\treturn \"hi\"\n}\n")

	res, err := e.ExtractFile(1, 1, "main.go", "go", src)
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}
	if !res.Parsed {
		t.Fatalf("expected Parsed=true for a grammar-backed family")
	}
	if len(res.Defs) != 1 || res.Defs[0].Name != "Hello" {
		t.Fatalf("expected one def named Hello, got %+v", res.Defs)
	}
	if res.Defs[0].Kind != types.DefKindFunction {
		t.Errorf("expected function kind, got %v", res.Defs[0].Kind)
	}
	if res.InterfaceHash == "" {
		t.Errorf("expected a non-empty interface hash")
	}
}

func TestExtractFile_LexicalOnlyFamilySkipsParsing(t *testing.T) {
	e := newTestExtractor()
	res, err := e.ExtractFile(1, 1, "README.md", "markdown", []byte("# hi\n"))
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}
	if res.Parsed {
		t.Errorf("expected Parsed=false for a family with no grammar")
	}
	if res.ContentHash == "" {
		t.Errorf("expected content hash to still be computed")
	}
}

func TestExtractFile_SameFileCallResolvesProven(t *testing.T) {
	e := newTestExtractor()
	src := []byte(`package main

func helper() int {
	return 1
}

func main() {
	helper()
}
`)
	res, err := e.ExtractFile(1, 1, "main.go", "go", src)
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}

	var helperDefUID string
	for _, d := range res.Defs {
		if d.Name == "helper" {
			helperDefUID = d.DefUID
		}
	}
	if helperDefUID == "" {
		t.Fatalf("expected a def for helper, got %+v", res.Defs)
	}

	found := false
	for _, r := range res.Refs {
		if r.TokenText == "helper" && r.Role == types.RefRoleCall {
			found = true
			if r.RefTier != types.RefTierProven {
				t.Errorf("expected proven tier for same-file call, got %v", r.RefTier)
			}
			if r.TargetDefUID == nil || *r.TargetDefUID != helperDefUID {
				t.Errorf("expected target_def_uid %q, got %v", helperDefUID, r.TargetDefUID)
			}
		}
	}
	if !found {
		t.Fatalf("expected a call ref for helper, got %+v", res.Refs)
	}
}

func TestExtractFile_ImportedNameResolvesStrong(t *testing.T) {
	e := newTestExtractor()
	src := []byte(`package main

import "fmt"

func main() {
	fmt.Println("hi")
}
`)
	res, err := e.ExtractFile(1, 1, "main.go", "go", src)
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}

	if len(res.Imports) != 1 || !strings.Contains(res.Imports[0].SourceLiteral, "fmt") {
		t.Fatalf("expected one fmt import, got %+v", res.Imports)
	}

	found := false
	for _, ma := range res.MemberAccesses {
		if ma.ReceiverName == "fmt" && ma.MemberChain == "Println" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a member access fmt.Println, got %+v", res.MemberAccesses)
	}

	foundRef := false
	for _, r := range res.Refs {
		if r.TokenText == "fmt" {
			foundRef = true
			if r.RefTier != types.RefTierStrong {
				t.Errorf("expected strong tier for imported receiver, got %v", r.RefTier)
			}
		}
	}
	if !foundRef {
		t.Fatalf("expected a ref for fmt, got %+v", res.Refs)
	}
}

func TestExtractFile_UnknownIdentifierIsLexical(t *testing.T) {
	e := newTestExtractor()
	src := []byte(`package main

func main() {
	mystery()
}
`)
	res, err := e.ExtractFile(1, 1, "main.go", "go", src)
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}

	found := false
	for _, r := range res.Refs {
		if r.TokenText == "mystery" {
			found = true
			if r.RefTier != types.RefTierLexical {
				t.Errorf("expected lexical tier for unresolved call, got %v", r.RefTier)
			}
		}
	}
	if !found {
		t.Fatalf("expected a ref for mystery, got %+v", res.Refs)
	}
}

func TestExtractFile_MethodProducesTypeMember(t *testing.T) {
	e := newTestExtractor()
	src := []byte(`package main

type Greeter struct{}

func (g Greeter) Greet() string {
	return "hi"
}
`)
	res, err := e.ExtractFile(1, 1, "main.go", "go", src)
	if err != nil {
		t.Fatalf("ExtractFile: %v", err)
	}

	found := false
	for _, tm := range res.TypeMembers {
		if tm.MemberName == "Greet" && tm.MemberKind == types.MemberKindMethod {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a type member fact for Greet, got %+v", res.TypeMembers)
	}
}

func TestInterfaceHash_StableUnderDefOrder(t *testing.T) {
	a := []types.DefFact{{Kind: types.DefKindFunction, LexicalPath: "A", Name: "A"}, {Kind: types.DefKindFunction, LexicalPath: "B", Name: "B"}}
	b := []types.DefFact{{Kind: types.DefKindFunction, LexicalPath: "B", Name: "B"}, {Kind: types.DefKindFunction, LexicalPath: "A", Name: "A"}}

	if interfaceHash(a) != interfaceHash(b) {
		t.Errorf("expected interface hash to be independent of def order")
	}
}

func TestInterfaceHash_ChangesWithSignature(t *testing.T) {
	a := []types.DefFact{{Kind: types.DefKindFunction, LexicalPath: "A", Name: "A"}}
	b := []types.DefFact{{Kind: types.DefKindFunction, LexicalPath: "A2", Name: "A2"}}

	if interfaceHash(a) == interfaceHash(b) {
		t.Errorf("expected interface hash to change when the signature set changes")
	}
}
