package langregistry

import "testing"

func TestDetectLanguageFamily(t *testing.T) {
	tests := []struct {
		path     string
		expected string
		found    bool
	}{
		{"main.go", "go", true},
		{"internal/thing_test.go", "go", true},
		{"scripts/build.py", "python", true},
		{"src/App.tsx", "typescript", true},
		{"src/App.jsx", "javascript", true},
		{"Dockerfile", "docker", true},
		{"deploy/Dockerfile.prod", "docker", false}, // sentinel match is by exact base name
		{"Makefile", "make", true},
		{"README", "", false},
		{"vendor/lib.a", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			family, ok := DetectLanguageFamily(tt.path)
			if ok != tt.found {
				t.Fatalf("DetectLanguageFamily(%q) ok = %v, want %v", tt.path, ok, tt.found)
			}
			if ok && string(family) != tt.expected {
				t.Errorf("DetectLanguageFamily(%q) = %q, want %q", tt.path, family, tt.expected)
			}
		})
	}
}

func TestGetReturnsRegisteredSpec(t *testing.T) {
	spec, ok := Get("go")
	if !ok {
		t.Fatalf("expected go family to be registered")
	}
	if spec.GrammarName != "go" {
		t.Errorf("GrammarName = %q, want %q", spec.GrammarName, "go")
	}
	if !spec.Importable {
		t.Errorf("go should be importable")
	}

	if _, ok := Get("cobol"); ok {
		t.Errorf("unregistered family should not be found")
	}
}

func TestImportableFamiliesExcludesDataFormats(t *testing.T) {
	families := ImportableFamilies()

	seen := make(map[string]bool)
	for _, f := range families {
		seen[string(f)] = true
	}

	if seen["json_yaml"] {
		t.Errorf("json_yaml should not be importable")
	}
	if seen["markdown"] {
		t.Errorf("markdown should not be importable")
	}
	if !seen["go"] {
		t.Errorf("go should be importable")
	}
}

func TestAllMarkersHasNoDuplicates(t *testing.T) {
	markers := AllMarkers()
	seen := make(map[string]bool)
	for _, m := range markers {
		if seen[m] {
			t.Errorf("duplicate marker %q", m)
		}
		seen[m] = true
	}
	if !seen["go.mod"] {
		t.Errorf("expected go.mod among markers")
	}
}

func TestIsTestFile(t *testing.T) {
	if !IsTestFile("go", "internal/foo/foo_test.go") {
		t.Errorf("expected foo_test.go to be recognized as a go test file")
	}
	if IsTestFile("go", "internal/foo/foo.go") {
		t.Errorf("foo.go should not be a test file")
	}
	if IsTestFile("cobol", "anything") {
		t.Errorf("unregistered family should never report test files")
	}
}
