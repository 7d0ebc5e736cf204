package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/codeplane-dev/codeplane/internal/ignore"
	"github.com/codeplane-dev/codeplane/internal/tsparser"
	"github.com/codeplane-dev/codeplane/internal/types"
)

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestScanMarkers_FindsGoMod(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "go.mod"), "module example.com/x\n")
	mustWriteFile(t, filepath.Join(root, "packages", "core", "go.mod"), "module example.com/x/core\n")

	eng, err := ignore.New(root, false, nil)
	if err != nil {
		t.Fatalf("ignore.New: %v", err)
	}

	markers, err := ScanMarkers(root, eng)
	if err != nil {
		t.Fatalf("ScanMarkers: %v", err)
	}
	if len(markers) != 2 {
		t.Fatalf("expected 2 markers, got %d", len(markers))
	}
	// leaves first
	if markers[0].DirPath != filepath.Join(root, "packages", "core") {
		t.Errorf("expected deepest marker first, got %q", markers[0].DirPath)
	}
}

func TestCandidatesFromMarkers(t *testing.T) {
	root := "/repo"
	markers := []Marker{
		{DirPath: "/repo/packages/core", Name: "go.mod", Family: "go", Tier: tierPackage},
		{DirPath: "/repo", Name: "go.work", Family: "go", Tier: tierWorkspace},
	}
	candidates := CandidatesFromMarkers(root, markers)
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}

	var foundRoot, foundNested bool
	for _, c := range candidates {
		if c.RootPath == "" && c.Tier == tierWorkspace {
			foundRoot = true
		}
		if c.RootPath == "packages/core" && c.Tier == tierPackage {
			foundNested = true
		}
	}
	if !foundRoot || !foundNested {
		t.Errorf("expected root workspace candidate and nested package candidate, got %+v", candidates)
	}
}

func TestAddRootFallbacks_SynthesizesRootCandidateForUnmarkedFamily(t *testing.T) {
	candidates := CandidatesFromMarkers("/repo", []Marker{
		{DirPath: "/repo", Name: "go.mod", Family: "go", Tier: tierPackage},
	})
	withFallbacks := AddRootFallbacks(candidates)

	var foundExistingGo, foundPythonFallback bool
	for _, c := range withFallbacks {
		if c.Language == "go" && c.RootPath == "" && c.Tier == tierPackage {
			foundExistingGo = true
		}
		if c.Language == "python" && c.RootPath == "" && c.Tier == tierRoot {
			foundPythonFallback = true
		}
	}
	if !foundExistingGo {
		t.Errorf("expected marker-derived go candidate to survive, got %+v", withFallbacks)
	}
	if !foundPythonFallback {
		t.Errorf("expected a root-level python fallback candidate since no python marker exists, got %+v", withFallbacks)
	}

	for _, c := range withFallbacks {
		if c.Language == "go" && c.Tier == tierRoot {
			t.Errorf("go already had a marker-derived candidate, should not also get a fallback")
		}
	}
}

func TestProbe_ValidatesGoFiles(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "main.go"), "package main\n\nfunc main() {}\n")

	probe := NewProbe(root, DefaultProbeConfig(), tsparser.New(), nil)
	result := probe.Validate(types.CandidateContext{Language: "go", RootPath: ""})
	if !result.Valid {
		t.Errorf("expected valid context, got reason %q", result.Reason)
	}
	if result.FilesPassed != 1 {
		t.Errorf("expected 1 file to pass, got %d", result.FilesPassed)
	}
}

func TestProbe_NoMatchingFiles(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "README.md"), "# hi\n")

	probe := NewProbe(root, DefaultProbeConfig(), tsparser.New(), nil)
	result := probe.Validate(types.CandidateContext{Language: "go", RootPath: ""})
	if result.Valid {
		t.Errorf("expected invalid context when no go files present")
	}
}

func TestAssignMembership_HolePunchesNestedSameFamily(t *testing.T) {
	valid := []types.CandidateContext{
		{Language: "javascript", RootPath: ""},
		{Language: "javascript", RootPath: "packages/core"},
	}
	contexts := AssignMembership(valid)

	var root types.Context
	for _, c := range contexts {
		if c.RootPath == "" {
			root = c
		}
	}
	found := false
	for _, pattern := range root.ExcludeSpec {
		if pattern == "packages/core/**" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected root context to hole-punch packages/core, got excludes %+v", root.ExcludeSpec)
	}
}

func TestRouteFile_DeepestRootWins(t *testing.T) {
	contexts := []types.Context{
		{Language: "javascript", RootPath: "", IncludeSpec: []string{"**/*.js"}, ExcludeSpec: []string{"packages/core/**"}},
		{Language: "javascript", RootPath: "packages/core", IncludeSpec: []string{"**/*.js"}},
	}

	route := RouteFile("packages/core/index.js", contexts)
	if !route.Routed || route.Context == nil || route.Context.RootPath != "packages/core" {
		t.Fatalf("expected file routed to packages/core, got %+v", route)
	}

	route2 := RouteFile("packages/other/index.js", contexts)
	if !route2.Routed || route2.Context.RootPath != "" {
		t.Fatalf("expected file routed to root context, got %+v", route2)
	}
}

func TestRouteFile_UnknownExtensionUnrouted(t *testing.T) {
	route := RouteFile("README", nil)
	if route.Routed {
		t.Errorf("expected unrouted result for unrecognized extension")
	}
}
