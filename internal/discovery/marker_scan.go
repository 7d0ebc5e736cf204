// Package discovery implements Context Discovery: the four-step pipeline
// (marker scan, candidate synthesis, probe validation, membership +
// hole-punch) that turns a repository tree into the set of Contexts the
// rest of the system indexes against, plus the file-to-context routing
// invariant every other component relies on (at most one owning Context
// per language family for any given file).
package discovery

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/codeplane-dev/codeplane/internal/ignore"
	"github.com/codeplane-dev/codeplane/internal/langregistry"
	"github.com/codeplane-dev/codeplane/internal/types"
)

// Marker is one workspace or package marker file found during the scan,
// together with which language family registered it and how strong a
// signal it is (workspace markers outrank package markers).
type Marker struct {
	DirPath string
	Name    string
	Family  types.LanguageFamily
	Tier    int
}

const (
	tierWorkspace = 2
	tierPackage   = 1
)

// ScanMarkers walks root, honoring eng so pruned directories are never
// stat'd for markers, and returns the markers leaves-first: sorted by path
// depth, deepest first, then by directory path.
func ScanMarkers(root string, eng *ignore.Engine) ([]Marker, error) {
	type familyMarkers struct {
		family           types.LanguageFamily
		workspaceMarkers map[string]bool
		packageMarkers   map[string]bool
	}
	var table []familyMarkers
	for _, spec := range langregistry.Registry {
		fm := familyMarkers{family: spec.Family, workspaceMarkers: map[string]bool{}, packageMarkers: map[string]bool{}}
		for _, m := range spec.WorkspaceMarkers {
			fm.workspaceMarkers[m] = true
		}
		for _, m := range spec.PackageMarkers {
			if strings.HasPrefix(m, "*") {
				continue
			}
			fm.packageMarkers[m] = true
		}
		table = append(table, fm)
	}

	var markers []Marker
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && eng != nil && eng.ShouldIgnore(path) {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		dir := filepath.Dir(path)
		for _, fm := range table {
			if fm.workspaceMarkers[name] {
				markers = append(markers, Marker{DirPath: dir, Name: name, Family: fm.family, Tier: tierWorkspace})
			}
			if fm.packageMarkers[name] {
				markers = append(markers, Marker{DirPath: dir, Name: name, Family: fm.family, Tier: tierPackage})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(markers, func(i, j int) bool {
		di, dj := depth(markers[i].DirPath), depth(markers[j].DirPath)
		if di != dj {
			return di > dj // leaves first
		}
		return markers[i].DirPath < markers[j].DirPath
	})
	return markers, nil
}

func depth(path string) int {
	return strings.Count(filepath.ToSlash(path), "/")
}
