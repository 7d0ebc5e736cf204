package discovery

import (
	"path/filepath"

	"github.com/codeplane-dev/codeplane/internal/types"
)

// CandidatesFromMarkers emits one CandidateContext per (root, family) pair,
// taking the highest tier and union of marker names when a root has more
// than one marker for the same family (e.g. both go.work and go.mod don't
// coexist in practice, but pyproject.toml + setup.cfg can).
func CandidatesFromMarkers(repoRoot string, markers []Marker) []types.CandidateContext {
	type key struct {
		root   string
		family types.LanguageFamily
	}
	byKey := make(map[key]*types.CandidateContext)
	var order []key

	for _, m := range markers {
		rel, err := filepath.Rel(repoRoot, m.DirPath)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			rel = ""
		}
		k := key{root: rel, family: m.Family}
		c, ok := byKey[k]
		if !ok {
			c = &types.CandidateContext{Language: m.Family, RootPath: rel, Tier: m.Tier}
			byKey[k] = c
			order = append(order, k)
		}
		if m.Tier > c.Tier {
			c.Tier = m.Tier
		}
		c.Markers = append(c.Markers, m.Name)
	}

	candidates := make([]types.CandidateContext, 0, len(order))
	for _, k := range order {
		candidates = append(candidates, *byKey[k])
	}
	return candidates
}
