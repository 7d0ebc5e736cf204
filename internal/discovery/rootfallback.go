package discovery

import (
	"github.com/codeplane-dev/codeplane/internal/langregistry"
	"github.com/codeplane-dev/codeplane/internal/types"
)

// tierRoot is weaker than both marker tiers (tierWorkspace, tierPackage): a
// fallback candidate only wins a family slot when marker scanning found no
// workspace or package marker for it anywhere in the repository.
const tierRoot = 0

// AddRootFallbacks appends one whole-repository candidate (RootPath "") per
// language family that marker scanning found zero candidates for. Without
// this, a lone file with no workspace/package marker next to it never gets
// a Context at all: CandidatesFromMarkers only ever looks at marker
// locations, so "repo contains only src/main.py" would discover nothing.
// Whether the fallback actually turns into a Context is left to probe
// validation, the same gate every marker-derived candidate goes through:
// a family with no matching files under the repo root simply fails to
// validate and is dropped.
func AddRootFallbacks(candidates []types.CandidateContext) []types.CandidateContext {
	seen := make(map[types.LanguageFamily]bool, len(candidates))
	for _, c := range candidates {
		seen[c.Language] = true
	}

	out := candidates
	for _, spec := range langregistry.Registry {
		if seen[spec.Family] {
			continue
		}
		out = append(out, types.CandidateContext{Language: spec.Family, RootPath: "", Tier: tierRoot})
	}
	return out
}
