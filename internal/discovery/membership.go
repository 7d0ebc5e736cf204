package discovery

import (
	"strings"

	"github.com/codeplane-dev/codeplane/internal/langregistry"
	"github.com/codeplane-dev/codeplane/internal/types"
)

// universalExcludes apply to every context regardless of family; they
// repeat two of internal/ignore's PrunableDirs (.git and node_modules) at
// the glob level because
// Context.ExcludeSpec is evaluated independently by the routing step
// without access to an Engine (routing must stay a pure function of the
// Context and file path alone).
var universalExcludes = []string{"**/.git/**", "**/node_modules/**"}

// AssignMembership turns valid candidates into Contexts: each gets its
// family's default include globs, plus an exclude spec built from the
// universal excludes and a hole-punch pattern for every other valid
// candidate of the same family whose root is strictly nested under this
// one. Hole-punching prevents a parent context from re-claiming files that
// belong to a more specific nested context of the same family.
func AssignMembership(valid []types.CandidateContext) []types.Context {
	contexts := make([]types.Context, len(valid))
	for i, c := range valid {
		spec, _ := langregistry.Get(c.Language)
		contexts[i] = types.Context{
			Language:    c.Language,
			RootPath:    c.RootPath,
			IncludeSpec: append([]string{}, spec.DefaultIncludeGlobs...),
			ExcludeSpec: append([]string{}, universalExcludes...),
			ProbeStatus: types.ProbeStatusValid,
		}
	}

	for i := range contexts {
		for j := range contexts {
			if i == j || contexts[i].Language != contexts[j].Language {
				continue
			}
			if isStrictlyNested(contexts[j].RootPath, contexts[i].RootPath) {
				rel := childRelativeToParent(contexts[j].RootPath, contexts[i].RootPath)
				contexts[i].ExcludeSpec = append(contexts[i].ExcludeSpec, rel+"/**")
			}
		}
	}
	return contexts
}

// isStrictlyNested reports whether child is a proper descendant of parent.
func isStrictlyNested(child, parent string) bool {
	if child == parent {
		return false
	}
	if parent == "" {
		return child != ""
	}
	return strings.HasPrefix(child, parent+"/")
}

// childRelativeToParent returns child's path relative to parent.
func childRelativeToParent(child, parent string) string {
	if parent == "" {
		return child
	}
	return strings.TrimPrefix(child, parent+"/")
}
