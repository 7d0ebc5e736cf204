package discovery

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/codeplane-dev/codeplane/internal/langregistry"
	"github.com/codeplane-dev/codeplane/internal/types"
)

// Route is the routing outcome for one file.
type Route struct {
	FilePath string
	Context  *types.Context
	Family   types.LanguageFamily
	Routed   bool
	Reason   string
}

// RouteFile implements the file-to-context routing gating invariant: at
// most one owning Context per language family. Given a file path and the
// full set of Contexts, it (i) detects the file's family, (ii) filters to
// contexts of that family, (iii) sorts by root depth descending, (iv)
// returns the first context the file is inside whose include_spec matches
// and whose exclude_spec does not.
func RouteFile(filePath string, contexts []types.Context) Route {
	family, ok := langregistry.DetectLanguageFamily(filePath)
	if !ok {
		return Route{FilePath: filePath, Reason: "unknown file extension"}
	}

	var candidates []types.Context
	for _, c := range contexts {
		if c.Language == family {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return Route{FilePath: filePath, Family: family, Reason: "no contexts for family"}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return depth(candidates[i].RootPath) > depth(candidates[j].RootPath)
	})

	filePath = filepath.ToSlash(filePath)
	for i := range candidates {
		if matchesContext(filePath, &candidates[i]) {
			ctx := candidates[i]
			return Route{FilePath: filePath, Context: &ctx, Family: family, Routed: true}
		}
	}
	return Route{FilePath: filePath, Family: family, Reason: "no matching context found"}
}

func matchesContext(filePath string, ctx *types.Context) bool {
	if !isInsideRoot(filePath, ctx.RootPath) {
		return false
	}
	rel := relativeToRoot(filePath, ctx.RootPath)

	for _, pattern := range ctx.ExcludeSpec {
		if globMatches(pattern, rel) {
			return false
		}
	}

	if len(ctx.IncludeSpec) == 0 {
		return true
	}
	for _, pattern := range ctx.IncludeSpec {
		if globMatches(pattern, rel) {
			return true
		}
	}
	return false
}

func isInsideRoot(filePath, root string) bool {
	if root == "" {
		return true
	}
	return filePath == root || strings.HasPrefix(filePath, root+"/")
}

func relativeToRoot(filePath, root string) string {
	if root == "" {
		return filePath
	}
	return strings.TrimPrefix(filePath, root+"/")
}

func globMatches(pattern, path string) bool {
	ok, _ := doublestar.Match(pattern, path)
	return ok
}
