// Package ignore implements the unified path-exclusion engine: hardcoded
// prunable directories, hierarchical .cplignore files, optional .gitignore
// files, and caller-supplied extra patterns, composed into one ordered
// pattern list so later layers can negate earlier ones exactly the way a
// single .gitignore negates its own earlier lines.
package ignore

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// PrunableDirs are directory name segments excluded unconditionally,
// regardless of any ignore file content. Matched by exact segment name at
// any depth.
var PrunableDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"__pycache__":  true,
	".pytest_cache": true,
	".mypy_cache":  true,
	".tox":         true,
	".venv":        true,
	"venv":         true,
	"target":       true,
	"dist":         true,
	"build":        true,
	".next":        true,
	".nuxt":        true,
	"vendor":       true,
	".idea":        true,
	".vscode":      true,
	".cache":       true,
	"bin":          true,
	"obj":          true,
	".codeplane":   true,
}

// pattern is one loaded ignore rule, already relative-to-root and already
// prefixed by its source file's directory when that file was nested.
type pattern struct {
	glob   string
	negate bool
}

// Engine answers should_ignore/is_excluded_rel for one repository root. It
// is built once per reconciliation batch by loading the current contents of
// every .cplignore (and, if enabled, .gitignore) under root; callers that
// want live updates rebuild it when ComputeCombinedHash changes.
type Engine struct {
	root     string
	patterns []pattern
}

// New walks root for nested .cplignore files (and .gitignore files when
// respectGitignore is set), composing them with PrunableDirs and extra into
// one Engine. The walk itself honors PrunableDirs so it never descends into
// directories it would exclude anyway.
func New(root string, respectGitignore bool, extra []string) (*Engine, error) {
	e := &Engine{root: root}

	for dir := range PrunableDirs {
		e.patterns = append(e.patterns, pattern{glob: "**/" + dir, negate: false})
		e.patterns = append(e.patterns, pattern{glob: "**/" + dir + "/**", negate: false})
	}
	sortPatternsForDeterminism(e.patterns)

	ignoreFiles, err := discoverIgnoreFiles(root, ".cplignore")
	if err != nil {
		return nil, err
	}
	for _, f := range ignoreFiles {
		pats, err := loadPatternFile(root, f)
		if err != nil {
			return nil, err
		}
		e.patterns = append(e.patterns, pats...)
	}

	if respectGitignore {
		gitignoreFiles, err := discoverIgnoreFiles(root, ".gitignore")
		if err != nil {
			return nil, err
		}
		for _, f := range gitignoreFiles {
			pats, err := loadPatternFile(root, f)
			if err != nil {
				return nil, err
			}
			e.patterns = append(e.patterns, pats...)
		}
	}

	for _, p := range extra {
		e.patterns = append(e.patterns, parsePatternLine(p))
	}

	return e, nil
}

// sortPatternsForDeterminism keeps the hardcoded-prunable block in a stable
// order so ComputeCombinedHash is reproducible across process restarts
// (Go's map iteration order is randomized).
func sortPatternsForDeterminism(patterns []pattern) {
	sort.Slice(patterns, func(i, j int) bool { return patterns[i].glob < patterns[j].glob })
}

// ShouldIgnore reports whether the absolute path abs should be excluded
// from indexing.
func (e *Engine) ShouldIgnore(abs string) bool {
	rel, err := filepath.Rel(e.root, abs)
	if err != nil {
		return false
	}
	return e.IsExcludedRel(filepath.ToSlash(rel))
}

// IsExcludedRel reports whether rel (repo-relative, forward-slash) should
// be excluded. A path matches when any ancestor directory segment matches
// a pattern, or the path itself matches; negation patterns encountered
// later in load order re-include a path an earlier pattern excluded.
func (e *Engine) IsExcludedRel(rel string) bool {
	if rel == "." || rel == "" {
		return false
	}
	rel = strings.TrimPrefix(rel, "./")

	candidates := ancestorsAndSelf(rel)
	ignored := false
	for _, p := range e.patterns {
		for _, candidate := range candidates {
			if matchGlob(p.glob, candidate) {
				ignored = !p.negate
				break
			}
		}
	}
	return ignored
}

// ancestorsAndSelf returns every path prefix of rel, from the first
// segment through the full path, e.g. "a/b/c.go" -> ["a", "a/b", "a/b/c.go"].
func ancestorsAndSelf(rel string) []string {
	parts := strings.Split(rel, "/")
	out := make([]string, 0, len(parts))
	for i := range parts {
		out = append(out, strings.Join(parts[:i+1], "/"))
	}
	return out
}

func matchGlob(glob, candidate string) bool {
	matched, err := doublestar.Match(glob, candidate)
	return err == nil && matched
}

// ComputeCombinedHash returns a SHA-256 over every discovered ignore file's
// contents, concatenated in a deterministic (path-sorted) order. Callers
// use this to invalidate caches keyed on ignore configuration.
func (e *Engine) ComputeCombinedHash() (string, error) {
	var files []string
	for _, name := range []string{".cplignore", ".gitignore"} {
		found, err := discoverIgnoreFiles(e.root, name)
		if err != nil {
			return "", err
		}
		files = append(files, found...)
	}
	sort.Strings(files)

	h := sha256.New()
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return "", err
		}
		h.Write([]byte(f))
		h.Write([]byte{0})
		h.Write(data)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// discoverIgnoreFiles walks root looking for every file named filename,
// skipping PrunableDirs entirely so e.g. a node_modules/.gitignore never
// contributes patterns.
func discoverIgnoreFiles(root, filename string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && PrunableDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == filename {
			found = append(found, path)
		}
		return nil
	})
	return found, err
}

// loadPatternFile reads one ignore file and returns its patterns, each
// glob prefixed by the file's directory relative to root so a nested
// file's patterns only apply under that subtree.
func loadPatternFile(root, path string) ([]pattern, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	relDir, err := filepath.Rel(root, filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	relDir = filepath.ToSlash(relDir)
	if relDir == "." {
		relDir = ""
	}

	var patterns []pattern
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p := parsePatternLine(line)
		if relDir != "" {
			p.glob = relDir + "/" + p.glob
		}
		patterns = append(patterns, p)
	}
	return patterns, scanner.Err()
}

// parsePatternLine turns one glob line (optionally "!"-negated) into a
// pattern usable against both full-relative-path and per-ancestor matching.
// A pattern with no "/" is widened to match at any depth, matching
// .gitignore's own rule that a bare name matches anywhere in the tree.
func parsePatternLine(line string) pattern {
	p := pattern{}
	if strings.HasPrefix(line, "!") {
		p.negate = true
		line = line[1:]
	}
	line = strings.TrimPrefix(line, "/")
	line = strings.TrimSuffix(line, "/")

	if !strings.Contains(line, "/") && !strings.HasPrefix(line, "**/") {
		line = "**/" + line
	}
	p.glob = line
	return p
}
