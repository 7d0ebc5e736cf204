package resolve

import (
	"path"
	"strings"

	"github.com/codeplane-dev/codeplane/internal/types"
)

// Candidates generates the repo-relative file paths a source_literal might
// refer to, for a given language family and the repo-relative directory of
// the importing file. It generalizes the original Python indexer's
// `_path_to_module`/`_resolve_module_path` pair (dotted path -> foo/bar.py or
// foo/bar/__init__.py, optionally under a src/ prefix) into a per-family
// strategy table, since every language family in the registry has its own
// source-literal shape.
//
// A nil return means "this family resolves imports by declared module, not
// by translating the literal into a path" — the caller falls back to the
// File.declared_module lookup for those (Go import paths and C# using
// directives name a package/namespace, not a file).
func Candidates(family types.LanguageFamily, importerDir, sourceLiteral string) []string {
	switch family {
	case "python":
		return pythonCandidates(sourceLiteral, importerDir)
	case "javascript", "typescript":
		return jsCandidates(sourceLiteral, importerDir)
	case "rust":
		return rustCandidates(sourceLiteral)
	case "jvm":
		return jvmCandidates(sourceLiteral)
	case "cpp":
		return cppCandidates(sourceLiteral, importerDir)
	case "php":
		return phpCandidates(sourceLiteral, importerDir)
	case "zig":
		return relativeCandidates(sourceLiteral, importerDir, []string{".zig"})
	default:
		return nil
	}
}

// pythonCandidates mirrors _resolve_module_path: a dotted path becomes
// a/b/c.py or a/b/c/__init__.py, each also tried under a src/ prefix for
// src-layout projects. A leading-dot relative import is first joined
// against the importing file's own directory.
func pythonCandidates(literal, importerDir string) []string {
	dotted := strings.TrimLeft(literal, ".")
	base := strings.ReplaceAll(dotted, ".", "/")
	if strings.HasPrefix(literal, ".") && importerDir != "" {
		base = path.Join(importerDir, base)
	}
	return []string{
		base + ".py",
		path.Join(base, "__init__.py"),
		path.Join("src", base+".py"),
		path.Join("src", base, "__init__.py"),
	}
}

// jsCandidates handles relative specifiers ("./foo", "../bar"); a bare
// specifier (no leading dot or slash) names a package in node_modules,
// which this index never indexes, so it yields no candidates.
func jsCandidates(literal, importerDir string) []string {
	if !strings.HasPrefix(literal, ".") && !strings.HasPrefix(literal, "/") {
		return nil
	}
	return relativeCandidates(literal, importerDir, []string{".ts", ".tsx", ".js", ".jsx"})
}

// rustCandidates translates a `crate::` / `self::` / `super::` path into the
// conventional src/ layout; `mod.rs` is Rust's own "__init__"-equivalent.
func rustCandidates(literal string) []string {
	segs := strings.Split(literal, "::")
	filtered := segs[:0:0]
	for _, s := range segs {
		if s == "crate" || s == "self" || s == "super" {
			continue
		}
		filtered = append(filtered, s)
	}
	base := path.Join(append([]string{"src"}, filtered...)...)
	return []string{base + ".rs", path.Join(base, "mod.rs")}
}

// jvmCandidates treats a dotted package.Class path as a conventional
// src/main/java layout path, also trying the bare repo-root layout some
// single-module Java projects use.
func jvmCandidates(literal string) []string {
	base := strings.ReplaceAll(literal, ".", "/")
	return []string{
		path.Join("src", "main", "java", base+".java"),
		base + ".java",
	}
}

// cppCandidates handles a quoted #include's relative path; angle-bracket
// system includes are never passed in here (the extractor only captures
// the include directive span, not its bracket kind, so this is a best
// effort: a literal that doesn't resolve under any candidate is simply
// left unresolved, which is correct for a system header anyway).
func cppCandidates(literal, importerDir string) []string {
	return relativeCandidates(literal, importerDir, []string{""})
}

// phpCandidates treats a namespace-separated literal as a PSR-4 path and
// also tries it relative to the importing file for require/include-style
// literals.
func phpCandidates(literal, importerDir string) []string {
	base := strings.ReplaceAll(literal, `\`, "/")
	out := []string{base + ".php"}
	out = append(out, relativeCandidates(literal, importerDir, []string{".php"})...)
	return out
}

// relativeCandidates joins literal against importerDir when it looks
// relative, and tries each extension plus an index file for each.
func relativeCandidates(literal, importerDir string, exts []string) []string {
	joined := literal
	if importerDir != "" && (strings.HasPrefix(literal, ".") || !strings.Contains(literal, "/")) {
		joined = path.Join(importerDir, literal)
	} else if strings.HasPrefix(literal, "/") {
		joined = strings.TrimPrefix(literal, "/")
	}

	var out []string
	for _, ext := range exts {
		out = append(out, joined+ext)
		out = append(out, path.Join(joined, "index"+ext))
	}
	return out
}
