// Package langregistry is the static table mapping file extensions and
// filename sentinels to language families, plus the per-family metadata
// (marker files, default include globs, grammar name, test-file patterns)
// Context Discovery and the Parser Layer both key off of. It replaces what
// would otherwise be an inheritance tree of per-language parser setup
// functions with one declarative table walked at init time.
package langregistry

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/codeplane-dev/codeplane/internal/types"
)

// Spec is one language family's entry in the registry.
type Spec struct {
	Family types.LanguageFamily

	// Extensions are matched case-sensitively against the path's final
	// extension, dot included (".go", ".py").
	Extensions []string

	// FilenameSentinels are exact base names that select this family
	// regardless of extension ("Makefile", "Dockerfile").
	FilenameSentinels []string

	// WorkspaceMarkers name files whose presence in a directory is strong
	// evidence of a workspace root for this family (go.work, pnpm-workspace.yaml).
	WorkspaceMarkers []string

	// PackageMarkers name files whose presence is evidence of a package
	// root, weaker than a workspace marker (go.mod, package.json, Cargo.toml).
	PackageMarkers []string

	// DefaultIncludeGlobs seed a Context's include_spec when none is
	// supplied by configuration.
	DefaultIncludeGlobs []string

	// TestFileGlobs identify test files within this family, used by
	// map_repo's test-layout summary.
	TestFileGlobs []string

	// GrammarName is the tree-sitter grammar identifier the Parser Layer
	// looks up to find the matching grammar binding.
	GrammarName string

	// Importable marks families that participate in import graphs. Data
	// and doc formats (JSON, YAML, Markdown) are indexed lexically but
	// never appear on the source side of an ImportFact.
	Importable bool
}

// Registry is the full static table, one entry per supported language
// family. Order is insertion order and has no semantic meaning.
var Registry = []Spec{
	{
		Family:              "go",
		Extensions:          []string{".go"},
		WorkspaceMarkers:    []string{"go.work"},
		PackageMarkers:      []string{"go.mod"},
		DefaultIncludeGlobs: []string{"**/*.go"},
		TestFileGlobs:       []string{"**/*_test.go"},
		GrammarName:         "go",
		Importable:          true,
	},
	{
		Family:              "python",
		Extensions:          []string{".py", ".pyi"},
		PackageMarkers:      []string{"pyproject.toml", "setup.py", "setup.cfg", "__init__.py"},
		DefaultIncludeGlobs: []string{"**/*.py"},
		TestFileGlobs:       []string{"**/test_*.py", "**/*_test.py", "**/tests/**/*.py"},
		GrammarName:         "python",
		Importable:          true,
	},
	{
		Family:              "javascript",
		Extensions:          []string{".js", ".jsx", ".mjs", ".cjs"},
		WorkspaceMarkers:    []string{"pnpm-workspace.yaml", "lerna.json"},
		PackageMarkers:      []string{"package.json"},
		DefaultIncludeGlobs: []string{"**/*.js", "**/*.jsx", "**/*.mjs", "**/*.cjs"},
		TestFileGlobs:       []string{"**/*.test.js", "**/*.spec.js", "**/__tests__/**/*.js"},
		GrammarName:         "javascript",
		Importable:          true,
	},
	{
		// TypeScript shares the JavaScript family's marker files but gets
		// its own grammar and include set. Being a separate family, a
		// directory with package.json yields one javascript and one
		// typescript candidate, each becoming its own context.
		Family:              "typescript",
		Extensions:          []string{".ts", ".tsx"},
		WorkspaceMarkers:    []string{"pnpm-workspace.yaml", "lerna.json"},
		PackageMarkers:      []string{"package.json", "tsconfig.json"},
		DefaultIncludeGlobs: []string{"**/*.ts", "**/*.tsx"},
		TestFileGlobs:       []string{"**/*.test.ts", "**/*.spec.ts", "**/__tests__/**/*.ts"},
		GrammarName:         "typescript",
		Importable:          true,
	},
	{
		Family:              "rust",
		Extensions:          []string{".rs"},
		WorkspaceMarkers:    []string{"Cargo.lock"},
		PackageMarkers:      []string{"Cargo.toml"},
		DefaultIncludeGlobs: []string{"**/*.rs"},
		TestFileGlobs:       []string{"**/tests/**/*.rs"},
		GrammarName:         "rust",
		Importable:          true,
	},
	{
		Family:              "jvm",
		Extensions:          []string{".java", ".kt", ".kts"},
		WorkspaceMarkers:    []string{"settings.gradle", "settings.gradle.kts"},
		PackageMarkers:      []string{"pom.xml", "build.gradle", "build.gradle.kts"},
		DefaultIncludeGlobs: []string{"**/*.java", "**/*.kt"},
		TestFileGlobs:       []string{"**/src/test/**/*.java", "**/src/test/**/*.kt"},
		GrammarName:         "java",
		Importable:          true,
	},
	{
		Family:              "dotnet",
		Extensions:          []string{".cs"},
		WorkspaceMarkers:    []string{".sln"},
		PackageMarkers:      []string{".csproj"},
		DefaultIncludeGlobs: []string{"**/*.cs"},
		TestFileGlobs:       []string{"**/*Tests.cs", "**/*.Tests/**/*.cs"},
		GrammarName:         "c_sharp",
		Importable:          true,
	},
	{
		Family:              "cpp",
		Extensions:          []string{".c", ".cc", ".cpp", ".cxx", ".h", ".hpp"},
		PackageMarkers:      []string{"CMakeLists.txt", "Makefile"},
		DefaultIncludeGlobs: []string{"**/*.c", "**/*.cc", "**/*.cpp", "**/*.h", "**/*.hpp"},
		TestFileGlobs:       []string{"**/*_test.cc", "**/*_test.cpp"},
		GrammarName:         "cpp",
		Importable:          true,
	},
	{
		Family:              "ruby",
		Extensions:          []string{".rb"},
		PackageMarkers:      []string{"Gemfile"},
		DefaultIncludeGlobs: []string{"**/*.rb"},
		TestFileGlobs:       []string{"**/spec/**/*_spec.rb", "**/test/**/*_test.rb"},
		GrammarName:         "ruby",
		Importable:          true,
	},
	{
		Family:              "php",
		Extensions:          []string{".php"},
		PackageMarkers:      []string{"composer.json"},
		DefaultIncludeGlobs: []string{"**/*.php"},
		TestFileGlobs:       []string{"**/*Test.php"},
		GrammarName:         "php",
		Importable:          true,
	},
	{
		Family:              "swift",
		Extensions:          []string{".swift"},
		PackageMarkers:      []string{"Package.swift"},
		DefaultIncludeGlobs: []string{"**/*.swift"},
		TestFileGlobs:       []string{"**/*Tests.swift"},
		GrammarName:         "swift",
		Importable:          true,
	},
	{
		Family:              "elixir",
		Extensions:          []string{".ex", ".exs"},
		PackageMarkers:      []string{"mix.exs"},
		DefaultIncludeGlobs: []string{"**/*.ex", "**/*.exs"},
		TestFileGlobs:       []string{"**/*_test.exs"},
		GrammarName:         "elixir",
		Importable:          true,
	},
	{
		Family:              "haskell",
		Extensions:          []string{".hs"},
		PackageMarkers:      []string{"*.cabal", "stack.yaml"},
		DefaultIncludeGlobs: []string{"**/*.hs"},
		GrammarName:         "haskell",
		Importable:          true,
	},
	{
		Family:              "ocaml",
		Extensions:          []string{".ml", ".mli"},
		PackageMarkers:      []string{"dune-project"},
		DefaultIncludeGlobs: []string{"**/*.ml", "**/*.mli"},
		GrammarName:         "ocaml",
		Importable:          true,
	},
	{
		Family:              "shell",
		Extensions:          []string{".sh", ".bash"},
		DefaultIncludeGlobs: []string{"**/*.sh", "**/*.bash"},
		GrammarName:         "bash",
		Importable:          false,
	},
	{
		Family:              "lua",
		Extensions:          []string{".lua"},
		DefaultIncludeGlobs: []string{"**/*.lua"},
		GrammarName:         "lua",
		Importable:          true,
	},
	{
		Family:              "markdown",
		Extensions:          []string{".md", ".markdown"},
		DefaultIncludeGlobs: []string{"**/*.md"},
		GrammarName:         "markdown",
		Importable:          false,
	},
	{
		Family:              "json_yaml",
		Extensions:          []string{".json", ".yaml", ".yml"},
		DefaultIncludeGlobs: []string{"**/*.json", "**/*.yaml", "**/*.yml"},
		GrammarName:         "json",
		Importable:          false,
	},
	{
		Family:              "toml",
		Extensions:          []string{".toml"},
		DefaultIncludeGlobs: []string{"**/*.toml"},
		GrammarName:         "toml",
		Importable:          false,
	},
	{
		Family:              "protobuf",
		Extensions:          []string{".proto"},
		DefaultIncludeGlobs: []string{"**/*.proto"},
		GrammarName:         "proto",
		Importable:          true,
	},
	{
		Family:            "terraform",
		Extensions:        []string{".tf", ".tfvars"},
		PackageMarkers:    []string{".terraform.lock.hcl"},
		DefaultIncludeGlobs: []string{"**/*.tf"},
		GrammarName:       "hcl",
		Importable:        false,
	},
	{
		Family:              "zig",
		Extensions:          []string{".zig"},
		PackageMarkers:      []string{"build.zig"},
		DefaultIncludeGlobs: []string{"**/*.zig"},
		GrammarName:         "zig",
		Importable:          true,
	},
	{
		Family:              "make",
		FilenameSentinels:   []string{"Makefile", "makefile", "GNUmakefile"},
		DefaultIncludeGlobs: []string{"**/Makefile"},
		GrammarName:         "",
		Importable:          false,
	},
	{
		Family:              "docker",
		FilenameSentinels:   []string{"Dockerfile"},
		DefaultIncludeGlobs: []string{"**/Dockerfile", "**/Dockerfile.*"},
		GrammarName:         "",
		Importable:          false,
	},
}

var (
	byExtension map[string]types.LanguageFamily
	byFilename  map[string]types.LanguageFamily
	bySpec      map[types.LanguageFamily]Spec
)

func init() {
	byExtension = make(map[string]types.LanguageFamily)
	byFilename = make(map[string]types.LanguageFamily)
	bySpec = make(map[types.LanguageFamily]Spec, len(Registry))

	for _, spec := range Registry {
		bySpec[spec.Family] = spec
		for _, ext := range spec.Extensions {
			byExtension[ext] = spec.Family
		}
		for _, name := range spec.FilenameSentinels {
			byFilename[name] = spec.Family
		}
	}
}

// DetectLanguageFamily classifies a path by filename sentinel first, then
// by extension. Returns false when no registered family claims the path.
func DetectLanguageFamily(path string) (types.LanguageFamily, bool) {
	base := filepath.Base(path)
	if family, ok := byFilename[base]; ok {
		return family, true
	}

	ext := filepath.Ext(path)
	if ext == "" {
		return "", false
	}
	family, ok := byExtension[ext]
	return family, ok
}

// Get returns the Spec registered for family.
func Get(family types.LanguageFamily) (Spec, bool) {
	spec, ok := bySpec[family]
	return spec, ok
}

// ImportableFamilies returns the families that participate in import
// graphs, excluding pure data/doc formats.
func ImportableFamilies() []types.LanguageFamily {
	families := make([]types.LanguageFamily, 0, len(Registry))
	for _, spec := range Registry {
		if spec.Importable {
			families = append(families, spec.Family)
		}
	}
	return families
}

// AllMarkers returns every workspace and package marker name across the
// whole registry, used by Context Discovery's marker scan to decide, in one
// directory listing, which entries are worth a stat() call.
func AllMarkers() []string {
	seen := make(map[string]bool)
	var markers []string
	for _, spec := range Registry {
		for _, m := range spec.WorkspaceMarkers {
			if !seen[m] {
				seen[m] = true
				markers = append(markers, m)
			}
		}
		for _, m := range spec.PackageMarkers {
			if strings.HasPrefix(m, "*") {
				continue // glob marker; the marker scan skips these too
			}
			if !seen[m] {
				seen[m] = true
				markers = append(markers, m)
			}
		}
	}
	return markers
}

// IsTestFile reports whether path matches one of family's TestFileGlobs.
func IsTestFile(family types.LanguageFamily, path string) bool {
	spec, ok := bySpec[family]
	if !ok {
		return false
	}
	for _, pattern := range spec.TestFileGlobs {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
	}
	return false
}
