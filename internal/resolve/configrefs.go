package resolve

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/codeplane-dev/codeplane/internal/discovery"
	"github.com/codeplane-dev/codeplane/internal/storage"
	"github.com/codeplane-dev/codeplane/internal/types"
)

// configExtensions and configBasenames name the config file shapes spec
// §4.8.3 scans, mirroring the original indexer's _CONFIG_EXTENSIONS /
// _CONFIG_BASENAMES.
var configExtensions = map[string]bool{
	".toml": true, ".yml": true, ".yaml": true, ".json": true, ".ini": true, ".cfg": true,
}

var configBasenames = map[string]bool{
	"makefile": true, "gnumakefile": true, "dockerfile": true,
}

var (
	reDQuote      = regexp.MustCompile(`"([^"\n]{3,200})"`)
	reSQuote      = regexp.MustCompile(`'([^'\n]{3,200})'`)
	reModulePath  = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)+$`)
	reEntryPoint  = regexp.MustCompile(`^([a-zA-Z_][a-zA-Z0-9_.]+):([a-zA-Z_][a-zA-Z0-9_]*)$`)
	skipPrefixes  = []string{"http://", "https://", "git://", "ssh://", "ftp://", "mailto:", ">=", "<=", "==", "!=", "~="}
)

func isConfigFile(p string) bool {
	base := strings.ToLower(path.Base(p))
	nameNoExt := base
	if i := strings.Index(base, "."); i >= 0 {
		nameNoExt = base[:i]
	}
	if configBasenames[nameNoExt] || configBasenames[base] {
		return true
	}
	return configExtensions[path.Ext(base)]
}

type configRef struct {
	value string
	line  int
}

func extractConfigStrings(content string) []configRef {
	seen := make(map[configRef]bool)
	var out []configRef
	for _, re := range []*regexp.Regexp{reDQuote, reSQuote} {
		for _, m := range re.FindAllStringSubmatchIndex(content, -1) {
			value := strings.TrimSpace(content[m[2]:m[3]])
			if value == "" {
				continue
			}
			skip := false
			for _, p := range skipPrefixes {
				if strings.HasPrefix(value, p) {
					skip = true
					break
				}
			}
			if skip {
				continue
			}
			line := strings.Count(content[:m[0]], "\n") + 1
			ref := configRef{value: value, line: line}
			if !seen[ref] {
				seen[ref] = true
				out = append(out, ref)
			}
		}
	}
	return out
}

func makeConfigImportUID(configPath, resolvedPath string, line int) string {
	raw := fmt.Sprintf("config_ref:%s:%d:%s", configPath, line, resolvedPath)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])[:16]
}

// tryResolveConfigString mirrors _try_resolve: every resolution strategy
// requires the candidate to already exist in pathSet/dirSet.
func tryResolveConfigString(value string, pathSet map[string]bool, dirSet map[string]bool) (string, bool) {
	cleaned := strings.TrimPrefix(value, "./")
	cleanedNoSlash := strings.TrimSuffix(cleaned, "/")

	if pathSet[cleaned] {
		return cleaned, true
	}
	if cleanedNoSlash != "" && pathSet[cleanedNoSlash] {
		return cleanedNoSlash, true
	}

	if m := reEntryPoint.FindStringSubmatch(cleaned); m != nil {
		if resolved, ok := resolveModulePathString(m[1], pathSet); ok {
			return resolved, true
		}
	}

	if reModulePath.MatchString(cleaned) {
		if resolved, ok := resolveModulePathString(cleaned, pathSet); ok {
			return resolved, true
		}
	}

	if cleanedNoSlash != "" && dirSet[cleanedNoSlash] {
		initPath := cleanedNoSlash + "/__init__.py"
		if pathSet[initPath] {
			return initPath, true
		}
	}

	return "", false
}

func resolveModulePathString(dotted string, pathSet map[string]bool) (string, bool) {
	base := strings.ReplaceAll(dotted, ".", "/")
	for _, candidate := range []string{base + ".py", base + "/__init__.py", "src/" + base + ".py", "src/" + base + "/__init__.py"} {
		if pathSet[candidate] {
			return candidate, true
		}
	}
	return "", false
}

// ConfigRefStats reports one config-file reference resolution run.
type ConfigRefStats struct {
	FilesScanned    int
	StringsChecked  int
	ImportsCreated  int
}

// ResolveConfigRefs scans every indexed config file under repoRoot for
// string literals that deterministically resolve to another indexed path,
// and (re-)emits ImportFact rows with import_kind="config_file_ref" for
// each. It is idempotent: existing config_file_ref rows are deleted before
// new ones are inserted, per spec §4.8.3.
//
// Each config file's unit_id comes from routing it against contexts with
// discovery.RouteFile, not from an existing def_facts row: config families
// (toml/yaml/json) have no tree-sitter grammar and so never produce a
// DefFact, which would make that precondition unsatisfiable.
func ResolveConfigRefs(ctx context.Context, store *storage.Store, repoRoot string, contexts []types.Context) (ConfigRefStats, error) {
	var stats ConfigRefStats

	err := store.Session(ctx, storage.ReadWrite, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT id, path FROM files`)
		if err != nil {
			return fmt.Errorf("list files: %w", err)
		}
		type fileRow struct {
			id   int64
			path string
		}
		var allFiles []fileRow
		pathSet := make(map[string]bool)
		for rows.Next() {
			var f fileRow
			if err := rows.Scan(&f.id, &f.path); err != nil {
				rows.Close()
				return err
			}
			allFiles = append(allFiles, f)
			pathSet[f.path] = true
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		dirSet := make(map[string]bool)
		for p := range pathSet {
			parts := strings.Split(p, "/")
			for i := 1; i < len(parts); i++ {
				dirSet[strings.Join(parts[:i], "/")] = true
			}
		}

		var configFiles []fileRow
		for _, f := range allFiles {
			if isConfigFile(f.path) {
				configFiles = append(configFiles, f)
			}
		}
		if len(configFiles) == 0 {
			return nil
		}

		unitIDs := make(map[int64]int64)
		for _, f := range configFiles {
			route := discovery.RouteFile(f.path, contexts)
			if !route.Routed {
				continue
			}
			unitIDs[f.id] = int64(route.Context.ID)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM import_facts WHERE import_kind = 'config_file_ref'`); err != nil {
			return fmt.Errorf("clear config_file_ref imports: %w", err)
		}

		type newImport struct {
			importUID, importedName, sourceLiteral, resolvedPath string
			fileID, unitID                                       int64
			line                                                 int
		}
		var newImports []newImport

		for _, f := range configFiles {
			unitID, ok := unitIDs[f.id]
			if !ok {
				continue
			}
			content, err := os.ReadFile(filepath.Join(repoRoot, filepath.FromSlash(f.path)))
			if err != nil {
				continue
			}
			stats.FilesScanned++

			refs := extractConfigStrings(string(content))
			stats.StringsChecked += len(refs)

			seenResolved := make(map[string]bool)
			for _, ref := range refs {
				resolved, ok := tryResolveConfigString(ref.value, pathSet, dirSet)
				if !ok || resolved == f.path || seenResolved[resolved] {
					continue
				}
				seenResolved[resolved] = true
				newImports = append(newImports, newImport{
					importUID:     makeConfigImportUID(f.path, resolved, ref.line),
					importedName:  path.Base(resolved),
					sourceLiteral: ref.value,
					resolvedPath:  resolved,
					fileID:        f.id,
					unitID:        unitID,
					line:          ref.line,
				})
			}
		}

		if len(newImports) == 0 {
			return nil
		}

		w := storage.NewBulkWriter(tx)
		rowsToInsert := make([][]any, len(newImports))
		for i, imp := range newImports {
			rowsToInsert[i] = []any{
				imp.importUID, imp.fileID, imp.unitID, imp.importedName, nil,
				imp.sourceLiteral, imp.resolvedPath, string(types.ImportKindConfigFile), string(types.CertaintyCertain),
				imp.line, 0, imp.line, 0,
			}
		}
		if err := w.InsertMany(ctx, "import_facts",
			[]string{"import_uid", "file_id", "unit_id", "imported_name", "alias",
				"source_literal", "resolved_path", "import_kind", "certainty",
				"start_line", "start_col", "end_line", "end_col"}, rowsToInsert); err != nil {
			return err
		}
		stats.ImportsCreated = len(newImports)
		return nil
	})

	return stats, err
}
