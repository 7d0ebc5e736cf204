package resolve

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"strings"

	"github.com/codeplane-dev/codeplane/internal/storage"
	"github.com/codeplane-dev/codeplane/internal/types"
)

// ImportStats reports one import-chain resolution run, grounded on the
// original indexer's ResolutionStats.
type ImportStats struct {
	RefsProcessed  int
	RefsResolved   int
	RefsUnresolved int
}

// defaultImportBatchLimit bounds a full-repo resolution pass the way spec
// §4.8.1 calls for.
const defaultImportBatchLimit = 10000

// ResolveImportsAll runs Pass 2 over every unresolved strong-tier ref in the
// repo, up to a batch cap.
func ResolveImportsAll(ctx context.Context, store *storage.Store) (ImportStats, error) {
	return resolveImports(ctx, store, nil, defaultImportBatchLimit)
}

// ResolveImportsForFiles runs Pass 2 restricted to refs in fileIDs, the
// incremental mode the Background Indexer uses after a small batch
// re-extraction.
func ResolveImportsForFiles(ctx context.Context, store *storage.Store, fileIDs []types.FileID) (ImportStats, error) {
	if len(fileIDs) == 0 {
		return ImportStats{}, nil
	}
	return resolveImports(ctx, store, fileIDs, 0)
}

type unresolvedRef struct {
	rowID     int64
	fileID    types.FileID
	tokenText string
}

func resolveImports(ctx context.Context, store *storage.Store, fileIDs []types.FileID, limit int) (ImportStats, error) {
	var stats ImportStats

	err := store.Session(ctx, storage.ReadWrite, func(ctx context.Context, tx *sql.Tx) error {
		refs, err := fetchUnresolvedStrongRefs(ctx, tx, fileIDs, limit)
		if err != nil {
			return err
		}
		stats.RefsProcessed = len(refs)

		modCache, err := buildModuleCache(ctx, tx)
		if err != nil {
			return err
		}

		if len(refs) > 0 {
			exportCache, err := buildExportCache(ctx, tx)
			if err != nil {
				return err
			}

			upgrade, err := tx.PrepareContext(ctx,
				`UPDATE ref_facts SET ref_tier = ?, certainty = ?, target_def_uid = ? WHERE id = ?`)
			if err != nil {
				return err
			}
			defer upgrade.Close()

			for _, ref := range refs {
				defUID, ok, err := resolveOneRef(ctx, tx, modCache, exportCache, ref)
				if err != nil {
					return err
				}
				if !ok {
					stats.RefsUnresolved++
					continue
				}
				if _, err := upgrade.ExecContext(ctx, string(types.RefTierProven), string(types.CertaintyCertain), defUID, ref.rowID); err != nil {
					return fmt.Errorf("upgrade ref %d: %w", ref.rowID, err)
				}
				stats.RefsResolved++
			}
		}

		return backfillImportResolvedPaths(ctx, tx, modCache, fileIDs)
	})

	return stats, err
}

// backfillImportResolvedPaths writes ImportFact.resolved_path for every
// import whose source literal deterministically resolves to an indexed
// file, independent of whether any RefFact happens to reference it. The
// File State Service reads resolved_path IS NULL as the
// FlagMissingImportTarget ambiguity signal, so this keeps that signal
// current every time Pass 2 runs rather than only when a ref forces the
// lookup.
func backfillImportResolvedPaths(ctx context.Context, tx *sql.Tx, mods moduleCache, fileIDs []types.FileID) error {
	query := `SELECT import_facts.import_uid, import_facts.source_literal, files.language_family, files.path
	          FROM import_facts JOIN files ON files.id = import_facts.file_id
	          WHERE import_facts.resolved_path IS NULL AND import_facts.import_kind != 'config_file_ref'`
	var args []any
	if len(fileIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(fileIDs)), ",")
		query += fmt.Sprintf(" AND import_facts.file_id IN (%s)", placeholders)
		for _, id := range fileIDs {
			args = append(args, int64(id))
		}
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("fetch unresolved import targets: %w", err)
	}
	type pendingImport struct {
		importUID, sourceLiteral, family, importerPath string
	}
	var pending []pendingImport
	for rows.Next() {
		var p pendingImport
		if err := rows.Scan(&p.importUID, &p.sourceLiteral, &p.family, &p.importerPath); err != nil {
			rows.Close()
			return err
		}
		pending = append(pending, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	fileByID := make(map[types.FileID]string)
	pathRows, err := tx.QueryContext(ctx, `SELECT id, path FROM files`)
	if err != nil {
		return fmt.Errorf("fetch file paths: %w", err)
	}
	for pathRows.Next() {
		var id int64
		var p string
		if err := pathRows.Scan(&id, &p); err != nil {
			pathRows.Close()
			return err
		}
		fileByID[types.FileID(id)] = p
	}
	pathRows.Close()
	if err := pathRows.Err(); err != nil {
		return err
	}

	update, err := tx.PrepareContext(ctx, `UPDATE import_facts SET resolved_path = ? WHERE import_uid = ?`)
	if err != nil {
		return err
	}
	defer update.Close()

	for _, p := range pending {
		targetFileID, ok := findModuleFile(mods, types.LanguageFamily(p.family), path.Dir(p.importerPath), p.sourceLiteral)
		if !ok {
			continue
		}
		resolvedPath, ok := fileByID[targetFileID]
		if !ok {
			continue
		}
		if _, err := update.ExecContext(ctx, resolvedPath, p.importUID); err != nil {
			return fmt.Errorf("backfill resolved_path for %s: %w", p.importUID, err)
		}
	}
	return nil
}

func fetchUnresolvedStrongRefs(ctx context.Context, tx *sql.Tx, fileIDs []types.FileID, limit int) ([]unresolvedRef, error) {
	query := `SELECT id, file_id, token_text FROM ref_facts WHERE ref_tier = ? AND target_def_uid IS NULL`
	args := []any{string(types.RefTierStrong)}

	if len(fileIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(fileIDs)), ",")
		query += fmt.Sprintf(" AND file_id IN (%s)", placeholders)
		for _, id := range fileIDs {
			args = append(args, int64(id))
		}
	}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch unresolved strong refs: %w", err)
	}
	defer rows.Close()

	var out []unresolvedRef
	for rows.Next() {
		var r unresolvedRef
		if err := rows.Scan(&r.rowID, &r.fileID, &r.tokenText); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// moduleCache maps both raw path-translated candidates and a file's own
// declared_module (for Go-style import-path languages) to a file id.
type moduleCache map[string]types.FileID

func buildModuleCache(ctx context.Context, tx *sql.Tx) (moduleCache, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, path, declared_module FROM files`)
	if err != nil {
		return nil, fmt.Errorf("build module cache: %w", err)
	}
	defer rows.Close()

	cache := make(moduleCache)
	for rows.Next() {
		var id int64
		var p string
		var declared sql.NullString
		if err := rows.Scan(&id, &p, &declared); err != nil {
			return nil, err
		}
		cache[p] = types.FileID(id)
		if declared.Valid && declared.String != "" {
			cache[declared.String] = types.FileID(id)
		}
	}
	return cache, rows.Err()
}

// exportCache maps a file id to the exported (non-underscore-prefixed)
// top-level names it defines, per spec §4.8.1's "public = not starting
// with _" rule.
type exportCache map[types.FileID]map[string]string

func buildExportCache(ctx context.Context, tx *sql.Tx) (exportCache, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT file_id, name, def_uid FROM def_facts WHERE kind IN ('function', 'class', 'variable', 'constant', 'struct', 'interface', 'type', 'enum')`)
	if err != nil {
		return nil, fmt.Errorf("build export cache: %w", err)
	}
	defer rows.Close()

	cache := make(exportCache)
	for rows.Next() {
		var fileID int64
		var name, defUID string
		if err := rows.Scan(&fileID, &name, &defUID); err != nil {
			return nil, err
		}
		if strings.HasPrefix(name, "_") {
			continue
		}
		fid := types.FileID(fileID)
		if cache[fid] == nil {
			cache[fid] = make(map[string]string)
		}
		cache[fid][name] = defUID
	}
	return cache, rows.Err()
}

func resolveOneRef(ctx context.Context, tx *sql.Tx, mods moduleCache, exports exportCache, ref unresolvedRef) (string, bool, error) {
	var targetKind, targetUID string
	err := tx.QueryRowContext(ctx,
		`SELECT target_kind, target_uid FROM local_bind_facts WHERE file_id = ? AND name = ? LIMIT 1`,
		int64(ref.fileID), ref.tokenText).Scan(&targetKind, &targetUID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup local bind for ref %d: %w", ref.rowID, err)
	}

	if types.BindTargetKind(targetKind) == types.BindTargetDef {
		return targetUID, true, nil
	}
	if types.BindTargetKind(targetKind) != types.BindTargetImport {
		return "", false, nil
	}

	var sourceLiteral, importedName string
	var family string
	err = tx.QueryRowContext(ctx,
		`SELECT import_facts.source_literal, import_facts.imported_name, files.language_family
		 FROM import_facts JOIN files ON files.id = import_facts.file_id
		 WHERE import_facts.import_uid = ?`, targetUID).Scan(&sourceLiteral, &importedName, &family)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup import fact for ref %d: %w", ref.rowID, err)
	}

	var importerPath string
	if err := tx.QueryRowContext(ctx, `SELECT path FROM files WHERE id = ?`, int64(ref.fileID)).Scan(&importerPath); err != nil {
		return "", false, fmt.Errorf("lookup importer path for ref %d: %w", ref.rowID, err)
	}

	targetFileID, ok := findModuleFile(mods, types.LanguageFamily(family), path.Dir(importerPath), sourceLiteral)
	if !ok {
		return "", false, nil
	}

	defUID, ok := exports[targetFileID][importedName]
	return defUID, ok, nil
}

func findModuleFile(mods moduleCache, family types.LanguageFamily, importerDir, sourceLiteral string) (types.FileID, bool) {
	if id, ok := mods[sourceLiteral]; ok {
		return id, true
	}
	for _, candidate := range Candidates(family, importerDir, sourceLiteral) {
		if id, ok := mods[candidate]; ok {
			return id, true
		}
	}
	return 0, false
}
