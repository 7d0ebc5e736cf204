package resolve

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/codeplane-dev/codeplane/internal/storage"
	"github.com/codeplane-dev/codeplane/internal/types"
)

// TypeTraceStats reports one type-traced resolution run, grounded on the
// original indexer's TypeTracedStats.
type TypeTraceStats struct {
	AccessesProcessed  int
	AccessesResolved   int
	AccessesPartial    int
	AccessesUnresolved int
	RefsUpgraded       int
}

const defaultTypeTraceBatchLimit = 10000

// ResolveTypeTracedAll runs Pass 3 over every unresolved member access in
// the repo, up to a batch cap.
func ResolveTypeTracedAll(ctx context.Context, store *storage.Store) (TypeTraceStats, error) {
	return resolveTypeTraced(ctx, store, nil, defaultTypeTraceBatchLimit)
}

// ResolveTypeTracedForFiles runs Pass 3 restricted to accesses in fileIDs.
func ResolveTypeTracedForFiles(ctx context.Context, store *storage.Store, fileIDs []types.FileID) (TypeTraceStats, error) {
	if len(fileIDs) == 0 {
		return TypeTraceStats{}, nil
	}
	return resolveTypeTraced(ctx, store, fileIDs, 0)
}

type unresolvedAccess struct {
	rowID       int64
	fileID      types.FileID
	scopeID     sql.NullInt64
	receiver    string
	declaredTy  sql.NullString
	memberChain string
	startLine   int64
}

type memberKey struct {
	parentType string
	memberName string
}

type memberInfo struct {
	defUID   string
	kind     string
	baseType sql.NullString
}

func resolveTypeTraced(ctx context.Context, store *storage.Store, fileIDs []types.FileID, limit int) (TypeTraceStats, error) {
	var stats TypeTraceStats

	err := store.Session(ctx, storage.ReadWrite, func(ctx context.Context, tx *sql.Tx) error {
		accesses, err := fetchUnresolvedAccesses(ctx, tx, fileIDs, limit)
		if err != nil {
			return err
		}
		stats.AccessesProcessed = len(accesses)
		if len(accesses) == 0 {
			return nil
		}

		typeMap, err := buildTypeAnnotationCache(ctx, tx)
		if err != nil {
			return err
		}
		memberMap, err := buildTypeMemberCache(ctx, tx)
		if err != nil {
			return err
		}

		updateAccess, err := tx.PrepareContext(ctx,
			`UPDATE member_access_facts SET resolved_type_path = ?, final_target_def_uid = ?, resolution_method = ?, resolution_confidence = ? WHERE id = ?`)
		if err != nil {
			return err
		}
		defer updateAccess.Close()

		upgradeRef, err := tx.PrepareContext(ctx,
			`UPDATE ref_facts SET ref_tier = ?, target_def_uid = ? WHERE file_id = ? AND start_line = ? AND token_text = ?`)
		if err != nil {
			return err
		}
		defer upgradeRef.Close()

		for _, acc := range accesses {
			result, err := resolveOneAccess(ctx, acc, typeMap, memberMap, updateAccess, upgradeRef)
			if err != nil {
				return err
			}
			switch result {
			case "resolved":
				stats.AccessesResolved++
				stats.RefsUpgraded++
			case "partial":
				stats.AccessesPartial++
			default:
				stats.AccessesUnresolved++
			}
		}
		return nil
	})

	return stats, err
}

func fetchUnresolvedAccesses(ctx context.Context, tx *sql.Tx, fileIDs []types.FileID, limit int) ([]unresolvedAccess, error) {
	query := `SELECT id, file_id, scope_id, receiver_name, receiver_declared_type, member_chain, start_line
	          FROM member_access_facts WHERE final_target_def_uid IS NULL`
	var args []any
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
		return nil, fmt.Errorf("fetch unresolved member accesses: %w", err)
	}
	defer rows.Close()

	var out []unresolvedAccess
	for rows.Next() {
		var a unresolvedAccess
		if err := rows.Scan(&a.rowID, &a.fileID, &a.scopeID, &a.receiver, &a.declaredTy, &a.memberChain, &a.startLine); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// typeAnnotationCache maps (target name, scope id or 0 for file scope) to
// a declared base type, mirroring the original's (name, scope_id) cache
// with its "also add without scope for fallback" rule.
type typeAnnotationCache map[[2]string]string

func buildTypeAnnotationCache(ctx context.Context, tx *sql.Tx) (typeAnnotationCache, error) {
	rows, err := tx.QueryContext(ctx, `SELECT target_name, scope_id, base_type FROM type_annotation_facts`)
	if err != nil {
		return nil, fmt.Errorf("build type annotation cache: %w", err)
	}
	defer rows.Close()

	cache := make(typeAnnotationCache)
	for rows.Next() {
		var name, baseType string
		var scopeID sql.NullInt64
		if err := rows.Scan(&name, &scopeID, &baseType); err != nil {
			return nil, err
		}
		scopeKey := ""
		if scopeID.Valid {
			scopeKey = fmt.Sprint(scopeID.Int64)
		}
		cache[[2]string{name, scopeKey}] = baseType
		if scopeKey != "" {
			if _, ok := cache[[2]string{name, ""}]; !ok {
				cache[[2]string{name, ""}] = baseType
			}
		}
	}
	return cache, rows.Err()
}

func buildTypeMemberCache(ctx context.Context, tx *sql.Tx) (map[memberKey]memberInfo, error) {
	rows, err := tx.QueryContext(ctx, `SELECT parent_type_name, member_name, member_kind, member_def_uid, base_type FROM type_member_facts`)
	if err != nil {
		return nil, fmt.Errorf("build type member cache: %w", err)
	}
	defer rows.Close()

	cache := make(map[memberKey]memberInfo)
	for rows.Next() {
		var k memberKey
		var info memberInfo
		if err := rows.Scan(&k.parentType, &k.memberName, &info.kind, &info.defUID, &info.baseType); err != nil {
			return nil, err
		}
		cache[k] = info
	}
	return cache, rows.Err()
}

func resolveOneAccess(
	ctx context.Context,
	acc unresolvedAccess,
	typeMap typeAnnotationCache,
	memberMap map[memberKey]memberInfo,
	updateAccess, upgradeRef *sql.Stmt,
) (string, error) {
	receiverType := acc.declaredTy.String
	if receiverType == "" {
		scopeKey := ""
		if acc.scopeID.Valid {
			scopeKey = fmt.Sprint(acc.scopeID.Int64)
		}
		receiverType = typeMap[[2]string{acc.receiver, scopeKey}]
		if receiverType == "" {
			receiverType = typeMap[[2]string{acc.receiver, ""}]
		}
	}
	if receiverType == "" {
		return "unresolved", nil
	}

	currentType := receiverType
	chainParts := strings.Split(acc.memberChain, ".")
	typePath := []string{receiverType}
	resolvedDepth := 0

walk:
	for i, memberName := range chainParts {
		member, ok := memberMap[memberKey{parentType: currentType, memberName: memberName}]
		if !ok {
			break
		}
		resolvedDepth = i + 1
		typePath = append(typePath, memberName)

		if i == len(chainParts)-1 {
			resolvedPath := strings.Join(typePath, ".")
			if _, err := updateAccess.ExecContext(ctx, resolvedPath, member.defUID, string(types.ResolutionTypeTraced), 1.0, acc.rowID); err != nil {
				return "", fmt.Errorf("update member access %d: %w", acc.rowID, err)
			}
			if _, err := upgradeRef.ExecContext(ctx, string(types.RefTierProven), member.defUID, int64(acc.fileID), acc.startLine, memberName); err != nil {
				return "", fmt.Errorf("upgrade ref for access %d: %w", acc.rowID, err)
			}
			return "resolved", nil
		}

		if !member.baseType.Valid || member.baseType.String == "" {
			// A method, or a field with no declared type: the chain can't
			// continue past here.
			break walk
		}
		currentType = member.baseType.String
	}

	if resolvedDepth > 0 {
		resolvedPath := strings.Join(typePath[:resolvedDepth+1], ".")
		confidence := float64(resolvedDepth) / float64(len(chainParts))
		if _, err := updateAccess.ExecContext(ctx, resolvedPath, nil, string(types.ResolutionTypeTraced), confidence, acc.rowID); err != nil {
			return "", fmt.Errorf("update partial member access %d: %w", acc.rowID, err)
		}
		return "partial", nil
	}
	return "unresolved", nil
}
