package filestate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/codeplane-dev/codeplane/internal/storage"
	"github.com/codeplane-dev/codeplane/internal/types"
)

// Service computes FileState and mutation-gate decisions against the facts
// tables the extractor and resolver passes maintain. It holds no cache of
// its own; every call re-derives freshness from disk and certainty from the
// current fact rows, the way spec §4.9 describes for the flat model.
type Service struct {
	store    *storage.Store
	repoRoot string
}

// New builds a Service rooted at repoRoot, the directory file paths in the
// files table are relative to.
func New(store *storage.Store, repoRoot string) *Service {
	return &Service{store: store, repoRoot: repoRoot}
}

// GetFileState computes the current (freshness, certainty) for one file
// within contextID.
func (s *Service) GetFileState(ctx context.Context, fileID types.FileID, contextID types.ContextID) (types.FileState, error) {
	states, err := s.GetFileStatesBatch(ctx, []types.FileID{fileID}, contextID)
	if err != nil {
		return types.FileState{}, err
	}
	state, ok := states[fileID]
	if !ok {
		return types.FileState{FileID: fileID, ContextID: contextID, Freshness: types.FreshnessUnindexed, Certainty: types.CertaintyUncertain}, nil
	}
	return state, nil
}

// GetFileStatesBatch computes FileState for every id in fileIDs, memoizing
// within the call the way the original per-request cache did, so a caller
// that lists the same file twice (e.g. once as a target and once as a
// dependency) only pays for one set of queries.
func (s *Service) GetFileStatesBatch(ctx context.Context, fileIDs []types.FileID, contextID types.ContextID) (map[types.FileID]types.FileState, error) {
	out := make(map[types.FileID]types.FileState, len(fileIDs))
	if len(fileIDs) == 0 {
		return out, nil
	}

	memo := make(map[types.FileID]types.FileState, len(fileIDs))
	err := s.store.Session(ctx, storage.ReadOnly, func(ctx context.Context, tx *sql.Tx) error {
		for _, fileID := range fileIDs {
			if state, ok := memo[fileID]; ok {
				out[fileID] = state
				continue
			}
			state, err := s.computeState(ctx, tx, fileID, contextID)
			if err != nil {
				return fmt.Errorf("compute file state for file %d: %w", fileID, err)
			}
			memo[fileID] = state
			out[fileID] = state
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GateResult is CheckMutationGate's verdict across a set of files.
type GateResult struct {
	Allowed       []types.FileID
	NeedsDecision []types.FileID
	Blocked       []types.FileID
	States        map[types.FileID]types.FileState
	Decisions     map[types.FileID]types.GateDecision
}

// AllAllowed reports whether every file in the request cleared the gate
// outright, with no blocked or undecided files.
func (g GateResult) AllAllowed() bool {
	return len(g.Blocked) == 0 && len(g.NeedsDecision) == 0
}

// CheckMutationGate classifies fileIDs per spec §4.9's mapping: CLEAN and
// CERTAIN files are allowed outright, CLEAN and UNCERTAIN files need an
// explicit caller decision, and anything UNINDEXED is blocked until it is
// indexed.
func (s *Service) CheckMutationGate(ctx context.Context, fileIDs []types.FileID, contextID types.ContextID) (GateResult, error) {
	states, err := s.GetFileStatesBatch(ctx, fileIDs, contextID)
	if err != nil {
		return GateResult{}, err
	}

	result := GateResult{States: states, Decisions: make(map[types.FileID]types.GateDecision, len(fileIDs))}
	for _, fileID := range fileIDs {
		state := states[fileID]
		switch {
		case state.Freshness == types.FreshnessUnindexed:
			result.Blocked = append(result.Blocked, fileID)
			result.Decisions[fileID] = types.GateBlocked
		case state.Certainty == types.CertaintyUncertain:
			result.NeedsDecision = append(result.NeedsDecision, fileID)
			result.Decisions[fileID] = types.GateNeedsDecision
		default:
			result.Allowed = append(result.Allowed, fileID)
			result.Decisions[fileID] = types.GateAllowed
		}
	}
	return result, nil
}

func (s *Service) computeState(ctx context.Context, tx *sql.Tx, fileID types.FileID, contextID types.ContextID) (types.FileState, error) {
	state := types.FileState{FileID: fileID, ContextID: contextID, Freshness: types.FreshnessUnindexed, Certainty: types.CertaintyUncertain}

	var path, storedHash string
	var indexedAt sql.NullTime
	err := tx.QueryRowContext(ctx, `SELECT path, content_hash, indexed_at FROM files WHERE id = ?`, int64(fileID)).
		Scan(&path, &storedHash, &indexedAt)
	if err == sql.ErrNoRows {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("lookup file %d: %w", fileID, err)
	}
	if !indexedAt.Valid {
		return state, nil
	}

	diskHash, ok, err := s.hashOnDisk(path)
	if err != nil {
		return state, err
	}
	if !ok || diskHash != storedHash {
		return state, nil
	}

	state.Freshness = types.FreshnessClean

	flags, err := s.ambiguityFlags(ctx, tx, fileID, path)
	if err != nil {
		return state, err
	}
	state.Flags = flags
	if len(flags) == 0 {
		state.Certainty = types.CertaintyCertain
	}
	return state, nil
}

func (s *Service) hashOnDisk(relPath string) (string, bool, error) {
	content, err := os.ReadFile(filepath.Join(s.repoRoot, filepath.FromSlash(relPath)))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read %s: %w", relPath, err)
	}
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:]), true, nil
}

func (s *Service) ambiguityFlags(ctx context.Context, tx *sql.Tx, fileID types.FileID, path string) ([]types.AmbiguityFlag, error) {
	var flags []types.AmbiguityFlag

	has, err := s.hasUnresolvedStrongRef(ctx, tx, fileID)
	if err != nil {
		return nil, err
	}
	if has {
		flags = append(flags, types.FlagUnresolvedStrongRef)
	}

	has, err = s.hasPartialTypeWalk(ctx, tx, fileID)
	if err != nil {
		return nil, err
	}
	if has {
		flags = append(flags, types.FlagPartialTypeWalk)
	}

	has, err = s.hasMissingImportTarget(ctx, tx, fileID)
	if err != nil {
		return nil, err
	}
	if has {
		flags = append(flags, types.FlagMissingImportTarget)
	}

	has, err = s.hasAmbiguousExport(ctx, tx, fileID, path)
	if err != nil {
		return nil, err
	}
	if has {
		flags = append(flags, types.FlagAmbiguousExport)
	}

	return flags, nil
}

func (s *Service) hasUnresolvedStrongRef(ctx context.Context, tx *sql.Tx, fileID types.FileID) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ref_facts WHERE file_id = ? AND ref_tier = ? AND target_def_uid IS NULL`,
		int64(fileID), string(types.RefTierStrong)).Scan(&n)
	return n > 0, err
}

func (s *Service) hasPartialTypeWalk(ctx context.Context, tx *sql.Tx, fileID types.FileID) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM member_access_facts
		 WHERE file_id = ? AND resolved_type_path IS NOT NULL AND final_target_def_uid IS NULL`,
		int64(fileID)).Scan(&n)
	return n > 0, err
}

func (s *Service) hasMissingImportTarget(ctx context.Context, tx *sql.Tx, fileID types.FileID) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM import_facts WHERE file_id = ? AND resolved_path IS NULL AND import_kind != 'config_file_ref'`,
		int64(fileID)).Scan(&n)
	return n > 0, err
}

// exportableKinds mirrors the resolver's own export cache: only these kinds
// can be the target of a cross-file import, so only a collision among them
// can make an import ambiguous.
var exportableKinds = []string{"function", "class", "variable", "constant", "struct", "interface", "type", "enum"}

// hasAmbiguousExport flags a file when another file shares its declared
// module and also exports one of the same top-level names: an importer
// resolving that name against the module would have no way to pick between
// them.
func (s *Service) hasAmbiguousExport(ctx context.Context, tx *sql.Tx, fileID types.FileID, path string) (bool, error) {
	var declaredModule sql.NullString
	if err := tx.QueryRowContext(ctx, `SELECT declared_module FROM files WHERE id = ?`, int64(fileID)).Scan(&declaredModule); err != nil {
		return false, err
	}
	if !declaredModule.Valid || declaredModule.String == "" {
		return false, nil
	}

	siblingRows, err := tx.QueryContext(ctx,
		`SELECT id FROM files WHERE declared_module = ? AND id != ?`, declaredModule.String, int64(fileID))
	if err != nil {
		return false, err
	}
	var siblings []int64
	for siblingRows.Next() {
		var id int64
		if err := siblingRows.Scan(&id); err != nil {
			siblingRows.Close()
			return false, err
		}
		siblings = append(siblings, id)
	}
	siblingRows.Close()
	if err := siblingRows.Err(); err != nil {
		return false, err
	}
	if len(siblings) == 0 {
		return false, nil
	}

	ownNames, err := s.exportedNames(ctx, tx, fileID)
	if err != nil {
		return false, err
	}
	if len(ownNames) == 0 {
		return false, nil
	}

	for _, sibling := range siblings {
		siblingNames, err := s.exportedNames(ctx, tx, types.FileID(sibling))
		if err != nil {
			return false, err
		}
		for name := range siblingNames {
			if ownNames[name] {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *Service) exportedNames(ctx context.Context, tx *sql.Tx, fileID types.FileID) (map[string]bool, error) {
	placeholders := make([]string, len(exportableKinds))
	args := make([]any, 0, len(exportableKinds)+1)
	args = append(args, int64(fileID))
	for i, k := range exportableKinds {
		placeholders[i] = "?"
		args = append(args, k)
	}
	query := fmt.Sprintf(`SELECT name FROM def_facts WHERE file_id = ? AND kind IN (%s)`, strings.Join(placeholders, ","))

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if strings.HasPrefix(name, "_") {
			continue
		}
		names[name] = true
	}
	return names, rows.Err()
}
