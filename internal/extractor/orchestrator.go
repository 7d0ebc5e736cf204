package extractor

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/codeplane-dev/codeplane/internal/storage"
	"github.com/codeplane-dev/codeplane/internal/types"
)

// FileInput is one file the orchestrator's batch extracts: its assigned
// storage FileID (the caller — the background indexer — owns Files-table
// upsert), owning context, repo-relative path for DefUID/ImportUID
// derivation, and the bytes to parse.
type FileInput struct {
	FileID  types.FileID
	UnitID  types.ContextID
	RelPath string
	Family  types.LanguageFamily
	Content []byte
}

// FileOutcome reports one file's extraction result. Err is non-nil exactly
// when the file failed to parse or query; per spec §4.5 that failure is
// recorded and the file is skipped, not treated as a batch-fatal error.
type FileOutcome struct {
	FileID        types.FileID
	RelPath       string
	ContentHash   string
	InterfaceHash string
	Err           error
}

// Orchestrator runs Extractor.ExtractFile over a batch of files with a
// bounded worker pool, then lands every successful result in one
// transaction via the Storage Layer's bulk writer.
type Orchestrator struct {
	extractor *Extractor
	store     *storage.Store
	workers   int
}

// NewOrchestrator builds an Orchestrator. workers <= 1 runs the batch
// sequentially; workers > 1 fans out via errgroup.Group.SetLimit, matching
// spec §4.5's two explicit modes.
func NewOrchestrator(extractor *Extractor, store *storage.Store, workers int) *Orchestrator {
	return &Orchestrator{extractor: extractor, store: store, workers: workers}
}

// Run extracts every input and writes the successful results to storage in
// a single read-write session. It returns one FileOutcome per input, in
// input order, and a non-nil error only for a storage-layer failure (the
// per-file parse failures named above are reported through FileOutcome.Err,
// not the returned error).
func (o *Orchestrator) Run(ctx context.Context, inputs []FileInput) ([]FileOutcome, error) {
	results := make([]*FileResult, len(inputs))
	outcomes := make([]FileOutcome, len(inputs))

	extractOne := func(i int) error {
		in := inputs[i]
		res, err := o.extractor.ExtractFile(in.FileID, in.UnitID, in.RelPath, in.Family, in.Content)
		outcomes[i] = FileOutcome{FileID: in.FileID, RelPath: in.RelPath}
		if err != nil {
			outcomes[i].Err = err
			return nil // a single file's parse failure never aborts the batch
		}
		results[i] = res
		outcomes[i].ContentHash = res.ContentHash
		outcomes[i].InterfaceHash = res.InterfaceHash
		return nil
	}

	if o.workers > 1 {
		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(o.workers)
		for i := range inputs {
			i := i
			g.Go(func() error { return extractOne(i) })
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i := range inputs {
			if err := extractOne(i); err != nil {
				return nil, err
			}
		}
	}

	if err := o.store.Session(ctx, storage.ReadWrite, func(ctx context.Context, tx *sql.Tx) error {
		w := storage.NewBulkWriter(tx)
		for i, res := range results {
			if res == nil {
				continue
			}
			if err := writeFileResult(ctx, tx, w, res); err != nil {
				return fmt.Errorf("write results for %s: %w", inputs[i].RelPath, err)
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	return outcomes, nil
}

func writeFileResult(ctx context.Context, tx *sql.Tx, w *storage.BulkWriter, res *FileResult) error {
	fileID := res.FileID

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM type_member_facts WHERE member_def_uid IN (SELECT def_uid FROM def_facts WHERE file_id = ?)`, fileID); err != nil {
		return err
	}
	for _, table := range []string{
		"def_facts", "ref_facts", "local_bind_facts", "import_facts",
		"type_annotation_facts", "member_access_facts", "scope_facts",
	} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE file_id = ?`, table), fileID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if !res.Parsed {
		return nil
	}

	scopeOrdinalToID, err := writeScopes(ctx, tx, w, res.Scopes)
	if err != nil {
		return err
	}

	defRows := make([][]any, len(res.Defs))
	for i, d := range res.Defs {
		defRows[i] = []any{d.DefUID, d.FileID, d.UnitID, string(d.Kind), d.Name, d.LexicalPath,
			d.Span.StartLine, d.Span.StartCol, d.Span.EndLine, d.Span.EndCol, d.Docstring}
	}
	if err := w.InsertMany(ctx, "def_facts",
		[]string{"def_uid", "file_id", "unit_id", "kind", "name", "lexical_path",
			"start_line", "start_col", "end_line", "end_col", "docstring"}, defRows); err != nil {
		return err
	}

	refRows := make([][]any, len(res.Refs))
	for i, r := range res.Refs {
		refRows[i] = []any{r.FileID, r.TokenText, r.Span.StartLine, r.Span.StartCol, r.Span.EndLine, r.Span.EndCol,
			string(r.Role), string(r.RefTier), string(r.Certainty), r.TargetDefUID}
	}
	if err := w.InsertMany(ctx, "ref_facts",
		[]string{"file_id", "token_text", "start_line", "start_col", "end_line", "end_col",
			"role", "ref_tier", "certainty", "target_def_uid"}, refRows); err != nil {
		return err
	}

	bindRows := make([][]any, len(res.Binds))
	for i, b := range res.Binds {
		bindRows[i] = []any{b.FileID, b.Name, string(b.TargetKind), b.TargetUID}
	}
	if err := w.InsertMany(ctx, "local_bind_facts",
		[]string{"file_id", "name", "target_kind", "target_uid"}, bindRows); err != nil {
		return err
	}

	importRows := make([][]any, len(res.Imports))
	for i, imp := range res.Imports {
		importRows[i] = []any{imp.ImportUID, imp.FileID, imp.UnitID, imp.ImportedName, imp.Alias,
			imp.SourceLiteral, imp.ResolvedPath, string(imp.Kind), string(imp.Certainty),
			imp.Span.StartLine, imp.Span.StartCol, imp.Span.EndLine, imp.Span.EndCol}
	}
	if err := w.InsertMany(ctx, "import_facts",
		[]string{"import_uid", "file_id", "unit_id", "imported_name", "alias", "source_literal",
			"resolved_path", "import_kind", "certainty", "start_line", "start_col", "end_line", "end_col"}, importRows); err != nil {
		return err
	}

	taRows := make([][]any, len(res.TypeAnnotations))
	for i, ta := range res.TypeAnnotations {
		taRows[i] = []any{ta.FileID, resolveScopeOrdinal(scopeOrdinalToID, ta.ScopeID), ta.TargetName, ta.BaseType}
	}
	if err := w.InsertMany(ctx, "type_annotation_facts",
		[]string{"file_id", "scope_id", "target_name", "base_type"}, taRows); err != nil {
		return err
	}

	maRows := make([][]any, len(res.MemberAccesses))
	for i, ma := range res.MemberAccesses {
		maRows[i] = []any{ma.FileID, resolveScopeOrdinal(scopeOrdinalToID, ma.ScopeID), ma.ReceiverName,
			ma.ReceiverDeclaredType, ma.MemberChain, ma.Span.StartLine, ma.Span.StartCol, ma.Span.EndLine, ma.Span.EndCol,
			ma.ResolvedTypePath, ma.FinalTargetDefUID, string(ma.ResolutionMethod), ma.ResolutionConfidence}
	}
	if err := w.InsertMany(ctx, "member_access_facts",
		[]string{"file_id", "scope_id", "receiver_name", "receiver_declared_type", "member_chain",
			"start_line", "start_col", "end_line", "end_col",
			"resolved_type_path", "final_target_def_uid", "resolution_method", "resolution_confidence"}, maRows); err != nil {
		return err
	}

	tmRows := make([][]any, len(res.TypeMembers))
	for i, tm := range res.TypeMembers {
		tmRows[i] = []any{tm.ParentTypeName, tm.MemberName, string(tm.MemberKind), tm.MemberDefUID, tm.BaseType}
	}
	if err := w.InsertMany(ctx, "type_member_facts",
		[]string{"parent_type_name", "member_name", "member_kind", "member_def_uid", "base_type"}, tmRows); err != nil {
		return err
	}

	return nil
}

// writeScopes inserts scopes (which reference their parent by a 1-based
// ordinal into this same slice — see FileResult's doc comment) and returns
// the ordinal -> real scope_facts.id mapping once ids are known. Rows are
// first inserted with parent_id NULL, then patched in a second pass once
// every row's real id is known, since extraction order doesn't guarantee a
// parent's row is inserted before its child's.
func writeScopes(ctx context.Context, tx *sql.Tx, w *storage.BulkWriter, scopes []types.ScopeFact) (map[int64]int64, error) {
	if len(scopes) == 0 {
		return nil, nil
	}

	rows := make([][]any, len(scopes))
	for i, s := range scopes {
		rows[i] = []any{s.FileID, string(s.Kind), s.Span.StartLine, s.Span.StartCol, s.Span.EndLine, s.Span.EndCol}
	}
	ids, err := w.InsertManyReturningIDs(ctx, "scope_facts",
		[]string{"file_id", "kind", "start_line", "start_col", "end_line", "end_col"}, rows)
	if err != nil {
		return nil, err
	}

	ordinalToID := make(map[int64]int64, len(ids))
	for i, id := range ids {
		ordinalToID[int64(i+1)] = id
	}

	for i, s := range scopes {
		if s.ParentID == nil {
			continue
		}
		parentID, ok := ordinalToID[*s.ParentID]
		if !ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE scope_facts SET parent_id = ? WHERE id = ?`, parentID, ids[i]); err != nil {
			return nil, fmt.Errorf("patch scope parent: %w", err)
		}
	}

	return ordinalToID, nil
}

func resolveScopeOrdinal(ordinalToID map[int64]int64, ordinal *int64) any {
	if ordinal == nil {
		return nil
	}
	id, ok := ordinalToID[*ordinal]
	if !ok {
		return nil
	}
	return id
}
