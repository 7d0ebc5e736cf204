// Package bgindex implements the Background Indexer: a debounced worker
// pool that drains queued paths into one reconcile -> extract -> resolve ->
// epoch-publish job at a time.
package bgindex

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/codeplane-dev/codeplane/internal/discovery"
	"github.com/codeplane-dev/codeplane/internal/epoch"
	"github.com/codeplane-dev/codeplane/internal/extractor"
	"github.com/codeplane-dev/codeplane/internal/ignore"
	"github.com/codeplane-dev/codeplane/internal/lexical"
	"github.com/codeplane-dev/codeplane/internal/reconcile"
	"github.com/codeplane-dev/codeplane/internal/resolve"
	"github.com/codeplane-dev/codeplane/internal/storage"
	"github.com/codeplane-dev/codeplane/internal/types"
)

// State is the Indexer's lifecycle state, named explicitly per spec §4.11
// (the teacher tracks no equivalent enum; it just runs one goroutine
// per job).
type State string

const (
	StateIdle     State = "IDLE"
	StateIndexing State = "INDEXING"
	StateStopping State = "STOPPING"
	StateStopped  State = "STOPPED"
)

// JobStats is the aggregate result of one debounced job, handed to the
// completion callback.
type JobStats struct {
	FilesAdded    int
	FilesModified int
	FilesRemoved  int
	Errors        []error
	EpochID       int64
}

// Indexer owns the pending-path set, the debounce timer, and the single
// in-flight job. All of its fields below mu except jobWG are only touched
// while mu is held, the same invariant the teacher's eventDebouncer keeps;
// jobWG is added to under mu and waited on and released without it.
type Indexer struct {
	store        *storage.Store
	orchestrator *extractor.Orchestrator
	lexIndex     *lexical.Index
	epochMgr     *epoch.Manager
	ignoreEngine *ignore.Engine
	repoRoot     string
	debounce     time.Duration

	onComplete func(JobStats)

	mu       sync.Mutex
	pending  map[string]bool
	timer    *time.Timer
	state    State
	contexts []types.Context
	jobWG    sync.WaitGroup
}

// New builds an Indexer with an empty routing table. Call SetContexts with
// the discovered Contexts (and again after a full discovery re-run) so that
// queued paths can be routed to a language family and owning context.
func New(store *storage.Store, orch *extractor.Orchestrator, lexIndex *lexical.Index, epochMgr *epoch.Manager, ignoreEngine *ignore.Engine, repoRoot string, debounce time.Duration) *Indexer {
	return &Indexer{
		store:        store,
		orchestrator: orch,
		lexIndex:     lexIndex,
		epochMgr:     epochMgr,
		ignoreEngine: ignoreEngine,
		repoRoot:     repoRoot,
		debounce:     debounce,
		pending:      make(map[string]bool),
		state:        StateIdle,
	}
}

// SetContexts replaces the routing table used to assign queued paths to a
// language family and owning context.
func (idx *Indexer) SetContexts(contexts []types.Context) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.contexts = contexts
}

// SetCompletionCallback installs the hook invoked with aggregate statistics
// once a debounced job finishes.
func (idx *Indexer) SetCompletionCallback(fn func(JobStats)) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.onComplete = fn
}

// State reports the indexer's current lifecycle state.
func (idx *Indexer) State() State {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.state
}

// QueuePaths unions paths into the pending set and (re-)arms the debounce
// timer, so repeated calls during one debounce window coalesce into a
// single job, per spec §5's "net effect publishes as one epoch".
func (idx *Indexer) QueuePaths(ctx context.Context, paths []string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.state == StateStopping || idx.state == StateStopped {
		return
	}
	for _, p := range paths {
		idx.pending[p] = true
	}
	if idx.timer != nil {
		idx.timer.Stop()
	}
	idx.timer = time.AfterFunc(idx.debounce, func() { idx.fire(ctx) })
}

func (idx *Indexer) fire(ctx context.Context) {
	idx.mu.Lock()
	if idx.state == StateStopping || idx.state == StateStopped || len(idx.pending) == 0 {
		idx.mu.Unlock()
		return
	}
	batch := make([]string, 0, len(idx.pending))
	for p := range idx.pending {
		batch = append(batch, p)
	}
	idx.pending = make(map[string]bool)
	idx.state = StateIndexing
	idx.jobWG.Add(1)
	idx.mu.Unlock()

	defer idx.jobWG.Done()

	stats, err := idx.runJob(ctx, batch, false)
	if err != nil {
		stats.Errors = append(stats.Errors, err)
	}

	idx.mu.Lock()
	if idx.state == StateIndexing {
		idx.state = StateIdle
	}
	cb := idx.onComplete
	idx.mu.Unlock()

	if cb != nil {
		cb(stats)
	}
}

// Stop cancels the pending debounce timer, waits for any currently running
// job to finish, and drains the pending set without running a new job.
func (idx *Indexer) Stop() {
	idx.mu.Lock()
	idx.state = StateStopping
	if idx.timer != nil {
		idx.timer.Stop()
	}
	idx.pending = make(map[string]bool)
	idx.mu.Unlock()

	idx.jobWG.Wait()

	idx.mu.Lock()
	idx.state = StateStopped
	idx.mu.Unlock()
}

// RunFullReindex runs one indexing job synchronously, bypassing the
// debounce timer, against the full candidatePaths list with fullWalk
// reconciliation: a stored file absent from candidatePaths is reported
// removed. Coordinator uses this for initialize and reindex_full, which
// must observe the whole repository in one pass rather than the
// incremental per-event batches QueuePaths coalesces.
func (idx *Indexer) RunFullReindex(ctx context.Context, candidatePaths []string) (JobStats, error) {
	return idx.runSync(ctx, candidatePaths, true)
}

// RunIncremental runs one indexing job synchronously over exactly paths,
// bypassing the debounce timer, with delta reconciliation: a path is only
// reported removed when it is named in paths and missing from disk, not
// every stored file outside the set. Coordinator uses this for
// reindex_incremental, which hands the caller stats for that one call
// instead of waiting on QueuePaths's debounce-coalesced callback.
func (idx *Indexer) RunIncremental(ctx context.Context, paths []string) (JobStats, error) {
	return idx.runSync(ctx, paths, false)
}

// runSync runs one job outside the debounce timer, transitioning state
// around it the same way fire() does for a timer-triggered job.
func (idx *Indexer) runSync(ctx context.Context, paths []string, fullWalk bool) (JobStats, error) {
	idx.mu.Lock()
	idx.state = StateIndexing
	idx.jobWG.Add(1)
	idx.mu.Unlock()
	defer idx.jobWG.Done()

	stats, err := idx.runJob(ctx, paths, fullWalk)

	idx.mu.Lock()
	if idx.state == StateIndexing {
		idx.state = StateIdle
	}
	idx.mu.Unlock()

	return stats, err
}

// runJob executes one logical indexing job: reconcile, extract, remove,
// incrementally resolve, and publish a new epoch. fullWalk controls
// whether reconcile also reports stored-but-absent paths as removed (a
// complete repository walk) or only checks the paths named in paths (an
// event-driven delta).
func (idx *Indexer) runJob(ctx context.Context, paths []string, fullWalk bool) (JobStats, error) {
	var stats JobStats

	idx.mu.Lock()
	contexts := idx.contexts
	idx.mu.Unlock()

	changes, err := reconcile.Reconcile(ctx, idx.store, idx.ignoreEngine, idx.repoRoot, paths, fullWalk)
	if err != nil {
		return stats, fmt.Errorf("reconcile batch: %w", err)
	}

	var toExtract []reconcile.ChangedFile
	var toRemove []reconcile.ChangedFile
	for _, c := range changes {
		switch c.Kind {
		case reconcile.ChangeAdded, reconcile.ChangeModified:
			toExtract = append(toExtract, c)
		case reconcile.ChangeRemoved:
			toRemove = append(toRemove, c)
		}
	}

	var affectedFileIDs []types.FileID

	for _, c := range toRemove {
		if err := idx.removeFile(ctx, c); err != nil {
			stats.Errors = append(stats.Errors, fmt.Errorf("remove %s: %w", c.Path, err))
			continue
		}
		stats.FilesRemoved++
	}

	var lexDocs []lexical.Document
	for _, c := range toExtract {
		route := discovery.RouteFile(c.Path, contexts)
		if !route.Routed {
			continue // no owning context claims this family/path; skip per routing invariant
		}

		content, err := os.ReadFile(filepath.Join(idx.repoRoot, filepath.FromSlash(c.Path)))
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Errorf("read %s: %w", c.Path, err))
			continue
		}

		fileID, err := idx.upsertFileRow(ctx, c.Path, route.Family, c.NewHash)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Errorf("upsert file row for %s: %w", c.Path, err))
			continue
		}

		outcomes, err := idx.orchestrator.Run(ctx, []extractor.FileInput{{
			FileID:  fileID,
			UnitID:  route.Context.ID,
			RelPath: c.Path,
			Family:  route.Family,
			Content: content,
		}})
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Errorf("extract %s: %w", c.Path, err))
			continue
		}
		if len(outcomes) == 1 && outcomes[0].Err != nil {
			stats.Errors = append(stats.Errors, fmt.Errorf("extract %s: %w", c.Path, outcomes[0].Err))
			lexDocs = append(lexDocs, lexical.Document{
				Path: c.Path, Content: string(content),
				ContextID: route.Context.ID, FileID: fileID,
			})
			continue
		}

		affectedFileIDs = append(affectedFileIDs, fileID)
		if c.Kind == reconcile.ChangeAdded {
			stats.FilesAdded++
		} else {
			stats.FilesModified++
		}

		symbols, err := idx.loadSymbols(ctx, fileID)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Errorf("load symbols for %s: %w", c.Path, err))
			symbols = nil
		}
		lexDocs = append(lexDocs, lexical.Document{
			Path: c.Path, Content: string(content), Symbols: symbols,
			ContextID: route.Context.ID, FileID: fileID,
		})
	}

	if idx.lexIndex != nil {
		if len(lexDocs) > 0 {
			if err := idx.lexIndex.AddFilesBatch(lexDocs); err != nil {
				stats.Errors = append(stats.Errors, fmt.Errorf("update lexical index: %w", err))
			}
		}
	}

	if len(affectedFileIDs) > 0 {
		if _, err := resolve.ResolveImportsForFiles(ctx, idx.store, affectedFileIDs); err != nil {
			stats.Errors = append(stats.Errors, fmt.Errorf("resolve imports: %w", err))
		}
		if _, err := resolve.ResolveTypeTracedForFiles(ctx, idx.store, affectedFileIDs); err != nil {
			stats.Errors = append(stats.Errors, fmt.Errorf("resolve type traces: %w", err))
		}
	}

	epochID, err := idx.epochMgr.PublishEpoch(ctx, stats.FilesAdded+stats.FilesModified, "")
	if err != nil {
		return stats, fmt.Errorf("publish epoch: %w", err)
	}
	stats.EpochID = epochID

	return stats, nil
}

func (idx *Indexer) removeFile(ctx context.Context, c reconcile.ChangedFile) error {
	if idx.lexIndex != nil {
		if err := idx.lexIndex.RemoveFile(c.Path); err != nil {
			return fmt.Errorf("remove from lexical index: %w", err)
		}
	}
	return idx.store.Session(ctx, storage.ReadWrite, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM type_member_facts WHERE member_def_uid IN (SELECT def_uid FROM def_facts WHERE file_id = ?)`,
			int64(c.FileID)); err != nil {
			return err
		}
		for _, table := range []string{
			"def_facts", "ref_facts", "local_bind_facts", "import_facts",
			"type_annotation_facts", "member_access_facts", "scope_facts",
		} {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE file_id = ?`, table), int64(c.FileID)); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, int64(c.FileID))
		return err
	})
}

// upsertFileRow writes (or refreshes) the Files row that owns fileID and
// returns its id. declared_module is left as whatever was previously
// stored (NULL on first insert): nothing in this repository derives a
// file's declared module.
func (idx *Indexer) upsertFileRow(ctx context.Context, path string, family types.LanguageFamily, contentHash string) (types.FileID, error) {
	var fileID int64
	err := idx.store.Session(ctx, storage.ReadWrite, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO files (path, language_family, content_hash, indexed_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(path) DO UPDATE SET
			   language_family = excluded.language_family,
			   content_hash = excluded.content_hash,
			   indexed_at = excluded.indexed_at`,
			path, string(family), contentHash, time.Now().UTC()); err != nil {
			return fmt.Errorf("upsert file row: %w", err)
		}
		return tx.QueryRowContext(ctx, `SELECT id FROM files WHERE path = ?`, path).Scan(&fileID)
	})
	return types.FileID(fileID), err
}

func (idx *Indexer) loadSymbols(ctx context.Context, fileID types.FileID) ([]string, error) {
	var symbols []string
	err := idx.store.Session(ctx, storage.ReadOnly, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT name FROM def_facts WHERE file_id = ?`, int64(fileID))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			symbols = append(symbols, name)
		}
		return rows.Err()
	})
	return symbols, err
}
