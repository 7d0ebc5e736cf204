// Package coordinator implements the top-level Coordinator: the one struct
// that owns every engine component (storage, extractor, resolvers, lexical
// index, epoch manager, background indexer, watcher, file state service,
// query surface, and context discovery) and exposes the tool-facing API a
// server or MCP layer calls into. Per-process mutable state lives here as
// component fields, never as package-level globals.
package coordinator

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/codeplane-dev/codeplane/internal/bgindex"
	"github.com/codeplane-dev/codeplane/internal/config"
	"github.com/codeplane-dev/codeplane/internal/debug"
	"github.com/codeplane-dev/codeplane/internal/discovery"
	"github.com/codeplane-dev/codeplane/internal/epoch"
	cperrors "github.com/codeplane-dev/codeplane/internal/errors"
	"github.com/codeplane-dev/codeplane/internal/extractor"
	"github.com/codeplane-dev/codeplane/internal/filestate"
	"github.com/codeplane-dev/codeplane/internal/ignore"
	"github.com/codeplane-dev/codeplane/internal/lexical"
	"github.com/codeplane-dev/codeplane/internal/query"
	"github.com/codeplane-dev/codeplane/internal/resolve"
	"github.com/codeplane-dev/codeplane/internal/storage"
	"github.com/codeplane-dev/codeplane/internal/tsparser"
	"github.com/codeplane-dev/codeplane/internal/types"
	"github.com/codeplane-dev/codeplane/internal/watch"
)

// Coordinator owns every long-lived component for one repository and
// serializes discovery/reindex calls against its own contexts snapshot.
type Coordinator struct {
	cfg      *config.Config
	repoRoot string

	store        *storage.Store
	ignoreEngine *ignore.Engine
	parser       *tsparser.Parser
	orchestrator *extractor.Orchestrator
	lexIndex     *lexical.Index
	epochMgr     *epoch.Manager
	indexer      *bgindex.Indexer
	watcher      *watch.Watcher
	fileState    *filestate.Service
	querySvc     *query.Service
	probe        *discovery.Probe

	mu             sync.RWMutex
	contexts       []types.Context
	pendingWarning string

	watchCancel context.CancelFunc
	watchWG     sync.WaitGroup
}

// New wires every component from cfg. It opens the storage database and the
// lexical index directory under cfg's resolved index path but does not
// start the watcher or run any indexing; call Start and Initialize for that.
func New(cfg *config.Config) (*Coordinator, error) {
	repoRoot := cfg.Project.Root
	if repoRoot == "" {
		repoRoot = "."
	}

	indexPath := cfg.Index.IndexPath
	if indexPath == "" {
		indexPath = filepath.Join(".codeplane", "index.db")
	}
	dbPath := filepath.Join(repoRoot, filepath.FromSlash(indexPath))
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	store, err := storage.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	ign, err := ignore.New(repoRoot, cfg.Index.RespectGitignore, cfg.Exclude)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build ignore engine: %w", err)
	}

	lexDir := filepath.Join(filepath.Dir(dbPath), "tantivy")
	lexIndex, err := lexical.Open(lexDir)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open lexical index: %w", err)
	}

	parser := tsparser.New()
	cache := tsparser.NewParseCache()
	ext := extractor.New(parser, cache)

	workers := cfg.Indexer.Workers
	if workers <= 0 {
		workers = runtime.NumCPU() - 1
		if workers < 1 {
			workers = 1
		}
	}
	orch := extractor.NewOrchestrator(ext, store, workers)

	pollPeriod := time.Duration(cfg.Server.PollIntervalSec*1000) * time.Millisecond
	if pollPeriod <= 0 {
		pollPeriod = 50 * time.Millisecond
	}
	epochMgr := epoch.New(store, lexIndex.Reload, pollPeriod)

	debounce := time.Duration(cfg.Index.WatchDebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = time.Duration(cfg.Server.DebounceSec*1000) * time.Millisecond
	}
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	indexer := bgindex.New(store, orch, lexIndex, epochMgr, ign, repoRoot, debounce)

	watcher := watch.New(repoRoot, ign, pollPeriod, 1024)

	return &Coordinator{
		cfg:          cfg,
		repoRoot:     repoRoot,
		store:        store,
		ignoreEngine: ign,
		parser:       parser,
		orchestrator: orch,
		lexIndex:     lexIndex,
		epochMgr:     epochMgr,
		indexer:      indexer,
		watcher:      watcher,
		fileState:    filestate.New(store, repoRoot),
		querySvc:     query.New(store, lexIndex, repoRoot),
		probe:        discovery.NewProbe(repoRoot, discovery.DefaultProbeConfig(), parser, ign),
	}, nil
}

// Start runs the integrity checker against the existing database (recovering
// by wiping and letting the next Initialize rebuild everything if damage is
// found), then starts the file watcher and begins forwarding its events into
// the background indexer's debounced queue. Initialize runs after Start (the
// server's Start calls this method before the daemon calls Initialize), so a
// recovery wipe is followed by a full rebuild; until Initialize installs a
// routing table, queued paths are not routed and are skipped.
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.checkIntegrity(ctx); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}

	if err := c.watcher.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	c.watchCancel = cancel
	c.watchWG.Add(1)
	go c.forwardWatchEvents(watchCtx)
	return nil
}

// checkIntegrity runs the storage layer's structural checks (FK orphans,
// files gone missing on disk, lexical/storage doc-count drift) against the
// existing database and recovers by wiping every table when damage is found,
// rather than trying to patch fact tables that may be inconsistent with each
// other. Recovery forces a clean full reindex the next time Initialize runs,
// since Reinit leaves the contexts table empty along with everything else.
func (c *Coordinator) checkIntegrity(ctx context.Context) error {
	var fileCount int64
	if err := c.store.Session(ctx, storage.ReadOnly, func(ctx context.Context, tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&fileCount)
	}); err != nil {
		return fmt.Errorf("count files: %w", err)
	}

	tolerance := int64(5)
	if pctTolerance := int64(float64(fileCount) * c.cfg.Index.DriftTolerancePct / 100); pctTolerance > tolerance {
		tolerance = pctTolerance
	}

	report, err := c.store.IntegrityCheck(ctx, c.repoRoot, int64(c.lexIndex.DocCount()), tolerance)
	if err != nil {
		return fmt.Errorf("run integrity check: %w", err)
	}
	if report.Clean() {
		return nil
	}

	integrityErr := cperrors.NewIntegrityError(fmt.Sprintf(
		"orphaned_refs=%d orphaned_defs=%d missing_on_disk=%d lexical_drift=%d",
		report.OrphanedRefFacts, report.OrphanedDefFacts, len(report.FilesMissingOnDisk), report.LexicalDocCountDrift,
	), nil)
	debug.Log("coordinator", "integrity check failed, recovering: %v", integrityErr)

	if err := c.store.Reinit(ctx); err != nil {
		return fmt.Errorf("reinit after integrity failure: %w", err)
	}

	c.mu.Lock()
	c.pendingWarning = integrityErr.Error() + " (recovered: database wiped, run initialize to rebuild)"
	c.mu.Unlock()
	return nil
}

// PopPendingWarning returns and clears a one-time warning raised outside any
// single API call (currently: integrity-check recovery), instead of failing
// the call that happened to notice the damage. The server's /status handler
// is its only caller, so the warning reaches clients through the status
// response; search and the other query calls do not carry it.
func (c *Coordinator) PopPendingWarning() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	warning := c.pendingWarning
	c.pendingWarning = ""
	return warning, warning != ""
}

// Stop stops the watcher, drains the indexer, and closes storage and the
// lexical index. Safe to call once after Start.
func (c *Coordinator) Stop() {
	if c.watchCancel != nil {
		c.watchCancel()
	}
	c.watcher.Stop()
	c.watchWG.Wait()
	c.indexer.Stop()

	if err := c.lexIndex.Close(); err != nil {
		debug.Log("coordinator", "close lexical index: %v", err)
	}
	if err := c.store.Close(); err != nil {
		debug.Log("coordinator", "close storage: %v", err)
	}
}

func (c *Coordinator) forwardWatchEvents(ctx context.Context) {
	defer c.watchWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.watcher.Events():
			if !ok {
				return
			}
			c.indexer.QueuePaths(ctx, []string{ev.Path})
		}
	}
}

// Contexts returns the coordinator's current routing table.
func (c *Coordinator) Contexts() []types.Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.Context, len(c.contexts))
	copy(out, c.contexts)
	return out
}

func (c *Coordinator) setContexts(contexts []types.Context) {
	c.mu.Lock()
	c.contexts = contexts
	c.mu.Unlock()
	c.indexer.SetContexts(contexts)
}

// InitResult is initialize()'s report per spec §6.
type InitResult struct {
	ContextsDiscovered int
	ContextsValid      int
	ContextsFailed     int
	FilesIndexed       int
	Errors             []string
	FilesByExt         map[string]int
}

// IndexStats is reindex_incremental's and reindex_full's report per spec §6.
type IndexStats struct {
	FilesProcessed  int
	FilesAdded      int
	FilesUpdated    int
	FilesRemoved    int
	SymbolsIndexed  int
	DurationSeconds float64
}

// Initialize runs the full discovery -> probe -> membership pipeline,
// persists the resulting Contexts, then runs a full reindex (all four
// resolver passes) over the whole repository tree.
func (c *Coordinator) Initialize(ctx context.Context) (InitResult, error) {
	discovered, valid, err := c.runDiscovery(ctx)
	if err != nil {
		return InitResult{}, fmt.Errorf("discovery: %w", err)
	}

	paths, err := c.walkAllFiles()
	if err != nil {
		return InitResult{}, fmt.Errorf("walk repository: %w", err)
	}

	stats, err := c.indexer.RunFullReindex(ctx, paths)
	if err != nil {
		return InitResult{}, fmt.Errorf("full reindex: %w", err)
	}
	if _, err := resolve.ResolveConfigRefs(ctx, c.store, c.repoRoot, c.Contexts()); err != nil {
		stats.Errors = append(stats.Errors, fmt.Errorf("resolve config refs: %w", err))
	}

	result := InitResult{
		ContextsDiscovered: discovered,
		ContextsValid:      valid,
		ContextsFailed:     discovered - valid,
		FilesIndexed:       stats.FilesAdded + stats.FilesModified,
		FilesByExt:         filesByExt(paths),
	}
	for _, jobErr := range stats.Errors {
		result.Errors = append(result.Errors, jobErr.Error())
	}
	return result, nil
}

// ReindexFull re-runs discovery and then a full reindex, the way Initialize
// does, for repositories whose context set may have changed since startup.
func (c *Coordinator) ReindexFull(ctx context.Context) (IndexStats, error) {
	if _, _, err := c.runDiscovery(ctx); err != nil {
		return IndexStats{}, fmt.Errorf("discovery: %w", err)
	}

	paths, err := c.walkAllFiles()
	if err != nil {
		return IndexStats{}, fmt.Errorf("walk repository: %w", err)
	}

	start := time.Now()
	stats, err := c.indexer.RunFullReindex(ctx, paths)
	if err != nil {
		return IndexStats{}, fmt.Errorf("full reindex: %w", err)
	}
	if _, err := resolve.ResolveConfigRefs(ctx, c.store, c.repoRoot, c.Contexts()); err != nil {
		stats.Errors = append(stats.Errors, fmt.Errorf("resolve config refs: %w", err))
	}
	return c.toIndexStats(ctx, stats, len(paths), time.Since(start))
}

// ReindexIncremental runs one synchronous job over exactly paths, without
// re-running discovery: it reconciles, extracts, and runs Passes 2 and 3
// (not Pass 4, the config-ref resolver, which spec §4.11 reserves for full
// passes) for the named paths only.
func (c *Coordinator) ReindexIncremental(ctx context.Context, paths []string) (IndexStats, error) {
	start := time.Now()
	stats, err := c.indexer.RunIncremental(ctx, paths)
	if err != nil {
		return IndexStats{}, fmt.Errorf("incremental reindex: %w", err)
	}
	return c.toIndexStats(ctx, stats, len(paths), time.Since(start))
}

func (c *Coordinator) toIndexStats(ctx context.Context, stats bgindex.JobStats, processed int, elapsed time.Duration) (IndexStats, error) {
	symbolCount, err := c.countSymbols(ctx)
	if err != nil {
		return IndexStats{}, err
	}
	return IndexStats{
		FilesProcessed:  processed,
		FilesAdded:      stats.FilesAdded,
		FilesUpdated:    stats.FilesModified,
		FilesRemoved:    stats.FilesRemoved,
		SymbolsIndexed:  symbolCount,
		DurationSeconds: elapsed.Seconds(),
	}, nil
}

func (c *Coordinator) countSymbols(ctx context.Context) (int, error) {
	var count int
	err := c.store.Session(ctx, storage.ReadOnly, func(ctx context.Context, tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM def_facts`).Scan(&count)
	})
	return count, err
}

// runDiscovery scans markers, synthesizes candidates, probe-validates each,
// assigns membership, persists the resulting Contexts, and installs them as
// the coordinator's (and the indexer's) routing table. It returns the
// number of candidates discovered and how many validated.
func (c *Coordinator) runDiscovery(ctx context.Context) (discovered, valid int, err error) {
	markers, err := discovery.ScanMarkers(c.repoRoot, c.ignoreEngine)
	if err != nil {
		return 0, 0, fmt.Errorf("scan markers: %w", err)
	}
	candidates := discovery.CandidatesFromMarkers(c.repoRoot, markers)
	candidates = discovery.AddRootFallbacks(candidates)

	var validCandidates []types.CandidateContext
	for _, cand := range candidates {
		result := c.probe.Validate(cand)
		if result.Valid {
			validCandidates = append(validCandidates, cand)
		}
	}

	assigned := discovery.AssignMembership(validCandidates)
	persisted, err := c.persistContexts(ctx, validCandidates, assigned)
	if err != nil {
		return 0, 0, fmt.Errorf("persist contexts: %w", err)
	}

	c.setContexts(persisted)
	return len(candidates), len(validCandidates), nil
}

// persistContexts upserts one row per Context keyed on (language_family,
// root_path) — the schema's own uniqueness constraint — so a Context's id
// survives repeated discovery runs instead of being reassigned every time,
// which would orphan the unit_id of facts extracted from files that did not
// change between runs. Stale Contexts (roots that stopped validating) are
// deliberately left in place rather than deleted, for the same reason.
func (c *Coordinator) persistContexts(ctx context.Context, candidates []types.CandidateContext, assigned []types.Context) ([]types.Context, error) {
	out := make([]types.Context, len(assigned))
	err := c.store.Session(ctx, storage.ReadWrite, func(ctx context.Context, tx *sql.Tx) error {
		for i, ctxRow := range assigned {
			includeJSON, err := json.Marshal(ctxRow.IncludeSpec)
			if err != nil {
				return err
			}
			excludeJSON, err := json.Marshal(ctxRow.ExcludeSpec)
			if err != nil {
				return err
			}

			if _, err := tx.ExecContext(ctx,
				`INSERT INTO contexts (language_family, root_path, include_spec, exclude_spec, probe_status)
				 VALUES (?, ?, ?, ?, ?)
				 ON CONFLICT(language_family, root_path) DO UPDATE SET
				   include_spec = excluded.include_spec,
				   exclude_spec = excluded.exclude_spec,
				   probe_status = excluded.probe_status`,
				string(ctxRow.Language), ctxRow.RootPath, string(includeJSON), string(excludeJSON), string(ctxRow.ProbeStatus),
			); err != nil {
				return fmt.Errorf("upsert context %s/%s: %w", ctxRow.Language, ctxRow.RootPath, err)
			}

			var id int64
			if err := tx.QueryRowContext(ctx,
				`SELECT id FROM contexts WHERE language_family = ? AND root_path = ?`,
				string(ctxRow.Language), ctxRow.RootPath,
			).Scan(&id); err != nil {
				return err
			}
			ctxRow.ID = types.ContextID(id)
			out[i] = ctxRow

			if _, err := tx.ExecContext(ctx, `DELETE FROM context_markers WHERE context_id = ?`, id); err != nil {
				return err
			}
			for _, marker := range candidates[i].Markers {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO context_markers (context_id, marker_path, tier) VALUES (?, ?, ?)`,
					id, marker, candidates[i].Tier,
				); err != nil {
					return fmt.Errorf("insert context marker %s: %w", marker, err)
				}
			}
		}
		return nil
	})
	return out, err
}

// walkAllFiles lists every non-ignored regular file under repoRoot,
// repo-relative and forward-slashed, the candidate set a full reindex
// reconciles against.
func (c *Coordinator) walkAllFiles() ([]string, error) {
	var paths []string
	err := filepath.WalkDir(c.repoRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path == c.repoRoot {
			return nil
		}
		rel, relErr := filepath.Rel(c.repoRoot, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if c.ignoreEngine != nil && c.ignoreEngine.IsExcludedRel(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	return paths, err
}

func filesByExt(paths []string) map[string]int {
	counts := make(map[string]int)
	for _, p := range paths {
		ext := filepath.Ext(p)
		if ext == "" {
			ext = "(none)"
		}
		counts[ext]++
	}
	return counts
}

// Search delegates to the query surface.
func (c *Coordinator) Search(ctx context.Context, q string, mode query.SearchMode, limit int, contextID *types.ContextID) (query.SearchResponse, error) {
	return c.querySvc.Search(ctx, q, mode, limit, contextID)
}

// MapRepo delegates to the query surface.
func (c *Coordinator) MapRepo(ctx context.Context, opts query.MapRepoOptions) (query.MapRepoResult, error) {
	return c.querySvc.MapRepo(ctx, c.ignoreEngine, opts)
}

// ReadScope delegates to the query surface's scope-aware read.
func (c *Coordinator) ReadScope(ctx context.Context, fileID types.FileID, line int, preference types.ScopeKind, radius int) (query.ScopeReadResult, error) {
	return c.querySvc.ReadScope(ctx, fileID, line, preference, radius)
}

// GetFileState delegates to the file state service.
func (c *Coordinator) GetFileState(ctx context.Context, fileID types.FileID, contextID types.ContextID) (types.FileState, error) {
	return c.fileState.GetFileState(ctx, fileID, contextID)
}

// CheckMutationGate delegates to the file state service.
func (c *Coordinator) CheckMutationGate(ctx context.Context, fileIDs []types.FileID, contextID types.ContextID) (filestate.GateResult, error) {
	return c.fileState.CheckMutationGate(ctx, fileIDs, contextID)
}

// GetCurrentEpoch delegates to the epoch manager.
func (c *Coordinator) GetCurrentEpoch(ctx context.Context) (int64, error) {
	return c.epochMgr.GetCurrentEpoch(ctx)
}

// AwaitEpoch delegates to the epoch manager.
func (c *Coordinator) AwaitEpoch(ctx context.Context, target int64, timeout time.Duration) (bool, error) {
	return c.epochMgr.AwaitEpoch(ctx, target, timeout)
}
