package lexical

import (
	"sort"
	"sync"

	"github.com/codeplane-dev/codeplane/internal/types"
)

// docEntry is the committed, searchable record for one path.
type docEntry struct {
	doc           Document
	contentTokens []string // stemmed
	symbolTokens  []string // stemmed, one per symbol word
}

// Index is the Lexical Index. All mutating operations are safe to call
// concurrently; Search/SearchSymbols/SearchPath only ever observe state as
// of the most recent Reload, per spec §4.6's commit-visibility contract.
type Index struct {
	mu sync.RWMutex

	segments *segmentStore

	// committed state, read by Search*
	docs            map[string]*docEntry
	contentPostings map[string]map[string]struct{} // stemmed token -> set of paths
	symbolPostings  map[string]map[string]struct{} // stemmed token -> set of paths

	// pending ops staged since the last Reload
	pending []op
}

// Open opens (or creates) a Lexical Index rooted at dir, replaying any
// segment log left from a prior process so a restart doesn't lose
// previously committed documents.
func Open(dir string) (*Index, error) {
	store, replayed, err := openSegmentStore(dir)
	if err != nil {
		return nil, err
	}
	idx := &Index{
		segments:        store,
		docs:            make(map[string]*docEntry),
		contentPostings: make(map[string]map[string]struct{}),
		symbolPostings:  make(map[string]map[string]struct{}),
	}
	// A restarted process has no stale reader to protect from a reload
	// boundary, so the replayed log is applied straight to committed state.
	for _, o := range replayed {
		idx.applyOp(o)
	}
	return idx, nil
}

// Close releases the underlying segment log handle.
func (idx *Index) Close() error {
	return idx.segments.close()
}

// AddFile stages path's content and symbols for indexing. Per spec §4.6 this
// is idempotent: a later Reload deletes any existing row for path before
// inserting the new one, so re-adding a changed file never leaves stale
// postings behind.
func (idx *Index) AddFile(path, content string, contextID types.ContextID, fileID types.FileID, symbols []string) error {
	return idx.stage(op{Kind: opPut, Doc: Document{
		Path: path, Content: content, Symbols: symbols, ContextID: contextID, FileID: fileID,
	}})
}

// AddFilesBatch stages many documents in one call.
func (idx *Index) AddFilesBatch(docs []Document) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, d := range docs {
		o := op{Kind: opPut, Doc: d}
		if err := idx.segments.append(o); err != nil {
			return err
		}
		idx.pending = append(idx.pending, o)
	}
	return nil
}

// RemoveFile stages path's removal.
func (idx *Index) RemoveFile(path string) error {
	return idx.stage(op{Kind: opRemove, Path: path})
}

// Clear drops every document, committed and pending, and truncates the
// on-disk segment log. Unlike AddFile/RemoveFile, Clear takes effect
// immediately rather than waiting for Reload: it is a hard reset, not an
// incremental update, so there is no useful "staged but not visible" state
// to preserve for it.
func (idx *Index) Clear() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if err := idx.segments.truncate(); err != nil {
		return err
	}
	idx.docs = make(map[string]*docEntry)
	idx.contentPostings = make(map[string]map[string]struct{})
	idx.symbolPostings = make(map[string]map[string]struct{})
	idx.pending = nil
	return idx.segments.writeManifest(0)
}

// Reload applies every staged op to committed state, in order, making them
// visible to Search/SearchSymbols/SearchPath.
func (idx *Index) Reload() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, o := range idx.pending {
		idx.applyOp(o)
	}
	idx.pending = nil
	return idx.segments.writeManifest(len(idx.docs))
}

// DocCount returns the number of committed documents.
func (idx *Index) DocCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

func (idx *Index) stage(o op) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if err := idx.segments.append(o); err != nil {
		return err
	}
	idx.pending = append(idx.pending, o)
	return nil
}

// applyOp mutates committed state. Caller holds idx.mu.
func (idx *Index) applyOp(o op) {
	switch o.Kind {
	case opPut:
		idx.removeCommitted(o.Doc.Path)
		idx.insertCommitted(o.Doc)
	case opRemove:
		idx.removeCommitted(o.Path)
	case opClear:
		idx.docs = make(map[string]*docEntry)
		idx.contentPostings = make(map[string]map[string]struct{})
		idx.symbolPostings = make(map[string]map[string]struct{})
	}
}

func (idx *Index) insertCommitted(doc Document) {
	contentTokens := stemAll(tokenize(doc.Content))
	var symbolTokens []string
	for _, s := range doc.Symbols {
		symbolTokens = append(symbolTokens, stemAll(tokenize(s))...)
	}

	idx.docs[doc.Path] = &docEntry{doc: doc, contentTokens: contentTokens, symbolTokens: symbolTokens}

	for _, t := range uniq(contentTokens) {
		posting(idx.contentPostings, t)[doc.Path] = struct{}{}
	}
	for _, t := range uniq(symbolTokens) {
		posting(idx.symbolPostings, t)[doc.Path] = struct{}{}
	}
}

func (idx *Index) removeCommitted(path string) {
	entry, ok := idx.docs[path]
	if !ok {
		return
	}
	for _, t := range uniq(entry.contentTokens) {
		delete(idx.contentPostings[t], path)
	}
	for _, t := range uniq(entry.symbolTokens) {
		delete(idx.symbolPostings[t], path)
	}
	delete(idx.docs, path)
}

func posting(m map[string]map[string]struct{}, token string) map[string]struct{} {
	set, ok := m[token]
	if !ok {
		set = make(map[string]struct{})
		m[token] = set
	}
	return set
}

func uniq(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := tokens[:0:0]
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// sortHits orders by descending score, breaking ties by path for a stable
// result order across identical-score documents.
func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].FilePath < hits[j].FilePath
	})
}

func applyContextFilter(paths map[string]struct{}, idx *Index, contextID *types.ContextID) []string {
	out := make([]string, 0, len(paths))
	for p := range paths {
		if contextID != nil {
			e, ok := idx.docs[p]
			if !ok || e.doc.ContextID != *contextID {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

func clampLimit(n, limit int) int {
	if limit > 0 && n > limit {
		return limit
	}
	return n
}
