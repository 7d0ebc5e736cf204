package tsparser

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codeplane-dev/codeplane/internal/types"
)

// ParseCache keys a parsed tree by xxhash.Sum64 of its source content, so a
// reconciliation pass that re-reads a file whose content hasn't changed
// skips tree-sitter entirely. xxhash rather than the SHA-256 used for
// File.ContentHash: this key backs a volatile in-memory performance
// structure, not one of the durable content-addressed identifiers spec §3
// pins to SHA-256.
type ParseCache struct {
	mu      sync.Mutex
	entries map[uint64]*tree_sitter.Tree
}

// NewParseCache returns an empty cache.
func NewParseCache() *ParseCache {
	return &ParseCache{entries: make(map[uint64]*tree_sitter.Tree)}
}

// Key computes the cache key for source content.
func Key(source []byte) uint64 {
	return xxhash.Sum64(source)
}

// Get returns the cached tree for key, if present.
func (c *ParseCache) Get(key uint64) (*tree_sitter.Tree, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.entries[key]
	return t, ok
}

// Put stores tree under key, replacing (and closing) whatever was there.
func (c *ParseCache) Put(key uint64, tree *tree_sitter.Tree) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[key]; ok && old != tree {
		old.Close()
	}
	c.entries[key] = tree
}

// Evict removes and closes the tree cached under key, if any. Called when a
// file's content hash changes so the stale tree doesn't leak.
func (c *ParseCache) Evict(key uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entries[key]; ok {
		old.Close()
		delete(c.entries, key)
	}
}

// ParseCached parses source as family, reusing a cached tree when source's
// content hash is already present.
func (p *Parser) ParseCached(cache *ParseCache, family types.LanguageFamily, source []byte) (*tree_sitter.Tree, error) {
	key := Key(source)
	if tree, ok := cache.Get(key); ok {
		return tree, nil
	}
	tree, err := p.Parse(family, source)
	if err != nil {
		return nil, err
	}
	cache.Put(key, tree)
	return tree, nil
}
