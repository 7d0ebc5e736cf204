package tsparser

import (
	"fmt"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/codeplane-dev/codeplane/internal/types"
)

// Parser lazily builds one tree-sitter parser and compiled query per
// language family on first use, guarded by a mutex so the first parse of
// each family from concurrent workers doesn't race the grammar setup.
// Matches the lazy-init idiom used across the wider example corpus for
// per-language parser pools, simplified here to one struct (no per-language
// sync.Pool) since spec's Parser Layer is shared across the worker pool
// internal/extractor owns, not pooled per-worker.
type Parser struct {
	mu      sync.RWMutex
	parsers map[types.LanguageFamily]*tree_sitter.Parser
	queries map[types.LanguageFamily]*tree_sitter.Query
}

// New returns a Parser with nothing initialized yet; grammars load lazily.
func New() *Parser {
	return &Parser{
		parsers: make(map[types.LanguageFamily]*tree_sitter.Parser),
		queries: make(map[types.LanguageFamily]*tree_sitter.Query),
	}
}

// ensure initializes the parser and query for family if not already done.
func (p *Parser) ensure(family types.LanguageFamily) (*tree_sitter.Parser, *tree_sitter.Query, error) {
	p.mu.RLock()
	parser, pOk := p.parsers[family]
	query, qOk := p.queries[family]
	p.mu.RUnlock()
	if pOk && qOk {
		return parser, query, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if parser, ok := p.parsers[family]; ok {
		return parser, p.queries[family], nil
	}

	lang, err := Language(family)
	if err != nil {
		return nil, nil, err
	}
	queryStr, err := FactQuery(family)
	if err != nil {
		return nil, nil, err
	}

	newParser := tree_sitter.NewParser()
	if err := newParser.SetLanguage(lang); err != nil {
		return nil, nil, fmt.Errorf("tsparser: set language for %q: %w", family, err)
	}
	newQuery, err := tree_sitter.NewQuery(lang, queryStr)
	if err != nil {
		return nil, nil, fmt.Errorf("tsparser: compile query for %q: %w", family, err)
	}

	p.parsers[family] = newParser
	p.queries[family] = newQuery
	return newParser, newQuery, nil
}

// Parse parses source as family and returns the resulting tree. The caller
// owns the returned tree and must call tree.Close() when done with it.
func (p *Parser) Parse(family types.LanguageFamily, source []byte) (*tree_sitter.Tree, error) {
	parser, _, err := p.ensure(family)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("tsparser: parse returned nil tree for family %q", family)
	}
	return tree, nil
}

// Capture is one query match: the capture's name (per the grammars.go
// vocabulary) and the node it bound to.
type Capture struct {
	Name string
	Node tree_sitter.Node
}

// Captures runs family's combined query against tree and returns every
// capture across every match, in document order within each match.
func (p *Parser) Captures(family types.LanguageFamily, tree *tree_sitter.Tree, source []byte) ([]Capture, error) {
	_, query, err := p.ensure(family)
	if err != nil {
		return nil, err
	}

	cursor := tree_sitter.NewQueryCursor()
	defer cursor.Close()

	matches := cursor.Matches(query, tree.RootNode(), source)
	var captures []Capture
	for {
		match := matches.Next()
		if match == nil {
			break
		}
		for _, c := range match.Captures {
			captures = append(captures, Capture{
				Name: query.CaptureNames()[c.Index],
				Node: c.Node,
			})
		}
	}
	return captures, nil
}

// Match is every capture produced by one instantiation of a query pattern,
// in document order. Captures within a match are what the extractor pairs
// up (e.g. a def.function capture with its sibling def.function.name).
type Match struct {
	Captures []Capture
}

// Matches runs family's combined query against tree like Captures, but
// preserves per-pattern-instance grouping instead of flattening every
// capture into one list.
func (p *Parser) Matches(family types.LanguageFamily, tree *tree_sitter.Tree, source []byte) ([]Match, error) {
	_, query, err := p.ensure(family)
	if err != nil {
		return nil, err
	}

	cursor := tree_sitter.NewQueryCursor()
	defer cursor.Close()

	matches := cursor.Matches(query, tree.RootNode(), source)
	var result []Match
	for {
		m := matches.Next()
		if m == nil {
			break
		}
		match := Match{Captures: make([]Capture, 0, len(m.Captures))}
		for _, c := range m.Captures {
			match.Captures = append(match.Captures, Capture{
				Name: query.CaptureNames()[c.Index],
				Node: c.Node,
			})
		}
		result = append(result, match)
	}
	return result, nil
}
