// Package query implements the Query Surface: the read-only API that turns
// accumulated facts and the lexical index into answers, distinct from the
// write path owned by internal/bgindex and internal/reconcile.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/codeplane-dev/codeplane/internal/lexical"
	"github.com/codeplane-dev/codeplane/internal/storage"
	"github.com/codeplane-dev/codeplane/internal/types"
)

// SearchMode selects which fact source Search consults.
type SearchMode string

const (
	ModeLexical     SearchMode = "lexical"
	ModeSymbol      SearchMode = "symbol"
	ModeReferences  SearchMode = "references"
	ModeDefinitions SearchMode = "definitions"
)

// SearchResult is one hit, uniform across every mode.
type SearchResult struct {
	Path    string  `json:"path"`
	Line    int     `json:"line"`
	Column  int     `json:"column"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// SearchResponse is Search's response envelope. FallbackReason is set only
// by lexical/symbol modes when query syntax failed to parse and the index
// fell back to literal matching.
type SearchResponse struct {
	Results        []SearchResult `json:"results"`
	FallbackReason string         `json:"fallback_reason,omitempty"`
}

// Service answers read-only queries against the storage facts and the
// lexical index. It holds no mutable state of its own.
type Service struct {
	store    *storage.Store
	lexIndex *lexical.Index
	repoRoot string
}

// New builds a Service. lexIndex may be nil if lexical/symbol modes will
// never be called (e.g. a store-only test harness).
func New(store *storage.Store, lexIndex *lexical.Index, repoRoot string) *Service {
	return &Service{store: store, lexIndex: lexIndex, repoRoot: repoRoot}
}

// Search dispatches to the fact source mode names, the way the teacher's
// handleSearch/handleDefinition/handleReferences each delegate to one
// engine call and reshape its hits into a response struct.
func (s *Service) Search(ctx context.Context, query string, mode SearchMode, limit int, contextID *types.ContextID) (SearchResponse, error) {
	if limit <= 0 {
		limit = 50
	}

	switch mode {
	case ModeLexical:
		if s.lexIndex == nil {
			return SearchResponse{}, fmt.Errorf("lexical search: no lexical index configured")
		}
		res := s.lexIndex.Search(query, limit, contextID)
		return lexicalResponse(res), nil

	case ModeSymbol:
		if s.lexIndex == nil {
			return SearchResponse{}, fmt.Errorf("symbol search: no lexical index configured")
		}
		res := s.lexIndex.SearchSymbols(query, limit, contextID)
		return lexicalResponse(res), nil

	case ModeDefinitions:
		return s.searchDefinitions(ctx, query, limit, contextID)

	case ModeReferences:
		return s.searchReferences(ctx, query, limit, contextID)

	default:
		return SearchResponse{}, fmt.Errorf("search: unknown mode %q", mode)
	}
}

func lexicalResponse(res lexical.Result) SearchResponse {
	out := SearchResponse{FallbackReason: res.FallbackReason, Results: make([]SearchResult, len(res.Hits))}
	for i, hit := range res.Hits {
		// The lexical index is a flat document store with no line/column
		// granularity; path-level hits report line 0, matching the
		// "whole file matched" semantics of a full-text index.
		out.Results[i] = SearchResult{Path: hit.FilePath, Snippet: hit.Snippet, Score: hit.Score}
	}
	return out
}

// searchDefinitions matches query against def_facts.name, optionally
// restricted to files that contributed at least one definition to
// contextID — def_facts carries unit_id directly, so no join is needed.
func (s *Service) searchDefinitions(ctx context.Context, query string, limit int, contextID *types.ContextID) (SearchResponse, error) {
	args := []any{likePattern(query)}
	sqlText := `SELECT d.name, d.lexical_path, d.start_line, d.start_col, f.path
		FROM def_facts d JOIN files f ON f.id = d.file_id
		WHERE LOWER(d.name) LIKE LOWER(?)`
	if contextID != nil {
		sqlText += ` AND d.unit_id = ?`
		args = append(args, int64(*contextID))
	}
	sqlText += ` ORDER BY d.name LIMIT ?`
	args = append(args, limit)

	var out []SearchResult
	err := s.store.Session(ctx, storage.ReadOnly, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, sqlText, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name, lexicalPath, path string
			var line, col int
			if err := rows.Scan(&name, &lexicalPath, &line, &col, &path); err != nil {
				return err
			}
			out = append(out, SearchResult{
				Path: path, Line: line, Column: col,
				Snippet: lexicalPath, Score: matchScore(query, name),
			})
		}
		return rows.Err()
	})
	if err != nil {
		return SearchResponse{}, fmt.Errorf("search definitions: %w", err)
	}
	sortByScoreDesc(out)
	return SearchResponse{Results: out}, nil
}

// searchReferences matches query against ref_facts.token_text. ref_facts
// carries no unit_id of its own (a reference site belongs to whichever
// context its file was last processed under, which def_facts already
// records), so the optional context filter goes through the same file's
// own definitions.
func (s *Service) searchReferences(ctx context.Context, query string, limit int, contextID *types.ContextID) (SearchResponse, error) {
	args := []any{likePattern(query)}
	sqlText := `SELECT r.token_text, r.start_line, r.start_col, r.ref_tier, f.path
		FROM ref_facts r JOIN files f ON f.id = r.file_id
		WHERE LOWER(r.token_text) LIKE LOWER(?)`
	if contextID != nil {
		sqlText += ` AND r.file_id IN (SELECT file_id FROM def_facts WHERE unit_id = ?)`
		args = append(args, int64(*contextID))
	}
	sqlText += ` ORDER BY r.file_id LIMIT ?`
	args = append(args, limit)

	var out []SearchResult
	err := s.store.Session(ctx, storage.ReadOnly, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, sqlText, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var token, tier, path string
			var line, col int
			if err := rows.Scan(&token, &line, &col, &tier, &path); err != nil {
				return err
			}
			out = append(out, SearchResult{
				Path: path, Line: line, Column: col,
				Snippet: token, Score: tierScore(types.RefTier(tier)),
			})
		}
		return rows.Err()
	})
	if err != nil {
		return SearchResponse{}, fmt.Errorf("search references: %w", err)
	}
	sortByScoreDesc(out)
	return SearchResponse{Results: out}, nil
}

func likePattern(query string) string {
	return "%" + strings.ReplaceAll(strings.ReplaceAll(query, "%", "\\%"), "_", "\\_") + "%"
}

func matchScore(query, name string) float64 {
	if strings.EqualFold(query, name) {
		return 1.0
	}
	return 0.5
}

func tierScore(tier types.RefTier) float64 {
	switch tier {
	case types.RefTierProven:
		return 1.0
	case types.RefTierStrong:
		return 0.8
	case types.RefTierLexical:
		return 0.4
	default:
		return 0.1
	}
}

func sortByScoreDesc(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
}
