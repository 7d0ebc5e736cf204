package query

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/codeplane-dev/codeplane/internal/storage"
	"github.com/codeplane-dev/codeplane/internal/types"
)

// DefaultWindowRadius is how many lines on either side of the target line
// a scope-aware read returns when no structural scope covers it.
const DefaultWindowRadius = 10

// ScopeReadResult is scope-aware read's answer: either a structural scope
// (Resolved true) or a plain line window around the requested line.
type ScopeReadResult struct {
	Resolved bool            `json:"resolved"`
	Kind     types.ScopeKind `json:"kind,omitempty"`
	Span     types.Span      `json:"span"`
	Content  string          `json:"content"`
}

type scopeRow struct {
	id   int64
	kind types.ScopeKind
	span types.Span
}

// ReadScope returns the smallest enclosing scope of the preferred kind
// containing line, falling back to any enclosing non-file scope, then the
// file scope, then (if the file has no recorded scopes at all) a ±radius
// line window with Resolved=false. radius<=0 uses DefaultWindowRadius.
func (s *Service) ReadScope(ctx context.Context, fileID types.FileID, line int, preference types.ScopeKind, radius int) (ScopeReadResult, error) {
	if radius <= 0 {
		radius = DefaultWindowRadius
	}

	var path string
	var scopes []scopeRow
	err := s.store.Session(ctx, storage.ReadOnly, func(ctx context.Context, tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT path FROM files WHERE id = ?`, int64(fileID)).Scan(&path); err != nil {
			return fmt.Errorf("lookup file %d: %w", fileID, err)
		}
		rows, err := tx.QueryContext(ctx,
			`SELECT id, kind, start_line, start_col, end_line, end_col FROM scope_facts WHERE file_id = ?`, int64(fileID))
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var row scopeRow
			var kind string
			if err := rows.Scan(&row.id, &kind, &row.span.StartLine, &row.span.StartCol, &row.span.EndLine, &row.span.EndCol); err != nil {
				return err
			}
			row.kind = types.ScopeKind(kind)
			scopes = append(scopes, row)
		}
		return rows.Err()
	})
	if err != nil {
		return ScopeReadResult{}, err
	}

	if scope, ok := smallestContaining(scopes, line, preference); ok {
		return s.resolvedScope(path, scope)
	}
	if scope, ok := smallestContaining(scopes, line, ""); ok {
		return s.resolvedScope(path, scope)
	}
	if scope, ok := smallestContaining(scopes, line, types.ScopeKindFile); ok {
		return s.resolvedScope(path, scope)
	}

	return s.windowFallback(path, line, radius)
}

// smallestContaining finds the scope with the smallest span containing
// line. When kind is non-empty, only scopes of that kind are eligible
// (with ScopeKindFile as a marker meaning "file scope specifically");
// an empty kind means "any non-file scope".
func smallestContaining(scopes []scopeRow, line int, kind types.ScopeKind) (scopeRow, bool) {
	var best scopeRow
	found := false
	for _, sc := range scopes {
		if !sc.span.Contains(line) {
			continue
		}
		switch {
		case kind != "":
			if sc.kind != kind {
				continue
			}
		default:
			if sc.kind == types.ScopeKindFile {
				continue
			}
		}
		if !found || sc.span.LineCount() < best.span.LineCount() {
			best = sc
			found = true
		}
	}
	return best, found
}

func (s *Service) resolvedScope(relPath string, scope scopeRow) (ScopeReadResult, error) {
	content, err := readLines(filepath.Join(s.repoRoot, filepath.FromSlash(relPath)), scope.span.StartLine, scope.span.EndLine)
	if err != nil {
		return ScopeReadResult{}, err
	}
	return ScopeReadResult{Resolved: true, Kind: scope.kind, Span: scope.span, Content: content}, nil
}

func (s *Service) windowFallback(relPath string, line, radius int) (ScopeReadResult, error) {
	start := line - radius
	if start < 1 {
		start = 1
	}
	end := line + radius

	content, err := readLines(filepath.Join(s.repoRoot, filepath.FromSlash(relPath)), start, end)
	if err != nil {
		return ScopeReadResult{}, err
	}
	return ScopeReadResult{
		Resolved: false,
		Span:     types.Span{StartLine: start, EndLine: end},
		Content:  content,
	}, nil
}

func readLines(absPath string, startLine, endLine int) (string, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", absPath, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var lines []string
	n := 0
	for scanner.Scan() {
		n++
		if n < startLine {
			continue
		}
		if n > endLine {
			break
		}
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}
