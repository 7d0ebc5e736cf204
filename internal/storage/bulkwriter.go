package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// BulkWriter batches row inserts for a single table inside one transaction,
// the way a reconciliation pass needs to land thousands of facts from one
// file parse without paying a round trip per row.
type BulkWriter struct {
	tx *sql.Tx
}

// NewBulkWriter wraps an open transaction. Callers obtain one from
// Store.Session in read-write mode.
func NewBulkWriter(tx *sql.Tx) *BulkWriter {
	return &BulkWriter{tx: tx}
}

// InsertMany inserts rows into table in a single multi-row INSERT statement
// per call. cols names the column order each row in rows must follow.
func (w *BulkWriter) InsertMany(ctx context.Context, table string, cols []string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	placeholderRow := "(" + strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",") + ")"
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", table, strings.Join(cols, ", "))
	args := make([]any, 0, len(rows)*len(cols))
	for i, row := range rows {
		if len(row) != len(cols) {
			return fmt.Errorf("insert into %s: row %d has %d values, want %d", table, i, len(row), len(cols))
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(placeholderRow)
		args = append(args, row...)
	}

	if _, err := w.tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

// InsertManyReturningIDs inserts rows one at a time (SQLite has no
// multi-row RETURNING before 3.35, and even then database/sql can't fan a
// single Exec out to multiple LastInsertId values) and returns the assigned
// rowids in row order. Used for tables addressed by synthetic integer ids
// that downstream facts must reference (e.g. scope_facts.id, consumed by
// scope_facts.parent_id and member_access_facts.scope_id).
func (w *BulkWriter) InsertManyReturningIDs(ctx context.Context, table string, cols []string, rows [][]any) ([]int64, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",") + ")"
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, strings.Join(cols, ", "), placeholder)

	ids := make([]int64, 0, len(rows))
	for i, row := range rows {
		if len(row) != len(cols) {
			return nil, fmt.Errorf("insert into %s: row %d has %d values, want %d", table, i, len(row), len(cols))
		}
		res, err := w.tx.ExecContext(ctx, query, row...)
		if err != nil {
			return nil, fmt.Errorf("insert into %s: %w", table, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("insert into %s: read last insert id: %w", table, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
