package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// AccessMode distinguishes a read-only session from a read-write one. Both
// run on the store's single pooled connection (see Store.Open), so within
// this process sessions of either mode run one at a time.
type AccessMode int

const (
	ReadOnly AccessMode = iota
	ReadWrite
)

// Session runs fn inside a transaction scoped to mode, committing on
// success and rolling back if fn returns an error or panics.
func (s *Store) Session(ctx context.Context, mode AccessMode, fn func(ctx context.Context, tx *sql.Tx) error) error {
	opts := &sql.TxOptions{ReadOnly: mode == ReadOnly}
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

// ImmediateTransaction runs fn inside a read-write session whose write lock
// is acquired up front (the DSN's _txlock=immediate makes every BeginTx a
// BEGIN IMMEDIATE), rather than deferred to the first write statement.
// Epoch publication uses this so the read of the prior epoch id and the
// write of the new one are atomic against any other writer racing to
// publish, instead of discovering the conflict only at commit time.
func (s *Store) ImmediateTransaction(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	return s.Session(ctx, ReadWrite, fn)
}
