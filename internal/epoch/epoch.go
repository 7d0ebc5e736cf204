// Package epoch implements the Epoch Manager: the monotonic publication
// counter readers use to see a consistent, all-or-nothing view of the
// index, and the await_epoch poll loop callers use to read their own
// writes.
package epoch

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/codeplane-dev/codeplane/internal/storage"
)

// Manager owns RepoState.current_epoch_id and the Epochs table. A Manager
// carries an optional reload hook that re-opens the lexical index's
// searcher after a publish, the way the teacher swaps its searchEngine
// under a mutex in handleReindex.
type Manager struct {
	store      *storage.Store
	reload     func() error
	pollPeriod time.Duration
}

// New builds a Manager. reload may be nil when the caller has no lexical
// layer to refresh (e.g. tests). pollPeriod governs AwaitEpoch's polling
// granularity.
func New(store *storage.Store, reload func() error, pollPeriod time.Duration) *Manager {
	if pollPeriod <= 0 {
		pollPeriod = 50 * time.Millisecond
	}
	return &Manager{store: store, reload: reload, pollPeriod: pollPeriod}
}

// PublishEpoch increments the epoch counter inside an immediate
// transaction, so the read of the current value and the write of the next
// one are atomic against any concurrent publisher, then reloads the
// lexical layer once the transaction has committed.
func (m *Manager) PublishEpoch(ctx context.Context, filesIndexed int, commitHash string) (int64, error) {
	var newEpochID int64

	err := m.store.ImmediateTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var current int64
		if err := tx.QueryRowContext(ctx, `SELECT current_epoch_id FROM repo_state WHERE singleton = 0`).Scan(&current); err != nil {
			return fmt.Errorf("read current epoch: %w", err)
		}

		var hash sql.NullString
		if commitHash != "" {
			hash = sql.NullString{String: commitHash, Valid: true}
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO epochs (published_at, files_indexed, commit_hash) VALUES (?, ?, ?)`,
			time.Now().UTC(), filesIndexed, hash)
		if err != nil {
			return fmt.Errorf("insert epoch: %w", err)
		}
		newEpochID, err = res.LastInsertId()
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE repo_state SET current_epoch_id = ? WHERE singleton = 0`, newEpochID); err != nil {
			return fmt.Errorf("update repo state: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if m.reload != nil {
		if err := m.reload(); err != nil {
			return newEpochID, fmt.Errorf("reload lexical layer after publishing epoch %d: %w", newEpochID, err)
		}
	}
	return newEpochID, nil
}

// GetCurrentEpoch reads the current epoch id. Safe to call concurrently
// with readers and with an in-flight PublishEpoch (it simply reads whatever
// value is currently committed).
func (m *Manager) GetCurrentEpoch(ctx context.Context) (int64, error) {
	var current int64
	err := m.store.Session(ctx, storage.ReadOnly, func(ctx context.Context, tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `SELECT current_epoch_id FROM repo_state WHERE singleton = 0`).Scan(&current)
	})
	return current, err
}

// AwaitEpoch polls until the current epoch reaches target or timeout
// elapses, returning false on timeout rather than erroring — callers that
// just published and want to read their own writes use this instead of
// threading a notification channel through the publisher.
func (m *Manager) AwaitEpoch(ctx context.Context, target int64, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		current, err := m.GetCurrentEpoch(ctx)
		if err != nil {
			return false, err
		}
		if current >= target {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(m.pollPeriod):
		}
	}
}
