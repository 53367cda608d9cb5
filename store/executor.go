package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// ExecuteWithRetry runs op against the live handle, initialising it first if
// needed. Busy/locked failures are retried with the manager's query backoff;
// any other error is returned as is. A statement still busy after the last
// attempt is reported as ErrStorageUnavailable.
func ExecuteWithRetry[T any](ctx context.Context, m *Manager, op func(ctx context.Context, db *sql.DB) (T, error)) (T, error) {
	var result T
	err := m.opts.Query.Run(ctx, IsBusy, func(attempt int) error {
		db, err := m.Conn(ctx)
		if err != nil {
			return err
		}
		if attempt > 0 {
			m.log.WithField("attempt", attempt+1).Debug("retrying busy statement")
		}
		r, err := op(ctx, db)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		if IsBusy(err) {
			m.log.WithFields(logrus.Fields{"attempts": m.opts.Query.Attempts}).WithError(err).Error("database busy")
			return result, eris.Wrapf(ErrStorageUnavailable, "database busy after %d attempts: %v", m.opts.Query.Attempts, err)
		}
		return result, err
	}
	return result, nil
}

// exec runs a single statement through the retry executor.
func (m *Manager) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return ExecuteWithRetry(ctx, m, func(ctx context.Context, db *sql.DB) (sql.Result, error) {
		return db.ExecContext(ctx, query, args...)
	})
}

// withTx runs fn in a transaction on db, rolling back on error.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
