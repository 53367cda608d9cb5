package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"
)

// insert adds one row under the given duplicate policy. It reports whether a
// row was written.
func (m *Manager) insert(ctx context.Context, table string, policy DuplicatePolicy, sets assignments, entity, key string) (bool, error) {
	query, args := insertSQL(policy.verb(), table, sets)
	res, err := m.exec(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return false, eris.Wrapf(ErrDuplicateSlug, "%s %q already exists", entity, key)
		}
		return false, eris.Wrapf(err, "creating %s %s", entity, key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "reading affected rows")
	}
	return n > 0, nil
}

// update applies a partial patch. It reports whether the key matched a row.
func (m *Manager) update(ctx context.Context, table, keyColumn string, key any, sets assignments, entity string) (bool, error) {
	query, args := updateSQL(table, keyColumn, key, sets, formatTime(m.now()))
	res, err := m.exec(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return false, eris.Wrapf(ErrDuplicateSlug, "%s %v conflicts with an existing row", entity, key)
		}
		return false, eris.Wrapf(err, "updating %s %v", entity, key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "reading affected rows")
	}
	return n > 0, nil
}

func (m *Manager) remove(ctx context.Context, table, keyColumn string, key any, entity string) (bool, error) {
	res, err := m.exec(ctx, "DELETE FROM "+table+" WHERE "+keyColumn+" = ?", key)
	if err != nil {
		return false, eris.Wrapf(err, "deleting %s %v", entity, key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "reading affected rows")
	}
	return n > 0, nil
}

func queryAll[T any](ctx context.Context, m *Manager, scan func(rowScanner) (T, error), query string, args ...any) ([]T, error) {
	return ExecuteWithRetry(ctx, m, func(ctx context.Context, db *sql.DB) ([]T, error) {
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		out := []T{}
		for rows.Next() {
			v, err := scan(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, rows.Err()
	})
}

// queryOne returns nil, nil when no row matches.
func queryOne[T any](ctx context.Context, m *Manager, scan func(rowScanner) (T, error), query string, args ...any) (*T, error) {
	return ExecuteWithRetry(ctx, m, func(ctx context.Context, db *sql.DB) (*T, error) {
		v, err := scan(db.QueryRowContext(ctx, query, args...))
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &v, nil
	})
}
