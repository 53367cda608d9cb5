package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// Checkpoint folds the WAL back into the main database file and truncates it.
func (m *Manager) Checkpoint(ctx context.Context) error {
	_, err := ExecuteWithRetry(ctx, m, func(ctx context.Context, db *sql.DB) (struct{}, error) {
		_, err := db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`)
		return struct{}{}, err
	})
	if err != nil {
		return eris.Wrap(err, "checkpointing wal")
	}
	return nil
}

// Optimize lets SQLite refresh its query planner statistics.
func (m *Manager) Optimize(ctx context.Context) error {
	if _, err := m.exec(ctx, `PRAGMA optimize`); err != nil {
		return eris.Wrap(err, "optimizing database")
	}
	return nil
}

// StartMaintenance schedules an hourly WAL checkpoint and a daily optimize.
// The returned function stops the scheduler and waits for running jobs.
func StartMaintenance(m *Manager, logger *logrus.Logger) (func(), error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	entry := logger.WithField("component", "store.maintenance")
	c := cron.New()

	job := func(name string, fn func(context.Context) error) func() {
		return func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := fn(ctx); err != nil {
				entry.WithField("job", name).WithError(err).Warn("maintenance job failed")
				return
			}
			entry.WithField("job", name).Debug("maintenance job done")
		}
	}

	if _, err := c.AddFunc("@hourly", job("checkpoint", m.Checkpoint)); err != nil {
		return nil, eris.Wrap(err, "scheduling checkpoint")
	}
	if _, err := c.AddFunc("@daily", job("optimize", m.Optimize)); err != nil {
		return nil, eris.Wrap(err, "scheduling optimize")
	}
	c.Start()
	entry.Info("maintenance scheduler started")

	return func() {
		<-c.Stop().Done()
		entry.Info("maintenance scheduler stopped")
	}, nil
}
