// Package store is the persistence layer of the agency site: it owns the
// single embedded SQLite database, opens it lazily with retries, bootstraps
// the schema and exposes typed repositories for posts, authors, categories,
// tags and media.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Options configures a Manager. The zero value is usable.
type Options struct {
	// Path overrides every platform convention when set.
	Path string
	// LegacyPath is copied to the resolved path on first boot if the new
	// file does not exist yet. Empty disables the migration.
	LegacyPath string
	// WorkDir anchors the production and development defaults.
	WorkDir string
	// TempDir is the fallback parent when the resolved directory is not
	// writable. Defaults to os.TempDir().
	TempDir string

	Getenv       func(string) string
	Logger       *logrus.Logger
	MaxOpenConns int
	BusyTimeout  time.Duration

	Connect Backoff
	Query   Backoff

	Now func() time.Time
}

func (o *Options) setDefaults() {
	if o.Getenv == nil {
		o.Getenv = os.Getenv
	}
	if o.WorkDir == "" {
		if wd, err := os.Getwd(); err == nil {
			o.WorkDir = wd
		} else {
			o.WorkDir = "."
		}
	}
	if o.TempDir == "" {
		o.TempDir = os.TempDir()
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.MaxOpenConns == 0 {
		o.MaxOpenConns = 4
	}
	if o.BusyTimeout == 0 {
		o.BusyTimeout = 5 * time.Second
	}
	if o.Connect.Attempts == 0 {
		o.Connect = ConnectBackoff
	}
	if o.Query.Attempts == 0 {
		o.Query = QueryBackoff
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Manager owns the process-wide database handle. It is created once at
// startup and shared by every repository; the handle itself is opened on
// first use.
type Manager struct {
	opts Options
	log  *logrus.Entry

	mu       sync.Mutex
	db       *sql.DB
	path     string
	inflight *initCall
	gen      uint64
}

type initCall struct {
	done   chan struct{}
	cancel context.CancelFunc
	db     *sql.DB
	err    error
}

// NewManager returns a Manager that has not touched the filesystem yet.
func NewManager(opts Options) *Manager {
	opts.setDefaults()
	return &Manager{
		opts: opts,
		log:  opts.Logger.WithField("component", "store"),
	}
}

// Initialize opens the database if it is not open yet. Concurrent callers
// wait for the same attempt. Failure after every retry matches
// ErrStorageUnavailable.
func (m *Manager) Initialize(ctx context.Context) (*sql.DB, error) {
	m.mu.Lock()
	if m.db != nil {
		db := m.db
		m.mu.Unlock()
		return db, nil
	}
	call := m.inflight
	if call == nil {
		ictx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		call = &initCall{done: make(chan struct{}), cancel: cancel}
		m.inflight = call
		go m.runInit(ictx, call, m.gen)
	}
	m.mu.Unlock()

	select {
	case <-call.done:
		return call.db, call.err
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "waiting for database initialisation")
	}
}

// Conn returns the live handle, initialising first when needed.
func (m *Manager) Conn(ctx context.Context) (*sql.DB, error) {
	return m.Initialize(ctx)
}

// Path returns the file backing the live handle, or "" before Initialize.
func (m *Manager) Path() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.path
}

// Ping checks that the handle is open and answering.
func (m *Manager) Ping(ctx context.Context) error {
	db, err := m.Conn(ctx)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return eris.Wrap(err, "pinging database")
	}
	return nil
}

// Close releases the handle and forgets all cached state, so the next
// Initialize starts from scratch.
func (m *Manager) Close() error {
	m.mu.Lock()
	db := m.db
	call := m.inflight
	m.db = nil
	m.path = ""
	m.inflight = nil
	m.gen++
	m.mu.Unlock()

	if call != nil {
		call.cancel()
	}
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return eris.Wrap(err, "closing database")
	}
	m.log.Info("database closed")
	return nil
}

func (m *Manager) now() time.Time {
	return m.opts.Now().UTC()
}

func (m *Manager) runInit(ctx context.Context, call *initCall, gen uint64) {
	db, path, err := m.open(ctx)

	m.mu.Lock()
	if gen != m.gen {
		if db != nil {
			_ = db.Close()
		}
		db = nil
		if err == nil {
			err = eris.Wrap(ErrStorageUnavailable, "database closed during initialisation")
		}
	} else {
		if err == nil {
			m.db = db
			m.path = path
		}
		m.inflight = nil
	}
	call.db, call.err = db, err
	m.mu.Unlock()

	call.cancel()
	close(call.done)
}

func (m *Manager) open(ctx context.Context) (*sql.DB, string, error) {
	var (
		db   *sql.DB
		path string
	)
	err := m.opts.Connect.Run(ctx, always, func(attempt int) error {
		var err error
		db, path, err = m.attempt(ctx)
		if err != nil {
			m.log.WithFields(logrus.Fields{
				"attempt": attempt + 1,
				"of":      m.opts.Connect.Attempts,
			}).WithError(err).Warn("database initialisation attempt failed")
		}
		return err
	})
	if err != nil {
		m.log.WithError(err).Error("database unavailable")
		return nil, "", eris.Wrapf(ErrStorageUnavailable, "initialising database after %d attempts: %v", m.opts.Connect.Attempts, err)
	}
	m.log.WithField("path", path).Info("database ready")
	return db, path, nil
}

func (m *Manager) attempt(ctx context.Context) (*sql.DB, string, error) {
	path, err := m.ensureDir(ResolvePath(m.getenv, m.opts.WorkDir))
	if err != nil {
		return nil, "", err
	}
	m.migrateLegacy(path)

	db, err := sql.Open("sqlite", m.dsn(path))
	if err != nil {
		return nil, "", eris.Wrapf(err, "opening %s", path)
	}
	db.SetMaxOpenConns(m.opts.MaxOpenConns)
	db.SetMaxIdleConns(m.opts.MaxOpenConns)

	if err := selfTest(ctx, db, m.now()); err != nil {
		_ = db.Close()
		return nil, "", eris.Wrapf(err, "write check on %s", path)
	}
	if err := bootstrap(ctx, db, m.now()); err != nil {
		_ = db.Close()
		return nil, "", err
	}
	return db, path, nil
}

// getenv presents an explicit Options.Path to ResolvePath as the override
// variable so precedence lives in one place.
func (m *Manager) getenv(key string) string {
	if key == EnvDatabasePath && m.opts.Path != "" {
		return m.opts.Path
	}
	return m.opts.Getenv(key)
}

// dsn applies the pragmas on every pooled connection. Write transactions
// start IMMEDIATE so lock contention surfaces at BEGIN where busy_timeout
// applies.
func (m *Manager) dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", m.opts.BusyTimeout.Milliseconds()))
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "cache_size(-8000)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "temp_store(MEMORY)")
	q.Set("_txlock", "immediate")
	return "file:" + filepath.ToSlash(path) + "?" + q.Encode()
}

// ensureDir creates the parent directory and checks it is writable. A
// permission failure falls back to the temp directory.
func (m *Manager) ensureDir(path string) (string, error) {
	dir := filepath.Dir(path)
	err := os.MkdirAll(dir, 0o755)
	if err == nil {
		err = checkWritable(dir)
	}
	if err == nil {
		return path, nil
	}
	if !isPermission(err) {
		return "", eris.Wrapf(err, "preparing database directory %s", dir)
	}

	fallback := filepath.Join(m.opts.TempDir, "agencycms", filepath.Base(path))
	m.log.WithFields(logrus.Fields{
		"path":     path,
		"fallback": fallback,
	}).WithError(err).Warn("database directory not writable, using temp directory")

	fdir := filepath.Dir(fallback)
	if err := os.MkdirAll(fdir, 0o755); err != nil {
		return "", eris.Wrapf(err, "creating fallback directory %s", fdir)
	}
	if err := checkWritable(fdir); err != nil {
		return "", eris.Wrapf(err, "fallback directory %s not writable", fdir)
	}
	return fallback, nil
}

func isPermission(err error) bool {
	return errors.Is(err, fs.ErrPermission) || errors.Is(err, syscall.EROFS)
}

func checkWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}

// migrateLegacy copies the legacy database (and its WAL) to path when path
// does not exist yet. It never overwrites and never fails the attempt.
func (m *Manager) migrateLegacy(path string) {
	legacy := m.opts.LegacyPath
	if legacy == "" || filepath.Clean(legacy) == filepath.Clean(path) {
		return
	}
	if _, err := os.Stat(path); err == nil {
		return
	}
	if _, err := os.Stat(legacy); err != nil {
		return
	}
	entry := m.log.WithFields(logrus.Fields{"from": legacy, "to": path})
	for _, suffix := range []string{"", "-wal"} {
		src := legacy + suffix
		if suffix != "" {
			if _, err := os.Stat(src); err != nil {
				continue
			}
		}
		if err := copyFile(src, path+suffix); err != nil {
			entry.WithError(err).Warn("legacy database copy failed")
			_ = os.Remove(path)
			_ = os.Remove(path + "-wal")
			return
		}
	}
	entry.Info("migrated legacy database")
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func selfTest(ctx context.Context, db *sql.DB, now time.Time) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS _write_check (id INTEGER PRIMARY KEY, checked_at TEXT NOT NULL)`); err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `INSERT INTO _write_check (checked_at) VALUES (?)`, formatTime(now))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `DELETE FROM _write_check WHERE id = ?`, id)
	return err
}
