package store

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

// schemaVersion is recorded in schema_meta. Increment when adding migrations.
const schemaVersion = 1

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS schema_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		slug TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		excerpt TEXT DEFAULT '',
		date TEXT NOT NULL,
		author TEXT DEFAULT '',
		author_image TEXT DEFAULT '',
		cover_image TEXT DEFAULT '',
		category TEXT DEFAULT '',
		tags TEXT DEFAULT '[]',
		draft INTEGER NOT NULL DEFAULT 0,
		featured INTEGER NOT NULL DEFAULT 0,
		reading_time TEXT DEFAULT '',
		views INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_posts_date ON posts(date)`,
	`CREATE INDEX IF NOT EXISTS idx_posts_category ON posts(category)`,
	`CREATE INDEX IF NOT EXISTS idx_posts_draft_featured ON posts(draft, featured)`,
	`CREATE TABLE IF NOT EXISTS authors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		slug TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		bio TEXT DEFAULT '',
		avatar TEXT DEFAULT '',
		email TEXT DEFAULT '',
		twitter TEXT DEFAULT '',
		linkedin TEXT DEFAULT '',
		github TEXT DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		slug TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		description TEXT DEFAULT '',
		color TEXT DEFAULT '',
		icon TEXT DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		slug TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tags_name ON tags(name)`,
	`CREATE TABLE IF NOT EXISTS media (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL UNIQUE,
		original_name TEXT NOT NULL,
		path TEXT NOT NULL,
		url TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		width INTEGER,
		height INTEGER,
		alt_text TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_media_created_at ON media(created_at)`,
}

type seedAuthor struct {
	slug, name, bio, avatar, email string
}

var defaultAuthors = []seedAuthor{
	{"studio-team", "Studio Team", "The people behind the studio's design, development and strategy work.", "/images/authors/studio-team.png", "hello@studio.example"},
	{"editorial", "Editorial Desk", "Notes, guides and case studies from the editorial desk.", "/images/authors/editorial.png", "editorial@studio.example"},
}

type seedCategory struct {
	slug, name, description, color, icon string
}

var defaultCategories = []seedCategory{
	{"web-development", "Web Development", "Building fast, accessible websites and web apps.", "#2563eb", "💻"},
	{"design", "Design", "UI, UX and visual design.", "#db2777", "🎨"},
	{"marketing", "Marketing", "Campaigns, content and growth.", "#f59e0b", "📣"},
	{"seo", "SEO", "Search visibility and technical SEO.", "#16a34a", "🔍"},
	{"e-commerce", "E-commerce", "Online stores and checkout flows.", "#7c3aed", "🛒"},
	{"branding", "Branding", "Identity, voice and positioning.", "#dc2626", "✨"},
	{"technology", "Technology", "Tools, frameworks and infrastructure.", "#0891b2", "⚙️"},
	{"case-studies", "Case Studies", "Client projects and what we learned.", "#4b5563", "📁"},
}

// bootstrap creates the schema and seeds reference rows in one transaction,
// so a partially created schema is never visible. Existing seed rows are
// left untouched.
func bootstrap(ctx context.Context, db *sql.DB, now time.Time) error {
	ts := formatTime(now)
	err := withTx(ctx, db, func(tx *sql.Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return eris.Wrap(err, "creating schema")
			}
		}
		for _, a := range defaultAuthors {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO authors (slug, name, bio, avatar, email, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				a.slug, a.name, a.bio, a.avatar, a.email, ts, ts); err != nil {
				return eris.Wrapf(err, "seeding author %s", a.slug)
			}
		}
		for _, c := range defaultCategories {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO categories (slug, name, description, color, icon, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				c.slug, c.name, c.description, c.color, c.icon, ts, ts); err != nil {
				return eris.Wrapf(err, "seeding category %s", c.slug)
			}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO schema_meta (key, value) VALUES ('schema_version', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			strconv.Itoa(schemaVersion))
		return err
	})
	if err != nil {
		return eris.Wrap(err, "bootstrapping schema")
	}
	return nil
}

// SchemaVersion reads the version recorded by the bootstrapper.
func (m *Manager) SchemaVersion(ctx context.Context) (int, error) {
	return ExecuteWithRetry(ctx, m, func(ctx context.Context, db *sql.DB) (int, error) {
		var v string
		if err := db.QueryRowContext(ctx, `SELECT value FROM schema_meta WHERE key = 'schema_version'`).Scan(&v); err != nil {
			return 0, err
		}
		return strconv.Atoi(v)
	})
}
