// Package store provides the SQLite-backed durable store for queue items,
// topics, and the generator artifact cache.
//
// The database is opened in WAL journal mode so the worker pool's readers
// proceed concurrently with the single writer. Writers contend on the
// engine's write lock; every write here goes through a bounded retry loop
// on SQLITE_BUSY/SQLITE_LOCKED, with the engine-level busy_timeout pragma
// as a second line of defense.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3" // register "sqlite3" driver for database/sql
)

//go:embed migrations
var migrationsFS embed.FS

// Sentinel errors returned by store operations.
var (
	// ErrNotFound is returned when a queue item or topic does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState is returned when a state transition is requested on
	// an item that is not in the required state.
	ErrInvalidState = errors.New("invalid state for transition")
)

// Config holds store configuration.
type Config struct {
	// Path is the database file location. ":memory:" is accepted for tests.
	Path string

	// BusyTimeout is applied via the busy_timeout pragma.
	BusyTimeout time.Duration
}

// Store is the single source of truth for queue state, topics, and cached
// generator artifacts. Safe for concurrent use: connection handles are
// leased per call from the database/sql pool, never shared across
// goroutines.
type Store struct {
	db *sql.DB

	// legacy is true when the queue table predates the two-column title
	// schema: a single "title" column, no "current_title". Reads branch on
	// this; cleaned titles are not persisted in legacy mode.
	legacy bool
}

// Open opens (or creates) the database at cfg.Path, enables WAL mode,
// detects the queue table schema generation, and applies migrations for
// new deployments.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", cfg.Path, err)
	}

	// The pool hands each goroutine its own connection for the duration of
	// a call. SQLite serializes writers internally, so a modest pool is
	// enough to keep readers concurrent without hoarding file handles.
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	s := &Store{db: db}

	legacy, err := s.detectLegacySchema(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.legacy = legacy

	if legacy {
		slog.Warn("Queue table uses the legacy single-title schema; cleaned titles will not be persisted",
			"path", cfg.Path)
		if err := s.ensureAuxTables(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	} else if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// dsn builds the go-sqlite3 connection string. WAL mode, NORMAL sync, and
// immediate transactions (write intent declared up front, so concurrent
// Enqueue calls serialize cleanly instead of deadlocking on upgrade).
func dsn(cfg Config) string {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	q.Set("_busy_timeout", fmt.Sprintf("%d", cfg.BusyTimeout.Milliseconds()))
	q.Set("_txlock", "immediate")
	q.Set("_foreign_keys", "on")
	return "file:" + cfg.Path + "?" + q.Encode()
}

// detectLegacySchema inspects the queue table definition. Returns true when
// the table exists but lacks the current_title column (historic schema with
// a single "title" column).
func (s *Store) detectLegacySchema(ctx context.Context) (bool, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'topic_queue'`).
		Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: inspect schema: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `PRAGMA table_info(topic_queue)`)
	if err != nil {
		return false, fmt.Errorf("store: read table info: %w", err)
	}
	defer rows.Close()

	hasCurrentTitle := false
	for rows.Next() {
		var (
			cid        int
			colName    string
			colType    string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &defaultVal, &pk); err != nil {
			return false, fmt.Errorf("store: scan table info: %w", err)
		}
		if colName == "current_title" {
			hasCurrentTitle = true
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("store: table info rows: %w", err)
	}
	return !hasCurrentTitle, nil
}

// runMigrations applies the embedded SQL migrations. Used for new
// deployments and existing two-column databases.
func runMigrations(db *sql.DB) error {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("store: create migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("store: create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("store: apply migrations: %w", err)
	}

	// Close only the source. m.Close() would also close the database driver
	// and with it the shared *sql.DB.
	if err := sourceDriver.Close(); err != nil {
		return fmt.Errorf("store: close migration source: %w", err)
	}
	return nil
}

// ensureAuxTables creates the topics and artifact_cache tables when the
// queue table is legacy-managed and golang-migrate cannot own the schema.
func (s *Store) ensureAuxTables(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS topics (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    topic_status_id  INTEGER   NOT NULL UNIQUE,
    title            TEXT      NOT NULL,
    description      TEXT      NOT NULL DEFAULT '',
    category         TEXT      NOT NULL DEFAULT '',
    tags             TEXT      NOT NULL DEFAULT '[]',
    technologies     TEXT      NOT NULL DEFAULT '[]',
    complexity_level TEXT      NOT NULL DEFAULT '',
    extra            TEXT      NOT NULL DEFAULT '{}',
    created_at       TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS artifact_cache (
    fingerprint TEXT      PRIMARY KEY,
    payload     TEXT      NOT NULL,
    created_at  TIMESTAMP NOT NULL,
    updated_at  TIMESTAMP NOT NULL
);`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("store: create auxiliary tables: %w", err)
	}
	return nil
}

// Legacy reports whether the store is running against the historic
// single-title queue schema.
func (s *Store) Legacy() bool {
	return s.legacy
}

// Close closes the underlying database pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// titleColumn is the column holding the user-submitted title.
func (s *Store) titleColumn() string {
	if s.legacy {
		return "title"
	}
	return "original_title"
}

// queueColumns is the select list for queue item scans. In legacy mode the
// missing current_title column is projected as NULL so every read path
// shares one scanner.
func (s *Store) queueColumns() string {
	if s.legacy {
		return "id, title, NULL, state, error_message, created_at, updated_at"
	}
	return "id, original_title, current_title, state, error_message, created_at, updated_at"
}
