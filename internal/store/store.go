// Package store persists principals, incantations, mishaps, incidents and
// config values in SQLite. Either the cgo driver (mattn/go-sqlite3, driver
// name "sqlite3") or the pure Go driver (modernc.org/sqlite, driver name
// "sqlite") can be selected.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"jinn/internal/logging"
)

// Store is the SQLite-backed persistence layer.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// Open opens (creating if needed) the database at dbPath, applies the schema
// and seeds default config values. Use ":memory:" for an ephemeral store.
func Open(driver, dbPath string) (*Store, error) {
	if driver == "" {
		driver = "sqlite3"
	}
	logging.StoreDebug("Opening %s store at path: %s", driver, dbPath)

	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			logging.StoreError("Failed to create store directory %s: %v", dir, err)
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open(driver, dbPath)
	if err != nil {
		logging.StoreError("Failed to open database at %s: %v", dbPath, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writes and keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, dbPath: dbPath}
	if err := s.initialize(); err != nil {
		logging.StoreError("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}
	if err := s.seedConfig(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("Store initialized at %s", dbPath)
	return s, nil
}

// initialize creates the database schema.
func (s *Store) initialize() error {
	schema := `
	PRAGMA foreign_keys = ON;

	CREATE TABLE IF NOT EXISTS principals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		moniker TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		admin INTEGER NOT NULL DEFAULT 0,
		verified INTEGER NOT NULL DEFAULT 0,
		token TEXT UNIQUE NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS incantations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_id INTEGER NOT NULL REFERENCES principals(id),
		public INTEGER NOT NULL DEFAULT 0,
		name TEXT NOT NULL,
		request TEXT NOT NULL,
		code TEXT NOT NULL,
		schema TEXT NOT NULL,
		overrides TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_incantations_owner ON incantations(owner_id);

	CREATE TABLE IF NOT EXISTS mishaps (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		incantation_id INTEGER NOT NULL REFERENCES incantations(id),
		request TEXT NOT NULL,
		code TEXT NOT NULL,
		traceback TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_mishaps_incantation ON mishaps(incantation_id);

	CREATE TABLE IF NOT EXISTS incidents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		traceback TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.dbPath
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
