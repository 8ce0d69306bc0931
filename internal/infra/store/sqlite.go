package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/rs/zerolog/log"
)

const (
	// CurrentSchemaVersion is the current database schema version.
	CurrentSchemaVersion = "1"

	// DefaultDBPath is the default path for the state database.
	DefaultDBPath = "data/player.db"
)

func sqlitePath(dataDir string) string {
	if dataDir == "" {
		return DefaultDBPath
	}
	return filepath.Join(dataDir, "player.db")
}

// SQLite stores values in a single-table SQLite database.
type SQLite struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

// NewSQLite creates a new SQLite store. Call Open before use.
func NewSQLite(path string) *SQLite {
	if path == "" {
		path = DefaultDBPath
	}
	return &SQLite{path: path}
}

// Open opens the database and initializes the schema.
func (s *SQLite) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", s.path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open state database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s.db = db

	if err := s.initSchema(); err != nil {
		s.db.Close()
		s.db = nil
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info().Str("path", s.path).Msg("State database opened")
	return nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

func (s *SQLite) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at TEXT DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS store_meta (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at TEXT DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	var version string
	err := s.db.QueryRow("SELECT value FROM store_meta WHERE key = 'schema_version'").Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if version == CurrentSchemaVersion {
		return nil
	}
	if version != "" {
		log.Info().
			Str("current", version).
			Str("target", CurrentSchemaVersion).
			Msg("Migrating state schema")
	}
	now := time.Now().Format(time.RFC3339)
	_, err = s.db.Exec(`
		INSERT INTO store_meta (key, value, updated_at) VALUES ('schema_version', ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, CurrentSchemaVersion, now)
	return err
}

func (s *SQLite) conn() (*sql.DB, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not open")
	}
	return s.db, nil
}

// Get returns the value stored for key.
func (s *SQLite) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	var value []byte
	err = db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return value, err
}

// Set upserts the value for key.
func (s *SQLite) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().Format(time.RFC3339))
	return err
}

// Delete removes key.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key)
	return err
}

// Ping checks the database connection.
func (s *SQLite) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.conn()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// SchemaVersion returns the stored schema version.
func (s *SQLite) SchemaVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return ""
	}
	var version string
	if err := s.db.QueryRow("SELECT value FROM store_meta WHERE key = 'schema_version'").Scan(&version); err != nil {
		return ""
	}
	return version
}
