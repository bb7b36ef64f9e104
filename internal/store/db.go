// Package store is the relational persistence layer for the agent memory
// service: SQLite (mattn/go-sqlite3) with WAL mode and FTS5, following
// the connection and migration pattern of the teacher's
// internal/memory/db.go. All read/write paths here filter by tenant_id.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// DefaultQueryTimeout bounds any single store call, per spec section 5.
const DefaultQueryTimeout = 30 * time.Second

// DefaultMaxOpenConns is the bounded pool size from spec section 5.
const DefaultMaxOpenConns = 20

// Store wraps a SQLite connection pool with the schema and indexes the
// agent memory service needs.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates (or reuses) a SQLite-backed Store at path, running
// migrations before returning.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(5)

	s := &Store{db: db, path: path}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	err := s.db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to check schema version: %w", err)
	}

	if version < 1 {
		log.Println("[STORE] Initializing schema v1")
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (1)"); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
	}

	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// withTx executes fn inside a transaction, rolling back on error or
// context cancellation and committing otherwise.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// nullString converts an empty string to sql.NullString.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullStringPtr converts an optional string pointer to sql.NullString,
// treating a nil pointer and an explicit-null field identically.
func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: *s, Valid: true}
}

func ptrFromNull(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

// HealthStatus reports the operational state of the store.
type HealthStatus struct {
	Connected     bool   `json:"connected"`
	SchemaVersion int    `json:"schema_version"`
	EventCount    int    `json:"event_count"`
	ChunkCount    int    `json:"chunk_count"`
	CapsuleCount  int    `json:"capsule_count"`
	DBPath        string `json:"db_path"`
	DBSizeBytes   int64  `json:"db_size_bytes"`
}

// Health reports counts and connectivity, mirroring the teacher's
// HealthStatus/Health() surface in internal/memory/interface.go.
func (s *Store) Health() (*HealthStatus, error) {
	h := &HealthStatus{DBPath: s.path}

	if err := s.db.Ping(); err != nil {
		return h, fmt.Errorf("store ping failed: %w", err)
	}
	h.Connected = true

	if err := s.db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&h.SchemaVersion); err != nil && err != sql.ErrNoRows {
		return h, fmt.Errorf("failed to read schema version: %w", err)
	}

	s.db.QueryRow("SELECT COUNT(*) FROM events").Scan(&h.EventCount)
	s.db.QueryRow("SELECT COUNT(*) FROM chunks").Scan(&h.ChunkCount)
	s.db.QueryRow("SELECT COUNT(*) FROM capsules").Scan(&h.CapsuleCount)

	if s.path != ":memory:" {
		if fi, err := os.Stat(s.path); err == nil {
			h.DBSizeBytes = fi.Size()
		}
	}

	return h, nil
}
