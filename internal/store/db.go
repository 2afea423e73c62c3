// Package store is the persistence layer: SQLite-backed repositories for
// templates, work items, workers, executions and traces (spec §4.1,
// Persistence Ports).
package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

//go:embed migrations/002_retry_stats.sql
var migration002 string

// DB wraps a SQLite connection and exposes the repository constructors.
// It owns schema migration and the shared transaction helper every
// repository builds on.
type DB struct {
	conn *sql.DB
}

// Open creates (if necessary) and migrates the SQLite database at path.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)

	d := &DB{conn: conn}
	if err := d.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}
	return d, nil
}

func (d *DB) migrate() error {
	if _, err := d.conn.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	err := d.conn.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to check schema version: %w", err)
	}

	if version < 2 {
		log.Println("[STORE] running migration to v2: add work_items.last_error")
		if _, err := d.conn.Exec(migration002); err != nil {
			return fmt.Errorf("failed to run migration 002: %w", err)
		}
		log.Println("[STORE] migrated to schema v2")
	}

	return nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

// withTx executes fn inside a transaction, committing on success and
// rolling back on any error returned from fn.
func (d *DB) withTx(fn func(*sql.Tx) error) error {
	tx, err := d.conn.Begin()
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

// nullString converts an empty string to sql.NullString so optional text
// columns round-trip as SQL NULL rather than the empty string.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullTime converts a nil time pointer to sql.NullTime.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// timePtr returns nil for a zero-valued NullTime, otherwise a pointer to
// its Time.
func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
