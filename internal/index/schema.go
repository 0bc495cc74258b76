// Package index provides the SQLite-backed note index with optional FTS5 full-text search.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// FileName is the default name of the index database inside the store root.
const FileName = ".notes.db"

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	path     TEXT    NOT NULL UNIQUE,
	parent   TEXT,
	title    TEXT    NOT NULL DEFAULT '',
	archived INTEGER NOT NULL DEFAULT 0,
	body     TEXT    NOT NULL DEFAULT '',
	folded   TEXT    NOT NULL DEFAULT '',
	modified INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_notes_parent ON notes(parent, archived);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
	path string
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn, path: dsn}, nil
}

// Path returns the database file the index was opened on.
func (db *DB) Path() string {
	return db.path
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
