//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search scans the folded body column.
	return nil
}

func ftsUpsert(_ *sql.Tx, _ int64, _ string) error {
	// Body is already stored in the notes table; nothing extra to do.
	return nil
}

func ftsDelete(_ *sql.Tx, _ string, _ []any) error { return nil }

// Search returns every note whose content contains query, ignoring case.
func (db *DB) Search(query string) ([]NoteMetadata, error) {
	if query == "" {
		return []NoteMetadata{}, nil
	}
	folded := strings.ToLower(query)
	return db.substringSearch(folded)
}

func (db *DB) substringSearch(folded string) ([]NoteMetadata, error) {
	rows, err := db.conn.Query(`
		SELECT `+metaColumns+` FROM notes
		WHERE instr(folded, ?) > 0
		ORDER BY path
	`, folded)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return collectMeta(rows)
}
