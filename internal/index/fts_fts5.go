//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
	"unicode/utf8"
)

// The trigram tokenizer gives case-insensitive substring matching for
// queries of three or more characters.
func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
			body,
			tokenize = 'trigram'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, id int64, body string) error {
	_, _ = tx.Exec(`DELETE FROM notes_fts WHERE rowid = ?`, id)
	if _, err := tx.Exec(`INSERT INTO notes_fts (rowid, body) VALUES (?, ?)`, id, body); err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, where string, args []any) error {
	if _, err := tx.Exec(`DELETE FROM notes_fts WHERE rowid IN (SELECT id FROM notes WHERE `+where+`)`, args...); err != nil {
		return fmt.Errorf("index: delete fts: %w", err)
	}
	return nil
}

// Search returns every note whose content contains query, ignoring case.
func (db *DB) Search(query string) ([]NoteMetadata, error) {
	if query == "" {
		return []NoteMetadata{}, nil
	}
	folded := strings.ToLower(query)
	if utf8.RuneCountInString(folded) < 3 {
		return db.substringSearch(folded)
	}
	phrase := `"` + strings.ReplaceAll(folded, `"`, `""`) + `"`
	rows, err := db.conn.Query(`
		SELECT n.id, n.path, n.title, n.modified, n.archived
		FROM notes_fts f
		JOIN notes n ON n.id = f.rowid
		WHERE notes_fts MATCH ?
		ORDER BY n.path
	`, phrase)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return collectMeta(rows)
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
