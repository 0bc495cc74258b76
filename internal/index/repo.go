package index

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/notepath"
)

// NoteMetadata is the lightweight, index-resident view of a note.
type NoteMetadata struct {
	ID       int64     `json:"id"`
	Path     string    `json:"path"`
	Title    string    `json:"title,omitempty"`
	Modified time.Time `json:"modified"`
	Archived bool      `json:"archived"`
}

// Entry is the input for an index insert or update.
type Entry struct {
	Path     string
	Title    string
	Body     string
	Modified time.Time
}

const metaColumns = `id, path, title, modified, archived`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeta(r rowScanner) (NoteMetadata, error) {
	var (
		m        NoteMetadata
		modified int64
		archived int
	)
	if err := r.Scan(&m.ID, &m.Path, &m.Title, &modified, &archived); err != nil {
		return NoteMetadata{}, err
	}
	m.Modified = time.Unix(0, modified)
	m.Archived = archived != 0
	return m, nil
}

func collectMeta(rows *sql.Rows) ([]NoteMetadata, error) {
	defer rows.Close()
	out := []NoteMetadata{}
	for rows.Next() {
		m, err := scanMeta(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// subtree returns a WHERE fragment matching path and all its descendants.
// SQLite's substr and length count characters, hence the rune count.
func subtree(path string) (string, []any) {
	if path == "" {
		return "1 = 1", nil
	}
	prefix := path + "/"
	return "(path = ? OR substr(path, 1, ?) = ?)", []any{path, utf8.RuneCountInString(prefix), prefix}
}

func parentValue(path string) sql.NullString {
	if path == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: notepath.ParentKey(path), Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func upsertTx(tx *sql.Tx, e Entry) (int64, error) {
	var id int64
	err := tx.QueryRow(`
		INSERT INTO notes (path, parent, title, archived, body, folded, modified)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title    = excluded.title,
			body     = excluded.body,
			folded   = excluded.folded,
			modified = excluded.modified
		RETURNING id
	`, e.Path, parentValue(e.Path), e.Title, boolInt(notepath.IsArchived(e.Path)),
		e.Body, strings.ToLower(e.Body), e.Modified.UnixNano()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("index: upsert %q: %w", e.Path, err)
	}
	if err := ftsUpsert(tx, id, e.Body); err != nil {
		return 0, err
	}
	return id, nil
}

func removeTx(tx *sql.Tx, where string, args []any) (int, error) {
	if err := ftsDelete(tx, where, args); err != nil {
		return 0, err
	}
	res, err := tx.Exec(`DELETE FROM notes WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("index: delete: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Get returns the metadata for path, or apperr.ErrNotFound.
func (db *DB) Get(path string) (*NoteMetadata, error) {
	m, err := scanMeta(db.conn.QueryRow(`SELECT `+metaColumns+` FROM notes WHERE path = ?`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: %q: %w", path, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get %q: %w", path, err)
	}
	return &m, nil
}

// Upsert inserts or updates the entry for e.Path. The id is assigned on first
// insert and kept on every later update.
func (db *DB) Upsert(e Entry) (NoteMetadata, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return NoteMetadata{}, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	id, err := upsertTx(tx, e)
	if err != nil {
		return NoteMetadata{}, err
	}
	if err := tx.Commit(); err != nil {
		return NoteMetadata{}, fmt.Errorf("index: commit: %w", err)
	}
	return NoteMetadata{
		ID:       id,
		Path:     e.Path,
		Title:    e.Title,
		Modified: time.Unix(0, e.Modified.UnixNano()),
		Archived: notepath.IsArchived(e.Path),
	}, nil
}

// Remove deletes the single entry for path. Missing entries are not an error.
func (db *DB) Remove(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := removeTx(tx, "path = ?", []any{path}); err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveSubtree deletes path and every descendant and reports how many
// entries were removed.
func (db *DB) RemoveSubtree(path string) (int, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	where, args := subtree(path)
	n, err := removeTx(tx, where, args)
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// Relocate rewrites oldPath and every descendant to live under newPath,
// keeping ids. Stale entries already under newPath are dropped first.
func (db *DB) Relocate(oldPath, newPath string) (int, error) {
	if notepath.IsWithin(newPath, oldPath) || notepath.IsWithin(oldPath, newPath) {
		return 0, fmt.Errorf("index: relocate %q to %q: %w", oldPath, newPath, apperr.ErrInvalidPath)
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	where, args := subtree(newPath)
	if _, err := removeTx(tx, where, args); err != nil {
		return 0, err
	}

	where, args = subtree(oldPath)
	rows, err := tx.Query(`SELECT id, path FROM notes WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("index: relocate select: %w", err)
	}
	type move struct {
		id   int64
		path string
	}
	var moves []move
	for rows.Next() {
		var m move
		if err := rows.Scan(&m.id, &m.path); err != nil {
			rows.Close()
			return 0, err
		}
		moves = append(moves, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(`UPDATE notes SET path = ?, parent = ?, archived = ? WHERE id = ?`)
	if err != nil {
		return 0, fmt.Errorf("index: prepare relocate: %w", err)
	}
	defer stmt.Close()
	for _, m := range moves {
		p := notepath.Rebase(m.path, oldPath, newPath)
		if _, err := stmt.Exec(p, parentValue(p), boolInt(notepath.IsArchived(p)), m.id); err != nil {
			return 0, fmt.Errorf("index: relocate %q: %w", m.path, err)
		}
	}
	return len(moves), tx.Commit()
}

// Apply performs a batch of upserts and single-entry removals in one transaction.
func (db *DB) Apply(upserts []Entry, removals []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, p := range removals {
		if _, err := removeTx(tx, "path = ?", []any{p}); err != nil {
			return err
		}
	}
	for _, e := range upserts {
		if _, err := upsertTx(tx, e); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Modified returns the recorded modification time of every indexed path at
// or below path.
func (db *DB) Modified(path string) (map[string]time.Time, error) {
	where, args := subtree(path)
	rows, err := db.conn.Query(`SELECT path, modified FROM notes WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("index: modified under %q: %w", path, err)
	}
	defer rows.Close()
	out := make(map[string]time.Time)
	for rows.Next() {
		var (
			p string
			n int64
		)
		if err := rows.Scan(&p, &n); err != nil {
			return nil, err
		}
		out[p] = time.Unix(0, n)
	}
	return out, rows.Err()
}

// Count returns the number of indexed notes.
func (db *DB) Count() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}
