package index

import (
	"errors"
	"fmt"
	"strings"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/notepath"
)

// Children returns the notes directly under path. Archived children only
// show up when path itself is inside an archive.
func (db *DB) Children(path string) ([]NoteMetadata, error) {
	rows, err := db.conn.Query(`
		SELECT `+metaColumns+` FROM notes
		WHERE parent = ? AND archived = ?
		ORDER BY path
	`, path, boolInt(notepath.IsArchived(path)))
	if err != nil {
		return nil, fmt.Errorf("index: children of %q: %w", path, err)
	}
	return collectMeta(rows)
}

// HasChildren reports whether Children(path) would be non-empty.
func (db *DB) HasChildren(path string) (bool, error) {
	var ok bool
	err := db.conn.QueryRow(`
		SELECT EXISTS (SELECT 1 FROM notes WHERE parent = ? AND archived = ?)
	`, path, boolInt(notepath.IsArchived(path))).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("index: has children %q: %w", path, err)
	}
	return ok, nil
}

// Parent returns the note one level above path, or nil when that directory
// is not a note or path is top-level.
func (db *DB) Parent(path string) (*NoteMetadata, error) {
	parent, ok := notepath.Parent(path)
	if !ok {
		return nil, nil
	}
	m, err := db.Get(parent)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return m, err
}

// Ancestors returns the notes above path, root-most first. Directories that
// are not notes are skipped.
func (db *DB) Ancestors(path string) ([]NoteMetadata, error) {
	chain := notepath.Ancestors(path)
	if len(chain) == 0 {
		return []NoteMetadata{}, nil
	}
	args := make([]any, len(chain))
	for i, p := range chain {
		args[i] = p
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chain)), ",")
	rows, err := db.conn.Query(`SELECT `+metaColumns+` FROM notes WHERE path IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: ancestors of %q: %w", path, err)
	}
	found, err := collectMeta(rows)
	if err != nil {
		return nil, err
	}
	byPath := make(map[string]NoteMetadata, len(found))
	for _, m := range found {
		byPath[m.Path] = m
	}
	out := make([]NoteMetadata, 0, len(found))
	for _, p := range chain {
		if m, ok := byPath[p]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// Roots returns the non-archived notes that have no ancestor note. The root
// note itself is not listed.
func (db *DB) Roots() ([]NoteMetadata, error) {
	rows, err := db.conn.Query(`
		SELECT ` + metaColumns + ` FROM notes n
		WHERE n.archived = 0
		  AND n.parent IS NOT NULL
		  AND NOT EXISTS (
			SELECT 1 FROM notes a
			WHERE a.parent IS NOT NULL
			  AND substr(n.path, 1, length(a.path) + 1) = a.path || '/'
		  )
		ORDER BY n.path
	`)
	if err != nil {
		return nil, fmt.Errorf("index: roots: %w", err)
	}
	return collectMeta(rows)
}
