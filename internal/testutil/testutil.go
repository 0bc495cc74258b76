// Package testutil provides shared test helpers for setting up stores, indexes, and engines.
package testutil

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/notes"
	"github.com/starford/folio/internal/storage"
)

// TestStore creates a temporary store directory with a storage.Provider.
func TestStore(t *testing.T) (string, storage.Provider) {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, store
}

// TestEngine wires a temporary store and its index (at the default location
// inside the store) into an engine with logging discarded.
func TestEngine(t *testing.T) (string, *notes.Engine) {
	t.Helper()
	root, store := TestStore(t)
	db, err := index.Open(filepath.Join(root, index.FileName))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return root, notes.NewEngine(store, db, Logger())
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}
