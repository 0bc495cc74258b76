// Package notes keeps the note tree on disk and the SQLite index consistent.
// Every mutation goes to the file system first and is then mirrored in the
// index; reconciliation repairs whatever drifted in between.
package notes

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/notepath"
	"github.com/starford/folio/internal/storage"
)

// Note is the full representation of a note.
type Note struct {
	ID       int64     `json:"id"`
	Path     string    `json:"path"`
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	Modified time.Time `json:"modified"`
	Archived bool      `json:"archived"`
}

// SyncStats summarises one reconciliation pass.
type SyncStats struct {
	Scanned int `json:"scanned"`
	Indexed int `json:"indexed"`
	Removed int `json:"removed"`
}

// Engine coordinates storage and index operations. It is safe for
// concurrent use; operations are serialised.
type Engine struct {
	store  storage.Provider
	idx    index.NoteIndex
	logger *slog.Logger

	mu       sync.Mutex
	poisoned bool
}

// NewEngine creates an engine over store and idx. A nil logger falls back to slog.Default.
func NewEngine(store storage.Provider, idx index.NoteIndex, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, idx: idx, logger: logger}
}

// Root returns the absolute store directory.
func (e *Engine) Root() string { return e.store.Root() }

// IndexPath returns the index database file.
func (e *Engine) IndexPath() string { return e.idx.Path() }

// do runs fn under the engine lock. A panic in fn poisons the engine for good.
func (e *Engine) do(ctx context.Context, op string, fn func() error) (err error) {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("notes: %s: %w", op, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.poisoned {
		return fmt.Errorf("notes: %s: %w", op, apperr.ErrPoisoned)
	}
	defer func() {
		if r := recover(); r != nil {
			e.poisoned = true
			e.logger.Error("operation panicked, engine poisoned",
				slog.String("op", op),
				slog.Any("panic", r),
			)
			err = fmt.Errorf("notes: %s: %w: %v", op, apperr.ErrPoisoned, r)
		}
	}()
	return fn()
}

func clean(path string) (string, error) {
	p, err := notepath.Normalize(path)
	if err != nil {
		return "", fmt.Errorf("notes: %w", err)
	}
	return p, nil
}

func noteFrom(m index.NoteMetadata, content []byte) *Note {
	return &Note{
		ID:       m.ID,
		Path:     m.Path,
		Title:    m.Title,
		Content:  string(content),
		Modified: m.Modified,
		Archived: m.Archived,
	}
}
