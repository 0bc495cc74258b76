package notes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/notepath"
	"github.com/starford/folio/internal/parser"
)

// CreateNote writes an empty note at path and indexes it.
func (e *Engine) CreateNote(ctx context.Context, path string) (*Note, error) {
	var out *Note
	err := e.do(ctx, "create", func() error {
		p, err := clean(path)
		if err != nil {
			return err
		}
		if err := notepath.CheckPlain(p); err != nil {
			return err
		}
		if err := e.store.Create(p); err != nil {
			return err
		}
		// A leftover entry for a note deleted behind our back must not lend
		// its id to the new note.
		if err := e.idx.Remove(p); err != nil {
			return err
		}
		m, err := e.index(p, nil)
		if err != nil {
			return err
		}
		out = noteFrom(m, nil)
		return nil
	})
	return out, err
}

// GetNote reads a note from disk and attaches its index metadata. A note
// missing from the index is indexed on the spot; an index entry whose file
// is gone is dropped.
func (e *Engine) GetNote(ctx context.Context, path string) (*Note, error) {
	var out *Note
	err := e.do(ctx, "get", func() error {
		p, err := clean(path)
		if err != nil {
			return err
		}
		data, err := e.store.Read(p)
		if errors.Is(err, apperr.ErrNotFound) {
			if rmErr := e.idx.Remove(p); rmErr != nil {
				e.logger.Warn("drop stale index entry", slog.String("path", p), slog.String("error", rmErr.Error()))
			}
			return err
		}
		if err != nil {
			return err
		}
		m, err := e.idx.Get(p)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			e.logger.Debug("indexing note on read", slog.String("path", p))
			idx, err := e.index(p, data)
			if err != nil {
				return err
			}
			m = &idx
		case err != nil:
			return err
		}
		out = noteFrom(*m, data)
		return nil
	})
	return out, err
}

// SaveNote replaces the content of an existing note.
func (e *Engine) SaveNote(ctx context.Context, path string, content []byte) (*index.NoteMetadata, error) {
	var out *index.NoteMetadata
	err := e.do(ctx, "save", func() error {
		p, err := clean(path)
		if err != nil {
			return err
		}
		if err := e.mustExist(p); err != nil {
			return err
		}
		if err := e.store.Write(p, content); err != nil {
			return err
		}
		m, err := e.index(p, content)
		if err != nil {
			return err
		}
		out = &m
		return nil
	})
	return out, err
}

// DeleteNote removes the note and all its descendants.
func (e *Engine) DeleteNote(ctx context.Context, path string) error {
	return e.do(ctx, "delete", func() error {
		p, err := clean(path)
		if err != nil {
			return err
		}
		if p == "" {
			return fmt.Errorf("notes: delete: %w: the root note cannot be deleted", apperr.ErrInvalidPath)
		}
		if err := e.mustExist(p); err != nil {
			return err
		}
		if err := e.store.Delete(p); err != nil {
			return err
		}
		n, err := e.idx.RemoveSubtree(p)
		if err != nil {
			return err
		}
		e.logger.Info("note deleted", slog.String("path", p), slog.Int("removed", n))
		return nil
	})
}

// RenameNote moves a note and its subtree to newPath. Index ids survive the move.
func (e *Engine) RenameNote(ctx context.Context, oldPath, newPath string) error {
	return e.do(ctx, "rename", func() error {
		src, err := clean(oldPath)
		if err != nil {
			return err
		}
		dst, err := clean(newPath)
		if err != nil {
			return err
		}
		if err := notepath.CheckPlain(dst); err != nil {
			return err
		}
		return e.rename(src, dst)
	})
}

// ArchiveNote moves path under the _archive directory of its parent.
func (e *Engine) ArchiveNote(ctx context.Context, path string) error {
	return e.do(ctx, "archive", func() error {
		p, err := clean(path)
		if err != nil {
			return err
		}
		dst, err := notepath.ArchivePath(p)
		if err != nil {
			return err
		}
		return e.rename(p, dst)
	})
}

// UnarchiveNote restores an archived note. Both "a/_archive/b" and its
// logical path "a/b" are accepted.
func (e *Engine) UnarchiveNote(ctx context.Context, path string) error {
	return e.do(ctx, "unarchive", func() error {
		p, err := clean(path)
		if err != nil {
			return err
		}
		if dst, err := notepath.UnarchivePath(p); err == nil {
			return e.rename(p, dst)
		}
		src, err := notepath.ArchivePath(p)
		if err != nil {
			return err
		}
		return e.rename(src, p)
	})
}

func (e *Engine) rename(src, dst string) error {
	switch {
	case src == "" || dst == "":
		return fmt.Errorf("notes: rename: %w: the root note cannot be moved", apperr.ErrInvalidPath)
	case src == dst:
		return fmt.Errorf("notes: rename: %w: source and target are the same", apperr.ErrInvalidPath)
	case notepath.IsWithin(dst, src):
		return fmt.Errorf("notes: rename %q into its own subtree: %w", src, apperr.ErrInvalidPath)
	case notepath.IsWithin(src, dst):
		return fmt.Errorf("notes: rename %q onto its ancestor: %w", src, apperr.ErrInvalidPath)
	}
	if err := e.mustExist(src); err != nil {
		return err
	}
	exists, err := e.store.Exists(dst)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("notes: rename to %q: %w", dst, apperr.ErrAlreadyExists)
	}
	if err := e.store.Move(src, dst); err != nil {
		return err
	}
	moved, err := e.idx.Relocate(src, dst)
	if err != nil {
		return err
	}
	stats, err := e.reconcile(dst)
	if err != nil {
		return err
	}
	e.logger.Info("note moved",
		slog.String("from", src),
		slog.String("to", dst),
		slog.Int("relocated", moved),
		slog.Int("indexed", stats.Indexed),
	)
	return nil
}

// NoteExists reports whether a content file exists at path.
func (e *Engine) NoteExists(ctx context.Context, path string) (bool, error) {
	var ok bool
	err := e.do(ctx, "exists", func() error {
		p, err := clean(path)
		if err != nil {
			return err
		}
		ok, err = e.store.Exists(p)
		return err
	})
	return ok, err
}

// HasChildren reports whether path has indexed child notes.
func (e *Engine) HasChildren(ctx context.Context, path string) (bool, error) {
	var ok bool
	err := e.do(ctx, "has children", func() error {
		p, err := clean(path)
		if err != nil {
			return err
		}
		ok, err = e.idx.HasChildren(p)
		return err
	})
	return ok, err
}

// GetChildren lists the notes directly below path.
func (e *Engine) GetChildren(ctx context.Context, path string) ([]index.NoteMetadata, error) {
	return e.list(ctx, "children", path, e.idx.Children)
}

// GetAncestors lists the notes above path, root-most first.
func (e *Engine) GetAncestors(ctx context.Context, path string) ([]index.NoteMetadata, error) {
	return e.list(ctx, "ancestors", path, e.idx.Ancestors)
}

// GetParent returns the note directly above path, or nil.
func (e *Engine) GetParent(ctx context.Context, path string) (*index.NoteMetadata, error) {
	var out *index.NoteMetadata
	err := e.do(ctx, "parent", func() error {
		p, err := clean(path)
		if err != nil {
			return err
		}
		out, err = e.idx.Parent(p)
		return err
	})
	return out, err
}

// GetRootNotes lists the top-most non-archived notes.
func (e *Engine) GetRootNotes(ctx context.Context) ([]index.NoteMetadata, error) {
	var out []index.NoteMetadata
	err := e.do(ctx, "roots", func() error {
		var err error
		out, err = e.idx.Roots()
		return err
	})
	return out, err
}

// Search finds notes whose content contains query, ignoring case.
func (e *Engine) Search(ctx context.Context, query string) ([]index.NoteMetadata, error) {
	var out []index.NoteMetadata
	err := e.do(ctx, "search", func() error {
		var err error
		out, err = e.idx.Search(query)
		return err
	})
	return out, err
}

func (e *Engine) list(ctx context.Context, op, path string, fn func(string) ([]index.NoteMetadata, error)) ([]index.NoteMetadata, error) {
	var out []index.NoteMetadata
	err := e.do(ctx, op, func() error {
		p, err := clean(path)
		if err != nil {
			return err
		}
		out, err = fn(p)
		return err
	})
	return out, err
}

func (e *Engine) mustExist(path string) error {
	ok, err := e.store.Exists(path)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("notes: %q: %w", path, apperr.ErrNotFound)
	}
	return nil
}

// index upserts path with content. A nil content means an empty note.
func (e *Engine) index(path string, content []byte) (index.NoteMetadata, error) {
	mod, err := e.store.Stat(path)
	if err != nil {
		return index.NoteMetadata{}, err
	}
	return e.idx.Upsert(index.Entry{
		Path:     path,
		Title:    parser.Title(content),
		Body:     string(content),
		Modified: mod,
	})
}
