package api

import (
	"context"

	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/notes"
)

// Service is the engine surface the HTTP bridge calls.
type Service interface {
	CreateNote(ctx context.Context, path string) (*notes.Note, error)
	GetNote(ctx context.Context, path string) (*notes.Note, error)
	SaveNote(ctx context.Context, path string, content []byte) (*index.NoteMetadata, error)
	DeleteNote(ctx context.Context, path string) error
	RenameNote(ctx context.Context, oldPath, newPath string) error
	ArchiveNote(ctx context.Context, path string) error
	UnarchiveNote(ctx context.Context, path string) error
	NoteExists(ctx context.Context, path string) (bool, error)
	HasChildren(ctx context.Context, path string) (bool, error)
	GetChildren(ctx context.Context, path string) ([]index.NoteMetadata, error)
	GetParent(ctx context.Context, path string) (*index.NoteMetadata, error)
	GetAncestors(ctx context.Context, path string) ([]index.NoteMetadata, error)
	GetRootNotes(ctx context.Context) ([]index.NoteMetadata, error)
	Search(ctx context.Context, query string) ([]index.NoteMetadata, error)
	Rescan(ctx context.Context) (notes.SyncStats, error)
	SyncNote(ctx context.Context, path string) error
}

// ChangeNotifier tells outward listeners that notes changed on disk.
type ChangeNotifier interface {
	PublishNotes(renamed bool)
}

// Verify *notes.Engine satisfies Service at compile time.
var _ Service = (*notes.Engine)(nil)
