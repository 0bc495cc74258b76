package api

import (
	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/notes"
)

// PathRequest is the request body for operations addressing one note.
type PathRequest struct {
	Path string `json:"path" example:"projects/rust-app"`
}

// SaveNoteRequest is the request body for replacing a note's content.
type SaveNoteRequest struct {
	Path    string `json:"path" example:"projects/rust-app"`
	Content string `json:"content" example:"# Rust app\nNotes"`
}

// RenameNoteRequest is the request body for moving a note.
type RenameNoteRequest struct {
	OldPath string `json:"old_path" example:"projects/rust-app" validate:"required"`
	NewPath string `json:"new_path" example:"projects/rust-service" validate:"required"`
}

// SyncRequest is the request body for POST /sync. Without a path the whole
// store is rescanned.
type SyncRequest struct {
	Path *string `json:"path,omitempty" example:"projects/rust-app"`
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = notes.Note

// NoteMetadata is the index view of a note (aliased from the index layer).
type NoteMetadata = index.NoteMetadata

// NoteListResponse wraps hierarchy and search listings.
type NoteListResponse struct {
	Notes []NoteMetadata `json:"notes" validate:"required"`
}

// ParentResponse wraps the parent lookup; Parent is null at the top level.
type ParentResponse struct {
	Parent *NoteMetadata `json:"parent"`
}

// ExistsResponse reports note existence and whether it has children.
type ExistsResponse struct {
	Exists      bool `json:"exists"`
	HasChildren bool `json:"has_children"`
}

// SyncResponse reports the outcome of a reconciliation.
type SyncResponse struct {
	Stats *notes.SyncStats `json:"stats,omitempty"`
}
