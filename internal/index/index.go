package index

import "time"

// NoteIndex defines the interface for note indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type NoteIndex interface {
	Get(path string) (*NoteMetadata, error)
	Upsert(e Entry) (NoteMetadata, error)
	Remove(path string) error
	RemoveSubtree(path string) (int, error)
	Relocate(oldPath, newPath string) (int, error)
	Apply(upserts []Entry, removals []string) error
	Children(path string) ([]NoteMetadata, error)
	HasChildren(path string) (bool, error)
	Parent(path string) (*NoteMetadata, error)
	Ancestors(path string) ([]NoteMetadata, error)
	Roots() ([]NoteMetadata, error)
	Search(query string) ([]NoteMetadata, error)
	Modified(path string) (map[string]time.Time, error)
	Count() (int, error)
	Path() string
	Close() error
}

// Verify *DB satisfies NoteIndex at compile time.
var _ NoteIndex = (*DB)(nil)
