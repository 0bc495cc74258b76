// Package storage performs file I/O on the note tree. It knows nothing about the index.
package storage

import "time"

// ScanEntry is one note discovered by ScanAll.
type ScanEntry struct {
	Path     string
	Modified time.Time
}

// Provider is the interface for note file operations. All paths are
// normalized note paths (see package notepath), not file-system paths.
type Provider interface {
	// Root returns the absolute store directory.
	Root() string
	// Read returns the content of the note at path.
	Read(path string) ([]byte, error)
	// Write atomically replaces the content of path, creating it if needed.
	Write(path string, content []byte) error
	// Create writes an empty note and fails if one already exists.
	Create(path string) error
	// Delete removes the note and every descendant.
	Delete(path string) error
	// Move relocates the note directory, descendants included.
	Move(oldPath, newPath string) error
	// Exists reports whether path holds a content file.
	Exists(path string) (bool, error)
	// Stat returns the modification time of the content file.
	Stat(path string) (time.Time, error)
	// ListChildren returns the note paths of the immediate sub-directories of path.
	ListChildren(path string) ([]string, error)
	// Scan reports every note at or below path.
	Scan(path string) ([]ScanEntry, error)
	// ScanAll reports every note in the store.
	ScanAll() ([]ScanEntry, error)
}

// Verify *FS satisfies Provider at compile time.
var _ Provider = (*FS)(nil)
