package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/notepath"
)

// TempPrefix prefixes the temporary files used for atomic writes.
const TempPrefix = ".folio-tmp-"

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the store directory
}

// NewFS creates a new FS provider rooted at the given directory, creating it if absent.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w: %w", apperr.ErrIO, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w: %w", apperr.ErrIO, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute store directory.
func (f *FS) Root() string { return f.root }

// safeDir resolves a note path to its directory and rejects any result that
// escapes the root (directory traversal).
func (f *FS) safeDir(path string) (string, error) {
	clean, err := notepath.Normalize(path)
	if err != nil {
		return "", err
	}
	abs := notepath.Dir(f.root, clean)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("%w: path escapes store root: %s", apperr.ErrInvalidPath, path)
	}
	return abs, nil
}

func (f *FS) contentFile(path string) (string, error) {
	dir, err := f.safeDir(path)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, notepath.ContentFile), nil
}

// wrapErr maps a missing file to apperr.ErrNotFound and everything else to apperr.ErrIO.
func wrapErr(op, path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: %s %q: %w", op, path, apperr.ErrNotFound)
	}
	return fmt.Errorf("storage: %s %q: %w: %w", op, path, apperr.ErrIO, err)
}

// Read returns the content of the note at path.
func (f *FS) Read(path string) ([]byte, error) {
	abs, err := f.contentFile(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, wrapErr("read", path, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.contentFile(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return wrapErr("mkdir", path, err)
	}

	tmp, err := os.CreateTemp(dir, TempPrefix+"*")
	if err != nil {
		return wrapErr("create temp", path, err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return wrapErr("write temp", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return wrapErr("fsync", path, err)
	}
	if err := tmp.Close(); err != nil {
		return wrapErr("close temp", path, err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return wrapErr("rename", path, err)
	}
	success = true
	return nil
}

// Create writes an empty note at path. It never overwrites.
func (f *FS) Create(path string) error {
	abs, err := f.contentFile(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return wrapErr("mkdir", path, err)
	}
	fh, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("storage: create %q: %w", path, apperr.ErrAlreadyExists)
		}
		return wrapErr("create", path, err)
	}
	if err := fh.Close(); err != nil {
		return wrapErr("create", path, err)
	}
	return nil
}

// Delete removes the note directory and everything below it. For the root
// note only the content file is removed.
func (f *FS) Delete(path string) error {
	dir, err := f.safeDir(path)
	if err != nil {
		return err
	}
	if dir == f.root {
		if err := os.Remove(filepath.Join(dir, notepath.ContentFile)); err != nil {
			return wrapErr("delete", path, err)
		}
		return nil
	}
	if _, err := os.Lstat(dir); err != nil {
		return wrapErr("delete", path, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return wrapErr("delete", path, err)
	}
	return nil
}

// Move renames the note directory of oldPath to newPath. The target must not
// hold a note; an existing empty directory is replaced, a non-empty one is
// reported as ErrAlreadyExists.
func (f *FS) Move(oldPath, newPath string) error {
	absOld, err := f.safeDir(oldPath)
	if err != nil {
		return err
	}
	absNew, err := f.safeDir(newPath)
	if err != nil {
		return err
	}
	if absOld == f.root || absNew == f.root {
		return fmt.Errorf("storage: move: %w: the store root cannot be moved", apperr.ErrInvalidPath)
	}
	if _, err := os.Lstat(absOld); err != nil {
		return wrapErr("move", oldPath, err)
	}
	if entries, err := os.ReadDir(absNew); err == nil {
		if len(entries) > 0 {
			return fmt.Errorf("storage: move to %q: %w", newPath, apperr.ErrAlreadyExists)
		}
		if err := os.Remove(absNew); err != nil {
			return wrapErr("move", newPath, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return wrapErr("move", newPath, err)
	}
	if err := os.MkdirAll(filepath.Dir(absNew), 0o755); err != nil {
		return wrapErr("mkdir for move", newPath, err)
	}
	if err := os.Rename(absOld, absNew); err != nil {
		return wrapErr("move", oldPath, err)
	}

	// Unarchiving the last entry of an archive directory leaves it empty.
	if parent := filepath.Dir(absOld); filepath.Base(parent) == notepath.ArchiveDir {
		_ = os.Remove(parent) // fails harmlessly while other archived notes remain
	}
	return nil
}

// Exists reports whether a content file is present at path.
func (f *FS) Exists(path string) (bool, error) {
	abs, err := f.contentFile(path)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, wrapErr("stat", path, err)
	}
	return info.Mode().IsRegular(), nil
}

// Stat returns the modification time of the note's content file.
func (f *FS) Stat(path string) (time.Time, error) {
	abs, err := f.contentFile(path)
	if err != nil {
		return time.Time{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return time.Time{}, wrapErr("stat", path, err)
	}
	return info.ModTime(), nil
}

// ListChildren returns the note paths of the immediate, non-hidden
// sub-directories of path, whether or not they hold a content file.
func (f *FS) ListChildren(path string) ([]string, error) {
	dir, err := f.safeDir(path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, wrapErr("list", path, err)
	}
	clean, _ := notepath.Normalize(path)
	var out []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		out = append(out, notepath.Join(clean, e.Name()))
	}
	return out, nil
}

// ScanAll reports every note in the store. See Scan.
func (f *FS) ScanAll() ([]ScanEntry, error) {
	return f.Scan("")
}

// Scan walks the subtree of path with an explicit stack and reports every
// directory holding a content file. Hidden directories and symlinks are not
// followed. The result is sorted by path; a missing subtree yields no entries.
func (f *FS) Scan(path string) ([]ScanEntry, error) {
	base, err := f.safeDir(path)
	if err != nil {
		return nil, err
	}
	clean, _ := notepath.Normalize(path)

	type frame struct {
		dir  string
		path string
	}
	stack := []frame{{dir: base, path: clean}}
	var out []ScanEntry

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		info, err := os.Stat(filepath.Join(cur.dir, notepath.ContentFile))
		switch {
		case err == nil && info.Mode().IsRegular():
			out = append(out, ScanEntry{Path: cur.path, Modified: info.ModTime()})
		case err != nil && !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR):
			return nil, wrapErr("scan", cur.path, err)
		}

		entries, err := os.ReadDir(cur.dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && cur.dir != f.root {
				// Removed by another process mid-scan.
				continue
			}
			return nil, wrapErr("scan", cur.path, err)
		}
		for _, e := range entries {
			if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			stack = append(stack, frame{
				dir:  filepath.Join(cur.dir, e.Name()),
				path: notepath.Join(cur.path, e.Name()),
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
