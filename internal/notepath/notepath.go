// Package notepath maps logical note paths onto the on-disk directory layout.
//
// A note path is a forward-slash separated string; the empty string is the
// root note. Every note is a directory holding ContentFile, and archived
// subtrees live under an ArchiveDir directory next to their original location.
package notepath

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/starford/folio/internal/apperr"
)

const (
	// ContentFile is the fixed name of the Markdown file inside each note directory.
	ContentFile = "_index.md"
	// ArchiveDir is the reserved directory name holding archived subtrees.
	ArchiveDir = "_archive"
)

// Normalize cleans p and rejects paths that cannot name a note.
func Normalize(p string) (string, error) {
	if strings.ContainsAny(p, "\\\x00") {
		return "", fmt.Errorf("%w: %q", apperr.ErrInvalidPath, p)
	}
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, seg := range parts {
		switch {
		case seg == "":
			continue
		case seg == "." || seg == "..":
			return "", fmt.Errorf("%w: %q contains %q", apperr.ErrInvalidPath, p, seg)
		case strings.HasPrefix(seg, "."):
			return "", fmt.Errorf("%w: %q contains hidden segment %q", apperr.ErrInvalidPath, p, seg)
		case seg == ContentFile:
			return "", fmt.Errorf("%w: %q uses reserved name %q", apperr.ErrInvalidPath, p, seg)
		}
		out = append(out, seg)
	}
	return strings.Join(out, "/"), nil
}

// Dir returns the directory of note p under root.
func Dir(root, p string) string {
	if p == "" {
		return root
	}
	return filepath.Join(root, filepath.FromSlash(p))
}

// ToPhysical returns the content file of note p under root.
func ToPhysical(root, p string) string {
	return filepath.Join(Dir(root, p), ContentFile)
}

// Parent returns the path of p with its last segment removed. Root and
// top-level paths have no parent.
func Parent(p string) (string, bool) {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return "", false
	}
	return p[:i], true
}

// ParentKey is the containing directory of p: "" for top-level notes.
func ParentKey(p string) string {
	parent, _ := Parent(p)
	return parent
}

// Ancestors returns every proper ancestor of p, root-most first.
func Ancestors(p string) []string {
	if p == "" {
		return nil
	}
	segs := strings.Split(p, "/")
	out := make([]string, 0, len(segs)-1)
	for i := 1; i < len(segs); i++ {
		out = append(out, strings.Join(segs[:i], "/"))
	}
	return out
}

// Join appends name to parent.
func Join(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// Base returns the last segment of p.
func Base(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}

// IsWithin reports whether p is prefix itself or one of its descendants.
func IsWithin(p, prefix string) bool {
	if prefix == "" {
		return true
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// Rebase replaces the oldPrefix of p with newPrefix. p must be within oldPrefix.
func Rebase(p, oldPrefix, newPrefix string) string {
	switch {
	case p == oldPrefix:
		return newPrefix
	case oldPrefix == "":
		return Join(newPrefix, p)
	}
	return Join(newPrefix, strings.TrimPrefix(p, oldPrefix+"/"))
}

// IsArchived reports whether any segment of p is the archive directory.
func IsArchived(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == ArchiveDir {
			return true
		}
	}
	return false
}

// CheckPlain rejects paths inside an archive directory. Notes only enter
// the archive through ArchivePath, never by being created or moved there.
func CheckPlain(p string) error {
	if IsArchived(p) {
		return fmt.Errorf("%w: %q is inside %s", apperr.ErrInvalidPath, p, ArchiveDir)
	}
	return nil
}

// ArchivePath returns where p lives once archived: a/b becomes a/_archive/b.
func ArchivePath(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: the root note cannot be archived", apperr.ErrInvalidPath)
	}
	if Base(p) == ArchiveDir {
		return "", fmt.Errorf("%w: %q is an archive directory", apperr.ErrInvalidPath, p)
	}
	parent, _ := Parent(p)
	if Base(parent) == ArchiveDir {
		return "", fmt.Errorf("%w: %q is already archived", apperr.ErrInvalidPath, p)
	}
	return Join(Join(parent, ArchiveDir), Base(p)), nil
}

// UnarchivePath is the inverse of ArchivePath: a/_archive/b becomes a/b.
func UnarchivePath(p string) (string, error) {
	parent, ok := Parent(p)
	if !ok || Base(parent) != ArchiveDir {
		return "", fmt.Errorf("%w: %q is not directly under %s", apperr.ErrInvalidPath, p, ArchiveDir)
	}
	grand, _ := Parent(parent)
	return Join(grand, Base(p)), nil
}
