package index

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/starford/folio/internal/apperr"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "folio-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func put(t *testing.T, db *DB, path, body string) NoteMetadata {
	t.Helper()
	m, err := db.Upsert(Entry{Path: path, Body: body, Modified: time.Now()})
	if err != nil {
		t.Fatalf("Upsert(%q): %v", path, err)
	}
	return m
}

func paths(ms []NoteMetadata) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Path
	}
	return out
}

func equalPaths(t *testing.T, what string, got []NoteMetadata, want ...string) {
	t.Helper()
	gp := paths(got)
	if len(gp) != len(want) {
		t.Fatalf("%s = %v, want %v", what, gp, want)
	}
	for i := range want {
		if gp[i] != want[i] {
			t.Fatalf("%s = %v, want %v", what, gp, want)
		}
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes`).Scan(&count); err != nil {
		t.Fatalf("notes table missing: %v", err)
	}
}

func TestUpsertAssignsStableID(t *testing.T) {
	db := testDB(t)
	first := put(t, db, "hello", "v1")
	if first.ID == 0 {
		t.Fatal("expected non-zero id")
	}
	second := put(t, db, "hello", "v2")
	if second.ID != first.ID {
		t.Errorf("id changed on update: %d -> %d", first.ID, second.ID)
	}
	other := put(t, db, "other", "x")
	if other.ID == first.ID {
		t.Error("distinct paths share an id")
	}
}

func TestGetNotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.Get("nonexistent"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestModifiedRoundTrip(t *testing.T) {
	db := testDB(t)
	ts := time.Unix(1700000000, 123456789)
	if _, err := db.Upsert(Entry{Path: "m", Modified: ts}); err != nil {
		t.Fatal(err)
	}
	got, err := db.Get("m")
	if err != nil {
		t.Fatal(err)
	}
	if !got.Modified.Equal(ts) {
		t.Errorf("modified = %v, want %v", got.Modified, ts)
	}
	all, _ := db.Modified("")
	if !all["m"].Equal(ts) {
		t.Errorf("Modified() = %v", all)
	}
	put(t, db, "other", "")
	under, _ := db.Modified("m")
	if len(under) != 1 {
		t.Errorf("Modified(m) = %v, want only m", under)
	}
}

func TestRemoveSubtree(t *testing.T) {
	db := testDB(t)
	put(t, db, "a", "")
	put(t, db, "a/b", "")
	put(t, db, "a/b/c", "")
	put(t, db, "ab", "")

	n, err := db.RemoveSubtree("a")
	if err != nil {
		t.Fatalf("RemoveSubtree: %v", err)
	}
	if n != 3 {
		t.Errorf("removed %d, want 3", n)
	}
	if _, err := db.Get("ab"); err != nil {
		t.Errorf("sibling with shared prefix was removed: %v", err)
	}
}

func TestRelocatePreservesIDs(t *testing.T) {
	db := testDB(t)
	a := put(t, db, "a", "X")
	ab := put(t, db, "a/b", "Y")
	put(t, db, "a_b", "sibling")

	n, err := db.Relocate("a", "c")
	if err != nil {
		t.Fatalf("Relocate: %v", err)
	}
	if n != 2 {
		t.Errorf("relocated %d, want 2", n)
	}
	c, err := db.Get("c")
	if err != nil || c.ID != a.ID {
		t.Errorf("Get(c) = %+v, %v; want id %d", c, err, a.ID)
	}
	cb, err := db.Get("c/b")
	if err != nil || cb.ID != ab.ID {
		t.Errorf("Get(c/b) = %+v, %v; want id %d", cb, err, ab.ID)
	}
	for _, p := range []string{"a", "a/b"} {
		if _, err := db.Get(p); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("Get(%q) err = %v, want ErrNotFound", p, err)
		}
	}
	equalPaths(t, "children of c", mustList(t)(db.Children("c")), "c/b")
	if _, err := db.Get("a_b"); err != nil {
		t.Errorf("a_b should be untouched: %v", err)
	}
}

func TestRelocateIntoOwnSubtreeRejected(t *testing.T) {
	db := testDB(t)
	put(t, db, "a", "")
	if _, err := db.Relocate("a", "a/b"); !errors.Is(err, apperr.ErrInvalidPath) {
		t.Errorf("err = %v, want ErrInvalidPath", err)
	}
}

func TestRelocateSetsArchivedFlag(t *testing.T) {
	db := testDB(t)
	put(t, db, "p/n", "")
	put(t, db, "p/n/kid", "")

	if _, err := db.Relocate("p/n", "p/_archive/n"); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{"p/_archive/n", "p/_archive/n/kid"} {
		m, err := db.Get(p)
		if err != nil || !m.Archived {
			t.Errorf("Get(%q) = %+v, %v; want archived", p, m, err)
		}
	}
	if _, err := db.Relocate("p/_archive/n", "p/n"); err != nil {
		t.Fatal(err)
	}
	m, _ := db.Get("p/n/kid")
	if m == nil || m.Archived {
		t.Errorf("kid should be unarchived: %+v", m)
	}
}

func mustList(t *testing.T) func([]NoteMetadata, error) []NoteMetadata {
	return func(ms []NoteMetadata, err error) []NoteMetadata {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
		return ms
	}
}

func TestHierarchyQueries(t *testing.T) {
	db := testDB(t)
	put(t, db, "", "root")
	put(t, db, "projects", "")
	put(t, db, "projects/rust-app", "")
	put(t, db, "projects/rust-app/architecture", "")
	put(t, db, "projects/_archive/old", "")
	put(t, db, "loose/deep", "")
	put(t, db, "_archive/gone", "")
	list := mustList(t)

	equalPaths(t, "children", list(db.Children("projects")), "projects/rust-app")
	equalPaths(t, "archive children", list(db.Children("projects/_archive")), "projects/_archive/old")
	equalPaths(t, "top-level children", list(db.Children("")), "projects")
	equalPaths(t, "ancestors", list(db.Ancestors("projects/rust-app/architecture")), "projects", "projects/rust-app")
	equalPaths(t, "ancestors skipping non-notes", list(db.Ancestors("loose/deep")))
	equalPaths(t, "roots", list(db.Roots()), "loose/deep", "projects")

	parent, err := db.Parent("projects/rust-app")
	if err != nil || parent == nil || parent.Path != "projects" {
		t.Errorf("Parent = %+v, %v", parent, err)
	}
	if parent, _ := db.Parent("loose/deep"); parent != nil {
		t.Errorf("Parent of loose/deep = %+v, want nil", parent)
	}
	if parent, _ := db.Parent("projects"); parent != nil {
		t.Errorf("Parent of top-level = %+v, want nil", parent)
	}

	has, _ := db.HasChildren("projects")
	if !has {
		t.Error("projects should have children")
	}
	has, _ = db.HasChildren("projects/rust-app/architecture")
	if has {
		t.Error("leaf should have no children")
	}
}

func TestSearch(t *testing.T) {
	db := testDB(t)
	put(t, db, "s", "The Uniqueword appears here")
	put(t, db, "t", "nothing to see")
	put(t, db, "u", "ÜBER café")
	put(t, db, "w", "two  spaces")
	list := mustList(t)

	equalPaths(t, "exact", list(db.Search("uniqueword")), "s")
	equalPaths(t, "upper query", list(db.Search("UNIQUEWORD")), "s")
	equalPaths(t, "substring", list(db.Search("queWor")), "s")
	equalPaths(t, "unicode", list(db.Search("über")), "u")
	equalPaths(t, "short", list(db.Search("to")), "t")
	equalPaths(t, "miss", list(db.Search("absent")))
	equalPaths(t, "empty", list(db.Search("")))
	equalPaths(t, "whitespace", list(db.Search("  ")), "w")
}

func TestApply(t *testing.T) {
	db := testDB(t)
	keep := put(t, db, "keep", "old")
	put(t, db, "stale", "")

	err := db.Apply([]Entry{
		{Path: "keep", Body: "new", Modified: time.Now()},
		{Path: "fresh", Body: "hello", Modified: time.Now()},
	}, []string{"stale"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, _ := db.Get("keep")
	if got == nil || got.ID != keep.ID {
		t.Errorf("keep id changed: %+v", got)
	}
	if _, err := db.Get("stale"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("stale still present: %v", err)
	}
	equalPaths(t, "search new body", mustList(t)(db.Search("new")), "keep")
	n, _ := db.Count()
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}
