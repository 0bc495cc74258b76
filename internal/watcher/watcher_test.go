package watcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/notes"
	"github.com/starford/folio/internal/storage"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

type fakeReconciler struct {
	mu      sync.Mutex
	rescans int
	synced  []string
	fail    int // number of calls that fail before succeeding
}

func (f *fakeReconciler) Rescan(context.Context) (notes.SyncStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rescans++
	if f.fail > 0 {
		f.fail--
		return notes.SyncStats{}, apperr.ErrIO
	}
	return notes.SyncStats{}, nil
}

func (f *fakeReconciler) SyncNote(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append(f.synced, path)
	return nil
}

func (f *fakeReconciler) calls() (int, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rescans, append([]string(nil), f.synced...)
}

type kinds struct {
	mu  sync.Mutex
	got []Kind
}

func (k *kinds) record(kind Kind) {
	k.mu.Lock()
	k.got = append(k.got, kind)
	k.mu.Unlock()
}

func (k *kinds) has(want Kind) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, g := range k.got {
		if g == want {
			return true
		}
	}
	return false
}

func (k *kinds) count() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.got)
}

var quiet = slog.New(slog.NewJSONHandler(io.Discard, nil))

// start runs a watcher on root until the test ends.
func start(t *testing.T, root string, rec Reconciler, opts ...Option) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	w := New(root, rec, append([]Option{WithLogger(quiet), WithDebounce(0)}, opts...)...)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	})
	time.Sleep(100 * time.Millisecond)
}

func writeNote(t *testing.T, root, path, content string) {
	t.Helper()
	dir := filepath.Join(root, filepath.FromSlash(path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "_index.md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestIgnored(t *testing.T) {
	w := New(t.TempDir(), &fakeReconciler{})
	tests := []struct {
		rel  string
		want bool
	}{
		{".notes.db", true},
		{".notes.db-wal", true},
		{".notes.db-shm", true},
		{"a/" + storage.TempPrefix + "123", true},
		{".git/config", true},
		{"a/.cache/_index.md", true},
		{"_index.md", false},
		{"a/b/_index.md", false},
		{"notes.db", false},
	}
	for _, tt := range tests {
		if got := w.ignored(tt.rel); got != tt.want {
			t.Errorf("ignored(%q) = %v, want %v", tt.rel, got, tt.want)
		}
	}
}

func TestIgnoredCustomIndexFile(t *testing.T) {
	w := New(t.TempDir(), &fakeReconciler{}, WithIndexFile("/var/lib/folio/search.sqlite"))
	if !w.ignored("search.sqlite-journal") {
		t.Error("custom index journal not ignored")
	}
}

func TestAdmitDebounce(t *testing.T) {
	base := time.Unix(1700000000, 0)
	now := base
	w := New(t.TempDir(), &fakeReconciler{}, WithClock(func() time.Time { return now }))

	steps := []struct {
		offset time.Duration
		want   bool
	}{
		{0, true},
		{100 * time.Millisecond, false},
		{499 * time.Millisecond, false},
		{500 * time.Millisecond, true},
		{700 * time.Millisecond, false},
		{2 * time.Second, true},
	}
	for _, s := range steps {
		now = base.Add(s.offset)
		if got := w.admit(); got != s.want {
			t.Errorf("admit at +%v = %v, want %v", s.offset, got, s.want)
		}
	}
}

func TestWatcher_ContentChangeTriggersRescan(t *testing.T) {
	root := t.TempDir()
	rec := &fakeReconciler{}
	var seen kinds
	start(t, root, rec, WithNotifier(seen.record))

	writeNote(t, root, "fresh", "# Fresh")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		n, _ := rec.calls()
		return n > 0 && seen.has(KindChanged)
	}, "content change did not trigger a rescan")
}

func TestWatcher_BurstInsideDebounceReconcilesOnce(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "n", "v0")
	rec := &fakeReconciler{}
	var seen kinds
	start(t, root, rec, WithNotifier(seen.record), WithDebounce(500*time.Millisecond))

	writeNote(t, root, "n", "v1")
	time.Sleep(50 * time.Millisecond)
	writeNote(t, root, "n", "v2")

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return seen.count() > 0
	}, "burst was not reconciled")
	// Past the window: nothing else may arrive.
	time.Sleep(700 * time.Millisecond)

	if n, _ := rec.calls(); n != 1 {
		t.Errorf("rescans = %d, want 1", n)
	}
	if n := seen.count(); n != 1 {
		t.Errorf("notifications = %d, want 1", n)
	}
}

func TestWatcher_IndexFilesIgnored(t *testing.T) {
	root := t.TempDir()
	rec := &fakeReconciler{}
	start(t, root, rec)

	for _, name := range []string{".notes.db", ".notes.db-wal", ".notes.db-journal"} {
		if err := os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// Plain files that are not notes are dropped as well.
	if err := os.WriteFile(filepath.Join(root, "readme.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(300 * time.Millisecond)
	if n, _ := rec.calls(); n != 0 {
		t.Errorf("rescans = %d, want 0", n)
	}
}

func TestWatcher_RenameReported(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "before", "x")
	rec := &fakeReconciler{}
	var seen kinds
	start(t, root, rec, WithNotifier(seen.record))

	if err := os.Rename(filepath.Join(root, "before"), filepath.Join(root, "after")); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return seen.has(KindRenamed)
	}, "rename not reported")
}

func TestWatcher_NewDirectoryWatched(t *testing.T) {
	root := t.TempDir()
	rec := &fakeReconciler{}
	start(t, root, rec, WithIncremental(true))

	if err := os.MkdirAll(filepath.Join(root, "deep", "er"), 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	writeNote(t, root, "deep/er", "nested")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, synced := rec.calls()
		for _, p := range synced {
			if p == "deep/er" {
				return true
			}
		}
		return false
	}, "note in new directory not synced")
}

func TestWatcher_IncrementalSyncsSingleNote(t *testing.T) {
	root := t.TempDir()
	writeNote(t, root, "a", "one")
	rec := &fakeReconciler{}
	start(t, root, rec, WithIncremental(true))

	if err := os.WriteFile(filepath.Join(root, "a", "_index.md"), []byte("two"), 0o644); err != nil {
		t.Fatal(err)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, synced := rec.calls()
		return len(synced) > 0 && synced[0] == "a"
	}, "incremental sync not called for a")
	if n, _ := rec.calls(); n != 0 {
		t.Errorf("rescans = %d, want 0 in incremental mode", n)
	}
}

func TestWatcher_ReconcileErrorDoesNotStopLoop(t *testing.T) {
	root := t.TempDir()
	rec := &fakeReconciler{fail: 1}
	var seen kinds
	start(t, root, rec, WithNotifier(seen.record))

	writeNote(t, root, "first", "x")
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		n, _ := rec.calls()
		return n >= 1
	}, "first rescan never ran")

	time.Sleep(50 * time.Millisecond)
	writeNote(t, root, "second", "y")
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return seen.has(KindChanged)
	}, "loop stopped after a failed reconcile")
}

func TestWatcher_DrivesEngine(t *testing.T) {
	root := t.TempDir()
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	db, err := index.Open(filepath.Join(root, index.FileName))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	eng := notes.NewEngine(store, db, quiet)
	start(t, root, eng, WithIndexFile(db.Path()))

	writeNote(t, root, "external", "# Dropped in by hand")

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		m, err := db.Get("external")
		return err == nil && m.Title == "Dropped in by hand"
	}, "external note never indexed")

	if err := os.RemoveAll(filepath.Join(root, "external")); err != nil {
		t.Fatal(err)
	}
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		_, err := db.Get("external")
		return errors.Is(err, apperr.ErrNotFound)
	}, "deleted note still indexed")
}
