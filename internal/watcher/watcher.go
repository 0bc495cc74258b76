// Package watcher turns file-system notifications under the store root into
// index reconciliation. An observation goroutine filters and debounces
// fsnotify events; a reconcile goroutine drives the engine.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/notepath"
	"github.com/starford/folio/internal/notes"
	"github.com/starford/folio/internal/storage"
)

// Kind classifies what happened on disk.
type Kind int

const (
	// KindChanged covers created, written, and removed files.
	KindChanged Kind = iota
	// KindRenamed covers moves within or out of the store.
	KindRenamed
)

func (k Kind) String() string {
	if k == KindRenamed {
		return "renamed"
	}
	return "changed"
}

// Reconciler is the part of the engine the watcher drives.
type Reconciler interface {
	Rescan(ctx context.Context) (notes.SyncStats, error)
	SyncNote(ctx context.Context, path string) error
}

// Notifier is called after every successful reconciliation.
type Notifier func(Kind)

const (
	DefaultDebounce  = 500 * time.Millisecond
	DefaultQueueSize = 16
)

// Option configures a Watcher.
type Option func(*Watcher)

// WithClock replaces time.Now for debounce decisions.
func WithClock(now func() time.Time) Option {
	return func(w *Watcher) { w.now = now }
}

// WithNotifier registers fn to be called after each reconciliation.
func WithNotifier(fn Notifier) Option {
	return func(w *Watcher) { w.notify = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets the minimum spacing between admitted events.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithIncremental makes a change to a single content file re-index just that
// note instead of rescanning the store.
func WithIncremental(on bool) Option {
	return func(w *Watcher) { w.incremental = on }
}

// WithQueueSize bounds the number of pending reconciliations.
func WithQueueSize(n int) Option {
	return func(w *Watcher) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

// WithIndexFile names the index database so its own writes are ignored.
func WithIndexFile(path string) Option {
	return func(w *Watcher) { w.indexName = filepath.Base(path) }
}

type trigger struct {
	kind Kind
	note string // set for incremental candidates
	one  bool
}

// Watcher observes a store root.
type Watcher struct {
	root        string
	rec         Reconciler
	now         func() time.Time
	notify      Notifier
	logger      *slog.Logger
	debounce    time.Duration
	incremental bool
	queueSize   int
	indexName   string

	lastAdmitted time.Time // owned by the observation goroutine
}

// New creates a watcher for root that reconciles through rec.
func New(root string, rec Reconciler, opts ...Option) *Watcher {
	w := &Watcher{
		root:      filepath.Clean(root),
		rec:       rec,
		now:       time.Now,
		logger:    slog.Default(),
		debounce:  DefaultDebounce,
		queueSize: DefaultQueueSize,
		indexName: index.FileName,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is cancelled. It only fails if the watch cannot be set up.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := addDirsRecursive(fw, w.root); err != nil {
		return err
	}
	w.logger.Info("watcher: started", slog.String("root", w.root))

	triggers := make(chan trigger, w.queueSize)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.observe(ctx, fw, triggers) })
	g.Go(func() error { return w.reconcile(ctx, triggers) })
	err = g.Wait()
	w.logger.Info("watcher: stopped")
	return err
}

func (w *Watcher) observe(ctx context.Context, fw *fsnotify.Watcher, out chan<- trigger) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			tr, ok := w.filter(fw, ev)
			if !ok || !w.admit() {
				continue
			}
			select {
			case out <- tr:
			default:
				// A queued reconciliation already covers this event.
				w.logger.Debug("watcher: queue full, dropping trigger", slog.String("path", ev.Name))
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher: observation error", slog.String("error", watchErr.Error()))
		}
	}
}

// filter decides whether ev is relevant and builds its trigger.
func (w *Watcher) filter(fw *fsnotify.Watcher, ev fsnotify.Event) (trigger, bool) {
	if ev.Op&^fsnotify.Chmod == 0 {
		return trigger{}, false
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return trigger{}, false
	}
	rel = filepath.ToSlash(rel)
	if w.ignored(rel) {
		return trigger{}, false
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := addDirsRecursive(fw, ev.Name); err != nil {
				w.logger.Warn("watcher: add new dir failed",
					slog.String("path", ev.Name),
					slog.String("error", err.Error()))
			}
			// Notes may have landed in the directory before it was watched.
			if subtreeHasNote(ev.Name) {
				return trigger{kind: KindChanged}, true
			}
			return trigger{}, false
		}
	}

	if ev.Has(fsnotify.Rename) {
		// The source no longer exists, so there is nothing to inspect.
		return trigger{kind: KindRenamed}, true
	}
	if !noteRelated(ev.Name) {
		return trigger{}, false
	}
	tr := trigger{kind: KindChanged}
	if filepath.Base(ev.Name) == notepath.ContentFile {
		tr.note = strings.TrimSuffix(strings.TrimSuffix(rel, notepath.ContentFile), "/")
		tr.one = true
	}
	return tr, true
}

// ignored reports events on the index database, its journal siblings, our
// temp files, and anything in a hidden directory.
func (w *Watcher) ignored(rel string) bool {
	base := rel[strings.LastIndex(rel, "/")+1:]
	if base == w.indexName || strings.HasPrefix(base, w.indexName+"-") {
		return true
	}
	if strings.HasPrefix(base, storage.TempPrefix) {
		return true
	}
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}

func noteRelated(abs string) bool {
	if filepath.Base(abs) == notepath.ContentFile {
		return true
	}
	info, err := os.Stat(filepath.Join(abs, notepath.ContentFile))
	return err == nil && info.Mode().IsRegular()
}

func subtreeHasNote(dir string) bool {
	found := false
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if d.Name() == notepath.ContentFile && d.Type().IsRegular() {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

// admit applies debounce admission control.
func (w *Watcher) admit() bool {
	now := w.now()
	if !w.lastAdmitted.IsZero() && now.Sub(w.lastAdmitted) < w.debounce {
		return false
	}
	w.lastAdmitted = now
	return true
}

func (w *Watcher) reconcile(ctx context.Context, in <-chan trigger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case tr := <-in:
			var err error
			if w.incremental && tr.one {
				err = w.rec.SyncNote(ctx, tr.note)
			} else {
				_, err = w.rec.Rescan(ctx)
			}
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Warn("watcher: reconcile failed",
					slog.String("kind", tr.kind.String()),
					slog.String("error", err.Error()))
				continue
			}
			if w.notify != nil {
				w.notify(tr.kind)
			}
		}
	}
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func addDirsRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path != root {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}
