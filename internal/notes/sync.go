package notes

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/parser"
)

// StartupSync reconciles the whole store with the index before serving.
func (e *Engine) StartupSync(ctx context.Context) (SyncStats, error) {
	return e.fullSync(ctx, "startup sync")
}

// Rescan reconciles the whole store with the index. Running it twice in a
// row indexes nothing the second time.
func (e *Engine) Rescan(ctx context.Context) (SyncStats, error) {
	return e.fullSync(ctx, "rescan")
}

func (e *Engine) fullSync(ctx context.Context, op string) (SyncStats, error) {
	var stats SyncStats
	err := e.do(ctx, op, func() error {
		start := time.Now()
		var err error
		stats, err = e.reconcile("")
		if err != nil {
			return err
		}
		e.logger.Info(op+" complete",
			slog.Int("scanned", stats.Scanned),
			slog.Int("indexed", stats.Indexed),
			slog.Int("removed", stats.Removed),
			slog.Duration("elapsed", time.Since(start)),
		)
		return nil
	})
	return stats, err
}

// SyncNote brings the index entry for a single path in line with the disk.
func (e *Engine) SyncNote(ctx context.Context, path string) error {
	return e.do(ctx, "sync note", func() error {
		p, err := clean(path)
		if err != nil {
			return err
		}
		data, err := e.store.Read(p)
		if err == nil {
			_, err = e.index(p, data)
			return err
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		// The content file is gone. If the whole directory went with it, so
		// did every descendant.
		if _, err := e.store.ListChildren(p); errors.Is(err, apperr.ErrNotFound) {
			_, err := e.idx.RemoveSubtree(p)
			return err
		}
		return e.idx.Remove(p)
	})
}

// reconcile diffs the notes on disk at or below prefix against the index and
// applies the difference in one transaction. Content is read only for new
// notes and notes whose modification time changed. Must hold e.mu.
func (e *Engine) reconcile(prefix string) (SyncStats, error) {
	scanned, err := e.store.Scan(prefix)
	if err != nil {
		return SyncStats{}, err
	}
	known, err := e.idx.Modified(prefix)
	if err != nil {
		return SyncStats{}, err
	}

	seen := make(map[string]bool, len(scanned))
	var upserts []index.Entry
	for _, s := range scanned {
		if mod, ok := known[s.Path]; ok && mod.Equal(s.Modified) {
			seen[s.Path] = true
			continue
		}
		data, err := e.store.Read(s.Path)
		if errors.Is(err, apperr.ErrNotFound) {
			// Deleted since the scan.
			continue
		}
		seen[s.Path] = true
		if err != nil {
			e.logger.Warn("skip unreadable note", slog.String("path", s.Path), slog.String("error", err.Error()))
			continue
		}
		upserts = append(upserts, index.Entry{
			Path:     s.Path,
			Title:    parser.Title(data),
			Body:     string(data),
			Modified: s.Modified,
		})
	}

	var removals []string
	for p := range known {
		if !seen[p] {
			removals = append(removals, p)
		}
	}

	if len(upserts) > 0 || len(removals) > 0 {
		if err := e.idx.Apply(upserts, removals); err != nil {
			return SyncStats{}, err
		}
	}
	return SyncStats{Scanned: len(scanned), Indexed: len(upserts), Removed: len(removals)}, nil
}
