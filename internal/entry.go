// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starford/folio/internal/api"
	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/mcpserver"
	"github.com/starford/folio/internal/notes"
	"github.com/starford/folio/internal/sse"
	"github.com/starford/folio/internal/storage"
	"github.com/starford/folio/internal/watcher"
)

// runtime is the wired core shared by every command.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	engine *notes.Engine
	close  func()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newLogger builds the JSON logger, teeing into a rotated file when configured.
func newLogger(cfg *Config, out io.Writer) (*slog.Logger, func() error) {
	closer := func() error { return nil }
	if lf := cfg.App.LogFile; lf.Path != "" {
		rotated := &lumberjack.Logger{
			Filename:   lf.Path,
			MaxSize:    lf.MaxSizeMB,
			MaxBackups: lf.MaxBackups,
			MaxAge:     lf.MaxAgeDays,
		}
		out = io.MultiWriter(out, rotated)
		closer = rotated.Close
	}
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	})), closer
}

// start opens the store and index. With runSync set it also runs the startup
// sync before returning.
func start(ctx context.Context, opts []Option, runSync bool) (*runtime, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	cfg := app.config

	logger, closeLog := newLogger(cfg, app.logOutput)
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("store_path", cfg.Store.Path),
		slog.String("index_path", cfg.IndexPath()),
		slog.Bool("watcher_enabled", cfg.Watcher.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, err := storage.NewFS(cfg.Store.Path)
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.IndexPath())
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("init index: %w", err)
	}

	engine := notes.NewEngine(store, db, logger)
	if runSync {
		if _, err := engine.StartupSync(ctx); err != nil {
			logger.Warn("startup sync failed", slog.String("error", err.Error()))
		}
	}

	return &runtime{
		cfg:    cfg,
		logger: logger,
		engine: engine,
		close: func() {
			if err := db.Close(); err != nil {
				logger.Error("close index", slog.String("error", err.Error()))
			}
			_ = closeLog()
		},
	}, nil
}

// watch runs the change watcher when enabled, publishing to notify.
func (rt *runtime) watch(ctx context.Context, notify watcher.Notifier) error {
	wc := rt.cfg.Watcher
	if !wc.Enabled {
		rt.logger.Info("watcher disabled")
		return nil
	}
	w := watcher.New(rt.engine.Root(), rt.engine,
		watcher.WithLogger(rt.logger),
		watcher.WithDebounce(wc.Debounce),
		watcher.WithIncremental(wc.Incremental),
		watcher.WithQueueSize(wc.QueueSize),
		watcher.WithIndexFile(rt.engine.IndexPath()),
		watcher.WithNotifier(notify),
	)
	return w.Run(ctx)
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	rt, err := start(ctx, opts, true)
	if err != nil {
		return err
	}
	defer rt.close()
	cfg, logger := rt.cfg, rt.logger

	broker := sse.NewBroker()
	defer broker.Close()

	apiRouter := api.NewRouter(rt.engine, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := rt.engine.NoteExists(r.Context(), ""); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return rt.watch(gCtx, func(k watcher.Kind) {
			broker.PublishNotes(k == watcher.KindRenamed)
		})
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		waitForShutdown(gCtx, logger)

		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools over stdio while the watcher keeps the index fresh.
func RunMCP(ctx context.Context, opts ...Option) error {
	rt, err := start(ctx, append([]Option{WithLogOutput(os.Stderr)}, opts...), true)
	if err != nil {
		return err
	}
	defer rt.close()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.watch(gCtx, func(k watcher.Kind) {
			rt.logger.Debug("notes reconciled", slog.String("kind", k.String()))
		})
	})
	g.Go(func() error {
		// ServeStdio returns when stdin closes or on SIGINT/SIGTERM.
		if err := mcpserver.New(rt.engine).ServeStdio(); err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		return err
	}
	return nil
}

// Rescan reconciles the index with the store once and returns the result.
// The startup sync is skipped so the stats reflect the drift repaired here.
func Rescan(ctx context.Context, opts ...Option) (notes.SyncStats, error) {
	rt, err := start(ctx, opts, false)
	if err != nil {
		return notes.SyncStats{}, err
	}
	defer rt.close()
	return rt.engine.Rescan(ctx)
}

// errShutdown stops sibling goroutines once the server is going down.
var errShutdown = errors.New("shutdown")

func waitForShutdown(ctx context.Context, logger *slog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, initiating shutdown")
	}
}
