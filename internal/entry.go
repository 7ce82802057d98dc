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

	"github.com/starford/clustermap/internal/api"
	"github.com/starford/clustermap/internal/bridge"
	"github.com/starford/clustermap/internal/dispatch"
	"github.com/starford/clustermap/internal/ingest"
	"github.com/starford/clustermap/internal/mcpserver"
	"github.com/starford/clustermap/internal/resultservice"
	"github.com/starford/clustermap/internal/sse"
	"github.com/starford/clustermap/internal/storage"
	"github.com/starford/clustermap/internal/store"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// MCP speaks over stdout, so logs go to stderr in that mode.
	var logOut io.Writer = os.Stdout
	if app.mcp {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_path", cfg.Store.Path),
		slog.String("inbox_path", cfg.Inbox.Path),
		slog.Bool("inbox_enabled", cfg.Inbox.Enabled),
		slog.Duration("refresh_delay", cfg.Refresh.Delay),
		slog.String("log_level", cfg.App.LogLevel.String()))

	db, err := store.Open(cfg.Store.Path, store.WithHistoryLimit(cfg.Store.HistoryLimit))
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer db.Close()

	if app.mcp {
		svc := resultservice.NewService(db, nil, nil, logger)
		logger.Info("Serving MCP over stdio")
		return mcpserver.New(svc).ServeStdio()
	}

	// Renderer side: SSE broker keeps and streams the published tree.
	broker := sse.NewBroker(cfg.SSE.SelectionThrottle)
	defer broker.Close()

	selections := bridge.NewSelectionHub()
	svc := resultservice.NewService(db, broker, selections, logger)

	// Render context and refresh bridge.
	loop := dispatch.NewLoop(64)
	defer loop.Close()

	br := bridge.New(db, broker, loop,
		bridge.WithDelay(cfg.Refresh.Delay),
		bridge.WithLogger(logger),
		bridge.WithSelectionSource(selections),
	)
	defer br.Close()
	if err := br.Start(ctx); err != nil {
		return fmt.Errorf("start bridge: %w", err)
	}

	var watcher *ingest.Watcher
	if cfg.Inbox.Enabled {
		if err := os.MkdirAll(cfg.Inbox.Path, 0o755); err != nil {
			return fmt.Errorf("create inbox dir: %w", err)
		}
		files, err := storage.NewFS(cfg.Inbox.Path)
		if err != nil {
			return fmt.Errorf("init inbox: %w", err)
		}
		watcher = ingest.New(files, files.Root(), svc, logger,
			ingest.WithSettle(cfg.Inbox.Settle),
			ingest.WithKeepProcessed(cfg.Inbox.KeepProcessed),
			ingest.WithCallback(broker.PublishInboxEvent),
		)
	}

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(gCtx)
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Shut down on signal or when any component fails.
	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down server...")

		// Stop refreshing, then end SSE streams so Shutdown does not wait
		// on them.
		br.Close()
		if stats, ok := br.Stats(); ok {
			logger.Info("bridge: final stats",
				slog.Int("published", br.Published()),
				slog.Int("groups", stats.Groups),
				slog.Int("leaves", stats.Leaves),
				slog.Int("reused", stats.Reused))
		}
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
