// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/stickies/internal/api"
	"github.com/starford/stickies/internal/itemservice"
	"github.com/starford/stickies/internal/mcpserver"
	"github.com/starford/stickies/internal/preview"
	"github.com/starford/stickies/internal/sse"
	"github.com/starford/stickies/internal/storage"
	"github.com/starford/stickies/internal/store"
	"github.com/starford/stickies/internal/uploads"
	"github.com/starford/stickies/internal/vault"
)

// components are the long-lived collaborators shared by the HTTP and MCP
// entry points.
type components struct {
	logger  *slog.Logger
	store   *store.Store
	broker  *sse.Broker
	uploads *uploads.Store
	vault   *vault.Vault
	svc     *itemservice.Service
}

func (c *components) Close() {
	c.broker.Close()
	if err := c.store.Close(); err != nil {
		c.logger.Warn("store close failed", slog.String("error", err.Error()))
	}
}

func setup(opts []Option) (*components, *Config, error) {
	app := &application{logOutput: os.Stdout}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("uploads_dir", cfg.Uploads.Dir),
		slog.Int("taxonomy_concurrency", cfg.Taxonomy.Concurrency),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initialize SQLite item store.
	st, err := store.Open(cfg.SQLite.Path, store.WithLogger(logger))
	if err != nil {
		return nil, nil, fmt.Errorf("init store: %w", err)
	}

	// Initialize upload storage.
	uploadFS, err := storage.EnsureFS(cfg.Uploads.Dir)
	if err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("init uploads: %w", err)
	}

	c := &components{
		logger:  logger,
		store:   st,
		broker:  sse.NewBroker(2 * time.Second),
		uploads: uploads.New(uploadFS, cfg.Uploads.MaxBytes, cfg.Uploads.PublicPrefix),
	}

	svcOpts := []itemservice.Option{
		itemservice.WithNotifier(c.broker),
		itemservice.WithLogger(logger),
	}

	if cfg.Vault.Enabled() {
		vaultFS, err := storage.EnsureFS(cfg.Vault.Path)
		if err != nil {
			c.Close()
			return nil, nil, fmt.Errorf("init vault: %w", err)
		}
		owner := cfg.Vault.Owner
		c.vault = vault.New(vaultFS, st, owner,
			vault.WithLogger(logger),
			vault.WithEventCallback(func(kind, id string) {
				c.broker.PublishItemEvent(kind, owner, id)
			}))
		svcOpts = append(svcOpts, itemservice.WithFileSync(c.vault))
	}

	c.svc = itemservice.New(st, cfg.Taxonomy.Concurrency, svcOpts...)
	return c, cfg, nil
}

// Run starts the HTTP application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	c, cfg, err := setup(opts)
	if err != nil {
		return err
	}
	defer c.Close()
	logger := c.logger

	// Run initial sync.
	if c.vault != nil {
		if err := c.vault.Sync(ctx); err != nil {
			logger.Warn("initial sync failed", slog.String("error", err.Error()))
		}
	}

	apiRouter := api.NewRouter(c.svc, api.RouterConfig{
		AuthEnabled:  cfg.Auth.AuthEnabled(),
		Token:        cfg.Auth.Token,
		DefaultOwner: cfg.App.DefaultOwner,
		Events:       c.broker,
		Uploads:      c.uploads,
		Preview:      preview.New(preview.DefaultTagBase),
	})

	// Build chi router.
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
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.store.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Uploaded images are public so that <img> tags work without a token.
	r.Get(cfg.Uploads.PublicPrefix+"/{name}", api.NewUploadHandler(c.uploads).ServeFile)

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start vault watcher; its events reach SSE clients through the callback.
	if c.vault != nil && cfg.Vault.Watch {
		g.Go(func() error {
			if err := c.vault.Watch(gCtx); err != nil {
				logger.Error("vault watcher failed", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

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

// RunMCP serves the MCP tools on stdin/stdout for the default owner. Logs
// must not go to stdout; pass WithLogOutput(os.Stderr).
func RunMCP(ctx context.Context, opts ...Option) error {
	c, cfg, err := setup(opts)
	if err != nil {
		return err
	}
	defer c.Close()

	if c.vault != nil {
		if err := c.vault.Sync(ctx); err != nil {
			c.logger.Warn("initial sync failed", slog.String("error", err.Error()))
		}
	}
	if cfg.App.DefaultOwner == "" {
		return fmt.Errorf("mcp: app.default_owner is required")
	}

	c.logger.Info("MCP server starting", slog.String("owner", cfg.App.DefaultOwner))
	return mcpserver.New(c.svc, c.uploads, cfg.App.DefaultOwner).ServeStdio()
}
