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

	"github.com/starford/githighlight/internal/api"
	"github.com/starford/githighlight/internal/cache"
	"github.com/starford/githighlight/internal/highlight"
	"github.com/starford/githighlight/internal/mcpserver"
	"github.com/starford/githighlight/internal/session"
	"github.com/starford/githighlight/internal/sse"
	"github.com/starford/githighlight/internal/storage"
	pkgconfig "github.com/starford/githighlight/pkg/config"
)

// runtime is the wired set of components shared by the serve and MCP modes.
type runtime struct {
	app    *application
	cfg    *Config
	logger *slog.Logger
	level  *slog.LevelVar
	broker *sse.Broker
	sess   *session.Session
	svc    *highlight.Service
}

func setup(opts []Option) (*runtime, error) {
	app := &application{logOutput: os.Stdout, version: "dev"}
	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config
	app.applyOverrides(cfg)

	// Structured JSON logger; the level is adjustable on config reload.
	level := new(slog.LevelVar)
	level.Set(cfg.App.LogLevel)
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("project_root", cfg.Project.Root),
		slog.Int("commits", cfg.History.Commits),
		slog.Any("extensions", cfg.History.Extensions),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(cfg.App.EventThrottle)

	sess, err := session.Open(cfg.SessionConfig(),
		session.WithLogger(logger),
		session.WithCacheOptions(
			cache.WithOnPublish(broker.PublishSnapshot),
			cache.WithOnFailure(broker.PublishFailure),
		))
	if err != nil {
		broker.Close()
		return nil, fmt.Errorf("open session: %w", err)
	}

	var store storage.Provider
	if sess.Active() {
		fs, err := storage.NewFS(sess.Root())
		if err != nil {
			broker.Close()
			return nil, fmt.Errorf("init storage: %w", err)
		}
		store = fs
	}

	return &runtime{
		app:    app,
		cfg:    cfg,
		logger: logger,
		level:  level,
		broker: broker,
		sess:   sess,
		svc:    highlight.NewService(sess, store),
	}, nil
}

// applyOverrides puts command-line overrides on top of a loaded config.
func (a *application) applyOverrides(cfg *Config) {
	if a.root != "" {
		cfg.Project.Root = a.root
	}
}

func (rt *runtime) close() {
	rt.sess.Close()
	rt.broker.Close()
}

// reload re-reads the config file and applies what can change at runtime:
// the history settings and the log level. An invalid file is ignored.
func (rt *runtime) reload() {
	next := NewDefaultConfig()
	if err := pkgconfig.Load(rt.app.configPath, next); err != nil {
		rt.logger.Warn("config: reload rejected", slog.String("error", err.Error()))
		return
	}
	rt.app.applyOverrides(next)
	if next.Project.Root != rt.cfg.Project.Root || next.App.HTTP != rt.cfg.App.HTTP {
		rt.logger.Warn("config: project and http changes need a restart")
	}
	rt.level.Set(next.App.LogLevel)
	rt.sess.Reconfigure(next.History.Settings())
	rt.logger.Info("config: reloaded", slog.String("path", rt.app.configPath))
}

// watchConfig reloads on config file changes until ctx is done. A broken
// watch only disables live reload.
func (rt *runtime) watchConfig(ctx context.Context) error {
	if rt.app.configPath == "" {
		return nil
	}
	if err := pkgconfig.Watch(ctx, rt.app.configPath, rt.reload); err != nil {
		rt.logger.Warn("config: live reload disabled", slog.String("error", err.Error()))
	}
	return nil
}

// Run starts the HTTP daemon with the given options.
func Run(ctx context.Context, opts ...Option) error {
	rt, err := setup(opts)
	if err != nil {
		return err
	}
	defer rt.close()

	cfg := rt.cfg
	logger := rt.logger

	h := api.NewHandler(rt.svc)
	apiRouter := api.NewRouter(rt.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, rt.broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", api.Live)
	r.Get("/health/ready", h.Ready)

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	rt.sess.Start(gCtx)

	g.Go(func() error {
		return rt.watchConfig(gCtx)
	})

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

		var err error
		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
			err = context.Canceled
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// Event streams never go idle on their own.
		rt.broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP protocol on stdin/stdout until the client
// disconnects. Logs go to stderr unless WithLogOutput says otherwise.
func RunMCP(ctx context.Context, opts ...Option) error {
	rt, err := setup(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rt.sess.Start(ctx)
	srv := mcpserver.New(rt.svc, rt.app.version)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.watchConfig(gCtx)
	})
	g.Go(func() error {
		defer cancel()
		rt.logger.Info("mcp: serving on stdio")
		if err := srv.ServeStdio(); err != nil {
			return fmt.Errorf("mcp server error: %w", err)
		}
		return nil
	})

	return g.Wait()
}
