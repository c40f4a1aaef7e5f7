package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-syllabus/internal/activity"
	"github.com/p-n-ai/pai-syllabus/internal/curriculum"
	"github.com/p-n-ai/pai-syllabus/internal/platform/cache"
	"github.com/p-n-ai/pai-syllabus/internal/platform/config"
	"github.com/p-n-ai/pai-syllabus/internal/platform/database"
	"github.com/p-n-ai/pai-syllabus/internal/platform/kv"
	"github.com/p-n-ai/pai-syllabus/internal/profile"
	"github.com/p-n-ai/pai-syllabus/internal/server"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log, os.Stdout))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.close()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.server.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// app holds the wired server and the resources to release on exit.
type app struct {
	server  *server.Server
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp connects the backends selected by cfg and builds the HTTP server.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	checks := map[string]server.Checker{}

	catalog, err := curriculum.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	var profiles profile.Store = profile.NewMemoryStore()
	var events activity.Logger = activity.NopLogger{}
	if cfg.UsesPostgres() {
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		a.closers = append(a.closers, db.Close)

		if cfg.Database.Migrate {
			if err := db.Migrate(ctx); err != nil {
				a.close()
				return nil, fmt.Errorf("migrating database: %w", err)
			}
		}
		store, err := profile.NewPostgresStore(db.Pool)
		if err != nil {
			a.close()
			return nil, err
		}
		profiles = store
		events = activity.NewPostgresLogger(db.Pool)
		checks["database"] = db.HealthCheck
	}

	var store kv.Store
	switch {
	case cfg.UsesCache():
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connecting to cache: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := c.Close(); err != nil {
				slog.Warn("closing cache failed", "error", err)
			}
		})
		store = c
		checks["cache"] = c.HealthCheck
	case cfg.KV.Backend == "file":
		fs, err := kv.NewFileStore(cfg.KV.Path)
		if err != nil {
			a.close()
			return nil, err
		}
		store = fs
	default:
		store = kv.NewMemoryStore()
	}

	srv, err := server.New(server.Options{
		Catalog:    catalog,
		Profiles:   profiles,
		KV:         store,
		Activity:   events,
		Builtins:   cfg.Builtins,
		APIKeyHash: cfg.Auth.APIKeyHash,
		Checks:     checks,

		MaxTrackers: cfg.Tracker.Max,
		TrackerIdle: cfg.Tracker.Idle,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	a.server = srv

	slog.Info("backends ready",
		"store", cfg.Store.Backend,
		"kv", cfg.KV.Backend,
		"protocols", len(catalog.Protocols()),
		"auth", cfg.Auth.APIKeyHash != "",
	)
	return a, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
