package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hyperengineering/recommender/internal/api"
	"github.com/hyperengineering/recommender/internal/cache"
	"github.com/hyperengineering/recommender/internal/config"
	"github.com/hyperengineering/recommender/internal/store"
	"github.com/hyperengineering/recommender/internal/worker"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:          "recommender",
	Short:        "Recommender - entity profiles, interactions and cached recommendations",
	RunE:         run,
	SilenceUsage: true,
}

// app holds the long-lived components of a running server.
type app struct {
	store     *store.SQLiteStore
	cache     cache.Cache
	refresher *worker.FallbackRefresher
	handler   http.Handler
}

// newApp opens the store and cache and wires the HTTP router.
func newApp(cfg *config.Config) (*app, error) {
	policy, err := store.ParseDescriptionPolicy(cfg.Database.DescriptionPolicy)
	if err != nil {
		return nil, err
	}
	db, err := store.NewSQLiteStore(cfg.Database.Path, store.WithDescriptionPolicy(policy))
	if err != nil {
		return nil, err
	}
	slog.Info("store initialized", "path", cfg.Database.Path, "description_policy", policy)

	c, err := openCache(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("cache initialized", "backend", cfg.Cache.Backend)

	limits := api.Limits{
		History:         api.Limit{Default: cfg.History.DefaultLimit, Max: cfg.History.MaxLimit},
		Recommendations: api.Limit{Default: cfg.Recommendations.DefaultLimit, Max: cfg.Recommendations.MaxLimit},
	}
	handler := api.NewHandler(db, c, Version, limits)
	deletes := api.NewDeleteRateLimiter(cfg.RateLimit.DeleteBurst, time.Duration(cfg.RateLimit.DeleteRefill))
	router := api.NewRouter(handler, deletes)
	slog.Info("router initialized")

	refresher := worker.NewFallbackRefresher(db, c,
		time.Duration(cfg.Worker.FallbackRefreshInterval),
		cfg.Worker.FallbackPoolSize,
		time.Duration(cfg.Cache.DefaultTTL),
	)

	return &app{store: db, cache: c, refresher: refresher, handler: router}, nil
}

// Close releases the cache, then the store.
func (a *app) Close() error {
	return errors.Join(a.cache.Close(), a.store.Close())
}

func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// 3. Initialize logger
	slog.SetDefault(newLogger(cfg.Log, os.Stdout))
	slog.Info("configuration loaded")
	slog.Info("logger initialized", "level", cfg.Log.Level, "format", cfg.Log.Format)

	// 4. Store, cache and router
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	if err := a.cache.Ping(ctx); err != nil {
		// Reads degrade to 503 until the cache comes back; the server still starts.
		slog.Warn("cache not reachable at startup", "error", err)
	}

	// 5. Configure HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	// 6. Background workers
	var wg sync.WaitGroup
	if cfg.Worker.FallbackRefreshInterval > 0 {
		startWorker(ctx, &wg, "fallback-refresher", a.refresher.Run)
	}

	// 7. Start HTTP server in goroutine
	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error when Shutdown() is called gracefully.
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel() // Trigger shutdown on server failure
		}
	}()

	// 8. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 9. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	// 9a. Stop HTTP server (drains in-flight requests)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	// 9b. Wait for workers to complete
	wg.Wait()

	// 9c. Close cache and store
	if err := a.Close(); err != nil {
		slog.Error("close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// startWorker launches a background worker goroutine that respects context cancellation.
// Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
