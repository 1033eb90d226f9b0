package worker

import (
	"context"
	"log/slog"
	"time"
)

// LatestItemSource lists the most recently created items.
// Implemented by store.SQLiteStore.
type LatestItemSource interface {
	LatestItems(ctx context.Context, limit int) ([]int64, error)
}

// PoolWriter replaces the shared fallback pool.
// Implemented by every cache.Cache.
type PoolWriter interface {
	WriteFallbackPool(ctx context.Context, itemIDs []int64, ttl time.Duration) (int64, error)
}

// FallbackRefresher keeps the fallback pool filled with the newest items so
// users without a personalized list still get recommendations.
type FallbackRefresher struct {
	source   LatestItemSource
	pool     PoolWriter
	interval time.Duration
	size     int
	ttl      time.Duration
}

// NewFallbackRefresher creates a refresher. An interval of zero disables it.
func NewFallbackRefresher(source LatestItemSource, pool PoolWriter, interval time.Duration, size int, ttl time.Duration) *FallbackRefresher {
	return &FallbackRefresher{
		source:   source,
		pool:     pool,
		interval: interval,
		size:     size,
		ttl:      ttl,
	}
}

// Run refreshes the pool once, then on every tick. Blocks until ctx is cancelled.
// Returns immediately when the refresher is disabled.
func (f *FallbackRefresher) Run(ctx context.Context) {
	if f.interval <= 0 {
		slog.Info("fallback refresher disabled",
			"component", "worker",
			"worker", "fallback-refresher",
		)
		return
	}

	slog.Info("fallback refresher started",
		"component", "worker",
		"worker", "fallback-refresher",
		"interval", f.interval.String(),
		"pool_size", f.size,
		"ttl", f.ttl.String(),
	)
	if f.ttl < f.interval {
		slog.Warn("fallback pool ttl is shorter than the refresh interval; the pool will lapse between refreshes",
			"component", "worker",
			"worker", "fallback-refresher",
		)
	}

	// The pool should be warm as soon as the server accepts traffic.
	f.refresh(ctx)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("fallback refresher stopped",
				"component", "worker",
				"worker", "fallback-refresher",
				"reason", "context_cancelled",
			)
			return
		case <-ticker.C:
			f.refresh(ctx)
		}
	}
}

// refresh runs a single cycle, logging instead of returning errors.
func (f *FallbackRefresher) refresh(ctx context.Context) {
	if _, _, err := f.RefreshOnce(ctx); err != nil {
		if ctx.Err() != nil {
			return // Graceful shutdown
		}
		slog.Error("fallback pool refresh failed",
			"component", "worker",
			"worker", "fallback-refresher",
			"error", err,
		)
	}
}

// RefreshOnce writes the newest items to the pool and returns how many were
// written and the resulting pool version. With no items the existing pool is
// left in place and version 0 is returned.
func (f *FallbackRefresher) RefreshOnce(ctx context.Context) (int, int64, error) {
	start := time.Now()

	items, err := f.source.LatestItems(ctx, f.size)
	if err != nil {
		return 0, 0, err
	}
	if len(items) == 0 {
		slog.Debug("no items for fallback pool",
			"component", "worker",
			"worker", "fallback-refresher",
		)
		return 0, 0, nil
	}

	version, err := f.pool.WriteFallbackPool(ctx, items, f.ttl)
	if err != nil {
		return 0, 0, err
	}

	slog.Info("fallback pool refreshed",
		"component", "worker",
		"worker", "fallback-refresher",
		"items", len(items),
		"version", version,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return len(items), version, nil
}
