package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperengineering/recommender/internal/config"
	"github.com/hyperengineering/recommender/internal/types"
	"github.com/hyperengineering/recommender/internal/validation"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	cacheLoadFile        string
	cacheLoadTTL         time.Duration
	cacheLoadConcurrency int
	cacheShowLimit       int
	cacheJSONOutput      bool
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Load and inspect cached recommendations",
	Long:  "Write trainer output into the recommendation cache and inspect what the server will serve.",
}

var cacheLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load trainer output into the cache",
	Long: `Load ranked lists and the fallback pool produced by the offline trainer.

The file (JSON, or YAML by extension) has the form:

  {"users": {"42": [5, 3, 8]}, "latest": [9, 7, 5]}

Each user list replaces the previous one. The pool is swapped atomically.`,
	Args: cobra.NoArgs,
	RunE: runCacheLoad,
}

var cacheShowCmd = &cobra.Command{
	Use:   "show <user_id>",
	Short: "Show the cached list of a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheShow,
}

func init() {
	cacheCmd.PersistentFlags().BoolVar(&cacheJSONOutput, "json", false, "Output in JSON format")

	cacheLoadCmd.Flags().StringVar(&cacheLoadFile, "file", "", "Trainer output file")
	cacheLoadCmd.Flags().DurationVar(&cacheLoadTTL, "ttl", 0, "Entry lifetime (default cache.default_ttl)")
	cacheLoadCmd.Flags().IntVar(&cacheLoadConcurrency, "concurrency", 8, "Parallel user list writes")
	cacheLoadCmd.MarkFlagRequired("file")

	cacheShowCmd.Flags().IntVar(&cacheShowLimit, "limit", 0, "Show at most this many items (0 shows all)")

	cacheCmd.AddCommand(cacheLoadCmd)
	cacheCmd.AddCommand(cacheShowCmd)
	rootCmd.AddCommand(cacheCmd)
}

// loadResult summarizes a cache load.
type loadResult struct {
	Batch       string `json:"batch"`
	Users       int    `json:"users"`
	PoolItems   int    `json:"pool_items"`
	PoolVersion int64  `json:"pool_version,omitempty"`
}

func runCacheLoad(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if cacheLoadConcurrency < 1 {
		return fmt.Errorf("--concurrency must be at least 1")
	}
	if cacheLoadTTL < 0 {
		return fmt.Errorf("--ttl must be positive")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setCommandLogger(cmd, cfg)
	ttl := cacheLoadTTL
	if ttl == 0 {
		ttl = time.Duration(cfg.Cache.DefaultTTL)
	}

	var out types.TrainerOutput
	if err := decodeFile(cacheLoadFile, &out); err != nil {
		return err
	}
	lists, err := out.UserLists()
	if err != nil {
		return fmt.Errorf("parse %s: %w", cacheLoadFile, err)
	}

	c, err := openSharedCache(cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.Ping(ctx); err != nil {
		return err
	}

	res := loadResult{Batch: ulid.Make().String(), Users: len(lists), PoolItems: len(out.Latest)}
	logger := slog.With("component", "cli", "batch", res.Batch)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cacheLoadConcurrency)
	for _, l := range lists {
		g.Go(func() error {
			if err := c.WriteUserList(gctx, l.UserID, l.Items, ttl); err != nil {
				return fmt.Errorf("user %d: %w", l.UserID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load user lists: %w", err)
	}

	if len(out.Latest) > 0 {
		version, err := c.WriteFallbackPool(ctx, out.Latest, ttl)
		if err != nil {
			return fmt.Errorf("load fallback pool: %w", err)
		}
		res.PoolVersion = version
	}

	logger.Info("cache loaded",
		"users", res.Users,
		"pool_items", res.PoolItems,
		"pool_version", res.PoolVersion,
		"ttl", ttl.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if cacheJSONOutput {
		return printJSON(cmd.OutOrStdout(), res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d user lists and %d pool items (batch %s)\n",
		res.Users, res.PoolItems, res.Batch)
	if res.PoolVersion > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Fallback pool version: %d\n", res.PoolVersion)
	}
	return nil
}

func runCacheShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	userID, verr := validation.ParseID("user_id", args[0])
	if verr != nil {
		return fmt.Errorf("%s %s", verr.Field, verr.Message)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setCommandLogger(cmd, cfg)

	c, err := openSharedCache(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	items, err := c.ReadUserList(ctx, userID, cacheShowLimit)
	if err != nil {
		return err
	}
	poolSize, err := c.PoolSize(ctx)
	if err != nil {
		return err
	}

	if cacheJSONOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"user_id":   userID,
			"items":     items,
			"pool_size": poolSize,
		})
	}

	if len(items) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No list cached for user %d; fallback pool has %d items.\n", userID, poolSize)
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "RANK\tITEM")
	for i, id := range items {
		fmt.Fprintf(w, "%d\t%d\n", i+1, id)
	}
	w.Flush()
	return nil
}
