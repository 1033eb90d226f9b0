package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hyperengineering/recommender/internal/cache"
	"github.com/hyperengineering/recommender/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger builds the process logger from the log config.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// setCommandLogger sends logs of offline commands to stderr at warn level
// unless debug was asked for, so stdout stays parseable.
func setCommandLogger(cmd *cobra.Command, cfg *config.Config) {
	logCfg := cfg.Log
	if logCfg.Level != "debug" {
		logCfg.Level = "warn"
	}
	slog.SetDefault(newLogger(logCfg, cmd.ErrOrStderr()))
}

// openCache creates the configured cache backend wrapped with metrics.
func openCache(cfg *config.Config) (cache.Cache, error) {
	keys := cache.Keys{Prefix: cfg.Cache.KeyPrefix, PoolKey: cfg.Cache.PoolKey}

	switch cfg.Cache.Backend {
	case "memory":
		return cache.WithMetrics(cache.NewMemoryCache()), nil
	case "redis":
		rc, err := cache.NewRedisCache(cache.RedisOptions{
			URL:          cfg.Cache.URL,
			Addr:         cfg.Cache.Addr,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			Keys:         keys,
			DialTimeout:  time.Duration(cfg.Cache.DialTimeout),
			ReadTimeout:  time.Duration(cfg.Cache.ReadTimeout),
			WriteTimeout: time.Duration(cfg.Cache.WriteTimeout),
		}, slog.Default())
		if err != nil {
			return nil, err
		}
		return cache.WithMetrics(rc), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// openSharedCache opens the cache for offline commands, which only make
// sense against a backend the server can also see.
func openSharedCache(cfg *config.Config) (cache.Cache, error) {
	if cfg.Cache.Backend != "redis" {
		return nil, fmt.Errorf("cache commands need the redis backend (cache.backend is %q)", cfg.Cache.Backend)
	}
	return openCache(cfg)
}

// decodeFile reads JSON, or YAML when the extension is .yaml or .yml.
func decodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, v)
	default:
		err = json.Unmarshal(data, v)
	}
	if err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}
