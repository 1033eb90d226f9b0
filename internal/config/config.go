package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server          ServerConfig    `yaml:"server"`
	Database        DatabaseConfig  `yaml:"database"`
	Cache           CacheConfig     `yaml:"cache"`
	History         LimitConfig     `yaml:"history"`
	Recommendations LimitConfig     `yaml:"recommendations"`
	Worker          WorkerConfig    `yaml:"worker"`
	Log             LogConfig       `yaml:"log"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
	// DescriptionPolicy is "insert-only" or "insert-or-ignore".
	DescriptionPolicy string `yaml:"description_policy"`
}

// CacheConfig contains recommendation cache settings.
type CacheConfig struct {
	Backend      string   `yaml:"backend"` // redis or memory
	URL          string   `yaml:"url"`
	Addr         string   `yaml:"addr"`
	Password     string   `yaml:"-"` // env-only, never in YAML
	DB           int      `yaml:"db"`
	KeyPrefix    string   `yaml:"key_prefix"`
	PoolKey      string   `yaml:"pool_key"`
	DefaultTTL   Duration `yaml:"default_ttl"`
	DialTimeout  Duration `yaml:"dial_timeout"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

// LimitConfig bounds the page size of a list endpoint.
type LimitConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

// WorkerConfig contains background worker settings.
type WorkerConfig struct {
	// FallbackRefreshInterval of zero disables the fallback pool refresher.
	FallbackRefreshInterval Duration `yaml:"fallback_refresh_interval"`
	FallbackPoolSize        int      `yaml:"fallback_pool_size"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RateLimitConfig throttles destructive endpoints.
type RateLimitConfig struct {
	DeleteBurst  int      `yaml:"delete_burst"`
	DeleteRefill Duration `yaml:"delete_refill"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("RECOMMENDER_CONFIG_PATH", "config/recommender.yaml")

	// Missing file is not an error
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path.
// Used for testing and explicit path specification.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path:              "data/recommender.db",
			DescriptionPolicy: "insert-only",
		},
		Cache: CacheConfig{
			Backend:      "redis",
			Addr:         "localhost:6379",
			PoolKey:      "latest",
			DefaultTTL:   Duration(time.Hour),
			DialTimeout:  Duration(5 * time.Second),
			ReadTimeout:  Duration(3 * time.Second),
			WriteTimeout: Duration(3 * time.Second),
		},
		History: LimitConfig{
			DefaultLimit: 10,
			MaxLimit:     100,
		},
		Recommendations: LimitConfig{
			DefaultLimit: 10,
			MaxLimit:     100,
		},
		Worker: WorkerConfig{
			FallbackRefreshInterval: 0,
			FallbackPoolSize:        100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			DeleteBurst:  10,
			DeleteRefill: Duration(time.Second),
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values; a malformed value is an error.
func applyEnvOverrides(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid integer %q", key, v))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, v))
				return
			}
			*dst = Duration(d)
		}
	}

	// Server
	num("RECOMMENDER_PORT", &cfg.Server.Port)
	dur("RECOMMENDER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	dur("RECOMMENDER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	dur("RECOMMENDER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Database
	str("RECOMMENDER_DB_PATH", &cfg.Database.Path)
	str("RECOMMENDER_DESCRIPTION_POLICY", &cfg.Database.DescriptionPolicy)

	// Cache
	str("RECOMMENDER_CACHE_BACKEND", &cfg.Cache.Backend)
	str("RECOMMENDER_REDIS_URL", &cfg.Cache.URL)
	str("RECOMMENDER_REDIS_ADDR", &cfg.Cache.Addr)
	str("RECOMMENDER_REDIS_PASSWORD", &cfg.Cache.Password)
	num("RECOMMENDER_REDIS_DB", &cfg.Cache.DB)
	str("RECOMMENDER_CACHE_KEY_PREFIX", &cfg.Cache.KeyPrefix)
	str("RECOMMENDER_CACHE_POOL_KEY", &cfg.Cache.PoolKey)
	dur("RECOMMENDER_CACHE_TTL", &cfg.Cache.DefaultTTL)

	// Limits
	num("RECOMMENDER_HISTORY_DEFAULT_LIMIT", &cfg.History.DefaultLimit)
	num("RECOMMENDER_HISTORY_MAX_LIMIT", &cfg.History.MaxLimit)
	num("RECOMMENDER_RECOMMENDATIONS_DEFAULT_LIMIT", &cfg.Recommendations.DefaultLimit)
	num("RECOMMENDER_RECOMMENDATIONS_MAX_LIMIT", &cfg.Recommendations.MaxLimit)

	// Worker
	dur("RECOMMENDER_FALLBACK_REFRESH_INTERVAL", &cfg.Worker.FallbackRefreshInterval)
	num("RECOMMENDER_FALLBACK_POOL_SIZE", &cfg.Worker.FallbackPoolSize)

	// Log
	str("RECOMMENDER_LOG_LEVEL", &cfg.Log.Level)
	str("RECOMMENDER_LOG_FORMAT", &cfg.Log.Format)

	// Rate limit
	num("RECOMMENDER_DELETE_BURST", &cfg.RateLimit.DeleteBurst)
	dur("RECOMMENDER_DELETE_REFILL", &cfg.RateLimit.DeleteRefill)

	return errors.Join(errs...)
}

// validate checks that configuration values are usable.
func (c *Config) validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	switch c.Database.DescriptionPolicy {
	case "insert-only", "insert-or-ignore":
	default:
		errs = append(errs, fmt.Errorf("database.description_policy %q must be insert-only or insert-or-ignore", c.Database.DescriptionPolicy))
	}

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.URL == "" && c.Cache.Addr == "" {
			errs = append(errs, errors.New("cache.url or cache.addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q must be redis or memory", c.Cache.Backend))
	}
	if c.Cache.PoolKey == "" {
		errs = append(errs, errors.New("cache.pool_key is required"))
	}
	if c.Cache.DefaultTTL <= 0 {
		errs = append(errs, errors.New("cache.default_ttl must be positive"))
	}

	for name, l := range map[string]LimitConfig{"history": c.History, "recommendations": c.Recommendations} {
		if l.MaxLimit < 1 {
			errs = append(errs, fmt.Errorf("%s.max_limit must be positive", name))
		}
		if l.DefaultLimit < 1 || l.DefaultLimit > l.MaxLimit {
			errs = append(errs, fmt.Errorf("%s.default_limit must be between 1 and max_limit", name))
		}
	}

	if c.Worker.FallbackRefreshInterval < 0 {
		errs = append(errs, errors.New("worker.fallback_refresh_interval must not be negative"))
	}
	if c.Worker.FallbackRefreshInterval > 0 && c.Worker.FallbackPoolSize < 1 {
		errs = append(errs, errors.New("worker.fallback_pool_size must be positive when the refresher is enabled"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", c.Log.Format))
	}

	if c.RateLimit.DeleteBurst < 1 || c.RateLimit.DeleteRefill <= 0 {
		errs = append(errs, errors.New("rate_limit.delete_burst and rate_limit.delete_refill must be positive"))
	}

	return errors.Join(errs...)
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
