package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hyperengineering/recommender/internal/types"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// poolChunkSize caps the members sent in a single SADD.
const poolChunkSize = 1000

// RedisOptions configures a RedisCache. URL takes precedence over Addr.
type RedisOptions struct {
	URL          string
	Addr         string
	Password     string
	DB           int
	Keys         Keys
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// MaxRetries follows go-redis: 0 uses the client default, -1 disables retries.
	MaxRetries int
}

// RedisCache stores user lists as Redis LISTs and the fallback pool as a SET.
type RedisCache struct {
	client *redis.Client
	keys   Keys
	logger *slog.Logger
}

var _ Cache = (*RedisCache)(nil)

// NewRedisCache creates a client. It does not dial; use Ping to check reachability.
func NewRedisCache(opts RedisOptions, logger *slog.Logger) (*RedisCache, error) {
	var ro *redis.Options
	if opts.URL != "" {
		parsed, err := redis.ParseURL(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		ro = parsed
	} else {
		ro = &redis.Options{Addr: opts.Addr, DB: opts.DB}
	}
	if opts.Password != "" {
		ro.Password = opts.Password
	}
	if opts.DialTimeout > 0 {
		ro.DialTimeout = opts.DialTimeout
	}
	if opts.ReadTimeout > 0 {
		ro.ReadTimeout = opts.ReadTimeout
	}
	if opts.WriteTimeout > 0 {
		ro.WriteTimeout = opts.WriteTimeout
	}
	if opts.MaxRetries != 0 {
		ro.MaxRetries = opts.MaxRetries
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{
		client: redis.NewClient(ro),
		keys:   opts.Keys,
		logger: logger.With("component", "cache", "backend", "redis"),
	}, nil
}

// unavailable wraps transport errors. redis.Nil is reported as nil.
func unavailable(op string, err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

func (c *RedisCache) WriteUserList(ctx context.Context, userID int64, itemIDs []int64, ttl time.Duration) error {
	if err := validateWrite(ttl); err != nil {
		return err
	}
	key := c.keys.User(userID)

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(itemIDs) > 0 {
			pipe.RPush(ctx, key, formatIDs(itemIDs)...)
			pipe.PExpire(ctx, key, ttl)
		}
		return nil
	})
	return unavailable("write user list", err)
}

func (c *RedisCache) WriteFallbackPool(ctx context.Context, itemIDs []int64, ttl time.Duration) (int64, error) {
	if err := validateWrite(ttl); err != nil {
		return 0, err
	}
	pool := c.keys.Pool()

	var staging string
	if len(itemIDs) > 0 {
		staging = c.keys.Staging(ulid.Make().String())
		if err := c.stage(ctx, staging, itemIDs, ttl); err != nil {
			c.dropStaging(staging)
			return 0, err
		}
	}

	var incr *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if staging == "" {
			pipe.Del(ctx, pool)
		} else {
			pipe.Rename(ctx, staging, pool)
		}
		incr = pipe.Incr(ctx, c.keys.PoolVersion())
		return nil
	})
	if err != nil {
		if staging != "" {
			c.dropStaging(staging)
		}
		return 0, unavailable("swap fallback pool", err)
	}
	return incr.Val(), nil
}

func (c *RedisCache) stage(ctx context.Context, staging string, itemIDs []int64, ttl time.Duration) error {
	members := formatIDs(itemIDs)
	pipe := c.client.Pipeline()
	for start := 0; start < len(members); start += poolChunkSize {
		end := min(start+poolChunkSize, len(members))
		pipe.SAdd(ctx, staging, members[start:end]...)
	}
	pipe.PExpire(ctx, staging, ttl)
	_, err := pipe.Exec(ctx)
	return unavailable("stage fallback pool", err)
}

// dropStaging removes a half-built staging key. Its TTL covers the case where
// this also fails.
func (c *RedisCache) dropStaging(staging string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.client.Del(ctx, staging).Err(); err != nil {
		c.logger.Warn("failed to remove staging pool", "key", staging, "error", err)
	}
}

func (c *RedisCache) ReadRecommendations(ctx context.Context, userID int64, limit int) (*types.Recommendations, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	ranked, err := c.client.LRange(ctx, c.keys.User(userID), 0, int64(limit-1)).Result()
	if err := unavailable("read user list", err); err != nil {
		return nil, err
	}
	if ids := c.parseIDs(ranked); len(ids) > 0 {
		return &types.Recommendations{Items: ids, Source: types.SourcePersonalized}, nil
	}

	sampled, err := c.client.SRandMemberN(ctx, c.keys.Pool(), int64(limit)).Result()
	if err := unavailable("sample fallback pool", err); err != nil {
		return nil, err
	}
	if ids := c.parseIDs(sampled); len(ids) > 0 {
		return &types.Recommendations{Items: ids, Source: types.SourceFallback}, nil
	}

	return &types.Recommendations{Items: []int64{}, Source: types.SourceNone}, nil
}

func (c *RedisCache) ReadUserList(ctx context.Context, userID int64, limit int) ([]int64, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	vals, err := c.client.LRange(ctx, c.keys.User(userID), 0, stop).Result()
	if err := unavailable("read user list", err); err != nil {
		return nil, err
	}
	return c.parseIDs(vals), nil
}

func (c *RedisCache) PoolSize(ctx context.Context) (int64, error) {
	n, err := c.client.SCard(ctx, c.keys.Pool()).Result()
	if err := unavailable("pool size", err); err != nil {
		return 0, err
	}
	return n, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return unavailable("ping", c.client.Ping(ctx).Err())
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) parseIDs(vals []string) []int64 {
	ids := make([]int64, 0, len(vals))
	for _, v := range vals {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.logger.Warn("skipping malformed cache member", "value", v)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
