package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hyperengineering/recommender/internal/types"
)

func newTestRedisCache(t *testing.T, mr *miniredis.Miniredis, keys Keys) *RedisCache {
	t.Helper()
	c, err := NewRedisCache(RedisOptions{
		Addr:        mr.Addr(),
		Keys:        keys,
		DialTimeout: time.Second,
		MaxRetries:  -1,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewRedisCache() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRedisCache_Contract(t *testing.T) {
	runContract(t, func(t *testing.T) harness {
		mr := miniredis.RunT(t)
		return harness{
			cache:   newTestRedisCache(t, mr, Keys{}),
			advance: mr.FastForward,
		}
	})
}

func TestRedisCache_KeyLayout(t *testing.T) {
	mr := miniredis.RunT(t)
	c := newTestRedisCache(t, mr, Keys{Prefix: "rec:", PoolKey: "popular"})
	ctx := context.Background()

	if err := c.WriteUserList(ctx, 42, []int64{3, 1, 2}, 90*time.Second); err != nil {
		t.Fatalf("WriteUserList() error = %v", err)
	}
	if _, err := c.WriteFallbackPool(ctx, []int64{7, 8}, time.Hour); err != nil {
		t.Fatalf("WriteFallbackPool() error = %v", err)
	}

	list, err := mr.List("rec:user:42")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if strings.Join(list, ",") != "3,1,2" {
		t.Errorf("rec:user:42 = %v, want [3 1 2]", list)
	}
	if ttl := mr.TTL("rec:user:42"); ttl != 90*time.Second {
		t.Errorf("TTL(rec:user:42) = %v, want 90s", ttl)
	}

	members, err := mr.Members("rec:popular")
	if err != nil {
		t.Fatalf("Members() error = %v", err)
	}
	if strings.Join(members, ",") != "7,8" {
		t.Errorf("rec:popular = %v, want [7 8]", members)
	}
	if ttl := mr.TTL("rec:popular"); ttl != time.Hour {
		t.Errorf("TTL(rec:popular) = %v, want 1h (carried over from staging)", ttl)
	}
	if v, err := mr.Get("rec:popular:version"); err != nil || v != "1" {
		t.Errorf("rec:popular:version = %q, %v; want 1", v, err)
	}
}

func TestRedisCache_PoolSwapLeavesNoStagingKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	c := newTestRedisCache(t, mr, Keys{})
	ctx := context.Background()

	ids := make([]int64, 2*poolChunkSize+500)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	if _, err := c.WriteFallbackPool(ctx, ids, time.Hour); err != nil {
		t.Fatalf("WriteFallbackPool() error = %v", err)
	}

	size, err := c.PoolSize(ctx)
	if err != nil {
		t.Fatalf("PoolSize() error = %v", err)
	}
	if size != int64(len(ids)) {
		t.Errorf("PoolSize() = %d, want %d", size, len(ids))
	}
	for _, k := range mr.Keys() {
		if strings.Contains(k, ":staging:") {
			t.Errorf("staging key %s left behind", k)
		}
	}
}

func TestRedisCache_EmptyPoolDeletesKey(t *testing.T) {
	mr := miniredis.RunT(t)
	c := newTestRedisCache(t, mr, Keys{})
	ctx := context.Background()

	if _, err := c.WriteFallbackPool(ctx, []int64{1}, time.Hour); err != nil {
		t.Fatalf("WriteFallbackPool() error = %v", err)
	}
	if _, err := c.WriteFallbackPool(ctx, []int64{}, time.Hour); err != nil {
		t.Fatalf("WriteFallbackPool(empty) error = %v", err)
	}
	if mr.Exists(DefaultPoolKey) {
		t.Error("pool key still exists after writing an empty pool")
	}
}

func TestRedisCache_SkipsMalformedMembers(t *testing.T) {
	mr := miniredis.RunT(t)
	c := newTestRedisCache(t, mr, Keys{})

	if _, err := mr.Push("user:1", "5", "not-an-id", "6"); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	recs, err := c.ReadRecommendations(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("ReadRecommendations() error = %v", err)
	}
	if len(recs.Items) != 2 || recs.Items[0] != 5 || recs.Items[1] != 6 {
		t.Errorf("Items = %v, want [5 6]", recs.Items)
	}
}

func TestRedisCache_UnavailableWhenServerDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	c := newTestRedisCache(t, mr, Keys{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Given a cache whose server has gone away
	mr.Close()

	// Then every call reports ErrUnavailable
	if err := c.Ping(ctx); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Ping() error = %v, want ErrUnavailable", err)
	}
	if _, err := c.ReadRecommendations(ctx, 1, 5); !errors.Is(err, ErrUnavailable) {
		t.Errorf("ReadRecommendations() error = %v, want ErrUnavailable", err)
	}
	if err := c.WriteUserList(ctx, 1, []int64{1}, time.Hour); !errors.Is(err, ErrUnavailable) {
		t.Errorf("WriteUserList() error = %v, want ErrUnavailable", err)
	}
	if _, err := c.WriteFallbackPool(ctx, []int64{1}, time.Hour); !errors.Is(err, ErrUnavailable) {
		t.Errorf("WriteFallbackPool() error = %v, want ErrUnavailable", err)
	}
}

func TestRedisCache_ServerErrorIsUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	c := newTestRedisCache(t, mr, Keys{})

	mr.SetError("LOADING Redis is loading the dataset in memory")
	defer mr.SetError("")

	_, err := c.ReadRecommendations(context.Background(), 1, 5)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("ReadRecommendations() error = %v, want ErrUnavailable", err)
	}
}

func TestNewRedisCache_FromURL(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewRedisCache(RedisOptions{URL: "redis://" + mr.Addr() + "/0"}, nil)
	if err != nil {
		t.Fatalf("NewRedisCache() error = %v", err)
	}
	defer c.Close()

	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
	if _, err := NewRedisCache(RedisOptions{URL: "http://nope"}, nil); err == nil {
		t.Error("NewRedisCache() with a non-redis URL should fail")
	}
}

func TestMetered_PassesThroughAndKeepsSource(t *testing.T) {
	mr := miniredis.RunT(t)
	c := WithMetrics(newTestRedisCache(t, mr, Keys{}))
	ctx := context.Background()

	if _, err := c.WriteFallbackPool(ctx, []int64{1}, time.Hour); err != nil {
		t.Fatalf("WriteFallbackPool() error = %v", err)
	}
	recs, err := c.ReadRecommendations(ctx, 1, 1)
	if err != nil {
		t.Fatalf("ReadRecommendations() error = %v", err)
	}
	if recs.Source != types.SourceFallback {
		t.Errorf("Source = %q, want fallback", recs.Source)
	}
}
