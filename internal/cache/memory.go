package cache

import (
	"context"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/hyperengineering/recommender/internal/types"
)

// MemoryCache is an in-process Cache for development and tests. Data is lost
// when the process exits.
type MemoryCache struct {
	mu      sync.RWMutex
	lists   map[int64]*memoryEntry
	pool    *memoryEntry
	version int64
	now     func() time.Time
}

type memoryEntry struct {
	items   []int64
	expires time.Time
}

func (e *memoryEntry) live(now time.Time) bool {
	return e != nil && now.Before(e.expires)
}

var _ Cache = (*MemoryCache)(nil)

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCache) {
		c.now = now
	}
}

func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	c := &MemoryCache{
		lists: make(map[int64]*memoryEntry),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *MemoryCache) WriteUserList(_ context.Context, userID int64, itemIDs []int64, ttl time.Duration) error {
	if err := validateWrite(ttl); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(itemIDs) == 0 {
		delete(c.lists, userID)
		return nil
	}
	c.lists[userID] = &memoryEntry{items: slices.Clone(itemIDs), expires: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) WriteFallbackPool(_ context.Context, itemIDs []int64, ttl time.Duration) (int64, error) {
	if err := validateWrite(ttl); err != nil {
		return 0, err
	}

	var next *memoryEntry
	if len(itemIDs) > 0 {
		// Set semantics: duplicates collapse.
		items := slices.Clone(itemIDs)
		slices.Sort(items)
		next = &memoryEntry{items: slices.Compact(items), expires: c.now().Add(ttl)}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.pool = next
	c.version++
	return c.version, nil
}

func (c *MemoryCache) ReadRecommendations(_ context.Context, userID int64, limit int) (*types.Recommendations, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	c.mu.RLock()
	now := c.now()
	list := c.lists[userID]
	pool := c.pool
	c.mu.RUnlock()

	// Entries are never mutated after they are stored, so they can be read
	// outside the lock.
	if list.live(now) {
		n := min(limit, len(list.items))
		return &types.Recommendations{Items: slices.Clone(list.items[:n]), Source: types.SourcePersonalized}, nil
	}
	if pool.live(now) {
		return &types.Recommendations{Items: sample(pool.items, limit), Source: types.SourceFallback}, nil
	}
	return &types.Recommendations{Items: []int64{}, Source: types.SourceNone}, nil
}

// sample draws up to n distinct members without replacement.
func sample(items []int64, n int) []int64 {
	if n >= len(items) {
		out := slices.Clone(items)
		rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		return out
	}
	out := make([]int64, n)
	for i, idx := range rand.Perm(len(items))[:n] {
		out[i] = items[idx]
	}
	return out
}

func (c *MemoryCache) ReadUserList(_ context.Context, userID int64, limit int) ([]int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	list := c.lists[userID]
	if !list.live(c.now()) {
		return []int64{}, nil
	}
	n := len(list.items)
	if limit > 0 {
		n = min(limit, n)
	}
	return slices.Clone(list.items[:n]), nil
}

func (c *MemoryCache) PoolSize(context.Context) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.pool.live(c.now()) {
		return 0, nil
	}
	return int64(len(c.pool.items)), nil
}

func (c *MemoryCache) Ping(context.Context) error { return nil }

func (c *MemoryCache) Close() error { return nil }
