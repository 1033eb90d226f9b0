package cache

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/hyperengineering/recommender/internal/types"
)

// harness is a Cache under test plus a way to move its clock forward.
type harness struct {
	cache   Cache
	advance func(time.Duration)
}

// runContract exercises the behaviour every backend must share.
func runContract(t *testing.T, newHarness func(t *testing.T) harness) {
	t.Run("personalized list returns top of ranking", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		// Given a ranked list of ten items
		ranked := []int64{10, 9, 8, 7, 6, 5, 4, 3, 2, 1}
		if err := h.cache.WriteUserList(ctx, 1, ranked, time.Hour); err != nil {
			t.Fatalf("WriteUserList() error = %v", err)
		}

		// When five are requested
		recs, err := h.cache.ReadRecommendations(ctx, 1, 5)
		if err != nil {
			t.Fatalf("ReadRecommendations() error = %v", err)
		}

		// Then the first five come back in rank order
		if recs.Source != types.SourcePersonalized {
			t.Errorf("Source = %q, want personalized", recs.Source)
		}
		if !reflect.DeepEqual(recs.Items, []int64{10, 9, 8, 7, 6}) {
			t.Errorf("Items = %v, want [10 9 8 7 6]", recs.Items)
		}
	})

	t.Run("limit larger than list returns whole list", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		if err := h.cache.WriteUserList(ctx, 1, []int64{3, 1}, time.Hour); err != nil {
			t.Fatalf("WriteUserList() error = %v", err)
		}
		recs, err := h.cache.ReadRecommendations(ctx, 1, 50)
		if err != nil {
			t.Fatalf("ReadRecommendations() error = %v", err)
		}
		if !reflect.DeepEqual(recs.Items, []int64{3, 1}) {
			t.Errorf("Items = %v, want [3 1]", recs.Items)
		}
	})

	t.Run("replace drops previous list", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		if err := h.cache.WriteUserList(ctx, 1, []int64{1, 2, 3, 4}, time.Hour); err != nil {
			t.Fatalf("first WriteUserList() error = %v", err)
		}
		if err := h.cache.WriteUserList(ctx, 1, []int64{9}, time.Hour); err != nil {
			t.Fatalf("second WriteUserList() error = %v", err)
		}
		got, err := h.cache.ReadUserList(ctx, 1, 0)
		if err != nil {
			t.Fatalf("ReadUserList() error = %v", err)
		}
		if !reflect.DeepEqual(got, []int64{9}) {
			t.Errorf("ReadUserList() = %v, want [9]", got)
		}
	})

	t.Run("empty list removes entry", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		if err := h.cache.WriteUserList(ctx, 1, []int64{1}, time.Hour); err != nil {
			t.Fatalf("WriteUserList() error = %v", err)
		}
		if err := h.cache.WriteUserList(ctx, 1, nil, time.Hour); err != nil {
			t.Fatalf("WriteUserList(nil) error = %v", err)
		}
		recs, err := h.cache.ReadRecommendations(ctx, 1, 5)
		if err != nil {
			t.Fatalf("ReadRecommendations() error = %v", err)
		}
		if recs.Source != types.SourceNone {
			t.Errorf("Source = %q, want none", recs.Source)
		}
	})

	t.Run("nothing cached yields none without error", func(t *testing.T) {
		h := newHarness(t)

		recs, err := h.cache.ReadRecommendations(context.Background(), 77, 10)
		if err != nil {
			t.Fatalf("ReadRecommendations() error = %v", err)
		}
		if recs.Source != types.SourceNone || len(recs.Items) != 0 || recs.Items == nil {
			t.Errorf("ReadRecommendations() = %+v, want empty non-nil items with source none", recs)
		}
	})

	t.Run("expired list falls back to pool", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		// Given a short-lived list and a long-lived pool
		if err := h.cache.WriteUserList(ctx, 1, []int64{1, 2}, time.Minute); err != nil {
			t.Fatalf("WriteUserList() error = %v", err)
		}
		if _, err := h.cache.WriteFallbackPool(ctx, []int64{100, 200}, time.Hour); err != nil {
			t.Fatalf("WriteFallbackPool() error = %v", err)
		}

		// When the list's TTL passes
		h.advance(2 * time.Minute)

		// Then the pool answers
		recs, err := h.cache.ReadRecommendations(ctx, 1, 10)
		if err != nil {
			t.Fatalf("ReadRecommendations() error = %v", err)
		}
		if recs.Source != types.SourceFallback {
			t.Fatalf("Source = %q, want fallback", recs.Source)
		}
		got := append([]int64(nil), recs.Items...)
		sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
		if !reflect.DeepEqual(got, []int64{100, 200}) {
			t.Errorf("Items = %v, want 100 and 200", recs.Items)
		}
	})

	t.Run("fallback draw is distinct and bounded", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		pool := make([]int64, 50)
		for i := range pool {
			pool[i] = int64(i + 1)
		}
		if _, err := h.cache.WriteFallbackPool(ctx, pool, time.Hour); err != nil {
			t.Fatalf("WriteFallbackPool() error = %v", err)
		}
		size, err := h.cache.PoolSize(ctx)
		if err != nil {
			t.Fatalf("PoolSize() error = %v", err)
		}
		if size != 50 {
			t.Errorf("PoolSize() = %d, want 50", size)
		}

		for i := 0; i < 20; i++ {
			recs, err := h.cache.ReadRecommendations(ctx, 5, 10)
			if err != nil {
				t.Fatalf("ReadRecommendations() error = %v", err)
			}
			if len(recs.Items) != 10 {
				t.Fatalf("len(Items) = %d, want 10", len(recs.Items))
			}
			seen := make(map[int64]bool)
			for _, id := range recs.Items {
				if id < 1 || id > 50 {
					t.Fatalf("item %d is not a pool member", id)
				}
				if seen[id] {
					t.Fatalf("item %d drawn twice in %v", id, recs.Items)
				}
				seen[id] = true
			}
		}
	})

	t.Run("pool versions increase and empty pool clears", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		v1, err := h.cache.WriteFallbackPool(ctx, []int64{1}, time.Hour)
		if err != nil {
			t.Fatalf("WriteFallbackPool() error = %v", err)
		}
		v2, err := h.cache.WriteFallbackPool(ctx, nil, time.Hour)
		if err != nil {
			t.Fatalf("WriteFallbackPool(nil) error = %v", err)
		}
		if v2 <= v1 {
			t.Errorf("versions %d then %d, want increasing", v1, v2)
		}
		size, err := h.cache.PoolSize(ctx)
		if err != nil {
			t.Fatalf("PoolSize() error = %v", err)
		}
		if size != 0 {
			t.Errorf("PoolSize() = %d, want 0", size)
		}
	})

	t.Run("readers never observe a missing pool during replacement", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		if _, err := h.cache.WriteFallbackPool(ctx, []int64{1, 2, 3}, time.Hour); err != nil {
			t.Fatalf("WriteFallbackPool() error = %v", err)
		}

		var wg sync.WaitGroup
		stop := make(chan struct{})
		wg.Add(1)
		go func() {
			defer wg.Done()
			pools := [][]int64{{4, 5, 6}, {7, 8}, {1, 2, 3}}
			for i := 0; i < 30; i++ {
				if _, err := h.cache.WriteFallbackPool(ctx, pools[i%len(pools)], time.Hour); err != nil {
					t.Errorf("WriteFallbackPool() error = %v", err)
					break
				}
			}
			close(stop)
		}()

		for r := 0; r < 4; r++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-stop:
						return
					default:
					}
					recs, err := h.cache.ReadRecommendations(ctx, 1, 3)
					if err != nil {
						t.Errorf("ReadRecommendations() error = %v", err)
						return
					}
					if recs.Source != types.SourceFallback || len(recs.Items) == 0 {
						t.Errorf("observed %+v during pool replacement", recs)
						return
					}
				}
			}()
		}
		wg.Wait()
	})

	t.Run("rejects invalid arguments", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		if err := h.cache.WriteUserList(ctx, 1, []int64{1}, 0); !errors.Is(err, ErrInvalidTTL) {
			t.Errorf("WriteUserList(ttl=0) error = %v, want ErrInvalidTTL", err)
		}
		if _, err := h.cache.WriteFallbackPool(ctx, []int64{1}, -time.Second); !errors.Is(err, ErrInvalidTTL) {
			t.Errorf("WriteFallbackPool(ttl<0) error = %v, want ErrInvalidTTL", err)
		}
		if _, err := h.cache.ReadRecommendations(ctx, 1, 0); !errors.Is(err, ErrInvalidLimit) {
			t.Errorf("ReadRecommendations(limit=0) error = %v, want ErrInvalidLimit", err)
		}
	})
}
