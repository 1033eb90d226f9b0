package cache

import (
	"context"
	"errors"
	"time"

	"github.com/hyperengineering/recommender/internal/metrics"
	"github.com/hyperengineering/recommender/internal/types"
)

// Metered wraps a Cache and records reads, writes and outages.
type Metered struct {
	Cache
}

// WithMetrics instruments c.
func WithMetrics(c Cache) *Metered {
	return &Metered{Cache: c}
}

func recordErr(op string, err error) {
	if errors.Is(err, ErrUnavailable) {
		metrics.RecordCacheError(op)
	}
}

func (m *Metered) WriteUserList(ctx context.Context, userID int64, itemIDs []int64, ttl time.Duration) error {
	err := m.Cache.WriteUserList(ctx, userID, itemIDs, ttl)
	if err != nil {
		recordErr("write_user_list", err)
		return err
	}
	metrics.RecordCacheWrite("user_list")
	return nil
}

func (m *Metered) WriteFallbackPool(ctx context.Context, itemIDs []int64, ttl time.Duration) (int64, error) {
	v, err := m.Cache.WriteFallbackPool(ctx, itemIDs, ttl)
	if err != nil {
		recordErr("write_fallback_pool", err)
		return 0, err
	}
	metrics.RecordCacheWrite("fallback_pool")
	metrics.FallbackPoolVersion.Set(float64(v))
	return v, nil
}

func (m *Metered) ReadRecommendations(ctx context.Context, userID int64, limit int) (*types.Recommendations, error) {
	recs, err := m.Cache.ReadRecommendations(ctx, userID, limit)
	if err != nil {
		recordErr("read_recommendations", err)
		return nil, err
	}
	metrics.RecordCacheRead(string(recs.Source))
	return recs, nil
}
