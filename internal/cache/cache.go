// Package cache holds precomputed recommendations: one ranked list per user
// and a shared fallback pool of items for users without a list.
//
// Lists and pools are produced offline and replaced wholesale. Readers see
// either the previous value or the new one, never a partial write.
package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/hyperengineering/recommender/internal/types"
)

var (
	// ErrUnavailable wraps every transport failure of the backing cache.
	// A missing key is never an error.
	ErrUnavailable  = errors.New("recommendation cache unavailable")
	ErrInvalidTTL   = errors.New("ttl must be positive")
	ErrInvalidLimit = errors.New("limit must be positive")
)

// Cache is the recommendation cache contract.
type Cache interface {
	// WriteUserList replaces the user's ranked list. An empty list removes it.
	WriteUserList(ctx context.Context, userID int64, itemIDs []int64, ttl time.Duration) error
	// WriteFallbackPool replaces the shared pool and returns its new version.
	// An empty pool removes it.
	WriteFallbackPool(ctx context.Context, itemIDs []int64, ttl time.Duration) (int64, error)
	// ReadRecommendations returns the first limit items of the user's list,
	// or a random draw of up to limit distinct pool items when the user has
	// no list. Absence of both is reported as SourceNone, not an error.
	ReadRecommendations(ctx context.Context, userID int64, limit int) (*types.Recommendations, error)
	// ReadUserList returns the user's list; limit <= 0 returns all of it.
	ReadUserList(ctx context.Context, userID int64, limit int) ([]int64, error)
	PoolSize(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// DefaultPoolKey names the fallback pool when none is configured.
const DefaultPoolKey = "latest"

// Keys builds cache key names.
type Keys struct {
	Prefix  string
	PoolKey string
}

func (k Keys) poolKey() string {
	if k.PoolKey == "" {
		return DefaultPoolKey
	}
	return k.PoolKey
}

// User is the key of a user's ranked list.
func (k Keys) User(userID int64) string {
	return k.Prefix + "user:" + strconv.FormatInt(userID, 10)
}

// Pool is the key of the fallback pool.
func (k Keys) Pool() string {
	return k.Prefix + k.poolKey()
}

// PoolVersion is the key of the pool's version counter.
func (k Keys) PoolVersion() string {
	return k.Pool() + ":version"
}

// Staging is the key a new pool is assembled under before it is swapped in.
func (k Keys) Staging(id string) string {
	return k.Pool() + ":staging:" + id
}

func validateWrite(ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	return nil
}

func formatIDs(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatInt(id, 10)
	}
	return out
}
