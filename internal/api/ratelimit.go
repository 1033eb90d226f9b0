package api

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/hyperengineering/recommender/internal/metrics"
	"golang.org/x/time/rate"
)

// DeleteRateLimiter is a token bucket shared by all destructive routes.
type DeleteRateLimiter struct {
	limiter *rate.Limiter
	refill  time.Duration
}

// NewDeleteRateLimiter allows burst requests at once, then one per refill.
func NewDeleteRateLimiter(burst int, refill time.Duration) *DeleteRateLimiter {
	return &DeleteRateLimiter{
		limiter: rate.NewLimiter(rate.Every(refill), burst),
		refill:  refill,
	}
}

// Middleware rejects requests with 429 once the bucket is empty.
func (l *DeleteRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.limiter.Allow() {
			metrics.APIRateLimitHits.WithLabelValues(routePattern(r)).Inc()
			retry := int(math.Ceil(l.refill.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
			WriteProblem(w, r, http.StatusTooManyRequests, "Delete rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
