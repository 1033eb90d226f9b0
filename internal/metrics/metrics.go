// Package metrics exposes Prometheus instrumentation for the relational
// store, the recommendation cache and the HTTP serving layer.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Store metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommender_store_operation_duration_seconds",
			Help:    "Duration of relational store operations in seconds",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_store_errors_total",
			Help: "Total number of failed store operations by error kind",
		},
		[]string{"operation", "kind"}, // kind: not_found, integrity, unavailable, internal
	)

	// Recommendation cache metrics
	CacheReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_cache_reads_total",
			Help: "Recommendation reads by the tier that answered them",
		},
		[]string{"source"}, // personalized, fallback, none
	)

	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_cache_writes_total",
			Help: "Cache replace operations",
		},
		[]string{"kind"}, // user_list, fallback_pool
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_cache_errors_total",
			Help: "Cache operations that failed because the cache was unavailable",
		},
		[]string{"operation"},
	)

	FallbackPoolVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recommender_fallback_pool_version",
			Help: "Version of the most recent fallback pool written by this process",
		},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "recommender_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "route"},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"route"},
	)
)

// RecordStoreOperation records one store call. kind is empty on success.
func RecordStoreOperation(operation string, duration time.Duration, kind string) {
	StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if kind != "" {
		StoreErrors.WithLabelValues(operation, kind).Inc()
	}
}

// RecordCacheRead records which tier answered a recommendation read.
func RecordCacheRead(source string) {
	CacheReads.WithLabelValues(source).Inc()
}

// RecordCacheWrite records a successful cache replace.
func RecordCacheWrite(kind string) {
	CacheWrites.WithLabelValues(kind).Inc()
}

// RecordCacheError records a cache call that failed with an unavailable cache.
func RecordCacheError(operation string) {
	CacheErrors.WithLabelValues(operation).Inc()
}

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, route string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
