package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperengineering/recommender/internal/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler, deletes *DeleteRateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)

		for _, ns := range []types.Namespace{types.NamespaceUser, types.NamespaceItem} {
			path := "/" + string(ns) + "s/{id}"
			r.Put(path, h.PutEntity(ns))
			r.Get(path, h.GetEntity(ns))
			// Deletes cascade to descriptions and interactions
			r.With(deletes.Middleware).Delete(path, h.DeleteEntity(ns))
		}

		r.Post("/users/{id}/interact/{item_id}", h.Interact)
		r.Get("/users/{id}/history", h.History)
		r.Get("/users/{id}/recommendations", h.Recommendations)
	})

	return r
}
