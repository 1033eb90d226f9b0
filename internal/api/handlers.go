package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hyperengineering/recommender/internal/cache"
	"github.com/hyperengineering/recommender/internal/store"
	"github.com/hyperengineering/recommender/internal/types"
	"github.com/hyperengineering/recommender/internal/validation"
)

// maxBodyBytes bounds request bodies; the largest is an entity upsert.
const maxBodyBytes = 1 << 20

// Limit is the default and maximum page size of a list endpoint.
type Limit struct {
	Default int
	Max     int
}

// Limits configures the list endpoints.
type Limits struct {
	History         Limit
	Recommendations Limit
}

// DefaultLimits returns 10 items per page, at most 100.
func DefaultLimits() Limits {
	return Limits{
		History:         Limit{Default: 10, Max: 100},
		Recommendations: Limit{Default: 10, Max: 100},
	}
}

// Handler implements the API handlers
type Handler struct {
	store   store.Store
	cache   cache.Cache
	version string
	limits  Limits
}

// NewHandler creates a new Handler over the relational store and the recommendation cache
func NewHandler(s store.Store, c cache.Cache, version string, limits Limits) *Handler {
	return &Handler{
		store:   s,
		cache:   c,
		version: version,
		limits:  limits,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// pathID parses a positive id from a chi URL parameter, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, verr := validation.ParseID(param, chi.URLParam(r, param))
	if verr != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("%s %s", verr.Field, verr.Message))
		return 0, false
	}
	return id, true
}

func queryLimit(w http.ResponseWriter, r *http.Request, l Limit) (int, bool) {
	n, verr := validation.ParseLimit("limit", r.URL.Query().Get("limit"), l.Default, l.Max)
	if verr != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("%s %s", verr.Field, verr.Message))
		return 0, false
	}
	return n, true
}

// Health returns store row counts and cache reachability.
// An unreachable cache degrades the service but does not fail the check.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.GetStats(r.Context())
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	resp := types.HealthResponse{
		Status:  "healthy",
		Version: h.version,
		Cache:   "ok",
		Stats:   *stats,
	}
	if err := h.cache.Ping(r.Context()); err != nil {
		slog.Warn("cache ping failed", "error", err)
		resp.Status = "degraded"
		resp.Cache = "unavailable"
	}

	writeJSON(w, http.StatusOK, resp)
}

// PutEntity handles PUT /api/v1/{users|items}/{id}
func (h *Handler) PutEntity(ns types.Namespace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		var req types.EntityRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				WriteProblem(w, r, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body exceeds %d bytes", maxBodyBytes))
				return
			}
			WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
			return
		}

		if verr := validation.ValidateFeatureIDs("feature_ids", req.FeatureIDs); verr != nil {
			WriteProblemWithErrors(w, r, "Request contains invalid fields", []validation.ValidationError{*verr})
			return
		}

		if err := h.store.UpsertEntityFeatures(r.Context(), ns, id, req.FeatureIDs); err != nil {
			MapStoreError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

// GetEntity handles GET /api/v1/{users|items}/{id}
func (h *Handler) GetEntity(ns types.Namespace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		profile, err := h.store.FetchEntityProfile(r.Context(), ns, id)
		if err != nil {
			MapStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, types.ProfileResponse{Data: *profile})
	}
}

// DeleteEntity handles DELETE /api/v1/{users|items}/{id}
func (h *Handler) DeleteEntity(ns types.Namespace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		if err := h.store.DeleteEntity(r.Context(), ns, id); err != nil {
			MapStoreError(w, r, err)
			return
		}
		slog.Info("entity deleted", "namespace", ns, "id", id)
		w.WriteHeader(http.StatusNoContent)
	}
}

// Interact handles POST /api/v1/users/{id}/interact/{item_id}
func (h *Handler) Interact(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	itemID, ok := pathID(w, r, "item_id")
	if !ok {
		return
	}

	if err := h.store.RecordInteraction(r.Context(), userID, itemID); err != nil {
		MapStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// History handles GET /api/v1/users/{id}/history
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	limit, ok := queryLimit(w, r, h.limits.History)
	if !ok {
		return
	}

	history, err := h.store.FetchHistory(r.Context(), userID, limit)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	ids := make([]int64, len(history))
	for i, e := range history {
		ids[i] = e.ItemID
	}
	writeJSON(w, http.StatusOK, types.ItemListResponse{Data: types.ItemRefs(ids)})
}

// Recommendations handles GET /api/v1/users/{id}/recommendations
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	limit, ok := queryLimit(w, r, h.limits.Recommendations)
	if !ok {
		return
	}

	exists, err := h.store.EntityExists(r.Context(), types.NamespaceUser, userID)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	if !exists {
		WriteProblem(w, r, http.StatusNotFound, fmt.Sprintf("User %d not found", userID))
		return
	}

	recs, err := h.cache.ReadRecommendations(r.Context(), userID, limit)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.ItemListResponse{
		Data:   types.ItemRefs(recs.Items),
		Source: recs.Source,
	})
}
