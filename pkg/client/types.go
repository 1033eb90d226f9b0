package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Namespace selects users or items.
type Namespace string

const (
	Users Namespace = "users"
	Items Namespace = "items"
)

// Feature is a catalog entry as returned inside a profile.
type Feature struct {
	ID          int64     `json:"id"`
	Description *string   `json:"description"`
	Embedding   []float64 `json:"embedding"`
}

// Profile is an entity with its summed embedding. Embedding is nil when the
// entity has no features.
type Profile struct {
	ID         int64     `json:"id"`
	Embedding  []float64 `json:"embedding"`
	FeatureIDs []int64   `json:"feature_ids"`
	Features   []Feature `json:"features"`
}

// Recommendations is a ranked (personalized) or unranked (fallback) list.
type Recommendations struct {
	Items  []int64
	Source string
}

// Health is the server health report.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Cache   string `json:"cache"`
	Stats   struct {
		Users        int64 `json:"users"`
		Items        int64 `json:"items"`
		UserFeatures int64 `json:"user_features"`
		ItemFeatures int64 `json:"item_features"`
		Interactions int64 `json:"interactions"`
	} `json:"stats"`
}

type itemRef struct {
	ID int64 `json:"id"`
}

type itemList struct {
	Data   []itemRef `json:"data"`
	Source string    `json:"source"`
}

func (l itemList) ids() []int64 {
	ids := make([]int64, len(l.Data))
	for i, r := range l.Data {
		ids[i] = r.ID
	}
	return ids
}

// Errors matched by APIError.Is.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrInvalid     = errors.New("invalid request")
	ErrRateLimited = errors.New("rate limited")
	ErrUnavailable = errors.New("service unavailable")
)

// FieldError is a single validation failure reported by the server.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError is a problem+json response from the server.
type APIError struct {
	StatusCode int          `json:"status"`
	Type       string       `json:"type"`
	Title      string       `json:"title"`
	Detail     string       `json:"detail"`
	Errors     []FieldError `json:"errors,omitempty"`
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("recommender: %d %s: %s", e.StatusCode, e.Title, e.Detail)
	}
	return fmt.Sprintf("recommender: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Is lets callers use errors.Is with the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	case ErrInvalid:
		return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrUnavailable:
		return e.StatusCode == http.StatusServiceUnavailable
	}
	return false
}
