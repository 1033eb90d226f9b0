package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/recommender/internal/cache"
	"github.com/hyperengineering/recommender/internal/store"
	"github.com/hyperengineering/recommender/internal/validation"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

const problemBase = "https://recommender.hyperengineering.dev/errors/"

// problemTypes maps HTTP status codes to RFC 7807 type URIs and titles.
var problemTypes = map[int]struct {
	typeURI string
	title   string
}{
	http.StatusBadRequest: {
		typeURI: problemBase + "bad-request",
		title:   "Bad Request",
	},
	http.StatusNotFound: {
		typeURI: problemBase + "not-found",
		title:   "Not Found",
	},
	http.StatusConflict: {
		typeURI: problemBase + "conflict",
		title:   "Conflict",
	},
	http.StatusRequestEntityTooLarge: {
		typeURI: problemBase + "payload-too-large",
		title:   "Payload Too Large",
	},
	http.StatusUnprocessableEntity: {
		typeURI: problemBase + "validation-error",
		title:   "Validation Error",
	},
	http.StatusTooManyRequests: {
		typeURI: problemBase + "rate-limit",
		title:   "Too Many Requests",
	},
	http.StatusInternalServerError: {
		typeURI: problemBase + "internal-error",
		title:   "Internal Server Error",
	},
	http.StatusServiceUnavailable: {
		typeURI: problemBase + "service-unavailable",
		title:   "Service Unavailable",
	},
}

func problemFor(r *http.Request, status int, detail string) Problem {
	pt, ok := problemTypes[status]
	if !ok {
		pt.typeURI = problemBase + "unknown"
		pt.title = http.StatusText(status)
	}
	return Problem{
		Type:     pt.typeURI,
		Title:    pt.title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}
}

func writeProblemBody(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	writeProblemBody(w, status, problemFor(r, status, detail))
}

// ProblemWithErrors extends Problem with validation error details.
type ProblemWithErrors struct {
	Problem
	Errors []validation.ValidationError `json:"errors,omitempty"`
}

// WriteProblemWithErrors writes a 422 Problem Details response with field errors.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, detail string, errs []validation.ValidationError) {
	writeProblemBody(w, http.StatusUnprocessableEntity, ProblemWithErrors{
		Problem: problemFor(r, http.StatusUnprocessableEntity, detail),
		Errors:  errs,
	})
}

// MapStoreError converts store and cache errors to Problem Details responses.
func MapStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, "Resource not found")
	case errors.Is(err, store.ErrIntegrityViolation):
		WriteProblem(w, r, http.StatusConflict, "Request conflicts with existing data or references an unknown feature")
	case errors.Is(err, store.ErrInvalidNamespace),
		errors.Is(err, store.ErrInvalidEmbedding),
		errors.Is(err, store.ErrInvalidLimit),
		errors.Is(err, cache.ErrInvalidLimit):
		WriteProblem(w, r, http.StatusBadRequest, "Invalid request")
	case errors.Is(err, store.ErrUnavailable):
		slog.Warn("store unavailable", "path", r.URL.Path, "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Database temporarily unavailable")
	case errors.Is(err, cache.ErrUnavailable):
		slog.Warn("cache unavailable", "path", r.URL.Path, "error", err)
		WriteProblem(w, r, http.StatusServiceUnavailable, "Recommendation cache unavailable")
	default:
		slog.Error("request failed", "path", r.URL.Path, "request_id", GetRequestID(r.Context()), "error", err)
		// Never expose internal error details to client
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
