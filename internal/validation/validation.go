package validation

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hyperengineering/recommender/internal/types"
)

const (
	// MaxFeatureIDs bounds a single entity upsert.
	MaxFeatureIDs = 1000
	// MaxDescriptionLength bounds a feature description in runes.
	MaxDescriptionLength = 1000
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// ParseID parses a positive integer identifier from a path segment.
func ParseID(field, raw string) (int64, *ValidationError) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &ValidationError{
			Field:   field,
			Message: "must be a positive integer",
		}
	}
	return id, nil
}

// ParseLimit parses an optional page size. An empty value yields def.
func ParseLimit(field, raw string, def, max int) (int, *ValidationError) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > max {
		return 0, &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be an integer between 1 and %d", max),
		}
	}
	return n, nil
}

// ValidateFeatureIDs checks the feature list of an entity upsert.
// An empty list is allowed and only ensures the entity exists.
func ValidateFeatureIDs(field string, ids []int64) *ValidationError {
	if len(ids) > MaxFeatureIDs {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must contain at most %d ids", MaxFeatureIDs),
		}
	}
	for i, id := range ids {
		if id <= 0 {
			return &ValidationError{
				Field:   fmt.Sprintf("%s[%d]", field, i),
				Message: "must be a positive integer",
			}
		}
	}
	return nil
}

// ValidateFeature checks a catalog entry before it is stored.
func ValidateFeature(field string, f types.Feature) []ValidationError {
	var c Collector
	if f.ID <= 0 {
		c.Add(&ValidationError{Field: field + ".id", Message: "must be a positive integer"})
	}
	if len(f.Embedding) == 0 {
		c.Add(&ValidationError{Field: field + ".embedding", Message: "must not be empty"})
	}
	for i, x := range f.Embedding {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			c.Add(&ValidationError{Field: fmt.Sprintf("%s.embedding[%d]", field, i), Message: "must be a finite number"})
			break
		}
	}
	if f.Description != nil {
		name := field + ".description"
		c.Add(ValidateUTF8(name, *f.Description))
		c.Add(ValidateNoNullBytes(name, *f.Description))
		c.Add(ValidateMaxLength(name, *f.Description, MaxDescriptionLength))
	}
	return c.Errors()
}

// ValidateUTF8 returns an error if the value is not valid UTF-8.
func ValidateUTF8(field, value string) *ValidationError {
	if !utf8.ValidString(value) {
		return &ValidationError{
			Field:   field,
			Message: "must be valid UTF-8",
		}
	}
	return nil
}

// ValidateNoNullBytes returns an error if the value contains null bytes.
func ValidateNoNullBytes(field, value string) *ValidationError {
	if strings.Contains(value, "\x00") {
		return &ValidationError{
			Field:   field,
			Message: "must not contain null bytes",
		}
	}
	return nil
}

// ValidateMaxLength returns an error if the value exceeds max runes.
func ValidateMaxLength(field, value string, max int) *ValidationError {
	if utf8.RuneCountInString(value) > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", max),
		}
	}
	return nil
}

// ValidateEnum returns an error if the value is not in the allowed list.
func ValidateEnum(field, value string, allowed []string) *ValidationError {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}
