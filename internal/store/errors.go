package store

import (
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound           = errors.New("entity not found")
	ErrIntegrityViolation = errors.New("integrity violation")
	ErrUnavailable        = errors.New("store unavailable")
	ErrInvalidNamespace   = errors.New("invalid namespace")
	ErrInvalidEmbedding   = errors.New("invalid embedding")
	ErrInvalidLimit       = errors.New("limit must be positive")
)

// classify maps SQLite result codes onto the package's sentinel errors,
// keeping the driver error in the chain.
func classify(err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_CONSTRAINT:
		return fmt.Errorf("%w: %w", ErrIntegrityViolation, err)
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CANTOPEN:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return err
}

// errorKind is the metrics label for a failed operation.
func errorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrIntegrityViolation):
		return "integrity"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInvalidNamespace), errors.Is(err, ErrInvalidEmbedding), errors.Is(err, ErrInvalidLimit):
		return "invalid"
	default:
		return "internal"
	}
}
