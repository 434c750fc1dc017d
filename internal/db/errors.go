package db

import (
	"errors"
	"fmt"
)

var (
	// ErrNoResults is returned when a query returns no results.
	ErrNoResults = errors.New("no results found")

	// ErrDatabaseConnection is returned for database connection issues.
	ErrDatabaseConnection = errors.New("database connection error")
)

// ErrorWithOperation wraps an error with operation context.
func ErrorWithOperation(err error, operation string) error {
	if err == nil {
		return fmt.Errorf("%s: <nil>", operation)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

// ConnectionError wraps connection errors with the database type.
func ConnectionError(err error, dbType string) error {
	return fmt.Errorf("failed to connect to %s database: %w", dbType, err)
}

// ValidationError returns a structured validation error.
func ValidationError(what string, reason string) error {
	return fmt.Errorf("validation error for %s: %s", what, reason)
}

// IsNoResults checks if the error is a "no results" error.
func IsNoResults(err error) bool {
	return errors.Is(err, ErrNoResults)
}
