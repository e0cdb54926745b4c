// Package common defines shared constants and sentinel errors used across
// loadgate layers. Callers should use errors.Is to match these values; the
// HTTP layer maps each sentinel to exactly one response status.
package common

import (
	"errors"
	"fmt"
)

var (
	// Input errors.
	ErrValidation = errors.New("validation error")

	// Identity and access errors.
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrInactiveAccount = fmt.Errorf("account is inactive: %w", ErrForbidden)

	// Repository-level errors.
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")

	// Throttling and quota errors.
	ErrRateLimited = errors.New("too many attempts")

	// External executor errors (rejected or unreachable).
	ErrDelegatedFailure = errors.New("executor failure")

	// Startup / wiring errors.
	ErrConfiguration = errors.New("configuration error")

	// Anything unanticipated.
	ErrInternal = errors.New("internal error")

	// Auth errors (invalid, malformed or expired token).
	ErrInvalidToken = fmt.Errorf("invalid token: %w", ErrUnauthenticated)
	ErrTokenExpired = fmt.Errorf("token expired: %w", ErrUnauthenticated)

	// Credential errors.
	ErrInvalidCredentials = fmt.Errorf("invalid username or password: %w", ErrUnauthenticated)
	ErrUsernameTaken      = fmt.Errorf("username already exists: %w", ErrConflict)
)

// ValidationError reports which input field failed policy.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError is a shorthand for &ValidationError{...}.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
