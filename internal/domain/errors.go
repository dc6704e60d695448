package domain

import (
	"errors"
	"fmt"
)

// Domain-specific errors for better error handling and user feedback
var (
	// ErrURLNotFound is returned when a short code doesn't exist
	ErrURLNotFound = errors.New("URL not found")

	// ErrURLExpired is returned when accessing an expired URL
	ErrURLExpired = errors.New("URL has expired")

	// ErrInvalidURL is returned when the provided URL is invalid
	ErrInvalidURL = errors.New("invalid URL format")

	// ErrInvalidAlias is returned when a custom alias fails normalization
	ErrInvalidAlias = errors.New("invalid custom alias")

	// ErrAliasTaken is returned when a custom alias is already in use
	ErrAliasTaken = errors.New("alias already exists")

	// ErrUserNotFound is returned when an account lookup misses
	ErrUserNotFound = errors.New("user not found")

	// ErrUnauthenticated is returned when a protected operation is
	// attempted without a valid credential
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden is returned when the caller is neither the owner
	// nor an admin
	ErrForbidden = errors.New("operation not permitted")

	// ErrInsufficientTier is returned when the caller's tier is below
	// the required one
	ErrInsufficientTier = errors.New("insufficient account tier")

	// ErrGenerationExhausted is returned when the allocator cannot mint
	// a unique code within the attempt budget
	ErrGenerationExhausted = errors.New("short code generation exhausted")

	// ErrRateLimitExceeded is returned when rate limit is hit
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrCacheUnavailable is returned when cache operations fail
	ErrCacheUnavailable = errors.New("cache temporarily unavailable")
)

// AliasErrorKind classifies why an alias failed normalization
type AliasErrorKind string

const (
	AliasBadChars AliasErrorKind = "bad_chars"
	AliasTooShort AliasErrorKind = "too_short"
	AliasTooLong  AliasErrorKind = "too_long"
	AliasReserved AliasErrorKind = "reserved"
)

// InvalidAliasError carries the rejection kind alongside the offending
// alias. errors.Is matches it against ErrInvalidAlias.
type InvalidAliasError struct {
	Alias string
	Kind  AliasErrorKind
}

// Error implements the error interface
func (e *InvalidAliasError) Error() string {
	return fmt.Sprintf("invalid alias %q: %s", e.Alias, e.Kind)
}

// Is lets errors.Is treat any InvalidAliasError as ErrInvalidAlias
func (e *InvalidAliasError) Is(target error) bool {
	return target == ErrInvalidAlias
}

// NewInvalidAliasError creates a kinded alias rejection
func NewInvalidAliasError(alias string, kind AliasErrorKind) *InvalidAliasError {
	return &InvalidAliasError{Alias: alias, Kind: kind}
}

// AppError wraps errors with additional context for better debugging
type AppError struct {
	Err        error  // Original error
	Message    string // User-friendly message
	StatusCode int    // HTTP status code
	Internal   bool   // Whether to log as internal error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

// Unwrap returns the wrapped error for errors.Is and errors.As
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error with context
func NewAppError(err error, message string, statusCode int, internal bool) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		StatusCode: statusCode,
		Internal:   internal,
	}
}

// NewNotFoundError creates a 404 error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Err:        ErrURLNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: 404,
		Internal:   false,
	}
}

// NewValidationError creates a 400 validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Err:        ErrInvalidURL,
		Message:    message,
		StatusCode: 400,
		Internal:   false,
	}
}

// NewInternalError creates a 500 internal server error
func NewInternalError(err error) *AppError {
	return &AppError{
		Err:        err,
		Message:    "Internal server error occurred",
		StatusCode: 500,
		Internal:   true, // Log this error
	}
}
