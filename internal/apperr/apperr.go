// Package apperr defines the error kinds shared by the retrieval pipeline so the
// HTTP layer can pick a status code without inspecting error strings.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an error.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation is bad caller input, rejected before any external call.
	KindValidation
	// KindConfiguration means a provider is not configured (missing credentials, unknown backend).
	KindConfiguration
	// KindUnavailable means a provider is configured but could not be reached or returned 5xx.
	KindUnavailable
	// KindRateLimited is a provider 429.
	KindRateLimited
	// KindAuth is a provider rejecting our credentials. Never retried.
	KindAuth
	// KindProvider is any other provider failure.
	KindProvider
	// KindDimensionMismatch means an embedding does not fit the collection.
	KindDimensionMismatch
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConfiguration:
		return "configuration"
	case KindUnavailable:
		return "unavailable"
	case KindRateLimited:
		return "rate_limited"
	case KindAuth:
		return "auth"
	case KindProvider:
		return "provider"
	case KindDimensionMismatch:
		return "dimension_mismatch"
	default:
		return "unknown"
	}
}

// Sentinels wrapped by *Error values.
var (
	ErrNotConfigured       = errors.New("not configured")
	ErrEmptyQuery          = errors.New("query cannot be empty")
	ErrInvalidLimit        = errors.New("limit must be positive")
	ErrInvalidChunkWindow  = errors.New("chunk overlap must be smaller than chunk size")
	ErrDimensionMismatch   = errors.New("vector dimension mismatch")
	ErrSelectionRequired   = errors.New("selected_text is required")
	ErrMalformedText       = errors.New("text is not valid UTF-8")
	ErrCollectionNotExists = errors.New("collection does not exist")
)

// Error carries a Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
	// RetryAfter is the provider's requested delay for rate-limited responses, if any.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind and op.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Validation returns a validation error wrapping err.
func Validation(op string, err error) *Error {
	return New(KindValidation, op, err)
}

// Validationf returns a validation error with a formatted message.
func Validationf(op, format string, args ...any) *Error {
	return New(KindValidation, op, fmt.Errorf(format, args...))
}

// NotConfigured returns a configuration error naming what is missing.
func NotConfigured(op, what string) *Error {
	return New(KindConfiguration, op, fmt.Errorf("%s %w", what, ErrNotConfigured))
}

// DimensionMismatch reports a vector of size got where want was expected.
func DimensionMismatch(op string, got, want int) *Error {
	return New(KindDimensionMismatch, op, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, got, want))
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// RetryAfterOf returns the RetryAfter hint of the first *Error in err's chain.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// IsRetryable reports whether err is a transient provider failure.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimited, KindUnavailable:
		return true
	default:
		return false
	}
}
