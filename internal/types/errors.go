// Package types provides shared types, interfaces, and errors for the application.
package types

import "errors"

// Sentinel errors for consistent error handling across the application.
// These errors can be checked with errors.Is() for type-safe error handling.
var (
	// Browser pool errors
	ErrPoolExhausted     = errors.New("browser pool exhausted: no page slot became available in time")
	ErrPoolClosed        = errors.New("browser pool is closed")
	ErrInstanceSaturated = errors.New("browser instance has no free page capacity")
	ErrInstanceClosed    = errors.New("browser instance is closed")
	ErrBrowserCrashed    = errors.New("browser process crashed")

	// Solve errors
	ErrChallengeTimeout = errors.New("challenge resolution timed out")

	// Request errors
	ErrInvalidRequest  = errors.New("invalid request")
	ErrURLRequired     = errors.New("url is required")
	ErrSiteKeyRequired = errors.New("sitekey is required")

	// Task errors
	ErrTaskNotFound     = errors.New("task not found")
	ErrDispatcherClosed = errors.New("dispatcher is closed")
)

// SolveError provides detailed information about solve failures.
// It implements the error interface and supports error unwrapping.
type SolveError struct {
	Kind    string // Error kind: "timeout", "crashed", "failed"
	URL     string // The target URL being solved
	Message string // Human-readable error message
	Err     error  // Underlying error (for unwrapping)
}

// Error implements the error interface.
func (e *SolveError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *SolveError) Unwrap() error {
	return e.Err
}

// NewChallengeTimeoutError creates an error for a challenge that ran out of time.
func NewChallengeTimeoutError(url string) *SolveError {
	return &SolveError{
		Kind:    "timeout",
		URL:     url,
		Message: "Challenge resolution timed out. No token was produced within the allowed time.",
		Err:     ErrChallengeTimeout,
	}
}

// NewBrowserCrashedError creates an error for a browser that died mid-solve.
func NewBrowserCrashedError(url string, err error) *SolveError {
	return &SolveError{
		Kind:    "crashed",
		URL:     url,
		Message: "Browser process crashed while solving the challenge.",
		Err:     errors.Join(ErrBrowserCrashed, err),
	}
}

// NewSolveFailedError creates an error for a solve that failed for another reason.
func NewSolveFailedError(url string, reason string, err error) *SolveError {
	return &SolveError{
		Kind:    "failed",
		URL:     url,
		Message: "Challenge could not be solved: " + reason,
		Err:     err,
	}
}

// PoolError provides detailed information about browser pool failures.
type PoolError struct {
	Operation string // The operation that failed
	Message   string // Human-readable error message
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *PoolError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *PoolError) Unwrap() error {
	return e.Err
}

// NewPoolAcquireError creates an error for slot acquisition failures.
func NewPoolAcquireError(reason string, err error) *PoolError {
	return &PoolError{
		Operation: "acquire",
		Message:   "Failed to acquire page slot from pool: " + reason,
		Err:       err,
	}
}

// NewPoolSpawnError creates an error for browser instance launch failures.
func NewPoolSpawnError(reason string, err error) *PoolError {
	return &PoolError{
		Operation: "spawn",
		Message:   "Failed to launch browser instance: " + reason,
		Err:       err,
	}
}
