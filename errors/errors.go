// Package errors provides error handling for keelwatch.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints and details for operator-facing output
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, sql.ErrNoRows) {
//	    // handle not found
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Mark      = crdb.Mark
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// GetStack is an alias for GetReportableStackTrace for convenience.
var GetStack = crdb.GetReportableStackTrace

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Common sentinel errors for use across keelwatch.
// Use these with errors.Is() for type-safe error checking.
// Wrap these with errors.Wrap() to add context while preserving the type.
var (
	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrConflict indicates a resource conflict (e.g., duplicate key)
	ErrConflict = New("resource conflict")

	// ErrInvariantViolation indicates a pipeline contract was broken, such
	// as a removal instruction reaching the applier from a non-reconcile
	// run. These abort the run rather than risk corrupting vessel state.
	ErrInvariantViolation = New("pipeline invariant violation")

	// ErrUnhealthyRun indicates an operation requires a healthy reconcile
	// run and the current run does not qualify
	ErrUnhealthyRun = New("reconcile run is not healthy")

	// ErrSourceLocked indicates another run holds the advisory lock for a
	// source
	ErrSourceLocked = New("source is locked by another run")

	// ErrRetryable marks a transient failure worth retrying (network
	// timeouts, HTTP 5xx/429). Collectors classify before the queue sees
	// the error.
	ErrRetryable = New("retryable failure")
)

// IsNotFound checks if an error is or wraps ErrNotFound
func IsNotFound(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvariantViolation checks if an error is or wraps ErrInvariantViolation
func IsInvariantViolation(err error) bool {
	return err != nil && Is(err, ErrInvariantViolation)
}

// IsSourceLocked checks if an error is or wraps ErrSourceLocked
func IsSourceLocked(err error) bool {
	return err != nil && Is(err, ErrSourceLocked)
}

// IsRetryable checks if an error is or wraps ErrRetryable
func IsRetryable(err error) bool {
	return err != nil && Is(err, ErrRetryable)
}

// MarkRetryable marks an error as retryable while preserving its chain
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return Mark(err, ErrRetryable)
}

// NewNotFound creates a not-found error with a formatted message
func NewNotFound(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// NewInvariantViolation creates an invariant-violation error with a
// formatted message
func NewInvariantViolation(format string, args ...interface{}) error {
	return Wrap(ErrInvariantViolation, Newf(format, args...).Error())
}
