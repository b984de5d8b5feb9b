package domain

import (
	"errors"
	"fmt"
)

// RuleViolationError is returned when blocking violations are present. The
// write is aborted and the full violation list is carried to the caller.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return fmt.Sprintf("write blocked by %d rule violation(s)", len(e.Result.Violations))
}

// ConflictError signals that the underlying store rejected a commit because of
// a concurrent conflicting write. The whole validate-resolve-commit cycle may
// be retried.
type ConflictError struct {
	Err error
}

func (e ConflictError) Error() string { return fmt.Sprintf("store conflict: %v", e.Err) }

// Unwrap exposes the underlying store error.
func (e ConflictError) Unwrap() error { return e.Err }

// UnavailableError signals a transient store failure (connection loss,
// timeout, resource exhaustion). Retryable with backoff.
type UnavailableError struct {
	Err error
}

func (e UnavailableError) Error() string { return fmt.Sprintf("store unavailable: %v", e.Err) }

// Unwrap exposes the underlying store error.
func (e UnavailableError) Unwrap() error { return e.Err }

// IsRetryable reports whether the error is a transient store failure that the
// write coordinator may retry. Rule violations are never retryable.
func IsRetryable(err error) bool {
	var conflict ConflictError
	if errors.As(err, &conflict) {
		return true
	}
	var unavailable UnavailableError
	return errors.As(err, &unavailable)
}
