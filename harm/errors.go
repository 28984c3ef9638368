/*
errors.go - Centralized error types for the harm engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Stores and the tracker wrap these with operation context.

ERROR CATEGORIES:
  1. Input errors - invalid quantity, half-life, date range
  2. Lookup fallbacks - unknown category (recovered, never surfaced)
  3. Store errors - persistence unavailable or record missing
  4. Consistency - event stored but snapshot not refreshed

USAGE:
  if errors.Is(err, harm.ErrStoreUnavailable) {
      // read path: render the zero breakdown; write path: retry
  }

SEE ALSO:
  - rates.go: UnknownCategoryError
  - calculator.go: InvalidQuantityError
  - tracker/tracker.go: StaleSnapshotError producers
*/
package harm

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidQuantity is returned when a substance quantity is not positive.
	ErrInvalidQuantity = errors.New("invalid quantity: must be positive")

	// ErrInvalidHalfLife is returned when a half-life is zero or negative.
	ErrInvalidHalfLife = errors.New("invalid half-life: must be positive")

	// ErrInvalidInterval is returned for a negative elapsed time.
	ErrInvalidInterval = errors.New("invalid interval: elapsed time is negative")

	// ErrUnknownCategory marks a rate lookup that fell back to defaults.
	// Public lookups recover from it; it only shows up in Resolve results.
	ErrUnknownCategory = errors.New("unknown substance category")

	// ErrInvalidRange is returned when a replay range is reversed or too long.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrStoreUnavailable is returned when persistence cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound is returned when a referenced event or break doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidIntervention is returned for a negative magnitude or a quality
	// rating outside 1-10.
	ErrInvalidIntervention = errors.New("invalid intervention")

	// ErrInvalidTransition is returned for break status changes that aren't allowed.
	ErrInvalidTransition = errors.New("invalid break status transition")

	// ErrSnapshotStale marks a write whose follow-up recompute failed.
	ErrSnapshotStale = errors.New("snapshot not refreshed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidQuantityError reports the rejected quantity.
type InvalidQuantityError struct {
	Quantity float64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid quantity %v: must be positive", e.Quantity)
}

func (e *InvalidQuantityError) Unwrap() error { return ErrInvalidQuantity }

// UnknownCategoryError reports which lookup fell back and to what.
type UnknownCategoryError struct {
	Category Category
	Subtype  string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown substance category %q (subtype %q): using defaults", e.Category, e.Subtype)
}

func (e *UnknownCategoryError) Unwrap() error { return ErrUnknownCategory }

// StoreError wraps a persistence failure with the operation that failed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrStoreUnavailable, e.Err)
}

func (e *StoreError) Unwrap() []error { return []error{ErrStoreUnavailable, e.Err} }

// NewStoreError wraps err; nil stays nil.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// StaleSnapshotError is returned by mutations whose event write succeeded but
// whose snapshot recompute did not. The event is NOT rolled back.
type StaleSnapshotError struct {
	UserID UserID
	Err    error
}

func (e *StaleSnapshotError) Error() string {
	return fmt.Sprintf("event stored for %s, %v: %v", e.UserID, ErrSnapshotStale, e.Err)
}

func (e *StaleSnapshotError) Unwrap() []error { return []error{ErrSnapshotStale, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidHalfLife) ||
		errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrInvalidIntervention) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrSnapshotStale)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
