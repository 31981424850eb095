/*
errors.go - Error types for the presence engine

ERROR CATEGORIES:
  Every error in this package is a validation error: it is raised before any
  write is attempted and means the caller sent bad input. The resolver and
  aggregator themselves never fail.

USAGE:
  if err := presence.Validate(r); err != nil {
      var vErr *presence.ValidationError
      if errors.As(err, &vErr) {
          // vErr.Field names the offending input
      }
  }
*/
package presence

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidPresence is returned for an override value outside {0, 0.5, 1}.
	ErrInvalidPresence = errors.New("invalid presence value")

	// ErrInvalidDate is returned when a date is not a zero-padded YYYY-MM-DD.
	ErrInvalidDate = errors.New("invalid date")

	// ErrInvalidRange is returned when a start date is after its end date.
	ErrInvalidRange = errors.New("invalid range: start after end")

	// ErrMissingField is returned when a required resource field is empty.
	ErrMissingField = errors.New("missing required field")

	// ErrInvalidField is returned for any other out-of-domain field value.
	ErrInvalidField = errors.New("invalid field")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError names the field that failed and why.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError builds a ValidationError for callers outside this
// package that validate their own inputs.
func NewValidationError(field string, err error, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason, Err: err}
}

func fieldError(field string, err error, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...), Err: err}
}

// IsValidationError returns true if err was produced by input validation.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidPresence) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidField)
}
