/*
errors.go - Error types for scenario lifecycle and storage

ERROR CATEGORIES:
  1. Not found - scenario, resource, envelope or template missing
  2. State errors - a write refused because of the scenario's status
  3. Publish errors - the atomic phase and the best-effort copy are
     reported separately so a copy failure never reads as a failed publish

USAGE:
  draft, err := mgr.Publish(ctx, id)
  var repErr *scenario.ReplicationError
  if errors.As(err, &repErr) {
      // promotion committed; draft is valid, its resources are incomplete
  }
*/
package scenario

import (
	"errors"
	"fmt"

	"github.com/warp/presence-engine/presence"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrScenarioNotFound = errors.New("scenario not found")
	ErrResourceNotFound = errors.New("resource not found")
	ErrEnvelopeNotFound = errors.New("envelope not found")
	ErrTemplateNotFound = errors.New("template not found")

	// ErrDuplicateID is returned when a caller-chosen id is already taken.
	ErrDuplicateID = errors.New("id already exists")

	// ErrReadOnly is returned by the mutation guard when the target scenario
	// is not a DRAFT at the time of the write.
	ErrReadOnly = errors.New("scenario is read-only")

	// ErrNotDraft is returned when publish is called on a non-DRAFT scenario.
	ErrNotDraft = errors.New("only a draft can be published")

	// ErrAlreadyInitialized is returned by CreateDraft when the owner already
	// has at least one scenario.
	ErrAlreadyInitialized = errors.New("project already initialized")

	// ErrPublishFailed wraps a failure of the atomic header batch. Nothing
	// was written.
	ErrPublishFailed = errors.New("publish failed")

	// ErrReplicationFailed is the sentinel behind ReplicationError.
	ErrReplicationFailed = errors.New("resource replication failed")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ReplicationError reports a resource copy that did not complete. The target
// scenario exists; it holds none of the source's resources.
type ReplicationError struct {
	Source string
	Target string
	Err    error
}

func (e *ReplicationError) Error() string {
	return fmt.Sprintf("copy resources %s -> %s: %v", e.Source, e.Target, e.Err)
}

func (e *ReplicationError) Unwrap() []error {
	return []error{ErrReplicationFailed, e.Err}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrScenarioNotFound) ||
		errors.Is(err, ErrResourceNotFound) ||
		errors.Is(err, ErrEnvelopeNotFound) ||
		errors.Is(err, ErrTemplateNotFound)
}

// IsStateError returns true if the write was refused because of lifecycle
// state rather than bad input.
func IsStateError(err error) bool {
	return errors.Is(err, ErrReadOnly) ||
		errors.Is(err, ErrNotDraft) ||
		errors.Is(err, ErrAlreadyInitialized)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return presence.IsValidationError(err) || errors.Is(err, ErrDuplicateID)
}
