/*
errors.go - Centralized error types for the paluwagan engine

PURPOSE:
  All expected business-rule violations are returned as errors from this
  file, never as panics. The API layer classifies them into HTTP statuses;
  callers use errors.Is / errors.As against the sentinels and structured
  types here.

TAXONOMY:
  1. Authentication - no actor identity at all
  2. Authorization  - actor lacks the required role for the action
  3. State          - entity not in the required state (includes the
                      conditional-update conflict from concurrent callers)
  4. Validation     - malformed input
  5. Limit          - membership-limit rejection, with the numbers attached
  6. Not found      - missing entity
  7. Persistence    - store failure, wrapped at the operation boundary

SEE ALSO:
  - limits.go: LimitError carries the full LimitDecision
  - api/handlers.go: HTTP status mapping
*/
package paluwagan

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotAuthenticated is returned when no actor identity is available.
	ErrNotAuthenticated = errors.New("no actor identity")

	// ErrNotAuthorized is returned when the actor lacks the role an action
	// requires. Role checks always read live membership rows.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrInvalidState is returned when an operation is invoked against an
	// entity that is not in the required state.
	ErrInvalidState = errors.New("invalid state for operation")

	// ErrStateConflict is returned when a conditional update matched zero
	// rows because a concurrent caller transitioned the entity first.
	ErrStateConflict = errors.New("state changed concurrently")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrLimitExceeded is the sentinel under every LimitError.
	ErrLimitExceeded = errors.New("membership limit exceeded")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// AuthorizationError reports a failed role check.
type AuthorizationError struct {
	ActorID UserID
	Action  string
	Needs   string // e.g. "organizer role", "contribution owner"
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s requires %s (actor %s)", e.Action, e.Needs, e.ActorID)
}

func (e *AuthorizationError) Unwrap() error { return ErrNotAuthorized }

// StateError reports an operation attempted in the wrong entity state.
type StateError struct {
	Entity  string // "group", "cycle", "contribution", "payout", "member"
	Current string
	Wanted  string
	Action  string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s: %s is %s, requires %s", e.Action, e.Entity, e.Current, e.Wanted)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

// ValidationError reports malformed input with the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError reports a missing entity with its type and ID.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// LimitError carries the full limit decision so the caller can explain
// exactly which ceiling was hit and by how much.
type LimitError struct {
	Decision LimitDecision
}

func (e *LimitError) Error() string { return e.Decision.Reason }

func (e *LimitError) Unwrap() error { return ErrLimitExceeded }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true when the error is caused by the caller's input
// or the entity's current state, rather than a store failure.
func IsClientError(err error) bool {
	var ve *ValidationError
	return errors.Is(err, ErrNotAuthorized) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrStateConflict) ||
		errors.Is(err, ErrLimitExceeded) ||
		errors.Is(err, ErrNotFound) ||
		errors.As(err, &ve)
}

// IsConflict reports whether the error came from a lost race on a
// conditional update. Callers surface it as "precondition failed"; they do
// not retry, since the precondition no longer holds.
func IsConflict(err error) bool {
	return errors.Is(err, ErrStateConflict)
}
