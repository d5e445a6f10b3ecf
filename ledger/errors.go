/*
errors.go - Centralized error taxonomy for the budget engine

PURPOSE:
  All failure categories in one place. Domain packages (procurement,
  invoice, approval) return these types so callers can branch on category
  with errors.Is/errors.As regardless of which engine produced the failure.

ERROR CATEGORIES:
  1. Validation  - missing/invalid required fields (code, description, reason)
  2. Not found   - referenced account/sub-account/document absent
  3. Conflict    - delete blocked by children, delete of a paid invoice,
                   or adjustment contention after retries
  4. Forbidden   - approval action by a non-approver or out-of-order step
  5. Invalid state - transition not legal from the document's current status

USAGE:
  if errors.Is(err, ledger.ErrInvalidState) { ... }

  var nf *ledger.NotFoundError
  if errors.As(err, &nf) { log.Printf("missing %s %s", nf.Kind, nf.ID) }

SEE ALSO:
  - api/handlers.go: maps these categories to HTTP status codes
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when a required field is missing or invalid.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an operation is blocked by existing state,
	// e.g. deleting an account that still owns sub-accounts.
	ErrConflict = errors.New("conflict")

	// ErrForbidden is returned when the acting user may not perform the
	// requested approval action.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidState is returned when a lifecycle transition is not legal
	// from the document's current status.
	ErrInvalidState = errors.New("invalid state")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports which field failed and why.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError reports the kind and id of the missing entity.
type NotFoundError struct {
	Kind string // "account", "subaccount", "purchase_order", "invoice", "supplier"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError reports why the operation was blocked.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s", e.Reason)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// ForbiddenError reports which user was denied and why.
type ForbiddenError struct {
	UserID UserID
	Reason string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: user %s %s", e.UserID, e.Reason)
}

func (e *ForbiddenError) Unwrap() error { return ErrForbidden }

// InvalidStateError reports the attempted action and the status that
// disallowed it.
type InvalidStateError struct {
	Entity string // "purchase_order" or "invoice"
	Status string
	Action string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state: cannot %s %s in status %q", e.Action, e.Entity, e.Status)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input
// rather than an internal failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrConflict)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
