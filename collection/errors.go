/*
errors.go - Centralized error types for the collection engine

ERROR CATEGORIES:
  1. Client errors - InvalidArgument, NotFound, Conflict (surfaced, never retried)
  2. Delivery errors - outbound message failed (recorded, never retried)
  3. Persistence errors - store unavailable (abort one tenant's step,
     the invocation can be re-run wholesale)
  4. Store uniqueness errors - duplicate action / ledger entry, expected
     under concurrent triggers

USAGE:
  if errors.Is(err, collection.ErrDuplicateAction) {
      // another trigger already took this step
  }
*/
package collection

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidArgument is returned for missing or out-of-range input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned when a tenant, ledger entry, plan or
	// notification doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a transition is requested on a record in
	// an incompatible state. Prefer ConflictError, which carries the state.
	ErrConflict = errors.New("conflict")

	// ErrDeliveryFailure marks an outbound message that could not be sent.
	ErrDeliveryFailure = errors.New("delivery failure")

	// ErrPersistenceFailure marks a store failure during a workflow step.
	ErrPersistenceFailure = errors.New("persistence failure")

	// ErrDuplicateAction is returned by the store when an action with the
	// same (tenant, action type, period) already exists.
	ErrDuplicateAction = errors.New("duplicate collection action")

	// ErrDuplicateLedgerEntry is returned by the store when the tenant
	// already has an entry for the period.
	ErrDuplicateLedgerEntry = errors.New("duplicate ledger entry")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConflictError reports the current state of the record that blocked a
// transition.
type ConflictError struct {
	Resource string
	ID       string
	Current  string
	Wanted   string
}

func (e *ConflictError) Error() string {
	if e.Wanted == "" {
		return fmt.Sprintf("conflict: %s %s is %s", e.Resource, e.ID, e.Current)
	}
	return fmt.Sprintf("conflict: %s %s is %s, cannot move to %s", e.Resource, e.ID, e.Current, e.Wanted)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// StepError is one tenant's failure inside a waterfall step.
type StepError struct {
	Action   ActionType
	TenantID TenantID
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s for tenant %s: %v", e.Action, e.TenantID, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// persistence wraps a store error so callers can detect it with
// errors.Is(err, ErrPersistenceFailure) while keeping the cause.
func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPersistenceFailure) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistenceFailure, err)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to caller input or state.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable returns true if re-running the invocation may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPersistenceFailure)
}
