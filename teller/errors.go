/*
errors.go - Centralized error types for the teller domain

SEE ALSO:
  - float.go, vault.go, handover.go: Raise these
  - ledger/errors.go: Lower-level balance errors (wrapped, not replaced)
*/
package teller

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrFloatExists is returned when opening a second float for the same
	// (staff, date).
	ErrFloatExists = errors.New("float already open for staff and date")

	// ErrFloatNotOpen is returned when mutating a float that is not open.
	ErrFloatNotOpen = errors.New("float is not open")

	// ErrFloatNotAwaitingApproval is returned when approving a float that
	// has no pending shortage approval.
	ErrFloatNotAwaitingApproval = errors.New("float is not pending approval")

	// ErrFloatNotAwaitingReturn is returned when settling a vault return
	// for a float that never requested one.
	ErrFloatNotAwaitingReturn = errors.New("float is not pending vault return")

	// ErrShortageNotActionable is returned when approving or resolving a
	// shortage in the wrong status.
	ErrShortageNotActionable = errors.New("shortage not in actionable status")

	// ErrHandoverSettled is returned when acknowledging a handover that is
	// no longer pending.
	ErrHandoverSettled = errors.New("handover already settled")

	// ErrVerificationFailed is returned when manager credential
	// verification fails.
	ErrVerificationFailed = errors.New("manager verification failed")

	// ErrNotFound covers missing floats, shortages and handovers.
	ErrFloatNotFound    = errors.New("float not found")
	ErrShortageNotFound = errors.New("shortage not found")
	ErrHandoverNotFound = errors.New("handover not found")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// StateError reports an operation attempted in the wrong status.
type StateError struct {
	Kind   string // "float", "shortage", "handover"
	ID     string
	Status string
	Op     string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s %s: cannot %s while %s", e.Kind, e.ID, e.Op, e.Status)
}

func (e *StateError) Unwrap() error {
	switch e.Kind {
	case "shortage":
		return ErrShortageNotActionable
	case "handover":
		return ErrHandoverSettled
	default:
		return ErrFloatNotOpen
	}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true for domain-rule violations the caller caused.
func IsClientError(err error) bool {
	return errors.Is(err, ErrFloatExists) ||
		errors.Is(err, ErrFloatNotOpen) ||
		errors.Is(err, ErrFloatNotAwaitingApproval) ||
		errors.Is(err, ErrFloatNotAwaitingReturn) ||
		errors.Is(err, ErrShortageNotActionable) ||
		errors.Is(err, ErrHandoverSettled) ||
		errors.Is(err, ErrVerificationFailed)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFloatNotFound) ||
		errors.Is(err, ErrShortageNotFound) ||
		errors.Is(err, ErrHandoverNotFound)
}
