/*
errors.go - Centralized error types for the loan domain

PURPOSE:
  All loan-domain errors in one place. Handlers map these onto HTTP
  status codes via the IsClientError/IsNotFound helpers, mirroring the
  ledger package's error discipline.

SEE ALSO:
  - application.go: Raises these from the state machine
  - ledger/errors.go: Lower-level ledger errors
*/
package loan

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidTransition is returned for any status move not in the
	// transition table.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrMemberInactive is returned when acting on behalf of a member who
	// is not active.
	ErrMemberInactive = errors.New("member is not active")

	// ErrIneligible is returned when a member fails a product's
	// eligibility policy (shares, standing, multiple loans).
	ErrIneligible = errors.New("member not eligible for product")

	// ErrOutOfBounds is returned when amount or term fall outside the
	// product's configured range.
	ErrOutOfBounds = errors.New("amount or term out of product bounds")

	// ErrGuarantorPolicy is returned when the guarantor set violates the
	// product policy.
	ErrGuarantorPolicy = errors.New("guarantor policy violated")

	// ErrCollateralPolicy is returned when required collateral is missing
	// or under-covers the loan.
	ErrCollateralPolicy = errors.New("collateral policy violated")

	// ErrMethodNotEnabled is returned when a disbursement method is gated
	// off by the organization's feature capabilities.
	ErrMethodNotEnabled = errors.New("disbursement method not enabled")

	// ErrMethodFields is returned when method-conditional fields are
	// missing (phone for mpesa, account for bank transfer).
	ErrMethodFields = errors.New("missing fields for disbursement method")

	// ErrUnconfirmed is returned when an approval lacks the affirmative
	// operator confirmation gate.
	ErrUnconfirmed = errors.New("approval requires explicit confirmation")

	// ErrUnknownRejectionCategory is returned for a category outside the
	// fixed taxonomy.
	ErrUnknownRejectionCategory = errors.New("unknown rejection category")

	// ErrProductInactive is returned when submitting against a retired product.
	ErrProductInactive = errors.New("product is not active")

	// ErrApplicationNotFound, ErrMemberNotFound, ErrProductNotFound are the
	// not-found family for this domain.
	ErrApplicationNotFound = errors.New("loan application not found")
	ErrMemberNotFound      = errors.New("member not found")
	ErrProductNotFound     = errors.New("loan product not found")

	// ErrNotDisbursed is returned when repaying a loan that has not been
	// disbursed.
	ErrNotDisbursed = errors.New("loan is not disbursed")

	// ErrOverpayment is returned when a repayment exceeds what is owed.
	ErrOverpayment = errors.New("repayment exceeds outstanding balance")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TransitionError reports an illegal state-machine move.
type TransitionError struct {
	Application string
	From        Status
	To          Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("application %s: cannot move %s -> %s", e.Application, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// EligibilityError explains which eligibility rule failed.
type EligibilityError struct {
	MemberID string
	Rule     string // "shares_multiplier", "min_shares", "multiple_loans", "good_standing"
	Detail   string
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("member %s ineligible (%s): %s", e.MemberID, e.Rule, e.Detail)
}

func (e *EligibilityError) Unwrap() error { return ErrIneligible }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input
// or a domain-rule violation the caller can correct.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrMemberInactive) ||
		errors.Is(err, ErrIneligible) ||
		errors.Is(err, ErrOutOfBounds) ||
		errors.Is(err, ErrGuarantorPolicy) ||
		errors.Is(err, ErrCollateralPolicy) ||
		errors.Is(err, ErrMethodNotEnabled) ||
		errors.Is(err, ErrMethodFields) ||
		errors.Is(err, ErrUnconfirmed) ||
		errors.Is(err, ErrUnknownRejectionCategory) ||
		errors.Is(err, ErrProductInactive) ||
		errors.Is(err, ErrNotDisbursed) ||
		errors.Is(err, ErrOverpayment)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrApplicationNotFound) ||
		errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrProductNotFound)
}
