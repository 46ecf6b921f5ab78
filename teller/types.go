/*
Package teller implements teller float and branch vault cash custody.

PURPOSE:
  Tracks the cash each teller is entrusted with for a working day, the
  branch vault it is drawn from and returned to, and the reconciliation
  workflow that closes a float:
  - Float lifecycle: open -> reconcile -> {reconciled | pending_approval}
  - Shortage sub-workflow: detected deficit held until a manager
    authorizes a resolution
  - Vault return and shift handover, both two-party handshakes

BALANCE DISCIPLINE:
  A float's current balance is never stored; it is replayed from the
  ledger (opening deposit + deposits + replenishments - withdrawals),
  so the identity
      current = opening + deposits_in + replenishments - withdrawals_out
  holds after every mutation by construction.

KEY CONCEPTS IN THIS FILE (types.go):
  - Float, Shortage, Vault, Handover records
  - CashAccount: ledger account kinds for the teller domain
  - Explicit status enums with transition guards (no string scattering)

SEE ALSO:
  - float.go: Float operations and reconciliation
  - vault.go: Branch vault and vault-return handshake
  - handover.go: Teller-to-teller shift handover
*/
package teller

import (
	"time"

	"github.com/mkopo/sacco-engine/ledger"
)

// =============================================================================
// TELLER ACCOUNT KINDS
// =============================================================================

// CashAccount is the concrete ledger account kind for the teller domain.
// Implements ledger.AccountKind.
type CashAccount string

func (a CashAccount) KindID() string     { return string(a) }
func (a CashAccount) KindDomain() string { return "teller" }

// Compile-time check that CashAccount implements ledger.AccountKind
var _ ledger.AccountKind = CashAccount("")

const (
	AccountFloat CashAccount = "float"
	AccountVault CashAccount = "vault"
)

// FloatAccountID returns the ledger account for a float.
func FloatAccountID(floatID string) ledger.AccountID {
	return ledger.AccountID("float:" + floatID)
}

// VaultAccountID returns the ledger account for a branch vault.
func VaultAccountID(branchID string) ledger.AccountID {
	return ledger.AccountID("vault:" + branchID)
}

// =============================================================================
// FLOAT - One teller's cash custody for one working day
// =============================================================================

type FloatStatus string

const (
	FloatOpen               FloatStatus = "open"
	FloatPendingApproval    FloatStatus = "pending_approval"
	FloatPendingVaultReturn FloatStatus = "pending_vault_return"
	FloatReconciled         FloatStatus = "reconciled"
)

// Float is a teller's cash custody record. At most one float exists per
// (staff, date); the store enforces the uniqueness.
type Float struct {
	ID             string
	StaffID        string
	BranchID       string
	Date           time.Time // day granularity
	OpeningBalance ledger.Amount
	Status         FloatStatus

	// Reconciliation results, populated on Reconcile
	PhysicalCount *ledger.Amount
	Variance      *ledger.Amount // physical_count - current_balance

	CreatedAt    time.Time
	UpdatedAt    time.Time
	ReconciledAt *time.Time
}

// =============================================================================
// SHORTAGE - Deficit discovered at reconciliation
// =============================================================================

type ShortageStatus string

const (
	ShortagePending         ShortageStatus = "pending"
	ShortageHeld            ShortageStatus = "held"
	ShortageResolvedDeduct  ShortageStatus = "resolved_deduct"
	ShortageResolvedExpense ShortageStatus = "resolved_expense"
)

// Resolution names the two authorized ways to clear a held shortage.
type Resolution string

const (
	ResolveDeductFromSalary Resolution = "deduct_from_salary"
	ResolveWriteOffExpense  Resolution = "write_off_expense"
)

// Shortage is created when reconciliation finds physical cash below the
// expected balance. It is held indefinitely until a manager authorizes a
// resolution, each requiring manager credential verification.
type Shortage struct {
	ID            string
	TellerFloatID string
	Amount        ledger.Amount // positive magnitude of the deficit
	Status        ShortageStatus

	ApprovedBy string
	ResolvedBy string
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// =============================================================================
// VAULT - Per-branch cash pool
// =============================================================================

// Vault is the branch-level cash reserve. Its balance is replayed from
// the ledger like a float's.
type Vault struct {
	BranchID  string
	CreatedAt time.Time
}

// =============================================================================
// HANDOVER - Shift handover handshake between two tellers
// =============================================================================

type HandoverStatus string

const (
	HandoverPending   HandoverStatus = "pending"
	HandoverAccepted  HandoverStatus = "accepted"
	HandoverRejected  HandoverStatus = "rejected"
	HandoverCancelled HandoverStatus = "cancelled"
)

// Handover moves cash between two tellers' floats. The amount is
// optimistically reserved out of the initiator's float at initiation;
// only the receiver's acknowledgment settles or returns it.
type Handover struct {
	ID          string
	FromFloatID string
	ToFloatID   string
	Amount      ledger.Amount
	Status      HandoverStatus

	InitiatedBy string
	SettledBy   string
	CreatedAt   time.Time
	SettledAt   *time.Time
}

