/*
store.go - Persistence interface for transactions and audit entries

PURPOSE:
  Defines the interface between the domain logic and the database.
  The Store handles persistence while maintaining append-only semantics.
  Different implementations can use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  Store:    Core transaction persistence (append, load, exists)
  TxStore:  Transactional operations (atomic multi-table writes)
  AuditLog: Who-did-what-when log, separate from the money ledger

APPEND-ONLY CONTRACT:
  The Store interface enforces append-only semantics:
  - Append(): Single transaction write
  - AppendBatch(): Atomic multi-transaction write
  - NO Update() or Delete() methods exist

IDEMPOTENCY:
  Every write includes an idempotency key. If the key already exists,
  the write is rejected. This prevents duplicate transactions from
  network retries or user double-clicks on "Disburse".

ATOMIC BATCHES:
  AppendBatch() ensures all-or-nothing semantics. A shift handover is
  two legs (hold on the initiator's float, credit to the receiver's);
  either both are written or neither is.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - ledger/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: Higher-level interface using Store
*/
package ledger

import "context"

// =============================================================================
// STORE - Interface for transaction persistence (append-only)
// =============================================================================

// Store handles persistence of transactions.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete. Ever.
// Corrections are made via reversal transactions.
type Store interface {
	// Append persists a transaction. Returns error if idempotency key exists.
	// This is the ONLY write operation.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch persists multiple transactions atomically.
	// Either all succeed or none do.
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Load returns all transactions for an account, ordered by EffectiveAt.
	Load(ctx context.Context, accountID AccountID) ([]Transaction, error)

	// LoadByReference returns all transactions linked to a reference ID.
	LoadByReference(ctx context.Context, referenceID string) ([]Transaction, error)

	// Exists checks if idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
// Use this when you need atomic operations (e.g., disbursing a loan
// while recording the application status change).
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// AUDIT LOG - Separate from ledger, tracks who did what when
// =============================================================================

// AuditEntry records who did what when.
type AuditEntry struct {
	ID        string
	Timestamp int64 // unix seconds
	ActorID   string
	Action    AuditAction
	AccountID AccountID
	Reference string
	Payload   map[string]any // action-specific data
}

type AuditAction string

const (
	AuditLoanSubmitted       AuditAction = "loan_submitted"
	AuditLoanApproved        AuditAction = "loan_approved"
	AuditLoanRejected        AuditAction = "loan_rejected"
	AuditLoanDisbursed       AuditAction = "loan_disbursed"
	AuditLoanResubmitted     AuditAction = "loan_resubmitted"
	AuditFloatOpened         AuditAction = "float_opened"
	AuditFloatReconciled     AuditAction = "float_reconciled"
	AuditShortageApproved    AuditAction = "shortage_approved"
	AuditShortageResolved    AuditAction = "shortage_resolved"
	AuditVaultReturnAccepted AuditAction = "vault_return_accepted"
	AuditHandoverSettled     AuditAction = "handover_settled"
	AuditManualAdjust        AuditAction = "manual_adjustment"
)

// AuditLog stores audit entries. Also append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	AccountID *AccountID
	ActorID   *string
	Actions   []AuditAction
}
