/*
ledger.go - Append-only transaction log

PURPOSE:
  The Ledger is the immutable source of truth for all cash movement.
  Every float deposit, withdrawal, replenishment, disbursement, repayment
  and reversal is recorded here. Balance is always computed by replaying
  transactions - there's no separate "balance" field that can get out
  of sync.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, transactions cannot be modified
  3. AUDITABLE: Every balance change is traceable with full context
  4. IDEMPOTENT: Same idempotency key = same transaction (no duplicates)

CORRECTIONS:
  If a mistake is made, you don't edit the transaction. Instead:
  1. Create a Reversal transaction (opposite sign)
  2. Both original and reversal remain in the ledger
  3. Net effect is correction, but history is preserved

EXAMPLE FLOW:
  1. Teller opens float with KES 50,000:  EntryDeposit    +50,000
  2. Member withdraws KES 8,000:          EntryWithdrawal  -8,000
  3. Oops, wrong member account:          EntryReversal    +8,000
  4. Re-post to correct float:            EntryWithdrawal  -8,000

SEE ALSO:
  - store.go: Low-level persistence interface
  - teller/float.go: Domain-specific wrapper with balance pre-checks
*/
package ledger

import (
	"context"
	"errors"
)

// =============================================================================
// LEDGER - Append-only transaction log
// =============================================================================

// Ledger is the source of truth for all cash movement.
//
// INVARIANTS:
//   - Append-only: No Update, No Delete. EVER.
//   - Immutable: Once written, transactions cannot be modified.
//   - Auditable: Every balance change is traceable.
//
// Corrections are made via reversal transactions, not edits.
type Ledger interface {
	// Append adds a transaction. Fails if idempotency key exists.
	// This is the ONLY write operation.
	Append(ctx context.Context, tx Transaction) error

	// AppendBatch adds multiple transactions atomically.
	// Used for multi-leg movements (handover = hold on one float,
	// credit on the other).
	AppendBatch(ctx context.Context, txs []Transaction) error

	// Transactions returns all transactions for an account, chronologically.
	// Read-only.
	Transactions(ctx context.Context, accountID AccountID) ([]Transaction, error)

	// TransactionsByReference returns transactions linked to a reference
	// (loan number, handover ID). Read-only.
	TransactionsByReference(ctx context.Context, referenceID string) ([]Transaction, error)

	// Balance computes the current balance of an account.
	// This is a derived value, computed from transactions.
	Balance(ctx context.Context, accountID AccountID, currency Currency) (Amount, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store Store
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

func (l *DefaultLedger) Append(ctx context.Context, tx Transaction) error {
	if tx.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.Append(ctx, tx)
}

func (l *DefaultLedger) AppendBatch(ctx context.Context, txs []Transaction) error {
	// Prefer a store transaction: the idempotency checks and every
	// write then commit or roll back as one unit.
	err := l.InTx(ctx, func(s Store) error {
		return appendAll(ctx, s, txs)
	})
	if !errors.Is(err, ErrStoreRequired) {
		return err
	}

	// Non-transactional store. Check keys up front and lean on the
	// store's own AppendBatch contract for atomicity.
	for _, tx := range txs {
		if tx.IdempotencyKey != "" {
			exists, err := l.Store.Exists(ctx, tx.IdempotencyKey)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicateIdempotencyKey
			}
		}
	}
	return l.Store.AppendBatch(ctx, txs)
}

// InTx runs fn against the backing store inside a single transaction.
// Returns ErrStoreRequired when the store cannot provide one.
func (l *DefaultLedger) InTx(ctx context.Context, fn func(Store) error) error {
	ts, ok := l.Store.(TxStore)
	if !ok {
		return ErrStoreRequired
	}
	return ts.WithTx(ctx, fn)
}

// appendAll checks each key and appends against s, which is expected to
// be transactional so in-flight writes are visible to Exists.
func appendAll(ctx context.Context, s Store, txs []Transaction) error {
	for _, tx := range txs {
		if tx.IdempotencyKey != "" {
			exists, err := s.Exists(ctx, tx.IdempotencyKey)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicateIdempotencyKey
			}
		}
		if err := s.Append(ctx, tx); err != nil {
			return err
		}
	}
	return nil
}

func (l *DefaultLedger) Transactions(ctx context.Context, accountID AccountID) ([]Transaction, error) {
	return l.Store.Load(ctx, accountID)
}

func (l *DefaultLedger) TransactionsByReference(ctx context.Context, referenceID string) ([]Transaction, error) {
	return l.Store.LoadByReference(ctx, referenceID)
}

func (l *DefaultLedger) Balance(ctx context.Context, accountID AccountID, currency Currency) (Amount, error) {
	txs, err := l.Store.Load(ctx, accountID)
	if err != nil {
		return Amount{}, err
	}

	balance := NewAmountFromInt(0, currency)
	for _, tx := range txs {
		if tx.Delta.Currency != currency {
			return Amount{}, ErrCurrencyMismatch
		}
		balance = balance.Add(tx.Delta)
	}
	return balance, nil
}

// Snapshot computes a full balance snapshot for an account.
func (l *DefaultLedger) Snapshot(ctx context.Context, accountID AccountID, currency Currency) (*BalanceSnapshot, error) {
	txs, err := l.Store.Load(ctx, accountID)
	if err != nil {
		return nil, err
	}

	snap := &BalanceSnapshot{
		AccountID:     accountID,
		Balance:       NewAmountFromInt(0, currency),
		TotalCredits:  NewAmountFromInt(0, currency),
		TotalDebits:   NewAmountFromInt(0, currency),
		TotalReversed: NewAmountFromInt(0, currency),
	}
	for _, tx := range txs {
		snap.Balance = snap.Balance.Add(tx.Delta)
		switch {
		case tx.Type == EntryReversal:
			snap.TotalReversed = snap.TotalReversed.Add(tx.Delta.Abs())
		case tx.Delta.IsNegative():
			snap.TotalDebits = snap.TotalDebits.Add(tx.Delta.Abs())
		default:
			snap.TotalCredits = snap.TotalCredits.Add(tx.Delta)
		}
		if tx.EffectiveAt.After(snap.AsOf) {
			snap.AsOf = tx.EffectiveAt
		}
	}
	return snap, nil
}
