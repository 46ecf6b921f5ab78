/*
Package ledger provides the core money-movement engine.

PURPOSE:
  This package contains domain-agnostic types and algorithms for tracking
  cash custody. Whether tracking a teller's float, a branch vault, or a
  loan's disbursement/repayment history, the same engine handles balance
  calculation, transaction logging, and idempotent writes.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A monetary quantity with a currency (e.g., KES 10,000.00)
  - Transaction: An immutable ledger entry recording balance changes
  - Account/Entry IDs: Type-safe identifiers
  - AccountKind: Interface for domain-specific account categories

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified, only reversed
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing account kinds
  4. Auditability: Every transaction has reason, reference, and idempotency key

USAGE:
  amount := ledger.NewAmountFromInt(10000, ledger.KES)
  tx := ledger.Transaction{
      AccountID: "float-123",
      Delta:     amount,
      Type:      ledger.EntryDeposit,
  }

SEE ALSO:
  - ledger.go: Ledger interface and balance replay
  - store.go: Persistence and audit-log interfaces
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Monetary quantity with currency
// =============================================================================

type Amount struct {
	Value    decimal.Decimal
	Currency Currency
}

type Currency string

const (
	KES Currency = "KES"
	UGX Currency = "UGX"
	TZS Currency = "TZS"
)

func NewAmount(value float64, currency Currency) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Currency: currency}
}

func NewAmountFromInt(value int, currency Currency) Amount {
	return Amount{Value: decimal.NewFromInt(int64(value)), Currency: currency}
}

func NewAmountFromDecimal(value decimal.Decimal, currency Currency) Amount {
	return Amount{Value: value, Currency: currency}
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Currency: a.Currency} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Currency: a.Currency} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Currency: a.Currency} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Currency: a.Currency} }
func (a Amount) Div(s decimal.Decimal) Amount { return Amount{Value: a.Value.Div(s), Currency: a.Currency} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Currency: a.Currency} }
func (a Amount) Abs() Amount                  { return Amount{Value: a.Value.Abs(), Currency: a.Currency} }
func (a Amount) Round2() Amount               { return Amount{Value: a.Value.Round(2), Currency: a.Currency} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool       { return a.Value.LessThan(b.Value) }
func (a Amount) Equal(b Amount) bool          { return a.Value.Equal(b.Value) }

func (a Amount) String() string { return string(a.Currency) + " " + a.Value.StringFixed(2) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type AccountID string
type TransactionID string

// AccountKind identifies what kind of cash account a transaction belongs to.
// This is an interface so domain packages define their own concrete kinds.
// The ledger package has NO knowledge of specific account kinds.
//
// Domain packages implement this:
//
//	// In teller/types.go
//	type CashAccount string
//	func (a CashAccount) KindID() string     { return string(a) }
//	func (a CashAccount) KindDomain() string { return "teller" }
//	const AccountFloat CashAccount = "float"
type AccountKind interface {
	// KindID returns the unique identifier for this account kind.
	KindID() string

	// KindDomain returns which domain this account kind belongs to.
	KindDomain() string
}

// RawKind is a concrete AccountKind reconstructed from persisted
// identifier strings. Stores use it when scanning transactions back
// from durable storage, where the original domain type is not known.
type RawKind struct {
	ID     string
	Domain string
}

func (k RawKind) KindID() string     { return k.ID }
func (k RawKind) KindDomain() string { return k.Domain }

// =============================================================================
// TRANSACTION - Atomic change to an account balance
// =============================================================================

type EntryType string

const (
	EntryDeposit       EntryType = "deposit"       // Cash in (opening balance, customer deposit)
	EntryWithdrawal    EntryType = "withdrawal"    // Cash out to a customer
	EntryReplenishment EntryType = "replenishment" // Top-up from the branch vault
	EntryDisbursement  EntryType = "disbursement"  // Loan principal released to a member
	EntryRepayment     EntryType = "repayment"     // Loan installment payment received
	EntryPenalty       EntryType = "penalty"       // Late-payment penalty assessed
	EntryVaultIn       EntryType = "vault_in"      // Cash returned into the branch vault
	EntryVaultOut      EntryType = "vault_out"     // Cash issued out of the branch vault
	EntryHold          EntryType = "hold"          // Amount reserved pending a handshake
	EntryReversal      EntryType = "reversal"      // Undo a previous transaction
	EntryAdjustment    EntryType = "adjustment"    // Manual admin correction
)

type Transaction struct {
	ID             TransactionID
	AccountID      AccountID
	AccountKind    AccountKind
	EffectiveAt    time.Time
	Delta          Amount
	Type           EntryType
	ReferenceID    string
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string

	// Audit fields
	CreatedBy     string // Actor who created this transaction
	CreatedByType string // "teller", "manager", "system", "admin"
	CreatedAt     time.Time
}

// =============================================================================
// BALANCE SNAPSHOT - Computed state at a point in time
// =============================================================================

type BalanceSnapshot struct {
	AsOf          time.Time
	AccountID     AccountID
	Balance       Amount
	TotalCredits  Amount
	TotalDebits   Amount
	TotalReversed Amount
}
