/*
Package loan implements the loan-application lifecycle and the
disbursement/repayment accounting model.

PURPOSE:
  This package owns everything between "member asks for money" and
  "loan fully repaid or defaulted":
  - Product catalogue (rates, fees, guarantor/collateral/shares policy)
  - Application state machine (submit, review, approve, reject,
    disburse, resubmit)
  - Interest and amortization math (flat and reducing balance)
  - Repayment allocation and schedule-derived summaries

KEY CONCEPTS IN THIS FILE (types.go):
  - Product: static loan configuration, immutable once referenced
  - Application: a member's request against a product
  - Member: borrower record with shares balance and standing
  - Repayment: immutable payment ledger entry
  - Installment: one derived schedule row

DESIGN PRINCIPLES:
  1. Snapshot on disbursement: figures are copied from the product at
     disbursement time, never read live afterwards
  2. Explicit transition table: illegal status moves are errors, not
     string comparisons scattered through handlers
  3. One pure calculation path: previews and authoritative figures come
     from the same functions in schedule.go

SEE ALSO:
  - product.go: JSON config and validation
  - application.go: State machine and service
  - schedule.go: Interest/schedule math
  - repayment.go: Allocation and summaries
*/
package loan

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkopo/sacco-engine/ledger"
)

// =============================================================================
// LOAN ACCOUNT KIND
// =============================================================================

// CashAccount is the concrete ledger account kind for the loan domain.
// Implements ledger.AccountKind.
type CashAccount string

func (a CashAccount) KindID() string     { return string(a) }
func (a CashAccount) KindDomain() string { return "loan" }

// Compile-time check that CashAccount implements ledger.AccountKind
var _ ledger.AccountKind = CashAccount("")

const (
	AccountLoan CashAccount = "loan"
)

// =============================================================================
// ENUMS
// =============================================================================

type InterestType string

const (
	InterestFlat            InterestType = "flat"
	InterestReducingBalance InterestType = "reducing_balance"
)

type RatePeriod string

const (
	RateMonthly RatePeriod = "monthly"
	RateAnnual  RatePeriod = "annual"
	RateWeekly  RatePeriod = "weekly"
)

type Frequency string

const (
	FreqDaily    Frequency = "daily"
	FreqWeekly   Frequency = "weekly"
	FreqBiWeekly Frequency = "bi_weekly"
	FreqMonthly  Frequency = "monthly"
)

// PeriodsPerYear returns the number of repayment periods in a year.
func (f Frequency) PeriodsPerYear() decimal.Decimal {
	switch f {
	case FreqDaily:
		return decimal.NewFromInt(365)
	case FreqWeekly:
		return decimal.NewFromInt(52)
	case FreqBiWeekly:
		return decimal.NewFromInt(26)
	default:
		return decimal.NewFromInt(12)
	}
}

// Advance moves a due date forward by one repayment period.
func (f Frequency) Advance(t time.Time) time.Time {
	switch f {
	case FreqDaily:
		return t.AddDate(0, 0, 1)
	case FreqWeekly:
		return t.AddDate(0, 0, 7)
	case FreqBiWeekly:
		return t.AddDate(0, 0, 14)
	default:
		return t.AddDate(0, 1, 0)
	}
}

type FeeFrequency string

const (
	FeeAnnual    FeeFrequency = "annual"
	FeePerPeriod FeeFrequency = "per_period"
)

type DisbursementMethod string

const (
	MethodMpesa        DisbursementMethod = "mpesa"
	MethodBankTransfer DisbursementMethod = "bank_transfer"
	MethodCash         DisbursementMethod = "cash"
	MethodCheque       DisbursementMethod = "cheque"
)

// Async reports whether this method settles through an asynchronous
// payment callback rather than at the counter.
func (m DisbursementMethod) Async() bool { return m == MethodMpesa }

// =============================================================================
// PRODUCT - Static loan configuration
// =============================================================================

// Product is the static configuration of a loan offering. Once a disbursed
// loan references a product, the product is immutable except for
// administrative correction (enforced at the store level via versioning).
type Product struct {
	ID                 string
	Name               string
	InterestRate       decimal.Decimal // percent, e.g. 12 for 12%
	InterestRatePeriod RatePeriod
	InterestType       InterestType
	RepaymentFrequency Frequency

	MinAmount ledger.Amount
	MaxAmount ledger.Amount
	MinTerm   int // periods
	MaxTerm   int // periods

	// Fee rates, percent of principal
	ProcessingFeeRate    decimal.Decimal
	InsuranceFeeRate     decimal.Decimal
	AppraisalFeeRate     decimal.Decimal
	ExciseDutyRate       decimal.Decimal
	CreditLifeRate       decimal.Decimal
	CreditLifeFrequency  FeeFrequency
	LatePaymentPenalty   decimal.Decimal // percent of overdue remainder
	GracePeriodDays      int

	// Guarantor policy
	RequiresGuarantor bool
	MinGuarantors     int
	MaxGuarantors     int

	// Shares-based eligibility: amount <= shares_balance * multiplier
	SharesMultiplier   decimal.Decimal
	MinSharesRequired  ledger.Amount

	DeductInterestUpfront bool
	AllowMultipleLoans    bool
	RequireGoodStanding   bool

	// Collateral policy
	RequiresCollateral bool
	MinLTVCoverage     decimal.Decimal // percent

	IsActive bool
	Version  int
}

// =============================================================================
// MEMBER
// =============================================================================

type MemberStatus string

const (
	MemberActive    MemberStatus = "active"
	MemberInactive  MemberStatus = "inactive"
	MemberSuspended MemberStatus = "suspended"
)

type Member struct {
	ID            string
	Name          string
	Phone         string
	BranchID      string
	Status        MemberStatus
	SharesBalance ledger.Amount
	GoodStanding  bool
	CreatedAt     time.Time
}

// =============================================================================
// APPLICATION - A loan request and its lifecycle state
// =============================================================================

type Status string

const (
	StatusPending             Status = "pending"
	StatusUnderReview         Status = "under_review"
	StatusApproved            Status = "approved"
	StatusRejected            Status = "rejected"
	StatusCancelled           Status = "cancelled"
	StatusPendingDisbursement Status = "pending_disbursement"
	StatusDisbursed           Status = "disbursed"
	StatusCompleted           Status = "completed"
	StatusDefaulted           Status = "defaulted"
)

// Terminal reports whether no further transitions are legal.
// Rejected and cancelled may still be resurrected via Resubmit.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusDefaulted
}

// ExtraCharge is a named ad-hoc fee line deducted from disbursement.
type ExtraCharge struct {
	Name   string
	Amount ledger.Amount
}

// Collateral is an asset pledged against a loan.
type Collateral struct {
	ID          string
	Description string
	Value       ledger.Amount
}

// Application is a loan request referencing a member and a product.
// Figures under "snapshot fields" are copied from the product at
// disbursement time and never read live afterwards.
type Application struct {
	ID                string
	ApplicationNumber string // system-assigned, unique (LN-YYYY-NNNNNN)
	MemberID          string
	ProductID         string
	Amount            ledger.Amount
	Term              int // periods
	Purpose           string
	PurposeDetails    string

	DisbursementMethod DisbursementMethod
	MpesaPhone         string // required when method = mpesa
	BankAccount        string // required when method = bank_transfer

	GuarantorIDs []string
	Collateral   []Collateral
	ExtraCharges []ExtraCharge

	Status          Status
	RejectionReason string
	ReviewComments  string

	// Snapshot fields, populated on approval/disbursement
	InterestRate            decimal.Decimal
	TotalInterest           ledger.Amount
	PeriodicPayment         ledger.Amount
	TotalRepayment          ledger.Amount
	ProcessingFee           ledger.Amount
	InsuranceFee            ledger.Amount
	AmountDisbursed         ledger.Amount
	AmountRepaid            ledger.Amount
	OutstandingBalance      ledger.Amount
	InterestDeductedUpfront bool

	ApprovedBy  string
	ApprovedAt  *time.Time
	DisbursedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// REPAYMENT - Immutable payment ledger entry
// =============================================================================

// Repayment records a payment against a loan. Immutable once created;
// a correction is a reversing entry, not an edit.
type Repayment struct {
	ID              string
	RepaymentNumber string // RP-NNNNNN
	LoanID          string
	Amount          ledger.Amount
	PrincipalAmount ledger.Amount
	InterestAmount  ledger.Amount
	PenaltyAmount   ledger.Amount
	PaymentMethod   string
	Reference       string
	PaymentDate     time.Time
	CreatedAt       time.Time
}

// PenaltyAssessment records a late-payment penalty raised by the sweeper
// against one installment. Assessed at most once per installment.
type PenaltyAssessment struct {
	ID            string
	LoanID        string
	InstallmentNo int
	Amount        ledger.Amount
	AssessedAt    time.Time
}

// =============================================================================
// INSTALLMENT - One derived schedule row
// =============================================================================

type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentPartial InstallmentStatus = "partial"
	InstallmentPaid    InstallmentStatus = "paid"
	InstallmentOverdue InstallmentStatus = "overdue"
)

// Installment is one row of the repayment schedule. The schedule is
// derived from the loan snapshot plus repayments - it is never stored
// independently.
type Installment struct {
	Number       int // 1..term
	DueDate      time.Time
	Principal    ledger.Amount
	Interest     ledger.Amount
	TotalPayment ledger.Amount
	BalanceAfter ledger.Amount

	// Partial-payment accumulators
	PaidPrincipal ledger.Amount
	PaidInterest  ledger.Amount
	PaidPenalty   ledger.Amount
	PenaltyDue    ledger.Amount

	Status InstallmentStatus
}

// Due returns the amount still owed on this installment, penalties included.
func (i Installment) Due() ledger.Amount {
	return i.TotalPayment.Add(i.PenaltyDue).
		Sub(i.PaidPrincipal).Sub(i.PaidInterest).Sub(i.PaidPenalty)
}
