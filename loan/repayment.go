/*
repayment.go - Repayment allocation, schedule application and summaries

PURPOSE:
  Applies payments onto the derived schedule and computes the
  authoritative loan summary (outstanding balance, overdue amounts,
  next due installment).

ALLOCATION POLICY:
  Oldest-due-first. A payment walks the schedule from the earliest
  unpaid installment forward; within each installment it settles
  penalty, then interest, then principal. (The upstream behavior was
  ambiguous; this choice is recorded in DESIGN.md.)

IMMUTABILITY:
  Repayments are immutable ledger entries. A correction is a reversing
  entry, not an edit. The allocation recorded on the Repayment row is
  therefore fixed at payment time.

PENALTIES:
  The daily sweeper assesses a late-payment penalty (product rate x
  overdue remainder) at most once per installment, after the grace
  period. Assessments raise the installment's PenaltyDue, which
  allocation settles first.

SEE ALSO:
  - schedule.go: BuildSchedule for the base rows
  - api/scheduler.go: Penalty/default sweep
*/
package loan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mkopo/sacco-engine/ledger"
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

type RepaymentStore interface {
	SaveRepayment(ctx context.Context, r *Repayment) error
	GetRepaymentsByLoan(ctx context.Context, loanID string) ([]*Repayment, error)
	NextRepaymentNumber(ctx context.Context) (string, error)

	SavePenaltyAssessment(ctx context.Context, p *PenaltyAssessment) error
	GetPenaltyAssessmentsByLoan(ctx context.Context, loanID string) ([]*PenaltyAssessment, error)
}

// =============================================================================
// ALLOCATION
// =============================================================================

// Allocation is the split of one payment across components.
type Allocation struct {
	Principal ledger.Amount
	Interest  ledger.Amount
	Penalty   ledger.Amount
}

// Allocate distributes amount across the schedule, oldest-due-first,
// settling penalty then interest then principal within each installment.
// The schedule rows are mutated in place (accumulators and status).
// Returns the total allocation and any unapplied remainder.
func Allocate(schedule []Installment, amount ledger.Amount, asOf time.Time) (Allocation, ledger.Amount) {
	zero := amount.Zero()
	alloc := Allocation{Principal: zero, Interest: zero, Penalty: zero}
	remaining := amount

	for i := range schedule {
		if remaining.IsZero() || remaining.IsNegative() {
			break
		}
		row := &schedule[i]

		penaltyOwed := row.PenaltyDue.Sub(row.PaidPenalty)
		paid := settle(&remaining, penaltyOwed)
		row.PaidPenalty = row.PaidPenalty.Add(paid)
		alloc.Penalty = alloc.Penalty.Add(paid)

		interestOwed := row.Interest.Sub(row.PaidInterest)
		paid = settle(&remaining, interestOwed)
		row.PaidInterest = row.PaidInterest.Add(paid)
		alloc.Interest = alloc.Interest.Add(paid)

		principalOwed := row.Principal.Sub(row.PaidPrincipal)
		paid = settle(&remaining, principalOwed)
		row.PaidPrincipal = row.PaidPrincipal.Add(paid)
		alloc.Principal = alloc.Principal.Add(paid)

		row.Status = deriveStatus(*row, asOf)
	}
	return alloc, remaining
}

// settle pays up to owed out of remaining, returning the amount paid.
func settle(remaining *ledger.Amount, owed ledger.Amount) ledger.Amount {
	if !owed.IsPositive() {
		return owed.Zero()
	}
	paid := owed
	if remaining.LessThan(owed) {
		paid = *remaining
	}
	*remaining = remaining.Sub(paid)
	return paid
}

// deriveStatus computes the installment status from its accumulators:
// paid (fully allocated), partial (0 < paid < due), overdue (due date
// passed with unpaid remainder), else pending.
func deriveStatus(row Installment, asOf time.Time) InstallmentStatus {
	due := row.TotalPayment.Add(row.PenaltyDue)
	paid := row.PaidPrincipal.Add(row.PaidInterest).Add(row.PaidPenalty)

	switch {
	case !paid.LessThan(due):
		return InstallmentPaid
	case row.DueDate.Before(asOf):
		return InstallmentOverdue
	case paid.IsPositive():
		return InstallmentPartial
	default:
		return InstallmentPending
	}
}

// =============================================================================
// SCHEDULE STATE - Derived schedule with payments and penalties applied
// =============================================================================

// ScheduleFor rebuilds the loan's schedule from its snapshot and replays
// penalties and repayments onto it. The schedule is never stored; this
// is the single derivation path.
func (s *Service) ScheduleFor(ctx context.Context, repayments RepaymentStore, app *Application) ([]Installment, error) {
	if app.Status != StatusDisbursed && app.Status != StatusCompleted && app.Status != StatusDefaulted {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotDisbursed, app.ApplicationNumber, app.Status)
	}
	product, err := s.Products.GetProduct(ctx, app.ProductID)
	if err != nil {
		return nil, err
	}

	q := NewQuote(product, app.Amount, app.Term, app.ExtraCharges)
	schedule := BuildSchedule(product, q, *app.DisbursedAt)

	assessments, err := repayments.GetPenaltyAssessmentsByLoan(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	for _, pa := range assessments {
		if pa.InstallmentNo >= 1 && pa.InstallmentNo <= len(schedule) {
			row := &schedule[pa.InstallmentNo-1]
			row.PenaltyDue = row.PenaltyDue.Add(pa.Amount)
		}
	}

	history, err := repayments.GetRepaymentsByLoan(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, r := range history {
		Allocate(schedule, r.Amount, now)
	}

	// Refresh statuses for rows no payment touched.
	for i := range schedule {
		schedule[i].Status = deriveStatus(schedule[i], now)
	}
	return schedule, nil
}

// =============================================================================
// RECORD PAYMENT
// =============================================================================

// RecordInput describes an incoming payment.
type RecordInput struct {
	Amount        ledger.Amount
	PaymentMethod string
	Reference     string
	PaymentDate   time.Time
	ReceivedBy    string
}

// RecordRepayment applies a payment to a disbursed loan: computes the
// allocation, persists the immutable repayment row, posts the ledger
// entry, updates the loan's running totals and completes the loan when
// the schedule is fully paid.
func (s *Service) RecordRepayment(ctx context.Context, repayments RepaymentStore, loanID string, in RecordInput) (*Repayment, error) {
	app, err := s.Applications.GetApplication(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if app.Status != StatusDisbursed {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotDisbursed, app.ApplicationNumber, app.Status)
	}

	schedule, err := s.ScheduleFor(ctx, repayments, app)
	if err != nil {
		return nil, err
	}

	alloc, remainder := Allocate(schedule, in.Amount, s.now())
	if remainder.IsPositive() {
		return nil, fmt.Errorf("%w: %v unallocated", ErrOverpayment, remainder.Value)
	}

	number, err := repayments.NextRepaymentNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to assign repayment number: %w", err)
	}

	now := s.now()
	paymentDate := in.PaymentDate
	if paymentDate.IsZero() {
		paymentDate = now
	}

	repayment := &Repayment{
		ID:              uuid.NewString(),
		RepaymentNumber: number,
		LoanID:          app.ID,
		Amount:          in.Amount,
		PrincipalAmount: alloc.Principal,
		InterestAmount:  alloc.Interest,
		PenaltyAmount:   alloc.Penalty,
		PaymentMethod:   in.PaymentMethod,
		Reference:       in.Reference,
		PaymentDate:     paymentDate,
		CreatedAt:       now,
	}
	if err := repayments.SaveRepayment(ctx, repayment); err != nil {
		return nil, err
	}

	tx := ledger.Transaction{
		ID:             ledger.TransactionID(uuid.NewString()),
		AccountID:      loanAccountID(app.ApplicationNumber),
		AccountKind:    AccountLoan,
		EffectiveAt:    paymentDate,
		Delta:          in.Amount.Neg(),
		Type:           ledger.EntryRepayment,
		ReferenceID:    app.ApplicationNumber,
		Reason:         "repayment " + number,
		IdempotencyKey: "repay-" + number,
		CreatedBy:      in.ReceivedBy,
		CreatedByType:  "teller",
		CreatedAt:      now,
	}
	if err := s.Ledger.Append(ctx, tx); err != nil {
		return nil, err
	}

	app.AmountRepaid = app.AmountRepaid.Add(in.Amount)
	summary := Summarize(schedule, s.now())
	app.OutstandingBalance = summary.OutstandingBalance
	if summary.OutstandingBalance.IsZero() || summary.OutstandingBalance.IsNegative() {
		if err := app.transition(StatusCompleted); err != nil {
			return nil, err
		}
	}
	app.UpdatedAt = now
	if err := s.Applications.SaveApplication(ctx, app); err != nil {
		return nil, err
	}

	return repayment, nil
}

// AssessPenalty raises a late-payment penalty against one installment.
// At most one assessment per installment: a repeat call is a no-op and
// returns the existing assessment.
func (s *Service) AssessPenalty(ctx context.Context, repayments RepaymentStore, loanID string, installmentNo int, amount ledger.Amount) (*PenaltyAssessment, error) {
	app, err := s.Applications.GetApplication(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if app.Status != StatusDisbursed {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotDisbursed, app.ApplicationNumber, app.Status)
	}

	existing, err := repayments.GetPenaltyAssessmentsByLoan(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	for _, pa := range existing {
		if pa.InstallmentNo == installmentNo {
			return pa, nil
		}
	}

	now := s.now()
	assessment := &PenaltyAssessment{
		ID:            uuid.NewString(),
		LoanID:        app.ID,
		InstallmentNo: installmentNo,
		Amount:        amount,
		AssessedAt:    now,
	}
	if err := repayments.SavePenaltyAssessment(ctx, assessment); err != nil {
		return nil, err
	}

	tx := ledger.Transaction{
		ID:             ledger.TransactionID(uuid.NewString()),
		AccountID:      loanAccountID(app.ApplicationNumber),
		AccountKind:    AccountLoan,
		EffectiveAt:    now,
		Delta:          amount,
		Type:           ledger.EntryPenalty,
		ReferenceID:    app.ApplicationNumber,
		Reason:         fmt.Sprintf("late-payment penalty, installment %d", installmentNo),
		IdempotencyKey: fmt.Sprintf("penalty-%s-%d", app.ApplicationNumber, installmentNo),
		CreatedBy:      "sweeper",
		CreatedByType:  "system",
		CreatedAt:      now,
	}
	if err := s.Ledger.Append(ctx, tx); err != nil && !errors.Is(err, ledger.ErrDuplicateIdempotencyKey) {
		return nil, err
	}

	// Penalties grow what the member owes.
	app.OutstandingBalance = app.OutstandingBalance.Add(amount)
	app.UpdatedAt = now
	if err := s.Applications.SaveApplication(ctx, app); err != nil {
		return nil, err
	}
	return assessment, nil
}

// MarkDefaulted flags a severely overdue loan. The severity policy lives
// with the caller (sweeper threshold); this only performs the transition.
func (s *Service) MarkDefaulted(ctx context.Context, loanID, reason string) (*Application, error) {
	app, err := s.Applications.GetApplication(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if err := app.transition(StatusDefaulted); err != nil {
		return nil, err
	}
	app.UpdatedAt = s.now()
	if err := s.Applications.SaveApplication(ctx, app); err != nil {
		return nil, err
	}
	return app, nil
}

// =============================================================================
// SUMMARY
// =============================================================================

// Summary is the authoritative rollup the client consumes read-only.
type Summary struct {
	TotalExpected      ledger.Amount
	TotalPaid          ledger.Amount
	TotalPaidPrincipal ledger.Amount
	TotalPaidInterest  ledger.Amount
	TotalPaidPenalty   ledger.Amount
	OutstandingBalance ledger.Amount // total_expected - total_paid
	AmountOverdue      ledger.Amount
	OverdueCount       int
	NextDueAmount      *ledger.Amount
	NextDueDate        *time.Time
}

// Summarize computes the loan summary from an applied schedule.
//
// INVARIANT: OutstandingBalance == TotalExpected - TotalPaid across any
// sequence of partial repayments.
func Summarize(schedule []Installment, asOf time.Time) Summary {
	if len(schedule) == 0 {
		return Summary{}
	}
	zero := schedule[0].Principal.Zero()
	sum := Summary{
		TotalExpected:      zero,
		TotalPaid:          zero,
		TotalPaidPrincipal: zero,
		TotalPaidInterest:  zero,
		TotalPaidPenalty:   zero,
		AmountOverdue:      zero,
	}

	for i := range schedule {
		row := schedule[i]
		due := row.TotalPayment.Add(row.PenaltyDue)
		paid := row.PaidPrincipal.Add(row.PaidInterest).Add(row.PaidPenalty)

		sum.TotalExpected = sum.TotalExpected.Add(due)
		sum.TotalPaid = sum.TotalPaid.Add(paid)
		sum.TotalPaidPrincipal = sum.TotalPaidPrincipal.Add(row.PaidPrincipal)
		sum.TotalPaidInterest = sum.TotalPaidInterest.Add(row.PaidInterest)
		sum.TotalPaidPenalty = sum.TotalPaidPenalty.Add(row.PaidPenalty)

		unpaid := due.Sub(paid)
		if row.DueDate.Before(asOf) && unpaid.IsPositive() {
			sum.AmountOverdue = sum.AmountOverdue.Add(unpaid)
			sum.OverdueCount++
		}
		if sum.NextDueDate == nil && unpaid.IsPositive() {
			d := row.DueDate
			u := unpaid
			sum.NextDueDate = &d
			sum.NextDueAmount = &u
		}
	}
	sum.OutstandingBalance = sum.TotalExpected.Sub(sum.TotalPaid)
	return sum
}
