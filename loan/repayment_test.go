package loan_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkopo/sacco-engine/ledger"
	"github.com/mkopo/sacco-engine/loan"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// disbursedLoan runs a 10,000 @ 12 months flat loan through to disbursed.
// Figures: interest 1200, total repayment 11200, periodic payment 933.33.
func disbursedLoan(t *testing.T) (*fixture, *loan.Application) {
	t.Helper()
	fx := newFixture()
	app := fx.submit(t)
	fx.approve(t, app.ID)
	disbursed, err := fx.svc.Disburse(context.Background(), app.ID, "staff-1")
	require.NoError(t, err)
	return fx, disbursed
}

// =============================================================================
// ALLOCATION
// =============================================================================

func TestAllocate_PenaltyThenInterestThenPrincipal(t *testing.T) {
	// GIVEN: A schedule whose first installment carries a 500 penalty
	// WHEN: Allocating 700
	// THEN: Penalty settles first, then interest, then principal

	p := flatProduct()
	q := loan.NewQuote(p, kes(10000), 12, nil)
	schedule := loan.BuildSchedule(p, q, disbursedAt)
	schedule[0].PenaltyDue = kes(500)

	alloc, remainder := loan.Allocate(schedule, kes(700), disbursedAt)

	assert.True(t, remainder.IsZero())
	assert.True(t, alloc.Penalty.Equal(kes(500)))
	// row interest is 1200/12 = 100
	assert.True(t, alloc.Interest.Equal(kes(100)))
	assert.True(t, alloc.Principal.Equal(kes(100)))
	assert.Equal(t, loan.InstallmentPartial, schedule[0].Status)
}

func TestAllocate_OldestDueFirst(t *testing.T) {
	// GIVEN: A 12-row schedule
	// WHEN: Allocating two full installments' worth
	// THEN: Rows 1 and 2 are paid in order, row 3 untouched

	p := flatProduct()
	q := loan.NewQuote(p, kes(10000), 12, nil)
	schedule := loan.BuildSchedule(p, q, disbursedAt)

	twoPayments := schedule[0].TotalPayment.Add(schedule[1].TotalPayment)
	_, remainder := loan.Allocate(schedule, twoPayments, disbursedAt)

	assert.True(t, remainder.IsZero())
	assert.Equal(t, loan.InstallmentPaid, schedule[0].Status)
	assert.Equal(t, loan.InstallmentPaid, schedule[1].Status)
	assert.True(t, schedule[2].PaidPrincipal.IsZero())
	assert.True(t, schedule[2].PaidInterest.IsZero())
}

func TestAllocate_ReturnsUnappliedRemainder(t *testing.T) {
	p := flatProduct()
	q := loan.NewQuote(p, kes(10000), 12, nil)
	schedule := loan.BuildSchedule(p, q, disbursedAt)

	_, remainder := loan.Allocate(schedule, kes(12000), disbursedAt)
	assert.True(t, remainder.Equal(kes(800)), "remainder: %s", remainder)
}

// =============================================================================
// RECORD REPAYMENT
// =============================================================================

func TestRecordRepayment_OutstandingTracksTotalPaid(t *testing.T) {
	// GIVEN: A disbursed loan owing 11,200
	// WHEN: Recording partial payments of 933.33 and 500
	// THEN: Outstanding always equals expected minus paid

	fx, app := disbursedLoan(t)
	ctx := context.Background()

	r1, err := fx.svc.RecordRepayment(ctx, fx.store, app.ID, loan.RecordInput{
		Amount: kes(933.33), PaymentMethod: "cash", ReceivedBy: "staff-1",
	})
	require.NoError(t, err)
	// First installment: 100 interest then principal.
	assert.True(t, r1.InterestAmount.Equal(kes(100)))
	assert.True(t, r1.PrincipalAmount.Equal(kes(833.33)))

	after1, err := fx.store.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.True(t, after1.OutstandingBalance.Equal(kes(10266.67)), "outstanding: %s", after1.OutstandingBalance)

	_, err = fx.svc.RecordRepayment(ctx, fx.store, app.ID, loan.RecordInput{
		Amount: kes(500), PaymentMethod: "mpesa", Reference: "QX12", ReceivedBy: "staff-1",
	})
	require.NoError(t, err)

	after2, err := fx.store.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.True(t, after2.OutstandingBalance.Equal(kes(9766.67)))
	assert.True(t, after2.AmountRepaid.Equal(kes(1433.33)))
}

func TestRecordRepayment_OverpaymentRejected(t *testing.T) {
	fx, app := disbursedLoan(t)

	_, err := fx.svc.RecordRepayment(context.Background(), fx.store, app.ID, loan.RecordInput{
		Amount: kes(20000), PaymentMethod: "cash", ReceivedBy: "staff-1",
	})
	require.ErrorIs(t, err, loan.ErrOverpayment)
}

func TestRecordRepayment_FullPaymentCompletesLoan(t *testing.T) {
	// GIVEN: A disbursed loan owing 11,200
	// WHEN: Paying the full amount
	// THEN: Outstanding reaches zero and the loan completes

	fx, app := disbursedLoan(t)
	ctx := context.Background()

	_, err := fx.svc.RecordRepayment(ctx, fx.store, app.ID, loan.RecordInput{
		Amount: kes(11200), PaymentMethod: "bank_transfer", ReceivedBy: "staff-1",
	})
	require.NoError(t, err)

	done, err := fx.store.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.StatusCompleted, done.Status)
	assert.True(t, done.OutstandingBalance.IsZero())
}

func TestRecordRepayment_NotDisbursedRejected(t *testing.T) {
	fx := newFixture()
	app := fx.submit(t)

	_, err := fx.svc.RecordRepayment(context.Background(), fx.store, app.ID, loan.RecordInput{
		Amount: kes(100), PaymentMethod: "cash", ReceivedBy: "staff-1",
	})
	require.ErrorIs(t, err, loan.ErrNotDisbursed)
}

func TestRecordRepayment_PostsNegativeLedgerEntry(t *testing.T) {
	fx, app := disbursedLoan(t)
	ctx := context.Background()

	_, err := fx.svc.RecordRepayment(ctx, fx.store, app.ID, loan.RecordInput{
		Amount: kes(1000), PaymentMethod: "cash", ReceivedBy: "staff-1",
	})
	require.NoError(t, err)

	balance, err := fx.ledger.Balance(ctx,
		ledger.AccountID("loan:"+app.ApplicationNumber), ledger.KES)
	require.NoError(t, err)
	// 9700 disbursed - 1000 repaid
	assert.True(t, balance.Equal(kes(8700)), "balance: %s", balance)
}

// =============================================================================
// PENALTIES
// =============================================================================

func TestAssessPenalty_OncePerInstallment(t *testing.T) {
	// GIVEN: A disbursed loan
	// WHEN: Assessing the same installment twice
	// THEN: The second call is a no-op returning the original assessment

	fx, app := disbursedLoan(t)
	ctx := context.Background()

	first, err := fx.svc.AssessPenalty(ctx, fx.store, app.ID, 1, kes(500))
	require.NoError(t, err)

	second, err := fx.svc.AssessPenalty(ctx, fx.store, app.ID, 1, kes(999))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.Amount.Equal(kes(500)))

	after, err := fx.store.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.True(t, after.OutstandingBalance.Equal(kes(11700)), "penalty applied once: %s", after.OutstandingBalance)
}

func TestAssessPenalty_RaisesInstallmentPenaltyDue(t *testing.T) {
	fx, app := disbursedLoan(t)
	ctx := context.Background()

	_, err := fx.svc.AssessPenalty(ctx, fx.store, app.ID, 2, kes(250))
	require.NoError(t, err)

	current, err := fx.store.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	schedule, err := fx.svc.ScheduleFor(ctx, fx.store, current)
	require.NoError(t, err)
	assert.True(t, schedule[1].PenaltyDue.Equal(kes(250)))
	assert.True(t, schedule[0].PenaltyDue.IsZero())
}

// =============================================================================
// SUMMARY
// =============================================================================

func TestSummarize_OverdueAndNextDue(t *testing.T) {
	// GIVEN: A 12-row schedule viewed 2.5 months after disbursement
	// WHEN: Summarizing with no payments
	// THEN: Two rows are overdue and the earliest unpaid row is next due

	p := flatProduct()
	q := loan.NewQuote(p, kes(10000), 12, nil)
	schedule := loan.BuildSchedule(p, q, disbursedAt)

	asOf := disbursedAt.AddDate(0, 2, 15)
	sum := loan.Summarize(schedule, asOf)

	assert.Equal(t, 2, sum.OverdueCount)
	expectedOverdue := schedule[0].TotalPayment.Add(schedule[1].TotalPayment)
	assert.True(t, sum.AmountOverdue.Equal(expectedOverdue))
	require.NotNil(t, sum.NextDueDate)
	assert.Equal(t, schedule[0].DueDate, *sum.NextDueDate)
	assert.True(t, sum.OutstandingBalance.Equal(kes(11200)))
}

func TestSummarize_InvariantUnderPartials(t *testing.T) {
	// Outstanding must equal expected minus paid after any payment sequence.

	p := flatProduct()
	q := loan.NewQuote(p, kes(10000), 12, nil)
	schedule := loan.BuildSchedule(p, q, disbursedAt)
	asOf := disbursedAt.Add(time.Hour)

	for _, payment := range []float64{250, 933.33, 17.5, 4000} {
		loan.Allocate(schedule, kes(payment), asOf)
		sum := loan.Summarize(schedule, asOf)
		assert.True(t, sum.OutstandingBalance.Equal(sum.TotalExpected.Sub(sum.TotalPaid)))
	}

	sum := loan.Summarize(schedule, asOf)
	assert.True(t, sum.TotalPaid.Equal(kes(5200.83)), "paid: %s", sum.TotalPaid)
}
