/*
schedule.go - Interest, fee and amortization math

PURPOSE:
  One pure, side-effect-free calculation path for all loan figures.
  The same functions produce the preview shown to a loan officer before
  approval AND the authoritative snapshot written at disbursement, so
  the two can never drift apart.

INTEREST MODES:
  Flat:
    total_interest = principal x periodic_rate
    The nominal rate is first normalized from its quoted period
    (annual/monthly/weekly) to the product's repayment frequency.

  Reducing balance (standard annuity):
    payment = P x r x (1+r)^n / ((1+r)^n - 1)
    total_interest = payment x n - P

  Upfront deduction:
    Interest is withheld from the disbursement instead of amortized;
    the schedule then carries principal only.

FEES:
  Fees (processing, insurance, appraisal, excise duty, credit life,
  ad-hoc extra charges) are ALWAYS deducted from the disbursement,
  never added to the repayment total.

ROUNDING:
  All figures are decimal. Schedule rows are rounded to 2dp; the final
  installment absorbs the rounding remainder so that the sum of
  principal components equals the principal exactly and balance_after
  reaches zero.

SEE ALSO:
  - application.go: Calls Quote at approval/disbursement time
  - repayment.go: Applies repayments onto the generated schedule
*/
package loan

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkopo/sacco-engine/ledger"
)

var hundred = decimal.NewFromInt(100)

// =============================================================================
// RATE NORMALIZATION
// =============================================================================

// PeriodicRate converts a nominal percent rate quoted per ratePeriod into a
// fractional rate per repayment period.
//
//	PeriodicRate(12, monthly, monthly) = 0.12
//	PeriodicRate(12, annual, monthly)  = 0.01
//	PeriodicRate(1, weekly, monthly)   = 0.01 * 52/12
func PeriodicRate(rate decimal.Decimal, ratePeriod RatePeriod, freq Frequency) decimal.Decimal {
	fraction := rate.Div(hundred)

	var perYear decimal.Decimal
	switch ratePeriod {
	case RateAnnual:
		perYear = fraction
	case RateWeekly:
		perYear = fraction.Mul(decimal.NewFromInt(52))
	default: // monthly
		perYear = fraction.Mul(decimal.NewFromInt(12))
	}
	return perYear.Div(freq.PeriodsPerYear())
}

// =============================================================================
// QUOTE - All derived figures for an amount/term against a product
// =============================================================================

// Quote carries every derived figure for a prospective or disbursed loan.
type Quote struct {
	Amount          ledger.Amount
	Term            int
	PeriodicRate    decimal.Decimal
	TotalInterest   ledger.Amount
	PeriodicPayment ledger.Amount
	TotalRepayment  ledger.Amount // what the member pays back across the schedule

	ProcessingFee ledger.Amount
	InsuranceFee  ledger.Amount
	AppraisalFee  ledger.Amount
	ExciseDuty    ledger.Amount
	CreditLifeFee ledger.Amount
	ExtraCharges  ledger.Amount

	InterestDeductedUpfront bool
	NetDisbursement         ledger.Amount
}

// NewQuote computes all derived figures for amount/term under a product.
// Pure: same inputs always give the same quote.
func NewQuote(p *Product, amount ledger.Amount, term int, extras []ExtraCharge) Quote {
	rate := PeriodicRate(p.InterestRate, p.InterestRatePeriod, p.RepaymentFrequency)
	n := decimal.NewFromInt(int64(term))

	var totalInterest ledger.Amount
	switch p.InterestType {
	case InterestReducingBalance:
		payment := annuityPayment(amount.Value, rate, term)
		totalInterest = ledger.NewAmountFromDecimal(
			payment.Mul(n).Sub(amount.Value), amount.Currency).Round2()
	default: // flat: single application of the periodic rate to principal
		totalInterest = amount.Mul(rate).Round2()
	}

	q := Quote{
		Amount:        amount,
		Term:          term,
		PeriodicRate:  rate,
		TotalInterest: totalInterest,

		ProcessingFee: amount.Mul(p.ProcessingFeeRate.Div(hundred)).Round2(),
		InsuranceFee:  amount.Mul(p.InsuranceFeeRate.Div(hundred)).Round2(),
		AppraisalFee:  amount.Mul(p.AppraisalFeeRate.Div(hundred)).Round2(),
		ExciseDuty:    amount.Mul(p.ExciseDutyRate.Div(hundred)).Round2(),
		CreditLifeFee: creditLifeFee(p, amount, term),

		InterestDeductedUpfront: p.DeductInterestUpfront,
	}

	q.ExtraCharges = amount.Zero()
	for _, e := range extras {
		q.ExtraCharges = q.ExtraCharges.Add(e.Amount)
	}

	// In upfront-deduction mode the member repays principal only; the
	// interest has already been withheld from the disbursement.
	if p.DeductInterestUpfront {
		q.TotalRepayment = amount
	} else {
		q.TotalRepayment = amount.Add(totalInterest)
	}
	q.PeriodicPayment = q.Amount.Add(q.TotalInterest).Div(n).Round2()

	q.NetDisbursement = amount.
		Sub(q.ProcessingFee).
		Sub(q.InsuranceFee).
		Sub(q.AppraisalFee).
		Sub(q.ExciseDuty).
		Sub(q.CreditLifeFee).
		Sub(q.ExtraCharges)
	if p.DeductInterestUpfront {
		q.NetDisbursement = q.NetDisbursement.Sub(totalInterest)
	}

	return q
}

// annuityPayment is the standard amortization formula:
// P*r*(1+r)^n / ((1+r)^n - 1). Falls back to P/n when r = 0.
func annuityPayment(principal, rate decimal.Decimal, term int) decimal.Decimal {
	n := decimal.NewFromInt(int64(term))
	if rate.IsZero() {
		return principal.Div(n)
	}
	onePlusR := decimal.NewFromInt(1).Add(rate)
	factor := onePlusR.Pow(n)
	return principal.Mul(rate).Mul(factor).Div(factor.Sub(decimal.NewFromInt(1)))
}

func creditLifeFee(p *Product, amount ledger.Amount, term int) ledger.Amount {
	fee := amount.Mul(p.CreditLifeRate.Div(hundred))
	if p.CreditLifeFrequency == FeePerPeriod {
		fee = fee.Mul(decimal.NewFromInt(int64(term)))
	}
	return fee.Round2()
}

// =============================================================================
// SCHEDULE GENERATION
// =============================================================================

// BuildSchedule generates the installment rows for a quote, starting one
// repayment period after firstDisbursed.
//
// INVARIANTS:
//   - sum of Principal across rows == quote.Amount exactly
//   - BalanceAfter is monotone non-increasing and ends at zero
//   - in upfront mode every Interest component is zero
func BuildSchedule(p *Product, q Quote, disbursedAt time.Time) []Installment {
	n := q.Term
	currency := q.Amount.Currency
	zero := ledger.NewAmountFromInt(0, currency)
	nDec := decimal.NewFromInt(int64(n))

	rows := make([]Installment, n)
	due := p.RepaymentFrequency.Advance(disbursedAt)
	outstanding := q.Amount

	var cumPrincipal, cumInterest ledger.Amount
	cumPrincipal, cumInterest = zero, zero

	scheduledInterest := q.TotalInterest
	if q.InterestDeductedUpfront {
		scheduledInterest = zero
	}

	for i := 0; i < n; i++ {
		var principal, interest ledger.Amount

		switch {
		case q.InterestDeductedUpfront:
			principal = q.Amount.Div(nDec).Round2()
			interest = zero
		case p.InterestType == InterestReducingBalance:
			payment := ledger.NewAmountFromDecimal(
				annuityPayment(q.Amount.Value, q.PeriodicRate, n), currency)
			interest = outstanding.Mul(q.PeriodicRate).Round2()
			principal = payment.Sub(interest).Round2()
		default: // flat
			principal = q.Amount.Div(nDec).Round2()
			interest = scheduledInterest.Div(nDec).Round2()
		}

		// Final installment absorbs all rounding drift.
		if i == n-1 {
			principal = q.Amount.Sub(cumPrincipal)
			interest = scheduledInterest.Sub(cumInterest)
		}

		cumPrincipal = cumPrincipal.Add(principal)
		cumInterest = cumInterest.Add(interest)
		outstanding = q.Amount.Sub(cumPrincipal)

		rows[i] = Installment{
			Number:        i + 1,
			DueDate:       due,
			Principal:     principal,
			Interest:      interest,
			TotalPayment:  principal.Add(interest),
			BalanceAfter:  outstanding,
			PaidPrincipal: zero,
			PaidInterest:  zero,
			PaidPenalty:   zero,
			PenaltyDue:    zero,
			Status:        InstallmentPending,
		}
		due = p.RepaymentFrequency.Advance(due)
	}
	return rows
}
