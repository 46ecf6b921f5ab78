/*
scheduler.go - Automated overdue sweeper

PURPOSE:
  Periodically sweeps disbursed loans for overdue installments:
  - Assesses late-payment penalties once the grace period has lapsed
    (at most one assessment per installment)
  - Flags loans as defaulted when the oldest unpaid installment is
    older than a configurable threshold

DESIGN:
  - Runs on a cron schedule (default @daily, configurable spec)
  - Idempotent: re-running a sweep never double-assesses; the store's
    per-installment uniqueness and the ledger's idempotency keys absorb
    repeats
  - Failures on one loan are logged and do not stop the sweep

CONFIGURATION:
  - Spec:             cron expression (default "@daily")
  - DefaultAfterDays: days past due before a loan is flagged defaulted
                      (default 90, 0 disables default flagging)

USAGE:
  sweeper := NewOverdueSweeper(store, loans, log)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - loan/repayment.go: AssessPenalty, MarkDefaulted
  - metrics.go: Sweep counters
*/
package api

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/mkopo/sacco-engine/ledger"
	"github.com/mkopo/sacco-engine/loan"
	"github.com/mkopo/sacco-engine/store/sqlite"
)

// OverdueSweeper assesses penalties and flags defaults on a schedule.
type OverdueSweeper struct {
	Store *sqlite.Store
	Loans *loan.Service
	Log   *logrus.Logger

	// Spec is the cron expression. Default "@daily".
	Spec string

	// DefaultAfterDays flags a loan defaulted once its oldest unpaid
	// installment is this many days past due. 0 disables flagging.
	DefaultAfterDays int

	cron *cron.Cron
}

// NewOverdueSweeper creates a sweeper with default settings.
func NewOverdueSweeper(store *sqlite.Store, loans *loan.Service, log *logrus.Logger) *OverdueSweeper {
	if log == nil {
		log = logrus.New()
	}
	return &OverdueSweeper{
		Store:            store,
		Loans:            loans,
		Log:              log,
		Spec:             "@daily",
		DefaultAfterDays: 90,
	}
}

// Start schedules the sweep. Returns the error from an invalid spec.
func (os *OverdueSweeper) Start() error {
	os.cron = cron.New()
	if _, err := os.cron.AddFunc(os.Spec, func() { os.RunNow(context.Background()) }); err != nil {
		return err
	}
	os.cron.Start()
	os.Log.WithField("spec", os.Spec).Info("overdue sweeper started")
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (os *OverdueSweeper) Stop() {
	if os.cron != nil {
		ctx := os.cron.Stop()
		<-ctx.Done()
		os.Log.Info("overdue sweeper stopped")
	}
}

// RunNow executes one sweep immediately.
func (os *OverdueSweeper) RunNow(ctx context.Context) {
	sweepRunsTotal.Inc()
	start := time.Now()

	apps, err := os.Store.ListApplications(ctx, string(loan.StatusDisbursed))
	if err != nil {
		os.Log.WithError(err).Error("sweep: failed to list disbursed loans")
		return
	}

	var penalties, defaults int
	for _, app := range apps {
		p, d, err := os.sweepLoan(ctx, app)
		if err != nil {
			os.Log.WithError(err).WithField("loan", app.ApplicationNumber).Error("sweep: loan failed")
			continue
		}
		penalties += p
		defaults += d
	}

	os.Log.WithFields(logrus.Fields{
		"loans":     len(apps),
		"penalties": penalties,
		"defaults":  defaults,
		"took":      time.Since(start).String(),
	}).Info("sweep complete")
}

func (os *OverdueSweeper) sweepLoan(ctx context.Context, app *loan.Application) (penalties, defaults int, err error) {
	product, err := os.Loans.Products.GetProduct(ctx, app.ProductID)
	if err != nil {
		return 0, 0, err
	}
	schedule, err := os.Loans.ScheduleFor(ctx, os.Store, app)
	if err != nil {
		return 0, 0, err
	}

	now := time.Now().UTC()
	grace := time.Duration(product.GracePeriodDays) * 24 * time.Hour
	rate := product.LatePaymentPenalty.Div(hundredDec)

	assessed, err := os.Store.GetPenaltyAssessmentsByLoan(ctx, app.ID)
	if err != nil {
		return 0, 0, err
	}
	done := make(map[int]bool, len(assessed))
	for _, pa := range assessed {
		done[pa.InstallmentNo] = true
	}

	var oldestUnpaid *time.Time
	for i := range schedule {
		row := &schedule[i]
		if !now.After(row.DueDate.Add(grace)) {
			continue
		}

		remainder := row.TotalPayment.Sub(row.PaidPrincipal).Sub(row.PaidInterest)
		if !remainder.IsPositive() {
			continue
		}
		if oldestUnpaid == nil {
			due := row.DueDate
			oldestUnpaid = &due
		}

		if done[row.Number] || !rate.IsPositive() {
			continue
		}
		penalty := remainder.Mul(rate).Round2()
		if !penalty.IsPositive() {
			continue
		}
		if _, err := os.Loans.AssessPenalty(ctx, os.Store, app.ID, row.Number, penalty); err != nil {
			return penalties, defaults, err
		}
		penaltiesAssessedTotal.Inc()
		penalties++
	}

	if os.DefaultAfterDays > 0 && oldestUnpaid != nil {
		overdueFor := now.Sub(*oldestUnpaid)
		if overdueFor > time.Duration(os.DefaultAfterDays)*24*time.Hour {
			if _, err := os.Loans.MarkDefaulted(ctx, app.ID, "overdue beyond default threshold"); err != nil {
				return penalties, defaults, err
			}
			loansDefaultedTotal.Inc()
			defaults++
		}
	}
	return penalties, defaults, nil
}

var hundredDec = ledger.MustParseDecimal("100")
