/*
scheduler_test.go - Overdue sweeper tests

PURPOSE:
  Runs the sweep over a backdated loan and checks penalty assessment,
  default flagging and idempotency of repeated sweeps.

SEE ALSO:
  - scheduler.go: Sweeper under test
  - scenarios.go: The arrears scenario used as input
*/
package api

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSweeper(s *server) *OverdueSweeper {
	log := logrus.New()
	log.SetOutput(io.Discard)
	sweeper := NewOverdueSweeper(s.handler.Store, s.handler.Loans, log)
	sweeper.DefaultAfterDays = 30
	return sweeper
}

func (s *server) overdueLoan(t *testing.T) ApplicationDTO {
	t.Helper()
	rec := s.do(t, http.MethodGet, "/api/loans", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[appPage](t, rec)
	require.Equal(t, 1, page.Total)
	return page.Items[0]
}

func TestSweeper_AssessesPenaltiesAndFlagsDefault(t *testing.T) {
	// GIVEN a loan disbursed four months ago with nothing paid
	s := newTestServer(t)
	s.loadScenario(t, "arrears")
	app := s.overdueLoan(t)

	// WHEN the sweep runs
	newTestSweeper(s).RunNow(context.Background())

	// THEN every installment past its grace period carries a penalty
	rec := s.do(t, http.MethodGet, "/api/loans/"+app.ID+"/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	schedule := decode[ScheduleResponse](t, rec)

	var penalized int
	for _, row := range schedule.Schedule {
		if row.PenaltyDue > 0 {
			penalized++
			// 5% of the unpaid 933.33 installment
			assert.InDelta(t, 46.67, row.PenaltyDue, 0.001)
		}
	}
	assert.Equal(t, 3, penalized)

	// AND the loan is flagged defaulted past the threshold
	rec = s.do(t, http.MethodGet, "/api/loans/"+app.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "defaulted", decode[ApplicationDTO](t, rec).Status)
}

func TestSweeper_RepeatSweepIsIdempotent(t *testing.T) {
	// GIVEN a loan already swept once
	s := newTestServer(t)
	s.loadScenario(t, "arrears")
	app := s.overdueLoan(t)
	sweeper := newTestSweeper(s)
	sweeper.RunNow(context.Background())

	// WHEN the sweep runs again
	sweeper.RunNow(context.Background())

	// THEN no installment is assessed twice
	rec := s.do(t, http.MethodGet, "/api/loans/"+app.ID+"/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	schedule := decode[ScheduleResponse](t, rec)

	var totalPenalty float64
	for _, row := range schedule.Schedule {
		totalPenalty += row.PenaltyDue
	}
	assert.InDelta(t, 3*46.67, totalPenalty, 0.01)
}
