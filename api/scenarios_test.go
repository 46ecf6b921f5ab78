/*
scenarios_test.go - Demo scenario loader tests

PURPOSE:
  Verifies each demo scenario seeds the state it advertises, through
  the same HTTP surface the demo UI uses.

SEE ALSO:
  - scenarios.go: Loaders under test
  - handlers_test.go: Server fixture and HTTP helpers
*/
package api

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *server) loadScenario(t *testing.T, id string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestScenarios_Listed(t *testing.T) {
	// GIVEN a fresh server
	s := newTestServer(t)

	// WHEN the scenario catalog is fetched
	rec := s.do(t, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]ScenarioDTO](t, rec)

	// THEN all three demos are advertised
	require.Len(t, list, 3)
	ids := []string{list[0].ID, list[1].ID, list[2].ID}
	assert.ElementsMatch(t, []string{"branch-day", "loan-cycle", "arrears"}, ids)
}

func TestScenarios_UnknownIDRejected(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "no-such-demo"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScenarios_BranchDay(t *testing.T) {
	// GIVEN the branch-day scenario
	s := newTestServer(t)
	s.loadScenario(t, "branch-day")

	// THEN the current scenario is recorded
	rec := s.do(t, http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "branch-day", decode[map[string]string](t, rec)["scenario_id"])

	// AND two teller floats are open for the branch
	rec = s.do(t, http.MethodGet, "/api/floats?branch_id=BR-001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	floats := decode[floatPage](t, rec)
	require.Equal(t, 2, floats.Total)

	var jane FloatDTO
	for _, fl := range floats.Items {
		assert.Equal(t, "open", fl.Status)
		if fl.StaffID == "staff-jane" {
			jane = fl
		}
	}
	require.NotEmpty(t, jane.ID)

	// AND jane's pending handover is waiting for the handshake
	rec = s.do(t, http.MethodGet, "/api/floats/"+jane.ID+"/handovers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	handovers := decode[struct {
		Items []HandoverDTO `json:"items"`
	}](t, rec)
	require.Len(t, handovers.Items, 1)
	assert.Equal(t, "pending", handovers.Items[0].Status)
	assert.InDelta(t, 10_000, handovers.Items[0].Amount, 0.001)
}

func TestScenarios_LoanCycle(t *testing.T) {
	// GIVEN the loan-cycle scenario
	s := newTestServer(t)
	s.loadScenario(t, "loan-cycle")

	// THEN one disbursed loan exists with its first installment paid
	rec := s.do(t, http.MethodGet, "/api/loans", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[appPage](t, rec)
	require.Equal(t, 1, page.Total)

	app := page.Items[0]
	assert.Equal(t, "disbursed", app.Status)
	assert.Equal(t, "mem-wanjiku", app.MemberID)
	assert.InDelta(t, 933.33, app.AmountRepaid, 0.001)
	assert.InDelta(t, 10_266.67, app.OutstandingBalance, 0.001)
}

func TestScenarios_Arrears(t *testing.T) {
	// GIVEN the arrears scenario
	s := newTestServer(t)
	s.loadScenario(t, "arrears")

	// THEN the loan is disbursed, unpaid, and backdated several months
	rec := s.do(t, http.MethodGet, "/api/loans", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[appPage](t, rec)
	require.Equal(t, 1, page.Total)

	app := page.Items[0]
	assert.Equal(t, "disbursed", app.Status)
	assert.InDelta(t, 0, app.AmountRepaid, 0.001)

	disbursedAt, err := time.Parse(time.RFC3339, app.DisbursedAt)
	require.NoError(t, err)
	assert.True(t, disbursedAt.Before(time.Now().UTC().AddDate(0, -3, 0)))

	// AND the schedule already shows overdue installments
	rec = s.do(t, http.MethodGet, "/api/loans/"+app.ID+"/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	schedule := decode[ScheduleResponse](t, rec)
	assert.Greater(t, schedule.Summary.OverdueCount, 0)
}
