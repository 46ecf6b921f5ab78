/*
handlers_test.go - End-to-end tests over the HTTP API

PURPOSE:
  Drives the full stack (router, handlers, services, SQLite store)
  through real HTTP round-trips: loan lifecycle, repayments, teller
  cash workflows, pagination and error mapping.

TEST STYLE:
  Each test spins up a fresh in-memory database and a real router,
  then exercises it with httptest. Assertions follow the
  GIVEN/WHEN/THEN structure used across the codebase.

SEE ALSO:
  - handlers.go: Handlers under test
  - server.go: Router wiring
  - scenarios_test.go: Demo scenario loaders
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkopo/sacco-engine/authz"
	"github.com/mkopo/sacco-engine/ledger"
	"github.com/mkopo/sacco-engine/loan"
	"github.com/mkopo/sacco-engine/store/sqlite"
	"github.com/mkopo/sacco-engine/teller"

	"github.com/sirupsen/logrus"
)

// =============================================================================
// FIXTURE
// =============================================================================

// server bundles the handler with its router so tests can both drive
// HTTP and reach behind it for seeding (staff credentials have no
// public endpoint).
type server struct {
	handler *Handler
	router  http.Handler
}

func newTestServer(t *testing.T) *server {
	t.Helper()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	led := ledger.NewLedger(store)

	caps := authz.NewCapabilitySet(authz.FeatureMpesa, authz.FeatureBank)
	allowed := make(map[loan.DisbursementMethod]bool)
	for method, ok := range caps.DisbursementMethods() {
		allowed[loan.DisbursementMethod(method)] = ok
	}

	loans := &loan.Service{
		Applications:   store,
		Members:        store,
		Products:       store,
		Ledger:         led,
		Audit:          store,
		AllowedMethods: allowed,
	}
	tel := &teller.Service{
		Floats:    store,
		Shortages: store,
		Handovers: store,
		Ledger:    led,
		Audit:     store,
		Verifier:  &teller.BcryptVerifier{Credentials: store},
		Currency:  ledger.KES,
	}

	log := logrus.New()
	log.SetOutput(io.Discard)

	h := NewHandler(store, loans, tel, log)
	return &server{handler: h, router: NewRouter(h)}
}

func (s *server) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

// Typed pagination envelopes. PageDTO carries items as `any`, so tests
// re-declare the envelope with concrete item types for decoding.
type appPage struct {
	Items      []ApplicationDTO `json:"items"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	PerPage    int              `json:"per_page"`
	TotalPages int              `json:"total_pages"`
}

type memberPage struct {
	Items      []MemberDTO `json:"items"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	PerPage    int         `json:"per_page"`
	TotalPages int         `json:"total_pages"`
}

type shortagePage struct {
	Items []ShortageDTO `json:"items"`
	Total int           `json:"total"`
}

type floatPage struct {
	Items []FloatDTO `json:"items"`
	Total int        `json:"total"`
}

// =============================================================================
// SEED HELPERS
// =============================================================================

func demoProduct() loan.ProductJSON {
	return loan.ProductJSON{
		ID:                 "prod-biashara",
		Name:               "Biashara Loan",
		InterestRate:       12,
		InterestRatePeriod: "monthly",
		InterestType:       "flat",
		RepaymentFrequency: "monthly",
		Currency:           "KES",
		MinAmount:          1_000,
		MaxAmount:          100_000,
		MinTerm:            1,
		MaxTerm:            24,
		Fees:               &loan.FeesJSON{Processing: 2, Insurance: 1},
		LatePaymentPenalty: 5,
		GracePeriodDays:    7,
	}
}

func (s *server) seedProduct(t *testing.T) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/products", demoProduct())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (s *server) seedMember(t *testing.T, id string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/members", CreateMemberRequest{
		ID:            id,
		Name:          "Wanjiku Kamau",
		Phone:         "+254700111222",
		BranchID:      "BR-001",
		SharesBalance: 50_000,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// submitLoan creates a pending application for mem-1 on prod-biashara.
func (s *server) submitLoan(t *testing.T) ApplicationDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/loans", SubmitLoanRequest{
		MemberID:           "mem-1",
		ProductID:          "prod-biashara",
		Amount:             10_000,
		Term:               12,
		Purpose:            "working_capital",
		DisbursementMethod: "cash",
		SubmittedBy:        "mem-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[ApplicationDTO](t, rec)
}

// =============================================================================
// LOAN LIFECYCLE
// =============================================================================

func TestAPI_LoanLifecycle(t *testing.T) {
	// GIVEN a product and an eligible member
	s := newTestServer(t)
	s.seedProduct(t)
	s.seedMember(t, "mem-1")

	// WHEN the member submits an application
	app := s.submitLoan(t)

	// THEN it is numbered and pending
	assert.Equal(t, fmt.Sprintf("LN-%d-000001", time.Now().UTC().Year()), app.ApplicationNumber)
	assert.Equal(t, "pending", app.Status)

	// WHEN it is reviewed, approved and disbursed
	rec := s.do(t, http.MethodPost, "/api/loans/"+app.ID+"/review", ReviewRequest{ReviewerID: "staff-omondi"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "under_review", decode[ApplicationDTO](t, rec).Status)

	rec = s.do(t, http.MethodPost, "/api/loans/"+app.ID+"/approve", ApproveRequest{
		ApproverID: "staff-grace", Confirmed: true, Comments: "Shares coverage verified",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decode[ApplicationDTO](t, rec)
	assert.Equal(t, "approved", approved.Status)
	assert.Equal(t, "staff-grace", approved.ApprovedBy)
	assert.InDelta(t, 1_200, approved.TotalInterest, 0.001)
	assert.InDelta(t, 11_200, approved.TotalRepayment, 0.001)
	assert.InDelta(t, 933.33, approved.PeriodicPayment, 0.001)

	rec = s.do(t, http.MethodPost, "/api/loans/"+app.ID+"/disburse", ActorRequest{ActorID: "staff-grace"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	disbursed := decode[ApplicationDTO](t, rec)

	// THEN fees are netted off and the full obligation is outstanding
	assert.Equal(t, "disbursed", disbursed.Status)
	assert.InDelta(t, 9_700, disbursed.AmountDisbursed, 0.001)
	assert.InDelta(t, 11_200, disbursed.OutstandingBalance, 0.001)
	assert.NotEmpty(t, disbursed.DisbursedAt)

	// WHEN the schedule is fetched
	rec = s.do(t, http.MethodGet, "/api/loans/"+app.ID+"/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	schedule := decode[ScheduleResponse](t, rec)

	// THEN it has one row per installment and rolls up to the obligation
	assert.Equal(t, app.ID, schedule.LoanID)
	assert.Len(t, schedule.Schedule, 12)
	assert.InDelta(t, 11_200, schedule.Summary.TotalExpected, 0.001)
	assert.InDelta(t, 11_200, schedule.Summary.OutstandingBalance, 0.001)

	// WHEN the first installment is paid
	rec = s.do(t, http.MethodPost, "/api/loans/"+app.ID+"/repayments", RecordRepaymentRequest{
		Amount: 933.33, PaymentMethod: "cash", ReceivedBy: "staff-jane",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rp := decode[RepaymentDTO](t, rec)

	// THEN the allocation splits interest before principal
	assert.Equal(t, "RP-000001", rp.RepaymentNumber)
	assert.InDelta(t, 100, rp.InterestAmount, 0.001)
	assert.InDelta(t, 833.33, rp.PrincipalAmount, 0.001)

	// AND the application reflects the payment
	rec = s.do(t, http.MethodGet, "/api/loans/"+app.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	after := decode[ApplicationDTO](t, rec)
	assert.InDelta(t, 933.33, after.AmountRepaid, 0.001)
	assert.InDelta(t, 10_266.67, after.OutstandingBalance, 0.001)
}

func TestAPI_PreviewQuotesWithoutCreating(t *testing.T) {
	// GIVEN a product
	s := newTestServer(t)
	s.seedProduct(t)

	// WHEN a preview is requested
	rec := s.do(t, http.MethodPost, "/api/loans/preview", PreviewRequest{
		ProductID: "prod-biashara", Amount: 10_000, Term: 12,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	preview := decode[PreviewResponse](t, rec)

	// THEN it carries the quote and full schedule
	assert.InDelta(t, 9_700, preview.Quote.NetDisbursement, 0.001)
	assert.InDelta(t, 933.33, preview.Quote.PeriodicPayment, 0.001)
	assert.Len(t, preview.Schedule, 12)

	// AND no application was created
	rec = s.do(t, http.MethodGet, "/api/loans", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[appPage](t, rec).Total)
}

func TestAPI_ErrorStatuses(t *testing.T) {
	s := newTestServer(t)
	s.seedProduct(t)
	s.seedMember(t, "mem-1")

	t.Run("unknown loan is 404", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/api/loans/no-such-loan", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("amount below product floor is 400", func(t *testing.T) {
		rec := s.do(t, http.MethodPost, "/api/loans", SubmitLoanRequest{
			MemberID: "mem-1", ProductID: "prod-biashara", Amount: 500, Term: 12,
			DisbursementMethod: "cash", SubmittedBy: "mem-1",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NotEmpty(t, decode[ErrorResponse](t, rec).Details)
	})

	t.Run("disbursing a pending loan is 409", func(t *testing.T) {
		app := s.submitLoan(t)
		rec := s.do(t, http.MethodPost, "/api/loans/"+app.ID+"/disburse", ActorRequest{ActorID: "staff-grace"})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestAPI_ListLoansPaginates(t *testing.T) {
	// GIVEN five registered members
	s := newTestServer(t)
	for i := 1; i <= 5; i++ {
		s.seedMember(t, fmt.Sprintf("mem-%d", i))
	}

	// WHEN listing page 3 with two per page
	rec := s.do(t, http.MethodGet, "/api/members?page=3&page_size=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[memberPage](t, rec)

	// THEN the envelope reports the slice and the totals
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.Page)
	assert.Equal(t, 2, page.PerPage)
	assert.Equal(t, 3, page.TotalPages)
}

// =============================================================================
// TELLER WORKFLOWS
// =============================================================================

// seedVault funds the branch vault so floats can be issued.
func (s *server) seedVault(t *testing.T) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/vaults/BR-001/deposit", VaultDepositRequest{
		Amount: 200_000, Source: "cit_delivery", ActorID: "staff-grace",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (s *server) openFloat(t *testing.T, staffID string, opening float64) FloatDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/floats", OpenFloatRequest{
		StaffID: staffID, BranchID: "BR-001", OpeningBalance: opening,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[FloatDTO](t, rec)
}

func TestAPI_FloatDay(t *testing.T) {
	// GIVEN a funded vault and an open float
	s := newTestServer(t)
	s.seedVault(t)

	rec := s.do(t, http.MethodGet, "/api/vaults/BR-001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 200_000, decode[BalanceDTO](t, rec).Balance, 0.001)

	fl := s.openFloat(t, "staff-jane", 50_000)
	assert.Equal(t, "open", fl.Status)
	assert.InDelta(t, 50_000, fl.CurrentBalance, 0.001)

	// THEN the vault gave up the issued cash
	rec = s.do(t, http.MethodGet, "/api/vaults/BR-001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 150_000, decode[BalanceDTO](t, rec).Balance, 0.001)

	// AND a second float for the same teller on the same day conflicts
	rec = s.do(t, http.MethodPost, "/api/floats", OpenFloatRequest{
		StaffID: "staff-jane", BranchID: "BR-001", OpeningBalance: 10_000,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// WHEN cash moves through the day
	rec = s.do(t, http.MethodPost, "/api/floats/"+fl.ID+"/deposit", CashMovementRequest{
		Amount: 12_000, ActorID: "staff-jane", Reason: "member deposit",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.InDelta(t, 62_000, decode[FloatDTO](t, rec).CurrentBalance, 0.001)

	rec = s.do(t, http.MethodPost, "/api/floats/"+fl.ID+"/withdraw", CashMovementRequest{
		Amount: 5_000, ActorID: "staff-jane", Reason: "member withdrawal",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.InDelta(t, 57_000, decode[FloatDTO](t, rec).CurrentBalance, 0.001)

	// THEN overdrawing the float is a client error, not a conflict
	rec = s.do(t, http.MethodPost, "/api/floats/"+fl.ID+"/withdraw", CashMovementRequest{
		Amount: 100_000, ActorID: "staff-jane", Reason: "member withdrawal",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// AND the float's ledger history is readable
	rec = s.do(t, http.MethodGet, "/api/floats/"+fl.ID+"/transactions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_ReconcileShortageFlow(t *testing.T) {
	// GIVEN an open float holding 50,000 and a manager on file
	s := newTestServer(t)
	s.seedVault(t)
	fl := s.openFloat(t, "staff-jane", 50_000)

	hash, err := teller.HashPassword("manager123")
	require.NoError(t, err)
	require.NoError(t, s.handler.Store.SaveStaffCredential(context.Background(), &teller.StaffCredential{
		StaffID: "staff-grace", PasswordHash: hash, Role: "branch_manager",
	}))

	// WHEN the teller counts 1,500 less than the ledger says
	rec := s.do(t, http.MethodPost, "/api/floats/"+fl.ID+"/reconcile", ReconcileRequest{
		PhysicalCount: 48_500, ActorID: "staff-jane",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	recon := decode[ReconcileResponse](t, rec)

	// THEN the float parks pending approval with a shortage raised
	assert.Equal(t, "pending_approval", recon.Float.Status)
	require.NotNil(t, recon.Float.Variance)
	assert.InDelta(t, -1_500, *recon.Float.Variance, 0.001)
	require.NotNil(t, recon.Shortage)
	assert.InDelta(t, 1_500, recon.Shortage.Amount, 0.001)
	assert.Equal(t, "pending", recon.Shortage.Status)

	rec = s.do(t, http.MethodGet, "/api/shortages?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[shortagePage](t, rec).Total)

	// WHEN the manager acknowledges and resolves it
	rec = s.do(t, http.MethodPost, "/api/shortages/"+recon.Shortage.ID+"/approve", ActorRequest{ActorID: "staff-grace"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "held", decode[ShortageDTO](t, rec).Status)

	// THEN resolution demands the manager's real password
	rec = s.do(t, http.MethodPost, "/api/shortages/"+recon.Shortage.ID+"/resolve", ResolveShortageRequest{
		Resolution: "deduct_from_salary", ManagerID: "staff-grace", ManagerPassword: "wrong",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/shortages/"+recon.Shortage.ID+"/resolve", ResolveShortageRequest{
		Resolution: "deduct_from_salary", ManagerID: "staff-grace", ManagerPassword: "manager123",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resolved := decode[ShortageDTO](t, rec)
	assert.Equal(t, "resolved_deduct", resolved.Status)
	assert.Equal(t, "staff-grace", resolved.ResolvedBy)
}

func TestAPI_HandoverHandshake(t *testing.T) {
	// GIVEN two open floats
	s := newTestServer(t)
	s.seedVault(t)
	jane := s.openFloat(t, "staff-jane", 50_000)
	otieno := s.openFloat(t, "staff-otieno", 30_000)

	// WHEN jane hands 10,000 to otieno
	rec := s.do(t, http.MethodPost, "/api/handovers", InitiateHandoverRequest{
		FromFloatID: jane.ID, ToFloatID: otieno.ID, Amount: 10_000, ActorID: "staff-jane",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	ho := decode[HandoverDTO](t, rec)
	assert.Equal(t, "pending", ho.Status)

	// THEN the cash is held out of jane's float until acceptance
	rec = s.do(t, http.MethodGet, "/api/floats/"+jane.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 40_000, decode[FloatDTO](t, rec).CurrentBalance, 0.001)

	// WHEN otieno accepts
	rec = s.do(t, http.MethodPost, "/api/handovers/"+ho.ID+"/accept", ActorRequest{ActorID: "staff-otieno"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	settled := decode[HandoverDTO](t, rec)
	assert.Equal(t, "accepted", settled.Status)
	assert.Equal(t, "staff-otieno", settled.SettledBy)

	rec = s.do(t, http.MethodGet, "/api/floats/"+otieno.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 40_000, decode[FloatDTO](t, rec).CurrentBalance, 0.001)

	// AND the handover shows up against the float
	rec = s.do(t, http.MethodGet, "/api/floats/"+jane.ID+"/handovers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// ADMIN
// =============================================================================

func TestAPI_ResetClearsEverything(t *testing.T) {
	// GIVEN data in every corner
	s := newTestServer(t)
	s.seedProduct(t)
	s.seedMember(t, "mem-1")
	s.seedVault(t)
	s.openFloat(t, "staff-jane", 20_000)
	s.submitLoan(t)

	// WHEN the database is reset
	rec := s.do(t, http.MethodPost, "/api/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN the lists come back empty
	rec = s.do(t, http.MethodGet, "/api/loans", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[appPage](t, rec).Total)

	rec = s.do(t, http.MethodGet, "/api/floats?branch_id=BR-001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[floatPage](t, rec).Total)
}

// =============================================================================
// AUDIT TRAIL
// =============================================================================

type auditPage struct {
	Items []AuditEntryDTO `json:"items"`
	Total int             `json:"total"`
}

func TestAPI_AuditTrail(t *testing.T) {
	// GIVEN a loan taken through submit, review and approve
	s := newTestServer(t)
	s.seedProduct(t)
	s.seedMember(t, "mem-1")
	app := s.submitLoan(t)

	rec := s.do(t, http.MethodPost, "/api/loans/"+app.ID+"/review", ReviewRequest{ReviewerID: "staff-omondi"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPost, "/api/loans/"+app.ID+"/approve", ApproveRequest{
		ApproverID: "staff-grace", Confirmed: true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// WHEN reading the audit trail
	rec = s.do(t, http.MethodGet, "/api/audit", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	trail := decode[auditPage](t, rec)

	// THEN every state change is on record, oldest first
	var actions []string
	for _, e := range trail.Items {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, "loan_submitted")
	assert.Contains(t, actions, "loan_approved")

	// AND the filters narrow it down
	rec = s.do(t, http.MethodGet, "/api/audit?action=loan_approved", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	approvals := decode[auditPage](t, rec)
	require.Equal(t, 1, approvals.Total)
	assert.Equal(t, "staff-grace", approvals.Items[0].ActorID)
	assert.Equal(t, app.ApplicationNumber, approvals.Items[0].Reference)

	rec = s.do(t, http.MethodGet, "/api/audit?actor_id=nobody", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[auditPage](t, rec).Total)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestDomainStatus_RetryableMapsToServiceUnavailable(t *testing.T) {
	// Lock contention clears on retry; clients should see 503, not 500.
	assert.Equal(t, http.StatusServiceUnavailable, domainStatus(ledger.ErrConcurrentModification))
	assert.Equal(t, http.StatusServiceUnavailable,
		domainStatus(fmt.Errorf("append failed: %w", ledger.ErrConcurrentModification)))
	assert.Equal(t, http.StatusInternalServerError, domainStatus(fmt.Errorf("disk full")))
}
