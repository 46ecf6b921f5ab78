/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates products, members,
	staff, vault cash and loans that demonstrate specific workflows.

AVAILABLE SCENARIOS:

	branch-day:   Vault funded, two teller floats open, cash moving
	loan-cycle:   Flat-rate loan submitted, approved, disbursed, first
	              repayment recorded
	arrears:      Loan disbursed four months ago with no repayments, ready
	              for the overdue sweeper

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create products and members
 3. Seed staff credentials and vault cash
 4. Open floats / run the loan lifecycle

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "loan-cycle"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.
	The demo manager password is "manager123".

SEE ALSO:
  - handlers.go: writeJSON/writeError helpers
  - loan/product.go: Product config form
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mkopo/sacco-engine/ledger"
	"github.com/mkopo/sacco-engine/loan"
	"github.com/mkopo/sacco-engine/teller"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "branch-day",
		Name:        "Branch Day",
		Description: "Funded vault, two open teller floats, deposits, a withdrawal and a pending handover",
	},
	{
		ID:          "loan-cycle",
		Name:        "Loan Cycle",
		Description: "Flat-rate loan taken from submission through disbursement and a first repayment",
	},
	{
		ID:          "arrears",
		Name:        "Arrears",
		Description: "Loan disbursed four months ago with no repayments; sweep it to see penalties and default flagging",
	},
}

// ListScenarios returns the available demo scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the most recently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"scenario_id": h.currentScenario})
}

// LoadScenario resets the database and loads the requested scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "branch-day":
		err = h.loadBranchDayScenario(ctx)
	case "loan-cycle":
		err = h.loadLoanCycleScenario(ctx)
	case "arrears":
		err = h.loadArrearsScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario: %s", req.ScenarioID), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario_id": req.ScenarioID})
}

// =============================================================================
// SHARED SEED DATA
// =============================================================================

const (
	demoBranch          = "BR-001"
	demoManagerID       = "staff-grace"
	demoManagerPassword = "manager123"
)

func (h *Handler) seedBranch(ctx context.Context) error {
	hash, err := teller.HashPassword(demoManagerPassword)
	if err != nil {
		return err
	}
	staff := []*teller.StaffCredential{
		{StaffID: demoManagerID, PasswordHash: hash, Role: "branch_manager"},
		{StaffID: "staff-jane", PasswordHash: hash, Role: "teller"},
		{StaffID: "staff-otieno", PasswordHash: hash, Role: "teller"},
	}
	for _, s := range staff {
		if err := h.Store.SaveStaffCredential(ctx, s); err != nil {
			return err
		}
	}

	return h.Teller.VaultDeposit(ctx, demoBranch,
		ledger.NewAmount(500_000, ledger.KES), "cit_delivery", demoManagerID)
}

func (h *Handler) seedProductAndMember(ctx context.Context) (*loan.Product, *loan.Member, error) {
	pj := loan.ProductJSON{
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
		Fees: &loan.FeesJSON{
			Processing: 2,
			Insurance:  1,
		},
		LatePaymentPenalty: 5,
		GracePeriodDays:    7,
	}
	product, err := pj.ToProduct()
	if err != nil {
		return nil, nil, err
	}
	if err := h.Store.SaveProduct(ctx, product); err != nil {
		return nil, nil, err
	}

	member := &loan.Member{
		ID:            "mem-wanjiku",
		Name:          "Wanjiku Kamau",
		Phone:         "+254700111222",
		BranchID:      demoBranch,
		Status:        loan.MemberActive,
		SharesBalance: ledger.NewAmount(50_000, ledger.KES),
		GoodStanding:  true,
		CreatedAt:     time.Now().UTC(),
	}
	if err := h.Store.SaveMember(ctx, member); err != nil {
		return nil, nil, err
	}
	return product, member, nil
}

func (h *Handler) runLoanToDisbursed(ctx context.Context, member *loan.Member) (*loan.Application, error) {
	app, err := h.Loans.Submit(ctx, loan.SubmitInput{
		MemberID:           member.ID,
		ProductID:          "prod-biashara",
		Amount:             ledger.NewAmount(10_000, ledger.KES),
		Term:               12,
		Purpose:            "working_capital",
		PurposeDetails:     "Market stall restocking",
		DisbursementMethod: loan.MethodCash,
		SubmittedBy:        member.ID,
	})
	if err != nil {
		return nil, err
	}
	if _, err := h.Loans.StartReview(ctx, app.ID, "staff-omondi"); err != nil {
		return nil, err
	}
	if _, err := h.Loans.Approve(ctx, app.ID, loan.ApproveInput{
		ApproverID: demoManagerID,
		Confirmed:  true,
		Comments:   "Shares coverage verified",
	}); err != nil {
		return nil, err
	}
	return h.Loans.Disburse(ctx, app.ID, demoManagerID)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadBranchDayScenario(ctx context.Context) error {
	if err := h.seedBranch(ctx); err != nil {
		return err
	}

	today := time.Now().UTC()
	jane, err := h.Teller.OpenFloat(ctx, "staff-jane", demoBranch, today, ledger.NewAmount(50_000, ledger.KES))
	if err != nil {
		return err
	}
	otieno, err := h.Teller.OpenFloat(ctx, "staff-otieno", demoBranch, today, ledger.NewAmount(30_000, ledger.KES))
	if err != nil {
		return err
	}

	if err := h.Teller.Deposit(ctx, jane.ID, ledger.NewAmount(12_500, ledger.KES), "staff-jane", "member deposit"); err != nil {
		return err
	}
	if err := h.Teller.Withdraw(ctx, jane.ID, ledger.NewAmount(4_000, ledger.KES), "staff-jane", "member withdrawal"); err != nil {
		return err
	}
	if err := h.Teller.Deposit(ctx, otieno.ID, ledger.NewAmount(7_800, ledger.KES), "staff-otieno", "member deposit"); err != nil {
		return err
	}

	// Left pending so the demo can walk the accept/reject handshake.
	_, err = h.Teller.InitiateHandover(ctx, jane.ID, otieno.ID, ledger.NewAmount(10_000, ledger.KES), "staff-jane")
	return err
}

func (h *Handler) loadLoanCycleScenario(ctx context.Context) error {
	if err := h.seedBranch(ctx); err != nil {
		return err
	}
	_, member, err := h.seedProductAndMember(ctx)
	if err != nil {
		return err
	}
	app, err := h.runLoanToDisbursed(ctx, member)
	if err != nil {
		return err
	}

	_, err = h.Loans.RecordRepayment(ctx, h.Store, app.ID, loan.RecordInput{
		Amount:        app.PeriodicPayment,
		PaymentMethod: "mpesa",
		Reference:     "QDX7H2K9PL",
		PaymentDate:   time.Now().UTC(),
		ReceivedBy:    "staff-jane",
	})
	return err
}

func (h *Handler) loadArrearsScenario(ctx context.Context) error {
	if err := h.seedBranch(ctx); err != nil {
		return err
	}
	_, member, err := h.seedProductAndMember(ctx)
	if err != nil {
		return err
	}
	app, err := h.runLoanToDisbursed(ctx, member)
	if err != nil {
		return err
	}

	// Backdate the disbursement so several installments are past due.
	past := time.Now().UTC().AddDate(0, -4, 0)
	app.DisbursedAt = &past
	app.UpdatedAt = time.Now().UTC()
	return h.Store.SaveApplication(ctx, app)
}
