/*
handlers.go - HTTP API handlers for the SACCO lending and teller system

PURPOSE:
  Exposes the lending engine and teller cash workflows via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to
  domain logic.

ENDPOINTS:
  Products:
    GET    /api/products               List loan products
    POST   /api/products               Create/update product from JSON config
    GET    /api/products/{id}          Get product

  Members:
    GET    /api/members                List members
    POST   /api/members                Register member
    GET    /api/members/{id}           Get member
    GET    /api/members/{id}/loans     Member's applications

  Loans:
    GET    /api/loans                  List applications (?status=)
    POST   /api/loans                  Submit application
    POST   /api/loans/preview          Quote + schedule preview
    GET    /api/loans/{id}             Get application
    POST   /api/loans/{id}/review      Start review
    POST   /api/loans/{id}/approve     Approve (requires confirmed=true)
    POST   /api/loans/{id}/reject      Reject with category + detail
    POST   /api/loans/{id}/cancel      Cancel
    POST   /api/loans/{id}/resubmit    Edit and resubmit
    POST   /api/loans/{id}/disburse    Disburse (async methods go pending)
    POST   /api/loans/{id}/disbursement/confirm  Provider callback
    POST   /api/loans/{id}/disbursement/fail     Provider callback
    GET    /api/loans/{id}/schedule    Derived schedule + summary
    GET    /api/loans/{id}/repayments  List repayments
    POST   /api/loans/{id}/repayments  Record repayment

  Teller:
    GET/POST /api/floats               List / open floats
    GET    /api/floats/{id}            Get float with replayed balance
    POST   /api/floats/{id}/deposit|withdraw|replenish|reconcile
    POST   /api/floats/{id}/vault-return          Request end-of-day return
    POST   /api/floats/{id}/vault-return/accept|reject
    GET    /api/floats/{id}/transactions
    GET    /api/floats/{id}/handovers
    GET    /api/shortages              List shortages (?status=)
    POST   /api/shortages/{id}/approve|resolve
    GET    /api/vaults/{branch}        Vault balance
    POST   /api/vaults/{branch}/deposit
    POST   /api/handovers              Initiate handover
    POST   /api/handovers/{id}/accept|reject|cancel

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, eligibility failures
  - 404: Resource not found
  - 409: Conflict (idempotency, invalid state transition)
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication middleware. Actor identity comes from
  request bodies; capability gating of disbursement methods happens in
  the loan service.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mkopo/sacco-engine/ledger"
	"github.com/mkopo/sacco-engine/loan"
	"github.com/mkopo/sacco-engine/store/sqlite"
	"github.com/mkopo/sacco-engine/teller"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Loans  *loan.Service
	Teller *teller.Service
	Log    *logrus.Logger

	// Currency for request bodies that omit one.
	Currency ledger.Currency

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler wired to the given store and services.
func NewHandler(store *sqlite.Store, loans *loan.Service, tel *teller.Service, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.New()
	}
	return &Handler{
		Store:    store,
		Loans:    loans,
		Teller:   tel,
		Log:      log,
		Currency: ledger.KES,
	}
}

func (h *Handler) amount(value float64, currency string) ledger.Amount {
	c := h.Currency
	if currency != "" {
		c = ledger.Currency(currency)
	}
	return ledger.NewAmount(value, c)
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// ListProducts returns all products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Store.ListProducts(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list products", err)
		return
	}

	dtos := make([]ProductDTO, len(products))
	for i, p := range products {
		dtos[i] = ProductDTO{ID: p.ID, Name: p.Name, Config: p.JSONForm(), Version: p.Version, Active: p.IsActive}
	}
	writeJSON(w, http.StatusOK, paginate(r, dtos))
}

// CreateProduct creates or updates a product from its JSON config.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var pj loan.ProductJSON
	if err := json.NewDecoder(r.Body).Decode(&pj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if pj.ID == "" {
		pj.ID = uuid.NewString()
	}

	product, err := pj.ToProduct()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid product config", err)
		return
	}

	if err := h.Store.SaveProduct(r.Context(), product); err != nil {
		h.writeDomainError(w, "Failed to save product", err)
		return
	}

	saved, err := h.Store.GetProduct(r.Context(), product.ID)
	if err != nil {
		h.writeDomainError(w, "Failed to reload product", err)
		return
	}
	writeJSON(w, http.StatusCreated, ProductDTO{
		ID: saved.ID, Name: saved.Name, Config: saved.JSONForm(), Version: saved.Version, Active: saved.IsActive,
	})
}

// GetProduct returns one product.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Store.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to get product", err)
		return
	}
	writeJSON(w, http.StatusOK, ProductDTO{
		ID: p.ID, Name: p.Name, Config: p.JSONForm(), Version: p.Version, Active: p.IsActive,
	})
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

// ListMembers returns all members.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Store.ListMembers(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list members", err)
		return
	}
	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = toMemberDTO(m)
	}
	writeJSON(w, http.StatusOK, paginate(r, dtos))
}

// CreateMember registers a member.
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	status := loan.MemberStatus(req.Status)
	if status == "" {
		status = loan.MemberActive
	}
	goodStanding := true
	if req.GoodStanding != nil {
		goodStanding = *req.GoodStanding
	}

	m := &loan.Member{
		ID:            req.ID,
		Name:          req.Name,
		Phone:         req.Phone,
		BranchID:      req.BranchID,
		Status:        status,
		SharesBalance: h.amount(req.SharesBalance, req.Currency),
		GoodStanding:  goodStanding,
		CreatedAt:     time.Now().UTC(),
	}
	if err := h.Store.SaveMember(r.Context(), m); err != nil {
		h.writeDomainError(w, "Failed to save member", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberDTO(m))
}

// GetMember returns one member.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	m, err := h.Store.GetMember(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to get member", err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(m))
}

// GetMemberLoans returns a member's applications, newest first.
func (h *Handler) GetMemberLoans(w http.ResponseWriter, r *http.Request) {
	apps, err := h.Store.GetApplicationsByMember(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to get member loans", err)
		return
	}
	dtos := make([]ApplicationDTO, len(apps))
	for i, app := range apps {
		dtos[i] = toApplicationDTO(app)
	}
	writeJSON(w, http.StatusOK, paginate(r, dtos))
}

// =============================================================================
// LOAN APPLICATION HANDLERS
// =============================================================================

// ListLoans returns applications, optionally filtered by ?status=.
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	apps, err := h.Store.ListApplications(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.writeDomainError(w, "Failed to list applications", err)
		return
	}
	dtos := make([]ApplicationDTO, len(apps))
	for i, app := range apps {
		dtos[i] = toApplicationDTO(app)
	}
	writeJSON(w, http.StatusOK, paginate(r, dtos))
}

// SubmitLoan creates a new application.
func (h *Handler) SubmitLoan(w http.ResponseWriter, r *http.Request) {
	var req SubmitLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := loan.SubmitInput{
		MemberID:           req.MemberID,
		ProductID:          req.ProductID,
		Amount:             h.amount(req.Amount, req.Currency),
		Term:               req.Term,
		Purpose:            req.Purpose,
		PurposeDetails:     req.PurposeDetails,
		DisbursementMethod: loan.DisbursementMethod(req.DisbursementMethod),
		MpesaPhone:         req.MpesaPhone,
		BankAccount:        req.BankAccount,
		GuarantorIDs:       req.GuarantorIDs,
		SubmittedBy:        req.SubmittedBy,
	}
	for _, c := range req.Collateral {
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		in.Collateral = append(in.Collateral, loan.Collateral{
			ID: id, Description: c.Description, Value: h.amount(c.Value, req.Currency),
		})
	}
	for _, c := range req.ExtraCharges {
		in.ExtraCharges = append(in.ExtraCharges, loan.ExtraCharge{
			Name: c.Name, Amount: h.amount(c.Amount, req.Currency),
		})
	}

	app, err := h.Loans.Submit(r.Context(), in)
	if err != nil {
		h.writeDomainError(w, "Failed to submit application", err)
		return
	}
	writeJSON(w, http.StatusCreated, toApplicationDTO(app))
}

// GetLoan returns one application.
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	app, err := h.Store.GetApplication(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to get application", err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(app))
}

// StartReview moves an application into under_review.
func (h *Handler) StartReview(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	app, err := h.Loans.StartReview(r.Context(), chi.URLParam(r, "id"), req.ReviewerID)
	if err != nil {
		h.writeDomainError(w, "Failed to start review", err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(app))
}

// ApproveLoan approves an application.
func (h *Handler) ApproveLoan(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	app, err := h.Loans.Approve(r.Context(), chi.URLParam(r, "id"), loan.ApproveInput{
		ApproverID: req.ApproverID,
		Confirmed:  req.Confirmed,
		Comments:   req.Comments,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to approve application", err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(app))
}

// RejectLoan rejects an application with a categorized reason.
func (h *Handler) RejectLoan(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	app, err := h.Loans.Reject(r.Context(), chi.URLParam(r, "id"), loan.RejectInput{
		RejecterID: req.RejecterID,
		Category:   loan.RejectionCategory(req.Category),
		Detail:     req.Detail,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to reject application", err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(app))
}

// CancelLoan cancels an application.
func (h *Handler) CancelLoan(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	app, err := h.Loans.Cancel(r.Context(), chi.URLParam(r, "id"), req.ActorID)
	if err != nil {
		h.writeDomainError(w, "Failed to cancel application", err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(app))
}

// ResubmitLoan applies edits and returns an application to pending.
func (h *Handler) ResubmitLoan(w http.ResponseWriter, r *http.Request) {
	var req ResubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	edits := loan.EditInput{
		Term:           req.Term,
		Purpose:        req.Purpose,
		PurposeDetails: req.PurposeDetails,
		MpesaPhone:     req.MpesaPhone,
		BankAccount:    req.BankAccount,
		GuarantorIDs:   req.GuarantorIDs,
	}
	if req.Amount != nil {
		a := h.amount(*req.Amount, "")
		edits.Amount = &a
	}
	if req.DisbursementMethod != nil {
		m := loan.DisbursementMethod(*req.DisbursementMethod)
		edits.DisbursementMethod = &m
	}

	app, err := h.Loans.Resubmit(r.Context(), chi.URLParam(r, "id"), edits, req.ActorID)
	if err != nil {
		h.writeDomainError(w, "Failed to resubmit application", err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(app))
}

// DisburseLoan releases funds. M-Pesa disbursements park the loan in
// pending_disbursement until the provider callback; every other method
// settles at the counter.
func (h *Handler) DisburseLoan(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	app, err := h.Loans.Disburse(r.Context(), chi.URLParam(r, "id"), req.ActorID)
	if err != nil {
		h.writeDomainError(w, "Failed to disburse loan", err)
		return
	}
	loansDisbursedTotal.Inc()
	writeJSON(w, http.StatusOK, toApplicationDTO(app))
}

// ConfirmDisbursement settles a pending async disbursement.
func (h *Handler) ConfirmDisbursement(w http.ResponseWriter, r *http.Request) {
	var req DisbursementCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	app, err := h.Loans.ConfirmDisbursement(r.Context(), chi.URLParam(r, "id"), req.ProviderRef)
	if err != nil {
		h.writeDomainError(w, "Failed to confirm disbursement", err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(app))
}

// FailDisbursement returns a pending async disbursement to approved.
func (h *Handler) FailDisbursement(w http.ResponseWriter, r *http.Request) {
	var req DisbursementCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	app, err := h.Loans.FailDisbursement(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.writeDomainError(w, "Failed to mark disbursement failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(app))
}

// PreviewLoan computes a quote and schedule without creating anything.
func (h *Handler) PreviewLoan(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Amount <= 0 || req.Term <= 0 {
		writeError(w, http.StatusBadRequest, "amount and term must be positive", nil)
		return
	}

	product, err := h.Store.GetProduct(r.Context(), req.ProductID)
	if err != nil {
		h.writeDomainError(w, "Failed to get product", err)
		return
	}

	var extras []loan.ExtraCharge
	for _, c := range req.ExtraCharges {
		extras = append(extras, loan.ExtraCharge{Name: c.Name, Amount: h.amount(c.Amount, req.Currency)})
	}

	q := loan.NewQuote(product, h.amount(req.Amount, req.Currency), req.Term, extras)
	schedule := loan.BuildSchedule(product, q, time.Now().UTC())

	writeJSON(w, http.StatusOK, PreviewResponse{
		Quote:    toQuoteDTO(q),
		Schedule: toInstallmentDTOs(schedule),
	})
}

// GetSchedule returns the derived schedule and repayment summary.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	app, err := h.Store.GetApplication(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to get application", err)
		return
	}
	schedule, err := h.Loans.ScheduleFor(ctx, h.Store, app)
	if err != nil {
		h.writeDomainError(w, "Failed to build schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, ScheduleResponse{
		LoanID:   app.ID,
		Schedule: toInstallmentDTOs(schedule),
		Summary:  toSummaryDTO(loan.Summarize(schedule, time.Now().UTC())),
	})
}

// =============================================================================
// REPAYMENT HANDLERS
// =============================================================================

// ListRepayments returns a loan's repayments.
func (h *Handler) ListRepayments(w http.ResponseWriter, r *http.Request) {
	repayments, err := h.Store.GetRepaymentsByLoan(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to list repayments", err)
		return
	}
	dtos := make([]RepaymentDTO, len(repayments))
	for i, rp := range repayments {
		dtos[i] = toRepaymentDTO(rp)
	}
	writeJSON(w, http.StatusOK, paginate(r, dtos))
}

// RecordRepayment applies a payment to a disbursed loan.
func (h *Handler) RecordRepayment(w http.ResponseWriter, r *http.Request) {
	var req RecordRepaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	paymentDate := time.Now().UTC()
	if req.PaymentDate != "" {
		var err error
		paymentDate, err = time.Parse("2006-01-02", req.PaymentDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid payment_date format (use YYYY-MM-DD)", err)
			return
		}
	}

	rp, err := h.Loans.RecordRepayment(r.Context(), h.Store, chi.URLParam(r, "id"), loan.RecordInput{
		Amount:        h.amount(req.Amount, ""),
		PaymentMethod: req.PaymentMethod,
		Reference:     req.Reference,
		PaymentDate:   paymentDate,
		ReceivedBy:    req.ReceivedBy,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to record repayment", err)
		return
	}
	repaymentsRecordedTotal.Inc()
	writeJSON(w, http.StatusCreated, toRepaymentDTO(rp))
}

// =============================================================================
// FLOAT HANDLERS
// =============================================================================

// ListFloats returns a branch's floats (?branch_id=).
func (h *Handler) ListFloats(w http.ResponseWriter, r *http.Request) {
	floats, err := h.Store.ListFloats(r.Context(), r.URL.Query().Get("branch_id"))
	if err != nil {
		h.writeDomainError(w, "Failed to list floats", err)
		return
	}
	dtos := make([]FloatDTO, len(floats))
	for i, fl := range floats {
		balance, err := h.Teller.Balance(r.Context(), fl.ID)
		if err != nil {
			h.writeDomainError(w, "Failed to replay float balance", err)
			return
		}
		dtos[i] = toFloatDTO(fl, balance)
	}
	writeJSON(w, http.StatusOK, paginate(r, dtos))
}

// OpenFloat opens a teller's daily float.
func (h *Handler) OpenFloat(w http.ResponseWriter, r *http.Request) {
	var req OpenFloatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date := time.Now().UTC()
	if req.Date != "" {
		var err error
		date, err = time.Parse("2006-01-02", req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
	}

	fl, err := h.Teller.OpenFloat(r.Context(), req.StaffID, req.BranchID, date, h.amount(req.OpeningBalance, req.Currency))
	if err != nil {
		h.writeDomainError(w, "Failed to open float", err)
		return
	}
	writeJSON(w, http.StatusCreated, toFloatDTO(fl, fl.OpeningBalance))
}

// GetFloat returns a float with its replayed balance.
func (h *Handler) GetFloat(w http.ResponseWriter, r *http.Request) {
	h.respondFloat(w, r, chi.URLParam(r, "id"), http.StatusOK)
}

func (h *Handler) respondFloat(w http.ResponseWriter, r *http.Request, id string, status int) {
	fl, err := h.Teller.Floats.GetFloat(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get float", err)
		return
	}
	balance, err := h.Teller.Balance(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to replay float balance", err)
		return
	}
	writeJSON(w, status, toFloatDTO(fl, balance))
}

// FloatDeposit records cash into a float.
func (h *Handler) FloatDeposit(w http.ResponseWriter, r *http.Request) {
	h.floatMovement(w, r, h.Teller.Deposit)
}

// FloatWithdraw records cash out of a float.
func (h *Handler) FloatWithdraw(w http.ResponseWriter, r *http.Request) {
	h.floatMovement(w, r, h.Teller.Withdraw)
}

func (h *Handler) floatMovement(w http.ResponseWriter, r *http.Request,
	move func(ctx context.Context, floatID string, amount ledger.Amount, actorID, reason string) error) {
	var req CashMovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := move(r.Context(), id, h.amount(req.Amount, ""), req.ActorID, req.Reason); err != nil {
		h.writeDomainError(w, "Failed to move cash", err)
		return
	}
	h.respondFloat(w, r, id, http.StatusOK)
}

// FloatReplenish tops up a float from the branch vault.
func (h *Handler) FloatReplenish(w http.ResponseWriter, r *http.Request) {
	var req CashMovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.Teller.Replenish(r.Context(), id, h.amount(req.Amount, ""), req.ActorID); err != nil {
		h.writeDomainError(w, "Failed to replenish float", err)
		return
	}
	h.respondFloat(w, r, id, http.StatusOK)
}

// FloatReconcile closes out a float against a physical count.
func (h *Handler) FloatReconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	fl, shortage, err := h.Teller.Reconcile(r.Context(), chi.URLParam(r, "id"), h.amount(req.PhysicalCount, ""), req.ActorID)
	if err != nil {
		h.writeDomainError(w, "Failed to reconcile float", err)
		return
	}

	balance, err := h.Teller.Balance(r.Context(), fl.ID)
	if err != nil {
		h.writeDomainError(w, "Failed to replay float balance", err)
		return
	}
	resp := ReconcileResponse{Float: toFloatDTO(fl, balance)}
	if shortage != nil {
		dto := toShortageDTO(shortage)
		resp.Shortage = &dto
		shortagesRaisedTotal.Inc()
	}
	writeJSON(w, http.StatusOK, resp)
}

// FloatTransactions returns a float's ledger history.
func (h *Handler) FloatTransactions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Teller.Floats.GetFloat(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to get float", err)
		return
	}
	txs, err := h.Teller.Ledger.Transactions(r.Context(), teller.FloatAccountID(id))
	if err != nil {
		h.writeDomainError(w, "Failed to load transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, paginate(r, toTransactionDTOs(txs)))
}

// FloatHandovers returns handovers touching a float.
func (h *Handler) FloatHandovers(w http.ResponseWriter, r *http.Request) {
	handovers, err := h.Store.ListHandoversByFloat(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to list handovers", err)
		return
	}
	dtos := make([]HandoverDTO, len(handovers))
	for i, ho := range handovers {
		dtos[i] = toHandoverDTO(ho)
	}
	writeJSON(w, http.StatusOK, paginate(r, dtos))
}

// RequestVaultReturn flags a float for end-of-day cash return.
func (h *Handler) RequestVaultReturn(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	fl, err := h.Teller.RequestVaultReturn(r.Context(), chi.URLParam(r, "id"), req.ActorID)
	if err != nil {
		h.writeDomainError(w, "Failed to request vault return", err)
		return
	}
	balance, err := h.Teller.Balance(r.Context(), fl.ID)
	if err != nil {
		h.writeDomainError(w, "Failed to replay float balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toFloatDTO(fl, balance))
}

// AcceptVaultReturn moves a float's remaining cash back to the vault.
func (h *Handler) AcceptVaultReturn(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	fl, err := h.Teller.AcceptVaultReturn(r.Context(), chi.URLParam(r, "id"), req.ActorID)
	if err != nil {
		h.writeDomainError(w, "Failed to accept vault return", err)
		return
	}
	balance, err := h.Teller.Balance(r.Context(), fl.ID)
	if err != nil {
		h.writeDomainError(w, "Failed to replay float balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toFloatDTO(fl, balance))
}

// RejectVaultReturn sends a float back to open.
func (h *Handler) RejectVaultReturn(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	fl, err := h.Teller.RejectVaultReturn(r.Context(), chi.URLParam(r, "id"), req.ActorID)
	if err != nil {
		h.writeDomainError(w, "Failed to reject vault return", err)
		return
	}
	balance, err := h.Teller.Balance(r.Context(), fl.ID)
	if err != nil {
		h.writeDomainError(w, "Failed to replay float balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toFloatDTO(fl, balance))
}

// =============================================================================
// SHORTAGE HANDLERS
// =============================================================================

// ListShortages returns shortages (?status=).
func (h *Handler) ListShortages(w http.ResponseWriter, r *http.Request) {
	shortages, err := h.Store.ListShortages(r.Context(), teller.ShortageStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.writeDomainError(w, "Failed to list shortages", err)
		return
	}
	dtos := make([]ShortageDTO, len(shortages))
	for i, sh := range shortages {
		dtos[i] = toShortageDTO(sh)
	}
	writeJSON(w, http.StatusOK, paginate(r, dtos))
}

// ApproveShortage acknowledges a shortage (manager action).
func (h *Handler) ApproveShortage(w http.ResponseWriter, r *http.Request) {
	var req ActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	sh, err := h.Teller.ApproveShortage(r.Context(), chi.URLParam(r, "id"), req.ActorID)
	if err != nil {
		h.writeDomainError(w, "Failed to approve shortage", err)
		return
	}
	writeJSON(w, http.StatusOK, toShortageDTO(sh))
}

// ResolveShortage resolves a held shortage after manager re-verification.
func (h *Handler) ResolveShortage(w http.ResponseWriter, r *http.Request) {
	var req ResolveShortageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	sh, err := h.Teller.ResolveShortage(r.Context(), chi.URLParam(r, "id"),
		teller.Resolution(req.Resolution), req.ManagerID, req.ManagerPassword)
	if err != nil {
		h.writeDomainError(w, "Failed to resolve shortage", err)
		return
	}
	writeJSON(w, http.StatusOK, toShortageDTO(sh))
}

// =============================================================================
// VAULT HANDLERS
// =============================================================================

// GetVault returns a branch vault's replayed balance.
func (h *Handler) GetVault(w http.ResponseWriter, r *http.Request) {
	branchID := chi.URLParam(r, "branch")
	balance, err := h.Teller.VaultBalance(r.Context(), branchID)
	if err != nil {
		h.writeDomainError(w, "Failed to replay vault balance", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{
		AccountID: string(teller.VaultAccountID(branchID)),
		Balance:   f(balance),
		Currency:  string(balance.Currency),
	})
}

// VaultDeposit adds cash to a branch vault.
func (h *Handler) VaultDeposit(w http.ResponseWriter, r *http.Request) {
	var req VaultDepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	branchID := chi.URLParam(r, "branch")
	if err := h.Teller.VaultDeposit(r.Context(), branchID, h.amount(req.Amount, ""), req.Source, req.ActorID); err != nil {
		h.writeDomainError(w, "Failed to deposit to vault", err)
		return
	}
	balance, err := h.Teller.VaultBalance(r.Context(), branchID)
	if err != nil {
		h.writeDomainError(w, "Failed to replay vault balance", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{
		AccountID: string(teller.VaultAccountID(branchID)),
		Balance:   f(balance),
		Currency:  string(balance.Currency),
	})
}

// =============================================================================
// HANDOVER HANDLERS
// =============================================================================

// InitiateHandover starts a teller-to-teller cash handshake.
func (h *Handler) InitiateHandover(w http.ResponseWriter, r *http.Request) {
	var req InitiateHandoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	ho, err := h.Teller.InitiateHandover(r.Context(), req.FromFloatID, req.ToFloatID, h.amount(req.Amount, ""), req.ActorID)
	if err != nil {
		h.writeDomainError(w, "Failed to initiate handover", err)
		return
	}
	writeJSON(w, http.StatusCreated, toHandoverDTO(ho))
}

// AcceptHandover settles a pending handover into the receiving float.
func (h *Handler) AcceptHandover(w http.ResponseWriter, r *http.Request) {
	h.settleHandover(w, r, h.Teller.AcceptHandover)
}

// RejectHandover returns held cash to the initiating float.
func (h *Handler) RejectHandover(w http.ResponseWriter, r *http.Request) {
	h.settleHandover(w, r, h.Teller.RejectHandover)
}

// CancelHandover lets the initiator withdraw a pending handover.
func (h *Handler) CancelHandover(w http.ResponseWriter, r *http.Request) {
	h.settleHandover(w, r, h.Teller.CancelHandover)
}

func (h *Handler) settleHandover(w http.ResponseWriter, r *http.Request,
	settle func(ctx context.Context, handoverID, actorID string) (*teller.Handover, error)) {
	var req ActorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	ho, err := settle(r.Context(), chi.URLParam(r, "id"), req.ActorID)
	if err != nil {
		h.writeDomainError(w, "Failed to settle handover", err)
		return
	}
	writeJSON(w, http.StatusOK, toHandoverDTO(ho))
}

// =============================================================================
// AUDIT
// =============================================================================

// ListAudit returns the audit trail, oldest first. Filterable by
// ?account_id=, ?actor_id= and ?action=.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	var filter ledger.AuditFilter
	if v := r.URL.Query().Get("account_id"); v != "" {
		id := ledger.AccountID(v)
		filter.AccountID = &id
	}
	if v := r.URL.Query().Get("actor_id"); v != "" {
		filter.ActorID = &v
	}
	if v := r.URL.Query().Get("action"); v != "" {
		filter.Actions = []ledger.AuditAction{ledger.AuditAction(v)}
	}

	entries, err := h.Store.QueryAudit(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query audit log", err)
		return
	}
	writeJSON(w, http.StatusOK, paginate(r, toAuditEntryDTOs(entries)))
}

// =============================================================================
// ADMIN
// =============================================================================

// ResetDatabase clears all data. Dev/demo only.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	status := domainStatus(err)
	if status == http.StatusInternalServerError {
		h.Log.WithError(err).Error(message)
	}
	writeError(w, status, message, err)
}

func domainStatus(err error) int {
	var transition *loan.TransitionError
	var state *teller.StateError
	switch {
	case errors.Is(err, ledger.ErrDuplicateIdempotencyKey),
		errors.Is(err, teller.ErrFloatExists),
		errors.As(err, &transition),
		errors.As(err, &state):
		return http.StatusConflict
	case loan.IsNotFound(err), teller.IsNotFound(err), ledger.IsNotFound(err):
		return http.StatusNotFound
	case loan.IsClientError(err), teller.IsClientError(err), ledger.IsClientError(err):
		return http.StatusBadRequest
	case ledger.IsRetryable(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// paginate slices items per ?page and ?page_size, wrapping them in the
// standard envelope.
func paginate[T any](r *http.Request, items []T) PageDTO {
	page, perPage := 1, 20
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil && v > 0 {
		perPage = v
	}
	if perPage > 100 {
		perPage = 100
	}

	total := len(items)
	totalPages := (total + perPage - 1) / perPage
	if totalPages == 0 {
		totalPages = 1
	}
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}

	return PageDTO{
		Items:      items[start:end],
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}
}
