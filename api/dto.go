/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY AT THE BOUNDARY:
  Amounts cross the API as float64 JSON numbers. Internally everything
  is decimal; conversion happens exactly once, here. Rounding artifacts
  from the float boundary never feed back into domain math.

PAGINATION:
  List endpoints accept ?page and ?page_size and respond with the
  envelope {items, total, page, per_page, total_pages}.

VALIDATION:
  Validation is done in handlers and domain services, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - loan/product.go: ProductJSON config form
*/
package api

import (
	"time"

	"github.com/mkopo/sacco-engine/ledger"
	"github.com/mkopo/sacco-engine/loan"
	"github.com/mkopo/sacco-engine/teller"
)

// =============================================================================
// COMMON
// =============================================================================

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// PageDTO is the pagination envelope for list endpoints.
type PageDTO struct {
	Items      any `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
}

// =============================================================================
// PRODUCTS
// =============================================================================

// ProductDTO represents a loan product in API responses.
type ProductDTO struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Config  loan.ProductJSON `json:"config"`
	Version int              `json:"version"`
	Active  bool             `json:"is_active"`
}

// =============================================================================
// MEMBERS
// =============================================================================

// MemberDTO represents a member in API responses.
type MemberDTO struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Phone         string  `json:"phone,omitempty"`
	BranchID      string  `json:"branch_id,omitempty"`
	Status        string  `json:"status"`
	SharesBalance float64 `json:"shares_balance"`
	Currency      string  `json:"currency"`
	GoodStanding  bool    `json:"good_standing"`
	CreatedAt     string  `json:"created_at,omitempty"`
}

// CreateMemberRequest is the request to register a member.
type CreateMemberRequest struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Phone         string  `json:"phone"`
	BranchID      string  `json:"branch_id"`
	Status        string  `json:"status"`
	SharesBalance float64 `json:"shares_balance"`
	Currency      string  `json:"currency"`
	GoodStanding  *bool   `json:"good_standing"`
}

// =============================================================================
// LOAN APPLICATIONS
// =============================================================================

// CollateralDTO is one pledged asset.
type CollateralDTO struct {
	ID          string  `json:"id,omitempty"`
	Description string  `json:"description"`
	Value       float64 `json:"value"`
}

// ExtraChargeDTO is one product-external charge on an application.
type ExtraChargeDTO struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

// SubmitLoanRequest is the request body for a new application.
type SubmitLoanRequest struct {
	MemberID       string  `json:"member_id"`
	ProductID      string  `json:"product_id"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	Term           int     `json:"term"`
	Purpose        string  `json:"purpose"`
	PurposeDetails string  `json:"purpose_details"`

	DisbursementMethod string `json:"disbursement_method"`
	MpesaPhone         string `json:"mpesa_phone,omitempty"`
	BankAccount        string `json:"bank_account,omitempty"`

	GuarantorIDs []string         `json:"guarantor_ids,omitempty"`
	Collateral   []CollateralDTO  `json:"collateral,omitempty"`
	ExtraCharges []ExtraChargeDTO `json:"extra_charges,omitempty"`

	SubmittedBy string `json:"submitted_by"`
}

// ApplicationDTO is the full application view.
type ApplicationDTO struct {
	ID                 string  `json:"id"`
	ApplicationNumber  string  `json:"application_number"`
	MemberID           string  `json:"member_id"`
	ProductID          string  `json:"product_id"`
	Amount             float64 `json:"amount"`
	Currency           string  `json:"currency"`
	Term               int     `json:"term"`
	Purpose            string  `json:"purpose,omitempty"`
	PurposeDetails     string  `json:"purpose_details,omitempty"`
	DisbursementMethod string  `json:"disbursement_method"`
	MpesaPhone         string  `json:"mpesa_phone,omitempty"`
	BankAccount        string  `json:"bank_account,omitempty"`

	GuarantorIDs []string         `json:"guarantor_ids,omitempty"`
	Collateral   []CollateralDTO  `json:"collateral,omitempty"`
	ExtraCharges []ExtraChargeDTO `json:"extra_charges,omitempty"`

	Status          string `json:"status"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	ReviewComments  string `json:"review_comments,omitempty"`

	InterestRate            float64 `json:"interest_rate"`
	TotalInterest           float64 `json:"total_interest"`
	PeriodicPayment         float64 `json:"periodic_payment"`
	TotalRepayment          float64 `json:"total_repayment"`
	ProcessingFee           float64 `json:"processing_fee"`
	InsuranceFee            float64 `json:"insurance_fee"`
	AmountDisbursed         float64 `json:"amount_disbursed"`
	AmountRepaid            float64 `json:"amount_repaid"`
	OutstandingBalance      float64 `json:"outstanding_balance"`
	InterestDeductedUpfront bool    `json:"interest_deducted_upfront"`

	ApprovedBy  string `json:"approved_by,omitempty"`
	ApprovedAt  string `json:"approved_at,omitempty"`
	DisbursedAt string `json:"disbursed_at,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// ReviewRequest starts a review.
type ReviewRequest struct {
	ReviewerID string `json:"reviewer_id"`
}

// ApproveRequest carries the operator confirmation gate.
type ApproveRequest struct {
	ApproverID string `json:"approver_id"`
	Confirmed  bool   `json:"confirmed"`
	Comments   string `json:"comments,omitempty"`
}

// RejectRequest carries the mandatory category + detail.
type RejectRequest struct {
	RejecterID string `json:"rejecter_id"`
	Category   string `json:"category"`
	Detail     string `json:"detail"`
}

// ActorRequest identifies who performed a bare action.
type ActorRequest struct {
	ActorID string `json:"actor_id"`
}

// ResubmitRequest carries optional edits; absent fields keep their
// current values.
type ResubmitRequest struct {
	ActorID            string    `json:"actor_id"`
	Amount             *float64  `json:"amount,omitempty"`
	Term               *int      `json:"term,omitempty"`
	Purpose            *string   `json:"purpose,omitempty"`
	PurposeDetails     *string   `json:"purpose_details,omitempty"`
	DisbursementMethod *string   `json:"disbursement_method,omitempty"`
	MpesaPhone         *string   `json:"mpesa_phone,omitempty"`
	BankAccount        *string   `json:"bank_account,omitempty"`
	GuarantorIDs       *[]string `json:"guarantor_ids,omitempty"`
}

// DisbursementCallbackRequest settles or fails a pending async
// disbursement (mpesa / bank transfer provider callback).
type DisbursementCallbackRequest struct {
	ProviderRef string `json:"provider_ref,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// PreviewRequest asks for a quote + schedule without an application.
type PreviewRequest struct {
	ProductID    string           `json:"product_id"`
	Amount       float64          `json:"amount"`
	Currency     string           `json:"currency"`
	Term         int              `json:"term"`
	ExtraCharges []ExtraChargeDTO `json:"extra_charges,omitempty"`
}

// QuoteDTO is the derived-figure block of a preview.
type QuoteDTO struct {
	Amount          float64 `json:"amount"`
	Term            int     `json:"term"`
	PeriodicRate    float64 `json:"periodic_rate"`
	TotalInterest   float64 `json:"total_interest"`
	PeriodicPayment float64 `json:"periodic_payment"`
	TotalRepayment  float64 `json:"total_repayment"`

	ProcessingFee float64 `json:"processing_fee"`
	InsuranceFee  float64 `json:"insurance_fee"`
	AppraisalFee  float64 `json:"appraisal_fee"`
	ExciseDuty    float64 `json:"excise_duty"`
	CreditLifeFee float64 `json:"credit_life_fee"`
	ExtraCharges  float64 `json:"extra_charges"`

	InterestDeductedUpfront bool    `json:"interest_deducted_upfront"`
	NetDisbursement         float64 `json:"net_disbursement"`
}

// PreviewResponse is a quote plus its schedule.
type PreviewResponse struct {
	Quote    QuoteDTO         `json:"quote"`
	Schedule []InstallmentDTO `json:"schedule"`
}

// InstallmentDTO is one derived schedule row.
type InstallmentDTO struct {
	Number       int     `json:"number"`
	DueDate      string  `json:"due_date"`
	Principal    float64 `json:"principal"`
	Interest     float64 `json:"interest"`
	TotalPayment float64 `json:"total_payment"`
	BalanceAfter float64 `json:"balance_after"`

	PaidPrincipal float64 `json:"paid_principal"`
	PaidInterest  float64 `json:"paid_interest"`
	PaidPenalty   float64 `json:"paid_penalty"`
	PenaltyDue    float64 `json:"penalty_due"`

	Status string `json:"status"`
}

// ScheduleResponse is a loan's derived schedule plus its rollup.
type ScheduleResponse struct {
	LoanID   string           `json:"loan_id"`
	Schedule []InstallmentDTO `json:"schedule"`
	Summary  SummaryDTO       `json:"summary"`
}

// SummaryDTO is the read-only repayment rollup.
type SummaryDTO struct {
	TotalExpected      float64  `json:"total_expected"`
	TotalPaid          float64  `json:"total_paid"`
	TotalPaidPrincipal float64  `json:"total_paid_principal"`
	TotalPaidInterest  float64  `json:"total_paid_interest"`
	TotalPaidPenalty   float64  `json:"total_paid_penalty"`
	OutstandingBalance float64  `json:"outstanding_balance"`
	AmountOverdue      float64  `json:"amount_overdue"`
	OverdueCount       int      `json:"overdue_count"`
	NextDueAmount      *float64 `json:"next_due_amount,omitempty"`
	NextDueDate        string   `json:"next_due_date,omitempty"`
}

// =============================================================================
// REPAYMENTS
// =============================================================================

// RecordRepaymentRequest applies a payment to a disbursed loan.
type RecordRepaymentRequest struct {
	Amount        float64 `json:"amount"`
	PaymentMethod string  `json:"payment_method"`
	Reference     string  `json:"reference,omitempty"`
	PaymentDate   string  `json:"payment_date,omitempty"` // YYYY-MM-DD, default today
	ReceivedBy    string  `json:"received_by"`
}

// RepaymentDTO is one immutable repayment record with its allocation.
type RepaymentDTO struct {
	ID              string  `json:"id"`
	RepaymentNumber string  `json:"repayment_number"`
	LoanID          string  `json:"loan_id"`
	Amount          float64 `json:"amount"`
	PrincipalAmount float64 `json:"principal_amount"`
	InterestAmount  float64 `json:"interest_amount"`
	PenaltyAmount   float64 `json:"penalty_amount"`
	PaymentMethod   string  `json:"payment_method,omitempty"`
	Reference       string  `json:"reference,omitempty"`
	PaymentDate     string  `json:"payment_date"`
}

// =============================================================================
// TELLER
// =============================================================================

// OpenFloatRequest opens a teller's daily float.
type OpenFloatRequest struct {
	StaffID        string  `json:"staff_id"`
	BranchID       string  `json:"branch_id"`
	Date           string  `json:"date,omitempty"` // YYYY-MM-DD, default today
	OpeningBalance float64 `json:"opening_balance"`
	Currency       string  `json:"currency,omitempty"`
}

// FloatDTO represents a teller float in API responses.
type FloatDTO struct {
	ID             string   `json:"id"`
	StaffID        string   `json:"staff_id"`
	BranchID       string   `json:"branch_id"`
	Date           string   `json:"date"`
	OpeningBalance float64  `json:"opening_balance"`
	Currency       string   `json:"currency"`
	Status         string   `json:"status"`
	CurrentBalance float64  `json:"current_balance"`
	PhysicalCount  *float64 `json:"physical_count,omitempty"`
	Variance       *float64 `json:"variance,omitempty"`
	ReconciledAt   string   `json:"reconciled_at,omitempty"`
}

// CashMovementRequest is a deposit, withdrawal or replenishment.
type CashMovementRequest struct {
	Amount  float64 `json:"amount"`
	ActorID string  `json:"actor_id"`
	Reason  string  `json:"reason,omitempty"`
}

// ReconcileRequest closes out a float against a physical count.
type ReconcileRequest struct {
	PhysicalCount float64 `json:"physical_count"`
	ActorID       string  `json:"actor_id"`
}

// ReconcileResponse returns the float and, when a deficit was found,
// the shortage raised for it.
type ReconcileResponse struct {
	Float    FloatDTO     `json:"float"`
	Shortage *ShortageDTO `json:"shortage,omitempty"`
}

// ShortageDTO represents a reconciliation deficit.
type ShortageDTO struct {
	ID            string  `json:"id"`
	TellerFloatID string  `json:"teller_float_id"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency"`
	Status        string  `json:"status"`
	ApprovedBy    string  `json:"approved_by,omitempty"`
	ResolvedBy    string  `json:"resolved_by,omitempty"`
	CreatedAt     string  `json:"created_at"`
	ResolvedAt    string  `json:"resolved_at,omitempty"`
}

// ResolveShortageRequest resolves a held shortage. The manager must
// re-verify with their password.
type ResolveShortageRequest struct {
	Resolution      string `json:"resolution"` // deduct_from_salary | write_off_expense
	ManagerID       string `json:"manager_id"`
	ManagerPassword string `json:"manager_password"`
}

// VaultDepositRequest adds cash to a branch vault.
type VaultDepositRequest struct {
	Amount  float64 `json:"amount"`
	Source  string  `json:"source,omitempty"` // e.g. "cit_delivery", "head_office"
	ActorID string  `json:"actor_id"`
}

// BalanceDTO is a replayed account balance.
type BalanceDTO struct {
	AccountID string  `json:"account_id"`
	Balance   float64 `json:"balance"`
	Currency  string  `json:"currency"`
}

// InitiateHandoverRequest starts a teller-to-teller handshake.
type InitiateHandoverRequest struct {
	FromFloatID string  `json:"from_float_id"`
	ToFloatID   string  `json:"to_float_id"`
	Amount      float64 `json:"amount"`
	ActorID     string  `json:"actor_id"`
}

// HandoverDTO represents a handover handshake.
type HandoverDTO struct {
	ID          string  `json:"id"`
	FromFloatID string  `json:"from_float_id"`
	ToFloatID   string  `json:"to_float_id"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Status      string  `json:"status"`
	InitiatedBy string  `json:"initiated_by,omitempty"`
	SettledBy   string  `json:"settled_by,omitempty"`
	CreatedAt   string  `json:"created_at"`
	SettledAt   string  `json:"settled_at,omitempty"`
}

// TransactionDTO is one ledger entry in API responses.
type TransactionDTO struct {
	ID          string  `json:"id"`
	AccountID   string  `json:"account_id"`
	EffectiveAt string  `json:"effective_at"`
	Delta       float64 `json:"delta"`
	Currency    string  `json:"currency"`
	Type        string  `json:"type"`
	ReferenceID string  `json:"reference_id,omitempty"`
	Reason      string  `json:"reason,omitempty"`
	CreatedBy   string  `json:"created_by,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// AuditEntryDTO is one row of the who-did-what trail.
type AuditEntryDTO struct {
	ID        string         `json:"id"`
	Timestamp int64          `json:"timestamp"`
	ActorID   string         `json:"actor_id,omitempty"`
	Action    string         `json:"action"`
	AccountID string         `json:"account_id,omitempty"`
	Reference string         `json:"reference,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func fmtTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return fmtTime(*t)
}

func f(a ledger.Amount) float64 {
	v, _ := a.Value.Float64()
	return v
}

func fPtr(a *ledger.Amount) *float64 {
	if a == nil {
		return nil
	}
	v := f(*a)
	return &v
}

func toMemberDTO(m *loan.Member) MemberDTO {
	return MemberDTO{
		ID:            m.ID,
		Name:          m.Name,
		Phone:         m.Phone,
		BranchID:      m.BranchID,
		Status:        string(m.Status),
		SharesBalance: f(m.SharesBalance),
		Currency:      string(m.SharesBalance.Currency),
		GoodStanding:  m.GoodStanding,
		CreatedAt:     fmtTime(m.CreatedAt),
	}
}

func toApplicationDTO(app *loan.Application) ApplicationDTO {
	rate, _ := app.InterestRate.Float64()

	collateral := make([]CollateralDTO, len(app.Collateral))
	for i, c := range app.Collateral {
		collateral[i] = CollateralDTO{ID: c.ID, Description: c.Description, Value: f(c.Value)}
	}
	charges := make([]ExtraChargeDTO, len(app.ExtraCharges))
	for i, c := range app.ExtraCharges {
		charges[i] = ExtraChargeDTO{Name: c.Name, Amount: f(c.Amount)}
	}

	return ApplicationDTO{
		ID:                 app.ID,
		ApplicationNumber:  app.ApplicationNumber,
		MemberID:           app.MemberID,
		ProductID:          app.ProductID,
		Amount:             f(app.Amount),
		Currency:           string(app.Amount.Currency),
		Term:               app.Term,
		Purpose:            app.Purpose,
		PurposeDetails:     app.PurposeDetails,
		DisbursementMethod: string(app.DisbursementMethod),
		MpesaPhone:         app.MpesaPhone,
		BankAccount:        app.BankAccount,

		GuarantorIDs: app.GuarantorIDs,
		Collateral:   collateral,
		ExtraCharges: charges,

		Status:          string(app.Status),
		RejectionReason: app.RejectionReason,
		ReviewComments:  app.ReviewComments,

		InterestRate:            rate,
		TotalInterest:           f(app.TotalInterest),
		PeriodicPayment:         f(app.PeriodicPayment),
		TotalRepayment:          f(app.TotalRepayment),
		ProcessingFee:           f(app.ProcessingFee),
		InsuranceFee:            f(app.InsuranceFee),
		AmountDisbursed:         f(app.AmountDisbursed),
		AmountRepaid:            f(app.AmountRepaid),
		OutstandingBalance:      f(app.OutstandingBalance),
		InterestDeductedUpfront: app.InterestDeductedUpfront,

		ApprovedBy:  app.ApprovedBy,
		ApprovedAt:  fmtTimePtr(app.ApprovedAt),
		DisbursedAt: fmtTimePtr(app.DisbursedAt),
		CreatedAt:   fmtTime(app.CreatedAt),
		UpdatedAt:   fmtTime(app.UpdatedAt),
	}
}

func toQuoteDTO(q loan.Quote) QuoteDTO {
	rate, _ := q.PeriodicRate.Float64()
	return QuoteDTO{
		Amount:          f(q.Amount),
		Term:            q.Term,
		PeriodicRate:    rate,
		TotalInterest:   f(q.TotalInterest),
		PeriodicPayment: f(q.PeriodicPayment),
		TotalRepayment:  f(q.TotalRepayment),

		ProcessingFee: f(q.ProcessingFee),
		InsuranceFee:  f(q.InsuranceFee),
		AppraisalFee:  f(q.AppraisalFee),
		ExciseDuty:    f(q.ExciseDuty),
		CreditLifeFee: f(q.CreditLifeFee),
		ExtraCharges:  f(q.ExtraCharges),

		InterestDeductedUpfront: q.InterestDeductedUpfront,
		NetDisbursement:         f(q.NetDisbursement),
	}
}

func toInstallmentDTOs(schedule []loan.Installment) []InstallmentDTO {
	dtos := make([]InstallmentDTO, len(schedule))
	for i, row := range schedule {
		dtos[i] = InstallmentDTO{
			Number:       row.Number,
			DueDate:      row.DueDate.UTC().Format("2006-01-02"),
			Principal:    f(row.Principal),
			Interest:     f(row.Interest),
			TotalPayment: f(row.TotalPayment),
			BalanceAfter: f(row.BalanceAfter),

			PaidPrincipal: f(row.PaidPrincipal),
			PaidInterest:  f(row.PaidInterest),
			PaidPenalty:   f(row.PaidPenalty),
			PenaltyDue:    f(row.PenaltyDue),

			Status: string(row.Status),
		}
	}
	return dtos
}

func toSummaryDTO(sum loan.Summary) SummaryDTO {
	dto := SummaryDTO{
		TotalExpected:      f(sum.TotalExpected),
		TotalPaid:          f(sum.TotalPaid),
		TotalPaidPrincipal: f(sum.TotalPaidPrincipal),
		TotalPaidInterest:  f(sum.TotalPaidInterest),
		TotalPaidPenalty:   f(sum.TotalPaidPenalty),
		OutstandingBalance: f(sum.OutstandingBalance),
		AmountOverdue:      f(sum.AmountOverdue),
		OverdueCount:       sum.OverdueCount,
		NextDueAmount:      fPtr(sum.NextDueAmount),
	}
	if sum.NextDueDate != nil {
		dto.NextDueDate = sum.NextDueDate.UTC().Format("2006-01-02")
	}
	return dto
}

func toRepaymentDTO(r *loan.Repayment) RepaymentDTO {
	return RepaymentDTO{
		ID:              r.ID,
		RepaymentNumber: r.RepaymentNumber,
		LoanID:          r.LoanID,
		Amount:          f(r.Amount),
		PrincipalAmount: f(r.PrincipalAmount),
		InterestAmount:  f(r.InterestAmount),
		PenaltyAmount:   f(r.PenaltyAmount),
		PaymentMethod:   r.PaymentMethod,
		Reference:       r.Reference,
		PaymentDate:     r.PaymentDate.UTC().Format("2006-01-02"),
	}
}

func toFloatDTO(fl *teller.Float, balance ledger.Amount) FloatDTO {
	dto := FloatDTO{
		ID:             fl.ID,
		StaffID:        fl.StaffID,
		BranchID:       fl.BranchID,
		Date:           fl.Date.Format("2006-01-02"),
		OpeningBalance: f(fl.OpeningBalance),
		Currency:       string(fl.OpeningBalance.Currency),
		Status:         string(fl.Status),
		CurrentBalance: f(balance),
		PhysicalCount:  fPtr(fl.PhysicalCount),
		Variance:       fPtr(fl.Variance),
		ReconciledAt:   fmtTimePtr(fl.ReconciledAt),
	}
	return dto
}

func toShortageDTO(sh *teller.Shortage) ShortageDTO {
	return ShortageDTO{
		ID:            sh.ID,
		TellerFloatID: sh.TellerFloatID,
		Amount:        f(sh.Amount),
		Currency:      string(sh.Amount.Currency),
		Status:        string(sh.Status),
		ApprovedBy:    sh.ApprovedBy,
		ResolvedBy:    sh.ResolvedBy,
		CreatedAt:     fmtTime(sh.CreatedAt),
		ResolvedAt:    fmtTimePtr(sh.ResolvedAt),
	}
}

func toHandoverDTO(h *teller.Handover) HandoverDTO {
	return HandoverDTO{
		ID:          h.ID,
		FromFloatID: h.FromFloatID,
		ToFloatID:   h.ToFloatID,
		Amount:      f(h.Amount),
		Currency:    string(h.Amount.Currency),
		Status:      string(h.Status),
		InitiatedBy: h.InitiatedBy,
		SettledBy:   h.SettledBy,
		CreatedAt:   fmtTime(h.CreatedAt),
		SettledAt:   fmtTimePtr(h.SettledAt),
	}
}

func toAuditEntryDTOs(entries []ledger.AuditEntry) []AuditEntryDTO {
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = AuditEntryDTO{
			ID:        e.ID,
			Timestamp: e.Timestamp,
			ActorID:   e.ActorID,
			Action:    string(e.Action),
			AccountID: string(e.AccountID),
			Reference: e.Reference,
			Payload:   e.Payload,
		}
	}
	return dtos
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = TransactionDTO{
			ID:          string(tx.ID),
			AccountID:   string(tx.AccountID),
			EffectiveAt: fmtTime(tx.EffectiveAt),
			Delta:       f(tx.Delta),
			Currency:    string(tx.Delta.Currency),
			Type:        string(tx.Type),
			ReferenceID: tx.ReferenceID,
			Reason:      tx.Reason,
			CreatedBy:   tx.CreatedBy,
			CreatedAt:   fmtTime(tx.CreatedAt),
		}
	}
	return dtos
}
