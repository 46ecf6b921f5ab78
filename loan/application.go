/*
application.go - Loan application state machine and service

PURPOSE:
  Handles the full lifecycle of a loan application:
  1. Submit: Validate bounds, method fields, guarantors, eligibility
  2. Review/Approve/Reject: Committee workflow with confirmation gate
  3. Disburse: Snapshot product figures, post the ledger entry
  4. Resubmit: Resurrect rejected/cancelled applications back to pending

APPLICATION FLOW:

  pending ──▶ under_review ──▶ approved ──▶ disbursed ──▶ completed
     ▲             │              │                 │
     │             ▼              ▼                 └──▶ defaulted
     │    rejected / cancelled    pending_disbursement
     │             │              (mpesa; callback ──▶ disbursed,
     └── resubmit ─┘               failure ──▶ approved)

  Resubmit is legal from pending, under_review, rejected and cancelled;
  it clears rejection_reason. Legal moves live in one transition table;
  everything else is a TransitionError.

SNAPSHOT DISCIPLINE:
  interest_rate, fees, total_interest and interest_deducted_upfront are
  COPIED from the product at disbursement time. A later product edit
  never changes a running loan.

ASYNC DISBURSEMENT:
  M-Pesa pays out through an STK push; the application parks in
  pending_disbursement until the payment callback confirms (-> disbursed)
  or fails (-> back to approved, retryable).

SEE ALSO:
  - schedule.go: Quote used for snapshot figures
  - repayment.go: Post-disbursement accounting
*/
package loan

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mkopo/sacco-engine/ledger"
)

// =============================================================================
// TRANSITION TABLE
// =============================================================================

// transitions is the single source of truth for legal status moves.
var transitions = map[Status][]Status{
	StatusPending:             {StatusUnderReview, StatusApproved, StatusRejected, StatusCancelled, StatusPending},
	StatusUnderReview:         {StatusApproved, StatusRejected, StatusCancelled, StatusPending},
	StatusApproved:            {StatusPendingDisbursement, StatusDisbursed, StatusCancelled},
	StatusPendingDisbursement: {StatusDisbursed, StatusApproved},
	StatusDisbursed:           {StatusCompleted, StatusDefaulted},
	StatusRejected:            {StatusPending},
	StatusCancelled:           {StatusPending},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (a *Application) transition(to Status) error {
	if !CanTransition(a.Status, to) {
		return &TransitionError{Application: a.ApplicationNumber, From: a.Status, To: to}
	}
	a.Status = to
	return nil
}

// =============================================================================
// REJECTION TAXONOMY
// =============================================================================

type RejectionCategory string

const (
	RejectInsufficientIncome      RejectionCategory = "Insufficient Income"
	RejectPoorCreditHistory       RejectionCategory = "Poor Credit History"
	RejectIncompleteDocumentation RejectionCategory = "Incomplete Documentation"
	RejectExceedsLendingLimits    RejectionCategory = "Exceeds Lending Limits"
	RejectGuarantorIssues         RejectionCategory = "Guarantor Issues"
	RejectOther                   RejectionCategory = "Other"
)

// RejectionCategories lists the fixed taxonomy, in display order.
func RejectionCategories() []RejectionCategory {
	return []RejectionCategory{
		RejectInsufficientIncome,
		RejectPoorCreditHistory,
		RejectIncompleteDocumentation,
		RejectExceedsLendingLimits,
		RejectGuarantorIssues,
		RejectOther,
	}
}

func (c RejectionCategory) valid() bool {
	for _, known := range RejectionCategories() {
		if c == known {
			return true
		}
	}
	return false
}

// =============================================================================
// STORE INTERFACES
// =============================================================================

type ApplicationStore interface {
	SaveApplication(ctx context.Context, app *Application) error
	GetApplication(ctx context.Context, id string) (*Application, error)
	GetApplicationsByMember(ctx context.Context, memberID string) ([]*Application, error)
	NextApplicationNumber(ctx context.Context, year int) (string, error)
}

type MemberStore interface {
	GetMember(ctx context.Context, id string) (*Member, error)
	SaveMember(ctx context.Context, m *Member) error
}

type ProductStore interface {
	GetProduct(ctx context.Context, id string) (*Product, error)
}

// =============================================================================
// SERVICE
// =============================================================================

// Service orchestrates the application lifecycle.
type Service struct {
	Applications ApplicationStore
	Members      MemberStore
	Products     ProductStore
	Ledger       ledger.Ledger
	Audit        ledger.AuditLog

	// AllowedMethods gates disbursement methods by organization feature
	// capabilities (mpesa_integration, bank_integration). Nil = all allowed.
	AllowedMethods map[DisbursementMethod]bool

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) methodAllowed(m DisbursementMethod) bool {
	if s.AllowedMethods == nil {
		return true
	}
	return s.AllowedMethods[m]
}

func (s *Service) audit(ctx context.Context, action ledger.AuditAction, actor string, app *Application) {
	if s.Audit == nil {
		return
	}
	// Audit failures must not fail the business operation.
	_ = s.Audit.AppendAudit(ctx, ledger.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: s.now().Unix(),
		ActorID:   actor,
		Action:    action,
		AccountID: loanAccountID(app.ApplicationNumber),
		Reference: app.ApplicationNumber,
		Payload:   map[string]any{"status": string(app.Status)},
	})
}

func loanAccountID(applicationNumber string) ledger.AccountID {
	return ledger.AccountID("loan:" + applicationNumber)
}

// =============================================================================
// SUBMIT
// =============================================================================

// SubmitInput carries everything a member provides at submission time.
type SubmitInput struct {
	MemberID       string
	ProductID      string
	Amount         ledger.Amount
	Term           int
	Purpose        string
	PurposeDetails string

	DisbursementMethod DisbursementMethod
	MpesaPhone         string
	BankAccount        string

	GuarantorIDs []string
	Collateral   []Collateral
	ExtraCharges []ExtraCharge

	SubmittedBy string
}

// Submit validates a new application and persists it with status pending.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Application, error) {
	product, err := s.Products.GetProduct(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}
	member, err := s.Members.GetMember(ctx, in.MemberID)
	if err != nil {
		return nil, err
	}

	if err := s.validateSubmission(ctx, product, member, &in); err != nil {
		return nil, err
	}

	now := s.now()
	number, err := s.Applications.NextApplicationNumber(ctx, now.Year())
	if err != nil {
		return nil, fmt.Errorf("failed to assign application number: %w", err)
	}

	app := &Application{
		ID:                 uuid.NewString(),
		ApplicationNumber:  number,
		MemberID:           in.MemberID,
		ProductID:          in.ProductID,
		Amount:             in.Amount,
		Term:               in.Term,
		Purpose:            in.Purpose,
		PurposeDetails:     in.PurposeDetails,
		DisbursementMethod: in.DisbursementMethod,
		MpesaPhone:         in.MpesaPhone,
		BankAccount:        in.BankAccount,
		GuarantorIDs:       in.GuarantorIDs,
		Collateral:         in.Collateral,
		ExtraCharges:       in.ExtraCharges,
		Status:             StatusPending,
		AmountRepaid:       in.Amount.Zero(),
		OutstandingBalance: in.Amount.Zero(),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.Applications.SaveApplication(ctx, app); err != nil {
		return nil, err
	}
	s.audit(ctx, ledger.AuditLoanSubmitted, in.SubmittedBy, app)
	return app, nil
}

func (s *Service) validateSubmission(ctx context.Context, product *Product, member *Member, in *SubmitInput) error {
	if !product.IsActive {
		return ErrProductInactive
	}
	if member.Status != MemberActive {
		return fmt.Errorf("%w: cannot submit loan application for member %s", ErrMemberInactive, member.ID)
	}

	// Amount and term must lie within product bounds.
	if in.Amount.LessThan(product.MinAmount) || in.Amount.GreaterThan(product.MaxAmount) {
		return fmt.Errorf("%w: amount %v outside [%v, %v]", ErrOutOfBounds,
			in.Amount.Value, product.MinAmount.Value, product.MaxAmount.Value)
	}
	if in.Term < product.MinTerm || in.Term > product.MaxTerm {
		return fmt.Errorf("%w: term %d outside [%d, %d]", ErrOutOfBounds,
			in.Term, product.MinTerm, product.MaxTerm)
	}

	// Method gate and method-conditional fields.
	if !s.methodAllowed(in.DisbursementMethod) {
		return fmt.Errorf("%w: %s", ErrMethodNotEnabled, in.DisbursementMethod)
	}
	switch in.DisbursementMethod {
	case MethodMpesa:
		if in.MpesaPhone == "" {
			return fmt.Errorf("%w: mpesa requires a phone number", ErrMethodFields)
		}
	case MethodBankTransfer:
		if in.BankAccount == "" {
			return fmt.Errorf("%w: bank transfer requires an account number", ErrMethodFields)
		}
	case MethodCash, MethodCheque:
	default:
		return fmt.Errorf("%w: unknown method %q", ErrMethodFields, in.DisbursementMethod)
	}

	// Guarantor policy.
	if product.RequiresGuarantor {
		n := len(in.GuarantorIDs)
		if n < product.MinGuarantors {
			return fmt.Errorf("%w: need at least %d guarantors, got %d",
				ErrGuarantorPolicy, product.MinGuarantors, n)
		}
		if product.MaxGuarantors > 0 && n > product.MaxGuarantors {
			return fmt.Errorf("%w: at most %d guarantors allowed, got %d",
				ErrGuarantorPolicy, product.MaxGuarantors, n)
		}
	}

	return s.checkEligibility(ctx, product, member, in.Amount)
}

// checkEligibility applies the product's member-eligibility policy.
// Re-verified server-side even though clients pre-check it.
func (s *Service) checkEligibility(ctx context.Context, product *Product, member *Member, amount ledger.Amount) error {
	if product.SharesMultiplier.IsPositive() {
		limit := member.SharesBalance.Mul(product.SharesMultiplier)
		if amount.GreaterThan(limit) {
			return &EligibilityError{
				MemberID: member.ID,
				Rule:     "shares_multiplier",
				Detail: fmt.Sprintf("amount %v exceeds %v (shares %v x %v)",
					amount.Value, limit.Value, member.SharesBalance.Value, product.SharesMultiplier),
			}
		}
		if member.SharesBalance.LessThan(product.MinSharesRequired) {
			return &EligibilityError{
				MemberID: member.ID,
				Rule:     "min_shares",
				Detail: fmt.Sprintf("shares %v below required %v",
					member.SharesBalance.Value, product.MinSharesRequired.Value),
			}
		}
	}
	if product.RequireGoodStanding && !member.GoodStanding {
		return &EligibilityError{MemberID: member.ID, Rule: "good_standing", Detail: "member not in good standing"}
	}
	if !product.AllowMultipleLoans {
		existing, err := s.Applications.GetApplicationsByMember(ctx, member.ID)
		if err != nil {
			return err
		}
		for _, other := range existing {
			switch other.Status {
			case StatusApproved, StatusPendingDisbursement, StatusDisbursed:
				return &EligibilityError{
					MemberID: member.ID,
					Rule:     "multiple_loans",
					Detail:   fmt.Sprintf("open loan %s in status %s", other.ApplicationNumber, other.Status),
				}
			}
		}
	}
	return nil
}

// =============================================================================
// REVIEW / APPROVE / REJECT / CANCEL / RESUBMIT
// =============================================================================

// StartReview moves a pending application into under_review.
func (s *Service) StartReview(ctx context.Context, id, reviewerID string) (*Application, error) {
	app, err := s.Applications.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := app.transition(StatusUnderReview); err != nil {
		return nil, err
	}
	app.UpdatedAt = s.now()
	if err := s.Applications.SaveApplication(ctx, app); err != nil {
		return nil, err
	}
	return app, nil
}

// ApproveInput carries the operator confirmation gate and comments.
type ApproveInput struct {
	ApproverID string
	Confirmed  bool // affirmative checkbox-equivalent; must be true
	Comments   string
}

// Approve moves an application from pending/under_review to approved and
// snapshots the quote figures so the member sees final numbers immediately.
func (s *Service) Approve(ctx context.Context, id string, in ApproveInput) (*Application, error) {
	if !in.Confirmed {
		return nil, ErrUnconfirmed
	}

	app, err := s.Applications.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != StatusPending && app.Status != StatusUnderReview {
		return nil, &TransitionError{Application: app.ApplicationNumber, From: app.Status, To: StatusApproved}
	}

	product, err := s.Products.GetProduct(ctx, app.ProductID)
	if err != nil {
		return nil, err
	}

	q := NewQuote(product, app.Amount, app.Term, app.ExtraCharges)
	app.InterestRate = product.InterestRate
	app.TotalInterest = q.TotalInterest
	app.PeriodicPayment = q.PeriodicPayment
	app.TotalRepayment = q.TotalRepayment
	app.ProcessingFee = q.ProcessingFee
	app.InsuranceFee = q.InsuranceFee

	if err := app.transition(StatusApproved); err != nil {
		return nil, err
	}
	now := s.now()
	app.ApprovedBy = in.ApproverID
	app.ApprovedAt = &now
	app.ReviewComments = in.Comments
	app.UpdatedAt = now

	if err := s.Applications.SaveApplication(ctx, app); err != nil {
		return nil, err
	}
	s.audit(ctx, ledger.AuditLoanApproved, in.ApproverID, app)
	return app, nil
}

// RejectInput carries the mandatory category + detail.
type RejectInput struct {
	RejecterID string
	Category   RejectionCategory
	Detail     string
}

// Reject moves an application to rejected, storing the composed reason
// "[category] detail".
func (s *Service) Reject(ctx context.Context, id string, in RejectInput) (*Application, error) {
	if !in.Category.valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRejectionCategory, in.Category)
	}

	app, err := s.Applications.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != StatusPending && app.Status != StatusUnderReview {
		return nil, &TransitionError{Application: app.ApplicationNumber, From: app.Status, To: StatusRejected}
	}
	if err := app.transition(StatusRejected); err != nil {
		return nil, err
	}
	app.RejectionReason = fmt.Sprintf("[%s] %s", in.Category, in.Detail)
	app.UpdatedAt = s.now()

	if err := s.Applications.SaveApplication(ctx, app); err != nil {
		return nil, err
	}
	s.audit(ctx, ledger.AuditLoanRejected, in.RejecterID, app)
	return app, nil
}

// Cancel withdraws an application that has not been disbursed.
func (s *Service) Cancel(ctx context.Context, id, actorID string) (*Application, error) {
	app, err := s.Applications.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := app.transition(StatusCancelled); err != nil {
		return nil, err
	}
	app.UpdatedAt = s.now()
	if err := s.Applications.SaveApplication(ctx, app); err != nil {
		return nil, err
	}
	return app, nil
}

// EditInput holds optional field edits applied during resubmission.
// Nil pointers leave the field unchanged.
type EditInput struct {
	Amount             *ledger.Amount
	Term               *int
	Purpose            *string
	PurposeDetails     *string
	DisbursementMethod *DisbursementMethod
	MpesaPhone         *string
	BankAccount        *string
	GuarantorIDs       *[]string
}

// Resubmit resurrects an application from pending/under_review/rejected/
// cancelled back to pending, applying edits and clearing any previous
// rejection reason.
func (s *Service) Resubmit(ctx context.Context, id string, edits EditInput, actorID string) (*Application, error) {
	app, err := s.Applications.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := app.transition(StatusPending); err != nil {
		return nil, err
	}

	if edits.Amount != nil {
		app.Amount = *edits.Amount
	}
	if edits.Term != nil {
		app.Term = *edits.Term
	}
	if edits.Purpose != nil {
		app.Purpose = *edits.Purpose
	}
	if edits.PurposeDetails != nil {
		app.PurposeDetails = *edits.PurposeDetails
	}
	if edits.DisbursementMethod != nil {
		app.DisbursementMethod = *edits.DisbursementMethod
	}
	if edits.MpesaPhone != nil {
		app.MpesaPhone = *edits.MpesaPhone
	}
	if edits.BankAccount != nil {
		app.BankAccount = *edits.BankAccount
	}
	if edits.GuarantorIDs != nil {
		app.GuarantorIDs = *edits.GuarantorIDs
	}

	// Re-validate the edited submission against current product/member state.
	product, err := s.Products.GetProduct(ctx, app.ProductID)
	if err != nil {
		return nil, err
	}
	member, err := s.Members.GetMember(ctx, app.MemberID)
	if err != nil {
		return nil, err
	}
	in := SubmitInput{
		MemberID:           app.MemberID,
		ProductID:          app.ProductID,
		Amount:             app.Amount,
		Term:               app.Term,
		DisbursementMethod: app.DisbursementMethod,
		MpesaPhone:         app.MpesaPhone,
		BankAccount:        app.BankAccount,
		GuarantorIDs:       app.GuarantorIDs,
	}
	if err := s.validateSubmission(ctx, product, member, &in); err != nil {
		return nil, err
	}

	app.RejectionReason = ""
	app.ReviewComments = ""
	app.UpdatedAt = s.now()

	if err := s.Applications.SaveApplication(ctx, app); err != nil {
		return nil, err
	}
	s.audit(ctx, ledger.AuditLoanResubmitted, actorID, app)
	return app, nil
}

// =============================================================================
// DISBURSE
// =============================================================================

// Disburse releases funds on an approved application.
//
// Synchronous methods (cash, cheque, bank transfer) settle immediately:
// status -> disbursed and the disbursement ledger entry is posted.
// M-Pesa is asynchronous: status -> pending_disbursement until the payment
// callback confirms via ConfirmDisbursement.
func (s *Service) Disburse(ctx context.Context, id, actorID string) (*Application, error) {
	app, err := s.Applications.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != StatusApproved {
		return nil, &TransitionError{Application: app.ApplicationNumber, From: app.Status, To: StatusDisbursed}
	}

	product, err := s.Products.GetProduct(ctx, app.ProductID)
	if err != nil {
		return nil, err
	}
	member, err := s.Members.GetMember(ctx, app.MemberID)
	if err != nil {
		return nil, err
	}
	if member.Status != MemberActive {
		return nil, fmt.Errorf("%w: cannot disburse to member %s", ErrMemberInactive, member.ID)
	}
	if product.RequiresGuarantor && len(app.GuarantorIDs) < product.MinGuarantors {
		return nil, fmt.Errorf("%w: need %d guarantors before disbursement",
			ErrGuarantorPolicy, product.MinGuarantors)
	}
	if err := checkCollateral(product, app); err != nil {
		return nil, err
	}

	// Snapshot: copied from the product at disbursement time, never a
	// live reference.
	q := NewQuote(product, app.Amount, app.Term, app.ExtraCharges)
	app.InterestRate = product.InterestRate
	app.TotalInterest = q.TotalInterest
	app.PeriodicPayment = q.PeriodicPayment
	app.TotalRepayment = q.TotalRepayment
	app.ProcessingFee = q.ProcessingFee
	app.InsuranceFee = q.InsuranceFee
	app.InterestDeductedUpfront = q.InterestDeductedUpfront
	app.AmountDisbursed = q.NetDisbursement
	app.OutstandingBalance = q.TotalRepayment
	app.AmountRepaid = app.Amount.Zero()

	if app.DisbursementMethod.Async() {
		if err := app.transition(StatusPendingDisbursement); err != nil {
			return nil, err
		}
		app.UpdatedAt = s.now()
		if err := s.Applications.SaveApplication(ctx, app); err != nil {
			return nil, err
		}
		return app, nil
	}

	return s.settleDisbursement(ctx, app, actorID, string(app.DisbursementMethod))
}

// ConfirmDisbursement is the payment-callback path: flips
// pending_disbursement to disbursed and posts the ledger entry.
func (s *Service) ConfirmDisbursement(ctx context.Context, id, providerRef string) (*Application, error) {
	app, err := s.Applications.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app.Status != StatusPendingDisbursement {
		return nil, &TransitionError{Application: app.ApplicationNumber, From: app.Status, To: StatusDisbursed}
	}
	return s.settleDisbursement(ctx, app, "system", providerRef)
}

// FailDisbursement returns a pending_disbursement application to approved
// so the disbursement can be retried.
func (s *Service) FailDisbursement(ctx context.Context, id, reason string) (*Application, error) {
	app, err := s.Applications.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := app.transition(StatusApproved); err != nil {
		return nil, err
	}
	app.UpdatedAt = s.now()
	if err := s.Applications.SaveApplication(ctx, app); err != nil {
		return nil, err
	}
	return app, nil
}

func (s *Service) settleDisbursement(ctx context.Context, app *Application, actorID, reference string) (*Application, error) {
	now := s.now()

	// Idempotency-keyed by application number: a retried disbursement
	// can never pay out twice.
	tx := ledger.Transaction{
		ID:             ledger.TransactionID(uuid.NewString()),
		AccountID:      loanAccountID(app.ApplicationNumber),
		AccountKind:    AccountLoan,
		EffectiveAt:    now,
		Delta:          app.AmountDisbursed,
		Type:           ledger.EntryDisbursement,
		ReferenceID:    app.ApplicationNumber,
		Reason:         "loan disbursement via " + reference,
		IdempotencyKey: "disburse-" + app.ApplicationNumber,
		CreatedBy:      actorID,
		CreatedByType:  "system",
		CreatedAt:      now,
	}
	if err := s.Ledger.Append(ctx, tx); err != nil {
		return nil, err
	}

	if err := app.transition(StatusDisbursed); err != nil {
		return nil, err
	}
	app.DisbursedAt = &now
	app.UpdatedAt = now

	if err := s.Applications.SaveApplication(ctx, app); err != nil {
		return nil, err
	}
	s.audit(ctx, ledger.AuditLoanDisbursed, actorID, app)
	return app, nil
}

// checkCollateral verifies the product's collateral policy: pledged value
// must cover amount x min_ltv_coverage%.
func checkCollateral(product *Product, app *Application) error {
	if !product.RequiresCollateral {
		return nil
	}
	if len(app.Collateral) == 0 {
		return fmt.Errorf("%w: product requires collateral", ErrCollateralPolicy)
	}
	total := app.Amount.Zero()
	for _, c := range app.Collateral {
		total = total.Add(c.Value)
	}
	required := app.Amount.Mul(product.MinLTVCoverage.Div(hundred))
	if total.LessThan(required) {
		return fmt.Errorf("%w: collateral %v under-covers required %v",
			ErrCollateralPolicy, total.Value, required.Value)
	}
	return nil
}
