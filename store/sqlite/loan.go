package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mkopo/sacco-engine/ledger"
	"github.com/mkopo/sacco-engine/loan"
)

// Compile-time interface checks.
var (
	_ loan.ApplicationStore = (*Store)(nil)
	_ loan.MemberStore      = (*Store)(nil)
	_ loan.ProductStore     = (*Store)(nil)
	_ loan.RepaymentStore   = (*Store)(nil)
)

// =============================================================================
// PRODUCTS
// =============================================================================

// SaveProduct stores a product's JSON config. Re-saving an existing
// product bumps its version; applications snapshot terms at disbursement
// so in-flight loans are unaffected.
func (s *Store) SaveProduct(ctx context.Context, p *loan.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	configJSON, err := p.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize product: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO loan_products (id, name, config_json, version, is_active, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			config_json = excluded.config_json,
			version = loan_products.version + 1,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`, p.ID, p.Name, configJSON, boolInt(p.IsActive), now, now)
	if err != nil {
		return fmt.Errorf("failed to save product: %w", err)
	}
	return nil
}

// GetProduct loads and parses a product config.
func (s *Store) GetProduct(ctx context.Context, id string) (*loan.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		configJSON string
		version    int
		isActive   int
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT config_json, version, is_active FROM loan_products WHERE id = ?", id,
	).Scan(&configJSON, &version, &isActive)
	if err == sql.ErrNoRows {
		return nil, loan.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	p, err := loan.ParseProduct(configJSON)
	if err != nil {
		return nil, fmt.Errorf("stored product %s is invalid: %w", id, err)
	}
	p.Version = version
	p.IsActive = isActive != 0
	return p, nil
}

// ListProducts returns all products, active first, then by name.
func (s *Store) ListProducts(ctx context.Context) ([]*loan.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT config_json, version, is_active FROM loan_products ORDER BY is_active DESC, name ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var products []*loan.Product
	for rows.Next() {
		var (
			configJSON string
			version    int
			isActive   int
		)
		if err := rows.Scan(&configJSON, &version, &isActive); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		p, err := loan.ParseProduct(configJSON)
		if err != nil {
			return nil, fmt.Errorf("stored product is invalid: %w", err)
		}
		p.Version = version
		p.IsActive = isActive != 0
		products = append(products, p)
	}
	return products, rows.Err()
}

// =============================================================================
// MEMBERS
// =============================================================================

func (s *Store) SaveMember(ctx context.Context, m *loan.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (id, name, phone, branch_id, status, shares_balance, currency, good_standing, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone,
			branch_id = excluded.branch_id,
			status = excluded.status,
			shares_balance = excluded.shares_balance,
			currency = excluded.currency,
			good_standing = excluded.good_standing
	`,
		m.ID, m.Name, m.Phone, m.BranchID, string(m.Status),
		m.SharesBalance.Value.String(), string(m.SharesBalance.Currency),
		boolInt(m.GoodStanding), createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save member: %w", err)
	}
	return nil
}

func (s *Store) GetMember(ctx context.Context, id string) (*loan.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		m            loan.Member
		status       string
		shares       string
		currency     string
		goodStanding int
		createdAt    string
		phone        sql.NullString
		branchID     sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, phone, branch_id, status, shares_balance, currency, good_standing, created_at
		FROM members WHERE id = ?
	`, id).Scan(&m.ID, &m.Name, &phone, &branchID, &status, &shares, &currency, &goodStanding, &createdAt)
	if err == sql.ErrNoRows {
		return nil, loan.ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	m.Phone = phone.String
	m.BranchID = branchID.String
	m.Status = loan.MemberStatus(status)
	m.SharesBalance = parseAmount(shares, currency)
	m.GoodStanding = goodStanding != 0
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &m, nil
}

// ListMembers returns all members ordered by name.
func (s *Store) ListMembers(ctx context.Context) ([]*loan.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, phone, branch_id, status, shares_balance, currency, good_standing, created_at
		FROM members ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*loan.Member
	for rows.Next() {
		var (
			m            loan.Member
			status       string
			shares       string
			currency     string
			goodStanding int
			createdAt    string
			phone        sql.NullString
			branchID     sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.Name, &phone, &branchID, &status, &shares, &currency, &goodStanding, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.Phone = phone.String
		m.BranchID = branchID.String
		m.Status = loan.MemberStatus(status)
		m.SharesBalance = parseAmount(shares, currency)
		m.GoodStanding = goodStanding != 0
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		members = append(members, &m)
	}
	return members, rows.Err()
}

// =============================================================================
// APPLICATIONS
// =============================================================================

func (s *Store) SaveApplication(ctx context.Context, app *loan.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	guarantorsJSON, _ := json.Marshal(app.GuarantorIDs)
	collateralJSON, _ := json.Marshal(app.Collateral)
	chargesJSON, _ := json.Marshal(app.ExtraCharges)

	now := time.Now().UTC()
	createdAt := app.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO loan_applications
		(id, application_number, member_id, product_id, amount, currency, term,
		 purpose, purpose_details, disbursement_method, mpesa_phone, bank_account,
		 guarantor_ids_json, collateral_json, extra_charges_json,
		 status, rejection_reason, review_comments,
		 interest_rate, total_interest, periodic_payment, total_repayment,
		 processing_fee, insurance_fee, amount_disbursed, amount_repaid,
		 outstanding_balance, interest_deducted_upfront,
		 approved_by, approved_at, disbursed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount = excluded.amount,
			currency = excluded.currency,
			term = excluded.term,
			purpose = excluded.purpose,
			purpose_details = excluded.purpose_details,
			disbursement_method = excluded.disbursement_method,
			mpesa_phone = excluded.mpesa_phone,
			bank_account = excluded.bank_account,
			guarantor_ids_json = excluded.guarantor_ids_json,
			collateral_json = excluded.collateral_json,
			extra_charges_json = excluded.extra_charges_json,
			status = excluded.status,
			rejection_reason = excluded.rejection_reason,
			review_comments = excluded.review_comments,
			interest_rate = excluded.interest_rate,
			total_interest = excluded.total_interest,
			periodic_payment = excluded.periodic_payment,
			total_repayment = excluded.total_repayment,
			processing_fee = excluded.processing_fee,
			insurance_fee = excluded.insurance_fee,
			amount_disbursed = excluded.amount_disbursed,
			amount_repaid = excluded.amount_repaid,
			outstanding_balance = excluded.outstanding_balance,
			interest_deducted_upfront = excluded.interest_deducted_upfront,
			approved_by = excluded.approved_by,
			approved_at = excluded.approved_at,
			disbursed_at = excluded.disbursed_at,
			updated_at = excluded.updated_at
	`,
		app.ID, app.ApplicationNumber, app.MemberID, app.ProductID,
		app.Amount.Value.String(), string(app.Amount.Currency), app.Term,
		app.Purpose, app.PurposeDetails, string(app.DisbursementMethod),
		app.MpesaPhone, app.BankAccount,
		string(guarantorsJSON), string(collateralJSON), string(chargesJSON),
		string(app.Status), app.RejectionReason, app.ReviewComments,
		app.InterestRate.String(), app.TotalInterest.Value.String(),
		app.PeriodicPayment.Value.String(), app.TotalRepayment.Value.String(),
		app.ProcessingFee.Value.String(), app.InsuranceFee.Value.String(),
		app.AmountDisbursed.Value.String(), app.AmountRepaid.Value.String(),
		app.OutstandingBalance.Value.String(), boolInt(app.InterestDeductedUpfront),
		app.ApprovedBy, nullTime(app.ApprovedAt), nullTime(app.DisbursedAt),
		createdAt.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save application: %w", err)
	}
	return nil
}

const applicationColumns = `
	SELECT id, application_number, member_id, product_id, amount, currency, term,
	       purpose, purpose_details, disbursement_method, mpesa_phone, bank_account,
	       guarantor_ids_json, collateral_json, extra_charges_json,
	       status, rejection_reason, review_comments,
	       interest_rate, total_interest, periodic_payment, total_repayment,
	       processing_fee, insurance_fee, amount_disbursed, amount_repaid,
	       outstanding_balance, interest_deducted_upfront,
	       approved_by, approved_at, disbursed_at, created_at, updated_at
`

func (s *Store) GetApplication(ctx context.Context, id string) (*loan.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	apps, err := s.queryApplications(ctx, applicationColumns+" FROM loan_applications WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(apps) == 0 {
		return nil, loan.ErrApplicationNotFound
	}
	return apps[0], nil
}

func (s *Store) GetApplicationsByMember(ctx context.Context, memberID string) ([]*loan.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryApplications(ctx,
		applicationColumns+" FROM loan_applications WHERE member_id = ? ORDER BY created_at DESC",
		memberID)
}

// ListApplications returns applications, optionally filtered by status,
// newest first.
func (s *Store) ListApplications(ctx context.Context, status string) ([]*loan.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if status == "" {
		return s.queryApplications(ctx,
			applicationColumns+" FROM loan_applications ORDER BY created_at DESC")
	}
	return s.queryApplications(ctx,
		applicationColumns+" FROM loan_applications WHERE status = ? ORDER BY created_at DESC",
		status)
}

// NextApplicationNumber issues the next LN-YYYY-NNNNNN number. The
// sequence restarts each year.
func (s *Store) NextApplicationNumber(ctx context.Context, year int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.nextCounter(ctx, fmt.Sprintf("loan-%d", year))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("LN-%d-%06d", year, n), nil
}

func (s *Store) queryApplications(ctx context.Context, query string, args ...any) ([]*loan.Application, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	var apps []*loan.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

func scanApplication(rows *sql.Rows) (*loan.Application, error) {
	var (
		app             loan.Application
		amount          string
		currency        string
		purpose         sql.NullString
		purposeDetails  sql.NullString
		method          string
		mpesaPhone      sql.NullString
		bankAccount     sql.NullString
		guarantorsJSON  sql.NullString
		collateralJSON  sql.NullString
		chargesJSON     sql.NullString
		status          string
		rejectionReason sql.NullString
		reviewComments  sql.NullString
		interestRate    string
		totalInterest   string
		periodicPayment string
		totalRepayment  string
		processingFee   string
		insuranceFee    string
		amountDisbursed string
		amountRepaid    string
		outstanding     string
		upfront         int
		approvedBy      sql.NullString
		approvedAt      sql.NullString
		disbursedAt     sql.NullString
		createdAt       string
		updatedAt       string
	)

	err := rows.Scan(
		&app.ID, &app.ApplicationNumber, &app.MemberID, &app.ProductID,
		&amount, &currency, &app.Term,
		&purpose, &purposeDetails, &method, &mpesaPhone, &bankAccount,
		&guarantorsJSON, &collateralJSON, &chargesJSON,
		&status, &rejectionReason, &reviewComments,
		&interestRate, &totalInterest, &periodicPayment, &totalRepayment,
		&processingFee, &insuranceFee, &amountDisbursed, &amountRepaid,
		&outstanding, &upfront,
		&approvedBy, &approvedAt, &disbursedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan application: %w", err)
	}

	app.Amount = parseAmount(amount, currency)
	app.Purpose = purpose.String
	app.PurposeDetails = purposeDetails.String
	app.DisbursementMethod = loan.DisbursementMethod(method)
	app.MpesaPhone = mpesaPhone.String
	app.BankAccount = bankAccount.String
	app.Status = loan.Status(status)
	app.RejectionReason = rejectionReason.String
	app.ReviewComments = reviewComments.String

	app.InterestRate = ledger.MustParseDecimal(interestRate)
	app.TotalInterest = parseAmount(totalInterest, currency)
	app.PeriodicPayment = parseAmount(periodicPayment, currency)
	app.TotalRepayment = parseAmount(totalRepayment, currency)
	app.ProcessingFee = parseAmount(processingFee, currency)
	app.InsuranceFee = parseAmount(insuranceFee, currency)
	app.AmountDisbursed = parseAmount(amountDisbursed, currency)
	app.AmountRepaid = parseAmount(amountRepaid, currency)
	app.OutstandingBalance = parseAmount(outstanding, currency)
	app.InterestDeductedUpfront = upfront != 0

	app.ApprovedBy = approvedBy.String
	app.ApprovedAt = scanTime(approvedAt)
	app.DisbursedAt = scanTime(disbursedAt)
	app.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	app.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	if guarantorsJSON.Valid && guarantorsJSON.String != "" {
		json.Unmarshal([]byte(guarantorsJSON.String), &app.GuarantorIDs)
	}
	if collateralJSON.Valid && collateralJSON.String != "" {
		json.Unmarshal([]byte(collateralJSON.String), &app.Collateral)
	}
	if chargesJSON.Valid && chargesJSON.String != "" {
		json.Unmarshal([]byte(chargesJSON.String), &app.ExtraCharges)
	}

	return &app, nil
}

// =============================================================================
// REPAYMENTS
// =============================================================================

func (s *Store) SaveRepayment(ctx context.Context, r *loan.Repayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	// Repayments are immutable: insert only, never upsert.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repayments
		(id, repayment_number, loan_id, amount, principal_amount, interest_amount,
		 penalty_amount, currency, payment_method, reference, payment_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.RepaymentNumber, r.LoanID,
		r.Amount.Value.String(), r.PrincipalAmount.Value.String(),
		r.InterestAmount.Value.String(), r.PenaltyAmount.Value.String(),
		string(r.Amount.Currency), r.PaymentMethod, r.Reference,
		r.PaymentDate.UTC().Format(time.RFC3339), createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save repayment: %w", err)
	}
	return nil
}

func (s *Store) GetRepaymentsByLoan(ctx context.Context, loanID string) ([]*loan.Repayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repayment_number, loan_id, amount, principal_amount, interest_amount,
		       penalty_amount, currency, payment_method, reference, payment_date, created_at
		FROM repayments
		WHERE loan_id = ?
		ORDER BY payment_date ASC, created_at ASC
	`, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query repayments: %w", err)
	}
	defer rows.Close()

	var repayments []*loan.Repayment
	for rows.Next() {
		var (
			r             loan.Repayment
			amount        string
			principal     string
			interest      string
			penalty       string
			currency      string
			paymentMethod sql.NullString
			reference     sql.NullString
			paymentDate   string
			createdAt     string
		)
		if err := rows.Scan(&r.ID, &r.RepaymentNumber, &r.LoanID, &amount, &principal,
			&interest, &penalty, &currency, &paymentMethod, &reference, &paymentDate, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan repayment: %w", err)
		}
		r.Amount = parseAmount(amount, currency)
		r.PrincipalAmount = parseAmount(principal, currency)
		r.InterestAmount = parseAmount(interest, currency)
		r.PenaltyAmount = parseAmount(penalty, currency)
		r.PaymentMethod = paymentMethod.String
		r.Reference = reference.String
		r.PaymentDate, _ = time.Parse(time.RFC3339, paymentDate)
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		repayments = append(repayments, &r)
	}
	return repayments, rows.Err()
}

// NextRepaymentNumber issues the next RP-NNNNNN number.
func (s *Store) NextRepaymentNumber(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.nextCounter(ctx, "repayment")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("RP-%06d", n), nil
}

// =============================================================================
// PENALTY ASSESSMENTS
// =============================================================================

// SavePenaltyAssessment records a penalty. The UNIQUE(loan_id,
// installment_no) index makes a second assessment of the same
// installment a no-op.
func (s *Store) SavePenaltyAssessment(ctx context.Context, p *loan.PenaltyAssessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO penalty_assessments (id, loan_id, installment_no, amount, currency, assessed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(loan_id, installment_no) DO NOTHING
	`,
		p.ID, p.LoanID, p.InstallmentNo,
		p.Amount.Value.String(), string(p.Amount.Currency),
		p.AssessedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save penalty assessment: %w", err)
	}
	return nil
}

func (s *Store) GetPenaltyAssessmentsByLoan(ctx context.Context, loanID string) ([]*loan.PenaltyAssessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, loan_id, installment_no, amount, currency, assessed_at
		FROM penalty_assessments
		WHERE loan_id = ?
		ORDER BY installment_no ASC
	`, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query penalty assessments: %w", err)
	}
	defer rows.Close()

	var assessments []*loan.PenaltyAssessment
	for rows.Next() {
		var (
			p          loan.PenaltyAssessment
			amount     string
			currency   string
			assessedAt string
		)
		if err := rows.Scan(&p.ID, &p.LoanID, &p.InstallmentNo, &amount, &currency, &assessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan penalty assessment: %w", err)
		}
		p.Amount = parseAmount(amount, currency)
		p.AssessedAt, _ = time.Parse(time.RFC3339, assessedAt)
		assessments = append(assessments, &p)
	}
	return assessments, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
