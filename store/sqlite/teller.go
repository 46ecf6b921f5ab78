package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mkopo/sacco-engine/ledger"
	"github.com/mkopo/sacco-engine/teller"
)

// Compile-time interface checks.
var (
	_ teller.FloatStore      = (*Store)(nil)
	_ teller.ShortageStore   = (*Store)(nil)
	_ teller.HandoverStore   = (*Store)(nil)
	_ teller.CredentialStore = (*Store)(nil)
)

const dayFormat = "2006-01-02"

// =============================================================================
// FLOATS
// =============================================================================

func (s *Store) SaveFloat(ctx context.Context, f *teller.Float) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	createdAt := f.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO floats
		(id, staff_id, branch_id, date, opening_balance, currency, status,
		 physical_count, variance, created_at, updated_at, reconciled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			physical_count = excluded.physical_count,
			variance = excluded.variance,
			updated_at = excluded.updated_at,
			reconciled_at = excluded.reconciled_at
	`,
		f.ID, f.StaffID, f.BranchID, f.Date.Format(dayFormat),
		f.OpeningBalance.Value.String(), string(f.OpeningBalance.Currency),
		string(f.Status),
		nullAmount(f.PhysicalCount), nullAmount(f.Variance),
		createdAt.Format(time.RFC3339), now.Format(time.RFC3339),
		nullTime(f.ReconciledAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return teller.ErrFloatExists
		}
		return fmt.Errorf("failed to save float: %w", err)
	}
	return nil
}

const floatColumns = `
	SELECT id, staff_id, branch_id, date, opening_balance, currency, status,
	       physical_count, variance, created_at, updated_at, reconciled_at
`

func (s *Store) GetFloat(ctx context.Context, id string) (*teller.Float, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	floats, err := s.queryFloats(ctx, floatColumns+" FROM floats WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(floats) == 0 {
		return nil, teller.ErrFloatNotFound
	}
	return floats[0], nil
}

func (s *Store) GetFloatByStaffDate(ctx context.Context, staffID string, date time.Time) (*teller.Float, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	floats, err := s.queryFloats(ctx,
		floatColumns+" FROM floats WHERE staff_id = ? AND date = ?",
		staffID, date.Format(dayFormat))
	if err != nil {
		return nil, err
	}
	if len(floats) == 0 {
		return nil, teller.ErrFloatNotFound
	}
	return floats[0], nil
}

// ListFloats returns a branch's floats, newest day first.
func (s *Store) ListFloats(ctx context.Context, branchID string) ([]*teller.Float, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryFloats(ctx,
		floatColumns+" FROM floats WHERE branch_id = ? ORDER BY date DESC, staff_id ASC",
		branchID)
}

func (s *Store) queryFloats(ctx context.Context, query string, args ...any) ([]*teller.Float, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query floats: %w", err)
	}
	defer rows.Close()

	var floats []*teller.Float
	for rows.Next() {
		var (
			f             teller.Float
			date          string
			opening       string
			currency      string
			status        string
			physicalCount sql.NullString
			variance      sql.NullString
			createdAt     string
			updatedAt     string
			reconciledAt  sql.NullString
		)
		if err := rows.Scan(&f.ID, &f.StaffID, &f.BranchID, &date, &opening, &currency,
			&status, &physicalCount, &variance, &createdAt, &updatedAt, &reconciledAt); err != nil {
			return nil, fmt.Errorf("failed to scan float: %w", err)
		}
		f.Date, _ = time.Parse(dayFormat, date)
		f.OpeningBalance = parseAmount(opening, currency)
		f.Status = teller.FloatStatus(status)
		f.PhysicalCount = scanAmount(physicalCount, currency)
		f.Variance = scanAmount(variance, currency)
		f.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		f.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		f.ReconciledAt = scanTime(reconciledAt)
		floats = append(floats, &f)
	}
	return floats, rows.Err()
}

// =============================================================================
// SHORTAGES
// =============================================================================

func (s *Store) SaveShortage(ctx context.Context, sh *teller.Shortage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := sh.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shortages
		(id, teller_float_id, amount, currency, status, approved_by, resolved_by, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			approved_by = excluded.approved_by,
			resolved_by = excluded.resolved_by,
			resolved_at = excluded.resolved_at
	`,
		sh.ID, sh.TellerFloatID,
		sh.Amount.Value.String(), string(sh.Amount.Currency),
		string(sh.Status), sh.ApprovedBy, sh.ResolvedBy,
		createdAt.Format(time.RFC3339), nullTime(sh.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save shortage: %w", err)
	}
	return nil
}

const shortageColumns = `
	SELECT id, teller_float_id, amount, currency, status, approved_by, resolved_by, created_at, resolved_at
`

func (s *Store) GetShortage(ctx context.Context, id string) (*teller.Shortage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shortages, err := s.queryShortages(ctx, shortageColumns+" FROM shortages WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(shortages) == 0 {
		return nil, teller.ErrShortageNotFound
	}
	return shortages[0], nil
}

// ListShortages returns shortages, optionally filtered by status.
func (s *Store) ListShortages(ctx context.Context, status teller.ShortageStatus) ([]*teller.Shortage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if status == "" {
		return s.queryShortages(ctx, shortageColumns+" FROM shortages ORDER BY created_at DESC")
	}
	return s.queryShortages(ctx,
		shortageColumns+" FROM shortages WHERE status = ? ORDER BY created_at DESC",
		string(status))
}

func (s *Store) queryShortages(ctx context.Context, query string, args ...any) ([]*teller.Shortage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query shortages: %w", err)
	}
	defer rows.Close()

	var shortages []*teller.Shortage
	for rows.Next() {
		var (
			sh         teller.Shortage
			amount     string
			currency   string
			status     string
			approvedBy sql.NullString
			resolvedBy sql.NullString
			createdAt  string
			resolvedAt sql.NullString
		)
		if err := rows.Scan(&sh.ID, &sh.TellerFloatID, &amount, &currency, &status,
			&approvedBy, &resolvedBy, &createdAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan shortage: %w", err)
		}
		sh.Amount = parseAmount(amount, currency)
		sh.Status = teller.ShortageStatus(status)
		sh.ApprovedBy = approvedBy.String
		sh.ResolvedBy = resolvedBy.String
		sh.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		sh.ResolvedAt = scanTime(resolvedAt)
		shortages = append(shortages, &sh)
	}
	return shortages, rows.Err()
}

// =============================================================================
// HANDOVERS
// =============================================================================

func (s *Store) SaveHandover(ctx context.Context, h *teller.Handover) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := h.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO handovers
		(id, from_float_id, to_float_id, amount, currency, status, initiated_by, settled_by, created_at, settled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			settled_by = excluded.settled_by,
			settled_at = excluded.settled_at
	`,
		h.ID, h.FromFloatID, h.ToFloatID,
		h.Amount.Value.String(), string(h.Amount.Currency),
		string(h.Status), h.InitiatedBy, h.SettledBy,
		createdAt.Format(time.RFC3339), nullTime(h.SettledAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save handover: %w", err)
	}
	return nil
}

const handoverColumns = `
	SELECT id, from_float_id, to_float_id, amount, currency, status, initiated_by, settled_by, created_at, settled_at
`

func (s *Store) GetHandover(ctx context.Context, id string) (*teller.Handover, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	handovers, err := s.queryHandovers(ctx, handoverColumns+" FROM handovers WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(handovers) == 0 {
		return nil, teller.ErrHandoverNotFound
	}
	return handovers[0], nil
}

// ListHandoversByFloat returns handovers where the float is either side.
func (s *Store) ListHandoversByFloat(ctx context.Context, floatID string) ([]*teller.Handover, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryHandovers(ctx,
		handoverColumns+" FROM handovers WHERE from_float_id = ? OR to_float_id = ? ORDER BY created_at DESC",
		floatID, floatID)
}

func (s *Store) queryHandovers(ctx context.Context, query string, args ...any) ([]*teller.Handover, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query handovers: %w", err)
	}
	defer rows.Close()

	var handovers []*teller.Handover
	for rows.Next() {
		var (
			h           teller.Handover
			amount      string
			currency    string
			status      string
			initiatedBy sql.NullString
			settledBy   sql.NullString
			createdAt   string
			settledAt   sql.NullString
		)
		if err := rows.Scan(&h.ID, &h.FromFloatID, &h.ToFloatID, &amount, &currency,
			&status, &initiatedBy, &settledBy, &createdAt, &settledAt); err != nil {
			return nil, fmt.Errorf("failed to scan handover: %w", err)
		}
		h.Amount = parseAmount(amount, currency)
		h.Status = teller.HandoverStatus(status)
		h.InitiatedBy = initiatedBy.String
		h.SettledBy = settledBy.String
		h.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		h.SettledAt = scanTime(settledAt)
		handovers = append(handovers, &h)
	}
	return handovers, rows.Err()
}

// =============================================================================
// STAFF CREDENTIALS
// =============================================================================

func (s *Store) SaveStaffCredential(ctx context.Context, c *teller.StaffCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO staff_credentials (staff_id, password_hash, role)
		VALUES (?, ?, ?)
		ON CONFLICT(staff_id) DO UPDATE SET
			password_hash = excluded.password_hash,
			role = excluded.role
	`, c.StaffID, c.PasswordHash, c.Role)
	if err != nil {
		return fmt.Errorf("failed to save staff credential: %w", err)
	}
	return nil
}

func (s *Store) GetStaffCredential(ctx context.Context, staffID string) (*teller.StaffCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c teller.StaffCredential
	err := s.db.QueryRowContext(ctx,
		"SELECT staff_id, password_hash, role FROM staff_credentials WHERE staff_id = ?",
		staffID,
	).Scan(&c.StaffID, &c.PasswordHash, &c.Role)
	if err == sql.ErrNoRows {
		return nil, teller.ErrVerificationFailed
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get staff credential: %w", err)
	}
	return &c, nil
}

func nullAmount(a *ledger.Amount) sql.NullString {
	if a == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: a.Value.String(), Valid: true}
}

func scanAmount(ns sql.NullString, currency string) *ledger.Amount {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	a := parseAmount(ns.String, currency)
	return &a
}
