/*
float.go - Float lifecycle, reconciliation and shortage workflow

PURPOSE:
  Everything between "teller signs in with a cash drawer" and "drawer is
  counted and closed":
  1. Open: one float per (staff, date), opening balance drawn from vault
  2. Mutations: deposits in, withdrawals out, vault replenishments
  3. Reconcile: physical count vs expected balance
  4. Shortage: deficit -> pending manager approval -> held -> resolved

FLOAT FLOW:

  open ──(reconcile, variance >= 0)──▶ reconciled
   │
   ├──(reconcile, variance < 0)──▶ pending_approval ──(manager)──▶ reconciled
   │                                      │
   │                                      └─ Shortage: pending ─▶ held ─▶
   │                                         resolved (deduct | expense)
   └──(request vault return)──▶ pending_vault_return  (see vault.go)

PRE-CHECKS vs AUTHORITY:
  Withdrawals are pre-checked against the replayed balance here; the
  same check is what a client would do optimistically, but this one is
  the authoritative serialized check (the store mutex/DB serializes
  float mutations).

SHORTAGE RESOLUTION:
  Resolving a held shortage needs out-of-band manager credential
  verification (password re-entry, not merely a role check) and records
  an immutable audit action naming the resolution taken.

SEE ALSO:
  - vault.go: Replenishment source and vault-return handshake
  - handover.go: Teller-to-teller transfers
*/
package teller

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mkopo/sacco-engine/ledger"
)

// =============================================================================
// STORE INTERFACES
// =============================================================================

type FloatStore interface {
	SaveFloat(ctx context.Context, f *Float) error
	GetFloat(ctx context.Context, id string) (*Float, error)
	GetFloatByStaffDate(ctx context.Context, staffID string, date time.Time) (*Float, error)
	ListFloats(ctx context.Context, branchID string) ([]*Float, error)
}

type ShortageStore interface {
	SaveShortage(ctx context.Context, s *Shortage) error
	GetShortage(ctx context.Context, id string) (*Shortage, error)
	ListShortages(ctx context.Context, status ShortageStatus) ([]*Shortage, error)
}

// CredentialVerifier performs out-of-band manager verification.
// Implementations check a password hash AND that the staff member holds
// a manager-grade role; a bare role check is not sufficient.
type CredentialVerifier interface {
	VerifyManager(ctx context.Context, staffID, password string) error
}

// =============================================================================
// SERVICE
// =============================================================================

// Service orchestrates float custody. All balances are replayed from the
// ledger; the service never stores a running balance.
type Service struct {
	Floats    FloatStore
	Shortages ShortageStore
	Handovers HandoverStore
	Ledger    ledger.Ledger
	Audit     ledger.AuditLog
	Verifier  CredentialVerifier

	Currency ledger.Currency

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) currency() ledger.Currency {
	if s.Currency == "" {
		return ledger.KES
	}
	return s.Currency
}

func (s *Service) audit(ctx context.Context, action ledger.AuditAction, actor string, account ledger.AccountID, payload map[string]any) {
	if s.Audit == nil {
		return
	}
	_ = s.Audit.AppendAudit(ctx, ledger.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: s.now().Unix(),
		ActorID:   actor,
		Action:    action,
		AccountID: account,
		Payload:   payload,
	})
}

func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// OPEN / BALANCE
// =============================================================================

// OpenFloat opens a teller's float for the day. At most one float per
// (staff, date); the opening balance is issued out of the branch vault.
func (s *Service) OpenFloat(ctx context.Context, staffID, branchID string, date time.Time, opening ledger.Amount) (*Float, error) {
	date = day(date)

	existing, err := s.Floats.GetFloatByStaffDate(ctx, staffID, date)
	if err != nil && !IsNotFound(err) {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: staff %s on %s", ErrFloatExists, staffID, date.Format("2006-01-02"))
	}

	now := s.now()
	f := &Float{
		ID:             uuid.NewString(),
		StaffID:        staffID,
		BranchID:       branchID,
		Date:           date,
		OpeningBalance: opening,
		Status:         FloatOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.Floats.SaveFloat(ctx, f); err != nil {
		return nil, err
	}

	// Two legs: cash leaves the vault, lands in the float.
	txs := []ledger.Transaction{
		{
			ID:             ledger.TransactionID(uuid.NewString()),
			AccountID:      VaultAccountID(branchID),
			AccountKind:    AccountVault,
			EffectiveAt:    now,
			Delta:          opening.Neg(),
			Type:           ledger.EntryVaultOut,
			ReferenceID:    f.ID,
			Reason:         "float opening issue",
			IdempotencyKey: "float-open-vault-" + f.ID,
			CreatedBy:      staffID,
			CreatedByType:  "teller",
			CreatedAt:      now,
		},
		{
			ID:             ledger.TransactionID(uuid.NewString()),
			AccountID:      FloatAccountID(f.ID),
			AccountKind:    AccountFloat,
			EffectiveAt:    now,
			Delta:          opening,
			Type:           ledger.EntryDeposit,
			ReferenceID:    f.ID,
			Reason:         "opening balance",
			IdempotencyKey: "float-open-" + f.ID,
			CreatedBy:      staffID,
			CreatedByType:  "teller",
			CreatedAt:      now,
		},
	}
	if err := s.Ledger.AppendBatch(ctx, txs); err != nil {
		return nil, err
	}
	s.audit(ctx, ledger.AuditFloatOpened, staffID, FloatAccountID(f.ID),
		map[string]any{"opening_balance": opening.Value.String()})
	return f, nil
}

// Balance replays the float's current balance from the ledger.
func (s *Service) Balance(ctx context.Context, floatID string) (ledger.Amount, error) {
	return s.Ledger.Balance(ctx, FloatAccountID(floatID), s.currency())
}

// =============================================================================
// MUTATIONS - deposit / withdraw / replenish
// =============================================================================

// Deposit records cash taken in at the counter.
func (s *Service) Deposit(ctx context.Context, floatID string, amount ledger.Amount, actorID, reason string) error {
	f, err := s.openFloat(ctx, floatID, "deposit")
	if err != nil {
		return err
	}
	return s.post(ctx, f, amount, ledger.EntryDeposit, actorID, reason)
}

// Withdraw records cash paid out at the counter. Pre-checked against the
// replayed balance: a float can never go negative from a withdrawal.
func (s *Service) Withdraw(ctx context.Context, floatID string, amount ledger.Amount, actorID, reason string) error {
	f, err := s.openFloat(ctx, floatID, "withdraw")
	if err != nil {
		return err
	}

	balance, err := s.Balance(ctx, floatID)
	if err != nil {
		return err
	}
	if balance.LessThan(amount) {
		return &ledger.InsufficientBalanceError{
			AccountID: FloatAccountID(floatID),
			Available: balance,
			Requested: amount,
			Shortfall: amount.Sub(balance),
		}
	}
	return s.post(ctx, f, amount.Neg(), ledger.EntryWithdrawal, actorID, reason)
}

// Replenish tops a float up from the branch vault. Two atomic legs.
func (s *Service) Replenish(ctx context.Context, floatID string, amount ledger.Amount, actorID string) error {
	f, err := s.openFloat(ctx, floatID, "replenish")
	if err != nil {
		return err
	}

	now := s.now()
	ref := uuid.NewString()
	txs := []ledger.Transaction{
		{
			ID:             ledger.TransactionID(uuid.NewString()),
			AccountID:      VaultAccountID(f.BranchID),
			AccountKind:    AccountVault,
			EffectiveAt:    now,
			Delta:          amount.Neg(),
			Type:           ledger.EntryVaultOut,
			ReferenceID:    ref,
			Reason:         "float replenishment",
			IdempotencyKey: "replenish-vault-" + ref,
			CreatedBy:      actorID,
			CreatedByType:  "teller",
			CreatedAt:      now,
		},
		{
			ID:             ledger.TransactionID(uuid.NewString()),
			AccountID:      FloatAccountID(f.ID),
			AccountKind:    AccountFloat,
			EffectiveAt:    now,
			Delta:          amount,
			Type:           ledger.EntryReplenishment,
			ReferenceID:    ref,
			Reason:         "float replenishment",
			IdempotencyKey: "replenish-float-" + ref,
			CreatedBy:      actorID,
			CreatedByType:  "teller",
			CreatedAt:      now,
		},
	}
	return s.Ledger.AppendBatch(ctx, txs)
}

func (s *Service) openFloat(ctx context.Context, floatID, op string) (*Float, error) {
	f, err := s.Floats.GetFloat(ctx, floatID)
	if err != nil {
		return nil, err
	}
	if f.Status != FloatOpen {
		return nil, &StateError{Kind: "float", ID: f.ID, Status: string(f.Status), Op: op}
	}
	return f, nil
}

func (s *Service) post(ctx context.Context, f *Float, delta ledger.Amount, entry ledger.EntryType, actorID, reason string) error {
	now := s.now()
	return s.Ledger.Append(ctx, ledger.Transaction{
		ID:            ledger.TransactionID(uuid.NewString()),
		AccountID:     FloatAccountID(f.ID),
		AccountKind:   AccountFloat,
		EffectiveAt:   now,
		Delta:         delta,
		Type:          entry,
		Reason:        reason,
		CreatedBy:     actorID,
		CreatedByType: "teller",
		CreatedAt:     now,
	})
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// Reconcile closes out a float against a physical cash count.
//
//	variance = physical_count - current_balance
//	variance >= 0  ->  reconciled (an overage is recorded, never a Shortage)
//	variance <  0  ->  pending_approval + Shortage{pending}
func (s *Service) Reconcile(ctx context.Context, floatID string, physicalCount ledger.Amount, actorID string) (*Float, *Shortage, error) {
	f, err := s.openFloat(ctx, floatID, "reconcile")
	if err != nil {
		return nil, nil, err
	}

	current, err := s.Balance(ctx, floatID)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	variance := physicalCount.Sub(current)
	f.PhysicalCount = &physicalCount
	f.Variance = &variance
	f.UpdatedAt = now

	var shortage *Shortage
	if variance.IsNegative() {
		f.Status = FloatPendingApproval
		shortage = &Shortage{
			ID:            uuid.NewString(),
			TellerFloatID: f.ID,
			Amount:        variance.Abs(),
			Status:        ShortagePending,
			CreatedAt:     now,
		}
		if err := s.Shortages.SaveShortage(ctx, shortage); err != nil {
			return nil, nil, err
		}
	} else {
		f.Status = FloatReconciled
		f.ReconciledAt = &now
	}

	if err := s.Floats.SaveFloat(ctx, f); err != nil {
		return nil, nil, err
	}
	s.audit(ctx, ledger.AuditFloatReconciled, actorID, FloatAccountID(f.ID),
		map[string]any{"variance": variance.Value.String(), "status": string(f.Status)})
	return f, shortage, nil
}

// ApproveShortage is the manager sign-off on a detected shortage: the
// float closes (reconciled) while the shortage itself moves to held,
// awaiting a resolution decision.
func (s *Service) ApproveShortage(ctx context.Context, shortageID, managerID string) (*Shortage, error) {
	sh, err := s.Shortages.GetShortage(ctx, shortageID)
	if err != nil {
		return nil, err
	}
	if sh.Status != ShortagePending {
		return nil, &StateError{Kind: "shortage", ID: sh.ID, Status: string(sh.Status), Op: "approve"}
	}

	f, err := s.Floats.GetFloat(ctx, sh.TellerFloatID)
	if err != nil {
		return nil, err
	}
	if f.Status != FloatPendingApproval {
		return nil, fmt.Errorf("%w: float %s is %s", ErrFloatNotAwaitingApproval, f.ID, f.Status)
	}

	now := s.now()
	sh.Status = ShortageHeld
	sh.ApprovedBy = managerID
	if err := s.Shortages.SaveShortage(ctx, sh); err != nil {
		return nil, err
	}

	f.Status = FloatReconciled
	f.ReconciledAt = &now
	f.UpdatedAt = now
	if err := s.Floats.SaveFloat(ctx, f); err != nil {
		return nil, err
	}
	s.audit(ctx, ledger.AuditShortageApproved, managerID, FloatAccountID(f.ID),
		map[string]any{"shortage_id": sh.ID, "amount": sh.Amount.Value.String()})
	return sh, nil
}

// ResolveShortage clears a held shortage. Requires out-of-band manager
// credential verification, not merely role-based authorization, and
// records an immutable audit action naming the resolution.
func (s *Service) ResolveShortage(ctx context.Context, shortageID string, resolution Resolution, managerID, managerPassword string) (*Shortage, error) {
	if resolution != ResolveDeductFromSalary && resolution != ResolveWriteOffExpense {
		return nil, fmt.Errorf("%w: unknown resolution %q", ErrShortageNotActionable, resolution)
	}
	if err := s.Verifier.VerifyManager(ctx, managerID, managerPassword); err != nil {
		return nil, err
	}

	sh, err := s.Shortages.GetShortage(ctx, shortageID)
	if err != nil {
		return nil, err
	}
	if sh.Status != ShortageHeld {
		return nil, &StateError{Kind: "shortage", ID: sh.ID, Status: string(sh.Status), Op: "resolve"}
	}

	now := s.now()
	if resolution == ResolveDeductFromSalary {
		sh.Status = ShortageResolvedDeduct
	} else {
		sh.Status = ShortageResolvedExpense
	}
	sh.ResolvedBy = managerID
	sh.ResolvedAt = &now
	if err := s.Shortages.SaveShortage(ctx, sh); err != nil {
		return nil, err
	}
	s.audit(ctx, ledger.AuditShortageResolved, managerID, FloatAccountID(sh.TellerFloatID),
		map[string]any{"shortage_id": sh.ID, "resolution": string(resolution)})
	return sh, nil
}
