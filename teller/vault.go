/*
vault.go - Branch vault and the vault-return handshake

PURPOSE:
  The vault is the branch-level cash pool tellers draw from and return
  to. Direct mutations are source-tagged deposits; everything else goes
  through two-party handshakes:

  VAULT RETURN (teller -> manager):
    teller RequestVaultReturn: float -> pending_vault_return
    manager AcceptVaultReturn: vault balance += float balance,
                               float -> reconciled
    manager RejectVaultReturn: float -> open (re-reconcile later)

  Only the manager's accept moves money; a pending return holds nothing
  out of the vault.

SEE ALSO:
  - float.go: Float lifecycle this handshake closes
*/
package teller

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mkopo/sacco-engine/ledger"
)

// =============================================================================
// VAULT BALANCE AND DEPOSITS
// =============================================================================

// VaultBalance replays the branch vault's balance from the ledger.
func (s *Service) VaultBalance(ctx context.Context, branchID string) (ledger.Amount, error) {
	return s.Ledger.Balance(ctx, VaultAccountID(branchID), s.currency())
}

// VaultDeposit adds cash to the branch vault, tagged with its source
// (head office transfer, bank withdrawal, ...).
func (s *Service) VaultDeposit(ctx context.Context, branchID string, amount ledger.Amount, source, actorID string) error {
	now := s.now()
	return s.Ledger.Append(ctx, ledger.Transaction{
		ID:            ledger.TransactionID(uuid.NewString()),
		AccountID:     VaultAccountID(branchID),
		AccountKind:   AccountVault,
		EffectiveAt:   now,
		Delta:         amount,
		Type:          ledger.EntryDeposit,
		Reason:        "vault deposit",
		Metadata:      map[string]string{"source": source},
		CreatedBy:     actorID,
		CreatedByType: "manager",
		CreatedAt:     now,
	})
}

// =============================================================================
// VAULT RETURN HANDSHAKE
// =============================================================================

// RequestVaultReturn is the teller's half of the handshake: the float
// parks in pending_vault_return until a manager accepts or rejects.
func (s *Service) RequestVaultReturn(ctx context.Context, floatID, actorID string) (*Float, error) {
	f, err := s.openFloat(ctx, floatID, "request vault return")
	if err != nil {
		return nil, err
	}
	f.Status = FloatPendingVaultReturn
	f.UpdatedAt = s.now()
	if err := s.Floats.SaveFloat(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// AcceptVaultReturn is the manager's half: the float's full balance moves
// into the branch vault and the float closes.
func (s *Service) AcceptVaultReturn(ctx context.Context, floatID, managerID string) (*Float, error) {
	f, err := s.Floats.GetFloat(ctx, floatID)
	if err != nil {
		return nil, err
	}
	if f.Status != FloatPendingVaultReturn {
		return nil, fmt.Errorf("%w: float %s is %s", ErrFloatNotAwaitingReturn, f.ID, f.Status)
	}

	balance, err := s.Balance(ctx, floatID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	txs := []ledger.Transaction{
		{
			ID:             ledger.TransactionID(uuid.NewString()),
			AccountID:      FloatAccountID(f.ID),
			AccountKind:    AccountFloat,
			EffectiveAt:    now,
			Delta:          balance.Neg(),
			Type:           ledger.EntryVaultIn,
			ReferenceID:    f.ID,
			Reason:         "vault return",
			IdempotencyKey: "vault-return-float-" + f.ID,
			CreatedBy:      managerID,
			CreatedByType:  "manager",
			CreatedAt:      now,
		},
		{
			ID:             ledger.TransactionID(uuid.NewString()),
			AccountID:      VaultAccountID(f.BranchID),
			AccountKind:    AccountVault,
			EffectiveAt:    now,
			Delta:          balance,
			Type:           ledger.EntryVaultIn,
			ReferenceID:    f.ID,
			Reason:         "vault return accepted",
			IdempotencyKey: "vault-return-vault-" + f.ID,
			CreatedBy:      managerID,
			CreatedByType:  "manager",
			CreatedAt:      now,
		},
	}
	if err := s.Ledger.AppendBatch(ctx, txs); err != nil {
		return nil, err
	}

	f.Status = FloatReconciled
	f.ReconciledAt = &now
	f.UpdatedAt = now
	if err := s.Floats.SaveFloat(ctx, f); err != nil {
		return nil, err
	}
	s.audit(ctx, ledger.AuditVaultReturnAccepted, managerID, VaultAccountID(f.BranchID),
		map[string]any{"float_id": f.ID, "amount": balance.Value.String()})
	return f, nil
}

// RejectVaultReturn leaves the float open for re-reconciliation.
func (s *Service) RejectVaultReturn(ctx context.Context, floatID, managerID string) (*Float, error) {
	f, err := s.Floats.GetFloat(ctx, floatID)
	if err != nil {
		return nil, err
	}
	if f.Status != FloatPendingVaultReturn {
		return nil, fmt.Errorf("%w: float %s is %s", ErrFloatNotAwaitingReturn, f.ID, f.Status)
	}
	f.Status = FloatOpen
	f.UpdatedAt = s.now()
	if err := s.Floats.SaveFloat(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}
