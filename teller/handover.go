/*
handover.go - Shift handover handshake between two tellers

PURPOSE:
  Moves cash from one teller's float to another's at shift change. The
  handshake is strictly between tellers; no manager is involved.

HANDSHAKE:
  Initiate: amount is optimistically reserved OUT of the initiator's
            float (EntryHold, negative) so it cannot be spent twice.
  Accept:   receiver's float is credited; handover settles.
  Reject:   receiver declines; reservation reversed back to initiator.
  Cancel:   initiator withdraws before acknowledgment; same reversal.

  pending ──▶ accepted
     │  └───▶ rejected
     └──────▶ cancelled

  Every leg is a ledger transaction referencing the handover ID, so the
  full money trail is reconstructable from the ledger alone.

SEE ALSO:
  - float.go: Balance pre-check used at initiation
*/
package teller

import (
	"context"

	"github.com/google/uuid"

	"github.com/mkopo/sacco-engine/ledger"
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

type HandoverStore interface {
	SaveHandover(ctx context.Context, h *Handover) error
	GetHandover(ctx context.Context, id string) (*Handover, error)
	ListHandoversByFloat(ctx context.Context, floatID string) ([]*Handover, error)
}

// =============================================================================
// HANDSHAKE OPERATIONS
// =============================================================================

// InitiateHandover reserves amount out of the initiator's float pending
// the receiver's acknowledgment.
func (s *Service) InitiateHandover(ctx context.Context, fromFloatID, toFloatID string, amount ledger.Amount, actorID string) (*Handover, error) {
	from, err := s.openFloat(ctx, fromFloatID, "hand over from")
	if err != nil {
		return nil, err
	}
	// Receiver float must exist and be open to take custody.
	if _, err := s.openFloat(ctx, toFloatID, "hand over to"); err != nil {
		return nil, err
	}

	balance, err := s.Balance(ctx, fromFloatID)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(amount) {
		return nil, &ledger.InsufficientBalanceError{
			AccountID: FloatAccountID(fromFloatID),
			Available: balance,
			Requested: amount,
			Shortfall: amount.Sub(balance),
		}
	}

	now := s.now()
	h := &Handover{
		ID:          uuid.NewString(),
		FromFloatID: from.ID,
		ToFloatID:   toFloatID,
		Amount:      amount,
		Status:      HandoverPending,
		InitiatedBy: actorID,
		CreatedAt:   now,
	}
	// Optimistic reservation out of the initiator's float. The hold
	// lands before the handover record: a pending record must never
	// exist without the cash actually reserved.
	err = s.Ledger.Append(ctx, ledger.Transaction{
		ID:             ledger.TransactionID(uuid.NewString()),
		AccountID:      FloatAccountID(from.ID),
		AccountKind:    AccountFloat,
		EffectiveAt:    now,
		Delta:          amount.Neg(),
		Type:           ledger.EntryHold,
		ReferenceID:    h.ID,
		Reason:         "shift handover reserved",
		IdempotencyKey: "handover-hold-" + h.ID,
		CreatedBy:      actorID,
		CreatedByType:  "teller",
		CreatedAt:      now,
	})
	if err != nil {
		return nil, err
	}

	if err := s.Handovers.SaveHandover(ctx, h); err != nil {
		// Release the reservation so the cash is not stranded on a
		// handover nobody can look up.
		_ = s.Ledger.Append(ctx, ledger.Transaction{
			ID:             ledger.TransactionID(uuid.NewString()),
			AccountID:      FloatAccountID(from.ID),
			AccountKind:    AccountFloat,
			EffectiveAt:    now,
			Delta:          amount,
			Type:           ledger.EntryReversal,
			ReferenceID:    h.ID,
			Reason:         "shift handover record failed, hold released",
			IdempotencyKey: "handover-unwind-" + h.ID,
			CreatedBy:      actorID,
			CreatedByType:  "teller",
			CreatedAt:      now,
		})
		return nil, err
	}
	return h, nil
}

// AcceptHandover credits the receiver's float and settles the handover.
func (s *Service) AcceptHandover(ctx context.Context, handoverID, actorID string) (*Handover, error) {
	h, err := s.pendingHandover(ctx, handoverID, "accept")
	if err != nil {
		return nil, err
	}

	now := s.now()
	err = s.Ledger.Append(ctx, ledger.Transaction{
		ID:             ledger.TransactionID(uuid.NewString()),
		AccountID:      FloatAccountID(h.ToFloatID),
		AccountKind:    AccountFloat,
		EffectiveAt:    now,
		Delta:          h.Amount,
		Type:           ledger.EntryDeposit,
		ReferenceID:    h.ID,
		Reason:         "shift handover accepted",
		IdempotencyKey: "handover-accept-" + h.ID,
		CreatedBy:      actorID,
		CreatedByType:  "teller",
		CreatedAt:      now,
	})
	if err != nil {
		return nil, err
	}

	h.Status = HandoverAccepted
	h.SettledBy = actorID
	h.SettledAt = &now
	if err := s.Handovers.SaveHandover(ctx, h); err != nil {
		return nil, err
	}
	s.audit(ctx, ledger.AuditHandoverSettled, actorID, FloatAccountID(h.ToFloatID),
		map[string]any{"handover_id": h.ID, "outcome": "accepted"})
	return h, nil
}

// RejectHandover returns the reserved amount to the initiator.
func (s *Service) RejectHandover(ctx context.Context, handoverID, actorID string) (*Handover, error) {
	return s.unwind(ctx, handoverID, actorID, HandoverRejected, "shift handover rejected")
}

// CancelHandover lets the initiator withdraw before acknowledgment.
func (s *Service) CancelHandover(ctx context.Context, handoverID, actorID string) (*Handover, error) {
	return s.unwind(ctx, handoverID, actorID, HandoverCancelled, "shift handover cancelled")
}

func (s *Service) pendingHandover(ctx context.Context, id, op string) (*Handover, error) {
	h, err := s.Handovers.GetHandover(ctx, id)
	if err != nil {
		return nil, err
	}
	if h.Status != HandoverPending {
		return nil, &StateError{Kind: "handover", ID: h.ID, Status: string(h.Status), Op: op}
	}
	return h, nil
}

func (s *Service) unwind(ctx context.Context, handoverID, actorID string, to HandoverStatus, reason string) (*Handover, error) {
	h, err := s.pendingHandover(ctx, handoverID, string(to))
	if err != nil {
		return nil, err
	}

	now := s.now()
	err = s.Ledger.Append(ctx, ledger.Transaction{
		ID:             ledger.TransactionID(uuid.NewString()),
		AccountID:      FloatAccountID(h.FromFloatID),
		AccountKind:    AccountFloat,
		EffectiveAt:    now,
		Delta:          h.Amount,
		Type:           ledger.EntryReversal,
		ReferenceID:    h.ID,
		Reason:         reason,
		IdempotencyKey: "handover-unwind-" + h.ID,
		CreatedBy:      actorID,
		CreatedByType:  "teller",
		CreatedAt:      now,
	})
	if err != nil {
		return nil, err
	}

	h.Status = to
	h.SettledBy = actorID
	h.SettledAt = &now
	if err := s.Handovers.SaveHandover(ctx, h); err != nil {
		return nil, err
	}
	s.audit(ctx, ledger.AuditHandoverSettled, actorID, FloatAccountID(h.FromFloatID),
		map[string]any{"handover_id": h.ID, "outcome": string(to)})
	return h, nil
}
