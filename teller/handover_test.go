package teller_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkopo/sacco-engine/ledger"
	"github.com/mkopo/sacco-engine/teller"
)

// twoFloats opens a 50,000 float for jane and a 30,000 float for otieno.
func twoFloats(t *testing.T) (*fixture, *teller.Float, *teller.Float) {
	t.Helper()
	fx := newFixture(t)
	from := fx.openFloat(t, "staff-jane", 50000)
	to := fx.openFloat(t, "staff-otieno", 30000)
	return fx, from, to
}

// =============================================================================
// INITIATE
// =============================================================================

func TestInitiateHandover_ReservesFromInitiator(t *testing.T) {
	// GIVEN: Two open floats
	// WHEN: Jane initiates a 10,000 handover to Otieno
	// THEN: Her float drops immediately, his is untouched until acceptance

	fx, from, to := twoFloats(t)
	ctx := context.Background()

	h, err := fx.svc.InitiateHandover(ctx, from.ID, to.ID, kes(10000), "staff-jane")
	require.NoError(t, err)
	assert.Equal(t, teller.HandoverPending, h.Status)
	assert.Equal(t, "staff-jane", h.InitiatedBy)

	fromBalance, err := fx.svc.Balance(ctx, from.ID)
	require.NoError(t, err)
	assert.True(t, fromBalance.Equal(kes(40000)))

	toBalance, err := fx.svc.Balance(ctx, to.ID)
	require.NoError(t, err)
	assert.True(t, toBalance.Equal(kes(30000)))
}

func TestInitiateHandover_InsufficientBalanceRejected(t *testing.T) {
	fx, from, to := twoFloats(t)

	_, err := fx.svc.InitiateHandover(context.Background(), from.ID, to.ID, kes(60000), "staff-jane")

	var insufficient *ledger.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Shortfall.Equal(kes(10000)))
}

func TestInitiateHandover_ReceiverMustBeOpen(t *testing.T) {
	fx, from, to := twoFloats(t)
	ctx := context.Background()

	_, _, err := fx.svc.Reconcile(ctx, to.ID, kes(30000), "staff-otieno")
	require.NoError(t, err)

	_, err = fx.svc.InitiateHandover(ctx, from.ID, to.ID, kes(10000), "staff-jane")
	require.ErrorIs(t, err, teller.ErrFloatNotOpen)
}

// brokenLedger fails every Append, simulating a write error underneath
// the ledger. All other Ledger methods delegate to the wrapped instance.
type brokenLedger struct {
	ledger.Ledger
}

func (b *brokenLedger) Append(ctx context.Context, tx ledger.Transaction) error {
	return ledger.ErrTransactionFailed
}

func TestInitiateHandover_FailedHoldLeavesNoPendingRecord(t *testing.T) {
	// GIVEN: A ledger that rejects the hold entry
	// WHEN: Jane initiates a handover
	// THEN: No pending handover survives; nothing reserves cash that
	//       was never actually held

	fx, from, to := twoFloats(t)
	ctx := context.Background()

	fx.svc.Ledger = &brokenLedger{Ledger: fx.ledger}
	_, err := fx.svc.InitiateHandover(ctx, from.ID, to.ID, kes(10000), "staff-jane")
	require.ErrorIs(t, err, ledger.ErrTransactionFailed)

	fx.svc.Ledger = fx.ledger
	assert.Empty(t, fx.store.handovers)

	balance, err := fx.svc.Balance(ctx, from.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(kes(50000)))
}

func TestInitiateHandover_FailedSaveReleasesHold(t *testing.T) {
	// GIVEN: A handover store that cannot persist the record
	// WHEN: Jane initiates a handover
	// THEN: The reservation is unwound; her full balance stays spendable

	fx, from, to := twoFloats(t)
	ctx := context.Background()

	fx.store.failSaveHandover = errors.New("disk full")
	_, err := fx.svc.InitiateHandover(ctx, from.ID, to.ID, kes(10000), "staff-jane")
	require.Error(t, err)

	fx.store.failSaveHandover = nil
	assert.Empty(t, fx.store.handovers)

	balance, err := fx.svc.Balance(ctx, from.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(kes(50000)))
}

// =============================================================================
// SETTLE
// =============================================================================

func TestAcceptHandover_CreditsReceiver(t *testing.T) {
	// GIVEN: A pending 10,000 handover
	// WHEN: Otieno accepts
	// THEN: His float is credited and total branch cash is conserved

	fx, from, to := twoFloats(t)
	ctx := context.Background()
	before := fx.cashTotal(t, from.ID, to.ID)

	h, err := fx.svc.InitiateHandover(ctx, from.ID, to.ID, kes(10000), "staff-jane")
	require.NoError(t, err)

	settled, err := fx.svc.AcceptHandover(ctx, h.ID, "staff-otieno")
	require.NoError(t, err)
	assert.Equal(t, teller.HandoverAccepted, settled.Status)
	assert.Equal(t, "staff-otieno", settled.SettledBy)
	require.NotNil(t, settled.SettledAt)

	toBalance, err := fx.svc.Balance(ctx, to.ID)
	require.NoError(t, err)
	assert.True(t, toBalance.Equal(kes(40000)))

	after := fx.cashTotal(t, from.ID, to.ID)
	assert.True(t, after.Equal(before), "before %s after %s", before, after)
}

func TestRejectHandover_ReturnsReservation(t *testing.T) {
	fx, from, to := twoFloats(t)
	ctx := context.Background()

	h, err := fx.svc.InitiateHandover(ctx, from.ID, to.ID, kes(10000), "staff-jane")
	require.NoError(t, err)

	rejected, err := fx.svc.RejectHandover(ctx, h.ID, "staff-otieno")
	require.NoError(t, err)
	assert.Equal(t, teller.HandoverRejected, rejected.Status)

	fromBalance, err := fx.svc.Balance(ctx, from.ID)
	require.NoError(t, err)
	assert.True(t, fromBalance.Equal(kes(50000)), "reservation must unwind")

	toBalance, err := fx.svc.Balance(ctx, to.ID)
	require.NoError(t, err)
	assert.True(t, toBalance.Equal(kes(30000)))
}

func TestCancelHandover_InitiatorWithdraws(t *testing.T) {
	fx, from, to := twoFloats(t)
	ctx := context.Background()

	h, err := fx.svc.InitiateHandover(ctx, from.ID, to.ID, kes(10000), "staff-jane")
	require.NoError(t, err)

	cancelled, err := fx.svc.CancelHandover(ctx, h.ID, "staff-jane")
	require.NoError(t, err)
	assert.Equal(t, teller.HandoverCancelled, cancelled.Status)

	fromBalance, err := fx.svc.Balance(ctx, from.ID)
	require.NoError(t, err)
	assert.True(t, fromBalance.Equal(kes(50000)))
}

func TestHandover_SettlesExactlyOnce(t *testing.T) {
	// A settled handover cannot be accepted, rejected or cancelled again.

	fx, from, to := twoFloats(t)
	ctx := context.Background()

	h, err := fx.svc.InitiateHandover(ctx, from.ID, to.ID, kes(10000), "staff-jane")
	require.NoError(t, err)
	_, err = fx.svc.AcceptHandover(ctx, h.ID, "staff-otieno")
	require.NoError(t, err)

	_, err = fx.svc.AcceptHandover(ctx, h.ID, "staff-otieno")
	require.ErrorIs(t, err, teller.ErrHandoverSettled)

	_, err = fx.svc.RejectHandover(ctx, h.ID, "staff-otieno")
	require.ErrorIs(t, err, teller.ErrHandoverSettled)

	_, err = fx.svc.CancelHandover(ctx, h.ID, "staff-jane")
	require.ErrorIs(t, err, teller.ErrHandoverSettled)
}

func TestHandover_LedgerTrailByReference(t *testing.T) {
	// Every leg of the handshake references the handover ID.

	fx, from, to := twoFloats(t)
	ctx := context.Background()

	h, err := fx.svc.InitiateHandover(ctx, from.ID, to.ID, kes(10000), "staff-jane")
	require.NoError(t, err)
	_, err = fx.svc.AcceptHandover(ctx, h.ID, "staff-otieno")
	require.NoError(t, err)

	txs, err := fx.ledger.TransactionsByReference(ctx, h.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	net := kes(0)
	for _, tx := range txs {
		net = net.Add(tx.Delta)
	}
	assert.True(t, net.IsZero(), "handover legs must net to zero")
}
