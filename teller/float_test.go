package teller_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkopo/sacco-engine/ledger"
	"github.com/mkopo/sacco-engine/ledger/store"
	"github.com/mkopo/sacco-engine/teller"
)

// =============================================================================
// IN-MEMORY STORES
// =============================================================================

type memStore struct {
	floats      map[string]*teller.Float
	shortages   map[string]*teller.Shortage
	handovers   map[string]*teller.Handover
	credentials map[string]*teller.StaffCredential

	// Toggled by tests exercising partial-failure recovery.
	failSaveHandover error
}

func newMemStore() *memStore {
	return &memStore{
		floats:      map[string]*teller.Float{},
		shortages:   map[string]*teller.Shortage{},
		handovers:   map[string]*teller.Handover{},
		credentials: map[string]*teller.StaffCredential{},
	}
}

func (m *memStore) SaveFloat(ctx context.Context, f *teller.Float) error {
	copied := *f
	m.floats[f.ID] = &copied
	return nil
}

func (m *memStore) GetFloat(ctx context.Context, id string) (*teller.Float, error) {
	f, ok := m.floats[id]
	if !ok {
		return nil, teller.ErrFloatNotFound
	}
	copied := *f
	return &copied, nil
}

func (m *memStore) GetFloatByStaffDate(ctx context.Context, staffID string, date time.Time) (*teller.Float, error) {
	for _, f := range m.floats {
		if f.StaffID == staffID && f.Date.Equal(date) {
			copied := *f
			return &copied, nil
		}
	}
	return nil, teller.ErrFloatNotFound
}

func (m *memStore) ListFloats(ctx context.Context, branchID string) ([]*teller.Float, error) {
	var out []*teller.Float
	for _, f := range m.floats {
		if f.BranchID == branchID {
			copied := *f
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memStore) SaveShortage(ctx context.Context, s *teller.Shortage) error {
	copied := *s
	m.shortages[s.ID] = &copied
	return nil
}

func (m *memStore) GetShortage(ctx context.Context, id string) (*teller.Shortage, error) {
	s, ok := m.shortages[id]
	if !ok {
		return nil, teller.ErrShortageNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *memStore) ListShortages(ctx context.Context, status teller.ShortageStatus) ([]*teller.Shortage, error) {
	var out []*teller.Shortage
	for _, s := range m.shortages {
		if status == "" || s.Status == status {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memStore) SaveHandover(ctx context.Context, h *teller.Handover) error {
	if m.failSaveHandover != nil {
		return m.failSaveHandover
	}
	copied := *h
	m.handovers[h.ID] = &copied
	return nil
}

func (m *memStore) GetHandover(ctx context.Context, id string) (*teller.Handover, error) {
	h, ok := m.handovers[id]
	if !ok {
		return nil, teller.ErrHandoverNotFound
	}
	copied := *h
	return &copied, nil
}

func (m *memStore) ListHandoversByFloat(ctx context.Context, floatID string) ([]*teller.Handover, error) {
	var out []*teller.Handover
	for _, h := range m.handovers {
		if h.FromFloatID == floatID || h.ToFloatID == floatID {
			copied := *h
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memStore) GetStaffCredential(ctx context.Context, staffID string) (*teller.StaffCredential, error) {
	c, ok := m.credentials[staffID]
	if !ok {
		return nil, teller.ErrVerificationFailed
	}
	return c, nil
}

// =============================================================================
// FIXTURE
// =============================================================================

var (
	testNow  = time.Date(2026, time.July, 6, 8, 30, 0, 0, time.UTC)
	testDate = time.Date(2026, time.July, 6, 0, 0, 0, 0, time.UTC)
)

const branch = "BR-001"

type fixture struct {
	svc    *teller.Service
	store  *memStore
	ledger *ledger.DefaultLedger
}

func kes(v float64) ledger.Amount {
	return ledger.NewAmount(v, ledger.KES)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := newMemStore()
	led := ledger.NewLedger(store.NewMemory())
	svc := &teller.Service{
		Floats:    mem,
		Shortages: mem,
		Handovers: mem,
		Ledger:    led,
		Verifier:  &teller.BcryptVerifier{Credentials: mem},
		Currency:  ledger.KES,
		Now:       func() time.Time { return testNow },
	}
	fx := &fixture{svc: svc, store: mem, ledger: led}

	// Stock the branch vault so floats can be issued.
	require.NoError(t, svc.VaultDeposit(context.Background(), branch, kes(200000), "cit_delivery", "staff-grace"))
	return fx
}

func (fx *fixture) openFloat(t *testing.T, staffID string, opening float64) *teller.Float {
	t.Helper()
	f, err := fx.svc.OpenFloat(context.Background(), staffID, branch, testDate, kes(opening))
	require.NoError(t, err)
	return f
}

func (fx *fixture) addManager(t *testing.T, staffID, password string) {
	t.Helper()
	hash, err := teller.HashPassword(password)
	require.NoError(t, err)
	fx.store.credentials[staffID] = &teller.StaffCredential{
		StaffID: staffID, PasswordHash: hash, Role: "branch_manager",
	}
}

// cashTotal sums the vault and the given floats: conserved under every
// internal movement.
func (fx *fixture) cashTotal(t *testing.T, floatIDs ...string) ledger.Amount {
	t.Helper()
	ctx := context.Background()
	total, err := fx.svc.VaultBalance(ctx, branch)
	require.NoError(t, err)
	for _, id := range floatIDs {
		b, err := fx.svc.Balance(ctx, id)
		require.NoError(t, err)
		total = total.Add(b)
	}
	return total
}

// =============================================================================
// OPEN / BALANCE
// =============================================================================

func TestOpenFloat_IssuesFromVault(t *testing.T) {
	// GIVEN: A vault holding 200,000
	// WHEN: Opening a 50,000 float
	// THEN: The vault drops and the float's replayed balance matches

	fx := newFixture(t)
	ctx := context.Background()
	f := fx.openFloat(t, "staff-jane", 50000)

	assert.Equal(t, teller.FloatOpen, f.Status)

	vault, err := fx.svc.VaultBalance(ctx, branch)
	require.NoError(t, err)
	assert.True(t, vault.Equal(kes(150000)))

	balance, err := fx.svc.Balance(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(kes(50000)))
}

func TestOpenFloat_OnePerStaffPerDay(t *testing.T) {
	fx := newFixture(t)
	fx.openFloat(t, "staff-jane", 50000)

	_, err := fx.svc.OpenFloat(context.Background(), "staff-jane", branch, testDate, kes(10000))
	require.ErrorIs(t, err, teller.ErrFloatExists)
}

func TestOpenFloat_SameStaffDifferentDayAllowed(t *testing.T) {
	fx := newFixture(t)
	fx.openFloat(t, "staff-jane", 50000)

	_, err := fx.svc.OpenFloat(context.Background(), "staff-jane", branch,
		testDate.AddDate(0, 0, 1), kes(10000))
	require.NoError(t, err)
}

// =============================================================================
// MUTATIONS
// =============================================================================

func TestBalance_ReplaysAllMovements(t *testing.T) {
	// current = opening + deposits + replenishments - withdrawals

	fx := newFixture(t)
	ctx := context.Background()
	f := fx.openFloat(t, "staff-jane", 50000)

	require.NoError(t, fx.svc.Deposit(ctx, f.ID, kes(12000), "staff-jane", "member deposit"))
	require.NoError(t, fx.svc.Withdraw(ctx, f.ID, kes(7000), "staff-jane", "member withdrawal"))
	require.NoError(t, fx.svc.Replenish(ctx, f.ID, kes(5000), "staff-jane"))

	balance, err := fx.svc.Balance(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(kes(60000)), "balance: %s", balance)
}

func TestWithdraw_InsufficientBalanceRejected(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.openFloat(t, "staff-jane", 5000)

	err := fx.svc.Withdraw(ctx, f.ID, kes(6000), "staff-jane", "member withdrawal")

	var insufficient *ledger.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Shortfall.Equal(kes(1000)))

	// Balance unchanged after the rejected withdrawal.
	balance, err := fx.svc.Balance(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(kes(5000)))
}

func TestReplenish_ConservesBranchCash(t *testing.T) {
	// GIVEN: A vault and an open float
	// WHEN: Replenishing the float
	// THEN: Vault + float total is unchanged

	fx := newFixture(t)
	f := fx.openFloat(t, "staff-jane", 50000)
	before := fx.cashTotal(t, f.ID)

	require.NoError(t, fx.svc.Replenish(context.Background(), f.ID, kes(20000), "staff-jane"))

	after := fx.cashTotal(t, f.ID)
	assert.True(t, after.Equal(before), "before %s after %s", before, after)
}

func TestMutations_RejectedOnClosedFloat(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.openFloat(t, "staff-jane", 5000)

	_, _, err := fx.svc.Reconcile(ctx, f.ID, kes(5000), "staff-jane")
	require.NoError(t, err)

	err = fx.svc.Deposit(ctx, f.ID, kes(100), "staff-jane", "late deposit")
	require.ErrorIs(t, err, teller.ErrFloatNotOpen)
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func TestReconcile_ExactCountCloses(t *testing.T) {
	fx := newFixture(t)
	f := fx.openFloat(t, "staff-jane", 50000)

	closed, shortage, err := fx.svc.Reconcile(context.Background(), f.ID, kes(50000), "staff-jane")
	require.NoError(t, err)
	assert.Nil(t, shortage)
	assert.Equal(t, teller.FloatReconciled, closed.Status)
	require.NotNil(t, closed.Variance)
	assert.True(t, closed.Variance.IsZero())
	require.NotNil(t, closed.ReconciledAt)
}

func TestReconcile_OverageClosesWithPositiveVariance(t *testing.T) {
	// An overage is recorded on the float but never raises a Shortage.

	fx := newFixture(t)
	f := fx.openFloat(t, "staff-jane", 50000)

	closed, shortage, err := fx.svc.Reconcile(context.Background(), f.ID, kes(50200), "staff-jane")
	require.NoError(t, err)
	assert.Nil(t, shortage)
	assert.Equal(t, teller.FloatReconciled, closed.Status)
	assert.True(t, closed.Variance.Equal(kes(200)))
}

func TestReconcile_DeficitRaisesShortage(t *testing.T) {
	// GIVEN: A float expected to hold 50,000
	// WHEN: The physical count finds 48,500
	// THEN: The float parks pending approval with a pending 1,500 shortage

	fx := newFixture(t)
	f := fx.openFloat(t, "staff-jane", 50000)

	parked, shortage, err := fx.svc.Reconcile(context.Background(), f.ID, kes(48500), "staff-jane")
	require.NoError(t, err)
	require.NotNil(t, shortage)

	assert.Equal(t, teller.FloatPendingApproval, parked.Status)
	assert.Nil(t, parked.ReconciledAt)
	assert.Equal(t, teller.ShortagePending, shortage.Status)
	assert.True(t, shortage.Amount.Equal(kes(1500)))
	assert.Equal(t, f.ID, shortage.TellerFloatID)
}

func TestApproveShortage_ClosesFloatHoldsShortage(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.openFloat(t, "staff-jane", 50000)
	_, shortage, err := fx.svc.Reconcile(ctx, f.ID, kes(48500), "staff-jane")
	require.NoError(t, err)

	held, err := fx.svc.ApproveShortage(ctx, shortage.ID, "staff-grace")
	require.NoError(t, err)
	assert.Equal(t, teller.ShortageHeld, held.Status)
	assert.Equal(t, "staff-grace", held.ApprovedBy)

	closed, err := fx.store.GetFloat(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, teller.FloatReconciled, closed.Status)
}

func TestResolveShortage_RequiresManagerCredentials(t *testing.T) {
	// GIVEN: A held shortage
	// WHEN: Resolving with a wrong password, then the right one
	// THEN: Only verified manager credentials clear it

	fx := newFixture(t)
	ctx := context.Background()
	fx.addManager(t, "staff-grace", "manager123")

	f := fx.openFloat(t, "staff-jane", 50000)
	_, shortage, err := fx.svc.Reconcile(ctx, f.ID, kes(48500), "staff-jane")
	require.NoError(t, err)
	_, err = fx.svc.ApproveShortage(ctx, shortage.ID, "staff-grace")
	require.NoError(t, err)

	_, err = fx.svc.ResolveShortage(ctx, shortage.ID,
		teller.ResolveDeductFromSalary, "staff-grace", "wrong")
	require.ErrorIs(t, err, teller.ErrVerificationFailed)

	resolved, err := fx.svc.ResolveShortage(ctx, shortage.ID,
		teller.ResolveDeductFromSalary, "staff-grace", "manager123")
	require.NoError(t, err)
	assert.Equal(t, teller.ShortageResolvedDeduct, resolved.Status)
	assert.Equal(t, "staff-grace", resolved.ResolvedBy)
	require.NotNil(t, resolved.ResolvedAt)
}

func TestResolveShortage_TellerRoleRejected(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	hash, err := teller.HashPassword("teller123")
	require.NoError(t, err)
	fx.store.credentials["staff-otieno"] = &teller.StaffCredential{
		StaffID: "staff-otieno", PasswordHash: hash, Role: "teller",
	}

	f := fx.openFloat(t, "staff-jane", 50000)
	_, shortage, err := fx.svc.Reconcile(ctx, f.ID, kes(48000), "staff-jane")
	require.NoError(t, err)
	_, err = fx.svc.ApproveShortage(ctx, shortage.ID, "staff-grace")
	require.NoError(t, err)

	_, err = fx.svc.ResolveShortage(ctx, shortage.ID,
		teller.ResolveWriteOffExpense, "staff-otieno", "teller123")
	require.ErrorIs(t, err, teller.ErrVerificationFailed)
}

func TestResolveShortage_MustBeHeldFirst(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.addManager(t, "staff-grace", "manager123")

	f := fx.openFloat(t, "staff-jane", 50000)
	_, shortage, err := fx.svc.Reconcile(ctx, f.ID, kes(48500), "staff-jane")
	require.NoError(t, err)

	// Still pending: resolution must wait for the approval step.
	_, err = fx.svc.ResolveShortage(ctx, shortage.ID,
		teller.ResolveWriteOffExpense, "staff-grace", "manager123")
	require.ErrorIs(t, err, teller.ErrShortageNotActionable)
}

// =============================================================================
// VAULT RETURN
// =============================================================================

func TestVaultReturn_AcceptMovesFullBalance(t *testing.T) {
	// GIVEN: An open float holding 50,000
	// WHEN: The teller requests a return and the manager accepts
	// THEN: The full balance lands back in the vault and the float closes

	fx := newFixture(t)
	ctx := context.Background()
	f := fx.openFloat(t, "staff-jane", 50000)

	parked, err := fx.svc.RequestVaultReturn(ctx, f.ID, "staff-jane")
	require.NoError(t, err)
	assert.Equal(t, teller.FloatPendingVaultReturn, parked.Status)

	// A pending request moves no money.
	vault, err := fx.svc.VaultBalance(ctx, branch)
	require.NoError(t, err)
	assert.True(t, vault.Equal(kes(150000)))

	closed, err := fx.svc.AcceptVaultReturn(ctx, f.ID, "staff-grace")
	require.NoError(t, err)
	assert.Equal(t, teller.FloatReconciled, closed.Status)

	vault, err = fx.svc.VaultBalance(ctx, branch)
	require.NoError(t, err)
	assert.True(t, vault.Equal(kes(200000)))

	balance, err := fx.svc.Balance(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestVaultReturn_RejectReopensFloat(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.openFloat(t, "staff-jane", 50000)

	_, err := fx.svc.RequestVaultReturn(ctx, f.ID, "staff-jane")
	require.NoError(t, err)

	reopened, err := fx.svc.RejectVaultReturn(ctx, f.ID, "staff-grace")
	require.NoError(t, err)
	assert.Equal(t, teller.FloatOpen, reopened.Status)

	// Mutations work again after the rejection.
	require.NoError(t, fx.svc.Deposit(ctx, f.ID, kes(100), "staff-jane", "member deposit"))
}

func TestAcceptVaultReturn_WithoutRequestRejected(t *testing.T) {
	fx := newFixture(t)
	f := fx.openFloat(t, "staff-jane", 50000)

	_, err := fx.svc.AcceptVaultReturn(context.Background(), f.ID, "staff-grace")
	require.ErrorIs(t, err, teller.ErrFloatNotAwaitingReturn)
}
