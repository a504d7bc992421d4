package ledger

import (
	"context"
	"testing"

	"github.com/SettleGuard/settleguard/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReconcileStore struct {
	eventSum  float64
	ledgerSum float64
	negatives []model.AccountBalance

	gotStartSec, gotEndSec int64
	gotStartMs, gotEndMs   int64
}

func (s *fakeReconcileStore) SumRevenueEvents(_ context.Context, startSec, endSec int64) (float64, error) {
	s.gotStartSec, s.gotEndSec = startSec, endSec
	return s.eventSum, nil
}

func (s *fakeReconcileStore) SumLedgerRevenue(_ context.Context, startMs, endMs int64) (float64, error) {
	s.gotStartMs, s.gotEndMs = startMs, endMs
	return s.ledgerSum, nil
}

func (s *fakeReconcileStore) NegativeBalances(_ context.Context, _ float64) ([]model.AccountBalance, error) {
	return s.negatives, nil
}

func TestReconcileDayWindows(t *testing.T) {
	store := &fakeReconcileStore{}
	engine := NewEngine(store, 0.0001, []string{"user_", "dist_"})

	_, err := engine.ReconcileDay(context.Background(), "20260115")
	require.NoError(t, err)

	assert.Equal(t, int64(1768435200), store.gotStartSec)
	assert.Equal(t, int64(1768521599), store.gotEndSec)
	assert.Equal(t, int64(1768435200000), store.gotStartMs)
	// Inclusive upper bound covers the sub-second tail of the last second.
	assert.Equal(t, int64(1768521599999), store.gotEndMs)
}

func TestRevenueMismatchToleranceBoundary(t *testing.T) {
	engine := NewEngine(&fakeReconcileStore{}, 0.0001, nil)

	cases := []struct {
		name     string
		eventSum float64
		ledger   float64
		mismatch bool
	}{
		{"exact match", 1523.5, 1523.5, false},
		{"under tolerance", 100.0, 100.00009, false},
		{"at tolerance", 100.0, 100.0001, true},
		{"over tolerance", 100.0, 100.00011, true},
		{"gross mismatch", 1523.5, 1520.0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeReconcileStore{eventSum: tc.eventSum, ledgerSum: tc.ledger}
			engine.store = store

			report, err := engine.ReconcileDay(context.Background(), "20260115")
			require.NoError(t, err)
			assert.Equal(t, tc.mismatch, engine.RevenueMismatch(report))
		})
	}
}

func TestReconcileDayDiffIsExactDecimal(t *testing.T) {
	// 0.1+0.2 style float residue must not produce a phantom mismatch.
	store := &fakeReconcileStore{eventSum: 0.3, ledgerSum: 0.1 + 0.2}
	engine := NewEngine(store, 0.0001, nil)

	report, err := engine.ReconcileDay(context.Background(), "20260115")
	require.NoError(t, err)
	assert.Zero(t, report.RevenueDiff)
	assert.False(t, engine.RevenueMismatch(report))
}

func TestReconcileDayNegativeBalancePrefixes(t *testing.T) {
	store := &fakeReconcileStore{negatives: []model.AccountBalance{
		{AccountKey: "user_123", BalanceUSDT: -5.00},
		{AccountKey: "dist_7", BalanceUSDT: -0.25},
		{AccountKey: "treasury_main", BalanceUSDT: -0.01},
		{AccountKey: "pool_rewards", BalanceUSDT: -12.5},
	}}
	engine := NewEngine(store, 0.0001, []string{"user_", "dist_"})

	report, err := engine.ReconcileDay(context.Background(), "20260115")
	require.NoError(t, err)
	assert.Equal(t, []string{"treasury_main", "pool_rewards"}, report.NegativeBalances)
}

func TestNewEngineDefaultsEpsilon(t *testing.T) {
	engine := NewEngine(&fakeReconcileStore{}, 0, nil)
	assert.Equal(t, 0.0001, engine.Epsilon())
}

func TestReconcileDayRejectsBadDay(t *testing.T) {
	engine := NewEngine(&fakeReconcileStore{}, 0.0001, nil)
	_, err := engine.ReconcileDay(context.Background(), "2026-01-15")
	assert.Error(t, err)
}
