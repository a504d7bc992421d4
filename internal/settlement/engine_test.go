package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/SettleGuard/settleguard/internal/model"
	"github.com/SettleGuard/settleguard/internal/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEarnings struct {
	byEpoch map[int64][]model.BatchItem
}

func (f *fakeEarnings) UnpaidByEpoch(_ context.Context, epochID int64) ([]model.BatchItem, error) {
	return f.byEpoch[epochID], nil
}

// memBatchRepo mirrors the guarded SQL transitions of the postgres repo: an
// update only lands when the state machine allows it, and the post-attempt
// status is returned either way.
type memBatchRepo struct {
	mu      sync.Mutex
	batches map[string]*model.SettlementBatch
}

func newMemBatchRepo() *memBatchRepo {
	return &memBatchRepo{batches: make(map[string]*model.SettlementBatch)}
}

func (r *memBatchRepo) Insert(_ context.Context, batch *model.SettlementBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.batches[batch.ID]; exists {
		return nil
	}
	cp := *batch
	r.batches[batch.ID] = &cp
	return nil
}

func (r *memBatchRepo) Get(_ context.Context, id string) (*model.SettlementBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (r *memBatchRepo) UpdateStatus(_ context.Context, id string, next model.BatchStatus, externalID, txHash string) (model.BatchStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return "", fmt.Errorf("batch %s not found", id)
	}
	if b.Status.CanTransitionTo(next) {
		b.Status = next
		if externalID != "" {
			b.ExternalID = externalID
		}
		if txHash != "" {
			b.TxHash = txHash
		}
	}
	return b.Status, nil
}

// stubAdapter lets each test script the backend's answers.
type stubAdapter struct {
	namedAdapter
	receipt    BatchReceipt
	createErr  error
	status     StatusInfo
	statusErr  error
	cancelErr  error
	createdIDs []string
}

func (a *stubAdapter) CreatePayoutBatch(_ context.Context, batch *model.SettlementBatch) (BatchReceipt, error) {
	if a.createErr != nil {
		return BatchReceipt{}, a.createErr
	}
	a.createdIDs = append(a.createdIDs, batch.ID)
	return a.receipt, nil
}

func (a *stubAdapter) GetBatchStatus(_ context.Context, _ string) (StatusInfo, error) {
	return a.status, a.statusErr
}

func (a *stubAdapter) CancelBatch(_ context.Context, _ string) error {
	return a.cancelErr
}

func newTestEngine(t *testing.T, adapter Adapter, earnings *fakeEarnings, repo *memBatchRepo) *Engine {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.Register(adapter))
	require.NoError(t, r.SetActive(adapter.Name()))
	return NewEngine(r, earnings, repo)
}

func TestSettleEpochEmpty(t *testing.T) {
	repo := newMemBatchRepo()
	engine := newTestEngine(t, NewSimulatedAdapter(), &fakeEarnings{}, repo)

	result, err := engine.SettleEpoch(context.Background(), 42)

	require.NoError(t, err)
	assert.Zero(t, result.Settled)
	assert.Empty(t, result.BatchID)
	assert.Empty(t, repo.batches, "no batch row for an empty epoch")
}

func TestSettleEpochViaSimulated(t *testing.T) {
	earnings := &fakeEarnings{byEpoch: map[int64][]model.BatchItem{
		7: {
			{Wallet: "0xabc", AmountUSDT: 12.5},
			{Wallet: "0xdef", AmountUSDT: 7.5},
		},
	}}
	repo := newMemBatchRepo()
	engine := newTestEngine(t, NewSimulatedAdapter(), earnings, repo)

	result, err := engine.SettleEpoch(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, 20.0, result.Settled)
	assert.Equal(t, model.BatchCompleted, result.Status)
	assert.Equal(t, "sim_"+result.BatchID, result.ExternalID)
	assert.NotEmpty(t, result.TxHash)

	stored, err := engine.GetBatch(context.Background(), result.BatchID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchCompleted, stored.Status)
	assert.Equal(t, AdapterNameSimulated, stored.AdapterName)
}

func TestSettleEpochAdapterFailureMarksBatchFailed(t *testing.T) {
	earnings := &fakeEarnings{byEpoch: map[int64][]model.BatchItem{
		7: {{Wallet: "0xabc", AmountUSDT: 5}},
	}}
	repo := newMemBatchRepo()
	adapter := &stubAdapter{
		namedAdapter: namedAdapter{name: "EVM:polygon"},
		createErr:    apperrors.NewAdapterUnavailable("rpc down", errors.New("dial tcp")),
	}
	engine := newTestEngine(t, adapter, earnings, repo)

	_, err := engine.SettleEpoch(context.Background(), 7)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrAdapterUnavailable))

	require.Len(t, repo.batches, 1)
	for _, b := range repo.batches {
		assert.Equal(t, model.BatchFailed, b.Status, "failed submit must not leave batch PENDING")
	}
}

func TestSettleEpochAsyncAdapterStaysProcessing(t *testing.T) {
	earnings := &fakeEarnings{byEpoch: map[int64][]model.BatchItem{
		7: {{Wallet: "0xabc", AmountUSDT: 5}},
	}}
	repo := newMemBatchRepo()
	adapter := &stubAdapter{
		namedAdapter: namedAdapter{name: "EVM:polygon"},
		receipt:      BatchReceipt{ExternalID: "EVM:polygon:x", Status: model.BatchProcessing},
		status:       StatusInfo{Status: model.BatchProcessing},
	}
	engine := newTestEngine(t, adapter, earnings, repo)

	result, err := engine.SettleEpoch(context.Background(), 7)

	require.NoError(t, err)
	assert.Equal(t, model.BatchProcessing, result.Status)
}

func TestGetBatchNotFound(t *testing.T) {
	engine := newTestEngine(t, NewSimulatedAdapter(), &fakeEarnings{}, newMemBatchRepo())
	_, err := engine.GetBatch(context.Background(), "ghost")
	assert.True(t, apperrors.IsType(err, apperrors.ErrNotFound))
}

func TestReconcileBatchAppliesForwardTransition(t *testing.T) {
	repo := newMemBatchRepo()
	adapter := &stubAdapter{
		namedAdapter: namedAdapter{name: "EVM:polygon"},
		status:       StatusInfo{Status: model.BatchCompleted, TxHash: "0xbeef"},
	}
	engine := newTestEngine(t, adapter, &fakeEarnings{}, repo)
	require.NoError(t, repo.Insert(context.Background(), &model.SettlementBatch{
		ID:          "b1",
		AdapterName: "EVM:polygon",
		Status:      model.BatchProcessing,
	}))

	batch, err := engine.ReconcileBatch(context.Background(), "b1")

	require.NoError(t, err)
	assert.Equal(t, model.BatchCompleted, batch.Status)
	assert.Equal(t, "0xbeef", batch.TxHash)
}

func TestReconcileBatchTerminalIsUntouched(t *testing.T) {
	repo := newMemBatchRepo()
	adapter := &stubAdapter{
		namedAdapter: namedAdapter{name: "EVM:polygon"},
		statusErr:    errors.New("should not be polled"),
	}
	engine := newTestEngine(t, adapter, &fakeEarnings{}, repo)
	require.NoError(t, repo.Insert(context.Background(), &model.SettlementBatch{
		ID:          "b1",
		AdapterName: "EVM:polygon",
		Status:      model.BatchCompleted,
	}))

	batch, err := engine.ReconcileBatch(context.Background(), "b1")

	require.NoError(t, err)
	assert.Equal(t, model.BatchCompleted, batch.Status)
}

func TestCancelBatchPending(t *testing.T) {
	repo := newMemBatchRepo()
	adapter := &stubAdapter{namedAdapter: namedAdapter{name: "EVM:polygon"}}
	engine := newTestEngine(t, adapter, &fakeEarnings{}, repo)
	require.NoError(t, repo.Insert(context.Background(), &model.SettlementBatch{
		ID:          "b1",
		AdapterName: "EVM:polygon",
		Status:      model.BatchPending,
	}))

	batch, err := engine.CancelBatch(context.Background(), "b1")

	require.NoError(t, err)
	assert.Equal(t, model.BatchCanceled, batch.Status)
}

func TestCancelBatchUnknownToBackend(t *testing.T) {
	// A PENDING row whose batch never reached the backend: the adapter
	// reports NOT_FOUND, which means there is nothing to recall.
	repo := newMemBatchRepo()
	engine := newTestEngine(t, NewSimulatedAdapter(), &fakeEarnings{}, repo)
	require.NoError(t, repo.Insert(context.Background(), &model.SettlementBatch{
		ID:          "b1",
		AdapterName: AdapterNameSimulated,
		Status:      model.BatchPending,
	}))

	batch, err := engine.CancelBatch(context.Background(), "b1")

	require.NoError(t, err)
	assert.Equal(t, model.BatchCanceled, batch.Status)
}

func TestCancelBatchNonPending(t *testing.T) {
	repo := newMemBatchRepo()
	adapter := &stubAdapter{namedAdapter: namedAdapter{name: "EVM:polygon"}}
	engine := newTestEngine(t, adapter, &fakeEarnings{}, repo)

	for _, status := range []model.BatchStatus{model.BatchProcessing, model.BatchCompleted, model.BatchFailed, model.BatchCanceled} {
		id := "b-" + string(status)
		require.NoError(t, repo.Insert(context.Background(), &model.SettlementBatch{
			ID:          id,
			AdapterName: "EVM:polygon",
			Status:      status,
		}))

		_, err := engine.CancelBatch(context.Background(), id)
		assert.True(t, apperrors.IsType(err, apperrors.ErrNotCancelable), "status %s", status)
	}
}
