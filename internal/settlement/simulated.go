package settlement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SettleGuard/settleguard/internal/model"
	"github.com/SettleGuard/settleguard/internal/pkg/apperrors"
)

// AdapterNameSimulated is the deterministic in-process rail used for
// testing and dry runs.
const AdapterNameSimulated = "SIMULATED"

// SimulatedAdapter settles instantly in memory. External ids derive from the
// batch id, so retries are idempotent even across restarts of local state.
type SimulatedAdapter struct {
	mu      sync.Mutex
	batches map[string]*simBatch
}

type simBatch struct {
	receipt     BatchReceipt
	txHash      string
	completedAt time.Time
}

func NewSimulatedAdapter() *SimulatedAdapter {
	return &SimulatedAdapter{batches: make(map[string]*simBatch)}
}

func (a *SimulatedAdapter) Name() string {
	return AdapterNameSimulated
}

// EstimateFee mocks a flat 1 USDT fee. Pure; no state is touched.
func (a *SimulatedAdapter) EstimateFee(_ context.Context, items []model.BatchItem) (FeeEstimate, error) {
	if err := validateItems(items); err != nil {
		return FeeEstimate{}, err
	}
	return FeeEstimate{
		Fee:      1.0,
		Currency: "USDT",
		Meta:     map[string]any{"mock_gas": 50000},
	}, nil
}

func (a *SimulatedAdapter) CreatePayoutBatch(_ context.Context, batch *model.SettlementBatch) (BatchReceipt, error) {
	if batch == nil || batch.ID == "" {
		return BatchReceipt{}, apperrors.NewInvalidBatch("batch has no id")
	}
	if err := validateItems(batch.Items); err != nil {
		return BatchReceipt{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Idempotency by batch id: retries return the existing state, never a
	// second payout.
	if existing, ok := a.batches[batch.ID]; ok {
		return existing.receipt, nil
	}

	sim := &simBatch{
		receipt: BatchReceipt{
			ExternalID: "sim_" + batch.ID,
			Status:     model.BatchCompleted,
		},
		txHash:      fmt.Sprintf("0xsim%s", batch.ID),
		completedAt: time.Now().UTC(),
	}
	a.batches[batch.ID] = sim
	return sim.receipt, nil
}

func (a *SimulatedAdapter) GetBatchStatus(_ context.Context, batchID string) (StatusInfo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sim, ok := a.batches[batchID]
	if !ok {
		return StatusInfo{}, apperrors.New(apperrors.ErrNotFound,
			fmt.Sprintf("batch %s unknown to simulated backend", batchID), nil)
	}
	completed := sim.completedAt
	return StatusInfo{
		Status:      sim.receipt.Status,
		TxHash:      sim.txHash,
		CompletedAt: &completed,
	}, nil
}

// CancelBatch always fails: simulated settlement is instant, so a known batch
// has no PENDING window, and an unknown batch id is an error just like in
// GetBatchStatus.
func (a *SimulatedAdapter) CancelBatch(_ context.Context, batchID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.batches[batchID]; !ok {
		return apperrors.New(apperrors.ErrNotFound,
			fmt.Sprintf("batch %s unknown to simulated backend", batchID), nil)
	}
	return apperrors.New(apperrors.ErrNotCancelable,
		fmt.Sprintf("batch %s already settled", batchID), nil)
}

func (a *SimulatedAdapter) HealthCheck(_ context.Context) HealthReport {
	return HealthReport{OK: true, LatencyMs: 1}
}

// validateItems enforces the shared batch-shape contract: at least one item,
// all amounts strictly positive.
func validateItems(items []model.BatchItem) error {
	if len(items) == 0 {
		return apperrors.NewInvalidBatch("batch has no items")
	}
	for _, it := range items {
		if it.Wallet == "" {
			return apperrors.NewInvalidBatch("batch item has empty wallet")
		}
		if it.AmountUSDT <= 0 {
			return apperrors.NewInvalidBatch(
				fmt.Sprintf("non-positive amount %.6f for wallet %s", it.AmountUSDT, it.Wallet))
		}
	}
	return nil
}
