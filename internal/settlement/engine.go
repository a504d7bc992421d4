package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/SettleGuard/settleguard/internal/model"
	"github.com/SettleGuard/settleguard/internal/pkg/apperrors"
	"github.com/SettleGuard/settleguard/internal/pkg/logger"
	"github.com/SettleGuard/settleguard/internal/pkg/metrics"
	"github.com/google/uuid"
)

// EarningsRepo reads unpaid earnings grouped by payee. Marking rows paid is
// the caller's job, and only after the batch completes.
type EarningsRepo interface {
	UnpaidByEpoch(ctx context.Context, epochID int64) ([]model.BatchItem, error)
}

// BatchRepo persists settlement batch records with monotonic status guards.
type BatchRepo interface {
	Insert(ctx context.Context, batch *model.SettlementBatch) error
	Get(ctx context.Context, id string) (*model.SettlementBatch, error)
	UpdateStatus(ctx context.Context, id string, next model.BatchStatus, externalID, txHash string) (model.BatchStatus, error)
}

// SettleResult is what the settlement caller gets back. Settled is the total
// amount submitted; it does not mean the money has arrived — poll the batch
// for that.
type SettleResult struct {
	Settled    float64           `json:"settled"`
	BatchID    string            `json:"batch_id,omitempty"`
	ExternalID string            `json:"external_id,omitempty"`
	TxHash     string            `json:"tx_hash,omitempty"`
	Status     model.BatchStatus `json:"status,omitempty"`
}

// Engine drives the epoch settlement flow through the active adapter.
type Engine struct {
	registry *Registry
	earnings EarningsRepo
	batches  BatchRepo
}

func NewEngine(registry *Registry, earnings EarningsRepo, batches BatchRepo) *Engine {
	return &Engine{registry: registry, earnings: earnings, batches: batches}
}

// SettleEpoch pays out an epoch's unpaid earnings via the active adapter.
// With nothing unpaid it returns {settled: 0} without creating a batch.
// It never marks earnings rows paid: that transition belongs to the caller,
// after COMPLETED, so a failed batch can never leave earnings flagged paid.
func (e *Engine) SettleEpoch(ctx context.Context, epochID int64) (SettleResult, error) {
	items, err := e.earnings.UnpaidByEpoch(ctx, epochID)
	if err != nil {
		return SettleResult{}, err
	}
	if len(items) == 0 {
		return SettleResult{Settled: 0}, nil
	}

	adapter, err := e.registry.GetActive()
	if err != nil {
		return SettleResult{}, err
	}

	batch := &model.SettlementBatch{
		ID:          uuid.NewString(),
		AdapterName: adapter.Name(),
		Items:       items,
		Status:      model.BatchPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := e.batches.Insert(ctx, batch); err != nil {
		return SettleResult{}, err
	}

	logger.Info("submitting settlement batch",
		"batch", batch.ID, "adapter", adapter.Name(), "epoch", epochID,
		"items", len(items), "total_usdt", batch.TotalUSDT())

	receipt, err := adapter.CreatePayoutBatch(ctx, batch)
	if err != nil {
		if _, uerr := e.batches.UpdateStatus(ctx, batch.ID, model.BatchFailed, "", ""); uerr != nil {
			logger.Error("failed to mark batch failed", "batch", batch.ID, "error", uerr)
		}
		metrics.SettlementBatchesTotal.WithLabelValues(adapter.Name(), string(model.BatchFailed)).Inc()
		return SettleResult{}, err
	}

	status, err := e.batches.UpdateStatus(ctx, batch.ID, receipt.Status, receipt.ExternalID, "")
	if err != nil {
		return SettleResult{}, err
	}

	var txHash string
	if info, serr := adapter.GetBatchStatus(ctx, batch.ID); serr == nil {
		txHash = info.TxHash
	}

	metrics.SettlementBatchesTotal.WithLabelValues(adapter.Name(), string(status)).Inc()
	metrics.PayoutAmountUSDT.WithLabelValues(adapter.Name()).Add(batch.TotalUSDT())

	return SettleResult{
		Settled:    batch.TotalUSDT(),
		BatchID:    batch.ID,
		ExternalID: receipt.ExternalID,
		TxHash:     txHash,
		Status:     status,
	}, nil
}

// EstimateFee prices a prospective batch on the active adapter.
func (e *Engine) EstimateFee(ctx context.Context, items []model.BatchItem) (FeeEstimate, error) {
	adapter, err := e.registry.GetActive()
	if err != nil {
		return FeeEstimate{}, err
	}
	return adapter.EstimateFee(ctx, items)
}

// GetBatch returns the persisted batch record.
func (e *Engine) GetBatch(ctx context.Context, batchID string) (*model.SettlementBatch, error) {
	batch, err := e.batches.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("batch %s not found", batchID), nil)
	}
	return batch, nil
}

// ReconcileBatch re-polls the owning adapter and persists any forward
// transition. Backward transitions are rejected by the status guard, so
// concurrent pollers are safe.
func (e *Engine) ReconcileBatch(ctx context.Context, batchID string) (*model.SettlementBatch, error) {
	batch, err := e.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status.Terminal() {
		return batch, nil
	}

	adapter, err := e.registry.Get(batch.AdapterName)
	if err != nil {
		return nil, err
	}

	info, err := adapter.GetBatchStatus(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if info.Status != batch.Status && batch.Status.CanTransitionTo(info.Status) {
		if _, err := e.batches.UpdateStatus(ctx, batchID, info.Status, "", info.TxHash); err != nil {
			return nil, err
		}
	}

	return e.GetBatch(ctx, batchID)
}

// CancelBatch aborts a batch that has not started processing.
func (e *Engine) CancelBatch(ctx context.Context, batchID string) (*model.SettlementBatch, error) {
	batch, err := e.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != model.BatchPending {
		return nil, apperrors.New(apperrors.ErrNotCancelable,
			fmt.Sprintf("batch %s is %s", batchID, batch.Status), nil)
	}

	adapter, err := e.registry.Get(batch.AdapterName)
	if err != nil {
		return nil, err
	}
	// A backend that never saw the batch has nothing to recall; a PENDING
	// batch was never submitted, so NOT_FOUND from the adapter is fine.
	if err := adapter.CancelBatch(ctx, batchID); err != nil && !apperrors.IsType(err, apperrors.ErrNotFound) {
		return nil, err
	}

	if _, err := e.batches.UpdateStatus(ctx, batchID, model.BatchCanceled, "", ""); err != nil {
		return nil, err
	}
	return e.GetBatch(ctx, batchID)
}
