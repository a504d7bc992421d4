package settlement

import (
	"context"
	"time"

	"github.com/SettleGuard/settleguard/internal/model"
)

// FeeEstimate is a pure estimation result; producing one must not mutate
// any state.
type FeeEstimate struct {
	Fee      float64        `json:"fee_estimate"`
	Currency string         `json:"currency"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// BatchReceipt is what a backend acknowledges for a created batch.
type BatchReceipt struct {
	ExternalID string            `json:"external_id"`
	Status     model.BatchStatus `json:"status"`
}

// StatusInfo is the latest known backend state of a batch.
type StatusInfo struct {
	Status      model.BatchStatus `json:"status"`
	TxHash      string            `json:"tx_hash,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// HealthReport is a fast connectivity probe result.
type HealthReport struct {
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Adapter is the uniform payout contract each payment rail implements.
//
// CreatePayoutBatch must be idempotent keyed on batch.ID: two in-flight
// calls with the same id must resolve to one backend payout, with retries
// returning the existing batch's current state.
type Adapter interface {
	Name() string

	// EstimateFee prices a batch without mutating state. Fails with
	// ErrAdapterUnavailable when the backend cannot be reached.
	EstimateFee(ctx context.Context, items []model.BatchItem) (FeeEstimate, error)

	// CreatePayoutBatch executes (or resumes) the batch. Fails with
	// ErrInvalidBatch when items is empty or contains non-positive amounts.
	CreatePayoutBatch(ctx context.Context, batch *model.SettlementBatch) (BatchReceipt, error)

	// GetBatchStatus polls the backend for the latest status. Read-only.
	GetBatchStatus(ctx context.Context, batchID string) (StatusInfo, error)

	// CancelBatch aborts a batch. Only valid while PENDING; fails with
	// ErrNotCancelable once PROCESSING or terminal.
	CancelBatch(ctx context.Context, batchID string) error

	// HealthCheck probes backend connectivity.
	HealthCheck(ctx context.Context) HealthReport
}
