package model

import "time"

// BatchStatus is the settlement batch lifecycle state.
// PENDING -> PROCESSING -> {COMPLETED | FAILED}; PENDING -> CANCELED.
// Terminal states are immutable; transitions are strictly monotonic.
type BatchStatus string

const (
	BatchPending    BatchStatus = "PENDING"
	BatchProcessing BatchStatus = "PROCESSING"
	BatchCompleted  BatchStatus = "COMPLETED"
	BatchFailed     BatchStatus = "FAILED"
	BatchCanceled   BatchStatus = "CANCELED"
)

// Terminal reports whether no further transition is allowed from s.
func (s BatchStatus) Terminal() bool {
	switch s {
	case BatchCompleted, BatchFailed, BatchCanceled:
		return true
	}
	return false
}

// CanTransitionTo enforces the monotonic state machine.
func (s BatchStatus) CanTransitionTo(next BatchStatus) bool {
	if s == next {
		return false
	}
	switch s {
	case BatchPending:
		return next == BatchProcessing || next == BatchCompleted || next == BatchFailed || next == BatchCanceled
	case BatchProcessing:
		return next == BatchCompleted || next == BatchFailed
	}
	return false
}

// BatchItem 单个收款方的支付项
type BatchItem struct {
	Wallet     string  `json:"wallet" db:"wallet"`
	AmountUSDT float64 `json:"amount_usdt" db:"amount_usdt"`
}

// SettlementBatch is one payout attempt. Owned exclusively by the adapter
// that created it until it reaches a terminal state.
type SettlementBatch struct {
	ID          string      `json:"id" db:"id"`
	AdapterName string      `json:"adapter_name" db:"adapter_name"`
	Items       []BatchItem `json:"items" db:"-"`
	Status      BatchStatus `json:"status" db:"status"`
	ExternalID  string      `json:"external_id" db:"external_id"`
	TxHash      string      `json:"tx_hash" db:"tx_hash"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty" db:"completed_at"`
}

// TotalUSDT sums the batch's item amounts.
func (b *SettlementBatch) TotalUSDT() float64 {
	var total float64
	for _, it := range b.Items {
		total += it.AmountUSDT
	}
	return total
}
