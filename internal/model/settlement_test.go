package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatchStatusTransitions(t *testing.T) {
	allowed := map[BatchStatus][]BatchStatus{
		BatchPending:    {BatchProcessing, BatchCompleted, BatchFailed, BatchCanceled},
		BatchProcessing: {BatchCompleted, BatchFailed},
		BatchCompleted:  {},
		BatchFailed:     {},
		BatchCanceled:   {},
	}
	all := []BatchStatus{BatchPending, BatchProcessing, BatchCompleted, BatchFailed, BatchCanceled}

	for from, nexts := range allowed {
		ok := make(map[BatchStatus]bool)
		for _, n := range nexts {
			ok[n] = true
		}
		for _, to := range all {
			assert.Equal(t, ok[to], from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestBatchStatusTerminal(t *testing.T) {
	assert.False(t, BatchPending.Terminal())
	assert.False(t, BatchProcessing.Terminal())
	assert.True(t, BatchCompleted.Terminal())
	assert.True(t, BatchFailed.Terminal())
	assert.True(t, BatchCanceled.Terminal())
}

func TestSettlementBatchTotalUSDT(t *testing.T) {
	b := &SettlementBatch{Items: []BatchItem{
		{Wallet: "0xabc", AmountUSDT: 12.5},
		{Wallet: "0xdef", AmountUSDT: 7.5},
	}}
	assert.Equal(t, 20.0, b.TotalUSDT())

	empty := &SettlementBatch{}
	assert.Zero(t, empty.TotalUSDT())
}
