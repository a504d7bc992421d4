package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	IntegrityRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settleguard_integrity_runs_total",
		Help: "The total number of ledger integrity runs",
	}, []string{"result"})

	IntegrityFindings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settleguard_integrity_findings_total",
		Help: "Total integrity findings by kind",
	}, []string{"kind"})

	ChainLinksVerified = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settleguard_chain_links_verified_total",
		Help: "Total hash chain links verified",
	})

	ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "settleguard_reconcile_duration_seconds",
		Help:    "Reconciliation duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	SettlementBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settleguard_settlement_batches_total",
		Help: "Total settlement batches by adapter and final status",
	}, []string{"adapter", "status"})

	PayoutAmountUSDT = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settleguard_payout_amount_usdt_total",
		Help: "Total USDT submitted for payout per adapter",
	}, []string{"adapter"})

	AdapterErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settleguard_adapter_errors_total",
		Help: "Total adapter errors by adapter and operation",
	}, []string{"adapter", "op"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settleguard_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
