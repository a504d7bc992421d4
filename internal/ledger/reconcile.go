package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/SettleGuard/settleguard/internal/model"
	"github.com/SettleGuard/settleguard/internal/pkg/metrics"
	"github.com/shopspring/decimal"
)

// ReconcileStore is the read surface the reconciliation engine needs.
type ReconcileStore interface {
	SumRevenueEvents(ctx context.Context, startSec, endSec int64) (float64, error)
	SumLedgerRevenue(ctx context.Context, startMs, endMs int64) (float64, error)
	NegativeBalances(ctx context.Context, threshold float64) ([]model.AccountBalance, error)
}

// ReconcileReport carries the two independent checks for one day: the
// absolute revenue-vs-ledger difference and the accounts in forbidden
// negative territory.
type ReconcileReport struct {
	RevenueDiff      float64  `json:"revenue_diff"`
	RevenueEventSum  float64  `json:"revenue_event_sum"`
	LedgerRevenueSum float64  `json:"ledger_revenue_sum"`
	NegativeBalances []string `json:"negative_balances"`
}

// Engine cross-checks raw revenue events against ledger revenue postings and
// enforces the balance-sign invariant per account class.
type Engine struct {
	store          ReconcileStore
	epsilon        float64
	creditPrefixes []string
}

func NewEngine(store ReconcileStore, epsilonUSDT float64, creditPrefixes []string) *Engine {
	if epsilonUSDT <= 0 {
		epsilonUSDT = 0.0001
	}
	return &Engine{store: store, epsilon: epsilonUSDT, creditPrefixes: creditPrefixes}
}

func (e *Engine) Epsilon() float64 {
	return e.epsilon
}

// ReconcileDay computes independent sums for one accounting day. Revenue
// events live in seconds, ledger entries in milliseconds; the window
// conversion goes through SecondsWindowToMillis so both sums cover exactly
// the same span.
func (e *Engine) ReconcileDay(ctx context.Context, day string) (ReconcileReport, error) {
	start := time.Now()
	defer func() {
		metrics.ReconcileDuration.Observe(time.Since(start).Seconds())
	}()

	report := ReconcileReport{NegativeBalances: []string{}}

	startSec, endSec, err := DayWindowSeconds(day)
	if err != nil {
		return report, err
	}
	startMs, endMs := SecondsWindowToMillis(startSec, endSec)

	eventSum, err := e.store.SumRevenueEvents(ctx, startSec, endSec)
	if err != nil {
		return report, err
	}
	ledgerSum, err := e.store.SumLedgerRevenue(ctx, startMs, endMs)
	if err != nil {
		return report, err
	}

	report.RevenueEventSum = eventSum
	report.LedgerRevenueSum = ledgerSum
	report.RevenueDiff = decimal.NewFromFloat(eventSum).
		Sub(decimal.NewFromFloat(ledgerSum)).
		Abs().
		InexactFloat64()

	balances, err := e.store.NegativeBalances(ctx, e.epsilon)
	if err != nil {
		return report, err
	}
	for _, b := range balances {
		if !e.creditPermitted(b.AccountKey) {
			report.NegativeBalances = append(report.NegativeBalances, b.AccountKey)
		}
	}

	return report, nil
}

// RevenueMismatch reports whether the diff breaches the tolerance. Exactly
// at epsilon counts as a breach.
func (e *Engine) RevenueMismatch(report ReconcileReport) bool {
	return report.RevenueDiff >= e.epsilon
}

// creditPermitted reports whether the account's namespace is allowed to
// carry a negative balance. Treasury/pool accounts are not.
func (e *Engine) creditPermitted(accountKey string) bool {
	for _, prefix := range e.creditPrefixes {
		if strings.HasPrefix(accountKey, prefix) {
			return true
		}
	}
	return false
}
