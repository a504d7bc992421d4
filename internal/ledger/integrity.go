package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SettleGuard/settleguard/internal/incident"
	"github.com/SettleGuard/settleguard/internal/model"
	"github.com/SettleGuard/settleguard/internal/pkg/logger"
	"github.com/SettleGuard/settleguard/internal/pkg/metrics"
)

// ErrRunInProgress is returned when another integrity run already holds the
// advisory lock for the same day.
var ErrRunInProgress = errors.New("integrity run already in progress for day")

// RunStore persists the append-only integrity run history.
type RunStore interface {
	InsertIntegrityRun(ctx context.Context, run *model.IntegrityRun) error
	LatestIntegrityRun(ctx context.Context) (*model.IntegrityRun, error)
}

// DayLocker serializes runs per accounting day. A nil locker means the
// caller guarantees non-overlapping invocations (e.g. a single scheduler).
type DayLocker interface {
	AcquireDayLock(ctx context.Context, day string) (bool, error)
	ReleaseDayLock(ctx context.Context, day string) error
}

// IntegrityJob orchestrates the reconciliation engine and the chain verifier
// once per accounting day. It is purely diagnostic: re-running recomputes and
// appends a new run row, it never attempts to fix the ledger.
type IntegrityJob struct {
	engine   *Engine
	verifier *Verifier
	runs     RunStore
	incident incident.Builder
	locker   DayLocker
}

func NewIntegrityJob(engine *Engine, verifier *Verifier, runs RunStore, builder incident.Builder, locker DayLocker) *IntegrityJob {
	return &IntegrityJob{
		engine:   engine,
		verifier: verifier,
		runs:     runs,
		incident: builder,
		locker:   locker,
	}
}

// RunDailyCheck runs both checks for one day and persists a run row
// unconditionally. It never propagates check failures to the caller: a
// scheduler must survive malformed data, so exceptions become findings.
func (j *IntegrityJob) RunDailyCheck(ctx context.Context, day string) (*model.IntegrityRun, error) {
	if _, err := ParseDay(day); err != nil {
		return nil, err
	}

	if j.locker != nil {
		acquired, err := j.locker.AcquireDayLock(ctx, day)
		if err != nil {
			// Lock backend down: proceed rather than silently skip the audit.
			logger.Warn("day lock unavailable, running unlocked", "day", day, "error", err)
		} else if !acquired {
			return nil, ErrRunInProgress
		} else {
			defer func() {
				if err := j.locker.ReleaseDayLock(context.WithoutCancel(ctx), day); err != nil {
					logger.Warn("failed to release day lock", "day", day, "error", err)
				}
			}()
		}
	}

	logger.Info("running ledger integrity check", "day", day)

	run := &model.IntegrityRun{
		Day:       day,
		OK:        true,
		Findings:  []string{},
		CreatedAt: time.Now().UTC(),
	}

	j.check(ctx, day, run)

	if err := j.runs.InsertIntegrityRun(ctx, run); err != nil {
		// The audit trail must never have gaps; this is the one failure we
		// surface to the caller.
		return run, fmt.Errorf("persist integrity run: %w", err)
	}

	if run.OK {
		metrics.IntegrityRunsTotal.WithLabelValues("ok").Inc()
	} else {
		metrics.IntegrityRunsTotal.WithLabelValues("failed").Inc()
		j.raiseIncident(ctx, day, run.Findings)
	}

	return run, nil
}

// check executes steps 1–2 and converts any panic or store error into a
// failing finding.
func (j *IntegrityJob) check(ctx context.Context, day string, run *model.IntegrityRun) {
	defer func() {
		if r := recover(); r != nil {
			run.OK = false
			run.Findings = append(run.Findings, fmt.Sprintf("Integrity check exception: %v", r))
			metrics.IntegrityFindings.WithLabelValues("exception").Inc()
		}
	}()

	report, err := j.engine.ReconcileDay(ctx, day)
	if err != nil {
		run.OK = false
		run.Findings = append(run.Findings, fmt.Sprintf("Integrity check exception: reconcile: %v", err))
		metrics.IntegrityFindings.WithLabelValues("exception").Inc()
		return
	}

	if j.engine.RevenueMismatch(report) {
		run.OK = false
		run.Findings = append(run.Findings, fmt.Sprintf(
			"Revenue mismatch: event sum %.6f != ledger sum %.6f (diff %.6f)",
			report.RevenueEventSum, report.LedgerRevenueSum, report.RevenueDiff))
		metrics.IntegrityFindings.WithLabelValues("revenue_mismatch").Inc()
	}
	if len(report.NegativeBalances) > 0 {
		run.OK = false
		run.Findings = append(run.Findings, fmt.Sprintf(
			"Negative balances found: %s", strings.Join(report.NegativeBalances, ", ")))
		metrics.IntegrityFindings.WithLabelValues("negative_balance").Inc()
	}

	chainReport, err := j.verifier.VerifyChain(ctx)
	if err != nil {
		run.OK = false
		run.Findings = append(run.Findings, fmt.Sprintf("Integrity check exception: chain verify: %v", err))
		metrics.IntegrityFindings.WithLabelValues("exception").Inc()
		return
	}

	if len(chainReport.Orphans) > 0 {
		run.OK = false
		run.Findings = append(run.Findings, fmt.Sprintf(
			"Total orphans in ledger chain: %d (entry ids %v)", len(chainReport.Orphans), chainReport.Orphans))
		metrics.IntegrityFindings.WithLabelValues("orphan").Inc()
	}
	if len(chainReport.BrokenLinks) > 0 {
		run.OK = false
		run.Findings = append(run.Findings, fmt.Sprintf(
			"Broken chain links at sequence %v", chainReport.BrokenLinks))
		metrics.IntegrityFindings.WithLabelValues("broken_link").Inc()
	}
}

// raiseIncident is fire-and-forget: notification failure must not roll back
// the persisted run.
func (j *IntegrityJob) raiseIncident(ctx context.Context, day string, findings []string) {
	if j.incident == nil {
		return
	}
	err := j.incident.CreateIncident(ctx, incident.Incident{
		Severity:   incident.SeverityCritical,
		Title:      "Ledger Integrity Failed",
		SourceKind: "ledger_integrity_job",
		Context: map[string]any{
			"day":      day,
			"findings": findings,
		},
	})
	if err != nil {
		logger.Error("failed to create integrity incident", "day", day, "error", err)
	}
}
