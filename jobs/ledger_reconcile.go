package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/blockhaven/blockhaven/internal/jobmetrics"
	"github.com/blockhaven/blockhaven/internal/ledger"
)

// DriftFinder compares wallet balances against their transaction sums.
type DriftFinder interface {
	FindDrift(ctx context.Context) ([]ledger.Drift, error)
}

// LedgerReconcileJob surfaces wallets whose balance disagrees with the sum
// of their completed transactions. Mismatches are reported, never
// auto-corrected.
type LedgerReconcileJob struct {
	Ledger  DriftFinder
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLedgerReconcileJob initialises the reconcile handler.
func NewLedgerReconcileJob(finder DriftFinder, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerReconcileJob {
	return &LedgerReconcileJob{Ledger: finder, Logger: logger, Metrics: metrics}
}

// Handle executes one reconcile pass.
func (j *LedgerReconcileJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("ledger reconcile: handler not configured")
	}
	tracker := j.Metrics.Track(TaskLedgerReconcile)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	drift, err := j.Ledger.FindDrift(ctx)
	if err != nil {
		resultErr = err
		j.logger().Error("ledger reconcile failed", slog.Any("error", err))
		return resultErr
	}
	for _, d := range drift {
		j.logger().Warn("wallet balance drift detected",
			slog.Int64("account_id", d.AccountID),
			slog.Float64("balance", d.Balance),
			slog.Float64("expected", d.Expected),
			slog.Float64("delta", d.Delta()))
	}
	j.Metrics.AddDrift(len(drift))
	return nil
}

func (j *LedgerReconcileJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
