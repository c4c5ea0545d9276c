package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/blockhaven/blockhaven/internal/jobmetrics"
)

// InvoiceSweeper flips pending invoices past their due date.
type InvoiceSweeper interface {
	SweepOverdue(ctx context.Context) (int64, error)
}

// OverdueSweepJob marks stale pending invoices overdue.
type OverdueSweepJob struct {
	Billing InvoiceSweeper
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewOverdueSweepJob initialises the overdue sweep handler.
func NewOverdueSweepJob(billing InvoiceSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueSweepJob {
	return &OverdueSweepJob{Billing: billing, Logger: logger, Metrics: metrics}
}

// Handle executes one sweep pass.
func (j *OverdueSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("overdue sweep: handler not configured")
	}
	tracker := j.Metrics.Track(TaskBillingOverdueSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	flipped, err := j.Billing.SweepOverdue(ctx)
	if err != nil {
		resultErr = err
		j.logger().Error("overdue sweep failed", slog.Any("error", err))
		return resultErr
	}
	if flipped > 0 {
		j.logger().Info("invoices marked overdue", slog.Int64("count", flipped))
	}
	return nil
}

func (j *OverdueSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
