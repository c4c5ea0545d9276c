package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/blockhaven/blockhaven/internal/billing"
	"github.com/blockhaven/blockhaven/internal/jobmetrics"
	"github.com/blockhaven/blockhaven/internal/panel"
	"github.com/blockhaven/blockhaven/internal/servers"
	"github.com/blockhaven/blockhaven/internal/shared"
)

// ServerReconciler is the slice of the server service the sweep drives.
type ServerReconciler interface {
	Overdue(ctx context.Context) ([]servers.ServerRecord, error)
	Suspend(ctx context.Context, rec *servers.ServerRecord) error
	Renew(ctx context.Context, accountID, serverID int64, months int) (*servers.ServerRecord, error)
	DueForInvoice(ctx context.Context) ([]servers.ServerRecord, error)
}

// InvoiceIssuer writes pending invoices for upcoming manual renewals.
type InvoiceIssuer interface {
	IssueRenewalInvoice(ctx context.Context, accountID, serverID int64, amount float64, description string) (*billing.Invoice, error)
}

// ExpirySweepJob walks overdue servers: auto-renew candidates are renewed
// from their wallet, the rest are suspended on the panel first and flagged
// locally second. A record whose remote suspend fails stays unflagged so
// the next sweep picks it up again. The same pass issues pending invoices
// for manual-renew servers approaching their next billing date.
type ExpirySweepJob struct {
	Servers  ServerReconciler
	Invoices InvoiceIssuer
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewExpirySweepJob initialises the sweep handler.
func NewExpirySweepJob(reconciler ServerReconciler, issuer InvoiceIssuer, logger *slog.Logger, metrics *jobmetrics.Metrics) *ExpirySweepJob {
	return &ExpirySweepJob{
		Servers:  reconciler,
		Invoices: issuer,
		Logger:   logger,
		Metrics:  metrics,
	}
}

// Handle executes one sweep pass.
func (j *ExpirySweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("expiry sweep: handler not configured")
	}
	tracker := j.metrics().Track(TaskServersExpirySweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	overdue, err := j.Servers.Overdue(ctx)
	if err != nil {
		resultErr = err
		logger.Error("expiry sweep: listing overdue servers failed", slog.Any("error", err))
		return resultErr
	}

	var renewed, suspended int
	if len(overdue) > 0 {
		logger.Info("expiry sweep started", slog.Int("overdue", len(overdue)))
		for i := range overdue {
			rec := &overdue[i]
			if rec.AutoRenew && j.tryRenew(ctx, logger, rec) {
				renewed++
				continue
			}
			if err := j.Servers.Suspend(ctx, rec); err != nil {
				if errors.Is(err, panel.ErrUnavailable) {
					logger.Warn("expiry sweep: panel unavailable, stopping early")
					break
				}
				logger.Warn("expiry sweep: suspend failed, will retry next pass",
					slog.Int64("server_id", rec.ID), slog.Any("error", err))
				continue
			}
			suspended++
		}
	}

	invoiced := j.issueInvoices(ctx, logger)

	j.Metrics.AddRenewed(renewed)
	j.Metrics.AddSuspended(suspended)
	j.Metrics.AddInvoiced(invoiced)
	if renewed+suspended+invoiced > 0 {
		logger.Info("expiry sweep finished",
			slog.Int("renewed", renewed), slog.Int("suspended", suspended), slog.Int("invoiced", invoiced))
	}
	return nil
}

// issueInvoices writes a pending invoice for each manual-renew server
// entering the billing window. The issuer skips servers that already carry
// an open invoice, so a pass never double-bills.
func (j *ExpirySweepJob) issueInvoices(ctx context.Context, logger *slog.Logger) int {
	if j.Invoices == nil {
		return 0
	}
	due, err := j.Servers.DueForInvoice(ctx)
	if err != nil {
		logger.Error("expiry sweep: listing servers due for invoice failed", slog.Any("error", err))
		return 0
	}

	var invoiced int
	for i := range due {
		rec := &due[i]
		description := fmt.Sprintf("renewal of %s (1 month(s))", rec.Name)
		inv, err := j.Invoices.IssueRenewalInvoice(ctx, rec.AccountID, rec.ID, rec.Price, description)
		if err != nil {
			logger.Warn("expiry sweep: invoice not issued",
				slog.Int64("server_id", rec.ID), slog.Any("error", err))
			continue
		}
		if inv != nil {
			invoiced++
		}
	}
	return invoiced
}

// tryRenew attempts a one-month auto-renewal and reports success. An empty
// wallet is expected and demotes the record to the suspend path.
func (j *ExpirySweepJob) tryRenew(ctx context.Context, logger *slog.Logger, rec *servers.ServerRecord) bool {
	_, err := j.Servers.Renew(ctx, rec.AccountID, rec.ID, 1)
	if err == nil {
		return true
	}
	if errors.Is(err, shared.ErrInsufficientBalance) {
		logger.Info("expiry sweep: auto-renew skipped, insufficient balance",
			slog.Int64("server_id", rec.ID), slog.Int64("account_id", rec.AccountID))
		return false
	}
	if errors.Is(err, servers.ErrUnsuspendFailed) {
		// The charge and extension landed; only the unsuspend is pending.
		logger.Warn("expiry sweep: auto-renewed but still suspended",
			slog.Int64("server_id", rec.ID), slog.Any("error", err))
		return true
	}
	logger.Warn("expiry sweep: auto-renew failed",
		slog.Int64("server_id", rec.ID), slog.Any("error", err))
	return false
}

func (j *ExpirySweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *ExpirySweepJob) metrics() *jobmetrics.Metrics {
	return j.Metrics
}
