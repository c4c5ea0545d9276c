package servers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blockhaven/blockhaven/internal/shared"
)

// ErrUnsuspendFailed reports a renewal that was charged and extended but
// could not be unsuspended on the panel. The record stays suspended until
// the panel recovers.
var ErrUnsuspendFailed = errors.New("panel unsuspend failed")

// Manual-renew servers get their invoice this far ahead of the next
// billing date.
const invoiceLeadTime = 7 * 24 * time.Hour

// RepositoryPort abstracts server record persistence.
type RepositoryPort interface {
	ListByAccount(ctx context.Context, accountID int64) ([]ServerRecord, error)
	Get(ctx context.Context, id int64) (*ServerRecord, error)
	MarkSuspended(ctx context.Context, id int64) error
	MarkActive(ctx context.Context, id int64) error
	UpdateExpiry(ctx context.Context, id int64, expiresAt, nextBillingDate time.Time, status Status) error
	SetAutoRenew(ctx context.Context, id int64, enabled bool) error
	ListOverdueUnflagged(ctx context.Context, now time.Time) ([]ServerRecord, error)
	ListDueForInvoice(ctx context.Context, cutoff time.Time) ([]ServerRecord, error)
}

// PanelPort is the slice of the panel client the reconciler needs.
type PanelPort interface {
	SuspendServer(ctx context.Context, id int64) error
	UnsuspendServer(ctx context.Context, id int64) error
}

// BillingPort records a paid renewal invoice for the audit trail.
type BillingPort interface {
	RecordRenewal(ctx context.Context, accountID, serverID int64, amount float64, description string) error
}

// Service owns server lifecycle rules on the billing side.
type Service struct {
	logger   *slog.Logger
	repo     RepositoryPort
	panel    PanelPort
	renewals RenewalStore
	billing  BillingPort
	now      func() time.Time
}

// NewService constructs a new Service.
func NewService(logger *slog.Logger, repo RepositoryPort, panel PanelPort, renewals RenewalStore, billing BillingPort) *Service {
	return &Service{logger: logger, repo: repo, panel: panel, renewals: renewals, billing: billing, now: time.Now}
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// List returns the account's servers.
func (s *Service) List(ctx context.Context, accountID int64) ([]ServerRecord, error) {
	return s.repo.ListByAccount(ctx, accountID)
}

// Get returns one server, scoped to the owning account. A record owned by
// someone else reads as not found.
func (s *Service) Get(ctx context.Context, accountID, serverID int64) (*ServerRecord, error) {
	rec, err := s.repo.Get(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if rec.AccountID != accountID {
		return nil, shared.ErrNotFound
	}
	return rec, nil
}

// SetAutoRenew toggles automatic renewal on an owned server.
func (s *Service) SetAutoRenew(ctx context.Context, accountID, serverID int64, enabled bool) error {
	if _, err := s.Get(ctx, accountID, serverID); err != nil {
		return err
	}
	return s.repo.SetAutoRenew(ctx, serverID, enabled)
}

// Renew charges the wallet and extends the paid-for window by N months,
// counted from the later of now and the current expiry. Charge and
// extension commit in one transaction. A suspended server is unsuspended
// on the panel afterwards; if that call fails the record stays suspended
// and ErrUnsuspendFailed is returned alongside the updated record.
func (s *Service) Renew(ctx context.Context, accountID, serverID int64, months int) (*ServerRecord, error) {
	if months < 1 || months > 24 {
		return nil, errors.New("renewal must cover between 1 and 24 months")
	}
	rec, err := s.Get(ctx, accountID, serverID)
	if err != nil {
		return nil, err
	}

	cost := rec.Price * float64(months)
	reason := fmt.Sprintf("renewal of %s (%d month(s))", rec.Name, months)
	expiresAt := s.extendedExpiry(rec, months)

	// Commit with the suspension flag still set; it is lifted only after
	// the panel confirms the unsuspend.
	wasSuspended := rec.Status == StatusSuspended || rec.Status == StatusExpired
	status := StatusActive
	if wasSuspended {
		status = StatusSuspended
	}
	if err := s.renewals.ChargeAndExtend(ctx, rec, cost, expiresAt, expiresAt, status, reason); err != nil {
		return nil, err
	}

	var unsuspendErr error
	if wasSuspended {
		if err := s.panel.UnsuspendServer(ctx, rec.RemoteID); err != nil {
			unsuspendErr = fmt.Errorf("%w: %v", ErrUnsuspendFailed, err)
			s.logger.Warn("renewal paid but unsuspend failed", "server_id", serverID, "remote_id", rec.RemoteID, "error", err)
		} else if err := s.repo.MarkActive(ctx, serverID); err != nil {
			s.logger.Error("unsuspended on panel but local flag stuck", "server_id", serverID, "error", err)
		} else {
			status = StatusActive
		}
	}

	if s.billing != nil {
		if err := s.billing.RecordRenewal(ctx, accountID, serverID, cost, reason); err != nil {
			s.logger.Warn("renewal invoice not recorded", "server_id", serverID, "error", err)
		}
	}

	rec.ExpiresAt = expiresAt
	rec.NextBillingDate = expiresAt
	rec.Status = status
	return rec, unsuspendErr
}

// ExtendPaid moves the paid-for window after an invoice settled the charge
// elsewhere. The covered months are derived from the settled amount.
func (s *Service) ExtendPaid(ctx context.Context, accountID, serverID int64, amount float64) (*ServerRecord, error) {
	rec, err := s.Get(ctx, accountID, serverID)
	if err != nil {
		return nil, err
	}

	months := 1
	if rec.Price > 0 {
		if m := int(amount/rec.Price + 0.5); m > months {
			months = m
		}
	}
	expiresAt := s.extendedExpiry(rec, months)

	status := StatusActive
	var unsuspendErr error
	if rec.Status == StatusSuspended || rec.Status == StatusExpired {
		if err := s.panel.UnsuspendServer(ctx, rec.RemoteID); err != nil {
			status = StatusSuspended
			unsuspendErr = fmt.Errorf("%w: %v", ErrUnsuspendFailed, err)
			s.logger.Warn("invoice settled but unsuspend failed", "server_id", serverID, "remote_id", rec.RemoteID, "error", err)
		}
	}

	if err := s.repo.UpdateExpiry(ctx, serverID, expiresAt, expiresAt, status); err != nil {
		return nil, err
	}

	rec.ExpiresAt = expiresAt
	rec.NextBillingDate = expiresAt
	rec.Status = status
	return rec, unsuspendErr
}

// Suspend pushes a suspend to the panel and, only once that succeeds, flags
// the local record. A failed remote call leaves the record untouched so the
// next sweep retries.
func (s *Service) Suspend(ctx context.Context, rec *ServerRecord) error {
	if err := s.panel.SuspendServer(ctx, rec.RemoteID); err != nil {
		return err
	}
	if err := s.repo.MarkSuspended(ctx, rec.ID); err != nil {
		return err
	}
	rec.Status = StatusSuspended
	return nil
}

// Overdue lists records past expiry that still need reconciling.
func (s *Service) Overdue(ctx context.Context) ([]ServerRecord, error) {
	return s.repo.ListOverdueUnflagged(ctx, s.now())
}

// DueForInvoice lists active manual-renew servers entering the invoicing
// window ahead of their next billing date.
func (s *Service) DueForInvoice(ctx context.Context) ([]ServerRecord, error) {
	return s.repo.ListDueForInvoice(ctx, s.now().Add(invoiceLeadTime))
}

// extendedExpiry returns the expiry after adding months, counted from the
// later of now and the current expiry.
func (s *Service) extendedExpiry(rec *ServerRecord, months int) time.Time {
	base := rec.ExpiresAt
	if now := s.now(); base.Before(now) {
		base = now
	}
	return base.AddDate(0, months, 0)
}
