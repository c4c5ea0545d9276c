package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/blockhaven/blockhaven/internal/ledger"
	"github.com/blockhaven/blockhaven/internal/servers"
	"github.com/blockhaven/blockhaven/internal/shared"
)

// Invoices issued ahead of a renewal give the customer a week to pay.
const paymentWindow = 7 * 24 * time.Hour

// RepositoryPort abstracts invoice persistence.
type RepositoryPort interface {
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id int64) (*Invoice, error)
	ListByAccount(ctx context.Context, accountID int64) ([]Invoice, error)
	MarkPaid(ctx context.Context, id int64, paidAt time.Time) error
	MarkOverduePastDue(ctx context.Context, now time.Time) (int64, error)
	HasOpenForServer(ctx context.Context, serverID int64) (bool, error)
}

// WalletPort charges invoice payments against the wallet.
type WalletPort interface {
	Spend(ctx context.Context, accountID int64, amount float64, typ ledger.TransactionType, method, reason string) (*ledger.Transaction, error)
}

// ServerExtender moves a server's paid-for window after its invoice
// settles.
type ServerExtender interface {
	ExtendPaid(ctx context.Context, accountID, serverID int64, amount float64) (*servers.ServerRecord, error)
}

// Service owns invoice lifecycle rules.
type Service struct {
	logger   *slog.Logger
	repo     RepositoryPort
	wallets  WalletPort
	servers  ServerExtender
	currency string
	now      func() time.Time
}

// NewService constructs a new Service.
func NewService(logger *slog.Logger, repo RepositoryPort, wallets WalletPort, currency string) *Service {
	return &Service{logger: logger, repo: repo, wallets: wallets, currency: currency, now: time.Now}
}

// WithServers attaches the server extender. Set after construction because
// the server service itself records renewals through billing.
func (s *Service) WithServers(ext ServerExtender) *Service {
	s.servers = ext
	return s
}

// WithClock overrides the time source, for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RecordRenewal writes the paid invoice for a renewal that was already
// charged to the wallet.
func (s *Service) RecordRenewal(ctx context.Context, accountID, serverID int64, amount float64, description string) error {
	now := s.now()
	inv := &Invoice{
		AccountID: accountID,
		ServerID:  serverID,
		Amount:    amount,
		Currency:  s.currency,
		Status:    StatusPaid,
		Service:   description,
		IssuedAt:  now,
		DueAt:     now,
		PaidAt:    &now,
	}
	return s.repo.Create(ctx, inv)
}

// IssueRenewalInvoice writes a pending invoice ahead of an upcoming
// renewal, due within the payment window. A server with an open invoice is
// skipped so repeated sweeps never double-bill; the skip returns nil, nil.
func (s *Service) IssueRenewalInvoice(ctx context.Context, accountID, serverID int64, amount float64, description string) (*Invoice, error) {
	if amount <= 0 {
		return nil, errors.New("invoice amount must be positive")
	}
	if serverID != 0 {
		open, err := s.repo.HasOpenForServer(ctx, serverID)
		if err != nil {
			return nil, err
		}
		if open {
			return nil, nil
		}
	}
	now := s.now()
	inv := &Invoice{
		AccountID: accountID,
		ServerID:  serverID,
		Amount:    amount,
		Currency:  s.currency,
		Status:    StatusPending,
		Service:   description,
		IssuedAt:  now,
		DueAt:     now.Add(paymentWindow),
	}
	if err := s.repo.Create(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Pay settles a pending or overdue invoice from the wallet.
func (s *Service) Pay(ctx context.Context, accountID, invoiceID int64) (*Invoice, error) {
	inv, err := s.repo.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.AccountID != accountID {
		return nil, shared.ErrNotFound
	}
	if inv.Status == StatusPaid {
		return nil, errors.New("invoice already paid")
	}
	if _, err := s.wallets.Spend(ctx, accountID, inv.Amount, ledger.TypeRenewal, "wallet", "invoice "+inv.Number); err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.repo.MarkPaid(ctx, invoiceID, now); err != nil {
		return nil, err
	}
	inv.Status = StatusPaid
	inv.PaidAt = &now

	if inv.ServerID != 0 && s.servers != nil {
		if _, err := s.servers.ExtendPaid(ctx, accountID, inv.ServerID, inv.Amount); err != nil {
			if errors.Is(err, servers.ErrUnsuspendFailed) {
				s.logger.Warn("invoice paid, unsuspend pending", "invoice_id", invoiceID, "server_id", inv.ServerID, "error", err)
			} else {
				s.logger.Error("invoice paid but server not extended", "invoice_id", invoiceID, "server_id", inv.ServerID, "error", err)
			}
		}
	}
	return inv, nil
}

// ListByAccount returns the account's invoices.
func (s *Service) ListByAccount(ctx context.Context, accountID int64) ([]Invoice, error) {
	return s.repo.ListByAccount(ctx, accountID)
}

// SweepOverdue flips pending invoices past their due date and reports the
// count, for the scheduled sweep.
func (s *Service) SweepOverdue(ctx context.Context) (int64, error) {
	return s.repo.MarkOverduePastDue(ctx, s.now())
}
