package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blockhaven/blockhaven/internal/ledger"
	"github.com/blockhaven/blockhaven/internal/shared"
)

const (
	minDeposit = 1.00
	maxDeposit = 1000.00
)

// ProviderPort is the checkout provider surface the service needs.
type ProviderPort interface {
	Configured() bool
	CreateOrder(ctx context.Context, amount float64, currency, returnURL, cancelURL string) (*Order, error)
	CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error)
}

// LedgerPort books the pending deposit and its settlement.
type LedgerPort interface {
	BeginDeposit(ctx context.Context, accountID int64, amount float64, method, reason string) (*ledger.Transaction, error)
	SettleDeposit(ctx context.Context, transactionID int64, succeeded bool) error
}

// OrderStore persists the provider-order to transaction mapping.
type OrderStore interface {
	Create(ctx context.Context, order *DepositOrder) error
	Get(ctx context.Context, orderID string) (*DepositOrder, error)
	SetStatus(ctx context.Context, orderID, status string) error
}

// Service drives the deposit flow: pending transaction at order creation,
// settled on capture. The trail is append-only; a failed capture flips the
// pending row to failed, never deletes it.
type Service struct {
	logger   *slog.Logger
	provider ProviderPort
	wallet   LedgerPort
	orders   OrderStore
	currency string
	now      func() time.Time
}

// NewService constructs a new Service.
func NewService(logger *slog.Logger, provider ProviderPort, wallet LedgerPort, orders OrderStore, currency string) *Service {
	return &Service{logger: logger, provider: provider, wallet: wallet, orders: orders, currency: currency, now: time.Now}
}

// StartDeposit opens a provider order and the matching pending transaction,
// returning the approval URL the customer is redirected to.
func (s *Service) StartDeposit(ctx context.Context, accountID int64, amount float64, returnURL, cancelURL string) (*Order, error) {
	if !s.provider.Configured() {
		return nil, ErrUnavailable
	}
	if amount < minDeposit || amount > maxDeposit {
		return nil, fmt.Errorf("deposit must be between %.2f and %.2f", minDeposit, maxDeposit)
	}

	order, err := s.provider.CreateOrder(ctx, amount, s.currency, returnURL, cancelURL)
	if err != nil {
		return nil, err
	}
	txn, err := s.wallet.BeginDeposit(ctx, accountID, amount, "paypal", "wallet deposit order "+order.ID)
	if err != nil {
		return nil, err
	}
	if err := s.orders.Create(ctx, &DepositOrder{
		OrderID:       order.ID,
		AccountID:     accountID,
		TransactionID: txn.ID,
		Amount:        amount,
		Currency:      s.currency,
		Status:        orderStatusCreated,
		CreatedAt:     s.now(),
	}); err != nil {
		return nil, err
	}
	return order, nil
}

// CompleteDeposit captures an approved order and settles the pending
// transaction. A capture the provider rejects marks the transaction failed.
func (s *Service) CompleteDeposit(ctx context.Context, accountID int64, orderID string) (*DepositOrder, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.AccountID != accountID {
		return nil, shared.ErrNotFound
	}
	if order.Status != orderStatusCreated {
		return nil, errors.New("deposit order already resolved")
	}

	result, err := s.provider.CaptureOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !result.Completed() {
		s.logger.Warn("deposit capture rejected", "order_id", orderID, "status", result.Status)
		if err := s.wallet.SettleDeposit(ctx, order.TransactionID, false); err != nil {
			return nil, err
		}
		if err := s.orders.SetStatus(ctx, orderID, orderStatusFailed); err != nil {
			return nil, err
		}
		order.Status = orderStatusFailed
		return order, nil
	}

	if err := s.wallet.SettleDeposit(ctx, order.TransactionID, true); err != nil {
		return nil, err
	}
	if err := s.orders.SetStatus(ctx, orderID, orderStatusCaptured); err != nil {
		return nil, err
	}
	order.Status = orderStatusCaptured
	return order, nil
}
