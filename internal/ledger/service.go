package ledger

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// RepositoryPort defines data access methods for the ledger.
type RepositoryPort interface {
	EnsureWallet(ctx context.Context, accountID int64, currency string) error
	Wallet(ctx context.Context, accountID int64) (*Wallet, error)
	Credit(ctx context.Context, accountID int64, amount float64, typ TransactionType, method, reason string) (*Transaction, error)
	Debit(ctx context.Context, accountID int64, amount float64, typ TransactionType, method, reason string) (*Transaction, error)
	CreatePending(ctx context.Context, accountID int64, amount float64, typ TransactionType, method, reason string) (*Transaction, error)
	SettlePending(ctx context.Context, transactionID int64, status TransactionStatus) error
	ListTransactions(ctx context.Context, accountID int64, limit int) ([]Transaction, error)
	ListDrift(ctx context.Context) ([]Drift, error)
}

// Service handles wallet business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Open ensures the account has a wallet in the given currency.
func (s *Service) Open(ctx context.Context, accountID int64, currencyCode string) error {
	if accountID == 0 {
		return errors.New("account ID required")
	}
	if currencyCode == "" {
		return errors.New("currency required")
	}
	return s.repo.EnsureWallet(ctx, accountID, currencyCode)
}

// Balance returns the account's wallet.
func (s *Service) Balance(ctx context.Context, accountID int64) (*Wallet, error) {
	return s.repo.Wallet(ctx, accountID)
}

// Deposit credits the wallet and records a completed deposit transaction.
func (s *Service) Deposit(ctx context.Context, accountID int64, amount float64, method, reason string) (*Transaction, error) {
	if accountID == 0 {
		return nil, errors.New("account ID required")
	}
	if amount <= 0 {
		return nil, errors.New("amount must be positive")
	}
	return s.repo.Credit(ctx, accountID, amount, TypeDeposit, method, reason)
}

// Spend debits the wallet; the balance never goes negative.
func (s *Service) Spend(ctx context.Context, accountID int64, amount float64, typ TransactionType, method, reason string) (*Transaction, error) {
	if accountID == 0 {
		return nil, errors.New("account ID required")
	}
	if amount <= 0 {
		return nil, errors.New("amount must be positive")
	}
	return s.repo.Debit(ctx, accountID, amount, typ, method, reason)
}

// BeginDeposit records a pending deposit awaiting external capture.
func (s *Service) BeginDeposit(ctx context.Context, accountID int64, amount float64, method, reason string) (*Transaction, error) {
	if accountID == 0 {
		return nil, errors.New("account ID required")
	}
	if amount <= 0 {
		return nil, errors.New("amount must be positive")
	}
	return s.repo.CreatePending(ctx, accountID, amount, TypeDeposit, method, reason)
}

// SettleDeposit flips a pending deposit to completed or failed.
func (s *Service) SettleDeposit(ctx context.Context, transactionID int64, succeeded bool) error {
	status := StatusFailed
	if succeeded {
		status = StatusCompleted
	}
	return s.repo.SettlePending(ctx, transactionID, status)
}

// History lists the account's transactions, newest first.
func (s *Service) History(ctx context.Context, accountID int64, limit int) ([]Transaction, error) {
	return s.repo.ListTransactions(ctx, accountID, limit)
}

// FindDrift returns wallets whose balance disagrees with the sum of their
// completed transactions. Mismatches are reported, never auto-corrected.
func (s *Service) FindDrift(ctx context.Context) ([]Drift, error) {
	return s.repo.ListDrift(ctx)
}

// FormatAmount renders a user-facing amount in the wallet currency.
func FormatAmount(amount float64, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return fmt.Sprintf("%.2f %s", amount, code)
	}
	printer := message.NewPrinter(language.English)
	return printer.Sprintf("%v", currency.Symbol(unit.Amount(amount)))
}
