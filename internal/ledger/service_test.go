package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blockhaven/blockhaven/internal/shared"
)

type memoryLedgerRepo struct {
	wallets      map[int64]*Wallet
	transactions map[int64]*Transaction
	nextID       int64
}

func newMemoryLedgerRepo() *memoryLedgerRepo {
	return &memoryLedgerRepo{
		wallets:      make(map[int64]*Wallet),
		transactions: make(map[int64]*Transaction),
	}
}

func (r *memoryLedgerRepo) EnsureWallet(ctx context.Context, accountID int64, currency string) error {
	if _, ok := r.wallets[accountID]; !ok {
		r.wallets[accountID] = &Wallet{AccountID: accountID, Currency: currency}
	}
	return nil
}

func (r *memoryLedgerRepo) Wallet(ctx context.Context, accountID int64) (*Wallet, error) {
	w, ok := r.wallets[accountID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return w, nil
}

func (r *memoryLedgerRepo) record(accountID int64, amount float64, typ TransactionType, method, reason string, status TransactionStatus) *Transaction {
	r.nextID++
	t := &Transaction{
		ID:        r.nextID,
		AccountID: accountID,
		Amount:    amount,
		Type:      typ,
		Method:    method,
		Reason:    reason,
		Status:    status,
		CreatedAt: time.Now(),
	}
	r.transactions[t.ID] = t
	return t
}

func (r *memoryLedgerRepo) Credit(ctx context.Context, accountID int64, amount float64, typ TransactionType, method, reason string) (*Transaction, error) {
	w, ok := r.wallets[accountID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	w.Balance += amount
	return r.record(accountID, amount, typ, method, reason, StatusCompleted), nil
}

func (r *memoryLedgerRepo) Debit(ctx context.Context, accountID int64, amount float64, typ TransactionType, method, reason string) (*Transaction, error) {
	w, ok := r.wallets[accountID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	if w.Balance < amount {
		return nil, shared.ErrInsufficientBalance
	}
	w.Balance -= amount
	return r.record(accountID, -amount, typ, method, reason, StatusCompleted), nil
}

func (r *memoryLedgerRepo) CreatePending(ctx context.Context, accountID int64, amount float64, typ TransactionType, method, reason string) (*Transaction, error) {
	return r.record(accountID, amount, typ, method, reason, StatusPending), nil
}

func (r *memoryLedgerRepo) SettlePending(ctx context.Context, transactionID int64, status TransactionStatus) error {
	t, ok := r.transactions[transactionID]
	if !ok {
		return shared.ErrNotFound
	}
	if t.Status != StatusPending {
		return nil
	}
	t.Status = status
	if status == StatusCompleted {
		r.wallets[t.AccountID].Balance += t.Amount
	}
	return nil
}

func (r *memoryLedgerRepo) ListTransactions(ctx context.Context, accountID int64, limit int) ([]Transaction, error) {
	var out []Transaction
	for _, t := range r.transactions {
		if t.AccountID == accountID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (r *memoryLedgerRepo) ListDrift(ctx context.Context) ([]Drift, error) {
	var drifts []Drift
	for id, w := range r.wallets {
		var sum float64
		for _, t := range r.transactions {
			if t.AccountID == id && t.Status == StatusCompleted {
				sum += t.Amount
			}
		}
		if sum != w.Balance {
			drifts = append(drifts, Drift{AccountID: id, Balance: w.Balance, Expected: sum})
		}
	}
	return drifts, nil
}

func TestDepositIncreasesBalance(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	svc := NewService(repo)

	require.NoError(t, svc.Open(ctx, 1, "USD"))
	_, err := svc.Deposit(ctx, 1, 25, "paypal", "wallet top-up")
	require.NoError(t, err)

	w, err := svc.Balance(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 25.0, w.Balance)
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemoryLedgerRepo())

	_, err := svc.Deposit(ctx, 1, 0, "paypal", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "amount must be positive")

	_, err = svc.Deposit(ctx, 1, -5, "paypal", "")
	require.Error(t, err)
}

func TestSpendNeverGoesNegative(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	svc := NewService(repo)

	require.NoError(t, svc.Open(ctx, 1, "USD"))
	_, err := svc.Deposit(ctx, 1, 5, "paypal", "")
	require.NoError(t, err)

	_, err = svc.Spend(ctx, 1, 8, TypeServerCreation, "wallet", "plan dirt")
	require.ErrorIs(t, err, shared.ErrInsufficientBalance)

	w, _ := svc.Balance(ctx, 1)
	require.Equal(t, 5.0, w.Balance)
}

func TestPendingDepositSettlement(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	svc := NewService(repo)

	require.NoError(t, svc.Open(ctx, 2, "USD"))
	pending, err := svc.BeginDeposit(ctx, 2, 10, "paypal", "order ABC")
	require.NoError(t, err)

	w, _ := svc.Balance(ctx, 2)
	require.Equal(t, 0.0, w.Balance)

	require.NoError(t, svc.SettleDeposit(ctx, pending.ID, true))
	w, _ = svc.Balance(ctx, 2)
	require.Equal(t, 10.0, w.Balance)

	// Settling twice is a no-op.
	require.NoError(t, svc.SettleDeposit(ctx, pending.ID, true))
	w, _ = svc.Balance(ctx, 2)
	require.Equal(t, 10.0, w.Balance)
}

func TestFindDriftReportsMismatch(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryLedgerRepo()
	svc := NewService(repo)

	require.NoError(t, svc.Open(ctx, 3, "USD"))
	_, err := svc.Deposit(ctx, 3, 30, "paypal", "")
	require.NoError(t, err)

	drifts, err := svc.FindDrift(ctx)
	require.NoError(t, err)
	require.Empty(t, drifts)

	// Simulate a balance written outside the transaction trail.
	repo.wallets[3].Balance = 42

	drifts, err = svc.FindDrift(ctx)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	require.Equal(t, int64(3), drifts[0].AccountID)
	require.Equal(t, 12.0, drifts[0].Delta())
}

func TestFormatAmount(t *testing.T) {
	require.Contains(t, FormatAmount(9.5, "USD"), "9.5")
	require.Equal(t, "3.00 ???", FormatAmount(3, "???"))
}
