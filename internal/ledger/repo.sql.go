package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blockhaven/blockhaven/internal/shared"
)

// Repository provides PostgreSQL backed persistence for wallets and
// transactions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EnsureWallet creates a zero-balance wallet for the account if absent.
func (r *Repository) EnsureWallet(ctx context.Context, accountID int64, currency string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO wallets (account_id, balance, currency, updated_at)
VALUES ($1, 0, $2, NOW()) ON CONFLICT (account_id) DO NOTHING`, accountID, currency)
	return err
}

// Wallet fetches a wallet by account id.
func (r *Repository) Wallet(ctx context.Context, accountID int64) (*Wallet, error) {
	var w Wallet
	err := r.pool.QueryRow(ctx, `SELECT account_id, balance, currency, updated_at FROM wallets WHERE account_id=$1`, accountID).
		Scan(&w.AccountID, &w.Balance, &w.Currency, &w.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &w, nil
}

// Credit increases the balance and appends a completed transaction in one
// transaction.
func (r *Repository) Credit(ctx context.Context, accountID int64, amount float64, typ TransactionType, method, reason string) (*Transaction, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `UPDATE wallets SET balance = balance + $1, updated_at = NOW() WHERE account_id=$2`, amount, accountID); err != nil {
		return nil, err
	}
	record, err := insertTransaction(ctx, tx, accountID, amount, typ, method, reason, StatusCompleted)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

// Debit decreases the balance after a row-locked check that it stays
// non-negative, and appends a completed transaction.
func (r *Repository) Debit(ctx context.Context, accountID int64, amount float64, typ TransactionType, method, reason string) (*Transaction, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	record, err := DebitTx(ctx, tx, accountID, amount, typ, method, reason)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

// DebitTx performs the debit inside a caller-owned transaction, which lets
// the provisioning saga charge the wallet atomically with its record writes.
func DebitTx(ctx context.Context, tx pgx.Tx, accountID int64, amount float64, typ TransactionType, method, reason string) (*Transaction, error) {
	var balance float64
	if err := tx.QueryRow(ctx, `SELECT balance FROM wallets WHERE account_id=$1 FOR UPDATE`, accountID).Scan(&balance); err != nil {
		if err == pgx.ErrNoRows {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	if balance < amount {
		return nil, shared.ErrInsufficientBalance
	}
	if _, err := tx.Exec(ctx, `UPDATE wallets SET balance = balance - $1, updated_at = NOW() WHERE account_id=$2`, amount, accountID); err != nil {
		return nil, err
	}
	return insertTransaction(ctx, tx, accountID, -amount, typ, method, reason, StatusCompleted)
}

// CreatePending appends a pending transaction, used by the deposit flow
// between order creation and capture.
func (r *Repository) CreatePending(ctx context.Context, accountID int64, amount float64, typ TransactionType, method, reason string) (*Transaction, error) {
	var record *Transaction
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	record, err = insertTransaction(ctx, tx, accountID, amount, typ, method, reason, StatusPending)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

// SettlePending flips a pending transaction to its final status; when
// completed it also applies the amount to the wallet.
func (r *Repository) SettlePending(ctx context.Context, transactionID int64, status TransactionStatus) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var accountID int64
	var amount float64
	var current TransactionStatus
	err = tx.QueryRow(ctx, `SELECT account_id, amount, status FROM transactions WHERE id=$1 FOR UPDATE`, transactionID).
		Scan(&accountID, &amount, &current)
	if err != nil {
		if err == pgx.ErrNoRows {
			return shared.ErrNotFound
		}
		return err
	}
	if current != StatusPending {
		return nil
	}
	if _, err := tx.Exec(ctx, `UPDATE transactions SET status=$1 WHERE id=$2`, status, transactionID); err != nil {
		return err
	}
	if status == StatusCompleted {
		if _, err := tx.Exec(ctx, `UPDATE wallets SET balance = balance + $1, updated_at = NOW() WHERE account_id=$2`, amount, accountID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ListTransactions returns the account's transactions, newest first.
func (r *Repository) ListTransactions(ctx context.Context, accountID int64, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT id, account_id, amount, type, method, reason, status, created_at
FROM transactions WHERE account_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []Transaction
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Amount, &t.Type, &t.Method, &t.Reason, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// ListDrift compares each wallet balance to the sum of its completed
// transactions and returns the mismatches.
func (r *Repository) ListDrift(ctx context.Context) ([]Drift, error) {
	rows, err := r.pool.Query(ctx, `SELECT w.account_id, w.balance, COALESCE(SUM(t.amount) FILTER (WHERE t.status='completed'), 0)
FROM wallets w LEFT JOIN transactions t ON t.account_id = w.account_id
GROUP BY w.account_id, w.balance
HAVING w.balance <> COALESCE(SUM(t.amount) FILTER (WHERE t.status='completed'), 0)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var drifts []Drift
	for rows.Next() {
		var d Drift
		if err := rows.Scan(&d.AccountID, &d.Balance, &d.Expected); err != nil {
			return nil, err
		}
		drifts = append(drifts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return drifts, nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, accountID int64, amount float64, typ TransactionType, method, reason string, status TransactionStatus) (*Transaction, error) {
	now := time.Now().UTC()
	var id int64
	err := tx.QueryRow(ctx, `INSERT INTO transactions (account_id, amount, type, method, reason, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`, accountID, amount, typ, method, reason, status, now).Scan(&id)
	if err != nil {
		return nil, err
	}
	return &Transaction{
		ID:        id,
		AccountID: accountID,
		Amount:    amount,
		Type:      typ,
		Method:    method,
		Reason:    reason,
		Status:    status,
		CreatedAt: now,
	}, nil
}
