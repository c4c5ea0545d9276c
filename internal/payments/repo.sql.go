package payments

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blockhaven/blockhaven/internal/shared"
)

// DepositOrder links a provider checkout order to its pending ledger
// transaction.
type DepositOrder struct {
	OrderID       string
	AccountID     int64
	TransactionID int64
	Amount        float64
	Currency      string
	Status        string
	CreatedAt     time.Time
}

const (
	orderStatusCreated  = "created"
	orderStatusCaptured = "captured"
	orderStatusFailed   = "failed"
)

// Repository persists deposit orders in postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a freshly opened order.
func (r *Repository) Create(ctx context.Context, order *DepositOrder) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO deposit_orders
		(order_id, account_id, transaction_id, amount, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		order.OrderID, order.AccountID, order.TransactionID, order.Amount, order.Currency, order.Status, order.CreatedAt)
	return err
}

// Get fetches an order by its provider id.
func (r *Repository) Get(ctx context.Context, orderID string) (*DepositOrder, error) {
	var order DepositOrder
	err := r.pool.QueryRow(ctx, `SELECT order_id, account_id, transaction_id, amount, currency, status, created_at
		FROM deposit_orders WHERE order_id = $1`, orderID).
		Scan(&order.OrderID, &order.AccountID, &order.TransactionID, &order.Amount, &order.Currency, &order.Status, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &order, nil
}

// SetStatus updates the order state; only unresolved orders transition.
func (r *Repository) SetStatus(ctx context.Context, orderID, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE deposit_orders SET status = $1
		WHERE order_id = $2 AND status = $3`, status, orderID, orderStatusCreated)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
