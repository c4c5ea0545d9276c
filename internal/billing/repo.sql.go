package billing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blockhaven/blockhaven/internal/shared"
)

// Repository persists invoices in postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const invoiceColumns = `id, number, account_id, server_id, amount, currency, status, service, issued_at, due_at, paid_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.AccountID, &inv.ServerID, &inv.Amount, &inv.Currency,
		&inv.Status, &inv.Service, &inv.IssuedAt, &inv.DueAt, &inv.PaidAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}

// Create inserts the invoice and backfills its id and number.
func (r *Repository) Create(ctx context.Context, inv *Invoice) error {
	err := r.pool.QueryRow(ctx, `INSERT INTO invoices
		(account_id, server_id, amount, currency, status, service, issued_at, due_at, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		inv.AccountID, inv.ServerID, inv.Amount, inv.Currency, inv.Status, inv.Service,
		inv.IssuedAt, inv.DueAt, inv.PaidAt,
	).Scan(&inv.ID)
	if err != nil {
		return err
	}
	inv.Number = InvoiceNumber(inv.IssuedAt, inv.ID)
	_, err = r.pool.Exec(ctx, `UPDATE invoices SET number = $1 WHERE id = $2`, inv.Number, inv.ID)
	return err
}

// Get fetches a single invoice.
func (r *Repository) Get(ctx context.Context, id int64) (*Invoice, error) {
	return scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
}

// ListByAccount returns the account's invoices, newest first.
func (r *Repository) ListByAccount(ctx context.Context, accountID int64) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
		WHERE account_id = $1 ORDER BY issued_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

// MarkPaid flips a pending or overdue invoice to paid. Paid invoices are
// final and never transition again.
func (r *Repository) MarkPaid(ctx context.Context, id int64, paidAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET status = $1, paid_at = $2
		WHERE id = $3 AND status IN ($4, $5)`,
		StatusPaid, paidAt, id, StatusPending, StatusOverdue)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// HasOpenForServer reports whether the server already has a pending or
// overdue invoice.
func (r *Repository) HasOpenForServer(ctx context.Context, serverID int64) (bool, error) {
	var open bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM invoices WHERE server_id = $1 AND status IN ($2, $3))`,
		serverID, StatusPending, StatusOverdue).Scan(&open)
	return open, err
}

// MarkOverduePastDue flips every pending invoice whose due date has passed
// and reports how many changed.
func (r *Repository) MarkOverduePastDue(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE invoices SET status = $1
		WHERE status = $2 AND due_at < $3`, StatusOverdue, StatusPending, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
