package servers

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blockhaven/blockhaven/internal/shared"
)

// Repository persists server records in postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const serverColumns = `id, account_id, remote_id, name, plan, price, ram_mb, disk_mb, cpu,
	status, auto_renew, COALESCE(ip, ''), COALESCE(port, 0), COALESCE(location, ''),
	created_at, expires_at, next_billing_date`

func scanServer(row pgx.Row) (*ServerRecord, error) {
	var rec ServerRecord
	err := row.Scan(&rec.ID, &rec.AccountID, &rec.RemoteID, &rec.Name, &rec.Plan, &rec.Price,
		&rec.RAMMB, &rec.DiskMB, &rec.CPU, &rec.Status, &rec.AutoRenew,
		&rec.IP, &rec.Port, &rec.Location, &rec.CreatedAt, &rec.ExpiresAt, &rec.NextBillingDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// InsertTx writes a server record inside the caller's transaction so record
// and wallet charge commit or roll back together.
func InsertTx(ctx context.Context, tx pgx.Tx, rec *ServerRecord) error {
	return tx.QueryRow(ctx, `INSERT INTO servers
		(account_id, remote_id, name, plan, price, ram_mb, disk_mb, cpu, status, auto_renew, created_at, expires_at, next_billing_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		rec.AccountID, rec.RemoteID, rec.Name, rec.Plan, rec.Price, rec.RAMMB, rec.DiskMB, rec.CPU,
		rec.Status, rec.AutoRenew, rec.CreatedAt, rec.ExpiresAt, rec.NextBillingDate,
	).Scan(&rec.ID)
}

// ListByAccount returns every server owned by the account, newest first.
func (r *Repository) ListByAccount(ctx context.Context, accountID int64) ([]ServerRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+serverColumns+` FROM servers
		WHERE account_id = $1 ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ServerRecord
	for rows.Next() {
		rec, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Get fetches a single server record by id.
func (r *Repository) Get(ctx context.Context, id int64) (*ServerRecord, error) {
	return scanServer(r.pool.QueryRow(ctx, `SELECT `+serverColumns+` FROM servers WHERE id = $1`, id))
}

// MarkSuspended flags a record suspended. Callers must only do this after
// the remote suspend call succeeded.
func (r *Repository) MarkSuspended(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE servers SET status = $1 WHERE id = $2`, StatusSuspended, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// MarkActive lifts a suspension flag after the panel confirmed the
// unsuspend.
func (r *Repository) MarkActive(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE servers SET status = $1 WHERE id = $2`, StatusActive, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdateExpiry moves the paid-for window and sets the resulting status.
func (r *Repository) UpdateExpiry(ctx context.Context, id int64, expiresAt, nextBillingDate time.Time, status Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE servers SET expires_at = $1, next_billing_date = $2, status = $3 WHERE id = $4`,
		expiresAt, nextBillingDate, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdateExpiryTx is the in-transaction variant, used so a renewal's wallet
// charge and its expiry move commit or roll back together.
func UpdateExpiryTx(ctx context.Context, tx pgx.Tx, id int64, expiresAt, nextBillingDate time.Time, status Status) error {
	tag, err := tx.Exec(ctx, `UPDATE servers SET expires_at = $1, next_billing_date = $2, status = $3 WHERE id = $4`,
		expiresAt, nextBillingDate, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetNetwork fills in the connection details learned from the panel after
// provisioning.
func (r *Repository) SetNetwork(ctx context.Context, id int64, ip string, port int, location string) error {
	_, err := r.pool.Exec(ctx, `UPDATE servers SET ip = NULLIF($1, ''), port = NULLIF($2, 0), location = NULLIF($3, '') WHERE id = $4`,
		ip, port, location, id)
	return err
}

// SetAutoRenew toggles automatic renewal.
func (r *Repository) SetAutoRenew(ctx context.Context, id int64, enabled bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE servers SET auto_renew = $1 WHERE id = $2`, enabled, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListDueForInvoice returns active manual-renew servers whose next billing
// date falls on or before the cutoff, for the sweep to invoice.
func (r *Repository) ListDueForInvoice(ctx context.Context, cutoff time.Time) ([]ServerRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+serverColumns+` FROM servers
		WHERE next_billing_date <= $1 AND status = $2 AND auto_renew = FALSE
		ORDER BY next_billing_date ASC`, cutoff, StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ServerRecord
	for rows.Next() {
		rec, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// ListOverdueUnflagged returns records past expiry that have not yet been
// suspended or expired, for the sweep to reconcile.
func (r *Repository) ListOverdueUnflagged(ctx context.Context, now time.Time) ([]ServerRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+serverColumns+` FROM servers
		WHERE expires_at <= $1 AND status NOT IN ($2, $3)
		ORDER BY expires_at ASC`, now, StatusSuspended, StatusExpired)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ServerRecord
	for rows.Next() {
		rec, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}
