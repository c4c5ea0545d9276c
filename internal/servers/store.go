package servers

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blockhaven/blockhaven/internal/ledger"
	"github.com/blockhaven/blockhaven/internal/platform/db"
)

// RenewalStore commits a renewal's wallet charge and its expiry move as one
// unit. A failure on either side leaves both untouched.
type RenewalStore interface {
	ChargeAndExtend(ctx context.Context, rec *ServerRecord, amount float64, expiresAt, nextBillingDate time.Time, status Status, reason string) error
}

// PGRenewalStore implements RenewalStore on postgres.
type PGRenewalStore struct {
	pool *pgxpool.Pool
}

// NewRenewalStore constructs the store.
func NewRenewalStore(pool *pgxpool.Pool) *PGRenewalStore {
	return &PGRenewalStore{pool: pool}
}

// ChargeAndExtend debits the wallet and moves the paid-for window inside a
// single transaction.
func (s *PGRenewalStore) ChargeAndExtend(ctx context.Context, rec *ServerRecord, amount float64, expiresAt, nextBillingDate time.Time, status Status, reason string) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := ledger.DebitTx(ctx, tx, rec.AccountID, amount, ledger.TypeRenewal, "wallet", reason); err != nil {
			return err
		}
		return UpdateExpiryTx(ctx, tx, rec.ID, expiresAt, nextBillingDate, status)
	})
}
