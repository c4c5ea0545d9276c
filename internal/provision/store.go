package provision

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blockhaven/blockhaven/internal/ledger"
	"github.com/blockhaven/blockhaven/internal/platform/db"
	"github.com/blockhaven/blockhaven/internal/servers"
)

// Store persists a freshly provisioned server and its wallet charge as one
// unit. Either both land or neither does.
type Store interface {
	CreatePaid(ctx context.Context, rec *servers.ServerRecord, reason string) error
}

// PGStore implements Store on postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs the store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// CreatePaid inserts the server record and debits the wallet in a single
// transaction. An insufficient balance rolls the insert back.
func (s *PGStore) CreatePaid(ctx context.Context, rec *servers.ServerRecord, reason string) error {
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := servers.InsertTx(ctx, tx, rec); err != nil {
			return err
		}
		_, err := ledger.DebitTx(ctx, tx, rec.AccountID, rec.Price, ledger.TypeServerCreation, "wallet", reason)
		return err
	})
}
