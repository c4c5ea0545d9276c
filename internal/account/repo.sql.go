package account

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/blockhaven/blockhaven/internal/shared"
)

// Repository provides PostgreSQL backed persistence for accounts and panel
// links.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const accountColumns = `id, email, username, password_hash, oauth_provider, oauth_subject, currency, created_at, updated_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Email, &a.Username, &a.PasswordHash, &a.OAuthProvider, &a.OAuthSubject, &a.Currency, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Create inserts a new account.
func (r *Repository) Create(ctx context.Context, input RegisterInput) (*Account, error) {
	now := time.Now().UTC()
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO accounts (email, username, password_hash, oauth_provider, oauth_subject, currency, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $7) RETURNING id`,
		input.Email, input.Username, input.PasswordHash, input.Provider, input.Subject, input.Currency, now).Scan(&id)
	if err != nil {
		return nil, err
	}
	return &Account{
		ID:            id,
		Email:         input.Email,
		Username:      input.Username,
		PasswordHash:  input.PasswordHash,
		OAuthProvider: input.Provider,
		OAuthSubject:  input.Subject,
		Currency:      input.Currency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// FindByEmail fetches an account by email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email=$1`, email))
}

// FindByID fetches an account by id.
func (r *Repository) FindByID(ctx context.Context, id int64) (*Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
}

// FindByOAuth fetches an account by provider and subject.
func (r *Repository) FindByOAuth(ctx context.Context, provider, subject string) (*Account, error) {
	return scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE oauth_provider=$1 AND oauth_subject=$2`, provider, subject))
}

// PanelLink fetches the account's panel link if present.
func (r *Repository) PanelLink(ctx context.Context, accountID int64) (*PanelLink, error) {
	var link PanelLink
	err := r.pool.QueryRow(ctx, `SELECT account_id, remote_user_id, remote_username, remote_email, panel_url, password_ciphertext, created_at
FROM panel_links WHERE account_id=$1`, accountID).
		Scan(&link.AccountID, &link.RemoteUserID, &link.RemoteUsername, &link.RemoteEmail, &link.PanelURL, &link.PasswordCiphertext, &link.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &link, nil
}

// SavePanelLink upserts the account's panel link.
func (r *Repository) SavePanelLink(ctx context.Context, link PanelLink) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO panel_links (account_id, remote_user_id, remote_username, remote_email, panel_url, password_ciphertext, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (account_id) DO UPDATE SET remote_user_id=$2, remote_username=$3, remote_email=$4, panel_url=$5, password_ciphertext=$6`,
		link.AccountID, link.RemoteUserID, link.RemoteUsername, link.RemoteEmail, link.PanelURL, link.PasswordCiphertext, link.CreatedAt)
	return err
}
