package auth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/blockhaven/blockhaven/internal/account"
	"github.com/blockhaven/blockhaven/internal/shared"
)

// AccountPort is the slice of the account service auth depends on.
type AccountPort interface {
	Register(ctx context.Context, input account.RegisterInput) (*account.Account, error)
	FindByEmail(ctx context.Context, email string) (*account.Account, error)
	FindByOAuth(ctx context.Context, provider, subject string) (*account.Account, error)
	AdoptPanelAccount(ctx context.Context, acct *account.Account) (*account.PanelLink, error)
}

// WalletPort opens a wallet for freshly registered accounts.
type WalletPort interface {
	Open(ctx context.Context, accountID int64, currency string) error
}

// Service wraps authentication business rules.
type Service struct {
	accounts AccountPort
	wallets  WalletPort
	repo     Repository
	currency string
}

// NewService constructs a new Service.
func NewService(accounts AccountPort, wallets WalletPort, repo Repository, currency string) *Service {
	return &Service{accounts: accounts, wallets: wallets, repo: repo, currency: currency}
}

// Register creates a password-based account with a fresh wallet.
func (s *Service) Register(ctx context.Context, email, username, password string) (*account.Account, error) {
	if len(password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}
	if _, err := s.accounts.FindByEmail(ctx, email); err == nil {
		return nil, errors.New("email already registered")
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	acct, err := s.accounts.Register(ctx, account.RegisterInput{
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		Currency:     s.currency,
	})
	if err != nil {
		return nil, err
	}
	if err := s.wallets.Open(ctx, acct.ID, acct.Currency); err != nil {
		return nil, err
	}
	return acct, nil
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*account.Account, error) {
	acct, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if acct.PasswordHash == "" {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return acct, nil
}

// SignInWithOAuth finds or creates an account for a verified OAuth identity.
// On first sign-in the panel is consulted by email: a known remote user is
// linked without creating a second remote account.
func (s *Service) SignInWithOAuth(ctx context.Context, identity Identity) (*account.Account, error) {
	if identity.Provider == "" || identity.Subject == "" {
		return nil, errors.New("oauth identity incomplete")
	}
	if acct, err := s.accounts.FindByOAuth(ctx, identity.Provider, identity.Subject); err == nil {
		return acct, nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	if _, err := s.accounts.FindByEmail(ctx, identity.Email); err == nil {
		// Same email already registered with a password; do not silently
		// merge identities.
		return nil, errors.New("email already registered with another method")
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	acct, err := s.accounts.Register(ctx, account.RegisterInput{
		Email:    identity.Email,
		Username: identity.Username,
		Provider: identity.Provider,
		Subject:  identity.Subject,
		Currency: s.currency,
	})
	if err != nil {
		return nil, err
	}
	if err := s.wallets.Open(ctx, acct.ID, acct.Currency); err != nil {
		return nil, err
	}
	// Best effort: pre-populate the panel link when the remote already
	// knows this email. A miss or panel outage is not an error here.
	if _, err := s.accounts.AdoptPanelAccount(ctx, acct); err != nil && !errors.Is(err, shared.ErrNotFound) {
		return acct, nil
	}
	return acct, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, accountID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, accountID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}
