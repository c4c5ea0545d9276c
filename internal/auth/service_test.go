package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blockhaven/blockhaven/internal/account"
	"github.com/blockhaven/blockhaven/internal/shared"
)

type stubAccounts struct {
	byEmail   map[string]*account.Account
	byOAuth   map[string]*account.Account
	adopted   int
	adoptLink *account.PanelLink
	nextID    int64
}

func newStubAccounts() *stubAccounts {
	return &stubAccounts{
		byEmail: make(map[string]*account.Account),
		byOAuth: make(map[string]*account.Account),
	}
}

func (s *stubAccounts) Register(ctx context.Context, input account.RegisterInput) (*account.Account, error) {
	s.nextID++
	acct := &account.Account{
		ID:            s.nextID,
		Email:         input.Email,
		Username:      input.Username,
		PasswordHash:  input.PasswordHash,
		OAuthProvider: input.Provider,
		OAuthSubject:  input.Subject,
		Currency:      input.Currency,
	}
	s.byEmail[acct.Email] = acct
	if input.Provider != "" {
		s.byOAuth[input.Provider+"|"+input.Subject] = acct
	}
	return acct, nil
}

func (s *stubAccounts) FindByEmail(ctx context.Context, email string) (*account.Account, error) {
	if acct, ok := s.byEmail[email]; ok {
		return acct, nil
	}
	return nil, shared.ErrNotFound
}

func (s *stubAccounts) FindByOAuth(ctx context.Context, provider, subject string) (*account.Account, error) {
	if acct, ok := s.byOAuth[provider+"|"+subject]; ok {
		return acct, nil
	}
	return nil, shared.ErrNotFound
}

func (s *stubAccounts) AdoptPanelAccount(ctx context.Context, acct *account.Account) (*account.PanelLink, error) {
	s.adopted++
	if s.adoptLink != nil {
		return s.adoptLink, nil
	}
	return nil, shared.ErrNotFound
}

type stubWallets struct {
	opened map[int64]string
}

func (s *stubWallets) Open(ctx context.Context, accountID int64, currency string) error {
	if s.opened == nil {
		s.opened = make(map[int64]string)
	}
	s.opened[accountID] = currency
	return nil
}

type stubSessions struct {
	created []string
	deleted []string
}

func (s *stubSessions) CreateSession(ctx context.Context, id string, accountID int64, expiresAt time.Time, ip, ua string) error {
	s.created = append(s.created, id)
	return nil
}

func (s *stubSessions) DeleteSession(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	accounts := newStubAccounts()
	wallets := &stubWallets{}
	svc := NewService(accounts, wallets, &stubSessions{}, "USD")

	acct, err := svc.Register(ctx, "player@example.com", "player", "longenough")
	require.NoError(t, err)
	require.Equal(t, "USD", wallets.opened[acct.ID])

	got, err := svc.Authenticate(ctx, "player@example.com", "longenough")
	require.NoError(t, err)
	require.Equal(t, acct.ID, got.ID)

	_, err = svc.Authenticate(ctx, "player@example.com", "wrongpass")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	svc := NewService(newStubAccounts(), &stubWallets{}, &stubSessions{}, "USD")
	_, err := svc.Register(context.Background(), "a@example.com", "a", "short")
	require.Error(t, err)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newStubAccounts(), &stubWallets{}, &stubSessions{}, "USD")

	_, err := svc.Register(ctx, "dup@example.com", "one", "longenough")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "dup@example.com", "two", "longenough")
	require.Error(t, err)
	require.Contains(t, err.Error(), "already registered")
}

func TestOAuthSignInCreatesAccountAndAdoptsPanelLink(t *testing.T) {
	ctx := context.Background()
	accounts := newStubAccounts()
	accounts.adoptLink = &account.PanelLink{RemoteUserID: 42}
	wallets := &stubWallets{}
	svc := NewService(accounts, wallets, &stubSessions{}, "USD")

	identity := Identity{Provider: "discord", Subject: "123", Email: "gamer@example.com", Username: "gamer"}
	acct, err := svc.SignInWithOAuth(ctx, identity)
	require.NoError(t, err)
	require.Equal(t, "gamer@example.com", acct.Email)
	require.Equal(t, 1, accounts.adopted)
	require.Equal(t, "USD", wallets.opened[acct.ID])

	// Second sign-in resolves the same account without re-adoption.
	again, err := svc.SignInWithOAuth(ctx, identity)
	require.NoError(t, err)
	require.Equal(t, acct.ID, again.ID)
	require.Equal(t, 1, accounts.adopted)
}

func TestOAuthSignInRefusesPasswordAccountEmail(t *testing.T) {
	ctx := context.Background()
	accounts := newStubAccounts()
	svc := NewService(accounts, &stubWallets{}, &stubSessions{}, "USD")

	_, err := svc.Register(ctx, "mixed@example.com", "mixed", "longenough")
	require.NoError(t, err)

	_, err = svc.SignInWithOAuth(ctx, Identity{Provider: "google", Subject: "s", Email: "mixed@example.com", Username: "mixed"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "another method")
}

func TestOAuthAuthenticatedAccountHasNoUsablePassword(t *testing.T) {
	ctx := context.Background()
	accounts := newStubAccounts()
	svc := NewService(accounts, &stubWallets{}, &stubSessions{}, "USD")

	_, err := svc.SignInWithOAuth(ctx, Identity{Provider: "google", Subject: "x", Email: "oauth@example.com", Username: "oauth"})
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "oauth@example.com", "")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}
