package account

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blockhaven/blockhaven/internal/panel"
	"github.com/blockhaven/blockhaven/internal/shared"
)

type memoryAccountRepo struct {
	accounts map[int64]*Account
	links    map[int64]*PanelLink
	nextID   int64
}

func newMemoryAccountRepo() *memoryAccountRepo {
	return &memoryAccountRepo{
		accounts: make(map[int64]*Account),
		links:    make(map[int64]*PanelLink),
	}
}

func (r *memoryAccountRepo) Create(ctx context.Context, input RegisterInput) (*Account, error) {
	r.nextID++
	a := &Account{
		ID:            r.nextID,
		Email:         input.Email,
		Username:      input.Username,
		PasswordHash:  input.PasswordHash,
		OAuthProvider: input.Provider,
		OAuthSubject:  input.Subject,
		Currency:      input.Currency,
	}
	r.accounts[a.ID] = a
	return a, nil
}

func (r *memoryAccountRepo) FindByEmail(ctx context.Context, email string) (*Account, error) {
	for _, a := range r.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryAccountRepo) FindByID(ctx context.Context, id int64) (*Account, error) {
	a, ok := r.accounts[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return a, nil
}

func (r *memoryAccountRepo) FindByOAuth(ctx context.Context, provider, subject string) (*Account, error) {
	for _, a := range r.accounts {
		if a.OAuthProvider == provider && a.OAuthSubject == subject {
			return a, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryAccountRepo) PanelLink(ctx context.Context, accountID int64) (*PanelLink, error) {
	link, ok := r.links[accountID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return link, nil
}

func (r *memoryAccountRepo) SavePanelLink(ctx context.Context, link PanelLink) error {
	r.links[link.AccountID] = &link
	return nil
}

type fakePanel struct {
	configured  bool
	users       map[string]*panel.User
	createCalls int
	createErr   error
	nextID      int64
	// hideLookups makes the first N email lookups miss, simulating a user
	// that appears between lookup and create.
	hideLookups int
}

func newFakePanel() *fakePanel {
	return &fakePanel{configured: true, users: make(map[string]*panel.User)}
}

func (f *fakePanel) Configured() bool { return f.configured }

func (f *fakePanel) CreateUser(ctx context.Context, input panel.CreateUserInput) (*panel.User, error) {
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	u := &panel.User{ID: f.nextID, Username: input.Username, Email: input.Email}
	f.users[input.Email] = u
	return u, nil
}

func (f *fakePanel) FindUserByEmail(ctx context.Context, email string) (*panel.User, error) {
	if f.hideLookups > 0 {
		f.hideLookups--
		return nil, panel.ErrNotFound
	}
	if u, ok := f.users[email]; ok {
		return u, nil
	}
	return nil, panel.ErrNotFound
}

func testBox(t *testing.T) *SecretBox {
	t.Helper()
	box, err := NewSecretBox(hex.EncodeToString(make([]byte, 32)))
	require.NoError(t, err)
	return box
}

func TestEnsurePanelAccountCreatesRemoteUser(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryAccountRepo()
	remote := newFakePanel()
	svc := NewService(repo, remote, testBox(t), "https://panel.example.com", nil)

	acct, err := svc.Register(ctx, RegisterInput{Email: "new@example.com", Username: "newbie"})
	require.NoError(t, err)

	link, err := svc.EnsurePanelAccount(ctx, acct)
	require.NoError(t, err)
	require.Equal(t, 1, remote.createCalls)
	require.Equal(t, "newbie", link.RemoteUsername)
	require.NotEmpty(t, link.PasswordCiphertext)

	// Second call returns the cached link without touching the panel.
	again, err := svc.EnsurePanelAccount(ctx, acct)
	require.NoError(t, err)
	require.Equal(t, 1, remote.createCalls)
	require.Equal(t, link.RemoteUserID, again.RemoteUserID)
}

func TestEnsurePanelAccountAdoptsExistingRemoteUser(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryAccountRepo()
	remote := newFakePanel()
	remote.users["known@example.com"] = &panel.User{ID: 99, Username: "known", Email: "known@example.com"}
	svc := NewService(repo, remote, testBox(t), "https://panel.example.com", nil)

	acct, err := svc.Register(ctx, RegisterInput{Email: "known@example.com", Username: "known"})
	require.NoError(t, err)

	link, err := svc.EnsurePanelAccount(ctx, acct)
	require.NoError(t, err)
	require.Zero(t, remote.createCalls, "must not create a second remote account")
	require.Equal(t, int64(99), link.RemoteUserID)
	require.Empty(t, link.PasswordCiphertext)
}

func TestEnsurePanelAccountDuplicateIsNonFatal(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryAccountRepo()
	remote := newFakePanel()
	remote.createErr = &panel.APIError{Status: 422, Code: "ValidationException", Detail: "The email has already been taken."}
	svc := NewService(repo, remote, testBox(t), "https://panel.example.com", nil)

	acct, err := svc.Register(ctx, RegisterInput{Email: "racer@example.com", Username: "racer"})
	require.NoError(t, err)

	// The user appears between our lookup and the create call, so the
	// remote reports a duplicate. The provisioner must adopt it.
	remote.users["racer@example.com"] = &panel.User{ID: 7, Username: "racer", Email: "racer@example.com"}
	remote.hideLookups = 1

	link, err := svc.EnsurePanelAccount(ctx, acct)
	require.NoError(t, err)
	require.Equal(t, 1, remote.createCalls)
	require.Equal(t, int64(7), link.RemoteUserID)
}

func TestEnsurePanelAccountUnconfigured(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryAccountRepo()
	remote := newFakePanel()
	remote.configured = false
	svc := NewService(repo, remote, testBox(t), "", nil)

	acct, err := svc.Register(ctx, RegisterInput{Email: "x@example.com", Username: "x"})
	require.NoError(t, err)

	_, err = svc.EnsurePanelAccount(ctx, acct)
	require.ErrorIs(t, err, panel.ErrUnavailable)
}

func TestRevealPanelPassword(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryAccountRepo()
	remote := newFakePanel()
	box := testBox(t)
	svc := NewService(repo, remote, box, "https://panel.example.com", nil)

	acct, err := svc.Register(ctx, RegisterInput{Email: "r@example.com", Username: "reveal"})
	require.NoError(t, err)
	_, err = svc.EnsurePanelAccount(ctx, acct)
	require.NoError(t, err)

	password, err := svc.RevealPanelPassword(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, password, 12)
}

func TestSecretBoxRoundTrip(t *testing.T) {
	box := testBox(t)
	sealed, err := box.Seal("hunter2hunter")
	require.NoError(t, err)
	plain, err := box.Open(sealed)
	require.NoError(t, err)
	require.Equal(t, "hunter2hunter", plain)

	disabled, err := NewSecretBox("")
	require.NoError(t, err)
	_, err = disabled.Seal("x")
	require.ErrorIs(t, err, ErrNoSecretKey)
}
