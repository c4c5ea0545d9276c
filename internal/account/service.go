package account

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/blockhaven/blockhaven/internal/panel"
	"github.com/blockhaven/blockhaven/internal/shared"
)

// RepositoryPort defines data access methods for accounts.
type RepositoryPort interface {
	Create(ctx context.Context, input RegisterInput) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id int64) (*Account, error)
	FindByOAuth(ctx context.Context, provider, subject string) (*Account, error)
	PanelLink(ctx context.Context, accountID int64) (*PanelLink, error)
	SavePanelLink(ctx context.Context, link PanelLink) error
}

// PanelPort is the slice of the panel client the provisioner needs.
type PanelPort interface {
	Configured() bool
	CreateUser(ctx context.Context, input panel.CreateUserInput) (*panel.User, error)
	FindUserByEmail(ctx context.Context, email string) (*panel.User, error)
}

// Service handles account business logic, including the panel account
// provisioner.
type Service struct {
	repo     RepositoryPort
	panel    PanelPort
	box      *SecretBox
	panelURL string
	logger   *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, panelClient PanelPort, box *SecretBox, panelURL string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, panel: panelClient, box: box, panelURL: panelURL, logger: logger}
}

// Register creates a local account.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*Account, error) {
	if input.Email == "" {
		return nil, errors.New("email required")
	}
	if input.Username == "" {
		return nil, errors.New("username required")
	}
	if input.Currency == "" {
		input.Currency = "USD"
	}
	return s.repo.Create(ctx, input)
}

// Get fetches an account by id.
func (s *Service) Get(ctx context.Context, id int64) (*Account, error) {
	return s.repo.FindByID(ctx, id)
}

// FindByEmail fetches an account by email.
func (s *Service) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return s.repo.FindByEmail(ctx, email)
}

// FindByOAuth fetches an account by OAuth identity.
func (s *Service) FindByOAuth(ctx context.Context, provider, subject string) (*Account, error) {
	return s.repo.FindByOAuth(ctx, provider, subject)
}

// PanelLink returns the account's panel link if one exists.
func (s *Service) PanelLink(ctx context.Context, accountID int64) (*PanelLink, error) {
	return s.repo.PanelLink(ctx, accountID)
}

// EnsurePanelAccount makes sure a remote panel user exists for the account
// and returns the cached link. The call is idempotent: an existing link is
// returned as-is, and a remote user already known under the account's email
// is adopted without a second create call.
func (s *Service) EnsurePanelAccount(ctx context.Context, acct *Account) (*PanelLink, error) {
	if acct == nil {
		return nil, errors.New("account required")
	}

	if link, err := s.repo.PanelLink(ctx, acct.ID); err == nil {
		return link, nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	if s.panel == nil || !s.panel.Configured() {
		return nil, panel.ErrUnavailable
	}

	if existing, err := s.panel.FindUserByEmail(ctx, acct.Email); err == nil {
		link := PanelLink{
			AccountID:      acct.ID,
			RemoteUserID:   existing.ID,
			RemoteUsername: existing.Username,
			RemoteEmail:    existing.Email,
			PanelURL:       s.panelURL,
			CreatedAt:      time.Now().UTC(),
		}
		if err := s.repo.SavePanelLink(ctx, link); err != nil {
			return nil, err
		}
		return &link, nil
	} else if !errors.Is(err, panel.ErrNotFound) {
		return nil, err
	}

	password, err := panel.GeneratePassword()
	if err != nil {
		return nil, err
	}

	remote, err := s.panel.CreateUser(ctx, panel.CreateUserInput{
		Email:     acct.Email,
		Username:  acct.Username,
		FirstName: acct.Username,
		LastName:  "User",
		Password:  password,
	})
	if err != nil {
		// A duplicate reported by the remote is non-fatal: adopt the
		// existing user instead.
		var apiErr *panel.APIError
		if errors.As(err, &apiErr) && strings.Contains(apiErr.Detail, "already been taken") {
			s.logger.Warn("panel user already exists, adopting", slog.String("email", acct.Email))
			existing, lookupErr := s.panel.FindUserByEmail(ctx, acct.Email)
			if lookupErr != nil {
				return nil, err
			}
			remote = existing
			password = ""
		} else {
			return nil, err
		}
	}

	link := PanelLink{
		AccountID:      acct.ID,
		RemoteUserID:   remote.ID,
		RemoteUsername: remote.Username,
		RemoteEmail:    remote.Email,
		PanelURL:       s.panelURL,
		CreatedAt:      time.Now().UTC(),
	}
	if password != "" && s.box.Enabled() {
		sealed, sealErr := s.box.Seal(password)
		if sealErr != nil {
			return nil, sealErr
		}
		link.PasswordCiphertext = sealed
	}
	if err := s.repo.SavePanelLink(ctx, link); err != nil {
		return nil, err
	}
	return &link, nil
}

// AdoptPanelAccount links an existing remote panel user discovered by email
// lookup. Unlike EnsurePanelAccount it never creates a remote user: a miss
// simply returns shared.ErrNotFound. Used on first OAuth sign-in.
func (s *Service) AdoptPanelAccount(ctx context.Context, acct *Account) (*PanelLink, error) {
	if acct == nil {
		return nil, errors.New("account required")
	}
	if link, err := s.repo.PanelLink(ctx, acct.ID); err == nil {
		return link, nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	if s.panel == nil || !s.panel.Configured() {
		return nil, panel.ErrUnavailable
	}
	existing, err := s.panel.FindUserByEmail(ctx, acct.Email)
	if err != nil {
		if errors.Is(err, panel.ErrNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	link := PanelLink{
		AccountID:      acct.ID,
		RemoteUserID:   existing.ID,
		RemoteUsername: existing.Username,
		RemoteEmail:    existing.Email,
		PanelURL:       s.panelURL,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.repo.SavePanelLink(ctx, link); err != nil {
		return nil, err
	}
	return &link, nil
}

// RevealPanelPassword decrypts the generated panel password for display.
func (s *Service) RevealPanelPassword(ctx context.Context, accountID int64) (string, error) {
	link, err := s.repo.PanelLink(ctx, accountID)
	if err != nil {
		return "", err
	}
	if len(link.PasswordCiphertext) == 0 {
		return "", shared.ErrNotFound
	}
	return s.box.Open(link.PasswordCiphertext)
}
