package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/blockhaven/blockhaven/internal/account"
	"github.com/blockhaven/blockhaven/internal/shared"
)

// PanelAccountCLI creates panel-linked accounts for operators. It writes
// through the same account service as the web flow, so the two paths share
// one source of truth. Accounts created here are not billed.
type PanelAccountCLI struct {
	accounts *account.Service
	wallets  WalletOpener
	currency string
}

// WalletOpener opens the wallet that every account carries.
type WalletOpener interface {
	Open(ctx context.Context, accountID int64, currency string) error
}

// NewPanelAccountCLI constructs the helper.
func NewPanelAccountCLI(accounts *account.Service, wallets WalletOpener, currency string) *PanelAccountCLI {
	return &PanelAccountCLI{accounts: accounts, wallets: wallets, currency: currency}
}

// Result reports what the command did.
type Result struct {
	AccountID    int64
	RemoteUserID int64
	Created      bool
}

// Create ensures a local account and its remote panel identity for the
// given email. An existing local account is reused; an existing remote
// panel user is adopted without a second create.
func (c *PanelAccountCLI) Create(ctx context.Context, email, username string) (*Result, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, errors.New("panel-account: a valid email is required")
	}
	if username == "" {
		username = strings.SplitN(email, "@", 2)[0]
	}

	result := &Result{}
	acct, err := c.accounts.FindByEmail(ctx, email)
	if errors.Is(err, shared.ErrNotFound) {
		acct, err = c.accounts.Register(ctx, account.RegisterInput{
			Email:    email,
			Username: username,
			Currency: c.currency,
		})
		if err != nil {
			return nil, fmt.Errorf("panel-account: register: %w", err)
		}
		if err := c.wallets.Open(ctx, acct.ID, c.currency); err != nil {
			return nil, fmt.Errorf("panel-account: open wallet: %w", err)
		}
		result.Created = true
	} else if err != nil {
		return nil, err
	}
	result.AccountID = acct.ID

	link, err := c.accounts.EnsurePanelAccount(ctx, acct)
	if err != nil {
		return nil, fmt.Errorf("panel-account: ensure panel user: %w", err)
	}
	result.RemoteUserID = link.RemoteUserID
	return result, nil
}
