package account

import "time"

// Account is a storefront customer identity.
type Account struct {
	ID            int64
	Email         string
	Username      string
	PasswordHash  string
	OAuthProvider string
	OAuthSubject  string
	Currency      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PanelLink associates an account with at most one remote panel identity.
// The remote panel owns the account; this row is a cache that can go stale.
type PanelLink struct {
	AccountID          int64
	RemoteUserID       int64
	RemoteUsername     string
	RemoteEmail        string
	PanelURL           string
	PasswordCiphertext []byte
	CreatedAt          time.Time
}

// RegisterInput carries signup fields.
type RegisterInput struct {
	Email        string
	Username     string
	PasswordHash string
	Provider     string
	Subject      string
	Currency     string
}
