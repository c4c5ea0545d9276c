package shared

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/google/uuid"
)

// NewStateToken returns a random URL-safe token, used to bind OAuth
// authorization-code round trips to the initiating session.
func NewStateToken() string {
	if id, err := uuid.NewRandom(); err == nil {
		return id.String()
	}
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return uuid.NewString()
	}
	return base64.RawURLEncoding.EncodeToString(b)
}
