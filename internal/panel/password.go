package panel

import (
	"crypto/rand"
	"math/big"
)

const (
	passwordLength  = 12
	passwordCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!@#$%&*"
)

// GeneratePassword returns a fixed-length random password for new panel
// accounts, drawn from an alphanumeric+symbol set.
func GeneratePassword() (string, error) {
	max := big.NewInt(int64(len(passwordCharset)))
	out := make([]byte, passwordLength)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = passwordCharset[n.Int64()]
	}
	return string(out), nil
}
