package account

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"io"
)

// SecretBox encrypts generated panel passwords at rest with AES-256-GCM.
// A zero-value box (no key configured) refuses to seal, which keeps the
// provisioner from ever storing a credential in the clear.
type SecretBox struct {
	aead cipher.AEAD
}

// ErrNoSecretKey indicates the encryption key is not configured.
var ErrNoSecretKey = errors.New("account: panel secret key not configured")

// NewSecretBox builds a SecretBox from a 32-byte hex-encoded key. An empty
// key yields a disabled box.
func NewSecretBox(hexKey string) (*SecretBox, error) {
	if hexKey == "" {
		return &SecretBox{}, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, errors.New("account: panel secret key must be hex encoded")
	}
	if len(key) != 32 {
		return nil, errors.New("account: panel secret key must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &SecretBox{aead: aead}, nil
}

// Enabled reports whether sealing is possible.
func (b *SecretBox) Enabled() bool {
	return b != nil && b.aead != nil
}

// Seal encrypts the plaintext, prefixing the nonce.
func (b *SecretBox) Seal(plaintext string) ([]byte, error) {
	if !b.Enabled() {
		return nil, ErrNoSecretKey
	}
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return b.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Open decrypts a sealed credential.
func (b *SecretBox) Open(ciphertext []byte) (string, error) {
	if !b.Enabled() {
		return "", ErrNoSecretKey
	}
	if len(ciphertext) < b.aead.NonceSize() {
		return "", errors.New("account: ciphertext too short")
	}
	nonce, sealed := ciphertext[:b.aead.NonceSize()], ciphertext[b.aead.NonceSize():]
	plain, err := b.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
