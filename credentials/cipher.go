package credentials

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// aead wraps ChaCha20-Poly1305 with a key derived from a passphrase.
type aead struct {
	c cipher.AEAD
}

// newAEAD hashes key with SHA-256 to obtain the 32-byte cipher key.
func newAEAD(key string) (*aead, error) {
	if key == "" {
		return nil, fmt.Errorf("credentials: empty encryption key")
	}
	sum := sha256.Sum256([]byte(key))
	c, err := chacha20poly1305.New(sum[:])
	if err != nil {
		return nil, fmt.Errorf("create chacha20: %w", err)
	}
	return &aead{c: c}, nil
}

// seal encrypts plaintext bound to ad and returns base64(nonce || ciphertext).
func (a *aead) seal(plaintext, ad []byte) (string, error) {
	nonce := make([]byte, a.c.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := a.c.Seal(nonce, nonce, plaintext, ad)
	return base64.StdEncoding.EncodeToString(out), nil
}

// open reverses seal. Errors never include plaintext.
func (a *aead) open(sealed string, ad []byte) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	n := a.c.NonceSize()
	if len(data) < n {
		return nil, fmt.Errorf("ciphertext too short")
	}
	plaintext, err := a.c.Open(nil, data[:n], data[n:], ad)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}
