package credentials

import (
	"context"
	"encoding/json"
	"maps"
	"sync"

	"github.com/kbukum/flowkit/errors"
	"github.com/kbukum/flowkit/provider"
)

// Resolver turns a connection reference into decrypted credentials. An empty
// reference resolves to empty credentials.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (provider.Credentials, error)
}

// Static serves plaintext credentials from memory.
type Static map[string]map[string]string

// Resolve implements Resolver.
func (s Static) Resolve(_ context.Context, ref string) (provider.Credentials, error) {
	if ref == "" {
		return provider.Credentials{}, nil
	}
	values, ok := s[ref]
	if !ok {
		return provider.Credentials{}, errors.MissingCredentials(ref)
	}
	return provider.NewCredentials(ref, values), nil
}

// Sealed serves credentials stored as ciphertexts produced by Seal.
type Sealed struct {
	aead *aead

	mu     sync.RWMutex
	sealed map[string]string
}

// NewSealed creates a resolver over ref → ciphertext entries.
func NewSealed(key string, sealed map[string]string) (*Sealed, error) {
	a, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	return &Sealed{aead: a, sealed: maps.Clone(sealed)}, nil
}

// Put adds or replaces one ciphertext.
func (s *Sealed) Put(ref, ciphertext string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sealed == nil {
		s.sealed = make(map[string]string)
	}
	s.sealed[ref] = ciphertext
}

// Resolve implements Resolver.
func (s *Sealed) Resolve(_ context.Context, ref string) (provider.Credentials, error) {
	if ref == "" {
		return provider.Credentials{}, nil
	}
	s.mu.RLock()
	ciphertext, ok := s.sealed[ref]
	s.mu.RUnlock()
	if !ok {
		return provider.Credentials{}, errors.MissingCredentials(ref)
	}

	plaintext, err := s.aead.open(ciphertext, []byte(ref))
	if err != nil {
		return provider.Credentials{}, errors.MissingCredentials(ref).
			WithDetail("reason", "ciphertext could not be opened")
	}
	var values map[string]string
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return provider.Credentials{}, errors.MissingCredentials(ref).
			WithDetail("reason", "decrypted value is not a string map")
	}
	return provider.NewCredentials(ref, values), nil
}

// Seal encrypts values for ref with key. The result is what NewSealed and
// Put expect.
func Seal(key, ref string, values map[string]string) (string, error) {
	a, err := newAEAD(key)
	if err != nil {
		return "", err
	}
	plaintext, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return a.seal(plaintext, []byte(ref))
}
