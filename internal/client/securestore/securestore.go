// Package securestore keeps small secrets, such as session tokens, sealed at
// rest inside the local metadata table.
package securestore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/marketkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/marketkeeper/internal/common"
	"github.com/dmitrijs2005/marketkeeper/internal/cryptox"
)

const (
	saltKey    = "securestore.salt"
	saltSize   = 16
	itemPrefix = "secure."
)

// ErrTampered is returned when a stored value cannot be opened with the
// current key.
var ErrTampered = errors.New("protected value cannot be decrypted")

// Store is a string key/value store for secrets.
type Store interface {
	// Get reports ok=false for a missing key.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Sealed encrypts every value with a key derived from a device secret and a
// per-database salt.
type Sealed struct {
	meta metadata.Repository
	key  []byte
}

// NewSealed loads the salt from meta, creating it on first use, and derives
// the sealing key from secret.
func NewSealed(ctx context.Context, meta metadata.Repository, secret []byte) (*Sealed, error) {
	salt, err := meta.Get(ctx, saltKey)
	if err != nil {
		return nil, fmt.Errorf("load salt: %w", err)
	}
	if len(salt) == 0 {
		salt = common.GenerateRandByteArray(saltSize)
		if err := meta.Set(ctx, saltKey, salt); err != nil {
			return nil, fmt.Errorf("store salt: %w", err)
		}
	}
	return &Sealed{meta: meta, key: cryptox.DeriveKey(secret, salt)}, nil
}

func (s *Sealed) Get(ctx context.Context, key string) (string, bool, error) {
	blob, err := s.meta.Get(ctx, itemPrefix+key)
	if err != nil {
		return "", false, err
	}
	if blob == nil {
		return "", false, nil
	}
	plain, err := cryptox.Open(s.key, blob, []byte(key))
	if err != nil {
		return "", false, fmt.Errorf("%w: %s: %w", ErrTampered, key, err)
	}
	return string(plain), true, nil
}

func (s *Sealed) Set(ctx context.Context, key, value string) error {
	blob, err := cryptox.Seal(s.key, []byte(value), []byte(key))
	if err != nil {
		return fmt.Errorf("seal %s: %w", key, err)
	}
	return s.meta.Set(ctx, itemPrefix+key, blob)
}

func (s *Sealed) Delete(ctx context.Context, key string) error {
	return s.meta.Delete(ctx, itemPrefix+key)
}

// Close wipes the derived key.
func (s *Sealed) Close() {
	common.WipeByteArray(s.key)
}

// Memory is an unprotected in-process Store for tests and ephemeral runs.
type Memory struct {
	mu   sync.Mutex
	data map[string]string
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
