package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zalando/go-keyring"
)

// indexAccount lists every key written, since the OS keyring cannot enumerate
const indexAccount = "__index__"

// KeyringStore keeps credentials in the OS secret service (Keychain,
// Keystore, Secret Service, Credential Manager).
type KeyringStore struct {
	service string
	mu      sync.Mutex
}

// NewKeyringStore creates a store scoped to one keyring service name
func NewKeyringStore(service string) *KeyringStore {
	return &KeyringStore{service: service}
}

func (s *KeyringStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := keyring.Set(s.service, key, value); err != nil {
		return fmt.Errorf("keyring set %s: %w", key, err)
	}

	keys, err := s.loadIndex()
	if err != nil {
		return err
	}
	keys[key] = struct{}{}
	return s.saveIndex(keys)
}

func (s *KeyringStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	value, err := keyring.Get(s.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("keyring get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *KeyringStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := keyring.Delete(s.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete %s: %w", key, err)
	}

	keys, err := s.loadIndex()
	if err != nil {
		return err
	}
	delete(keys, key)
	return s.saveIndex(keys)
}

func (s *KeyringStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.loadIndex()
	if err != nil {
		return err
	}
	for key := range keys {
		if err := keyring.Delete(s.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("keyring delete %s: %w", key, err)
		}
	}
	if err := keyring.Delete(s.service, indexAccount); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keyring delete index: %w", err)
	}
	return nil
}

func (s *KeyringStore) loadIndex() (map[string]struct{}, error) {
	keys := make(map[string]struct{})
	raw, err := keyring.Get(s.service, indexAccount)
	if errors.Is(err, keyring.ErrNotFound) {
		return keys, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keyring read index: %w", err)
	}

	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, fmt.Errorf("keyring index is corrupt: %w", err)
	}
	for _, name := range names {
		keys[name] = struct{}{}
	}
	return keys, nil
}

func (s *KeyringStore) saveIndex(keys map[string]struct{}) error {
	names := make([]string, 0, len(keys))
	for name := range keys {
		names = append(names, name)
	}
	sort.Strings(names)

	raw, err := json.Marshal(names)
	if err != nil {
		return err
	}
	if err := keyring.Set(s.service, indexAccount, string(raw)); err != nil {
		return fmt.Errorf("keyring write index: %w", err)
	}
	return nil
}
