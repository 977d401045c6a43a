package auth

import (
	"encoding/base64"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "instascrape"
	keyringPrefix  = "session_"
)

// KeyringStore implements Store using the system keychain.
type KeyringStore struct{}

// NewKeyringStore creates a keyring-backed store. It probes the keyring
// first so an unavailable backend fails here rather than on first use.
func NewKeyringStore() (*KeyringStore, error) {
	const probe = "availability_probe"
	if err := keyring.Set(keyringService, probe, "ok"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, probe)
	return &KeyringStore{}, nil
}

// Save stores the blob in the system keychain. Secrets are strings in the
// keyring API, so blobs are base64 encoded.
func (k *KeyringStore) Save(key string, data []byte) error {
	if key == "" {
		return ErrInvalidKey
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	if err := keyring.Set(keyringService, keyringPrefix+key, encoded); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return nil
}

// Load retrieves a blob from the system keychain.
func (k *KeyringStore) Load(key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	encoded, err := keyring.Get(keyringService, keyringPrefix+key)
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("corrupt keyring entry: %w", err)
	}
	return data, nil
}

// Remove deletes a blob from the system keychain.
func (k *KeyringStore) Remove(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if err := keyring.Delete(keyringService, keyringPrefix+key); err != nil {
		if err == keyring.ErrNotFound {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}
