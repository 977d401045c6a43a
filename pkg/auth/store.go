// Package auth persists opaque session blobs (serialized cookies) per
// account, with a keyring-first, encrypted-file-fallback strategy.
package auth

import "errors"

var (
	// ErrNotFound is returned by Load when no blob exists for the key.
	ErrNotFound = errors.New("auth: blob not found")

	// ErrInvalidKey is returned when the key is empty.
	ErrInvalidKey = errors.New("auth: invalid key")
)

// Store is the blob store boundary: an opaque key-value store keyed by
// account identifier.
type Store interface {
	Save(key string, data []byte) error
	Load(key string) ([]byte, error)
	Remove(key string) error
}

// Manager chains multiple stores: Save writes to the first store that
// accepts, Load reads from the first store that has the key.
type Manager struct {
	stores []Store
}

// NewManager creates a Manager over the given stores, tried in order.
func NewManager(stores ...Store) *Manager {
	return &Manager{stores: stores}
}

// DefaultManager builds the standard chain: system keyring when available,
// then an encrypted file store under dir.
func DefaultManager(dir string) (*Manager, error) {
	var stores []Store

	if ks, err := NewKeyringStore(); err == nil {
		stores = append(stores, ks)
	}

	fs, err := NewEncryptedFileStore(dir)
	if err != nil {
		return nil, err
	}
	stores = append(stores, fs)

	return NewManager(stores...), nil
}

// Save stores the blob in the first store that accepts it.
func (m *Manager) Save(key string, data []byte) error {
	if key == "" {
		return ErrInvalidKey
	}
	var lastErr error
	for _, s := range m.stores {
		if err := s.Save(key, data); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = errors.New("auth: no available store")
	}
	return lastErr
}

// Load returns the blob from the first store that has it.
func (m *Manager) Load(key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	for _, s := range m.stores {
		data, err := s.Load(key)
		if err == nil {
			return data, nil
		}
	}
	return nil, ErrNotFound
}

// Remove deletes the blob from every store that has it.
func (m *Manager) Remove(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	removed := false
	for _, s := range m.stores {
		if err := s.Remove(key); err == nil {
			removed = true
		}
	}
	if !removed {
		return ErrNotFound
	}
	return nil
}
