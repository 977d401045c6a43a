package auth

import "sync"

// MemoryStore implements Store in memory. Used in tests and as a scratch
// store for short-lived sessions.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (m *MemoryStore) Save(key string, data []byte) error {
	if key == "" {
		return ErrInvalidKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	blob := make([]byte, len(data))
	copy(blob, data)
	m.blobs[key] = blob
	return nil
}

func (m *MemoryStore) Load(key string) ([]byte, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob, ok := m.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(blob))
	copy(out, blob)
	return out, nil
}

func (m *MemoryStore) Remove(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[key]; !ok {
		return ErrNotFound
	}
	delete(m.blobs, key)
	return nil
}
