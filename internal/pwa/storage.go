package pwa

import (
	"context"
	"sync"
)

// DismissalKey is the storage key recording that the user declined the
// install offer. The value is "true" or absent and never expires.
const DismissalKey = "pwa-install-dismissed"

// MemoryStorage is a process-local Storage. Contents are lost on restart.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]string)}
}

func (m *MemoryStorage) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStorage) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}
