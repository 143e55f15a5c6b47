package db

import (
	"context"
	"sync"
)

type memoryStorage struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryStorage returns a process-local Storage.
func NewMemoryStorage() Storage {
	return &memoryStorage{entries: map[string]string{}}
}

func (m *memoryStorage) Read(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.entries[key]
	return value, ok, nil
}

func (m *memoryStorage) Write(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

func (m *memoryStorage) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *memoryStorage) Apply(_ context.Context, batch Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, value := range batch.Writes {
		m.entries[key] = value
	}
	for _, key := range batch.Removes {
		delete(m.entries, key)
	}
	return nil
}

func (m *memoryStorage) Close() error { return nil }
