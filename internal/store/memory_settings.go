package store

import "sync"

// MemorySettingsStore keeps settings in a map guarded by a mutex.
type MemorySettingsStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemorySettingsStore returns an empty settings store.
func NewMemorySettingsStore() *MemorySettingsStore {
	return &MemorySettingsStore{values: make(map[string]string)}
}

// Get returns the value stored under key.
func (m *MemorySettingsStore) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	return value, ok
}

// Put stores values under one lock.
func (m *MemorySettingsStore) Put(values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

// Len returns the number of stored settings.
func (m *MemorySettingsStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}

var _ SettingsStore = (*MemorySettingsStore)(nil)
