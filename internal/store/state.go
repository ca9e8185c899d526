package store

import (
	"context"
	"sync"
	"time"
)

// OAuthState is what the server remembers about an issued authorization
// request until the CRM redirects back.
type OAuthState struct {
	AccountID string    `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
}

// StateStore remembers issued OAuth state values for a limited time.
// ConsumeState returns (nil, nil) for unknown or expired states and removes
// the state so it cannot be replayed.
type StateStore interface {
	SaveState(ctx context.Context, state string, data OAuthState, ttl time.Duration) error
	ConsumeState(ctx context.Context, state string) (*OAuthState, error)
	Close() error
}

type stateEntry struct {
	data      OAuthState
	expiresAt time.Time
}

// MemoryStateStore keeps states in process memory. Expired entries are
// dropped lazily on access.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]stateEntry
	now    func() time.Time
}

// NewMemoryStateStore creates an empty in-memory state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{
		states: make(map[string]stateEntry),
		now:    time.Now,
	}
}

// SaveState records state until ttl elapses.
func (m *MemoryStateStore) SaveState(_ context.Context, state string, data OAuthState, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweepLocked(now)
	m.states[state] = stateEntry{data: data, expiresAt: now.Add(ttl)}
	return nil
}

// ConsumeState returns and removes state.
func (m *MemoryStateStore) ConsumeState(_ context.Context, state string) (*OAuthState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.states[state]
	if !ok {
		return nil, nil
	}
	delete(m.states, state)
	if !m.now().Before(entry.expiresAt) {
		return nil, nil
	}
	data := entry.data
	return &data, nil
}

func (m *MemoryStateStore) sweepLocked(now time.Time) {
	for key, entry := range m.states {
		if !now.Before(entry.expiresAt) {
			delete(m.states, key)
		}
	}
}

// Close implements StateStore.
func (m *MemoryStateStore) Close() error {
	return nil
}

var _ StateStore = (*MemoryStateStore)(nil)
