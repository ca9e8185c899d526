package store

import (
	"sort"
	"sync"
	"time"

	"github.com/leadbridge/leadbridge/internal/models"
)

// MemoryStore keeps credentials in process memory. Records are lost on restart.
type MemoryStore struct {
	mu          sync.RWMutex
	credentials map[string]*models.CredentialRecord
	settings    *MemorySettingsStore
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		credentials: make(map[string]*models.CredentialRecord),
		settings:    NewMemorySettingsStore(),
	}
}

// GetCredential returns a copy of the record stored for accountID.
func (s *MemoryStore) GetCredential(accountID string) (*models.CredentialRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.credentials[accountID]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// SetCredential stores a copy of rec, replacing any previous record.
func (s *MemoryStore) SetCredential(rec *models.CredentialRecord) error {
	if rec == nil {
		return nil
	}
	cp := rec.Clone()
	cp.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[cp.AccountID] = cp
	return nil
}

// DeleteCredential removes the record for accountID. Missing records are not an error.
func (s *MemoryStore) DeleteCredential(accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.credentials, accountID)
	return nil
}

// ListCredentials returns copies of all records ordered by account ID.
func (s *MemoryStore) ListCredentials() []*models.CredentialRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*models.CredentialRecord, 0, len(s.credentials))
	for _, rec := range s.credentials {
		result = append(result, rec.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AccountID < result[j].AccountID })
	return result
}

// Stats returns statistics about the store
func (s *MemoryStore) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return StoreStats{
		CredentialCount: len(s.credentials),
		SettingsCount:   s.settings.Len(),
	}
}

// Settings returns the settings store.
func (s *MemoryStore) Settings() SettingsStore {
	return s.settings
}

// Close implements Store Close (no-op for memory store).
func (s *MemoryStore) Close() error {
	return nil
}

// Ensure MemoryStore implements the Store interface
var _ Store = (*MemoryStore)(nil)
