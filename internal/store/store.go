package store

import "github.com/leadbridge/leadbridge/internal/models"

// Store keeps one credential record per CRM account.
// Implementations hand out copies: callers never share a record with the store.
type Store interface {
	GetCredential(accountID string) (*models.CredentialRecord, bool)
	SetCredential(rec *models.CredentialRecord) error
	DeleteCredential(accountID string) error
	ListCredentials() []*models.CredentialRecord

	Settings() SettingsStore
	Stats() StoreStats
	Close() error
}

// StoreStats contains statistics about the store
type StoreStats struct {
	CredentialCount int
	SettingsCount   int
}
