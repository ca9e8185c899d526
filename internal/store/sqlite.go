package store

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/leadbridge/leadbridge/internal/errors"
	"github.com/leadbridge/leadbridge/internal/logging"
	"github.com/leadbridge/leadbridge/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists credentials in a SQLite database with WAL mode, so
// that a restarted server or a CLI invocation sees the same authorization.
type SQLiteStore struct {
	mu       sync.RWMutex
	db       *sql.DB
	logger   *logging.Logger
	settings *SQLiteSettingsStore
}

// NewSQLiteStore opens (or creates) the database at dbPath and migrates it.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, &errors.ErrDirectoryCreate{Path: dir, Err: err}
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{
		db:       db,
		logger:   logging.NewLogger(),
		settings: NewSQLiteSettingsStore(db),
	}, nil
}

// runMigrations runs database migrations
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "create migrations table", Err: err}
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "get current migration version", Err: err}
	}

	migrations := []struct {
		version int
		up      string
	}{
		{
			version: 1,
			up: `
				CREATE TABLE IF NOT EXISTS credentials (
					account_id TEXT PRIMARY KEY,
					data TEXT NOT NULL,
					expires_at INTEGER NOT NULL,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
		{
			version: 2,
			up: `
				CREATE INDEX IF NOT EXISTS idx_credentials_expires_at ON credentials(expires_at);
			`,
		},
		{
			version: 3,
			up: `
				CREATE TABLE IF NOT EXISTS settings (
					key TEXT PRIMARY KEY,
					value TEXT NOT NULL,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
	}

	tx, err := db.Begin()
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "begin transaction", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, m := range migrations {
		if m.version > currentVersion {
			if _, err := tx.Exec(m.up); err != nil {
				return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
			}
			if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
				return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "commit migrations", Err: err}
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Settings returns the settings store.
func (s *SQLiteStore) Settings() SettingsStore {
	return s.settings
}

// GetCredential retrieves the record for accountID. Read failures are
// logged and reported as a missing record.
func (s *SQLiteStore) GetCredential(accountID string) (*models.CredentialRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	var updatedAt time.Time
	err := s.db.QueryRow(`
		SELECT data, updated_at FROM credentials WHERE account_id = ?
	`, accountID).Scan(&data, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		s.logger.Error("failed to read credential", "account_id", accountID, "error", err.Error())
		return nil, false
	}

	var rec models.CredentialRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		s.logger.Error("failed to decode credential", "account_id", accountID, "error", err.Error())
		return nil, false
	}
	rec.AccountID = accountID
	rec.UpdatedAt = updatedAt
	return &rec, true
}

// SetCredential upserts rec.
func (s *SQLiteStore) SetCredential(rec *models.CredentialRecord) error {
	if rec == nil {
		return nil
	}
	cp := rec.Clone()
	cp.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT INTO credentials (account_id, data, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			data = excluded.data,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, cp.AccountID, string(data), cp.ExpiresAt, cp.UpdatedAt)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "upsert credential", Err: err}
	}
	return nil
}

// DeleteCredential removes the record for accountID.
func (s *SQLiteStore) DeleteCredential(accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM credentials WHERE account_id = ?`, accountID); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "delete credential", Err: err}
	}
	return nil
}

// ListCredentials returns all stored records ordered by account ID.
func (s *SQLiteStore) ListCredentials() []*models.CredentialRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT account_id, data, updated_at FROM credentials ORDER BY account_id`)
	if err != nil {
		s.logger.Error("failed to list credentials", "error", err.Error())
		return nil
	}
	defer rows.Close()

	var result []*models.CredentialRecord
	for rows.Next() {
		var accountID, data string
		var updatedAt time.Time
		if err := rows.Scan(&accountID, &data, &updatedAt); err != nil {
			continue
		}
		var rec models.CredentialRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			continue
		}
		rec.AccountID = accountID
		rec.UpdatedAt = updatedAt
		result = append(result, &rec)
	}
	return result
}

// Stats returns statistics about the store
func (s *SQLiteStore) Stats() StoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats StoreStats
	_ = s.db.QueryRow("SELECT COUNT(*) FROM credentials").Scan(&stats.CredentialCount)
	_ = s.db.QueryRow("SELECT COUNT(*) FROM settings").Scan(&stats.SettingsCount)
	return stats
}

var _ Store = (*SQLiteStore)(nil)
