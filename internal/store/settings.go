package store

import (
	"database/sql"
	"strconv"
	"time"
)

// SettingsStore keeps small operational facts next to the credentials.
// Put writes every value in one step, so readers never see half of a batch.
type SettingsStore interface {
	Get(key string) (string, bool)
	Put(values map[string]string) error
}

// Keys under which the last export batch is summarised.
const (
	SettingLastExportAt      = "export.last_at"
	SettingLastExportAccount = "export.last_account"
	SettingLastExportTotal   = "export.last_total"
	SettingLastExportFailed  = "export.last_failed"
)

// SettingConfigReloadedAt is written by the config watcher.
const SettingConfigReloadedAt = "config.reloaded_at"

// LastExport summarises the most recent export batch.
type LastExport struct {
	At        time.Time `json:"at"`
	AccountID string    `json:"accountId"`
	Total     int       `json:"total"`
	Failed    int       `json:"failed"`
}

// RecordLastExport replaces the stored export summary with e.
func RecordLastExport(s SettingsStore, e LastExport) error {
	return s.Put(map[string]string{
		SettingLastExportAt:      e.At.UTC().Format(time.RFC3339),
		SettingLastExportAccount: e.AccountID,
		SettingLastExportTotal:   strconv.Itoa(e.Total),
		SettingLastExportFailed:  strconv.Itoa(e.Failed),
	})
}

// ReadLastExport returns the stored export summary. ok is false until an
// export has been recorded or when the stored values are unreadable.
func ReadLastExport(s SettingsStore) (LastExport, bool) {
	var e LastExport
	at, ok := readTime(s, SettingLastExportAt)
	if !ok {
		return e, false
	}
	e.At = at
	e.AccountID, _ = s.Get(SettingLastExportAccount)

	var err error
	if e.Total, err = readInt(s, SettingLastExportTotal); err != nil {
		return LastExport{}, false
	}
	if e.Failed, err = readInt(s, SettingLastExportFailed); err != nil {
		return LastExport{}, false
	}
	return e, true
}

// RecordConfigReload stores the time of the latest successful reload.
func RecordConfigReload(s SettingsStore, at time.Time) error {
	return s.Put(map[string]string{SettingConfigReloadedAt: at.UTC().Format(time.RFC3339)})
}

// ConfigReloadedAt returns when the config file was last reloaded.
func ConfigReloadedAt(s SettingsStore) (time.Time, bool) {
	return readTime(s, SettingConfigReloadedAt)
}

func readTime(s SettingsStore, key string) (time.Time, bool) {
	v, ok := s.Get(key)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func readInt(s SettingsStore, key string) (int, error) {
	v, _ := s.Get(key)
	return strconv.Atoi(v)
}

// SQLiteSettingsStore keeps settings in the settings table created by the
// store migrations.
type SQLiteSettingsStore struct {
	db *sql.DB
}

// NewSQLiteSettingsStore wraps an already migrated database.
func NewSQLiteSettingsStore(db *sql.DB) *SQLiteSettingsStore {
	return &SQLiteSettingsStore{db: db}
}

// Get returns the value stored under key.
func (s *SQLiteSettingsStore) Get(key string) (string, bool) {
	var value string
	if err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value); err != nil {
		return "", false
	}
	return value, true
}

// Put upserts values in a single transaction.
func (s *SQLiteSettingsStore) Put(values map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	for key, value := range values {
		_, err := tx.Exec(`
			INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, value, now)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

var _ SettingsStore = (*SQLiteSettingsStore)(nil)
