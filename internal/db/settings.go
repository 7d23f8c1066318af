package db

import (
	"database/sql"
	"strconv"
	"time"

	"github.com/waymarkapp/core/internal/models"
)

// SetSetting upserts a key/value setting, stamping the modified time.
func (r *Repository) SetSetting(key, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
	INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	_, err := r.db.Exec(query, key, value, r.nowMillis())
	return err
}

// GetSetting returns the value for key. The second return is false when
// the key has never been set.
func (r *Repository) GetSetting(key string) (string, bool, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// IsConfigured reports whether both the server URL and API token settings
// are non-empty. Sync cycles are a no-op until configuration completes.
func (r *Repository) IsConfigured() (bool, error) {
	url, _, err := r.GetSetting(models.SettingServerURL)
	if err != nil {
		return false, err
	}
	token, _, err := r.GetSetting(models.SettingAPIToken)
	if err != nil {
		return false, err
	}
	return url != "" && token != "", nil
}

// IsTrackingEnabled reports the tracking-enabled flag; defaults to true
// when the setting was never written.
func (r *Repository) IsTrackingEnabled() (bool, error) {
	value, ok, err := r.GetSetting(models.SettingTrackingEnabled)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return true, nil
	}
	return enabled, nil
}

// SetLastSyncTime records the wall-clock time of the last completed sync
// cycle as Unix milliseconds.
func (r *Repository) SetLastSyncTime(t time.Time) error {
	return r.SetSetting(models.SettingLastSyncTime, strconv.FormatInt(t.UnixMilli(), 10))
}

// GetLastSyncTime returns the last sync time; the second return is false
// when no sync has completed yet.
func (r *Repository) GetLastSyncTime() (time.Time, bool, error) {
	value, ok, err := r.GetSetting(models.SettingLastSyncTime)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	millis, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(millis), true, nil
}
