package models

import "time"

// Well-known setting keys.
const (
	SettingServerURL       = "server_url"
	SettingAPIToken        = "api_token"
	SettingLastSyncTime    = "last_sync_time"
	SettingTrackingEnabled = "tracking_enabled"
)

// Setting represents a key/value scalar state entry.
type Setting struct {
	Key       string `db:"key" json:"key"`
	Value     string `db:"value" json:"value"`
	UpdatedAt int64  `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for Setting.
func (Setting) TableName() string {
	return "settings"
}

// UpdatedAtTime returns the UpdatedAt as time.Time.
func (s *Setting) UpdatedAtTime() time.Time {
	return time.UnixMilli(s.UpdatedAt)
}
