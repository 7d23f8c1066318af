// Package models provides data model definitions for Waymark Core.
package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// UUID is a wrapper around string for UUID v4 type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	if value == nil {
		*u = ""
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*u = UUID(v)
	case string:
		*u = UUID(v)
	default:
		return fmt.Errorf("cannot scan %T into UUID", value)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// SyncStatus represents the upload state of a queued location.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSyncing SyncStatus = "syncing"
	SyncStatusSynced  SyncStatus = "synced"
)

// QueuedLocation represents one GPS fix awaiting upload.
//
// A rejected location is always also Synced: rejection is a terminal "done"
// state distinct from success, signaled only via the Rejected flag. The
// attempt counter never gates pending-ness; a Pending location is retried
// indefinitely until the purge policy removes it.
type QueuedLocation struct {
	ID              int64      `db:"id" json:"id"`
	Latitude        float64    `db:"latitude" json:"latitude"`
	Longitude       float64    `db:"longitude" json:"longitude"`
	Altitude        *float64   `db:"altitude" json:"altitude,omitempty"`
	Accuracy        *float64   `db:"accuracy" json:"accuracy,omitempty"`
	Speed           *float64   `db:"speed" json:"speed,omitempty"`
	Bearing         *float64   `db:"bearing" json:"bearing,omitempty"`
	Timestamp       int64      `db:"timestamp" json:"timestamp"` // Unix millis, client clock
	Provider        string     `db:"provider" json:"provider"`
	CreatedAt       int64      `db:"created_at" json:"created_at"`
	Status          SyncStatus `db:"status" json:"status"`
	Attempts        int        `db:"attempts" json:"attempts"`
	LastAttemptAt   int64      `db:"last_attempt_at" json:"last_attempt_at"` // 0 = never attempted
	LastError       string     `db:"last_error" json:"last_error,omitempty"`
	Rejected        bool       `db:"rejected" json:"rejected"`
	RejectionReason string     `db:"rejection_reason" json:"rejection_reason,omitempty"`
}

// TableName returns the table name for QueuedLocation.
func (QueuedLocation) TableName() string {
	return "queued_locations"
}

// Validate checks coordinate range invariants.
func (l *QueuedLocation) Validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("latitude out of range: %v", l.Latitude)
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("longitude out of range: %v", l.Longitude)
	}
	return nil
}

// TimestampTime returns the fix timestamp as time.Time.
func (l *QueuedLocation) TimestampTime() time.Time {
	return time.UnixMilli(l.Timestamp)
}

// CreatedAtTime returns the CreatedAt as time.Time.
func (l *QueuedLocation) CreatedAtTime() time.Time {
	return time.UnixMilli(l.CreatedAt)
}
