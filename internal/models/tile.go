package models

import (
	"fmt"
	"time"
)

// TileCacheEntry represents one cached map tile.
//
// Eviction order is strict LRU over LastAccessedAt; reads must touch
// LastAccessedAt and AccessCount for the order to stay meaningful.
type TileCacheEntry struct {
	ID             int64  `db:"id" json:"id"`
	Source         string `db:"source" json:"source"`
	Zoom           int    `db:"zoom" json:"zoom"`
	X              int    `db:"x" json:"x"`
	Y              int    `db:"y" json:"y"`
	SizeBytes      int64  `db:"size_bytes" json:"size_bytes"`
	CachedAt       int64  `db:"cached_at" json:"cached_at"`
	LastAccessedAt int64  `db:"last_accessed_at" json:"last_accessed_at"`
	AccessCount    int64  `db:"access_count" json:"access_count"`
}

// TableName returns the table name for TileCacheEntry.
func (TileCacheEntry) TableName() string {
	return "tile_cache"
}

// Key returns the composite cache key for the tile.
func (t *TileCacheEntry) Key() string {
	return fmt.Sprintf("%s/%d/%d/%d", t.Source, t.Zoom, t.X, t.Y)
}

// LastAccessedTime returns LastAccessedAt as time.Time.
func (t *TileCacheEntry) LastAccessedTime() time.Time {
	return time.UnixMilli(t.LastAccessedAt)
}
