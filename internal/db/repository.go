// Package db provides CRUD repository operations for Waymark data models.
package db

import (
	"database/sql"
	"sync"
	"time"
)

// Repository provides storage operations for the sync engine: the location
// queue, the mutation queue, the tile cache and scalar settings.
//
// All mutating operations take the writer lock so interleaved callers (sync
// cycles, UI reads, the evictor) never observe a half-written record. Reads
// go through the same single SQLite connection and see committed state only.
type Repository struct {
	db *sql.DB

	// mu serializes multi-statement write paths (merge-on-enqueue,
	// purge, eviction). Single-statement writes are already atomic in
	// SQLite but take it anyway for a uniform discipline.
	mu sync.Mutex

	// nowFn is the clock; overridable in tests.
	nowFn func() time.Time
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db:    db,
		nowFn: time.Now,
	}
}

// nowMillis returns the current time in Unix milliseconds (UTC base).
func (r *Repository) nowMillis() int64 {
	return r.nowFn().UnixMilli()
}
