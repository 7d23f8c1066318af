// Package db provides database schema migration management.
package db

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations holds the embedded, ordered schema migrations. Versions must
// be contiguous and ascending; applied versions are never re-run.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial_schema",
		SQL: `
CREATE TABLE queued_locations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	latitude REAL NOT NULL CHECK(latitude BETWEEN -90 AND 90),
	longitude REAL NOT NULL CHECK(longitude BETWEEN -180 AND 180),
	altitude REAL,
	accuracy REAL,
	speed REAL,
	bearing REAL,
	timestamp INTEGER NOT NULL,
	provider TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending','syncing','synced')),
	attempts INTEGER NOT NULL DEFAULT 0,
	last_attempt_at INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	rejected INTEGER NOT NULL DEFAULT 0,
	rejection_reason TEXT NOT NULL DEFAULT ''
);
CREATE INDEX idx_locations_pending ON queued_locations(status, rejected, timestamp);

CREATE TABLE pending_mutations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_type TEXT NOT NULL,
	operation TEXT NOT NULL CHECK(operation IN ('create','update','delete')),
	entity_id TEXT NOT NULL,
	trip_id TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL DEFAULT '{}',
	original_payload TEXT NOT NULL DEFAULT '{}',
	temp_client_id TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	rejected INTEGER NOT NULL DEFAULT 0,
	rejection_reason TEXT NOT NULL DEFAULT ''
);
CREATE INDEX idx_mutations_pending ON pending_mutations(rejected, attempts, created_at);
CREATE INDEX idx_mutations_entity ON pending_mutations(entity_id, entity_type);

CREATE TABLE tile_cache (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source TEXT NOT NULL,
	zoom INTEGER NOT NULL,
	x INTEGER NOT NULL,
	y INTEGER NOT NULL,
	size_bytes INTEGER NOT NULL DEFAULT 0,
	cached_at INTEGER NOT NULL,
	last_accessed_at INTEGER NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 0,
	UNIQUE(source, zoom, x, y)
);
CREATE INDEX idx_tiles_lru ON tile_cache(last_accessed_at, id);

CREATE TABLE settings (
	key TEXT PRIMARY KEY CHECK(length(key) > 0),
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`,
	},
}

// Migrator handles database schema migrations.
type Migrator struct {
	db *sql.DB
}

// NewMigrator creates a new Migrator instance.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{db: db}
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	_, err := m.db.Exec(query)
	return err
}

// CurrentVersion returns the current schema version.
func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// Up applies all pending migrations.
func (m *Migrator) Up() error {
	if err := m.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize migrations table: %w", err)
	}

	current, err := m.CurrentVersion()
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, mig := range migrations {
		if mig.Version <= current {
			continue
		}
		if err := m.apply(mig); err != nil {
			return fmt.Errorf("failed to apply migration V%d: %w", mig.Version, err)
		}
	}

	return nil
}

// apply applies a single migration in a transaction.
func (m *Migrator) apply(mig Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(mig.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	hash := sha256.Sum256([]byte(mig.SQL))
	checksum := hex.EncodeToString(hash[:])

	query := `INSERT INTO schema_migrations (version, applied_at, description, checksum)
			  VALUES (?, ?, ?, ?)`
	if _, err := tx.Exec(query, mig.Version, time.Now().Unix(), mig.Description, checksum); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}
