package db

import (
	"database/sql"

	"github.com/waymarkapp/core/internal/models"
)

const tileColumns = `id, source, zoom, x, y, size_bytes, cached_at, last_accessed_at, access_count`

// UpsertTile creates or replaces a cached tile by its composite key.
// A replaced tile gets fresh cached-at/last-accessed times and a reset
// access counter.
func (r *Repository) UpsertTile(t *models.TileCacheEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowMillis()
	t.CachedAt = now
	t.LastAccessedAt = now

	query := `
	INSERT INTO tile_cache (source, zoom, x, y, size_bytes, cached_at, last_accessed_at, access_count)
	VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	ON CONFLICT(source, zoom, x, y) DO UPDATE SET
		size_bytes = excluded.size_bytes,
		cached_at = excluded.cached_at,
		last_accessed_at = excluded.last_accessed_at,
		access_count = 0
	`
	if _, err := r.db.Exec(query, t.Source, t.Zoom, t.X, t.Y, t.SizeBytes, now, now); err != nil {
		return err
	}

	return r.db.QueryRow(
		`SELECT id FROM tile_cache WHERE source = ? AND zoom = ? AND x = ? AND y = ?`,
		t.Source, t.Zoom, t.X, t.Y).Scan(&t.ID)
}

// TouchTile reads a tile by key, updating its last-accessed time and
// incrementing its access counter as a side effect. This is what keeps the
// LRU eviction order meaningful. Returns sql.ErrNoRows on a cache miss.
func (r *Repository) TouchTile(source string, zoom, x, y int) (*models.TileCacheEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.Exec(`
		UPDATE tile_cache SET last_accessed_at = ?, access_count = access_count + 1
		WHERE source = ? AND zoom = ? AND x = ? AND y = ?`,
		r.nowMillis(), source, zoom, x, y)
	if err != nil {
		return nil, err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, sql.ErrNoRows
	}

	return r.getTile(source, zoom, x, y)
}

// GetTile reads a tile by key without touching its access time.
func (r *Repository) GetTile(source string, zoom, x, y int) (*models.TileCacheEntry, error) {
	return r.getTile(source, zoom, x, y)
}

func (r *Repository) getTile(source string, zoom, x, y int) (*models.TileCacheEntry, error) {
	query := `SELECT ` + tileColumns + ` FROM tile_cache WHERE source = ? AND zoom = ? AND x = ? AND y = ?`
	var t models.TileCacheEntry
	err := r.db.QueryRow(query, source, zoom, x, y).Scan(
		&t.ID, &t.Source, &t.Zoom, &t.X, &t.Y, &t.SizeBytes,
		&t.CachedAt, &t.LastAccessedAt, &t.AccessCount)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// TotalTileBytes returns the summed byte size of all cached tiles.
func (r *Repository) TotalTileBytes() (int64, error) {
	var total int64
	err := r.db.QueryRow(`SELECT COALESCE(SUM(size_bytes), 0) FROM tile_cache`).Scan(&total)
	return total, err
}

// OldestTiles returns up to n tiles in ascending last-accessed order.
// Ties break deterministically by insertion order (rowid).
func (r *Repository) OldestTiles(n int) ([]*models.TileCacheEntry, error) {
	query := `SELECT ` + tileColumns + ` FROM tile_cache ORDER BY last_accessed_at ASC, id ASC LIMIT ?`
	rows, err := r.db.Query(query, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tiles []*models.TileCacheEntry
	for rows.Next() {
		var t models.TileCacheEntry
		if err := rows.Scan(&t.ID, &t.Source, &t.Zoom, &t.X, &t.Y, &t.SizeBytes,
			&t.CachedAt, &t.LastAccessedAt, &t.AccessCount); err != nil {
			return nil, err
		}
		tiles = append(tiles, &t)
	}
	return tiles, rows.Err()
}

// DeleteTile removes a single tile by id.
func (r *Repository) DeleteTile(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`DELETE FROM tile_cache WHERE id = ?`, id)
	return err
}

// ClearTiles removes all cached tiles, returning the number removed.
func (r *Repository) ClearTiles() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.Exec(`DELETE FROM tile_cache`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// setTileAccessTime rewrites a tile's last-accessed time. Test hook for
// constructing LRU orderings.
func (r *Repository) setTileAccessTime(id int64, millis int64) error {
	_, err := r.db.Exec(`UPDATE tile_cache SET last_accessed_at = ? WHERE id = ?`, millis, id)
	return err
}
