// Package tiles maintains the map tile cache: persistent bookkeeping of
// cached tiles plus LRU eviction bounded by a byte budget. Tile bytes
// themselves live on disk outside this package; the cache tracks
// identity, size and recency.
package tiles

import (
	"github.com/waymarkapp/core/internal/apperr"
	"github.com/waymarkapp/core/internal/db"
	"github.com/waymarkapp/core/internal/logging"
	"github.com/waymarkapp/core/internal/models"
)

// DefaultBudgetBytes is the default cache byte budget (250 MB).
const DefaultBudgetBytes int64 = 250 * 1024 * 1024

// Cache is the tile bookkeeping layer over the persistent store.
type Cache struct {
	repo   *db.Repository
	budget int64
}

// NewCache creates a Cache with the given byte budget. A non-positive
// budget uses DefaultBudgetBytes.
func NewCache(repo *db.Repository, budget int64) *Cache {
	if budget <= 0 {
		budget = DefaultBudgetBytes
	}
	return &Cache{repo: repo, budget: budget}
}

// Budget returns the configured byte budget.
func (c *Cache) Budget() int64 {
	return c.budget
}

// Put records a cached tile and then enforces the budget, so the cache
// never stays over budget after a write. Re-caching an existing tile
// replaces its entry in place.
func (c *Cache) Put(entry *models.TileCacheEntry) error {
	if err := c.repo.UpsertTile(entry); err != nil {
		return apperr.Wrap(apperr.ErrTileCache, "failed to record tile", err)
	}
	_, err := c.EnforceBudget()
	return err
}

// Get looks up a tile and touches it: the entry's last-accessed time and
// access counter advance as a side effect, which is what makes eviction
// order meaningful. A miss returns a not-found error.
func (c *Cache) Get(source string, zoom, x, y int) (*models.TileCacheEntry, error) {
	entry, err := c.repo.TouchTile(source, zoom, x, y)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Peek looks up a tile without touching it. Diagnostics only.
func (c *Cache) Peek(source string, zoom, x, y int) (*models.TileCacheEntry, error) {
	return c.repo.GetTile(source, zoom, x, y)
}

// TotalBytes returns the summed size of all cached tiles.
func (c *Cache) TotalBytes() (int64, error) {
	return c.repo.TotalTileBytes()
}

// EnforceBudget deletes least-recently-accessed tiles one at a time until
// the total size is at or under the budget. Returns the number of tiles
// evicted. Ties on access time break by insertion order.
func (c *Cache) EnforceBudget() (int, error) {
	total, err := c.repo.TotalTileBytes()
	if err != nil {
		return 0, err
	}

	evicted := 0
	for total > c.budget {
		oldest, err := c.repo.OldestTiles(1)
		if err != nil {
			return evicted, err
		}
		if len(oldest) == 0 {
			break
		}
		victim := oldest[0]
		if err := c.repo.DeleteTile(victim.ID); err != nil {
			return evicted, apperr.Wrap(apperr.ErrTileCache, "failed to evict tile", err)
		}
		total -= victim.SizeBytes
		evicted++
		logging.Debug("Evicted tile", map[string]interface{}{
			"tile":       victim.Key(),
			"size_bytes": victim.SizeBytes,
		})
	}

	if evicted > 0 {
		logging.Info("Tile cache trimmed to budget", map[string]interface{}{
			"evicted":      evicted,
			"total_bytes":  total,
			"budget_bytes": c.budget,
		})
	}
	return evicted, nil
}

// Clear removes all cache entries and returns how many were deleted.
func (c *Cache) Clear() (int64, error) {
	return c.repo.ClearTiles()
}
