package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/waymarkapp/core/internal/models"
)

// Purge retention defaults (days). SyncedRetentionDays is the caller-tunable
// daysOld parameter default; the other two are fixed policy.
const (
	SyncedRetentionDays   = 7
	RejectedRetentionDays = 2
	StalePendingDays      = 300
)

const locationColumns = `id, latitude, longitude, altitude, accuracy, speed, bearing,
	timestamp, provider, created_at, status, attempts, last_attempt_at,
	last_error, rejected, rejection_reason`

// CreateLocation inserts a new queued location. Status defaults to Pending
// and CreatedAt is stamped; the caller supplies the fix Timestamp.
func (r *Repository) CreateLocation(loc *models.QueuedLocation) error {
	if err := loc.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if loc.Status == "" {
		loc.Status = models.SyncStatusPending
	}
	loc.CreatedAt = r.nowMillis()
	if loc.Timestamp == 0 {
		loc.Timestamp = loc.CreatedAt
	}

	query := `
	INSERT INTO queued_locations (latitude, longitude, altitude, accuracy, speed, bearing,
		timestamp, provider, created_at, status, attempts, last_attempt_at,
		last_error, rejected, rejection_reason)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query, loc.Latitude, loc.Longitude, loc.Altitude,
		loc.Accuracy, loc.Speed, loc.Bearing, loc.Timestamp, loc.Provider,
		loc.CreatedAt, loc.Status, loc.Attempts, loc.LastAttemptAt,
		loc.LastError, loc.Rejected, loc.RejectionReason)
	if err != nil {
		return err
	}

	loc.ID, err = result.LastInsertId()
	return err
}

// GetLocation retrieves a queued location by id.
func (r *Repository) GetLocation(id int64) (*models.QueuedLocation, error) {
	query := `SELECT ` + locationColumns + ` FROM queued_locations WHERE id = ?`
	return r.scanLocation(r.db.QueryRow(query, id))
}

// GetPendingLocations returns up to limit pending, non-rejected locations
// ordered oldest-timestamp-first. The attempt counter never gates
// pending-ness; a location is retried until the purge policy removes it.
func (r *Repository) GetPendingLocations(limit int) ([]*models.QueuedLocation, error) {
	query := `
	SELECT ` + locationColumns + `
	FROM queued_locations
	WHERE status = ? AND rejected = 0
	ORDER BY timestamp ASC
	LIMIT ?
	`
	rows, err := r.db.Query(query, models.SyncStatusPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []*models.QueuedLocation
	for rows.Next() {
		loc, err := r.scanLocationRows(rows)
		if err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}

// MarkLocationsSynced batch-marks the given ids as Synced in one statement.
// Unknown ids are ignored; an empty id list is a no-op returning zero.
func (r *Repository) MarkLocationsSynced(ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	query := fmt.Sprintf(`UPDATE queued_locations SET status = '%s' WHERE id IN (%s)`,
		models.SyncStatusSynced, placeholders)
	result, err := r.db.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// MarkLocationsSyncing moves the given pending ids to Syncing for the
// duration of a cycle, so concurrent readers see them as in flight.
// Unknown ids and non-pending rows are ignored.
func (r *Repository) MarkLocationsSyncing(ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	query := fmt.Sprintf(`UPDATE queued_locations SET status = '%s' WHERE status = '%s' AND id IN (%s)`,
		models.SyncStatusSyncing, models.SyncStatusPending, placeholders)
	result, err := r.db.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ResetSyncingLocations returns every Syncing row to Pending. Called at
// the end of a cycle for rows the cycle never resolved (aborts), and at
// startup to recover rows a crashed cycle left in flight.
func (r *Repository) ResetSyncingLocations() (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.Exec(`UPDATE queued_locations SET status = ? WHERE status = ?`,
		models.SyncStatusPending, models.SyncStatusSyncing)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// RecordLocationAttempt increments the attempt counter and records the
// error text and attempt time. The location goes back to Pending for the
// next cycle; the attempt counter never gates pending-ness.
func (r *Repository) RecordLocationAttempt(id int64, errText string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
	UPDATE queued_locations
	SET attempts = attempts + 1, last_error = ?, last_attempt_at = ?, status = ?
	WHERE id = ?
	`
	result, err := r.db.Exec(query, errText, r.nowMillis(), models.SyncStatusPending, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("queued location not found: %d", id)
	}
	return nil
}

// MarkLocationRejected marks a location permanently rejected. A rejected
// location is always also Synced: rejection is a terminal "done" state,
// distinct from success, signaled only via the rejected flag.
func (r *Repository) MarkLocationRejected(id int64, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
	UPDATE queued_locations
	SET rejected = 1, status = ?, rejection_reason = ?, last_attempt_at = ?
	WHERE id = ?
	`
	result, err := r.db.Exec(query, models.SyncStatusSynced, reason, r.nowMillis(), id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("queued location not found: %d", id)
	}
	return nil
}

// PurgeResult holds per-rule deletion counts from a purge run.
type PurgeResult struct {
	Synced       int64
	Rejected     int64
	StalePending int64
}

// Total returns the sum of all purged rows.
func (p PurgeResult) Total() int64 {
	return p.Synced + p.Rejected + p.StalePending
}

// PurgeLocations applies the retention policy to the location queue:
// Synced rows older than daysOld, rejected rows older than 2 days
// regardless of status, and Pending rows older than 300 days. The stale
// pending rule is the only mechanism that ever removes a location that was
// never synced or rejected, so the queue stays bounded even if the server
// is unreachable forever. The three deletions run independently.
func (r *Repository) PurgeLocations(daysOld int) (PurgeResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFn()
	var res PurgeResult

	syncedCutoff := now.AddDate(0, 0, -daysOld).UnixMilli()
	result, err := r.db.Exec(
		`DELETE FROM queued_locations WHERE status = ? AND rejected = 0 AND timestamp < ?`,
		models.SyncStatusSynced, syncedCutoff)
	if err != nil {
		return res, err
	}
	res.Synced, _ = result.RowsAffected()

	rejectedCutoff := now.AddDate(0, 0, -RejectedRetentionDays).UnixMilli()
	result, err = r.db.Exec(
		`DELETE FROM queued_locations WHERE rejected = 1 AND timestamp < ?`, rejectedCutoff)
	if err != nil {
		return res, err
	}
	res.Rejected, _ = result.RowsAffected()

	staleCutoff := now.AddDate(0, 0, -StalePendingDays).UnixMilli()
	result, err = r.db.Exec(
		`DELETE FROM queued_locations WHERE status = ? AND timestamp < ?`,
		models.SyncStatusPending, staleCutoff)
	if err != nil {
		return res, err
	}
	res.StalePending, _ = result.RowsAffected()

	return res, nil
}

// CountLocationsByStatus returns queue statistics for diagnostics.
func (r *Repository) CountLocationsByStatus() (map[string]int, error) {
	stats := map[string]int{
		"pending":  0,
		"syncing":  0,
		"synced":   0,
		"rejected": 0,
	}

	rows, err := r.db.Query(`SELECT status, rejected, COUNT(*) FROM queued_locations GROUP BY status, rejected`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var rejected bool
		var count int
		if err := rows.Scan(&status, &rejected, &count); err != nil {
			return nil, err
		}
		if rejected {
			stats["rejected"] += count
		} else {
			stats[status] += count
		}
	}
	return stats, rows.Err()
}

// AllLocations returns every queued location ordered by timestamp, for the
// diagnostics export.
func (r *Repository) AllLocations() ([]*models.QueuedLocation, error) {
	query := `SELECT ` + locationColumns + ` FROM queued_locations ORDER BY timestamp ASC`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []*models.QueuedLocation
	for rows.Next() {
		loc, err := r.scanLocationRows(rows)
		if err != nil {
			return nil, err
		}
		locations = append(locations, loc)
	}
	return locations, rows.Err()
}

// setLocationTimestamp rewrites a location's fix timestamp. Used by purge
// tests; the fix timestamp is otherwise immutable after capture.
func (r *Repository) setLocationTimestamp(id int64, ts time.Time) error {
	_, err := r.db.Exec(`UPDATE queued_locations SET timestamp = ? WHERE id = ?`, ts.UnixMilli(), id)
	return err
}

// scanLocation scans a single-row query result.
func (r *Repository) scanLocation(row *sql.Row) (*models.QueuedLocation, error) {
	var loc models.QueuedLocation
	err := row.Scan(
		&loc.ID, &loc.Latitude, &loc.Longitude, &loc.Altitude, &loc.Accuracy,
		&loc.Speed, &loc.Bearing, &loc.Timestamp, &loc.Provider, &loc.CreatedAt,
		&loc.Status, &loc.Attempts, &loc.LastAttemptAt, &loc.LastError,
		&loc.Rejected, &loc.RejectionReason,
	)
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

// scanLocationRows scans the current row of a multi-row result.
func (r *Repository) scanLocationRows(rows *sql.Rows) (*models.QueuedLocation, error) {
	var loc models.QueuedLocation
	err := rows.Scan(
		&loc.ID, &loc.Latitude, &loc.Longitude, &loc.Altitude, &loc.Accuracy,
		&loc.Speed, &loc.Bearing, &loc.Timestamp, &loc.Provider, &loc.CreatedAt,
		&loc.Status, &loc.Attempts, &loc.LastAttemptAt, &loc.LastError,
		&loc.Rejected, &loc.RejectionReason,
	)
	if err != nil {
		return nil, err
	}
	return &loc, nil
}
