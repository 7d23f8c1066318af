package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/waymarkapp/core/internal/models"
)

const mutationColumns = `id, entity_type, operation, entity_id, trip_id, payload,
	original_payload, temp_client_id, created_at, attempts, last_error,
	rejected, rejection_reason`

// EnqueueMutation inserts an optimistic edit, applying the merge rule:
//
//   - A Delete supersedes and removes any prior mutations for the entity.
//   - Otherwise, if a live (non-rejected, non-Delete) mutation already
//     exists for (EntityID, EntityType), the new edit's field values
//     overwrite its payload and its creation time is refreshed, but its
//     original snapshot and operation are preserved (first-write-wins
//     rollback baseline, and an offline Create stays a Create).
//   - Otherwise a new row is inserted with the caller-supplied original
//     snapshot.
func (r *Repository) EnqueueMutation(m *models.PendingMutation) error {
	if err := m.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := r.nowMillis()

	if m.Operation == models.OpDelete {
		if _, err := tx.Exec(
			`DELETE FROM pending_mutations WHERE entity_id = ? AND entity_type = ?`,
			m.EntityID, m.EntityType); err != nil {
			return err
		}
		if err := r.insertMutation(tx, m, now); err != nil {
			return err
		}
		return tx.Commit()
	}

	var existingID int64
	err = tx.QueryRow(`
		SELECT id FROM pending_mutations
		WHERE entity_id = ? AND entity_type = ? AND rejected = 0 AND operation != ?
		LIMIT 1`,
		m.EntityID, m.EntityType, models.OpDelete).Scan(&existingID)

	switch {
	case err == sql.ErrNoRows:
		if err := r.insertMutation(tx, m, now); err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		payload, err := json.Marshal(m.Fields)
		if err != nil {
			return fmt.Errorf("failed to marshal mutation payload: %w", err)
		}
		if _, err := tx.Exec(
			`UPDATE pending_mutations SET payload = ?, trip_id = ?, created_at = ? WHERE id = ?`,
			string(payload), m.TripID, now, existingID); err != nil {
			return err
		}
		m.ID = existingID
		m.CreatedAt = now
	}

	return tx.Commit()
}

// insertMutation inserts a single mutation row within tx.
func (r *Repository) insertMutation(tx *sql.Tx, m *models.PendingMutation, now int64) error {
	payload, err := json.Marshal(m.Fields)
	if err != nil {
		return fmt.Errorf("failed to marshal mutation payload: %w", err)
	}
	original, err := json.Marshal(m.Original)
	if err != nil {
		return fmt.Errorf("failed to marshal original snapshot: %w", err)
	}

	m.CreatedAt = now
	result, err := tx.Exec(`
		INSERT INTO pending_mutations (entity_type, operation, entity_id, trip_id,
			payload, original_payload, temp_client_id, created_at, attempts,
			last_error, rejected, rejection_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.EntityType, m.Operation, m.EntityID, m.TripID, string(payload),
		string(original), m.TempClientID, m.CreatedAt, m.Attempts,
		m.LastError, m.Rejected, m.RejectionReason)
	if err != nil {
		return err
	}
	m.ID, err = result.LastInsertId()
	return err
}

// GetMutation retrieves a pending mutation by id.
func (r *Repository) GetMutation(id int64) (*models.PendingMutation, error) {
	query := `SELECT ` + mutationColumns + ` FROM pending_mutations WHERE id = ?`
	rows, err := r.db.Query(query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, sql.ErrNoRows
	}
	return scanMutation(rows)
}

// GetPendingMutations returns non-rejected mutations with fewer than
// maxAttempts attempts, ordered by creation time ascending, optionally
// scoped to one trip. Unlike the location queue, mutations become
// unsyncable once the attempt ceiling is reached.
func (r *Repository) GetPendingMutations(limit, maxAttempts int, tripID string) ([]*models.PendingMutation, error) {
	query := `
	SELECT ` + mutationColumns + `
	FROM pending_mutations
	WHERE rejected = 0 AND attempts < ?
	`
	args := []interface{}{maxAttempts}
	if tripID != "" {
		query += ` AND trip_id = ?`
		args = append(args, tripID)
	}
	query += ` ORDER BY created_at ASC LIMIT ?`
	args = append(args, limit)

	return r.queryMutations(query, args...)
}

// GetRejectedMutations returns rejected mutations for user-visible
// diagnostics, optionally scoped to one trip.
func (r *Repository) GetRejectedMutations(tripID string) ([]*models.PendingMutation, error) {
	query := `SELECT ` + mutationColumns + ` FROM pending_mutations WHERE rejected = 1`
	var args []interface{}
	if tripID != "" {
		query += ` AND trip_id = ?`
		args = append(args, tripID)
	}
	query += ` ORDER BY created_at ASC`

	return r.queryMutations(query, args...)
}

// DeleteMutation removes a mutation, typically after successful sync.
func (r *Repository) DeleteMutation(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.Exec(`DELETE FROM pending_mutations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("pending mutation not found: %d", id)
	}
	return nil
}

// RecordMutationAttempt increments the attempt counter and records the
// error text.
func (r *Repository) RecordMutationAttempt(id int64, errText string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.Exec(
		`UPDATE pending_mutations SET attempts = attempts + 1, last_error = ? WHERE id = ?`,
		errText, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("pending mutation not found: %d", id)
	}
	return nil
}

// MarkMutationRejected marks a mutation permanently rejected. The row is
// retained for diagnostics; the caller rolls back local state from the
// original snapshot.
func (r *Repository) MarkMutationRejected(id int64, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.Exec(
		`UPDATE pending_mutations SET rejected = 1, rejection_reason = ? WHERE id = ?`,
		reason, id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("pending mutation not found: %d", id)
	}
	return nil
}

// ResetMutationAttempts zeroes the attempt counters of all non-rejected
// mutations, optionally scoped to one trip, re-admitting them to the
// pending set. Rejected mutations are never touched.
func (r *Repository) ResetMutationAttempts(tripID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `UPDATE pending_mutations SET attempts = 0, last_error = '' WHERE rejected = 0`
	var args []interface{}
	if tripID != "" {
		query += ` AND trip_id = ?`
		args = append(args, tripID)
	}

	result, err := r.db.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ClearRejectedMutations removes rejected mutations, optionally scoped to
// one trip. Explicit clear for the diagnostics view.
func (r *Repository) ClearRejectedMutations(tripID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	query := `DELETE FROM pending_mutations WHERE rejected = 1`
	var args []interface{}
	if tripID != "" {
		query += ` AND trip_id = ?`
		args = append(args, tripID)
	}

	result, err := r.db.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// queryMutations runs a mutation query and scans all rows.
func (r *Repository) queryMutations(query string, args ...interface{}) ([]*models.PendingMutation, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mutations []*models.PendingMutation
	for rows.Next() {
		m, err := scanMutation(rows)
		if err != nil {
			return nil, err
		}
		mutations = append(mutations, m)
	}
	return mutations, rows.Err()
}

// scanMutation scans the current row, unmarshalling the JSON payloads.
func scanMutation(rows *sql.Rows) (*models.PendingMutation, error) {
	var m models.PendingMutation
	var payload, original string
	err := rows.Scan(
		&m.ID, &m.EntityType, &m.Operation, &m.EntityID, &m.TripID,
		&payload, &original, &m.TempClientID, &m.CreatedAt, &m.Attempts,
		&m.LastError, &m.Rejected, &m.RejectionReason,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(payload), &m.Fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mutation payload: %w", err)
	}
	if err := json.Unmarshal([]byte(original), &m.Original); err != nil {
		return nil, fmt.Errorf("failed to unmarshal original snapshot: %w", err)
	}
	return &m, nil
}
