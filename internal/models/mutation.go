package models

import "fmt"

// EntityType identifies the kind of trip entity a mutation targets.
type EntityType string

const (
	EntityPlace   EntityType = "place"
	EntityRegion  EntityType = "region"
	EntityTrip    EntityType = "trip"
	EntitySegment EntityType = "segment"
	EntityArea    EntityType = "area"
)

// MutationOp represents the operation of a pending mutation.
type MutationOp string

const (
	OpCreate MutationOp = "create"
	OpUpdate MutationOp = "update"
	OpDelete MutationOp = "delete"
)

// EntityFields is the superset of editable fields across all entity types.
// It is stored as a JSON payload; zero values mean "not set" for the
// entity type in question.
type EntityFields struct {
	Name         string   `json:"name,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Notes        string   `json:"notes,omitempty"`
	DisplayOrder *int     `json:"display_order,omitempty"`
	Icon         string   `json:"icon,omitempty"`
	Color        string   `json:"color,omitempty"`
	CoverImage   string   `json:"cover_image,omitempty"`
	CenterLat    *float64 `json:"center_lat,omitempty"`
	CenterLon    *float64 `json:"center_lon,omitempty"`
}

// PendingMutation represents one optimistic edit to a trip entity awaiting
// server confirmation.
//
// At most one live (non-rejected) mutation exists per (EntityID, EntityType)
// for non-Delete operations; repeat edits merge into the existing record.
// Original holds the pre-edit snapshot taken at first-edit time and is never
// overwritten by merges (first-write-wins rollback baseline).
type PendingMutation struct {
	ID              int64        `db:"id" json:"id"`
	EntityType      EntityType   `db:"entity_type" json:"entity_type"`
	Operation       MutationOp   `db:"operation" json:"operation"`
	EntityID        string       `db:"entity_id" json:"entity_id"`
	TripID          string       `db:"trip_id" json:"trip_id,omitempty"`
	Fields          EntityFields `db:"payload" json:"fields"`
	Original        EntityFields `db:"original_payload" json:"original"`
	TempClientID    UUID         `db:"temp_client_id" json:"temp_client_id,omitempty"` // offline Create only
	CreatedAt       int64        `db:"created_at" json:"created_at"`
	Attempts        int          `db:"attempts" json:"attempts"`
	LastError       string       `db:"last_error" json:"last_error,omitempty"`
	Rejected        bool         `db:"rejected" json:"rejected"`
	RejectionReason string       `db:"rejection_reason" json:"rejection_reason,omitempty"`
}

// TableName returns the table name for PendingMutation.
func (PendingMutation) TableName() string {
	return "pending_mutations"
}

// Validate checks basic mutation invariants.
func (m *PendingMutation) Validate() error {
	switch m.EntityType {
	case EntityPlace, EntityRegion, EntityTrip, EntitySegment, EntityArea:
	default:
		return fmt.Errorf("unknown entity type: %q", m.EntityType)
	}
	switch m.Operation {
	case OpCreate, OpUpdate, OpDelete:
	default:
		return fmt.Errorf("unknown operation: %q", m.Operation)
	}
	if m.EntityID == "" {
		return fmt.Errorf("entity id is required")
	}
	return nil
}

// IsCreate reports whether the mutation is an offline create carrying a
// temp client id pending server id assignment.
func (m *PendingMutation) IsCreate() bool {
	return m.Operation == OpCreate
}
