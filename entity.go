package approve

import "time"

// Entity is the embedded base for all persisted Approve entities. It
// carries the audit timestamps shared by every record.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity returns an Entity stamped with the current UTC time.
func NewEntity() Entity {
	now := time.Now().UTC()
	return Entity{CreatedAt: now, UpdatedAt: now}
}

// Touch updates the UpdatedAt timestamp.
func (e *Entity) Touch(now time.Time) { e.UpdatedAt = now.UTC() }
