package models

import (
	"time"

	"github.com/google/uuid"
)

// ActivityEvent is an immutable audit record. IDs are assigned by the
// store in append order and define "most recent" for projections.
type ActivityEvent struct {
	ID          int64          `json:"id" db:"id"`
	OrgID       uuid.UUID      `json:"org_id" db:"org_id"`
	EventType   string         `json:"event_type" db:"event_type"`
	Summary     string         `json:"summary" db:"summary"`
	Metadata    map[string]any `json:"metadata" db:"metadata"`
	ActorUserID *uuid.UUID     `json:"actor_user_id,omitempty" db:"actor_user_id"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
}

// MetaString returns a metadata value as a string, or "" when absent.
func (e ActivityEvent) MetaString(key string) string {
	v, ok := e.Metadata[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
