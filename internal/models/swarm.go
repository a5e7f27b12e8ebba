package models

import (
	"time"

	"github.com/google/uuid"
)

// Swarm groups bots by name. Members are weak references: a bot name may
// be added before the bot exists, and deleting a bot leaves the entry.
type Swarm struct {
	ID          uuid.UUID `json:"id" db:"id"`
	OrgID       uuid.UUID `json:"org_id" db:"org_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	BotNames    []string  `json:"bot_names"`
	CreatedBy   uuid.UUID `json:"created_by" db:"created_by"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
