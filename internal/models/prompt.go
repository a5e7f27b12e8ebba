package models

import (
	"time"

	"github.com/google/uuid"
)

// Prompt is the live system prompt of an agent. A nil OrgID marks the
// global default that every organization reads until it writes its own.
type Prompt struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	OrgID      *uuid.UUID `json:"org_id,omitempty" db:"org_id"`
	AgentName  string     `json:"agent_name" db:"agent_name"`
	PromptText string     `json:"prompt_text" db:"prompt_text"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

func (p *Prompt) IsGlobal() bool { return p.OrgID == nil }

type PromptVersion struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	PromptID      uuid.UUID  `json:"prompt_id" db:"prompt_id"`
	VersionNumber int        `json:"version_number" db:"version_number"`
	PromptText    string     `json:"prompt_text" db:"prompt_text"`
	EditedBy      *uuid.UUID `json:"edited_by,omitempty" db:"edited_by"`
	Reason        string     `json:"reason" db:"reason"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}
