package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ProposalPending  = "pending"
	ProposalApproved = "approved"
	ProposalRejected = "rejected"
)

// Proposal is a suggested prompt change produced by the threat-analysis
// pipeline. It is resolved exactly once.
type Proposal struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	OrgID          uuid.UUID  `json:"org_id" db:"org_id"`
	AgentName      string     `json:"agent_name" db:"agent_name"`
	CurrentPrompt  string     `json:"current_prompt" db:"current_prompt"`
	ProposedPrompt string     `json:"proposed_prompt" db:"proposed_prompt"`
	Reason         string     `json:"reason" db:"reason"`
	Severity       string     `json:"severity" db:"severity"`
	Status         string     `json:"status" db:"status"`
	ResolvedBy     *uuid.UUID `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolutionNote string     `json:"resolution_note,omitempty" db:"resolution_note"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
}
