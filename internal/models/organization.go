package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Organization struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Slug        string          `json:"slug" db:"slug"`
	Settings    json.RawMessage `json:"settings,omitempty" db:"settings"`
	OnboardedAt *time.Time      `json:"onboarded_at,omitempty" db:"onboarded_at"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// OrgStats is the aggregate snapshot returned by the showStats tool.
type OrgStats struct {
	Bots             int        `json:"bots"`
	EnabledBots      int        `json:"enabledBots"`
	Swarms           int        `json:"swarms"`
	PendingProposals int        `json:"pendingProposals"`
	Webhooks         int        `json:"webhooks"`
	Scans            int        `json:"scans"`
	Findings         int        `json:"findings"`
	LastScanAt       *time.Time `json:"lastScanAt,omitempty"`
}
