package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	ScanStatusCompleted = "completed"
	ScanStatusFailed    = "failed"
)

// Repo is a repository connected to an organization by the GitHub
// integration. FullName is "owner/name".
type Repo struct {
	ID            uuid.UUID `json:"id" db:"id"`
	OrgID         uuid.UUID `json:"org_id" db:"org_id"`
	FullName      string    `json:"full_name" db:"full_name"`
	DefaultBranch string    `json:"default_branch" db:"default_branch"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

type ScanRun struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	OrgID       uuid.UUID       `json:"org_id" db:"org_id"`
	RepoName    string          `json:"repo_name" db:"repo_name"`
	Status      string          `json:"status" db:"status"`
	BotResults  []ScanBotResult `json:"bot_results" db:"bot_results"`
	Findings    int             `json:"findings" db:"findings"`
	DurationMs  int64           `json:"duration_ms" db:"duration_ms"`
	Error       string          `json:"error,omitempty" db:"error"`
	TriggeredBy uuid.UUID       `json:"triggered_by" db:"triggered_by"`
	StartedAt   time.Time       `json:"started_at" db:"started_at"`
	CompletedAt time.Time       `json:"completed_at" db:"completed_at"`
}

type ScanBotResult struct {
	BotName  string `json:"bot_name"`
	Category string `json:"category"`
	Findings int    `json:"findings"`
	Error    string `json:"error,omitempty"`
}
