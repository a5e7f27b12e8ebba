package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	BotCategorySecurity = "security"
	BotCategoryQuality  = "quality"
	BotCategoryDocs     = "docs"
)

// Bot is a code-maintenance agent. Its lifecycle status is not stored here;
// it is projected from bot_promoted activity events.
type Bot struct {
	ID             uuid.UUID `json:"id" db:"id"`
	OrgID          uuid.UUID `json:"org_id" db:"org_id"`
	Name           string    `json:"name" db:"name"`
	Description    string    `json:"description" db:"description"`
	Category       string    `json:"category" db:"category"`
	FileExtensions []string  `json:"file_extensions,omitempty" db:"file_extensions"`
	Enabled        bool      `json:"enabled" db:"enabled"`
	CreatedBy      uuid.UUID `json:"created_by" db:"created_by"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}
