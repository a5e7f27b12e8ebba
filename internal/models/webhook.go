package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type WebhookEndpoint struct {
	ID          uuid.UUID `json:"id" db:"id"`
	OrgID       uuid.UUID `json:"org_id" db:"org_id"`
	URL         string    `json:"url" db:"url"`
	Events      []string  `json:"events" db:"events"`
	Secret      string    `json:"-" db:"secret"`
	Active      bool      `json:"active" db:"active"`
	Description string    `json:"description,omitempty" db:"description"`
	CreatedBy   uuid.UUID `json:"created_by" db:"created_by"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type WebhookDelivery struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	WebhookID      uuid.UUID       `json:"webhook_id" db:"webhook_id"`
	Event          string          `json:"event" db:"event"`
	Payload        json.RawMessage `json:"payload" db:"payload"`
	ResponseStatus int             `json:"response_status" db:"response_status"`
	Attempts       int             `json:"attempts" db:"attempts"`
	Error          string          `json:"error,omitempty" db:"error"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty" db:"delivered_at"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}
