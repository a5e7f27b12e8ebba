package queue

const (
	TypeWebhookDeliver = "webhook:deliver"
)

// WebhookDeliverPayload names the endpoint rather than carrying its URL or
// secret; the worker loads both when the task runs.
type WebhookDeliverPayload struct {
	WebhookID string `json:"webhook_id"`
	OrgID     string `json:"org_id"`
	Event     string `json:"event"`
	Payload   string `json:"payload"` // JSON string
}
