package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/botfleet/internal/queue"
	"github.com/nikhilbhutani/botfleet/internal/store"
)

type Enqueuer interface {
	EnqueueWebhookDeliver(payload queue.WebhookDeliverPayload) error
}

// Envelope is the JSON body receivers get.
type Envelope struct {
	Event     string    `json:"event"`
	OrgID     uuid.UUID `json:"orgId"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

type Publisher struct {
	store store.Tx
	queue Enqueuer
	now   func() time.Time
}

func NewPublisher(st store.Tx, q Enqueuer) *Publisher {
	return &Publisher{store: st, queue: q, now: time.Now}
}

// Publish enqueues one delivery per active endpoint of orgID subscribed to
// event and returns how many were enqueued.
func (p *Publisher) Publish(ctx context.Context, orgID uuid.UUID, event string, data any) (int, error) {
	hooks, err := p.store.ListWebhooksForEvent(ctx, orgID, event)
	if err != nil {
		return 0, fmt.Errorf("find webhooks for %s: %w", event, err)
	}
	if len(hooks) == 0 {
		return 0, nil
	}

	body, err := json.Marshal(Envelope{Event: event, OrgID: orgID, Timestamp: p.now().UTC(), Data: data})
	if err != nil {
		return 0, fmt.Errorf("marshal %s payload: %w", event, err)
	}

	n := 0
	for _, h := range hooks {
		err := p.queue.EnqueueWebhookDeliver(queue.WebhookDeliverPayload{
			WebhookID: h.ID.String(),
			OrgID:     orgID.String(),
			Event:     event,
			Payload:   string(body),
		})
		if err != nil {
			return n, fmt.Errorf("enqueue delivery to %s: %w", h.ID, err)
		}
		n++
	}
	return n, nil
}
