package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/nikhilbhutani/botfleet/internal/queue"
	"github.com/nikhilbhutani/botfleet/internal/webhook"
)

type WebhookWorker struct {
	deliverer *webhook.Deliverer
}

func NewWebhookWorker(d *webhook.Deliverer) *WebhookWorker {
	return &WebhookWorker{deliverer: d}
}

func (w *WebhookWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.WebhookDeliverPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}

	attempt := 1
	if n, ok := asynq.GetRetryCount(ctx); ok {
		attempt = n + 1
	}

	slog.Info("delivering webhook", "webhook_id", payload.WebhookID, "event", payload.Event, "attempt", attempt)
	return w.deliverer.Deliver(ctx, payload, attempt)
}
