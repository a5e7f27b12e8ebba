package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/botfleet/internal/models"
	"github.com/nikhilbhutani/botfleet/internal/queue"
	"github.com/nikhilbhutani/botfleet/internal/store"
)

// ErrDeliveryFailed marks a delivery the receiver did not accept. Queue
// workers return it so the task is retried.
var ErrDeliveryFailed = errors.New("webhook delivery failed")

type Deliverer struct {
	store      store.Tx
	httpClient *http.Client
	now        func() time.Time
}

func NewDeliverer(st store.Tx, timeout time.Duration) *Deliverer {
	return &Deliverer{
		store:      st,
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

// Deliver POSTs one event to its endpoint and records the attempt. Deleted
// or deactivated endpoints are skipped without error.
func (d *Deliverer) Deliver(ctx context.Context, p queue.WebhookDeliverPayload, attempt int) error {
	id, err := uuid.Parse(p.WebhookID)
	if err != nil {
		return fmt.Errorf("parse webhook ID: %w", err)
	}

	hook, err := d.store.GetWebhook(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		slog.Info("webhook gone, dropping delivery", "webhook_id", id, "event", p.Event)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load webhook: %w", err)
	}
	if !hook.Active || hook.OrgID.String() != p.OrgID {
		slog.Info("webhook inactive, dropping delivery", "webhook_id", id, "event", p.Event)
		return nil
	}

	body := []byte(p.Payload)
	status, sendErr := d.send(ctx, hook, p.Event, body)

	rec := &models.WebhookDelivery{
		WebhookID:      hook.ID,
		Event:          p.Event,
		Payload:        json.RawMessage(body),
		ResponseStatus: status,
		Attempts:       attempt,
	}
	if sendErr == nil && status < 400 {
		now := d.now()
		rec.DeliveredAt = &now
	} else if sendErr != nil {
		rec.Error = sendErr.Error()
	} else {
		rec.Error = fmt.Sprintf("receiver responded %d", status)
	}
	if err := d.store.RecordWebhookDelivery(ctx, rec); err != nil {
		slog.Error("failed to record webhook delivery", "error", err, "webhook_id", hook.ID)
	}

	if rec.DeliveredAt == nil {
		slog.Warn("webhook delivery failed", "webhook_id", hook.ID, "event", p.Event, "status", status, "attempt", attempt)
		return fmt.Errorf("%w: %s", ErrDeliveryFailed, rec.Error)
	}
	slog.Info("webhook delivered", "webhook_id", hook.ID, "event", p.Event, "status", status)
	return nil
}

func (d *Deliverer) send(ctx context.Context, hook *models.WebhookEndpoint, event string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, event)
	req.Header.Set(HeaderSignature, Sign(body, hook.Secret))
	req.Header.Set(HeaderID, hook.ID.String())

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
