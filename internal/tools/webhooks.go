package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nikhilbhutani/botfleet/internal/audit"
	"github.com/nikhilbhutani/botfleet/internal/auth"
	"github.com/nikhilbhutani/botfleet/internal/models"
	"github.com/nikhilbhutani/botfleet/internal/store"
	"github.com/nikhilbhutani/botfleet/internal/tenant"
	"github.com/nikhilbhutani/botfleet/internal/webhook"
)

type configureWebhookArgs struct {
	URL            string   `json:"url"`
	Events         []string `json:"events"`
	Description    string   `json:"description,omitempty"`
	IdempotencyKey string   `json:"idempotencyKey,omitempty"`
}

func (a *configureWebhookArgs) validate() error {
	a.URL = strings.TrimSpace(a.URL)
	if err := webhook.ValidateURL(a.URL); err != nil {
		return err
	}
	events, err := webhook.NormalizeEvents(a.Events)
	if err != nil {
		return err
	}
	a.Events = events
	if len(a.IdempotencyKey) > 128 {
		return invalid("idempotencyKey must be at most 128 characters.")
	}
	return nil
}

var configureWebhookTool = spec[configureWebhookArgs]{
	name: "configureWebhook",
	description: "Subscribe an HTTPS endpoint to fleet events. Returns a signing secret exactly once; " +
		"deliveries carry an HMAC-SHA256 signature of the body in the X-Webhook-Signature header. " +
		"Pass idempotencyKey to make retries safe.",
	params: []Param{
		{Name: "url", Type: "string", Required: true, Description: "Absolute https URL that receives events."},
		{Name: "events", Type: "array", Required: true, Enum: webhook.Events, Description: "Events to subscribe to."},
		{Name: "description", Type: "string", Description: "Label for the endpoint."},
		{Name: "idempotencyKey", Type: "string", Description: "Caller-chosen key; a repeated key creates nothing new."},
	},
	op:   always[configureWebhookArgs](auth.OpConfigureWebhook),
	exec: configureWebhook,
}

func configureWebhook(ctx context.Context, d *Dispatcher, actor tenant.Actor, a *configureWebhookArgs) (Result, error) {
	id, release, err := d.deps.Webhooks.Reserve(ctx, actor.OrgID, a.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	persisted := false
	defer func() {
		if !persisted {
			release(ctx)
		}
	}()

	var hook *models.WebhookEndpoint
	err = d.deps.Store.InTx(ctx, func(tx store.Tx) error {
		var err error
		hook, err = d.deps.Webhooks.Create(ctx, tx, id, webhook.CreateRequest{
			OrgID:       actor.OrgID,
			URL:         a.URL,
			Events:      a.Events,
			Description: strings.TrimSpace(a.Description),
			CreatedBy:   actor.UserID,
		})
		if err != nil {
			return err
		}
		_, err = audit.Record(ctx, tx, actor, audit.EventWebhookCreated,
			fmt.Sprintf("Added webhook %s", hook.URL),
			map[string]any{"webhookId": hook.ID.String(), "url": hook.URL, "events": hook.Events})
		return err
	})
	if err != nil {
		return nil, err
	}
	persisted = true

	slog.Info("webhook created", "webhook_id", hook.ID, "org_id", actor.OrgID, "events", hook.Events)
	return Result{
		"message":         "Webhook created. Store the signing secret now; it will not be shown again.",
		"webhook":         newWebhookView(hook),
		"secret":          hook.Secret,
		"signatureHeader": webhook.HeaderSignature,
	}, nil
}

var listWebhooksTool = spec[struct{}]{
	name:        "listWebhooks",
	description: "List the organization's webhook endpoints and their subscribed events. Secrets are never included.",
	op:          always[struct{}](auth.OpViewWebhooks),
	exec: func(ctx context.Context, d *Dispatcher, actor tenant.Actor, _ *struct{}) (Result, error) {
		hooks, err := d.deps.Webhooks.List(ctx, d.deps.Store, actor.OrgID)
		if err != nil {
			return nil, err
		}
		out := make([]webhookView, 0, len(hooks))
		for i := range hooks {
			out = append(out, newWebhookView(&hooks[i]))
		}
		return Result{"webhooks": out, "count": len(out)}, nil
	},
}

// DeleteWebhook removes an endpoint. It is not part of the tool catalog;
// the HTTP API exposes it directly.
func (d *Dispatcher) DeleteWebhook(ctx context.Context, actor tenant.Actor, id string) error {
	webhookID, err := parseID("webhookId", id)
	if err != nil {
		return err
	}
	if err := auth.Authorize(auth.OpConfigureWebhook, actor.Role); err != nil {
		return classify(err)
	}
	err = d.deps.Webhooks.Delete(ctx, d.deps.Store, actor.OrgID, webhookID)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Webhook %s not found.", webhookID)
	}
	if err != nil {
		return classify(err)
	}
	slog.Info("webhook deleted", "webhook_id", webhookID, "org_id", actor.OrgID)
	return nil
}
