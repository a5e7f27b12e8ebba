// Package webhook manages outbound webhook subscriptions: creation with a
// one-time secret, signing, fan-out of events to subscribers, and delivery.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/botfleet/internal/models"
	"github.com/nikhilbhutani/botfleet/internal/store"
)

// Claims is the key/value store backing idempotency keys.
type Claims interface {
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
}

var ErrIdempotencyUnavailable = errors.New("idempotency keys need a configured cache")

// DuplicateError is returned when an idempotency key was already used. The
// secret of the existing webhook is never returned again.
type DuplicateError struct {
	WebhookID string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("A webhook was already created with this idempotency key (id %s). Its secret cannot be shown again.", e.WebhookID)
}

type Service struct {
	claims Claims
	ttl    time.Duration
}

// NewService returns a Service. claims may be nil, in which case requests
// carrying an idempotency key are refused.
func NewService(claims Claims, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{claims: claims, ttl: ttl}
}

type CreateRequest struct {
	OrgID       uuid.UUID
	URL         string
	Events      []string
	Description string
	CreatedBy   uuid.UUID
}

// Validate checks the URL and normalizes the event list in place.
func (r *CreateRequest) Validate() error {
	if err := ValidateURL(r.URL); err != nil {
		return err
	}
	events, err := NormalizeEvents(r.Events)
	if err != nil {
		return err
	}
	r.Events = events
	return nil
}

func claimKey(orgID uuid.UUID, key string) string {
	return "webhook:idempotency:" + orgID.String() + ":" + key
}

// Reserve picks the id of a webhook about to be created. With a non-empty
// key the id is claimed so a retry with the same key is refused; release
// drops the claim and must be called when the webhook is not persisted.
func (s *Service) Reserve(ctx context.Context, orgID uuid.UUID, key string) (uuid.UUID, func(context.Context), error) {
	id := uuid.New()
	noop := func(context.Context) {}
	if key == "" {
		return id, noop, nil
	}
	if s.claims == nil {
		return uuid.Nil, noop, ErrIdempotencyUnavailable
	}

	k := claimKey(orgID, key)
	ok, err := s.claims.SetNX(ctx, k, id.String(), s.ttl)
	if err != nil {
		return uuid.Nil, noop, fmt.Errorf("claim idempotency key: %w", err)
	}
	if !ok {
		var existing string
		if err := s.claims.Get(ctx, k, &existing); err != nil {
			return uuid.Nil, noop, fmt.Errorf("read idempotency key: %w", err)
		}
		return uuid.Nil, noop, &DuplicateError{WebhookID: existing}
	}
	release := func(ctx context.Context) {
		// The caller's context may already be cancelled when the create fails.
		if err := s.claims.Delete(context.WithoutCancel(ctx), k); err != nil {
			slog.Error("failed to release idempotency key", "error", err, "org_id", orgID, "webhook_id", id)
		}
	}
	return id, release, nil
}

// Create persists an active endpoint with a fresh secret. The returned
// endpoint carries the secret; this is the only time it leaves the store
// outside of delivery.
func (s *Service) Create(ctx context.Context, tx store.Tx, id uuid.UUID, req CreateRequest) (*models.WebhookEndpoint, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	w := &models.WebhookEndpoint{
		ID:          id,
		OrgID:       req.OrgID,
		URL:         req.URL,
		Events:      req.Events,
		Secret:      secret,
		Active:      true,
		Description: req.Description,
		CreatedBy:   req.CreatedBy,
	}
	if err := tx.CreateWebhook(ctx, w); err != nil {
		return nil, fmt.Errorf("create webhook: %w", err)
	}
	return w, nil
}

// List never includes secrets.
func (s *Service) List(ctx context.Context, tx store.Tx, orgID uuid.UUID) ([]models.WebhookEndpoint, error) {
	hooks, err := tx.ListWebhooks(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	for i := range hooks {
		hooks[i].Secret = ""
	}
	return hooks, nil
}

func (s *Service) Delete(ctx context.Context, tx store.Tx, orgID, id uuid.UUID) error {
	if err := tx.DeleteWebhook(ctx, orgID, id); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}
