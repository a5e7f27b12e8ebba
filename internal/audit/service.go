// Package audit appends and reads the organization activity log. Events
// are never updated; bot status is a projection over them.
package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/botfleet/internal/lifecycle"
	"github.com/nikhilbhutani/botfleet/internal/models"
	"github.com/nikhilbhutani/botfleet/internal/store"
	"github.com/nikhilbhutani/botfleet/internal/tenant"
)

const (
	EventBotPromoted         = lifecycle.EventBotPromoted
	EventBotCreated          = "bot.created"
	EventBotToggled          = "bot.toggled"
	EventPromptEdited        = "prompt.edited"
	EventProposalApproved    = "proposal.approved"
	EventProposalRejected    = "proposal.rejected"
	EventSwarmCreated        = "swarm.created"
	EventSwarmUpdated        = "swarm.updated"
	EventSwarmDeleted        = "swarm.deleted"
	EventWebhookCreated      = "webhook.created"
	EventMemberInvited       = "member.invited"
	EventScanCompleted       = "scan.completed"
	EventScanFailed          = "scan.failed"
	EventOnboardingCompleted = "onboarding.completed"
)

// Record appends one event attributed to actor.
func Record(ctx context.Context, tx store.Tx, actor tenant.Actor, eventType, summary string, metadata map[string]any) (*models.ActivityEvent, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	var userID *uuid.UUID
	if actor.UserID != uuid.Nil {
		id := actor.UserID
		userID = &id
	}
	ev := &models.ActivityEvent{
		OrgID:       actor.OrgID,
		EventType:   eventType,
		Summary:     summary,
		Metadata:    metadata,
		ActorUserID: userID,
	}
	if err := tx.AppendActivity(ctx, ev); err != nil {
		return nil, fmt.Errorf("record %s: %w", eventType, err)
	}
	return ev, nil
}

func Recent(ctx context.Context, tx store.Tx, orgID uuid.UUID, limit int) ([]models.ActivityEvent, error) {
	events, err := tx.ListActivity(ctx, store.ActivityQuery{OrgID: orgID, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	return events, nil
}

// BotStatus derives one bot's promotion status from its bot_promoted events.
func BotStatus(ctx context.Context, tx store.Tx, orgID uuid.UUID, botName string) (lifecycle.Status, error) {
	events, err := tx.ListActivity(ctx, store.ActivityQuery{
		OrgID:         orgID,
		EventType:     lifecycle.EventBotPromoted,
		MetadataKey:   "botName",
		MetadataValue: botName,
	})
	if err != nil {
		return "", fmt.Errorf("list promotions: %w", err)
	}
	return lifecycle.DeriveStatus(botName, events), nil
}

// BotStatuses derives every named bot's status from a single read of the
// promotion history. Bots with no history are draft.
func BotStatuses(ctx context.Context, tx store.Tx, orgID uuid.UUID, botNames []string) (map[string]lifecycle.Status, error) {
	events, err := tx.ListActivity(ctx, store.ActivityQuery{OrgID: orgID, EventType: lifecycle.EventBotPromoted})
	if err != nil {
		return nil, fmt.Errorf("list promotions: %w", err)
	}
	byBot := make(map[string][]models.ActivityEvent)
	for _, ev := range events {
		name := ev.MetaString("botName")
		byBot[name] = append(byBot[name], ev)
	}
	out := make(map[string]lifecycle.Status, len(botNames))
	for _, name := range botNames {
		out[name] = lifecycle.DeriveStatus(name, byBot[name])
	}
	return out, nil
}
