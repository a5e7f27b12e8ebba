// Package swarm manages named, organization-scoped sets of bot names.
// Membership is a soft reference: bot names are not checked against the
// bot registry.
package swarm

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/botfleet/internal/models"
	"github.com/nikhilbhutani/botfleet/internal/store"
)

// ErrExists is returned when the organization already has a swarm with
// the requested name.
var ErrExists = errors.New("swarm already exists")

type CreateRequest struct {
	OrgID       uuid.UUID
	Name        string
	Description string
	BotNames    []string
	CreatedBy   uuid.UUID
}

func Create(ctx context.Context, tx store.Tx, req CreateRequest) (*models.Swarm, error) {
	sw := &models.Swarm{
		OrgID:       req.OrgID,
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   req.CreatedBy,
	}
	if err := tx.CreateSwarm(ctx, sw); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("%w: %s", ErrExists, req.Name)
		}
		return nil, fmt.Errorf("create swarm: %w", err)
	}

	names := dedupe(req.BotNames)
	for _, name := range names {
		if _, err := AddBot(ctx, tx, sw, name); err != nil {
			return nil, err
		}
	}
	slices.Sort(names)
	sw.BotNames = names
	return sw, nil
}

func Get(ctx context.Context, tx store.Tx, orgID uuid.UUID, name string) (*models.Swarm, error) {
	sw, err := tx.GetSwarm(ctx, orgID, name)
	if err != nil {
		return nil, fmt.Errorf("get swarm %s: %w", name, err)
	}
	return sw, nil
}

func List(ctx context.Context, tx store.Tx, orgID uuid.UUID) ([]models.Swarm, error) {
	swarms, err := tx.ListSwarms(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list swarms: %w", err)
	}
	return swarms, nil
}

// AddBot adds botName to the swarm. Adding a present member is a no-op;
// changed reports whether membership grew.
func AddBot(ctx context.Context, tx store.Tx, sw *models.Swarm, botName string) (changed bool, err error) {
	added, err := tx.AddSwarmBot(ctx, sw.ID, botName)
	if err != nil {
		return false, fmt.Errorf("add %s to swarm %s: %w", botName, sw.Name, err)
	}
	return added, nil
}

// RemoveBot removes botName from the swarm. Removing an absent member is
// a no-op.
func RemoveBot(ctx context.Context, tx store.Tx, sw *models.Swarm, botName string) (changed bool, err error) {
	removed, err := tx.RemoveSwarmBot(ctx, sw.ID, botName)
	if err != nil {
		return false, fmt.Errorf("remove %s from swarm %s: %w", botName, sw.Name, err)
	}
	return removed, nil
}

// Delete removes the swarm and every membership edge.
func Delete(ctx context.Context, tx store.Tx, sw *models.Swarm) error {
	if err := tx.DeleteSwarm(ctx, sw.OrgID, sw.ID); err != nil {
		return fmt.Errorf("delete swarm %s: %w", sw.Name, err)
	}
	return nil
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
