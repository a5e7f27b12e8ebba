// Package prompt reads and writes bot system prompts. Every write is
// versioned; versions of a prompt are numbered contiguously from 1.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/botfleet/internal/models"
	"github.com/nikhilbhutani/botfleet/internal/store"
)

// Get returns the organization's prompt for agentName, or the global
// default when the organization has not written one.
func Get(ctx context.Context, tx store.Tx, orgID uuid.UUID, agentName string) (*models.Prompt, error) {
	p, err := tx.GetPrompt(ctx, orgID, agentName)
	if err != nil {
		return nil, fmt.Errorf("get prompt %s: %w", agentName, err)
	}
	return p, nil
}

type WriteRequest struct {
	OrgID     uuid.UUID
	AgentName string
	Text      string
	EditorID  uuid.UUID
	Reason    string
	At        time.Time
}

// Write sets the live text of the organization's prompt and appends a
// version. A global default is forked into an organization-scoped prompt
// on the first write; a missing prompt is created. Callers run Write
// inside a transaction.
func Write(ctx context.Context, tx store.Tx, req WriteRequest) (*models.Prompt, *models.PromptVersion, error) {
	p, err := tx.GetPrompt(ctx, req.OrgID, req.AgentName)
	switch {
	case errors.Is(err, store.ErrNotFound) || (err == nil && p.IsGlobal()):
		orgID := req.OrgID
		p = &models.Prompt{OrgID: &orgID, AgentName: req.AgentName, PromptText: req.Text}
		if err := tx.CreatePrompt(ctx, p); err != nil {
			return nil, nil, fmt.Errorf("create prompt %s: %w", req.AgentName, err)
		}
	case err != nil:
		return nil, nil, fmt.Errorf("get prompt %s: %w", req.AgentName, err)
	}

	if err := tx.LockPrompt(ctx, p.ID); err != nil {
		return nil, nil, err
	}
	if err := tx.SetPromptText(ctx, p.ID, req.Text, req.At); err != nil {
		return nil, nil, err
	}
	p.PromptText = req.Text
	p.UpdatedAt = req.At

	count, err := tx.CountPromptVersions(ctx, p.ID)
	if err != nil {
		return nil, nil, err
	}

	var editor *uuid.UUID
	if req.EditorID != uuid.Nil {
		id := req.EditorID
		editor = &id
	}
	v := &models.PromptVersion{
		PromptID:      p.ID,
		VersionNumber: count + 1,
		PromptText:    req.Text,
		EditedBy:      editor,
		Reason:        req.Reason,
	}
	if err := tx.AppendPromptVersion(ctx, v); err != nil {
		return nil, nil, err
	}
	return p, v, nil
}

// History lists a prompt's versions, newest first.
func History(ctx context.Context, tx store.Tx, promptID uuid.UUID) ([]models.PromptVersion, error) {
	versions, err := tx.ListPromptVersions(ctx, promptID)
	if err != nil {
		return nil, fmt.Errorf("list prompt versions: %w", err)
	}
	return versions, nil
}
