package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nikhilbhutani/botfleet/internal/audit"
	"github.com/nikhilbhutani/botfleet/internal/auth"
	"github.com/nikhilbhutani/botfleet/internal/prompt"
	"github.com/nikhilbhutani/botfleet/internal/store"
	"github.com/nikhilbhutani/botfleet/internal/tenant"
)

type editPromptArgs struct {
	AgentName string  `json:"agentName"`
	NewPrompt *string `json:"newPrompt,omitempty"`
}

func (a *editPromptArgs) validate() error {
	a.AgentName = strings.TrimSpace(a.AgentName)
	if a.AgentName == "" {
		return invalid("agentName is required.")
	}
	if a.NewPrompt == nil {
		return nil
	}
	if strings.TrimSpace(*a.NewPrompt) == "" {
		return invalid("newPrompt must not be empty.")
	}
	return prompt.ValidateTemplate(*a.NewPrompt)
}

var editSystemPromptTool = spec[editPromptArgs]{
	name: "editSystemPrompt",
	description: "Read or replace a bot's system prompt. Without newPrompt it returns the current prompt. " +
		"With newPrompt it replaces the prompt and records a new version; replacing is admin only. " +
		"Prompts may use the placeholders {{repo}}, {{branch}} and {{extensions}}.",
	params: []Param{
		{Name: "agentName", Type: "string", Required: true, Description: "Name of the bot whose prompt to read or edit."},
		{Name: "newPrompt", Type: "string", Description: "Replacement prompt text. Omit to read the current prompt."},
	},
	op: func(a *editPromptArgs) auth.Operation {
		if a.NewPrompt == nil {
			return auth.OpReadPrompt
		}
		return auth.OpWritePrompt
	},
	exec: func(ctx context.Context, d *Dispatcher, actor tenant.Actor, a *editPromptArgs) (Result, error) {
		if a.NewPrompt == nil {
			return readPrompt(ctx, d, actor, a.AgentName)
		}
		return writePrompt(ctx, d, actor, a.AgentName, *a.NewPrompt)
	},
}

func readPrompt(ctx context.Context, d *Dispatcher, actor tenant.Actor, agentName string) (Result, error) {
	p, err := prompt.Get(ctx, d.deps.Store, actor.OrgID, agentName)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("No system prompt found for %q.", agentName)
	}
	if err != nil {
		return nil, err
	}
	scope := "organization"
	if p.IsGlobal() {
		scope = "global default"
	}
	return Result{
		"agentName": p.AgentName,
		"prompt":    p.PromptText,
		"scope":     scope,
		"updatedAt": p.UpdatedAt,
	}, nil
}

func writePrompt(ctx context.Context, d *Dispatcher, actor tenant.Actor, agentName, text string) (Result, error) {
	now := d.now()
	var version int
	err := d.deps.Store.InTx(ctx, func(tx store.Tx) error {
		_, v, err := prompt.Write(ctx, tx, prompt.WriteRequest{
			OrgID:     actor.OrgID,
			AgentName: agentName,
			Text:      text,
			EditorID:  actor.UserID,
			Reason:    "Edited by an admin",
			At:        now,
		})
		if err != nil {
			return err
		}
		version = v.VersionNumber
		_, err = audit.Record(ctx, tx, actor, audit.EventPromptEdited,
			fmt.Sprintf("Edited the system prompt of %s", agentName),
			map[string]any{"agentName": agentName, "versionNumber": version})
		return err
	})
	if err != nil {
		return nil, err
	}
	return Result{
		"message":       fmt.Sprintf("Updated the system prompt of %s (version %d).", agentName, version) + forkNote(version),
		"agentName":     agentName,
		"versionNumber": version,
	}, nil
}

// forkNote explains a version 1 after a write: the organization had been
// reading a global default, and its own prompt starts a fresh history.
func forkNote(version int) string {
	if version != 1 {
		return ""
	}
	return " This is the organization's own first version; the global default prompt and its history are unchanged."
}
