package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/botfleet/internal/audit"
	"github.com/nikhilbhutani/botfleet/internal/auth"
	"github.com/nikhilbhutani/botfleet/internal/lifecycle"
	"github.com/nikhilbhutani/botfleet/internal/models"
	"github.com/nikhilbhutani/botfleet/internal/prompt"
	"github.com/nikhilbhutani/botfleet/internal/store"
	"github.com/nikhilbhutani/botfleet/internal/tenant"
)

type proposalArgs struct {
	ProposalID string `json:"proposalId"`

	id uuid.UUID
}

func (a *proposalArgs) validate() error {
	id, err := parseID("proposalId", a.ProposalID)
	a.id = id
	return err
}

type rejectArgs struct {
	ProposalID string `json:"proposalId"`
	Reason     string `json:"reason,omitempty"`

	id uuid.UUID
}

func (a *rejectArgs) validate() error {
	id, err := parseID("proposalId", a.ProposalID)
	a.id = id
	a.Reason = strings.TrimSpace(a.Reason)
	return err
}

var proposalIDParam = Param{Name: "proposalId", Type: "string", Required: true, Description: "ID of the prompt proposal."}

var approveProposalTool = spec[proposalArgs]{
	name:        "approveProposal",
	description: "Approve a pending prompt-improvement proposal. The proposed prompt becomes the bot's live system prompt and a new prompt version is recorded. Admins only.",
	params:      []Param{proposalIDParam},
	op:          always[proposalArgs](auth.OpApproveProposal),
	exec:        approveProposal,
}

var rejectProposalTool = spec[rejectArgs]{
	name:        "rejectProposal",
	description: "Reject a pending prompt-improvement proposal, optionally with a reason. The live prompt is not changed. Admins only.",
	params: []Param{
		proposalIDParam,
		{Name: "reason", Type: "string", Description: "Why the proposal is rejected."},
	},
	op:   always[rejectArgs](auth.OpRejectProposal),
	exec: rejectProposal,
}

var reviewProposalTool = spec[proposalArgs]{
	name:        "reviewProposal",
	description: "Show a proposal in full: current prompt, proposed prompt, reason, severity and status.",
	params:      []Param{proposalIDParam},
	op:          always[proposalArgs](auth.OpViewProposals),
	exec:        reviewProposal,
}

var listProposalsTool = spec[struct{}]{
	name:        "listProposals",
	description: "List prompt-improvement proposals for the organization, newest first.",
	op:          always[struct{}](auth.OpViewProposals),
	exec:        listProposals,
}

// loadPending reads a proposal and refuses anything already resolved.
func loadPending(ctx context.Context, tx store.Tx, orgID, id uuid.UUID) (*models.Proposal, error) {
	p, err := tx.GetProposal(ctx, orgID, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("Proposal %s not found.", id)
	}
	if err != nil {
		return nil, err
	}
	if err := lifecycle.CheckPending(p.Status); err != nil {
		return nil, err
	}
	return p, nil
}

func resolve(ctx context.Context, tx store.Tx, p *models.Proposal, status string, actor tenant.Actor, note string, at time.Time) error {
	err := tx.ResolveProposal(ctx, p.OrgID, p.ID, status, actor.UserID, note, at)
	if errors.Is(err, store.ErrConflict) {
		return conflict("Proposal %s was resolved by someone else.", p.ID)
	}
	return err
}

func approveProposal(ctx context.Context, d *Dispatcher, actor tenant.Actor, args *proposalArgs) (Result, error) {
	now := d.now()
	var (
		p *models.Proposal
		v *models.PromptVersion
	)
	err := d.deps.Store.InTx(ctx, func(tx store.Tx) error {
		var err error
		if p, err = loadPending(ctx, tx, actor.OrgID, args.id); err != nil {
			return err
		}
		if err := resolve(ctx, tx, p, models.ProposalApproved, actor, "", now); err != nil {
			return err
		}
		_, v, err = prompt.Write(ctx, tx, prompt.WriteRequest{
			OrgID:     actor.OrgID,
			AgentName: p.AgentName,
			Text:      p.ProposedPrompt,
			EditorID:  actor.UserID,
			Reason:    fmt.Sprintf("Approved proposal %s: %s", p.ID, p.Reason),
			At:        now,
		})
		if err != nil {
			return err
		}
		_, err = audit.Record(ctx, tx, actor, audit.EventProposalApproved,
			fmt.Sprintf("Approved prompt proposal for %s", p.AgentName),
			map[string]any{
				"proposalId":    p.ID.String(),
				"agentName":     p.AgentName,
				"severity":      p.Severity,
				"versionNumber": v.VersionNumber,
			})
		return err
	})
	if err != nil {
		return nil, err
	}

	return Result{
		"message":       fmt.Sprintf("Proposal approved. %s's prompt is now at version %d.", p.AgentName, v.VersionNumber) + forkNote(v.VersionNumber),
		"proposalId":    p.ID,
		"agentName":     p.AgentName,
		"versionNumber": v.VersionNumber,
	}, nil
}

func rejectProposal(ctx context.Context, d *Dispatcher, actor tenant.Actor, args *rejectArgs) (Result, error) {
	now := d.now()
	var p *models.Proposal
	err := d.deps.Store.InTx(ctx, func(tx store.Tx) error {
		var err error
		if p, err = loadPending(ctx, tx, actor.OrgID, args.id); err != nil {
			return err
		}
		if err := resolve(ctx, tx, p, models.ProposalRejected, actor, args.Reason, now); err != nil {
			return err
		}
		meta := map[string]any{"proposalId": p.ID.String(), "agentName": p.AgentName}
		if args.Reason != "" {
			meta["reason"] = args.Reason
		}
		_, err = audit.Record(ctx, tx, actor, audit.EventProposalRejected,
			fmt.Sprintf("Rejected prompt proposal for %s", p.AgentName), meta)
		return err
	})
	if err != nil {
		return nil, err
	}

	return Result{
		"message":    fmt.Sprintf("Proposal for %s rejected.", p.AgentName),
		"proposalId": p.ID,
		"agentName":  p.AgentName,
	}, nil
}

func reviewProposal(ctx context.Context, d *Dispatcher, actor tenant.Actor, args *proposalArgs) (Result, error) {
	p, err := d.deps.Store.GetProposal(ctx, actor.OrgID, args.id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("Proposal %s not found.", args.id)
	}
	if err != nil {
		return nil, err
	}
	return Result{"proposal": newProposalView(p)}, nil
}

type proposalSummary struct {
	ID        uuid.UUID `json:"id"`
	AgentName string    `json:"agentName"`
	Severity  string    `json:"severity"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason"`
	CreatedAt string    `json:"createdAt"`
}

func listProposals(ctx context.Context, d *Dispatcher, actor tenant.Actor, _ *struct{}) (Result, error) {
	proposals, err := d.deps.Store.ListProposals(ctx, actor.OrgID, "")
	if err != nil {
		return nil, err
	}
	out := make([]proposalSummary, 0, len(proposals))
	pending := 0
	for _, p := range proposals {
		if p.Status == models.ProposalPending {
			pending++
		}
		out = append(out, proposalSummary{
			ID:        p.ID,
			AgentName: p.AgentName,
			Severity:  p.Severity,
			Status:    p.Status,
			Reason:    p.Reason,
			CreatedAt: p.CreatedAt.Format(time.RFC3339),
		})
	}
	return Result{"proposals": out, "pendingCount": pending}, nil
}

func parseID(field, value string) (uuid.UUID, error) {
	if strings.TrimSpace(value) == "" {
		return uuid.Nil, invalid("%s is required.", field)
	}
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil, invalid("%s must be a valid ID.", field)
	}
	return id, nil
}
