package auth

import (
	"fmt"

	"github.com/nikhilbhutani/botfleet/internal/models"
)

// Operation is a kind of action subject to the authorization gate.
type Operation string

const (
	OpApproveProposal    Operation = "approve_proposal"
	OpRejectProposal     Operation = "reject_proposal"
	OpViewProposals      Operation = "view_proposals"
	OpReadPrompt         Operation = "read_prompt"
	OpWritePrompt        Operation = "write_prompt"
	OpCreateBot          Operation = "create_bot"
	OpPromoteBot         Operation = "promote_bot"
	OpToggleBot          Operation = "toggle_bot"
	OpViewBots           Operation = "view_bots"
	OpManageSwarm        Operation = "manage_swarm"
	OpViewSwarms         Operation = "view_swarms"
	OpConfigureWebhook   Operation = "configure_webhook"
	OpViewWebhooks       Operation = "view_webhooks"
	OpInviteMember       Operation = "invite_member"
	OpRunScan            Operation = "run_scan"
	OpViewActivity       Operation = "view_activity"
	OpCompleteOnboarding Operation = "complete_onboarding"
)

type rule struct {
	adminOnly bool
	// action completes "Only admins can ..." on denial.
	action string
}

var policy = map[Operation]rule{
	OpApproveProposal:    {adminOnly: true, action: "approve proposals"},
	OpRejectProposal:     {adminOnly: true, action: "reject proposals"},
	OpViewProposals:      {},
	OpReadPrompt:         {},
	OpWritePrompt:        {adminOnly: true, action: "edit system prompts"},
	OpCreateBot:          {},
	OpPromoteBot:         {},
	OpToggleBot:          {adminOnly: true, action: "enable or disable bots"},
	OpViewBots:           {},
	OpManageSwarm:        {},
	OpViewSwarms:         {},
	OpConfigureWebhook:   {},
	OpViewWebhooks:       {},
	OpInviteMember:       {adminOnly: true, action: "invite members"},
	OpRunScan:            {},
	OpViewActivity:       {},
	OpCompleteOnboarding: {},
}

// ForbiddenError is returned when a role may not perform an operation.
type ForbiddenError struct {
	Op      Operation
	Message string
}

func (e *ForbiddenError) Error() string {
	return e.Message
}

// Authorize decides whether role may perform op. It never touches the
// store, so callers run it before any read or write.
func Authorize(op Operation, role string) error {
	r, ok := policy[op]
	if !ok {
		return &ForbiddenError{Op: op, Message: fmt.Sprintf("Unknown operation %q.", op)}
	}
	switch role {
	case models.RoleAdmin:
		return nil
	case models.RoleMember:
		if !r.adminOnly {
			return nil
		}
		return &ForbiddenError{Op: op, Message: "Only admins can " + r.action + "."}
	default:
		return &ForbiddenError{Op: op, Message: fmt.Sprintf("Role %q is not allowed to perform this action.", role)}
	}
}

// ValidRole reports whether role is one of the organization roles.
func ValidRole(role string) bool {
	return role == models.RoleAdmin || role == models.RoleMember
}
