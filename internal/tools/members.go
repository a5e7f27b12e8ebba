package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/nikhilbhutani/botfleet/internal/audit"
	"github.com/nikhilbhutani/botfleet/internal/auth"
	"github.com/nikhilbhutani/botfleet/internal/models"
	"github.com/nikhilbhutani/botfleet/internal/store"
	"github.com/nikhilbhutani/botfleet/internal/tenant"
)

// GitHub logins: alphanumerics and single inner hyphens, at most 39 characters.
var githubLoginPattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9]|-[A-Za-z0-9]){0,38}$`)

type inviteMemberArgs struct {
	GithubLogin string `json:"githubLogin"`
	Role        string `json:"role"`
}

func (a *inviteMemberArgs) validate() error {
	a.GithubLogin = strings.TrimPrefix(strings.TrimSpace(a.GithubLogin), "@")
	if !githubLoginPattern.MatchString(a.GithubLogin) || len(a.GithubLogin) > 39 {
		return invalid("githubLogin %q is not a valid GitHub username.", a.GithubLogin)
	}
	if !auth.ValidRole(a.Role) {
		return invalid("role must be %s or %s.", models.RoleAdmin, models.RoleMember)
	}
	return nil
}

var inviteMemberTool = spec[inviteMemberArgs]{
	name:        "inviteMember",
	description: "Invite a GitHub user to the organization as admin or member. Admins only.",
	params: []Param{
		{Name: "githubLogin", Type: "string", Required: true, Description: "GitHub username to invite."},
		{Name: "role", Type: "string", Required: true, Enum: []string{models.RoleAdmin, models.RoleMember}, Description: "Role to grant."},
	},
	op:   always[inviteMemberArgs](auth.OpInviteMember),
	exec: inviteMember,
}

func inviteMember(ctx context.Context, d *Dispatcher, actor tenant.Actor, a *inviteMemberArgs) (Result, error) {
	inv := &models.Invitation{
		OrgID:       actor.OrgID,
		GithubLogin: a.GithubLogin,
		Role:        a.Role,
		InvitedBy:   actor.UserID,
		ExpiresAt:   d.now().Add(d.deps.InviteTTL),
	}
	err := d.deps.Store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateInvitation(ctx, inv); err != nil {
			return err
		}
		_, err := audit.Record(ctx, tx, actor, audit.EventMemberInvited,
			fmt.Sprintf("Invited @%s as %s", inv.GithubLogin, inv.Role),
			map[string]any{"githubLogin": inv.GithubLogin, "role": inv.Role, "invitationId": inv.ID.String()})
		return err
	})
	if err != nil {
		return nil, err
	}
	return Result{
		"message":      fmt.Sprintf("Invited @%s as %s. The invitation expires %s.", inv.GithubLogin, inv.Role, inv.ExpiresAt.Format("Jan 2, 2006")),
		"invitationId": inv.ID,
		"githubLogin":  inv.GithubLogin,
		"role":         inv.Role,
		"expiresAt":    inv.ExpiresAt,
	}, nil
}
