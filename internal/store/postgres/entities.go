package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nikhilbhutani/botfleet/internal/models"
	"github.com/nikhilbhutani/botfleet/internal/store"
)

func (s *queries) GetOrg(ctx context.Context, orgID uuid.UUID) (*models.Organization, error) {
	var o models.Organization
	err := s.q.QueryRow(ctx,
		`SELECT id, name, slug, settings, onboarded_at, created_at, updated_at
		 FROM organizations WHERE id = $1`, orgID,
	).Scan(&o.ID, &o.Name, &o.Slug, &o.Settings, &o.OnboardedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", mapErr(err))
	}
	return &o, nil
}

func (s *queries) MarkOnboarded(ctx context.Context, orgID uuid.UUID, at time.Time) error {
	tag, err := s.q.Exec(ctx,
		"UPDATE organizations SET onboarded_at = $2, updated_at = $2 WHERE id = $1", orgID, at)
	if err != nil {
		return fmt.Errorf("mark onboarded: %w", mapErr(err))
	}
	return affectedOrNotFound(tag)
}

const botColumns = `id, org_id, name, description, category, file_extensions, enabled, created_by, created_at, updated_at`

func scanBot(row pgx.Row) (*models.Bot, error) {
	var b models.Bot
	err := row.Scan(&b.ID, &b.OrgID, &b.Name, &b.Description, &b.Category, &b.FileExtensions,
		&b.Enabled, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *queries) CreateBot(ctx context.Context, b *models.Bot) error {
	exts, _ := json.Marshal(nonNilStrings(b.FileExtensions))
	err := s.q.QueryRow(ctx,
		`INSERT INTO bots (org_id, name, description, category, file_extensions, enabled, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		b.OrgID, b.Name, b.Description, b.Category, exts, b.Enabled, b.CreatedBy,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert bot: %w", mapErr(err))
	}
	return nil
}

func (s *queries) GetBot(ctx context.Context, orgID uuid.UUID, name string) (*models.Bot, error) {
	b, err := scanBot(s.q.QueryRow(ctx,
		`SELECT `+botColumns+` FROM bots WHERE org_id = $1 AND name = $2`, orgID, name))
	if err != nil {
		return nil, fmt.Errorf("get bot: %w", mapErr(err))
	}
	return b, nil
}

func (s *queries) LockBot(ctx context.Context, orgID uuid.UUID, name string) (*models.Bot, error) {
	b, err := scanBot(s.q.QueryRow(ctx,
		`SELECT `+botColumns+` FROM bots WHERE org_id = $1 AND name = $2 FOR UPDATE`, orgID, name))
	if err != nil {
		return nil, fmt.Errorf("lock bot: %w", mapErr(err))
	}
	return b, nil
}

func (s *queries) ListBots(ctx context.Context, orgID uuid.UUID) ([]models.Bot, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+botColumns+` FROM bots WHERE org_id = $1 ORDER BY name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list bots: %w", err)
	}
	defer rows.Close()

	var bots []models.Bot
	for rows.Next() {
		b, err := scanBot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bot: %w", err)
		}
		bots = append(bots, *b)
	}
	return bots, rows.Err()
}

func (s *queries) SetBotEnabled(ctx context.Context, orgID uuid.UUID, name string, enabled bool) error {
	tag, err := s.q.Exec(ctx,
		"UPDATE bots SET enabled = $3, updated_at = now() WHERE org_id = $1 AND name = $2",
		orgID, name, enabled)
	if err != nil {
		return fmt.Errorf("update bot enabled: %w", mapErr(err))
	}
	return affectedOrNotFound(tag)
}

const promptColumns = `id, org_id, agent_name, prompt_text, created_at, updated_at`

func (s *queries) GetPrompt(ctx context.Context, orgID uuid.UUID, agentName string) (*models.Prompt, error) {
	var p models.Prompt
	err := s.q.QueryRow(ctx,
		`SELECT `+promptColumns+` FROM prompts
		 WHERE agent_name = $2 AND (org_id = $1 OR org_id IS NULL)
		 ORDER BY org_id NULLS LAST LIMIT 1`,
		orgID, agentName,
	).Scan(&p.ID, &p.OrgID, &p.AgentName, &p.PromptText, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get prompt: %w", mapErr(err))
	}
	return &p, nil
}

func (s *queries) CreatePrompt(ctx context.Context, p *models.Prompt) error {
	err := s.q.QueryRow(ctx,
		`INSERT INTO prompts (org_id, agent_name, prompt_text) VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		p.OrgID, p.AgentName, p.PromptText,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert prompt: %w", mapErr(err))
	}
	return nil
}

func (s *queries) LockPrompt(ctx context.Context, promptID uuid.UUID) error {
	var id uuid.UUID
	err := s.q.QueryRow(ctx, "SELECT id FROM prompts WHERE id = $1 FOR UPDATE", promptID).Scan(&id)
	if err != nil {
		return fmt.Errorf("lock prompt: %w", mapErr(err))
	}
	return nil
}

func (s *queries) SetPromptText(ctx context.Context, promptID uuid.UUID, text string, at time.Time) error {
	tag, err := s.q.Exec(ctx,
		"UPDATE prompts SET prompt_text = $2, updated_at = $3 WHERE id = $1", promptID, text, at)
	if err != nil {
		return fmt.Errorf("update prompt text: %w", mapErr(err))
	}
	return affectedOrNotFound(tag)
}

func (s *queries) CountPromptVersions(ctx context.Context, promptID uuid.UUID) (int, error) {
	var n int
	err := s.q.QueryRow(ctx, "SELECT COUNT(*) FROM prompt_versions WHERE prompt_id = $1", promptID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count prompt versions: %w", err)
	}
	return n, nil
}

func (s *queries) AppendPromptVersion(ctx context.Context, v *models.PromptVersion) error {
	err := s.q.QueryRow(ctx,
		`INSERT INTO prompt_versions (prompt_id, version_number, prompt_text, edited_by, reason)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		v.PromptID, v.VersionNumber, v.PromptText, v.EditedBy, v.Reason,
	).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert prompt version: %w", mapErr(err))
	}
	return nil
}

func (s *queries) ListPromptVersions(ctx context.Context, promptID uuid.UUID) ([]models.PromptVersion, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, prompt_id, version_number, prompt_text, edited_by, reason, created_at
		 FROM prompt_versions WHERE prompt_id = $1 ORDER BY version_number DESC`, promptID)
	if err != nil {
		return nil, fmt.Errorf("list prompt versions: %w", err)
	}
	defer rows.Close()

	var versions []models.PromptVersion
	for rows.Next() {
		var v models.PromptVersion
		if err := rows.Scan(&v.ID, &v.PromptID, &v.VersionNumber, &v.PromptText, &v.EditedBy, &v.Reason, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan prompt version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

const proposalColumns = `id, org_id, agent_name, current_prompt, proposed_prompt, reason, severity,
	status, resolved_by, resolution_note, created_at, resolved_at`

func scanProposal(row pgx.Row) (*models.Proposal, error) {
	var p models.Proposal
	err := row.Scan(&p.ID, &p.OrgID, &p.AgentName, &p.CurrentPrompt, &p.ProposedPrompt, &p.Reason,
		&p.Severity, &p.Status, &p.ResolvedBy, &p.ResolutionNote, &p.CreatedAt, &p.ResolvedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *queries) CreateProposal(ctx context.Context, p *models.Proposal) error {
	if p.Status == "" {
		p.Status = models.ProposalPending
	}
	err := s.q.QueryRow(ctx,
		`INSERT INTO proposals (org_id, agent_name, current_prompt, proposed_prompt, reason, severity, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		p.OrgID, p.AgentName, p.CurrentPrompt, p.ProposedPrompt, p.Reason, p.Severity, p.Status,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert proposal: %w", mapErr(err))
	}
	return nil
}

func (s *queries) GetProposal(ctx context.Context, orgID, id uuid.UUID) (*models.Proposal, error) {
	p, err := scanProposal(s.q.QueryRow(ctx,
		`SELECT `+proposalColumns+` FROM proposals WHERE org_id = $1 AND id = $2`, orgID, id))
	if err != nil {
		return nil, fmt.Errorf("get proposal: %w", mapErr(err))
	}
	return p, nil
}

func (s *queries) ListProposals(ctx context.Context, orgID uuid.UUID, status string) ([]models.Proposal, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+proposalColumns+` FROM proposals
		 WHERE org_id = $1 AND ($2::text = '' OR status = $2)
		 ORDER BY created_at DESC`, orgID, status)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	var proposals []models.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		proposals = append(proposals, *p)
	}
	return proposals, rows.Err()
}

func (s *queries) ResolveProposal(ctx context.Context, orgID, id uuid.UUID, status string, resolvedBy uuid.UUID, note string, at time.Time) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE proposals SET status = $3, resolved_by = $4, resolution_note = $5, resolved_at = $6
		 WHERE org_id = $1 AND id = $2 AND status = 'pending'`,
		orgID, id, status, resolvedBy, note, at)
	if err != nil {
		return fmt.Errorf("resolve proposal: %w", mapErr(err))
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	err = s.q.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM proposals WHERE org_id = $1 AND id = $2)", orgID, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check proposal: %w", err)
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

func (s *queries) CreateInvitation(ctx context.Context, inv *models.Invitation) error {
	err := s.q.QueryRow(ctx,
		`INSERT INTO invitations (org_id, github_login, role, invited_by, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		inv.OrgID, inv.GithubLogin, inv.Role, inv.InvitedBy, inv.ExpiresAt,
	).Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert invitation: %w", mapErr(err))
	}
	return nil
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
