package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nikhilbhutani/botfleet/internal/models"
	"github.com/nikhilbhutani/botfleet/internal/store"
)

// Members are aggregated in name order so swarm output is stable.
const swarmSelect = `SELECT s.id, s.org_id, s.name, s.description, s.created_by, s.created_at,
	COALESCE(array_agg(sb.bot_name ORDER BY sb.bot_name) FILTER (WHERE sb.bot_name IS NOT NULL), '{}')
	FROM swarms s LEFT JOIN swarm_bots sb ON sb.swarm_id = s.id`

func scanSwarm(row pgx.Row) (*models.Swarm, error) {
	var sw models.Swarm
	if err := row.Scan(&sw.ID, &sw.OrgID, &sw.Name, &sw.Description, &sw.CreatedBy, &sw.CreatedAt, &sw.BotNames); err != nil {
		return nil, err
	}
	return &sw, nil
}

func (s *queries) CreateSwarm(ctx context.Context, sw *models.Swarm) error {
	err := s.q.QueryRow(ctx,
		`INSERT INTO swarms (org_id, name, description, created_by) VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		sw.OrgID, sw.Name, sw.Description, sw.CreatedBy,
	).Scan(&sw.ID, &sw.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert swarm: %w", mapErr(err))
	}
	sw.BotNames = nil
	return nil
}

func (s *queries) GetSwarm(ctx context.Context, orgID uuid.UUID, name string) (*models.Swarm, error) {
	sw, err := scanSwarm(s.q.QueryRow(ctx,
		swarmSelect+` WHERE s.org_id = $1 AND s.name = $2 GROUP BY s.id`, orgID, name))
	if err != nil {
		return nil, fmt.Errorf("get swarm: %w", mapErr(err))
	}
	return sw, nil
}

func (s *queries) ListSwarms(ctx context.Context, orgID uuid.UUID) ([]models.Swarm, error) {
	rows, err := s.q.Query(ctx, swarmSelect+` WHERE s.org_id = $1 GROUP BY s.id ORDER BY s.name`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list swarms: %w", err)
	}
	defer rows.Close()

	var swarms []models.Swarm
	for rows.Next() {
		sw, err := scanSwarm(rows)
		if err != nil {
			return nil, fmt.Errorf("scan swarm: %w", err)
		}
		swarms = append(swarms, *sw)
	}
	return swarms, rows.Err()
}

func (s *queries) AddSwarmBot(ctx context.Context, swarmID uuid.UUID, botName string) (bool, error) {
	tag, err := s.q.Exec(ctx,
		"INSERT INTO swarm_bots (swarm_id, bot_name) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		swarmID, botName)
	if err != nil {
		return false, fmt.Errorf("add swarm bot: %w", mapErr(err))
	}
	return tag.RowsAffected() == 1, nil
}

func (s *queries) RemoveSwarmBot(ctx context.Context, swarmID uuid.UUID, botName string) (bool, error) {
	tag, err := s.q.Exec(ctx,
		"DELETE FROM swarm_bots WHERE swarm_id = $1 AND bot_name = $2", swarmID, botName)
	if err != nil {
		return false, fmt.Errorf("remove swarm bot: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *queries) DeleteSwarm(ctx context.Context, orgID, swarmID uuid.UUID) error {
	tag, err := s.q.Exec(ctx, "DELETE FROM swarms WHERE org_id = $1 AND id = $2", orgID, swarmID)
	if err != nil {
		return fmt.Errorf("delete swarm: %w", err)
	}
	return affectedOrNotFound(tag)
}

func (s *queries) CreateWebhook(ctx context.Context, w *models.WebhookEndpoint) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	events, _ := json.Marshal(nonNilStrings(w.Events))
	err := s.q.QueryRow(ctx,
		`INSERT INTO webhook_endpoints (id, org_id, url, events, secret, active, description, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING created_at`,
		w.ID, w.OrgID, w.URL, events, w.Secret, w.Active, w.Description, w.CreatedBy,
	).Scan(&w.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert webhook: %w", mapErr(err))
	}
	return nil
}

func (s *queries) GetWebhook(ctx context.Context, id uuid.UUID) (*models.WebhookEndpoint, error) {
	var w models.WebhookEndpoint
	err := s.q.QueryRow(ctx,
		`SELECT id, org_id, url, events, secret, active, description, created_by, created_at
		 FROM webhook_endpoints WHERE id = $1`, id,
	).Scan(&w.ID, &w.OrgID, &w.URL, &w.Events, &w.Secret, &w.Active, &w.Description, &w.CreatedBy, &w.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get webhook: %w", mapErr(err))
	}
	return &w, nil
}

// listWebhooks never selects the secret column.
func (s *queries) listWebhooks(ctx context.Context, where string, args ...any) ([]models.WebhookEndpoint, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, org_id, url, events, active, description, created_by, created_at
		 FROM webhook_endpoints WHERE `+where+` ORDER BY created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	var hooks []models.WebhookEndpoint
	for rows.Next() {
		var w models.WebhookEndpoint
		if err := rows.Scan(&w.ID, &w.OrgID, &w.URL, &w.Events, &w.Active, &w.Description, &w.CreatedBy, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		hooks = append(hooks, w)
	}
	return hooks, rows.Err()
}

func (s *queries) ListWebhooks(ctx context.Context, orgID uuid.UUID) ([]models.WebhookEndpoint, error) {
	return s.listWebhooks(ctx, "org_id = $1", orgID)
}

func (s *queries) ListWebhooksForEvent(ctx context.Context, orgID uuid.UUID, event string) ([]models.WebhookEndpoint, error) {
	eventJSON, _ := json.Marshal([]string{event})
	return s.listWebhooks(ctx, "org_id = $1 AND active = true AND events @> $2::jsonb", orgID, string(eventJSON))
}

func (s *queries) DeleteWebhook(ctx context.Context, orgID, id uuid.UUID) error {
	tag, err := s.q.Exec(ctx, "DELETE FROM webhook_endpoints WHERE org_id = $1 AND id = $2", orgID, id)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return affectedOrNotFound(tag)
}

func (s *queries) RecordWebhookDelivery(ctx context.Context, d *models.WebhookDelivery) error {
	payload := d.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	err := s.q.QueryRow(ctx,
		`INSERT INTO webhook_deliveries (webhook_id, event, payload, response_status, attempts, error, delivered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		d.WebhookID, d.Event, []byte(payload), d.ResponseStatus, d.Attempts, d.Error, d.DeliveredAt,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert webhook delivery: %w", mapErr(err))
	}
	return nil
}

func (s *queries) GetRepo(ctx context.Context, orgID uuid.UUID, fullName string) (*models.Repo, error) {
	var r models.Repo
	err := s.q.QueryRow(ctx,
		`SELECT id, org_id, full_name, default_branch, created_at
		 FROM repos WHERE org_id = $1 AND full_name = $2`, orgID, fullName,
	).Scan(&r.ID, &r.OrgID, &r.FullName, &r.DefaultBranch, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get repo: %w", mapErr(err))
	}
	return &r, nil
}

func (s *queries) CreateScanRun(ctx context.Context, run *models.ScanRun) error {
	results, err := json.Marshal(run.BotResults)
	if err != nil {
		return fmt.Errorf("marshal bot results: %w", err)
	}
	if run.BotResults == nil {
		results = []byte("[]")
	}
	err = s.q.QueryRow(ctx,
		`INSERT INTO scan_runs (org_id, repo_name, status, bot_results, findings, duration_ms, error,
		                        triggered_by, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		run.OrgID, run.RepoName, run.Status, results, run.Findings, run.DurationMs, run.Error,
		run.TriggeredBy, run.StartedAt, run.CompletedAt,
	).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("insert scan run: %w", mapErr(err))
	}
	return nil
}

func (s *queries) ListScanRuns(ctx context.Context, orgID uuid.UUID, repoName string, limit int) ([]models.ScanRun, error) {
	// LIMIT NULL is no limit.
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.q.Query(ctx,
		`SELECT id, org_id, repo_name, status, bot_results, findings, duration_ms, error,
		        triggered_by, started_at, completed_at
		 FROM scan_runs
		 WHERE org_id = $1 AND ($2::text = '' OR repo_name = $2)
		 ORDER BY completed_at DESC
		 LIMIT $3`, orgID, repoName, lim)
	if err != nil {
		return nil, fmt.Errorf("list scan runs: %w", err)
	}
	defer rows.Close()

	var runs []models.ScanRun
	for rows.Next() {
		var r models.ScanRun
		if err := rows.Scan(&r.ID, &r.OrgID, &r.RepoName, &r.Status, &r.BotResults, &r.Findings, &r.DurationMs,
			&r.Error, &r.TriggeredBy, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *queries) AppendActivity(ctx context.Context, ev *models.ActivityEvent) error {
	meta := ev.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal activity metadata: %w", err)
	}
	err = s.q.QueryRow(ctx,
		`INSERT INTO activity_events (org_id, event_type, summary, metadata, actor_user_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		ev.OrgID, ev.EventType, ev.Summary, metaJSON, ev.ActorUserID,
	).Scan(&ev.ID, &ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert activity event: %w", mapErr(err))
	}
	return nil
}

func (s *queries) ListActivity(ctx context.Context, q store.ActivityQuery) ([]models.ActivityEvent, error) {
	var b strings.Builder
	b.WriteString(`SELECT id, org_id, event_type, summary, metadata, actor_user_id, created_at
		FROM activity_events WHERE org_id = $1`)
	args := []any{q.OrgID}
	argIdx := 2

	if q.EventType != "" {
		fmt.Fprintf(&b, " AND event_type = $%d", argIdx)
		args = append(args, q.EventType)
		argIdx++
	}
	if q.MetadataKey != "" {
		fmt.Fprintf(&b, " AND metadata->>$%d = $%d", argIdx, argIdx+1)
		args = append(args, q.MetadataKey, q.MetadataValue)
		argIdx += 2
	}
	b.WriteString(" ORDER BY id DESC")
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT $%d", argIdx)
		args = append(args, q.Limit)
	}

	rows, err := s.q.Query(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var events []models.ActivityEvent
	for rows.Next() {
		var ev models.ActivityEvent
		if err := rows.Scan(&ev.ID, &ev.OrgID, &ev.EventType, &ev.Summary, &ev.Metadata, &ev.ActorUserID, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *queries) OrgStats(ctx context.Context, orgID uuid.UUID) (*models.OrgStats, error) {
	var st models.OrgStats
	err := s.q.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM bots WHERE org_id = $1),
			(SELECT COUNT(*) FROM bots WHERE org_id = $1 AND enabled),
			(SELECT COUNT(*) FROM swarms WHERE org_id = $1),
			(SELECT COUNT(*) FROM proposals WHERE org_id = $1 AND status = 'pending'),
			(SELECT COUNT(*) FROM webhook_endpoints WHERE org_id = $1),
			(SELECT COUNT(*) FROM scan_runs WHERE org_id = $1),
			(SELECT COALESCE(SUM(findings), 0) FROM scan_runs WHERE org_id = $1),
			(SELECT MAX(completed_at) FROM scan_runs WHERE org_id = $1)`, orgID,
	).Scan(&st.Bots, &st.EnabledBots, &st.Swarms, &st.PendingProposals, &st.Webhooks,
		&st.Scans, &st.Findings, &st.LastScanAt)
	if err != nil {
		return nil, fmt.Errorf("org stats: %w", err)
	}
	return &st, nil
}
