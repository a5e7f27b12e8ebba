// Package store defines the organization-scoped persistence capabilities
// the console is built on. Adapters live in the memory and postgres
// subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/botfleet/internal/models"
)

var (
	// ErrNotFound is returned when an entity does not exist in the
	// requested organization. Entities of other organizations are reported
	// the same way.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write violates a uniqueness constraint
	// or a compare-and-set guard.
	ErrConflict = errors.New("conflict")
)

// ActivityQuery filters ListActivity. Zero values mean "no filter";
// Limit <= 0 returns every matching event.
type ActivityQuery struct {
	OrgID         uuid.UUID
	EventType     string
	MetadataKey   string
	MetadataValue string
	Limit         int
}

// Tx is the full set of store operations. It is satisfied both by a Store
// and by the transactional view handed to InTx callbacks.
type Tx interface {
	GetOrg(ctx context.Context, orgID uuid.UUID) (*models.Organization, error)
	MarkOnboarded(ctx context.Context, orgID uuid.UUID, at time.Time) error

	CreateBot(ctx context.Context, b *models.Bot) error
	GetBot(ctx context.Context, orgID uuid.UUID, name string) (*models.Bot, error)
	// LockBot reads a bot and holds it against concurrent writers until the
	// surrounding transaction ends.
	LockBot(ctx context.Context, orgID uuid.UUID, name string) (*models.Bot, error)
	ListBots(ctx context.Context, orgID uuid.UUID) ([]models.Bot, error)
	SetBotEnabled(ctx context.Context, orgID uuid.UUID, name string, enabled bool) error

	// GetPrompt returns the organization's prompt for agentName, falling
	// back to the global default.
	GetPrompt(ctx context.Context, orgID uuid.UUID, agentName string) (*models.Prompt, error)
	CreatePrompt(ctx context.Context, p *models.Prompt) error
	LockPrompt(ctx context.Context, promptID uuid.UUID) error
	SetPromptText(ctx context.Context, promptID uuid.UUID, text string, at time.Time) error
	CountPromptVersions(ctx context.Context, promptID uuid.UUID) (int, error)
	AppendPromptVersion(ctx context.Context, v *models.PromptVersion) error
	ListPromptVersions(ctx context.Context, promptID uuid.UUID) ([]models.PromptVersion, error)

	CreateProposal(ctx context.Context, p *models.Proposal) error
	GetProposal(ctx context.Context, orgID, id uuid.UUID) (*models.Proposal, error)
	ListProposals(ctx context.Context, orgID uuid.UUID, status string) ([]models.Proposal, error)
	// ResolveProposal moves a pending proposal to status. It returns
	// ErrConflict when the proposal is no longer pending.
	ResolveProposal(ctx context.Context, orgID, id uuid.UUID, status string, resolvedBy uuid.UUID, note string, at time.Time) error

	CreateSwarm(ctx context.Context, s *models.Swarm) error
	GetSwarm(ctx context.Context, orgID uuid.UUID, name string) (*models.Swarm, error)
	ListSwarms(ctx context.Context, orgID uuid.UUID) ([]models.Swarm, error)
	AddSwarmBot(ctx context.Context, swarmID uuid.UUID, botName string) (bool, error)
	RemoveSwarmBot(ctx context.Context, swarmID uuid.UUID, botName string) (bool, error)
	DeleteSwarm(ctx context.Context, orgID, swarmID uuid.UUID) error

	CreateWebhook(ctx context.Context, w *models.WebhookEndpoint) error
	// GetWebhook includes the secret; it is meant for delivery only.
	GetWebhook(ctx context.Context, id uuid.UUID) (*models.WebhookEndpoint, error)
	ListWebhooks(ctx context.Context, orgID uuid.UUID) ([]models.WebhookEndpoint, error)
	ListWebhooksForEvent(ctx context.Context, orgID uuid.UUID, event string) ([]models.WebhookEndpoint, error)
	DeleteWebhook(ctx context.Context, orgID, id uuid.UUID) error
	RecordWebhookDelivery(ctx context.Context, d *models.WebhookDelivery) error

	CreateInvitation(ctx context.Context, inv *models.Invitation) error

	GetRepo(ctx context.Context, orgID uuid.UUID, fullName string) (*models.Repo, error)
	CreateScanRun(ctx context.Context, run *models.ScanRun) error
	ListScanRuns(ctx context.Context, orgID uuid.UUID, repoName string, limit int) ([]models.ScanRun, error)

	AppendActivity(ctx context.Context, ev *models.ActivityEvent) error
	ListActivity(ctx context.Context, q ActivityQuery) ([]models.ActivityEvent, error)

	OrgStats(ctx context.Context, orgID uuid.UUID) (*models.OrgStats, error)
}

// Store is a Tx that can also open transactions. If fn returns an error
// every write made through its Tx is discarded.
type Store interface {
	Tx
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}
