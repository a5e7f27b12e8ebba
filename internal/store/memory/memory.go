// Package memory is an in-process store.Store. The API server falls back
// to it when no database is configured, and tests use it as their store.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/botfleet/internal/models"
	"github.com/nikhilbhutani/botfleet/internal/store"
)

type state struct {
	orgs        map[uuid.UUID]models.Organization
	bots        map[uuid.UUID]models.Bot
	prompts     map[uuid.UUID]models.Prompt
	versions    []models.PromptVersion
	proposals   map[uuid.UUID]models.Proposal
	swarms      map[uuid.UUID]models.Swarm
	webhooks    map[uuid.UUID]models.WebhookEndpoint
	deliveries  []models.WebhookDelivery
	invitations []models.Invitation
	repos       map[uuid.UUID]models.Repo
	scans       []models.ScanRun
	activity    []models.ActivityEvent
	lastEventID int64
}

func newState() *state {
	return &state{
		orgs:      make(map[uuid.UUID]models.Organization),
		bots:      make(map[uuid.UUID]models.Bot),
		prompts:   make(map[uuid.UUID]models.Prompt),
		proposals: make(map[uuid.UUID]models.Proposal),
		swarms:    make(map[uuid.UUID]models.Swarm),
		webhooks:  make(map[uuid.UUID]models.WebhookEndpoint),
		repos:     make(map[uuid.UUID]models.Repo),
	}
}

// clone copies every table. Slices held inside entities are never mutated
// in place, so copying the entity values is enough.
func (s *state) clone() *state {
	return &state{
		orgs:        maps.Clone(s.orgs),
		bots:        maps.Clone(s.bots),
		prompts:     maps.Clone(s.prompts),
		versions:    slices.Clone(s.versions),
		proposals:   maps.Clone(s.proposals),
		swarms:      maps.Clone(s.swarms),
		webhooks:    maps.Clone(s.webhooks),
		deliveries:  slices.Clone(s.deliveries),
		invitations: slices.Clone(s.invitations),
		repos:       maps.Clone(s.repos),
		scans:       slices.Clone(s.scans),
		activity:    slices.Clone(s.activity),
		lastEventID: s.lastEventID,
	}
}

// Store serializes every call behind one mutex. InTx holds the mutex for
// the whole callback and restores a snapshot if the callback fails.
type Store struct {
	view

	mu  sync.Mutex
	st  *state
	Now func() time.Time
}

func New() *Store {
	s := &Store{st: newState(), Now: time.Now}
	s.view = view{s: s}
	return s
}

var _ store.Store = (*Store)(nil)

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(&view{s: s, inTx: true}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// AddOrg registers an organization. The GitHub installation flow owns
// this in production.
func (s *Store) AddOrg(id uuid.UUID, name string) models.Organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now().UTC()
	org := models.Organization{ID: id, Name: name, Slug: name, CreatedAt: now, UpdatedAt: now}
	s.st.orgs[id] = org
	return org
}

// AddRepo connects a repository to an organization.
func (s *Store) AddRepo(orgID uuid.UUID, fullName string) models.Repo {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := models.Repo{ID: uuid.New(), OrgID: orgID, FullName: fullName, DefaultBranch: "main", CreatedAt: s.Now().UTC()}
	s.st.repos[r.ID] = r
	return r
}

// Deliveries returns recorded webhook deliveries, oldest first.
func (s *Store) Deliveries() []models.WebhookDelivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.deliveries)
}

// Invitations returns every stored invitation, oldest first.
func (s *Store) Invitations() []models.Invitation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.invitations)
}

type view struct {
	s    *Store
	inTx bool
}

func (v *view) lock() func() {
	if v.inTx {
		return func() {}
	}
	v.s.mu.Lock()
	return v.s.mu.Unlock
}

func (v *view) now() time.Time { return v.s.Now().UTC() }

func (v *view) GetOrg(_ context.Context, orgID uuid.UUID) (*models.Organization, error) {
	defer v.lock()()
	org, ok := v.s.st.orgs[orgID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &org, nil
}

func (v *view) MarkOnboarded(_ context.Context, orgID uuid.UUID, at time.Time) error {
	defer v.lock()()
	org, ok := v.s.st.orgs[orgID]
	if !ok {
		return store.ErrNotFound
	}
	org.OnboardedAt = &at
	org.UpdatedAt = at
	v.s.st.orgs[orgID] = org
	return nil
}

func (v *view) CreateBot(_ context.Context, b *models.Bot) error {
	defer v.lock()()
	for _, existing := range v.s.st.bots {
		if existing.OrgID == b.OrgID && existing.Name == b.Name {
			return store.ErrConflict
		}
	}
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = v.now()
	}
	b.UpdatedAt = b.CreatedAt
	b.FileExtensions = slices.Clone(b.FileExtensions)
	v.s.st.bots[b.ID] = *b
	return nil
}

func (v *view) findBot(orgID uuid.UUID, name string) (models.Bot, bool) {
	for _, b := range v.s.st.bots {
		if b.OrgID == orgID && b.Name == name {
			return b, true
		}
	}
	return models.Bot{}, false
}

func (v *view) GetBot(_ context.Context, orgID uuid.UUID, name string) (*models.Bot, error) {
	defer v.lock()()
	b, ok := v.findBot(orgID, name)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &b, nil
}

// LockBot is GetBot: the store mutex already serializes transactions.
func (v *view) LockBot(ctx context.Context, orgID uuid.UUID, name string) (*models.Bot, error) {
	return v.GetBot(ctx, orgID, name)
}

func (v *view) ListBots(_ context.Context, orgID uuid.UUID) ([]models.Bot, error) {
	defer v.lock()()
	var bots []models.Bot
	for _, b := range v.s.st.bots {
		if b.OrgID == orgID {
			bots = append(bots, b)
		}
	}
	sort.Slice(bots, func(i, j int) bool { return bots[i].Name < bots[j].Name })
	return bots, nil
}

func (v *view) SetBotEnabled(_ context.Context, orgID uuid.UUID, name string, enabled bool) error {
	defer v.lock()()
	b, ok := v.findBot(orgID, name)
	if !ok {
		return store.ErrNotFound
	}
	b.Enabled = enabled
	b.UpdatedAt = v.now()
	v.s.st.bots[b.ID] = b
	return nil
}

func (v *view) GetPrompt(_ context.Context, orgID uuid.UUID, agentName string) (*models.Prompt, error) {
	defer v.lock()()
	var global *models.Prompt
	for _, p := range v.s.st.prompts {
		if p.AgentName != agentName {
			continue
		}
		if p.OrgID != nil && *p.OrgID == orgID {
			return &p, nil
		}
		if p.OrgID == nil {
			g := p
			global = &g
		}
	}
	if global == nil {
		return nil, store.ErrNotFound
	}
	return global, nil
}

func (v *view) CreatePrompt(_ context.Context, p *models.Prompt) error {
	defer v.lock()()
	for _, existing := range v.s.st.prompts {
		if existing.AgentName == p.AgentName && sameScope(existing.OrgID, p.OrgID) {
			return store.ErrConflict
		}
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = v.now()
	}
	p.UpdatedAt = p.CreatedAt
	v.s.st.prompts[p.ID] = *p
	return nil
}

func sameScope(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (v *view) LockPrompt(_ context.Context, promptID uuid.UUID) error {
	defer v.lock()()
	if _, ok := v.s.st.prompts[promptID]; !ok {
		return store.ErrNotFound
	}
	return nil
}

func (v *view) SetPromptText(_ context.Context, promptID uuid.UUID, text string, at time.Time) error {
	defer v.lock()()
	p, ok := v.s.st.prompts[promptID]
	if !ok {
		return store.ErrNotFound
	}
	p.PromptText = text
	p.UpdatedAt = at
	v.s.st.prompts[promptID] = p
	return nil
}

func (v *view) CountPromptVersions(_ context.Context, promptID uuid.UUID) (int, error) {
	defer v.lock()()
	n := 0
	for _, pv := range v.s.st.versions {
		if pv.PromptID == promptID {
			n++
		}
	}
	return n, nil
}

func (v *view) AppendPromptVersion(_ context.Context, pv *models.PromptVersion) error {
	defer v.lock()()
	for _, existing := range v.s.st.versions {
		if existing.PromptID == pv.PromptID && existing.VersionNumber == pv.VersionNumber {
			return store.ErrConflict
		}
	}
	if pv.ID == uuid.Nil {
		pv.ID = uuid.New()
	}
	if pv.CreatedAt.IsZero() {
		pv.CreatedAt = v.now()
	}
	v.s.st.versions = append(v.s.st.versions, *pv)
	return nil
}

func (v *view) ListPromptVersions(_ context.Context, promptID uuid.UUID) ([]models.PromptVersion, error) {
	defer v.lock()()
	var out []models.PromptVersion
	for _, pv := range v.s.st.versions {
		if pv.PromptID == promptID {
			out = append(out, pv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber > out[j].VersionNumber })
	return out, nil
}

func (v *view) CreateProposal(_ context.Context, p *models.Proposal) error {
	defer v.lock()()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = models.ProposalPending
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = v.now()
	}
	v.s.st.proposals[p.ID] = *p
	return nil
}

func (v *view) GetProposal(_ context.Context, orgID, id uuid.UUID) (*models.Proposal, error) {
	defer v.lock()()
	p, ok := v.s.st.proposals[id]
	if !ok || p.OrgID != orgID {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (v *view) ListProposals(_ context.Context, orgID uuid.UUID, status string) ([]models.Proposal, error) {
	defer v.lock()()
	var out []models.Proposal
	for _, p := range v.s.st.proposals {
		if p.OrgID != orgID || (status != "" && p.Status != status) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (v *view) ResolveProposal(_ context.Context, orgID, id uuid.UUID, status string, resolvedBy uuid.UUID, note string, at time.Time) error {
	defer v.lock()()
	p, ok := v.s.st.proposals[id]
	if !ok || p.OrgID != orgID {
		return store.ErrNotFound
	}
	if p.Status != models.ProposalPending {
		return store.ErrConflict
	}
	p.Status = status
	p.ResolvedBy = &resolvedBy
	p.ResolutionNote = note
	p.ResolvedAt = &at
	v.s.st.proposals[id] = p
	return nil
}

func (v *view) CreateSwarm(_ context.Context, sw *models.Swarm) error {
	defer v.lock()()
	for _, existing := range v.s.st.swarms {
		if existing.OrgID == sw.OrgID && existing.Name == sw.Name {
			return store.ErrConflict
		}
	}
	if sw.ID == uuid.Nil {
		sw.ID = uuid.New()
	}
	if sw.CreatedAt.IsZero() {
		sw.CreatedAt = v.now()
	}
	sw.BotNames = nil
	v.s.st.swarms[sw.ID] = *sw
	return nil
}

func (v *view) GetSwarm(_ context.Context, orgID uuid.UUID, name string) (*models.Swarm, error) {
	defer v.lock()()
	for _, sw := range v.s.st.swarms {
		if sw.OrgID == orgID && sw.Name == name {
			sw.BotNames = slices.Clone(sw.BotNames)
			return &sw, nil
		}
	}
	return nil, store.ErrNotFound
}

func (v *view) ListSwarms(_ context.Context, orgID uuid.UUID) ([]models.Swarm, error) {
	defer v.lock()()
	var out []models.Swarm
	for _, sw := range v.s.st.swarms {
		if sw.OrgID == orgID {
			sw.BotNames = slices.Clone(sw.BotNames)
			out = append(out, sw)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (v *view) AddSwarmBot(_ context.Context, swarmID uuid.UUID, botName string) (bool, error) {
	defer v.lock()()
	sw, ok := v.s.st.swarms[swarmID]
	if !ok {
		return false, store.ErrNotFound
	}
	if slices.Contains(sw.BotNames, botName) {
		return false, nil
	}
	names := append(slices.Clone(sw.BotNames), botName)
	sort.Strings(names)
	sw.BotNames = names
	v.s.st.swarms[swarmID] = sw
	return true, nil
}

func (v *view) RemoveSwarmBot(_ context.Context, swarmID uuid.UUID, botName string) (bool, error) {
	defer v.lock()()
	sw, ok := v.s.st.swarms[swarmID]
	if !ok {
		return false, store.ErrNotFound
	}
	idx := slices.Index(sw.BotNames, botName)
	if idx < 0 {
		return false, nil
	}
	sw.BotNames = slices.Delete(slices.Clone(sw.BotNames), idx, idx+1)
	v.s.st.swarms[swarmID] = sw
	return true, nil
}

func (v *view) DeleteSwarm(_ context.Context, orgID, swarmID uuid.UUID) error {
	defer v.lock()()
	sw, ok := v.s.st.swarms[swarmID]
	if !ok || sw.OrgID != orgID {
		return store.ErrNotFound
	}
	delete(v.s.st.swarms, swarmID)
	return nil
}

func (v *view) CreateWebhook(_ context.Context, w *models.WebhookEndpoint) error {
	defer v.lock()()
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = v.now()
	}
	w.Events = slices.Clone(w.Events)
	v.s.st.webhooks[w.ID] = *w
	return nil
}

func (v *view) GetWebhook(_ context.Context, id uuid.UUID) (*models.WebhookEndpoint, error) {
	defer v.lock()()
	w, ok := v.s.st.webhooks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &w, nil
}

func (v *view) listWebhooks(orgID uuid.UUID, keep func(models.WebhookEndpoint) bool) []models.WebhookEndpoint {
	var out []models.WebhookEndpoint
	for _, w := range v.s.st.webhooks {
		if w.OrgID == orgID && keep(w) {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (v *view) ListWebhooks(_ context.Context, orgID uuid.UUID) ([]models.WebhookEndpoint, error) {
	defer v.lock()()
	out := v.listWebhooks(orgID, func(models.WebhookEndpoint) bool { return true })
	for i := range out {
		out[i].Secret = ""
	}
	return out, nil
}

func (v *view) ListWebhooksForEvent(_ context.Context, orgID uuid.UUID, event string) ([]models.WebhookEndpoint, error) {
	defer v.lock()()
	return v.listWebhooks(orgID, func(w models.WebhookEndpoint) bool {
		return w.Active && slices.Contains(w.Events, event)
	}), nil
}

func (v *view) DeleteWebhook(_ context.Context, orgID, id uuid.UUID) error {
	defer v.lock()()
	w, ok := v.s.st.webhooks[id]
	if !ok || w.OrgID != orgID {
		return store.ErrNotFound
	}
	delete(v.s.st.webhooks, id)
	return nil
}

func (v *view) RecordWebhookDelivery(_ context.Context, d *models.WebhookDelivery) error {
	defer v.lock()()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = v.now()
	}
	v.s.st.deliveries = append(v.s.st.deliveries, *d)
	return nil
}

func (v *view) CreateInvitation(_ context.Context, inv *models.Invitation) error {
	defer v.lock()()
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = v.now()
	}
	v.s.st.invitations = append(v.s.st.invitations, *inv)
	return nil
}

func (v *view) GetRepo(_ context.Context, orgID uuid.UUID, fullName string) (*models.Repo, error) {
	defer v.lock()()
	for _, r := range v.s.st.repos {
		if r.OrgID == orgID && r.FullName == fullName {
			return &r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (v *view) CreateScanRun(_ context.Context, run *models.ScanRun) error {
	defer v.lock()()
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	run.BotResults = slices.Clone(run.BotResults)
	v.s.st.scans = append(v.s.st.scans, *run)
	return nil
}

func (v *view) ListScanRuns(_ context.Context, orgID uuid.UUID, repoName string, limit int) ([]models.ScanRun, error) {
	defer v.lock()()
	var out []models.ScanRun
	for i := len(v.s.st.scans) - 1; i >= 0; i-- {
		run := v.s.st.scans[i]
		if run.OrgID != orgID || (repoName != "" && run.RepoName != repoName) {
			continue
		}
		out = append(out, run)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (v *view) AppendActivity(_ context.Context, ev *models.ActivityEvent) error {
	defer v.lock()()
	v.s.st.lastEventID++
	ev.ID = v.s.st.lastEventID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = v.now()
	}
	ev.Metadata = maps.Clone(ev.Metadata)
	v.s.st.activity = append(v.s.st.activity, *ev)
	return nil
}

func (v *view) ListActivity(_ context.Context, q store.ActivityQuery) ([]models.ActivityEvent, error) {
	defer v.lock()()
	var out []models.ActivityEvent
	for i := len(v.s.st.activity) - 1; i >= 0; i-- {
		ev := v.s.st.activity[i]
		if ev.OrgID != q.OrgID {
			continue
		}
		if q.EventType != "" && ev.EventType != q.EventType {
			continue
		}
		if q.MetadataKey != "" && ev.MetaString(q.MetadataKey) != q.MetadataValue {
			continue
		}
		out = append(out, ev)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (v *view) OrgStats(_ context.Context, orgID uuid.UUID) (*models.OrgStats, error) {
	defer v.lock()()
	var st models.OrgStats
	for _, b := range v.s.st.bots {
		if b.OrgID != orgID {
			continue
		}
		st.Bots++
		if b.Enabled {
			st.EnabledBots++
		}
	}
	for _, sw := range v.s.st.swarms {
		if sw.OrgID == orgID {
			st.Swarms++
		}
	}
	for _, p := range v.s.st.proposals {
		if p.OrgID == orgID && p.Status == models.ProposalPending {
			st.PendingProposals++
		}
	}
	for _, w := range v.s.st.webhooks {
		if w.OrgID == orgID {
			st.Webhooks++
		}
	}
	for _, run := range v.s.st.scans {
		if run.OrgID != orgID {
			continue
		}
		st.Scans++
		st.Findings += run.Findings
		if st.LastScanAt == nil || run.CompletedAt.After(*st.LastScanAt) {
			at := run.CompletedAt
			st.LastScanAt = &at
		}
	}
	return &st, nil
}
