package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/botfleet/internal/cache"
	"github.com/nikhilbhutani/botfleet/internal/models"
	"github.com/nikhilbhutani/botfleet/internal/scan"
	"github.com/nikhilbhutani/botfleet/internal/store"
	"github.com/nikhilbhutani/botfleet/internal/store/memory"
	"github.com/nikhilbhutani/botfleet/internal/tenant"
	"github.com/nikhilbhutani/botfleet/internal/webhook"
)

type fixture struct {
	d      *Dispatcher
	st     *memory.Store
	org    models.Organization
	admin  tenant.Actor
	member tenant.Actor
}

func newFixture(t *testing.T, deps Deps) *fixture {
	t.Helper()
	st := memory.New()
	org := st.AddOrg(uuid.New(), "acme")
	deps.Store = st
	return &fixture{
		d:      NewDispatcher(deps),
		st:     st,
		org:    org,
		admin:  tenant.Actor{OrgID: org.ID, UserID: uuid.New(), Role: models.RoleAdmin},
		member: tenant.Actor{OrgID: org.ID, UserID: uuid.New(), Role: models.RoleMember},
	}
}

func (f *fixture) call(t *testing.T, actor tenant.Actor, name string, args any) (Result, *Error) {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	res, err := f.d.Execute(context.Background(), actor, name, raw)
	if err == nil {
		return res, nil
	}
	var te *Error
	if !errors.As(err, &te) {
		t.Fatalf("%s returned %T, want *Error", name, err)
	}
	return nil, te
}

func (f *fixture) mustCall(t *testing.T, actor tenant.Actor, name string, args any) Result {
	t.Helper()
	res, te := f.call(t, actor, name, args)
	if te != nil {
		t.Fatalf("%s: %s (%s, cause %v)", name, te.Message, te.Kind, te.Err)
	}
	return res
}

func (f *fixture) activity(t *testing.T, eventType string) []models.ActivityEvent {
	t.Helper()
	events, err := f.st.ListActivity(context.Background(), store.ActivityQuery{OrgID: f.org.ID, EventType: eventType})
	if err != nil {
		t.Fatalf("ListActivity: %v", err)
	}
	return events
}

func (f *fixture) addProposal(t *testing.T, agent, proposed string) *models.Proposal {
	t.Helper()
	p := &models.Proposal{
		OrgID:          f.org.ID,
		AgentName:      agent,
		CurrentPrompt:  "old",
		ProposedPrompt: proposed,
		Reason:         "missed SQL injection",
		Severity:       "high",
		Status:         models.ProposalPending,
	}
	if err := f.st.CreateProposal(context.Background(), p); err != nil {
		t.Fatalf("CreateProposal: %v", err)
	}
	return p
}

func createBotArgsFor(name string) map[string]any {
	return map[string]any{
		"name":         name,
		"description":  "Checks lint",
		"category":     "quality",
		"systemPrompt": "Lint {{repo}} on {{branch}}",
	}
}

func TestPromotionScenario(t *testing.T) {
	f := newFixture(t, Deps{})
	f.mustCall(t, f.member, "createBot", createBotArgsFor("lint-bot"))

	res := f.mustCall(t, f.member, "promoteBot", map[string]any{"botName": "lint-bot"})
	if res["fromStatus"] != "draft" || res["toStatus"] != "testing" {
		t.Fatalf("first promote = %v -> %v", res["fromStatus"], res["toStatus"])
	}
	res = f.mustCall(t, f.member, "promoteBot", map[string]any{"botName": "lint-bot"})
	if res["toStatus"] != "active" || res["enabled"] != true {
		t.Fatalf("second promote = %v enabled=%v", res["toStatus"], res["enabled"])
	}

	_, te := f.call(t, f.member, "promoteBot", map[string]any{"botName": "lint-bot"})
	if te == nil || te.Kind != KindConflict {
		t.Fatalf("third promote err = %v, want conflict", te)
	}
	if te.Message != `Bot "lint-bot" is already active.` {
		t.Errorf("message = %q", te.Message)
	}

	if n := len(f.activity(t, "bot_promoted")); n != 2 {
		t.Errorf("bot_promoted events = %d, want 2", n)
	}

	list := f.mustCall(t, f.member, "listBots", nil)
	bots, _ := json.Marshal(list["bots"])
	if !strings.Contains(string(bots), `"status":"active"`) {
		t.Errorf("listBots does not show active: %s", bots)
	}
}

func TestPromoteUnknownBot(t *testing.T) {
	f := newFixture(t, Deps{})
	_, te := f.call(t, f.member, "promoteBot", map[string]any{"botName": "ghost"})
	if te == nil || te.Kind != KindNotFound {
		t.Fatalf("err = %v, want not_found", te)
	}
}

func TestApproveProposalUpdatesPromptAtomically(t *testing.T) {
	f := newFixture(t, Deps{})
	f.mustCall(t, f.admin, "createBot", createBotArgsFor("sec-bot"))
	p := f.addProposal(t, "sec-bot", "Check {{repo}} for injection")

	res := f.mustCall(t, f.admin, "approveProposal", map[string]any{"proposalId": p.ID.String()})
	if res["versionNumber"] != 2 {
		t.Fatalf("versionNumber = %v, want 2", res["versionNumber"])
	}

	got, err := f.st.GetProposal(context.Background(), f.org.ID, p.ID)
	if err != nil || got.Status != models.ProposalApproved || got.ResolvedBy == nil {
		t.Fatalf("proposal after approve = %+v, %v", got, err)
	}

	read := f.mustCall(t, f.member, "editSystemPrompt", map[string]any{"agentName": "sec-bot"})
	if read["prompt"] != "Check {{repo}} for injection" {
		t.Errorf("live prompt = %v", read["prompt"])
	}

	_, te := f.call(t, f.admin, "approveProposal", map[string]any{"proposalId": p.ID.String()})
	if te == nil || te.Kind != KindConflict || te.Message != "Proposal is already approved." {
		t.Fatalf("second approve = %+v", te)
	}
	_, te = f.call(t, f.admin, "rejectProposal", map[string]any{"proposalId": p.ID.String()})
	if te == nil || te.Kind != KindConflict {
		t.Fatalf("reject after approve = %+v", te)
	}
	if n := len(f.activity(t, "proposal.approved")); n != 1 {
		t.Errorf("proposal.approved events = %d, want 1", n)
	}
}

func TestRejectLeavesPromptUntouched(t *testing.T) {
	f := newFixture(t, Deps{})
	f.mustCall(t, f.admin, "createBot", createBotArgsFor("sec-bot"))
	p := f.addProposal(t, "sec-bot", "replacement")

	f.mustCall(t, f.admin, "rejectProposal", map[string]any{"proposalId": p.ID.String(), "reason": "too broad"})

	read := f.mustCall(t, f.member, "editSystemPrompt", map[string]any{"agentName": "sec-bot"})
	if read["prompt"] != "Lint {{repo}} on {{branch}}" {
		t.Errorf("prompt changed on reject: %v", read["prompt"])
	}
	got, _ := f.st.GetProposal(context.Background(), f.org.ID, p.ID)
	if got.Status != models.ProposalRejected || got.ResolutionNote != "too broad" {
		t.Errorf("proposal = %+v", got)
	}
}

func TestConcurrentApprovalsResolveOnce(t *testing.T) {
	f := newFixture(t, Deps{})
	f.mustCall(t, f.admin, "createBot", createBotArgsFor("sec-bot"))
	p := f.addProposal(t, "sec-bot", "new text")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			raw, _ := json.Marshal(map[string]any{"proposalId": p.ID.String()})
			if _, err := f.d.Execute(context.Background(), f.admin, "approveProposal", raw); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("successful approvals = %d, want 1", successes)
	}
	if n := len(f.activity(t, "proposal.approved")); n != 1 {
		t.Errorf("proposal.approved events = %d, want 1", n)
	}
}

func TestMemberGateTouchesNoStore(t *testing.T) {
	// No store at all: reaching it would panic and surface as internal.
	d := NewDispatcher(Deps{})
	member := tenant.Actor{OrgID: uuid.New(), UserID: uuid.New(), Role: models.RoleMember}

	cases := []struct {
		tool string
		args string
	}{
		{"approveProposal", `{"proposalId":"` + uuid.NewString() + `"}`},
		{"rejectProposal", `{"proposalId":"` + uuid.NewString() + `"}`},
		{"editSystemPrompt", `{"agentName":"sec-bot","newPrompt":"x"}`},
		{"toggleBot", `{"botName":"sec-bot","enabled":false}`},
		{"inviteMember", `{"githubLogin":"octocat","role":"member"}`},
	}
	for _, tc := range cases {
		t.Run(tc.tool, func(t *testing.T) {
			_, err := d.Execute(context.Background(), member, tc.tool, json.RawMessage(tc.args))
			var te *Error
			if !errors.As(err, &te) || te.Kind != KindAuthorization {
				t.Fatalf("err = %v, want authorization", err)
			}
			if !strings.HasPrefix(te.Message, "Only admins can") {
				t.Errorf("message = %q", te.Message)
			}
		})
	}
}

func TestUnknownArgumentsRejected(t *testing.T) {
	f := newFixture(t, Deps{})
	_, te := f.call(t, f.member, "listBots", map[string]any{"verbose": true})
	if te == nil || te.Kind != KindValidation || !strings.Contains(te.Message, "verbose") {
		t.Fatalf("err = %+v", te)
	}

	_, err := f.d.Execute(context.Background(), f.member, "promoteBot", json.RawMessage(`{"botName":"x"} {}`))
	if err == nil {
		t.Fatal("trailing data accepted")
	}

	_, te = f.call(t, f.member, "promoteBot", map[string]any{"botName": 42})
	if te == nil || te.Kind != KindValidation {
		t.Fatalf("wrong type err = %+v", te)
	}
}

func TestUnknownToolAndMissingOrg(t *testing.T) {
	f := newFixture(t, Deps{})
	if _, te := f.call(t, f.admin, "dropDatabase", nil); te == nil || te.Kind != KindValidation {
		t.Fatalf("unknown tool err = %+v", te)
	}
	orphan := tenant.Actor{UserID: uuid.New(), Role: models.RoleAdmin}
	if _, te := f.call(t, orphan, "listBots", nil); te == nil || te.Kind != KindAuthorization {
		t.Fatalf("no-org err = %+v", te)
	}
}

func TestDispatchFlattensErrors(t *testing.T) {
	f := newFixture(t, Deps{})
	res := f.d.Dispatch(context.Background(), f.member, "promoteBot", json.RawMessage(`{"botName":"ghost"}`))
	if res["error"] != `Bot "ghost" not found.` {
		t.Fatalf("Dispatch = %v", res)
	}
	res = f.d.Dispatch(context.Background(), f.member, "listBots", nil)
	if res["success"] != true {
		t.Fatalf("Dispatch success = %v", res)
	}
}

type panicScanner struct{}

func (panicScanner) Run(context.Context, scan.Request) ([]scan.BotResult, error) {
	panic("scanner exploded")
}

func TestPanicBecomesInternalError(t *testing.T) {
	f := newFixture(t, Deps{Scanner: panicScanner{}})
	f.st.AddRepo(f.org.ID, "acme/api")
	f.mustCall(t, f.admin, "createBot", createBotArgsFor("lint-bot"))
	f.mustCall(t, f.admin, "toggleBot", map[string]any{"botName": "lint-bot", "enabled": true})

	_, te := f.call(t, f.member, "runScan", map[string]any{"repoName": "acme/api"})
	if te == nil || te.Kind != KindInternal {
		t.Fatalf("err = %+v", te)
	}
	if strings.Contains(te.Message, "exploded") {
		t.Errorf("panic text leaked: %q", te.Message)
	}
}

func TestWebhookSecretShownOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	f := newFixture(t, Deps{Webhooks: webhook.NewService(cache.NewCache(rdb), time.Hour)})
	args := map[string]any{
		"url":            "https://hooks.example.com/fleet",
		"events":         []string{"scan.completed", "bot.finding", "scan.completed"},
		"idempotencyKey": "setup-1",
	}

	res := f.mustCall(t, f.member, "configureWebhook", args)
	secret, _ := res["secret"].(string)
	if !strings.HasPrefix(secret, "whsec_") {
		t.Fatalf("secret = %q", secret)
	}
	hook := res["webhook"].(webhookView)
	if len(hook.Events) != 2 {
		t.Errorf("events = %v, want deduped", hook.Events)
	}

	_, te := f.call(t, f.member, "configureWebhook", args)
	if te == nil || te.Kind != KindConflict || strings.Contains(te.Message, secret) {
		t.Fatalf("replay = %+v", te)
	}

	list := f.mustCall(t, f.member, "listWebhooks", nil)
	body, _ := json.Marshal(list)
	if strings.Contains(string(body), secret) {
		t.Fatalf("listWebhooks leaked the secret: %s", body)
	}
	if list["count"] != 1 {
		t.Errorf("count = %v, want 1", list["count"])
	}
	if !strings.Contains(string(body), `"createdAt"`) || strings.Contains(string(body), `"created_at"`) {
		t.Errorf("listWebhooks keys are not camelCase: %s", body)
	}

	for _, ev := range f.activity(t, "webhook.created") {
		meta, _ := json.Marshal(ev.Metadata)
		if strings.Contains(string(meta), secret) {
			t.Fatalf("activity leaked the secret: %s", meta)
		}
	}
}

func TestConfigureWebhookRejectsBadInput(t *testing.T) {
	f := newFixture(t, Deps{})
	cases := []map[string]any{
		{"url": "http://hooks.example.com", "events": []string{"scan.completed"}},
		{"url": "https://hooks.example.com", "events": []string{}},
		{"url": "https://hooks.example.com", "events": []string{"bot.exploded"}},
		{"url": "https://hooks.example.com", "events": []string{"scan.completed"}, "idempotencyKey": "k"},
	}
	for _, args := range cases {
		if _, te := f.call(t, f.member, "configureWebhook", args); te == nil || te.Kind != KindValidation {
			t.Errorf("configureWebhook(%v) err = %+v, want validation", args, te)
		}
	}
}

func TestDuplicateSwarm(t *testing.T) {
	f := newFixture(t, Deps{})
	args := map[string]any{"name": "security", "description": "sec", "botNames": []string{"b", "a", "a"}}
	res := f.mustCall(t, f.member, "createSwarm", args)
	sw, _ := json.Marshal(res["swarm"])
	if !strings.Contains(string(sw), `["a","b"]`) {
		t.Errorf("swarm members = %s", sw)
	}

	_, te := f.call(t, f.member, "createSwarm", args)
	if te == nil || te.Kind != KindConflict {
		t.Fatalf("duplicate createSwarm = %+v", te)
	}
	if n := len(f.activity(t, "swarm.created")); n != 1 {
		t.Errorf("swarm.created events = %d, want 1", n)
	}

	if n := res["swarm"].(map[string]any)["botCount"]; n != 2 {
		t.Errorf("botCount = %v, want 2", n)
	}

	res = f.mustCall(t, f.member, "manageSwarm", map[string]any{"swarmName": "security", "action": "add_bot", "botName": "a"})
	if res["changed"] != false || res["swarm"].(map[string]any)["botCount"] != 2 {
		t.Errorf("duplicate add_bot = %v", res)
	}
	if n := len(f.activity(t, "swarm.updated")); n != 0 {
		t.Errorf("no-op add recorded %d events", n)
	}
	res = f.mustCall(t, f.member, "manageSwarm", map[string]any{"swarmName": "security", "action": "add_bot", "botName": "c"})
	if res["swarm"].(map[string]any)["botCount"] != 3 {
		t.Errorf("add_bot = %v", res)
	}
	f.mustCall(t, f.member, "manageSwarm", map[string]any{"swarmName": "security", "action": "delete"})
	f.mustCall(t, f.member, "createSwarm", args)
}

func TestEditPromptVersions(t *testing.T) {
	f := newFixture(t, Deps{})
	f.mustCall(t, f.admin, "createBot", createBotArgsFor("docs-bot"))

	res := f.mustCall(t, f.admin, "editSystemPrompt", map[string]any{"agentName": "docs-bot", "newPrompt": "v2 for {{repo}}"})
	if res["versionNumber"] != 2 {
		t.Fatalf("versionNumber = %v", res["versionNumber"])
	}
	_, te := f.call(t, f.admin, "editSystemPrompt", map[string]any{"agentName": "docs-bot", "newPrompt": "{{owner}}"})
	if te == nil || te.Kind != KindValidation {
		t.Fatalf("unknown placeholder err = %+v", te)
	}
	_, te = f.call(t, f.member, "editSystemPrompt", map[string]any{"agentName": "nobody"})
	if te == nil || te.Kind != KindNotFound {
		t.Fatalf("missing prompt err = %+v", te)
	}
}

func TestEditGlobalPromptForksOrgCopy(t *testing.T) {
	f := newFixture(t, Deps{})
	if err := f.st.CreatePrompt(context.Background(), &models.Prompt{AgentName: "shared-bot", PromptText: "default"}); err != nil {
		t.Fatalf("CreatePrompt: %v", err)
	}

	res := f.mustCall(t, f.admin, "editSystemPrompt", map[string]any{"agentName": "shared-bot", "newPrompt": "ours"})
	msg, _ := res["message"].(string)
	if res["versionNumber"] != 1 || !strings.Contains(msg, "global default") {
		t.Fatalf("fork result = %v", res)
	}
	res = f.mustCall(t, f.admin, "editSystemPrompt", map[string]any{"agentName": "shared-bot", "newPrompt": "ours v2"})
	if msg, _ := res["message"].(string); res["versionNumber"] != 2 || strings.Contains(msg, "global default") {
		t.Fatalf("second edit = %v", res)
	}

	other := tenant.Actor{OrgID: f.st.AddOrg(uuid.New(), "globex").ID, UserID: uuid.New(), Role: models.RoleMember}
	read := f.mustCall(t, other, "editSystemPrompt", map[string]any{"agentName": "shared-bot"})
	if read["prompt"] != "default" || read["scope"] != "global default" {
		t.Fatalf("other org reads %v", read)
	}
}

func TestInviteMember(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, Deps{Now: func() time.Time { return now }, InviteTTL: 48 * time.Hour})

	f.mustCall(t, f.admin, "inviteMember", map[string]any{"githubLogin": "@octocat", "role": "member"})
	invs := f.st.Invitations()
	if len(invs) != 1 || invs[0].GithubLogin != "octocat" || !invs[0].ExpiresAt.Equal(now.Add(48*time.Hour)) {
		t.Fatalf("invitations = %+v", invs)
	}
	if _, te := f.call(t, f.admin, "inviteMember", map[string]any{"githubLogin": "octocat", "role": "owner"}); te == nil || te.Kind != KindValidation {
		t.Fatalf("bad role err = %+v", te)
	}
}

type stubScanner struct {
	results []scan.BotResult
	err     error
	got     scan.Request
}

func (s *stubScanner) Run(_ context.Context, req scan.Request) ([]scan.BotResult, error) {
	s.got = req
	return s.results, s.err
}

func TestRunScanRecordsResults(t *testing.T) {
	sc := &stubScanner{results: []scan.BotResult{
		{BotName: "lint-bot", Category: "quality", Findings: []scan.Finding{{Path: "main.go", Line: 3, Message: "unused"}}},
	}}
	f := newFixture(t, Deps{Scanner: sc})
	f.st.AddRepo(f.org.ID, "acme/api")

	if _, te := f.call(t, f.member, "runScan", map[string]any{"repoName": "acme/api"}); te == nil || te.Kind != KindValidation {
		t.Fatalf("scan without enabled bots = %+v", te)
	}

	f.mustCall(t, f.member, "createBot", createBotArgsFor("lint-bot"))
	f.mustCall(t, f.member, "promoteBot", map[string]any{"botName": "lint-bot"})
	f.mustCall(t, f.member, "promoteBot", map[string]any{"botName": "lint-bot"})

	res := f.mustCall(t, f.member, "runScan", map[string]any{"repoName": "acme/api"})
	if res["findings"] != 1 {
		t.Fatalf("findings = %v", res["findings"])
	}
	if len(sc.got.Bots) != 1 || sc.got.Bots[0].Prompt != "Lint acme/api on main" {
		t.Errorf("scanner request = %+v", sc.got)
	}
	if n := len(f.activity(t, "scan.completed")); n != 1 {
		t.Errorf("scan.completed events = %d", n)
	}

	stats := f.mustCall(t, f.member, "showStats", nil)["stats"].(*models.OrgStats)
	if stats.Scans != 1 || stats.Findings != 1 || stats.EnabledBots != 1 {
		t.Errorf("stats = %+v", stats)
	}

	if _, te := f.call(t, f.member, "runScan", map[string]any{"repoName": "acme/other"}); te == nil || te.Kind != KindNotFound {
		t.Fatalf("unknown repo = %+v", te)
	}
}

func TestRunScanFailureIsRecorded(t *testing.T) {
	sc := &stubScanner{err: errors.New("connection refused")}
	f := newFixture(t, Deps{Scanner: sc})
	f.st.AddRepo(f.org.ID, "acme/api")
	f.mustCall(t, f.admin, "createBot", createBotArgsFor("lint-bot"))
	f.mustCall(t, f.admin, "toggleBot", map[string]any{"botName": "lint-bot", "enabled": true})

	_, te := f.call(t, f.member, "runScan", map[string]any{"repoName": "acme/api"})
	if te == nil || te.Kind != KindInternal || strings.Contains(te.Message, "refused") {
		t.Fatalf("err = %+v", te)
	}
	if n := len(f.activity(t, "scan.failed")); n != 1 {
		t.Errorf("scan.failed events = %d", n)
	}
}

func TestDocStatus(t *testing.T) {
	sc := &stubScanner{}
	f := newFixture(t, Deps{Scanner: sc})
	f.st.AddRepo(f.org.ID, "acme/api")

	res := f.mustCall(t, f.member, "docStatus", map[string]any{"repoName": "acme/api"})
	if res["status"] != docStatusNeverScanned {
		t.Fatalf("status = %v", res["status"])
	}

	docs := createBotArgsFor("docs-bot")
	docs["category"] = "docs"
	f.mustCall(t, f.admin, "createBot", docs)
	f.mustCall(t, f.admin, "toggleBot", map[string]any{"botName": "docs-bot", "enabled": true})
	sc.results = []scan.BotResult{{BotName: "docs-bot", Category: "docs", Findings: []scan.Finding{{Path: "README.md"}}}}
	f.mustCall(t, f.member, "runScan", map[string]any{"repoName": "acme/api"})

	res = f.mustCall(t, f.member, "docStatus", map[string]any{"repoName": "acme/api"})
	if res["status"] != docStatusNeedsAttention || res["docFindings"] != 1 {
		t.Fatalf("docStatus = %v", res)
	}
}

func TestShowActivityLimit(t *testing.T) {
	f := newFixture(t, Deps{})
	for _, name := range []string{"a-bot", "b-bot", "c-bot"} {
		f.mustCall(t, f.member, "createBot", createBotArgsFor(name))
	}
	res := f.mustCall(t, f.member, "showActivity", map[string]any{"limit": 2})
	if res["count"] != 2 {
		t.Fatalf("count = %v", res["count"])
	}
	if _, te := f.call(t, f.member, "showActivity", map[string]any{"limit": 0}); te == nil || te.Kind != KindValidation {
		t.Fatalf("limit 0 = %+v", te)
	}
}

func TestCompleteOnboardingIsIdempotent(t *testing.T) {
	f := newFixture(t, Deps{})
	if res := f.mustCall(t, f.member, "completeOnboarding", nil); res["alreadyCompleted"] != false {
		t.Fatalf("first = %v", res)
	}
	if res := f.mustCall(t, f.member, "completeOnboarding", nil); res["alreadyCompleted"] != true {
		t.Fatalf("second = %v", res)
	}
	if n := len(f.activity(t, "onboarding.completed")); n != 1 {
		t.Errorf("onboarding.completed events = %d", n)
	}
}

func TestCatalogDescriptors(t *testing.T) {
	d := NewDispatcher(Deps{})
	cat := d.Catalog()
	if len(cat) != 21 {
		t.Fatalf("catalog has %d tools", len(cat))
	}
	seen := map[string]bool{}
	for _, desc := range cat {
		if seen[desc.Name] {
			t.Errorf("duplicate tool %s", desc.Name)
		}
		seen[desc.Name] = true
		if desc.Parameters["additionalProperties"] != false {
			t.Errorf("%s allows extra properties", desc.Name)
		}
	}
}

// cancellingClaims cancels the request context as soon as a key is
// claimed, the way a client timeout lands between claim and create.
type cancellingClaims struct {
	*cache.Cache
	cancel context.CancelFunc
}

func (c *cancellingClaims) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	ok, err := c.Cache.SetNX(ctx, key, value, ttl)
	c.cancel()
	return ok, err
}

func TestConfigureWebhookRetryAfterCancelledCreate(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	claims := &cancellingClaims{Cache: cache.NewCache(rdb), cancel: cancel}
	f := newFixture(t, Deps{Webhooks: webhook.NewService(claims, time.Hour)})

	raw, _ := json.Marshal(map[string]any{
		"url":            "https://hooks.example.com/fleet",
		"events":         []string{"scan.completed"},
		"idempotencyKey": "setup-1",
	})
	if _, err := f.d.Execute(ctx, f.member, "configureWebhook", raw); err == nil {
		t.Fatal("create with cancelled context succeeded")
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("claim left behind: %v", keys)
	}

	claims.cancel = func() {}
	res, err := f.d.Execute(context.Background(), f.member, "configureWebhook", raw)
	if err != nil {
		t.Fatalf("retry with same key: %v", err)
	}
	list := f.mustCall(t, f.member, "listWebhooks", nil)
	if list["count"] != 1 {
		t.Fatalf("webhooks persisted = %v", list["count"])
	}
	if _, err := f.d.Execute(context.Background(), f.member, "configureWebhook", raw); err == nil {
		t.Fatalf("third call created another webhook after %v", res["webhook"])
	}
}

func TestProposalReadsAndTenantIsolation(t *testing.T) {
	f := newFixture(t, Deps{})
	f.mustCall(t, f.admin, "createBot", createBotArgsFor("sec-bot"))
	p1 := f.addProposal(t, "sec-bot", "Check {{repo}} for injection")
	f.addProposal(t, "sec-bot", "another")

	list := f.mustCall(t, f.member, "listProposals", nil)
	if list["pendingCount"] != 2 || len(list["proposals"].([]proposalSummary)) != 2 {
		t.Fatalf("listProposals = %v", list)
	}

	f.mustCall(t, f.admin, "approveProposal", map[string]any{"proposalId": p1.ID.String()})

	review := f.mustCall(t, f.member, "reviewProposal", map[string]any{"proposalId": p1.ID.String()})
	view := review["proposal"].(proposalView)
	if view.Status != models.ProposalApproved || view.ProposedPrompt != "Check {{repo}} for injection" {
		t.Fatalf("reviewProposal = %+v", view)
	}
	body, _ := json.Marshal(review)
	if !strings.Contains(string(body), `"proposedPrompt"`) || strings.Contains(string(body), `"proposed_prompt"`) {
		t.Errorf("reviewProposal keys are not camelCase: %s", body)
	}
	if list = f.mustCall(t, f.member, "listProposals", nil); list["pendingCount"] != 1 {
		t.Errorf("pendingCount after approve = %v", list["pendingCount"])
	}

	otherOrg := f.st.AddOrg(uuid.New(), "globex")
	otherAdmin := tenant.Actor{OrgID: otherOrg.ID, UserID: uuid.New(), Role: models.RoleAdmin}
	for _, name := range []string{"reviewProposal", "approveProposal", "rejectProposal"} {
		_, te := f.call(t, otherAdmin, name, map[string]any{"proposalId": p1.ID.String()})
		if te == nil || te.Kind != KindNotFound {
			t.Errorf("%s across orgs = %+v, want not_found", name, te)
		}
	}
	if list := f.mustCall(t, otherAdmin, "listProposals", nil); len(list["proposals"].([]proposalSummary)) != 0 {
		t.Errorf("other org sees proposals: %v", list)
	}
}

func TestSwarmNamesAreScopedPerOrg(t *testing.T) {
	f := newFixture(t, Deps{})
	other := tenant.Actor{OrgID: f.st.AddOrg(uuid.New(), "globex").ID, UserID: uuid.New(), Role: models.RoleMember}
	args := map[string]any{"name": "sec", "description": "security", "botNames": []string{"a"}}

	f.mustCall(t, f.member, "createSwarm", args)
	f.mustCall(t, other, "createSwarm", args)
	f.mustCall(t, f.member, "createSwarm", map[string]any{"name": "only-acme", "description": "d"})

	mine := f.mustCall(t, f.member, "listSwarms", nil)
	theirs := f.mustCall(t, other, "listSwarms", nil)
	if mine["count"] != 2 || theirs["count"] != 1 {
		t.Fatalf("swarm counts = %v / %v", mine["count"], theirs["count"])
	}
	first := theirs["swarms"].([]map[string]any)[0]
	if first["name"] != "sec" || first["botCount"] != 1 {
		t.Errorf("other org swarm = %v", first)
	}

	_, te := f.call(t, other, "manageSwarm", map[string]any{"swarmName": "only-acme", "action": "delete"})
	if te == nil || te.Kind != KindNotFound {
		t.Fatalf("cross-org manageSwarm = %+v", te)
	}
}

func TestShowScanResultsUsesCamelCase(t *testing.T) {
	sc := &stubScanner{results: []scan.BotResult{{BotName: "lint-bot", Category: "quality"}}}
	f := newFixture(t, Deps{Scanner: sc})
	f.st.AddRepo(f.org.ID, "acme/api")
	f.mustCall(t, f.admin, "createBot", createBotArgsFor("lint-bot"))
	f.mustCall(t, f.admin, "toggleBot", map[string]any{"botName": "lint-bot", "enabled": true})

	if bots := f.mustCall(t, f.member, "runScan", map[string]any{"repoName": "acme/api"})["bots"].([]scanBotView); len(bots) != 1 || bots[0].BotName != "lint-bot" {
		t.Fatalf("runScan bots = %+v", bots)
	}

	res := f.mustCall(t, f.member, "showScanResults", map[string]any{"repoName": "acme/api"})
	scans := res["scans"].([]scanView)
	if len(scans) != 1 || scans[0].RepoName != "acme/api" || len(scans[0].Bots) != 1 {
		t.Fatalf("scans = %+v", scans)
	}
	body, _ := json.Marshal(res)
	if strings.Contains(string(body), `"repo_name"`) || strings.Contains(string(body), `"bot_name"`) {
		t.Errorf("snake_case keys in %s", body)
	}
}
