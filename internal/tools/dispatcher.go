// Package tools is the operator tool catalog: every action the console
// exposes to humans and to the assistant goes through Dispatcher.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/botfleet/internal/scan"
	"github.com/nikhilbhutani/botfleet/internal/store"
	"github.com/nikhilbhutani/botfleet/internal/tenant"
	"github.com/nikhilbhutani/botfleet/internal/webhook"
)

// Publisher fans events out to webhook subscribers.
type Publisher interface {
	Publish(ctx context.Context, orgID uuid.UUID, event string, data any) (int, error)
}

type Deps struct {
	Store     store.Store
	Webhooks  *webhook.Service
	Publisher Publisher // optional
	Scanner   scan.Runner
	InviteTTL time.Duration
	Now       func() time.Time
}

type Dispatcher struct {
	deps  Deps
	tools map[string]tool
	order []string
}

func NewDispatcher(deps Deps) *Dispatcher {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.InviteTTL <= 0 {
		deps.InviteTTL = 7 * 24 * time.Hour
	}
	if deps.Scanner == nil {
		deps.Scanner = scan.Unconfigured{}
	}
	if deps.Webhooks == nil {
		deps.Webhooks = webhook.NewService(nil, 0)
	}

	d := &Dispatcher{deps: deps, tools: make(map[string]tool)}
	for _, t := range catalog() {
		name := t.descriptor().Name
		d.tools[name] = t
		d.order = append(d.order, name)
	}
	return d
}

func (d *Dispatcher) now() time.Time { return d.deps.Now().UTC() }

// Catalog describes every tool in a stable order.
func (d *Dispatcher) Catalog() []Descriptor {
	out := make([]Descriptor, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.tools[name].descriptor())
	}
	return out
}

func (d *Dispatcher) Has(name string) bool {
	_, ok := d.tools[name]
	return ok
}

// Execute runs one tool for actor. Errors are always *Error.
func (d *Dispatcher) Execute(ctx context.Context, actor tenant.Actor, name string, args json.RawMessage) (res Result, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, internal(fmt.Errorf("panic: %v", r))
		}
		d.log(actor, name, start, err)
	}()

	t, ok := d.tools[name]
	if !ok {
		return nil, invalid("Unknown tool %q.", name)
	}
	if actor.OrgID == uuid.Nil {
		return nil, &Error{Kind: KindAuthorization, Message: "You must belong to an organization to use tools."}
	}

	res, err = t.run(ctx, d, actor, args)
	if err != nil {
		return nil, classify(err)
	}
	if _, ok := res["success"]; !ok {
		res["success"] = true
	}
	return res, nil
}

// Dispatch is Execute flattened into a single JSON object: either the
// tool's result or {"error": message}.
func (d *Dispatcher) Dispatch(ctx context.Context, actor tenant.Actor, name string, args json.RawMessage) Result {
	res, err := d.Execute(ctx, actor, name, args)
	if err != nil {
		return Result{"error": err.Error()}
	}
	return res
}

func (d *Dispatcher) log(actor tenant.Actor, name string, start time.Time, err error) {
	attrs := []any{
		"tool", name,
		"org_id", actor.OrgID,
		"user_id", actor.UserID,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	te, ok := err.(*Error)
	if err != nil && !ok {
		te = internal(err)
	}
	switch {
	case err == nil:
		slog.Info("tool executed", attrs...)
	case te != nil && te.Kind == KindInternal:
		slog.Error("tool failed", append(attrs, "error", te.Err)...)
	default:
		slog.Warn("tool rejected", append(attrs, "kind", te.Kind, "reason", err.Error())...)
	}
}

func (d *Dispatcher) publish(ctx context.Context, orgID uuid.UUID, event string, data any) {
	if d.deps.Publisher == nil {
		return
	}
	if _, err := d.deps.Publisher.Publish(ctx, orgID, event, data); err != nil {
		slog.Error("failed to publish webhook event", "error", err, "org_id", orgID, "event", event)
	}
}

func catalog() []tool {
	return []tool{
		approveProposalTool,
		rejectProposalTool,
		reviewProposalTool,
		listProposalsTool,
		editSystemPromptTool,
		createBotTool,
		promoteBotTool,
		toggleBotTool,
		listBotsTool,
		createSwarmTool,
		manageSwarmTool,
		listSwarmsTool,
		configureWebhookTool,
		listWebhooksTool,
		inviteMemberTool,
		runScanTool,
		showActivityTool,
		showScanResultsTool,
		showStatsTool,
		docStatusTool,
		completeOnboardingTool,
	}
}
