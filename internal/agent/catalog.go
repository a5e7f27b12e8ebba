package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nikhilbhutani/botfleet/internal/tenant"
	"github.com/nikhilbhutani/botfleet/internal/tools"
)

// catalogTool exposes one dispatcher tool to the agent, executed as actor.
// Tool failures become observations, never Go errors, so the model can
// read and relay them.
type catalogTool struct {
	d     *tools.Dispatcher
	actor tenant.Actor
	desc  tools.Descriptor
}

func (t *catalogTool) Name() string { return t.desc.Name }

func (t *catalogTool) Description() string {
	schema, err := json.Marshal(t.desc.Parameters["properties"])
	if err != nil {
		return t.desc.Description
	}
	return fmt.Sprintf("%s Arguments: %s", t.desc.Description, schema)
}

func (t *catalogTool) Execute(ctx context.Context, input string) (string, error) {
	res := t.d.Dispatch(ctx, t.actor, t.desc.Name, json.RawMessage(input))
	out, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("encode %s result: %w", t.desc.Name, err)
	}
	return string(out), nil
}

// RegisterCatalog registers every dispatcher tool, bound to actor.
func (a *Agent) RegisterCatalog(d *tools.Dispatcher, actor tenant.Actor) {
	for _, desc := range d.Catalog() {
		a.RegisterTool(&catalogTool{d: d, actor: actor, desc: desc})
	}
}
