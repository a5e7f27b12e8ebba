package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nikhilbhutani/botfleet/internal/audit"
	"github.com/nikhilbhutani/botfleet/internal/auth"
	"github.com/nikhilbhutani/botfleet/internal/models"
	"github.com/nikhilbhutani/botfleet/internal/store"
	"github.com/nikhilbhutani/botfleet/internal/swarm"
	"github.com/nikhilbhutani/botfleet/internal/tenant"
)

const (
	swarmAddBot    = "add_bot"
	swarmRemoveBot = "remove_bot"
	swarmDelete    = "delete"
)

type createSwarmArgs struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	BotNames    []string `json:"botNames,omitempty"`
}

func (a *createSwarmArgs) validate() error {
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" || len(a.Name) > 64 {
		return invalid("name must be 1-64 characters.")
	}
	for i, n := range a.BotNames {
		a.BotNames[i] = strings.TrimSpace(n)
	}
	return nil
}

var createSwarmTool = spec[createSwarmArgs]{
	name:        "createSwarm",
	description: "Create a named group of bots that run together. Swarm names are unique within the organization.",
	params: []Param{
		{Name: "name", Type: "string", Required: true, Description: "Swarm name (case-sensitive)."},
		{Name: "description", Type: "string", Required: true, Description: "What the swarm is for."},
		{Name: "botNames", Type: "array", Description: "Bots to add to the swarm."},
	},
	op:   always[createSwarmArgs](auth.OpManageSwarm),
	exec: createSwarm,
}

func createSwarm(ctx context.Context, d *Dispatcher, actor tenant.Actor, a *createSwarmArgs) (Result, error) {
	var sw *models.Swarm
	err := d.deps.Store.InTx(ctx, func(tx store.Tx) error {
		var err error
		sw, err = swarm.Create(ctx, tx, swarm.CreateRequest{
			OrgID:       actor.OrgID,
			Name:        a.Name,
			Description: strings.TrimSpace(a.Description),
			BotNames:    a.BotNames,
			CreatedBy:   actor.UserID,
		})
		if errors.Is(err, swarm.ErrExists) {
			return conflict("A swarm named %q already exists.", a.Name)
		}
		if err != nil {
			return err
		}
		_, err = audit.Record(ctx, tx, actor, audit.EventSwarmCreated,
			fmt.Sprintf("Created swarm %s", sw.Name),
			map[string]any{"swarmName": sw.Name, "botNames": sw.BotNames})
		return err
	})
	if err != nil {
		return nil, err
	}
	return Result{
		"message": fmt.Sprintf("Created swarm %q with %d bots.", sw.Name, len(sw.BotNames)),
		"swarm":   swarmView(*sw),
	}, nil
}

type manageSwarmArgs struct {
	SwarmName string `json:"swarmName"`
	Action    string `json:"action"`
	BotName   string `json:"botName,omitempty"`
}

func (a *manageSwarmArgs) validate() error {
	a.SwarmName = strings.TrimSpace(a.SwarmName)
	a.BotName = strings.TrimSpace(a.BotName)
	if a.SwarmName == "" {
		return invalid("swarmName is required.")
	}
	switch a.Action {
	case swarmAddBot, swarmRemoveBot:
		if a.BotName == "" {
			return invalid("botName is required for %s.", a.Action)
		}
	case swarmDelete:
	default:
		return invalid("action must be one of %s, %s, %s.", swarmAddBot, swarmRemoveBot, swarmDelete)
	}
	return nil
}

var manageSwarmTool = spec[manageSwarmArgs]{
	name:        "manageSwarm",
	description: "Add a bot to a swarm, remove a bot from a swarm, or delete a swarm. Adding a present bot or removing an absent one changes nothing.",
	params: []Param{
		{Name: "swarmName", Type: "string", Required: true, Description: "Swarm to change."},
		{Name: "action", Type: "string", Required: true, Enum: []string{swarmAddBot, swarmRemoveBot, swarmDelete}, Description: "What to do."},
		{Name: "botName", Type: "string", Description: "Bot to add or remove. Required for add_bot and remove_bot."},
	},
	op:   always[manageSwarmArgs](auth.OpManageSwarm),
	exec: manageSwarm,
}

func manageSwarm(ctx context.Context, d *Dispatcher, actor tenant.Actor, a *manageSwarmArgs) (Result, error) {
	var (
		msg     string
		changed bool
		after   *models.Swarm
	)
	err := d.deps.Store.InTx(ctx, func(tx store.Tx) error {
		sw, err := swarm.Get(ctx, tx, actor.OrgID, a.SwarmName)
		if errors.Is(err, store.ErrNotFound) {
			return notFound("Swarm %q not found.", a.SwarmName)
		}
		if err != nil {
			return err
		}

		switch a.Action {
		case swarmAddBot:
			changed, err = swarm.AddBot(ctx, tx, sw, a.BotName)
			msg = fmt.Sprintf("Added %q to swarm %q.", a.BotName, sw.Name)
			if !changed {
				msg = fmt.Sprintf("%q is already in swarm %q.", a.BotName, sw.Name)
			}
		case swarmRemoveBot:
			changed, err = swarm.RemoveBot(ctx, tx, sw, a.BotName)
			msg = fmt.Sprintf("Removed %q from swarm %q.", a.BotName, sw.Name)
			if !changed {
				msg = fmt.Sprintf("%q was not in swarm %q.", a.BotName, sw.Name)
			}
		case swarmDelete:
			err = swarm.Delete(ctx, tx, sw)
			changed = true
			msg = fmt.Sprintf("Deleted swarm %q.", sw.Name)
		}
		if err != nil {
			return err
		}
		if a.Action != swarmDelete {
			if after, err = swarm.Get(ctx, tx, actor.OrgID, sw.Name); err != nil {
				return err
			}
		}
		if !changed {
			return nil
		}

		event := audit.EventSwarmUpdated
		if a.Action == swarmDelete {
			event = audit.EventSwarmDeleted
		}
		meta := map[string]any{"swarmName": sw.Name, "action": a.Action}
		if a.BotName != "" && a.Action != swarmDelete {
			meta["botName"] = a.BotName
		}
		_, err = audit.Record(ctx, tx, actor, event, msg, meta)
		return err
	})
	if err != nil {
		return nil, err
	}
	res := Result{"message": msg, "changed": changed}
	if after != nil {
		res["swarm"] = swarmView(*after)
	}
	return res, nil
}

var listSwarmsTool = spec[struct{}]{
	name:        "listSwarms",
	description: "List the organization's swarms and their member bots.",
	op:          always[struct{}](auth.OpViewSwarms),
	exec: func(ctx context.Context, d *Dispatcher, actor tenant.Actor, _ *struct{}) (Result, error) {
		swarms, err := swarm.List(ctx, d.deps.Store, actor.OrgID)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(swarms))
		for _, sw := range swarms {
			out = append(out, swarmView(sw))
		}
		return Result{"swarms": out, "count": len(out)}, nil
	},
}

func swarmView(sw models.Swarm) map[string]any {
	names := sw.BotNames
	if names == nil {
		names = []string{}
	}
	return map[string]any{
		"name":        sw.Name,
		"description": sw.Description,
		"botNames":    names,
		"botCount":    len(names),
		"createdAt":   sw.CreatedAt,
	}
}
