package tools

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/nikhilbhutani/botfleet/internal/audit"
	"github.com/nikhilbhutani/botfleet/internal/auth"
	"github.com/nikhilbhutani/botfleet/internal/lifecycle"
	"github.com/nikhilbhutani/botfleet/internal/models"
	"github.com/nikhilbhutani/botfleet/internal/prompt"
	"github.com/nikhilbhutani/botfleet/internal/store"
	"github.com/nikhilbhutani/botfleet/internal/tenant"
)

var (
	botNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)
	botCategories  = []string{models.BotCategorySecurity, models.BotCategoryQuality, models.BotCategoryDocs}
)

type createBotArgs struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Category       string   `json:"category"`
	SystemPrompt   string   `json:"systemPrompt"`
	FileExtensions []string `json:"fileExtensions,omitempty"`
}

func (a *createBotArgs) validate() error {
	a.Name = strings.TrimSpace(a.Name)
	if !botNamePattern.MatchString(a.Name) {
		return invalid("name must be 1-64 letters, digits, dashes or underscores.")
	}
	if !slices.Contains(botCategories, a.Category) {
		return invalid("category must be one of %s.", strings.Join(botCategories, ", "))
	}
	if strings.TrimSpace(a.SystemPrompt) == "" {
		return invalid("systemPrompt is required.")
	}
	if err := prompt.ValidateTemplate(a.SystemPrompt); err != nil {
		return err
	}
	exts := make([]string, 0, len(a.FileExtensions))
	for _, e := range a.FileExtensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if !slices.Contains(exts, e) {
			exts = append(exts, e)
		}
	}
	a.FileExtensions = exts
	return nil
}

var createBotTool = spec[createBotArgs]{
	name:        "createBot",
	description: "Create a new bot in draft status with its system prompt. The bot is disabled until promoted to active or enabled by an admin.",
	params: []Param{
		{Name: "name", Type: "string", Required: true, Description: "Unique bot name within the organization."},
		{Name: "description", Type: "string", Required: true, Description: "What the bot checks."},
		{Name: "category", Type: "string", Required: true, Enum: botCategories, Description: "Bot category."},
		{Name: "systemPrompt", Type: "string", Required: true, Description: "Initial system prompt."},
		{Name: "fileExtensions", Type: "array", Description: "File extensions the bot scans, e.g. [\".go\", \".ts\"]."},
	},
	op:   always[createBotArgs](auth.OpCreateBot),
	exec: createBot,
}

func createBot(ctx context.Context, d *Dispatcher, actor tenant.Actor, a *createBotArgs) (Result, error) {
	now := d.now()
	bot := &models.Bot{
		OrgID:          actor.OrgID,
		Name:           a.Name,
		Description:    strings.TrimSpace(a.Description),
		Category:       a.Category,
		FileExtensions: a.FileExtensions,
		CreatedBy:      actor.UserID,
	}
	err := d.deps.Store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateBot(ctx, bot); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return conflict("A bot named %q already exists.", a.Name)
			}
			return err
		}
		if _, _, err := prompt.Write(ctx, tx, prompt.WriteRequest{
			OrgID:     actor.OrgID,
			AgentName: bot.Name,
			Text:      a.SystemPrompt,
			EditorID:  actor.UserID,
			Reason:    "Initial prompt",
			At:        now,
		}); err != nil {
			return err
		}
		_, err := audit.Record(ctx, tx, actor, audit.EventBotCreated,
			fmt.Sprintf("Created bot %s", bot.Name),
			map[string]any{"botName": bot.Name, "category": bot.Category})
		return err
	})
	if err != nil {
		return nil, err
	}

	return Result{
		"message": fmt.Sprintf("Created bot %q in draft. Promote it to testing when ready.", bot.Name),
		"bot":     botView(*bot, lifecycle.StatusDraft),
	}, nil
}

type botNameArgs struct {
	BotName string `json:"botName"`
}

func (a *botNameArgs) validate() error {
	a.BotName = strings.TrimSpace(a.BotName)
	if a.BotName == "" {
		return invalid("botName is required.")
	}
	return nil
}

var promoteBotTool = spec[botNameArgs]{
	name:        "promoteBot",
	description: "Promote a bot one step along draft -> testing -> active. Promoting to active also enables the bot for scans.",
	params: []Param{
		{Name: "botName", Type: "string", Required: true, Description: "Bot to promote."},
	},
	op:   always[botNameArgs](auth.OpPromoteBot),
	exec: promoteBot,
}

func promoteBot(ctx context.Context, d *Dispatcher, actor tenant.Actor, a *botNameArgs) (Result, error) {
	var (
		from, to lifecycle.Status
		enabled  bool
	)
	err := d.deps.Store.InTx(ctx, func(tx store.Tx) error {
		bot, err := tx.LockBot(ctx, actor.OrgID, a.BotName)
		if errors.Is(err, store.ErrNotFound) {
			return notFound("Bot %q not found.", a.BotName)
		}
		if err != nil {
			return err
		}

		from, err = audit.BotStatus(ctx, tx, actor.OrgID, bot.Name)
		if err != nil {
			return err
		}
		to, err = lifecycle.Next(from)
		switch {
		case errors.Is(err, lifecycle.ErrAlreadyActive):
			return conflict("Bot %q is already active.", bot.Name)
		case errors.Is(err, lifecycle.ErrUnknownStatus):
			return conflict("Bot %q has unrecognized status %q.", bot.Name, from)
		case err != nil:
			return err
		}

		enabled = bot.Enabled
		if to == lifecycle.StatusActive && !bot.Enabled {
			if err := tx.SetBotEnabled(ctx, actor.OrgID, bot.Name, true); err != nil {
				return err
			}
			enabled = true
		}

		_, err = audit.Record(ctx, tx, actor, audit.EventBotPromoted,
			fmt.Sprintf("Promoted %s from %s to %s", bot.Name, from, to),
			map[string]any{"botName": bot.Name, "fromStatus": string(from), "toStatus": string(to)})
		return err
	})
	if err != nil {
		return nil, err
	}

	return Result{
		"message":    fmt.Sprintf("Promoted %q from %s to %s.", a.BotName, from, to),
		"botName":    a.BotName,
		"fromStatus": string(from),
		"toStatus":   string(to),
		"enabled":    enabled,
	}, nil
}

type toggleBotArgs struct {
	BotName string `json:"botName"`
	Enabled *bool  `json:"enabled"`
}

func (a *toggleBotArgs) validate() error {
	a.BotName = strings.TrimSpace(a.BotName)
	if a.BotName == "" {
		return invalid("botName is required.")
	}
	if a.Enabled == nil {
		return invalid("enabled is required.")
	}
	return nil
}

var toggleBotTool = spec[toggleBotArgs]{
	name:        "toggleBot",
	description: "Enable or disable a bot for scans without changing its lifecycle status. Admins only.",
	params: []Param{
		{Name: "botName", Type: "string", Required: true, Description: "Bot to toggle."},
		{Name: "enabled", Type: "boolean", Required: true, Description: "true to enable, false to disable."},
	},
	op:   always[toggleBotArgs](auth.OpToggleBot),
	exec: toggleBot,
}

func toggleBot(ctx context.Context, d *Dispatcher, actor tenant.Actor, a *toggleBotArgs) (Result, error) {
	want := *a.Enabled
	state := "disabled"
	if want {
		state = "enabled"
	}
	changed := false

	err := d.deps.Store.InTx(ctx, func(tx store.Tx) error {
		bot, err := tx.LockBot(ctx, actor.OrgID, a.BotName)
		if errors.Is(err, store.ErrNotFound) {
			return notFound("Bot %q not found.", a.BotName)
		}
		if err != nil {
			return err
		}
		if bot.Enabled == want {
			return nil
		}
		if err := tx.SetBotEnabled(ctx, actor.OrgID, bot.Name, want); err != nil {
			return err
		}
		changed = true
		_, err = audit.Record(ctx, tx, actor, audit.EventBotToggled,
			fmt.Sprintf("Bot %s %s", bot.Name, state),
			map[string]any{"botName": bot.Name, "enabled": want})
		return err
	})
	if err != nil {
		return nil, err
	}

	msg := fmt.Sprintf("Bot %q is now %s.", a.BotName, state)
	if !changed {
		msg = fmt.Sprintf("Bot %q is already %s.", a.BotName, state)
	}
	return Result{"message": msg, "botName": a.BotName, "enabled": want, "changed": changed}, nil
}

var listBotsTool = spec[struct{}]{
	name:        "listBots",
	description: "List the organization's bots with their lifecycle status and whether they are enabled.",
	op:          always[struct{}](auth.OpViewBots),
	exec:        listBots,
}

func listBots(ctx context.Context, d *Dispatcher, actor tenant.Actor, _ *struct{}) (Result, error) {
	bots, err := d.deps.Store.ListBots(ctx, actor.OrgID)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(bots))
	for i, b := range bots {
		names[i] = b.Name
	}
	statuses, err := audit.BotStatuses(ctx, d.deps.Store, actor.OrgID, names)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(bots))
	for _, b := range bots {
		out = append(out, botView(b, statuses[b.Name]))
	}
	return Result{"bots": out, "count": len(out)}, nil
}

func botView(b models.Bot, status lifecycle.Status) map[string]any {
	v := map[string]any{
		"name":        b.Name,
		"description": b.Description,
		"category":    b.Category,
		"status":      status,
		"enabled":     b.Enabled,
	}
	if len(b.FileExtensions) > 0 {
		v["fileExtensions"] = b.FileExtensions
	}
	return v
}
