package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nikhilbhutani/botfleet/internal/audit"
	"github.com/nikhilbhutani/botfleet/internal/auth"
	"github.com/nikhilbhutani/botfleet/internal/models"
	"github.com/nikhilbhutani/botfleet/internal/prompt"
	"github.com/nikhilbhutani/botfleet/internal/scan"
	"github.com/nikhilbhutani/botfleet/internal/store"
	"github.com/nikhilbhutani/botfleet/internal/tenant"
	"github.com/nikhilbhutani/botfleet/internal/webhook"
)

// maxFindingEvents caps bot.finding deliveries per bot per scan.
const maxFindingEvents = 50

type repoArgs struct {
	RepoName string `json:"repoName"`
}

func (a *repoArgs) validate() error {
	a.RepoName = strings.TrimSpace(a.RepoName)
	if a.RepoName == "" {
		return invalid("repoName is required.")
	}
	return nil
}

var runScanTool = spec[repoArgs]{
	name:        "runScan",
	description: "Scan a connected repository with every enabled bot and report finding counts per bot. Waits for the scan to finish.",
	params: []Param{
		{Name: "repoName", Type: "string", Required: true, Description: "Repository full name, e.g. acme/api."},
	},
	op:   always[repoArgs](auth.OpRunScan),
	exec: runScan,
}

func lookupRepo(ctx context.Context, tx store.Tx, actor tenant.Actor, name string) (*models.Repo, error) {
	repo, err := tx.GetRepo(ctx, actor.OrgID, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("Repository %q is not connected to this organization.", name)
	}
	return repo, err
}

// scanPlan resolves the enabled bots and renders their prompts for repo.
func scanPlan(ctx context.Context, tx store.Tx, actor tenant.Actor, repo *models.Repo) ([]scan.BotSpec, error) {
	bots, err := tx.ListBots(ctx, actor.OrgID)
	if err != nil {
		return nil, err
	}
	var specs []scan.BotSpec
	for _, b := range bots {
		if !b.Enabled {
			continue
		}
		text := b.Description
		if p, err := prompt.Get(ctx, tx, actor.OrgID, b.Name); err == nil {
			text = p.PromptText
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		rendered, err := prompt.Render(text, map[string]string{
			"repo":       repo.FullName,
			"branch":     repo.DefaultBranch,
			"extensions": strings.Join(b.FileExtensions, ", "),
		})
		if err != nil {
			rendered = text
		}
		specs = append(specs, scan.BotSpec{
			Name:           b.Name,
			Category:       b.Category,
			FileExtensions: b.FileExtensions,
			Prompt:         rendered,
		})
	}
	return specs, nil
}

func runScan(ctx context.Context, d *Dispatcher, actor tenant.Actor, a *repoArgs) (Result, error) {
	repo, err := lookupRepo(ctx, d.deps.Store, actor, a.RepoName)
	if err != nil {
		return nil, err
	}
	specs, err := scanPlan(ctx, d.deps.Store, actor, repo)
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, invalid("No bots are enabled. Promote a bot to active or enable one before scanning.")
	}

	d.publish(ctx, actor.OrgID, webhook.EventScanStarted, map[string]any{"repo": repo.FullName, "bots": len(specs)})
	for _, s := range specs {
		d.publish(ctx, actor.OrgID, webhook.EventBotStarted, map[string]any{"repo": repo.FullName, "botName": s.Name})
	}

	started := d.now()
	results, runErr := d.deps.Scanner.Run(ctx, scan.Request{
		OrgID:  actor.OrgID,
		Repo:   repo.FullName,
		Branch: repo.DefaultBranch,
		Bots:   specs,
	})
	completed := d.now()

	run := &models.ScanRun{
		OrgID:       actor.OrgID,
		RepoName:    repo.FullName,
		Status:      models.ScanStatusCompleted,
		DurationMs:  completed.Sub(started).Milliseconds(),
		TriggeredBy: actor.UserID,
		StartedAt:   started,
		CompletedAt: completed,
	}
	for _, r := range results {
		run.BotResults = append(run.BotResults, models.ScanBotResult{
			BotName:  r.BotName,
			Category: r.Category,
			Findings: len(r.Findings),
			Error:    r.Error,
		})
		run.Findings += len(r.Findings)
	}
	event, summary := audit.EventScanCompleted, fmt.Sprintf("Scanned %s: %d findings", repo.FullName, run.Findings)
	if runErr != nil {
		run.Status = models.ScanStatusFailed
		run.Error = runErr.Error()
		event, summary = audit.EventScanFailed, fmt.Sprintf("Scan of %s failed", repo.FullName)
	}

	err = d.deps.Store.InTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateScanRun(ctx, run); err != nil {
			return err
		}
		_, err := audit.Record(ctx, tx, actor, event, summary, map[string]any{
			"scanId":     run.ID.String(),
			"repoName":   run.RepoName,
			"findings":   run.Findings,
			"durationMs": run.DurationMs,
			"bots":       len(specs),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	publishResults(ctx, d, actor, run, results)

	if runErr != nil {
		slog.Error("scan failed", "error", runErr, "repo", repo.FullName, "org_id", actor.OrgID)
		return nil, &Error{
			Kind:    KindInternal,
			Message: fmt.Sprintf("The scan of %s failed after %s. The failure was recorded.", repo.FullName, time.Duration(run.DurationMs)*time.Millisecond),
			Err:     runErr,
		}
	}

	return Result{
		"message":    fmt.Sprintf("Scanned %s with %d bots in %dms: %d findings.", repo.FullName, len(specs), run.DurationMs, run.Findings),
		"scanId":     run.ID,
		"repoName":   run.RepoName,
		"durationMs": run.DurationMs,
		"findings":   run.Findings,
		"bots":       newScanView(run).Bots,
	}, nil
}

func publishResults(ctx context.Context, d *Dispatcher, actor tenant.Actor, run *models.ScanRun, results []scan.BotResult) {
	for _, r := range results {
		d.publish(ctx, actor.OrgID, webhook.EventBotCompleted, map[string]any{
			"repo": run.RepoName, "botName": r.BotName, "findings": len(r.Findings), "error": r.Error,
		})
		for i, f := range r.Findings {
			if i == maxFindingEvents {
				break
			}
			d.publish(ctx, actor.OrgID, webhook.EventBotFinding, map[string]any{
				"repo": run.RepoName, "botName": r.BotName, "finding": f,
			})
		}
	}
	d.publish(ctx, actor.OrgID, webhook.EventScanCompleted, map[string]any{
		"scanId":     run.ID,
		"repo":       run.RepoName,
		"status":     run.Status,
		"findings":   run.Findings,
		"durationMs": run.DurationMs,
	})
}
