package tools

import (
	"context"
	"fmt"

	"github.com/nikhilbhutani/botfleet/internal/audit"
	"github.com/nikhilbhutani/botfleet/internal/auth"
	"github.com/nikhilbhutani/botfleet/internal/models"
	"github.com/nikhilbhutani/botfleet/internal/store"
	"github.com/nikhilbhutani/botfleet/internal/tenant"
)

const (
	docStatusUpToDate       = "up_to_date"
	docStatusNeedsAttention = "needs_attention"
	docStatusNeverScanned   = "never_scanned"
	docStatusNotCovered     = "not_covered"
)

type limitArgs struct {
	Limit *int `json:"limit,omitempty"`

	n int
}

func (a *limitArgs) bound(def, max int) error {
	a.n = def
	if a.Limit == nil {
		return nil
	}
	if *a.Limit < 1 || *a.Limit > max {
		return invalid("limit must be between 1 and %d.", max)
	}
	a.n = *a.Limit
	return nil
}

type showActivityArgs struct {
	limitArgs
}

func (a *showActivityArgs) validate() error { return a.bound(10, 100) }

var showActivityTool = spec[showActivityArgs]{
	name:        "showActivity",
	description: "Show the organization's most recent activity, newest first.",
	params: []Param{
		{Name: "limit", Type: "integer", Description: "How many events to show (1-100, default 10)."},
	},
	op: always[showActivityArgs](auth.OpViewActivity),
	exec: func(ctx context.Context, d *Dispatcher, actor tenant.Actor, a *showActivityArgs) (Result, error) {
		events, err := audit.Recent(ctx, d.deps.Store, actor.OrgID, a.n)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(events))
		for _, ev := range events {
			out = append(out, map[string]any{
				"id":        ev.ID,
				"type":      ev.EventType,
				"summary":   ev.Summary,
				"metadata":  ev.Metadata,
				"createdAt": ev.CreatedAt,
			})
		}
		return Result{"events": out, "count": len(out)}, nil
	},
}

type showScanResultsArgs struct {
	RepoName string `json:"repoName,omitempty"`
	limitArgs
}

func (a *showScanResultsArgs) validate() error { return a.bound(5, 50) }

var showScanResultsTool = spec[showScanResultsArgs]{
	name:        "showScanResults",
	description: "Show recent scan runs with per-bot finding counts, optionally for one repository.",
	params: []Param{
		{Name: "repoName", Type: "string", Description: "Only show scans of this repository."},
		{Name: "limit", Type: "integer", Description: "How many scans to show (1-50, default 5)."},
	},
	op: always[showScanResultsArgs](auth.OpViewActivity),
	exec: func(ctx context.Context, d *Dispatcher, actor tenant.Actor, a *showScanResultsArgs) (Result, error) {
		runs, err := d.deps.Store.ListScanRuns(ctx, actor.OrgID, a.RepoName, a.n)
		if err != nil {
			return nil, err
		}
		out := make([]scanView, 0, len(runs))
		for i := range runs {
			out = append(out, newScanView(&runs[i]))
		}
		return Result{"scans": out, "count": len(out)}, nil
	},
}

var showStatsTool = spec[struct{}]{
	name:        "showStats",
	description: "Show organization totals: bots, enabled bots, swarms, pending proposals, webhooks, scans and findings.",
	op:          always[struct{}](auth.OpViewActivity),
	exec: func(ctx context.Context, d *Dispatcher, actor tenant.Actor, _ *struct{}) (Result, error) {
		stats, err := d.deps.Store.OrgStats(ctx, actor.OrgID)
		if err != nil {
			return nil, err
		}
		return Result{"stats": stats}, nil
	},
}

var docStatusTool = spec[repoArgs]{
	name:        "docStatus",
	description: "Report documentation health of a repository from the docs bots in its most recent scan.",
	params: []Param{
		{Name: "repoName", Type: "string", Required: true, Description: "Repository full name."},
	},
	op: always[repoArgs](auth.OpViewActivity),
	exec: func(ctx context.Context, d *Dispatcher, actor tenant.Actor, a *repoArgs) (Result, error) {
		repo, err := lookupRepo(ctx, d.deps.Store, actor, a.RepoName)
		if err != nil {
			return nil, err
		}
		runs, err := d.deps.Store.ListScanRuns(ctx, actor.OrgID, repo.FullName, 1)
		if err != nil {
			return nil, err
		}
		if len(runs) == 0 {
			return Result{
				"repoName": repo.FullName,
				"status":   docStatusNeverScanned,
				"message":  fmt.Sprintf("%s has not been scanned yet.", repo.FullName),
			}, nil
		}

		last := runs[0]
		var (
			docBots  = []scanBotView{}
			findings int
		)
		for _, r := range last.BotResults {
			if r.Category == models.BotCategoryDocs {
				docBots = append(docBots, scanBotView(r))
				findings += r.Findings
			}
		}

		status := docStatusUpToDate
		msg := fmt.Sprintf("Documentation of %s is up to date.", repo.FullName)
		switch {
		case len(docBots) == 0:
			status = docStatusNotCovered
			msg = fmt.Sprintf("No docs bot ran in the last scan of %s.", repo.FullName)
		case findings > 0:
			status = docStatusNeedsAttention
			msg = fmt.Sprintf("Documentation of %s needs attention: %d findings.", repo.FullName, findings)
		}
		return Result{
			"repoName":    repo.FullName,
			"status":      status,
			"message":     msg,
			"docFindings": findings,
			"docBots":     docBots,
			"lastScanAt":  last.CompletedAt,
			"scanId":      last.ID,
		}, nil
	},
}

var completeOnboardingTool = spec[struct{}]{
	name:        "completeOnboarding",
	description: "Mark the organization's onboarding as complete. Safe to call more than once.",
	op:          always[struct{}](auth.OpCompleteOnboarding),
	exec: func(ctx context.Context, d *Dispatcher, actor tenant.Actor, _ *struct{}) (Result, error) {
		already := false
		err := d.deps.Store.InTx(ctx, func(tx store.Tx) error {
			org, err := tx.GetOrg(ctx, actor.OrgID)
			if err != nil {
				return err
			}
			if org.OnboardedAt != nil {
				already = true
				return nil
			}
			if err := tx.MarkOnboarded(ctx, actor.OrgID, d.now()); err != nil {
				return err
			}
			_, err = audit.Record(ctx, tx, actor, audit.EventOnboardingCompleted,
				fmt.Sprintf("Completed onboarding for %s", org.Name), nil)
			return err
		})
		if err != nil {
			return nil, err
		}
		if already {
			return Result{"message": "Onboarding was already complete.", "alreadyCompleted": true}, nil
		}
		return Result{"message": "Onboarding complete. Welcome aboard!", "alreadyCompleted": false}, nil
	},
}
