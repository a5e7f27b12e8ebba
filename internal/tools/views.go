package tools

import (
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/botfleet/internal/models"
)

// Tool results use camelCase keys; models keep the snake_case tags of the
// HTTP and storage layers, so each exposed entity gets a view here.

type proposalView struct {
	ID             uuid.UUID  `json:"id"`
	AgentName      string     `json:"agentName"`
	CurrentPrompt  string     `json:"currentPrompt"`
	ProposedPrompt string     `json:"proposedPrompt"`
	Reason         string     `json:"reason"`
	Severity       string     `json:"severity"`
	Status         string     `json:"status"`
	ResolvedBy     *uuid.UUID `json:"resolvedBy,omitempty"`
	ResolutionNote string     `json:"resolutionNote,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
}

func newProposalView(p *models.Proposal) proposalView {
	return proposalView{
		ID:             p.ID,
		AgentName:      p.AgentName,
		CurrentPrompt:  p.CurrentPrompt,
		ProposedPrompt: p.ProposedPrompt,
		Reason:         p.Reason,
		Severity:       p.Severity,
		Status:         p.Status,
		ResolvedBy:     p.ResolvedBy,
		ResolutionNote: p.ResolutionNote,
		CreatedAt:      p.CreatedAt,
		ResolvedAt:     p.ResolvedAt,
	}
}

type webhookView struct {
	ID          uuid.UUID `json:"id"`
	URL         string    `json:"url"`
	Events      []string  `json:"events"`
	Active      bool      `json:"active"`
	Description string    `json:"description,omitempty"`
	CreatedBy   uuid.UUID `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newWebhookView(w *models.WebhookEndpoint) webhookView {
	events := w.Events
	if events == nil {
		events = []string{}
	}
	return webhookView{
		ID:          w.ID,
		URL:         w.URL,
		Events:      events,
		Active:      w.Active,
		Description: w.Description,
		CreatedBy:   w.CreatedBy,
		CreatedAt:   w.CreatedAt,
	}
}

type scanBotView struct {
	BotName  string `json:"botName"`
	Category string `json:"category"`
	Findings int    `json:"findings"`
	Error    string `json:"error,omitempty"`
}

type scanView struct {
	ID          uuid.UUID     `json:"id"`
	RepoName    string        `json:"repoName"`
	Status      string        `json:"status"`
	Findings    int           `json:"findings"`
	DurationMs  int64         `json:"durationMs"`
	Error       string        `json:"error,omitempty"`
	Bots        []scanBotView `json:"bots"`
	TriggeredBy uuid.UUID     `json:"triggeredBy"`
	StartedAt   time.Time     `json:"startedAt"`
	CompletedAt time.Time     `json:"completedAt"`
}

func newScanView(run *models.ScanRun) scanView {
	bots := make([]scanBotView, 0, len(run.BotResults))
	for _, b := range run.BotResults {
		bots = append(bots, scanBotView(b))
	}
	return scanView{
		ID:          run.ID,
		RepoName:    run.RepoName,
		Status:      run.Status,
		Findings:    run.Findings,
		DurationMs:  run.DurationMs,
		Error:       run.Error,
		Bots:        bots,
		TriggeredBy: run.TriggeredBy,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
	}
}
