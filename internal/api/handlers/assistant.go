package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nikhilbhutani/botfleet/internal/agent"
	"github.com/nikhilbhutani/botfleet/internal/guardrails"
	"github.com/nikhilbhutani/botfleet/internal/llm"
	"github.com/nikhilbhutani/botfleet/internal/tenant"
	"github.com/nikhilbhutani/botfleet/internal/tools"
)

const maxHistory = 20

type AssistantHandler struct {
	gw       llm.Gateway
	d        *tools.Dispatcher
	model    string
	maxSteps int
	screen   *guardrails.InjectionDetector
}

func NewAssistantHandler(gw llm.Gateway, d *tools.Dispatcher, model string, maxSteps int) *AssistantHandler {
	return &AssistantHandler{
		gw:       gw,
		d:        d,
		model:    model,
		maxSteps: maxSteps,
		screen:   guardrails.NewInjectionDetector(gw),
	}
}

type chatRequest struct {
	Message string        `json:"message"`
	History []llm.Message `json:"history,omitempty"`
}

// Chat runs one assistant turn. Tools execute with the caller's role, so
// the assistant can never do more than the caller could.
func (h *AssistantHandler) Chat(w http.ResponseWriter, r *http.Request) {
	actor, ok := tenant.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if res := h.screen.Check(r.Context(), req.Message); !res.Allowed {
		slog.Warn("assistant message blocked", "org_id", actor.OrgID, "flags", res.Flags, "score", res.Score)
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": res.Reason, "flags": res.Flags})
		return
	}
	if len(req.History) > maxHistory {
		req.History = req.History[len(req.History)-maxHistory:]
	}

	a := agent.New(h.gw, agent.Config{Model: h.model, MaxSteps: h.maxSteps})
	a.RegisterCatalog(h.d, actor)

	resp, err := a.Run(r.Context(), req.History, req.Message)
	if errors.Is(err, llm.ErrNoProvider) {
		writeError(w, http.StatusServiceUnavailable, "the assistant is not configured")
		return
	}
	if err != nil {
		slog.Error("assistant failed", "error", err, "org_id", actor.OrgID)
		writeError(w, http.StatusBadGateway, "the assistant is unavailable, try again")
		return
	}

	slog.Info("assistant turn",
		"org_id", actor.OrgID,
		"steps", resp.TotalSteps,
		"tokens", resp.TokensUsed,
		"cost_usd", resp.CostUSD,
	)
	writeJSON(w, http.StatusOK, resp)
}

func (h *AssistantHandler) Models(w http.ResponseWriter, r *http.Request) {
	models := h.gw.ListModels()
	writeJSON(w, http.StatusOK, map[string]any{"models": models, "default": h.model})
}
