package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/botfleet/internal/tenant"
	"github.com/nikhilbhutani/botfleet/internal/tools"
	"github.com/nikhilbhutani/botfleet/internal/webhook"
)

type WebhookHandler struct {
	d *tools.Dispatcher
}

func NewWebhookHandler(d *tools.Dispatcher) *WebhookHandler {
	return &WebhookHandler{d: d}
}

func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := tenant.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := h.d.DeleteWebhook(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		writeToolError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type verifyRequest struct {
	Payload   string `json:"payload"`
	Secret    string `json:"secret"`
	Signature string `json:"signature"`
}

// Verify checks a delivery signature for receivers debugging their
// integration.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Secret == "" || req.Signature == "" {
		writeError(w, http.StatusBadRequest, "secret and signature are required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":  webhook.Verify([]byte(req.Payload), req.Secret, req.Signature),
		"header": webhook.HeaderSignature,
	})
}
