package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/botfleet/internal/tenant"
	"github.com/nikhilbhutani/botfleet/internal/tools"
)

const maxArgsBytes = 1 << 20

type ToolHandler struct {
	d *tools.Dispatcher
}

func NewToolHandler(d *tools.Dispatcher) *ToolHandler {
	return &ToolHandler{d: d}
}

func (h *ToolHandler) List(w http.ResponseWriter, r *http.Request) {
	catalog := h.d.Catalog()
	writeJSON(w, http.StatusOK, map[string]any{"tools": catalog, "count": len(catalog)})
}

// Call runs the named tool with the request body as its arguments.
func (h *ToolHandler) Call(w http.ResponseWriter, r *http.Request) {
	actor, ok := tenant.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	name := chi.URLParam(r, "name")
	if !h.d.Has(name) {
		writeError(w, http.StatusNotFound, "unknown tool "+name)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxArgsBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "arguments too large")
		return
	}

	res, err := h.d.Execute(r.Context(), actor, name, json.RawMessage(body))
	if err != nil {
		writeToolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// StatusFor maps a tool error kind onto an HTTP status.
func StatusFor(kind tools.Kind) int {
	switch kind {
	case tools.KindValidation:
		return http.StatusBadRequest
	case tools.KindAuthorization:
		return http.StatusForbidden
	case tools.KindNotFound:
		return http.StatusNotFound
	case tools.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeToolError(w http.ResponseWriter, err error) {
	var te *tools.Error
	if !errors.As(err, &te) {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, StatusFor(te.Kind), map[string]any{"error": te.Message, "kind": te.Kind})
}
