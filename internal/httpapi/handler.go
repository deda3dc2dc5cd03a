// Package httpapi exposes the chat engine over REST.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lumenworks/saleschat/internal/domain"
	"github.com/lumenworks/saleschat/internal/engine"
	"github.com/lumenworks/saleschat/internal/server"
)

// maxRequestBytes caps the request body. Inline attachments ride in the
// JSON payload, so this sits above the per-attachment limit.
const maxRequestBytes = 12 << 20

type Handler struct {
	engine *engine.Engine
	logger *slog.Logger
}

func NewHandler(eng *engine.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: eng, logger: logger}
}

// Register mounts the API routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/chat", h.handleChat)
	r.Get("/v1/sessions/{sessionID}", h.handleGetSession)
	r.Post("/v1/sessions/{sessionID}/close", h.handleCloseSession)
	r.Get("/healthz", h.handleHealth)
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	var req domain.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, domain.ErrInvalidRequest("invalid JSON payload"))
		return
	}

	resp, err := h.engine.HandleTurn(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	server.AddLogField(r.Context(), "session_id", resp.SessionID)
	if resp.LeadCollected {
		server.AddLogField(r.Context(), "lead_collected", "true")
	}
	if resp.Escalate {
		server.AddLogField(r.Context(), "escalated", "true")
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	rec, err := h.engine.Session(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.engine.Close(r.Context(), sessionID); err != nil {
		h.writeError(w, r, err)
		return
	}

	server.AddLogField(r.Context(), "session_id", sessionID)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"state":      domain.StateClosed,
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	server.AddError(r.Context(), err)

	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		h.logger.Error("unhandled error", slog.String("error", err.Error()))
		apiErr = domain.NewAPIError(domain.ErrorTypeServer, "internal server error")
	}

	h.writeJSON(w, apiErr.HTTPStatusCode(), map[string]any{"error": apiErr})
}
