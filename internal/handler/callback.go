package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/config"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/errors"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/model"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/service"
)

type CallbackHandler struct {
	memoryService *service.MemoryService
	dispatcher    *service.Dispatcher
}

func NewCallbackHandler(memoryService *service.MemoryService, dispatcher *service.Dispatcher) *CallbackHandler {
	return &CallbackHandler{
		memoryService: memoryService,
		dispatcher:    dispatcher,
	}
}

// POST /callback
// Entry point for the AI backend's asynchronous answers. The payload is
// normalized and persisted before the sender gets its 200, then fanned out
// to listeners in the background.
func (h *CallbackHandler) Callback(w http.ResponseWriter, r *http.Request) {
	payload, err := decodeObject(r)
	if err != nil {
		writeError(w, err)
		return
	}

	record, err := h.memoryService.RecordResponse(r.Context(), service.RecordResponseParams{
		Payload: payload,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to record callback")
		writeError(w, err)
		return
	}

	h.dispatchAsync(record)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "received",
		"session_id": record.SessionID,
	})
}

type inboundResponseRequest struct {
	SessionID string         `json:"session_id"`
	Message   string         `json:"message"`
	Role      string         `json:"role"`
	Status    string         `json:"status"`
	Payload   map[string]any `json:"payload"`
}

// POST /v1/responses
// Records a message on behalf of a human participant. Same pipeline as
// /callback, but the role defaults to "user" and the envelope is explicit
// rather than free-form.
func (h *CallbackHandler) Responses(w http.ResponseWriter, r *http.Request) {
	var req inboundResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.InvalidInput("body", "must be a JSON object"))
		return
	}

	role := req.Role
	if role == "" {
		role = model.RoleUser
	}

	record, err := h.memoryService.RecordResponse(r.Context(), service.RecordResponseParams{
		SessionID: req.SessionID,
		Message:   req.Message,
		Role:      role,
		Status:    req.Status,
		Payload:   req.Payload,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to record response")
		writeError(w, err)
		return
	}

	h.dispatchAsync(record)

	writeJSON(w, http.StatusOK, record)
}

// dispatchAsync fans the record out without holding up the sender. The
// dispatch gets its own deadline; the request context dies with the response.
func (h *CallbackHandler) dispatchAsync(record *service.ResponseRecord) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), config.FrontendForwardTimeout+10*time.Second)
		defer cancel()
		h.dispatcher.Dispatch(ctx, record)
	}()
}

func decodeObject(r *http.Request) (map[string]any, error) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return nil, errors.InvalidInput("body", "must be a JSON object")
	}
	if payload == nil {
		return nil, errors.InvalidInput("body", "must be a JSON object")
	}
	return payload, nil
}
