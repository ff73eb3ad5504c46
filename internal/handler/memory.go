package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/audit"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/service"
)

type MemoryHandler struct {
	memoryService *service.MemoryService
	callbackLog   *audit.CallbackLog
}

func NewMemoryHandler(memoryService *service.MemoryService, callbackLog *audit.CallbackLog) *MemoryHandler {
	return &MemoryHandler{
		memoryService: memoryService,
		callbackLog:   callbackLog,
	}
}

// GET /conversations
func (h *MemoryHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit = h.memoryService.NormalizeLimit(raw)
	}

	sessions, err := h.memoryService.ListSessions(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list sessions")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// GET /conversations/{sessionID}
func (h *MemoryHandler) ConversationDetail(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	messages, err := h.memoryService.ConversationDetail(r.Context(), sessionID, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"messages":   messages,
	})
}

// DELETE /conversations/{sessionID}
func (h *MemoryHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.memoryService.DeleteSession(r.Context(), sessionID); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to delete session")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "deleted",
		"session_id": sessionID,
	})
}

// GET|POST /memory/recall
// Returns a prompt-ready recall package. The session id may arrive in the
// body, the query string, or a header; a request without one gets a probe
// response instead of an error so agents can discover the contract.
func (h *MemoryHandler) Recall(w http.ResponseWriter, r *http.Request) {
	sessionID, limitRaw := h.recallParams(r)

	if sessionID == "" {
		log.Info().Msg("memory recall probe without session id")
		writeJSON(w, http.StatusOK, map[string]any{
			"status":              "healthy",
			"requires_session_id": true,
			"message":             "Provide session_id via body (sessionID/conversationID) or query once available.",
		})
		return
	}

	result, err := h.memoryService.RecallMemory(r.Context(), sessionID, h.memoryService.NormalizeLimit(limitRaw))
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("memory recall failed")
		writeError(w, err)
		return
	}

	log.Info().Str("session_id", sessionID).Int("message_count", result.MessageCount).
		Int("limit", result.LimitApplied).Msg("memory recall served")
	writeJSON(w, http.StatusOK, result)
}

func (h *MemoryHandler) recallParams(r *http.Request) (sessionID, limitRaw string) {
	query := r.URL.Query()
	queryMap := make(map[string]any, len(query))
	for key := range query {
		queryMap[key] = query.Get(key)
	}
	headerMap := make(map[string]any, len(r.Header))
	for key := range r.Header {
		headerMap[key] = r.Header.Get(key)
	}

	limitRaw = firstNonEmpty(query.Get("limit"), query.Get("history_limit"))

	if r.Method == http.MethodGet {
		sessionID = service.ExtractSessionID(queryMap)
		if sessionID == "" {
			sessionID = service.ExtractSessionID(headerMap)
		}
		return sessionID, limitRaw
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body == nil {
		body = map[string]any{}
	}
	sessionID = service.ExtractSessionID(body)
	if sessionID == "" {
		sessionID = service.ExtractSessionID(queryMap)
	}
	if sessionID == "" {
		sessionID = service.ExtractSessionID(headerMap)
	}

	bodyLimit := ""
	for _, key := range []string{"limit", "history_limit"} {
		if value, ok := body[key]; ok && value != nil {
			if text := stringify(value); text != "" {
				bodyLimit = text
				break
			}
		}
	}
	limitRaw = firstNonEmpty(bodyLimit, limitRaw)
	return sessionID, limitRaw
}

// GET /v1/messages
// Dumps the in-memory callback log, oldest first.
func (h *MemoryHandler) Messages(w http.ResponseWriter, r *http.Request) {
	entries := h.callbackLog.Entries()
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": entries,
		"count":    len(entries),
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
