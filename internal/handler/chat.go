package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/config"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/errors"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/service"
)

type ChatHandler struct {
	chatService *service.ChatService
	cfg         *config.Config
}

func NewChatHandler(chatService *service.ChatService, cfg *config.Config) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		cfg:         cfg,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Messages       []chatMessage `json:"messages"`
	SessionID      string        `json:"session_id"`
	SessionIDAlt   string        `json:"sessionID"`
	ConversationID string        `json:"conversation_id"`
}

func (req *chatCompletionRequest) sessionID() string {
	if req.SessionID != "" {
		return req.SessionID
	}
	if req.SessionIDAlt != "" {
		return req.SessionIDAlt
	}
	return req.ConversationID
}

// POST /v1/chat/completions
// Relays the latest user message to the AI backend and blocks until the
// asynchronous answer comes back, then replies in the OpenAI chat completion
// shape.
func (h *ChatHandler) Completions(w http.ResponseWriter, r *http.Request) {
	var req chatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.InvalidInput("body", "must be a JSON object"))
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, errors.MissingRequired("messages"))
		return
	}

	prompt := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			prompt = req.Messages[i].Content
			break
		}
	}
	if prompt == "" {
		writeError(w, errors.MissingRequired("user message"))
		return
	}

	result, err := h.chatService.Complete(r.Context(), req.sessionID(), prompt)
	if err != nil {
		log.Error().Err(err).Msg("chat completion failed")
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":      fmt.Sprintf("chatcmpl-%s", result.SessionID),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   h.cfg.ModelName,
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]any{
					"role":    "assistant",
					"content": result.Content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     result.PromptTokens,
			"completion_tokens": result.CompletionTokens,
			"total_tokens":      result.TotalTokens,
		},
	})
}

// GET /v1/models
func (h *ChatHandler) Models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"object": "list",
		"data": []map[string]any{
			{
				"id":       h.cfg.ModelName,
				"object":   "model",
				"created":  1640995200,
				"owned_by": "internal-ai-bridge",
			},
		},
	})
}
