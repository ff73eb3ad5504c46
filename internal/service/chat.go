package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/config"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/errors"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/model"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/pending"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/repository"
)

// BackendClient starts an AI message via webhook. The answer does not come
// back on this call; it arrives later through the callback endpoints.
type BackendClient interface {
	StartMessage(ctx context.Context, payload map[string]any) (map[string]any, error)
}

// ChatService runs one chat turn end to end: prompt assembly, backend
// hand-off, and the blocking wait for the asynchronous answer.
type ChatService struct {
	repo     repository.ConversationRepository
	registry *pending.Registry
	client   BackendClient
	cfg      *config.Config
	logger   zerolog.Logger
}

func NewChatService(
	repo repository.ConversationRepository,
	registry *pending.Registry,
	client BackendClient,
	cfg *config.Config,
	logger zerolog.Logger,
) *ChatService {
	return &ChatService{
		repo:     repo,
		registry: registry,
		client:   client,
		cfg:      cfg,
		logger:   logger.With().Str("component", "chat").Logger(),
	}
}

// ChatResult is one completed turn. Token counts are whitespace word counts,
// good enough for clients that only display usage.
type ChatResult struct {
	SessionID        string
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Complete relays one user prompt to the AI backend and blocks until the
// matching callback arrives or the response timeout elapses. An empty
// sessionID starts a fresh conversation under a generated id.
//
// The slot for the session is registered before the user message is stored
// and before the backend is called, so a callback racing the hand-off still
// finds a waiter. The slot is always released on the way out.
func (s *ChatService) Complete(ctx context.Context, sessionID, prompt string) (*ChatResult, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
		s.logger.Info().Str("session_id", sessionID).Msg("started new session")
	}

	history, err := s.repo.GetMessages(ctx, sessionID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, errors.Database(err)
	}
	finalPrompt := buildPrompt(prompt, sessionID, history)

	w := s.registry.Register(sessionID)
	defer s.registry.Release(w)

	if err := s.repo.RecordMessage(ctx, repository.RecordMessageParams{
		SessionID: sessionID,
		Role:      model.RoleUser,
		Content:   prompt,
		Metadata:  []byte(`{"source":"openai_chat"}`),
	}); err != nil {
		return nil, errors.Database(err)
	}

	s.logger.Info().Str("session_id", sessionID).Msg("sending prompt to backend")
	if _, err := s.client.StartMessage(ctx, map[string]any{
		"prompt":    finalPrompt,
		"sessionID": sessionID,
	}); err != nil {
		return nil, errors.BackendUnavailable(err)
	}

	payload, err := s.registry.Await(ctx, w, s.cfg.ResponseTimeout())
	if err != nil {
		if errors.IsTimeout(err) {
			s.logger.Error().Str("session_id", sessionID).Msg("timed out waiting for callback")
		}
		return nil, err
	}

	content := ""
	if value, ok := payload["message"]; ok && value != nil {
		content = stringifyValue(value)
	}

	promptTokens := len(strings.Fields(prompt))
	completionTokens := len(strings.Fields(content))
	return &ChatResult{
		SessionID:        sessionID,
		Content:          content,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}, nil
}

// buildPrompt prepends recent history and appends the standing instruction
// telling the backend how to route its answer back.
func buildPrompt(prompt, sessionID string, history []model.Message) string {
	notice := fmt.Sprintf(
		" **NOTICE: this is an automated message sent via webhook. "+
			"When you have a response, you MUST call the `send_user_response` tool with your response. "+
			"This is the ONLY way to send your response back to the user and the chat client. "+
			"Available memory tools: list_conversations, get_conversation, recall_conversation_context, send_user_response. "+
			"Current conversation_id/session_id: %s**",
		sessionID,
	)

	final := prompt
	if len(history) > 0 {
		final = fmt.Sprintf(
			"Conversation history to help you stay consistent:\n%s\n\nLatest user message:\n%s",
			FormatHistory(history), prompt,
		)
	}
	return final + notice
}
