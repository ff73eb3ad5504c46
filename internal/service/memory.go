package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/config"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/errors"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/model"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/repository"
)

// allowedResponseStatuses are the status values a callback may carry.
var allowedResponseStatuses = map[string]bool{
	"info":     true,
	"success":  true,
	"error":    true,
	"complete": true,
}

// MemoryService owns the conversation history features shared by the HTTP
// surface and the response pipeline.
type MemoryService struct {
	repo   repository.ConversationRepository
	cfg    *config.Config
	logger zerolog.Logger
}

func NewMemoryService(repo repository.ConversationRepository, cfg *config.Config, logger zerolog.Logger) *MemoryService {
	return &MemoryService{
		repo:   repo,
		cfg:    cfg,
		logger: logger.With().Str("component", "memory").Logger(),
	}
}

// NormalizeLimit parses a caller-supplied limit, falling back to the
// configured history limit when it is empty, unparseable, or non-positive.
func (s *MemoryService) NormalizeLimit(raw string) int {
	def := s.cfg.HistoryLimit
	if raw == "" {
		return def
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		s.logger.Warn().Str("limit", raw).Int("fallback", def).Msg("invalid limit, using fallback")
		return def
	}
	if parsed <= 0 {
		s.logger.Warn().Str("limit", raw).Int("fallback", def).Msg("non-positive limit, using fallback")
		return def
	}
	return parsed
}

func (s *MemoryService) ListSessions(ctx context.Context, limit int) ([]model.SessionSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	sessions, err := s.repo.ListSessions(ctx, limit)
	if err != nil {
		return nil, errors.Database(err)
	}
	return sessions, nil
}

// ConversationDetail returns a session's transcript. A limit of zero returns
// the full history. An empty transcript only comes back for a session that
// actually exists; unknown session ids are reported as missing.
func (s *MemoryService) ConversationDetail(ctx context.Context, sessionID string, limit int) ([]model.Message, error) {
	messages, err := s.repo.GetMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, errors.Database(err)
	}
	if len(messages) == 0 {
		summary, err := s.repo.GetSession(ctx, sessionID)
		if err != nil {
			return nil, errors.Database(err)
		}
		if summary == nil {
			return nil, errors.NotFound("session")
		}
	}
	return messages, nil
}

// RecallResult packages a transcript for consumption by an AI agent: the raw
// messages plus a prompt-ready rendering and per-role views.
type RecallResult struct {
	SessionID         string          `json:"session_id"`
	Messages          []model.Message `json:"messages"`
	ContextBlock      string          `json:"context_block"`
	UserMessages      []string        `json:"user_messages"`
	AssistantMessages []string        `json:"assistant_messages"`
	MessageCount      int             `json:"message_count"`
	LimitApplied      int             `json:"limit_applied"`
}

func (s *MemoryService) RecallMemory(ctx context.Context, sessionID string, limit int) (*RecallResult, error) {
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}
	messages, err := s.repo.GetMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, errors.Database(err)
	}

	result := &RecallResult{
		SessionID:         sessionID,
		Messages:          messages,
		UserMessages:      []string{},
		AssistantMessages: []string{},
		MessageCount:      len(messages),
		LimitApplied:      limit,
	}
	if len(messages) > 0 {
		result.ContextBlock = FormatHistory(messages)
	}
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleUser:
			result.UserMessages = append(result.UserMessages, msg.Content)
		case model.RoleAssistant:
			result.AssistantMessages = append(result.AssistantMessages, msg.Content)
		}
	}
	return result, nil
}

func (s *MemoryService) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.repo.DeleteSession(ctx, sessionID); err != nil {
		return errors.Database(err)
	}
	return nil
}

// RecordResponseParams carries one inbound response. An empty Message is
// treated as absent and triggers inference from the payload.
type RecordResponseParams struct {
	SessionID string
	Message   string
	Role      string
	Status    string
	Payload   map[string]any
}

// ResponseRecord is the normalized form of a recorded response, as handed to
// the dispatcher and returned to callback senders.
type ResponseRecord struct {
	SessionID       string         `json:"session_id"`
	Role            string         `json:"role"`
	Message         string         `json:"message"`
	Status          string         `json:"status,omitempty"`
	Stored          bool           `json:"stored"`
	MessageInferred bool           `json:"message_inferred"`
	Payload         map[string]any `json:"payload"`
}

// RecordResponse normalizes an inbound response and persists it. The session
// id may live anywhere in the payload, the message falls back through
// well-known payload fields, and the stored metadata is the payload enriched
// with the resolved identifiers.
func (s *MemoryService) RecordResponse(ctx context.Context, params RecordResponseParams) (*ResponseRecord, error) {
	payload := make(map[string]any, len(params.Payload)+4)
	for k, v := range params.Payload {
		payload[k] = v
	}

	sessionID := params.SessionID
	if sessionID == "" {
		sessionID = ExtractSessionID(payload)
	}
	if sessionID == "" {
		return nil, errors.MissingRequired("session_id")
	}

	status := params.Status
	if status == "" {
		status = statusFromPayload(payload["status"])
	}
	if status != "" {
		if !allowedResponseStatuses[status] {
			allowed := make([]string, 0, len(allowedResponseStatuses))
			for name := range allowedResponseStatuses {
				allowed = append(allowed, name)
			}
			sort.Strings(allowed)
			return nil, errors.InvalidInput("status",
				fmt.Sprintf("'%s' is not one of: %s", status, strings.Join(allowed, ", ")))
		}
		setDefault(payload, "status", status)
	}

	role := params.Role
	if role == "" {
		if v, ok := payload["role"].(string); ok && v != "" {
			role = v
		}
	}
	if role == "" {
		role = model.RoleAssistant
	}

	message := params.Message
	messageInferred := false
	if message == "" {
		for _, key := range []string{"message", "payload_summary", "content"} {
			if value := payload[key]; value != nil {
				if text := stringifyValue(value); text != "" {
					message = text
					break
				}
			}
		}
	}
	if message == "" {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.InvalidInput("payload", "must be serializable as JSON")
		}
		message = string(encoded)
		messageInferred = true
	}

	setDefault(payload, "sessionID", sessionID)
	setDefault(payload, "session_id", sessionID)
	setDefault(payload, "role", role)
	setDefault(payload, "message", message)

	metadata, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.InvalidInput("payload", "must be serializable as JSON")
	}

	if err := s.repo.RecordMessage(ctx, repository.RecordMessageParams{
		SessionID: sessionID,
		Role:      role,
		Content:   message,
		Metadata:  metadata,
	}); err != nil {
		return nil, errors.Database(err)
	}

	return &ResponseRecord{
		SessionID:       sessionID,
		Role:            role,
		Message:         message,
		Status:          status,
		Stored:          true,
		MessageInferred: messageInferred,
		Payload:         payload,
	}, nil
}

// statusFromPayload stringifies a payload's status so non-string values are
// still validated. Absent or empty-ish values (nil, false, zero, "") mean no
// status was supplied.
func statusFromPayload(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if !v {
			return ""
		}
	case float64:
		if v == 0 {
			return ""
		}
	}
	return stringifyValue(value)
}

func setDefault(payload map[string]any, key string, value any) {
	if _, ok := payload[key]; !ok {
		payload[key] = value
	}
}

func stringifyValue(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}

// FormatHistory renders stored history into a readable transcript block, one
// "Role: content" line per message, oldest first.
func FormatHistory(messages []model.Message) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", capitalize(msg.Role), msg.Content))
	}
	return strings.Join(lines, "\n")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
