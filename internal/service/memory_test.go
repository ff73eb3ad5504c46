package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/config"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/database"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/errors"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/model"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/repository"
)

func newTestMemoryService(t *testing.T) (*MemoryService, repository.ConversationRepository) {
	t.Helper()

	db, err := database.Connect(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := repository.NewConversationRepository(db)
	cfg := &config.Config{HistoryLimit: 20}
	return NewMemoryService(repo, cfg, zerolog.Nop()), repo
}

func TestNormalizeLimit(t *testing.T) {
	svc, _ := newTestMemoryService(t)

	tests := []struct {
		name string
		raw  string
		want int
	}{
		{name: "empty falls back to default", raw: "", want: 20},
		{name: "valid limit passes through", raw: "5", want: 5},
		{name: "garbage falls back to default", raw: "abc", want: 20},
		{name: "zero falls back to default", raw: "0", want: 20},
		{name: "negative falls back to default", raw: "-3", want: 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.NormalizeLimit(tt.raw))
		})
	}
}

func TestConversationDetail(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the transcript", func(t *testing.T) {
		svc, repo := newTestMemoryService(t)
		require.NoError(t, repo.RecordMessage(ctx, repository.RecordMessageParams{
			SessionID: "s1", Role: "user", Content: "hi",
		}))

		msgs, err := svc.ConversationDetail(ctx, "s1", 0)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "hi", msgs[0].Content)
	})

	t.Run("reports unknown sessions as not found", func(t *testing.T) {
		svc, _ := newTestMemoryService(t)

		_, err := svc.ConversationDetail(ctx, "missing", 0)
		require.Error(t, err)
		assert.True(t, errors.IsNotFound(err))
	})

	t.Run("distinguishes an existing session with no messages", func(t *testing.T) {
		db, err := database.Connect(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })

		repo := repository.NewConversationRepository(db)
		svc := NewMemoryService(repo, &config.Config{HistoryLimit: 20}, zerolog.Nop())

		now := time.Now().UTC()
		_, err = db.Exec(`INSERT INTO sessions (session_id, created_at, updated_at) VALUES (?, ?, ?)`,
			"bare", now, now)
		require.NoError(t, err)

		msgs, err := svc.ConversationDetail(ctx, "bare", 0)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})
}

func TestRecallMemory(t *testing.T) {
	ctx := context.Background()

	t.Run("builds the recall payload", func(t *testing.T) {
		svc, repo := newTestMemoryService(t)
		require.NoError(t, repo.RecordMessage(ctx, repository.RecordMessageParams{
			SessionID: "s1", Role: "user", Content: "what time is it",
		}))
		require.NoError(t, repo.RecordMessage(ctx, repository.RecordMessageParams{
			SessionID: "s1", Role: "assistant", Content: "noon",
		}))

		result, err := svc.RecallMemory(ctx, "s1", 0)
		require.NoError(t, err)
		assert.Equal(t, "s1", result.SessionID)
		assert.Equal(t, 2, result.MessageCount)
		assert.Equal(t, 20, result.LimitApplied)
		assert.Equal(t, []string{"what time is it"}, result.UserMessages)
		assert.Equal(t, []string{"noon"}, result.AssistantMessages)
		assert.Equal(t, "User: what time is it\nAssistant: noon", result.ContextBlock)
	})

	t.Run("is empty but well-formed for unknown sessions", func(t *testing.T) {
		svc, _ := newTestMemoryService(t)

		result, err := svc.RecallMemory(ctx, "missing", 5)
		require.NoError(t, err)
		assert.Zero(t, result.MessageCount)
		assert.Empty(t, result.ContextBlock)
		assert.Equal(t, 5, result.LimitApplied)
		assert.NotNil(t, result.UserMessages)
		assert.NotNil(t, result.AssistantMessages)
	})
}

func TestRecordResponse(t *testing.T) {
	ctx := context.Background()

	t.Run("persists an explicit response", func(t *testing.T) {
		svc, repo := newTestMemoryService(t)

		record, err := svc.RecordResponse(ctx, RecordResponseParams{
			SessionID: "s1",
			Message:   "all done",
			Status:    "success",
		})
		require.NoError(t, err)
		assert.Equal(t, "s1", record.SessionID)
		assert.Equal(t, model.RoleAssistant, record.Role)
		assert.Equal(t, "all done", record.Message)
		assert.Equal(t, "success", record.Status)
		assert.True(t, record.Stored)
		assert.False(t, record.MessageInferred)

		msgs, err := repo.GetMessages(ctx, "s1", 0)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, "all done", msgs[0].Content)
	})

	t.Run("extracts the session id from the payload", func(t *testing.T) {
		svc, _ := newTestMemoryService(t)

		record, err := svc.RecordResponse(ctx, RecordResponseParams{
			Message: "found you",
			Payload: map[string]any{
				"data": map[string]any{"Session-Id": "nested-7"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "nested-7", record.SessionID)
	})

	t.Run("requires a session id somewhere", func(t *testing.T) {
		svc, _ := newTestMemoryService(t)

		_, err := svc.RecordResponse(ctx, RecordResponseParams{Message: "orphan"})
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeMissingRequired, errors.GetCode(err))
	})

	t.Run("rejects unknown statuses", func(t *testing.T) {
		svc, _ := newTestMemoryService(t)

		_, err := svc.RecordResponse(ctx, RecordResponseParams{
			SessionID: "s1",
			Message:   "hi",
			Status:    "partial",
		})
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
	})

	t.Run("rejects a non-string payload status", func(t *testing.T) {
		svc, _ := newTestMemoryService(t)

		_, err := svc.RecordResponse(ctx, RecordResponseParams{
			SessionID: "s1",
			Message:   "hi",
			Payload:   map[string]any{"status": float64(123)},
		})
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
	})

	t.Run("ignores a falsy payload status", func(t *testing.T) {
		svc, _ := newTestMemoryService(t)

		record, err := svc.RecordResponse(ctx, RecordResponseParams{
			SessionID: "s1",
			Message:   "hi",
			Payload:   map[string]any{"status": false},
		})
		require.NoError(t, err)
		assert.Empty(t, record.Status)
	})

	t.Run("accepts a status carried in the payload", func(t *testing.T) {
		svc, _ := newTestMemoryService(t)

		record, err := svc.RecordResponse(ctx, RecordResponseParams{
			SessionID: "s1",
			Message:   "hi",
			Payload:   map[string]any{"status": "complete"},
		})
		require.NoError(t, err)
		assert.Equal(t, "complete", record.Status)
	})

	t.Run("falls back through payload fields for the message", func(t *testing.T) {
		svc, _ := newTestMemoryService(t)

		record, err := svc.RecordResponse(ctx, RecordResponseParams{
			SessionID: "s1",
			Payload:   map[string]any{"payload_summary": "summarized"},
		})
		require.NoError(t, err)
		assert.Equal(t, "summarized", record.Message)
		assert.False(t, record.MessageInferred)
	})

	t.Run("serializes the payload when no message can be found", func(t *testing.T) {
		svc, _ := newTestMemoryService(t)

		record, err := svc.RecordResponse(ctx, RecordResponseParams{
			SessionID: "s1",
			Payload:   map[string]any{"result": "ok", "count": float64(3)},
		})
		require.NoError(t, err)
		assert.True(t, record.MessageInferred)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal([]byte(record.Message), &decoded))
		assert.Equal(t, "ok", decoded["result"])
	})

	t.Run("enriches the payload without clobbering caller fields", func(t *testing.T) {
		svc, _ := newTestMemoryService(t)

		record, err := svc.RecordResponse(ctx, RecordResponseParams{
			SessionID: "s1",
			Message:   "resolved",
			Payload:   map[string]any{"role": "system", "message": "original"},
		})
		require.NoError(t, err)
		assert.Equal(t, "system", record.Role)
		assert.Equal(t, "s1", record.Payload["sessionID"])
		assert.Equal(t, "s1", record.Payload["session_id"])
		assert.Equal(t, "original", record.Payload["message"])
	})

	t.Run("roles pass through for non-assistant senders", func(t *testing.T) {
		svc, repo := newTestMemoryService(t)

		record, err := svc.RecordResponse(ctx, RecordResponseParams{
			SessionID: "s1",
			Role:      model.RoleUser,
			Message:   "typed by a person",
		})
		require.NoError(t, err)
		assert.Equal(t, model.RoleUser, record.Role)

		msgs, err := repo.GetMessages(ctx, "s1", 0)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, model.RoleUser, msgs[0].Role)
	})
}

func TestFormatHistory(t *testing.T) {
	t.Run("renders one line per message", func(t *testing.T) {
		got := FormatHistory([]model.Message{
			{Role: "user", Content: "hello"},
			{Role: "assistant", Content: "hi there"},
		})
		assert.Equal(t, "User: hello\nAssistant: hi there", got)
	})

	t.Run("is empty for no messages", func(t *testing.T) {
		assert.Empty(t, FormatHistory(nil))
	})
}
