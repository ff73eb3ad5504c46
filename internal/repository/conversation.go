package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/database"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/model"
)

type RecordMessageParams struct {
	SessionID string
	Role      string
	Content   string
	Metadata  model.Metadata
	// CreatedAt defaults to time.Now().UTC() when zero.
	CreatedAt time.Time
}

type ConversationRepository interface {
	RecordMessage(ctx context.Context, params RecordMessageParams) error
	GetMessages(ctx context.Context, sessionID string, limit int) ([]model.Message, error)
	GetSession(ctx context.Context, sessionID string) (*model.SessionSummary, error)
	ListSessions(ctx context.Context, limit int) ([]model.SessionSummary, error)
	DeleteSession(ctx context.Context, sessionID string) error
	DeleteOldMessages(ctx context.Context, cutoff time.Time) (int64, error)
}

type conversationRepo struct {
	db *database.DB
}

func NewConversationRepository(db *database.DB) ConversationRepository {
	return &conversationRepo{db: db}
}

// RecordMessage upserts the session, appends one message row, and touches the
// session's updated_at, all in a single transaction. Two concurrent first
// messages for a new session cannot race the create.
func (r *conversationRepo) RecordMessage(ctx context.Context, params RecordMessageParams) error {
	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (session_id, created_at, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT (session_id) DO NOTHING
		`, params.SessionID, createdAt, createdAt); err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (session_id, role, content, metadata, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, params.SessionID, params.Role, params.Content, params.Metadata, createdAt); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE sessions SET updated_at = ? WHERE session_id = ?
		`, createdAt, params.SessionID); err != nil {
			return fmt.Errorf("touch session: %w", err)
		}

		return nil
	})
}

// GetMessages returns a session's transcript oldest first. A positive limit
// selects the limit most recent messages, re-sorted into chronological order
// (the tail of the transcript, not the head). An unknown session yields an
// empty slice.
func (r *conversationRepo) GetMessages(ctx context.Context, sessionID string, limit int) ([]model.Message, error) {
	query := `
		SELECT id, session_id, role, content, metadata, created_at
		FROM messages
		WHERE session_id = ?
		ORDER BY created_at ASC, id ASC
	`
	args := []any{sessionID}

	if limit > 0 {
		query = `
			SELECT id, session_id, role, content, metadata, created_at FROM (
				SELECT id, session_id, role, content, metadata, created_at
				FROM messages
				WHERE session_id = ?
				ORDER BY created_at DESC, id DESC
				LIMIT ?
			)
			ORDER BY created_at ASC, id ASC
		`
		args = append(args, limit)
	}

	msgs := []model.Message{}
	if err := r.db.SelectContext(ctx, &msgs, query, args...); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *conversationRepo) GetSession(ctx context.Context, sessionID string) (*model.SessionSummary, error) {
	var summary model.SessionSummary
	err := r.db.GetContext(ctx, &summary, `
		SELECT s.session_id, s.created_at, s.updated_at, COUNT(m.id) AS message_count
		FROM sessions s
		LEFT JOIN messages m ON m.session_id = s.session_id
		WHERE s.session_id = ?
		GROUP BY s.session_id
	`, sessionID)
	return HandleNotFound(&summary, err)
}

func (r *conversationRepo) ListSessions(ctx context.Context, limit int) ([]model.SessionSummary, error) {
	sessions := []model.SessionSummary{}
	err := r.db.SelectContext(ctx, &sessions, `
		SELECT s.session_id, s.created_at, s.updated_at, COUNT(m.id) AS message_count
		FROM sessions s
		LEFT JOIN messages m ON m.session_id = s.session_id
		GROUP BY s.session_id
		ORDER BY s.updated_at DESC
		LIMIT ?
	`, limit)
	return sessions, err
}

func (r *conversationRepo) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	return err
}

// DeleteOldMessages removes messages older than cutoff and any session left
// with zero messages, returning the number of messages removed.
func (r *conversationRepo) DeleteOldMessages(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE created_at < ?`, cutoff)
		if err != nil {
			return fmt.Errorf("delete old messages: %w", err)
		}
		removed, err = result.RowsAffected()
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM sessions
			WHERE NOT EXISTS (
				SELECT 1 FROM messages WHERE messages.session_id = sessions.session_id
			)
		`); err != nil {
			return fmt.Errorf("delete empty sessions: %w", err)
		}

		return nil
	})
	return removed, err
}
