package model

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Metadata is a message's stored JSON document. The sqlite driver hands the
// TEXT column back as a string, so it scans itself rather than leaning on
// json.RawMessage; nil means the column was NULL.
type Metadata []byte

func (m *Metadata) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = nil
	case string:
		*m = Metadata(v)
	case []byte:
		*m = append(Metadata(nil), v...)
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}
	return nil
}

func (m Metadata) Value() (driver.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return string(m), nil
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	if len(m) == 0 {
		return []byte("null"), nil
	}
	return m, nil
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	*m = append((*m)[0:0], data...)
	return nil
}

// Message is a single immutable transcript entry. Ordering within a session
// is (created_at, id) ascending; id is the insertion-sequence tie-break for
// writes that land on the same timestamp.
type Message struct {
	ID        int64     `db:"id" json:"-"`
	SessionID string    `db:"session_id" json:"session_id"`
	Role      string    `db:"role" json:"role"`
	Content   string    `db:"content" json:"content"`
	Metadata  Metadata  `db:"metadata" json:"metadata"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SessionSummary describes one stored conversation for listings.
type SessionSummary struct {
	SessionID    string    `db:"session_id" json:"session_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
	MessageCount int       `db:"message_count" json:"message_count"`
}

// Common role tags. Role is an open set: backends may supply their own tags,
// so these are conventions, not an enum.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)
