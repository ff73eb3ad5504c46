package audit

import (
	"sync"

	"github.com/rs/zerolog"
)

// CallbackLog is an append-only in-memory record of every response payload
// the dispatch pipeline has seen. Entries are kept for the lifetime of the
// process; nothing prunes them.
type CallbackLog struct {
	mu      sync.RWMutex
	entries []map[string]any
	logger  zerolog.Logger
}

func NewCallbackLog(logger zerolog.Logger) *CallbackLog {
	return &CallbackLog{
		logger: logger.With().Str("component", "callback_log").Logger(),
	}
}

// Append records one payload and emits an audit event for it.
func (l *CallbackLog) Append(sessionID string, payload map[string]any) {
	l.mu.Lock()
	l.entries = append(l.entries, payload)
	total := len(l.entries)
	l.mu.Unlock()

	l.logger.Info().
		Str("session_id", sessionID).
		Int("total", total).
		Msg("callback recorded")
}

// Entries returns a snapshot of the log, oldest first.
func (l *CallbackLog) Entries() []map[string]any {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snapshot := make([]map[string]any, len(l.entries))
	copy(snapshot, l.entries)
	return snapshot
}

func (l *CallbackLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
