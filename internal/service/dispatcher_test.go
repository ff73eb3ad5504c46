package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/audit"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/pending"
)

type capturePublisher struct {
	sessionID string
	payload   map[string]any
	calls     int
}

func (p *capturePublisher) Publish(_ context.Context, sessionID string, payload map[string]any) {
	p.sessionID = sessionID
	p.payload = payload
	p.calls++
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("appends to the callback log", func(t *testing.T) {
		log := audit.NewCallbackLog(zerolog.Nop())
		d := NewDispatcher(pending.NewRegistry(), log, nil, "", zerolog.Nop())

		d.Dispatch(ctx, &ResponseRecord{
			SessionID: "s1",
			Payload:   map[string]any{"message": "hi"},
		})

		entries := log.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, "hi", entries[0]["message"])
	})

	t.Run("wakes the pending request for the session", func(t *testing.T) {
		registry := pending.NewRegistry()
		d := NewDispatcher(registry, audit.NewCallbackLog(zerolog.Nop()), nil, "", zerolog.Nop())

		w := registry.Register("s1")
		defer registry.Release(w)

		d.Dispatch(ctx, &ResponseRecord{
			SessionID: "s1",
			Payload:   map[string]any{"message": "answer"},
		})

		payload, err := registry.Await(ctx, w, time.Second)
		require.NoError(t, err)
		assert.Equal(t, "answer", payload["message"])
	})

	t.Run("tolerates a session nobody is waiting on", func(t *testing.T) {
		d := NewDispatcher(pending.NewRegistry(), audit.NewCallbackLog(zerolog.Nop()), nil, "", zerolog.Nop())
		d.Dispatch(ctx, &ResponseRecord{
			SessionID: "ghost",
			Payload:   map[string]any{"message": "unclaimed"},
		})
	})

	t.Run("publishes to the event broker when one is wired", func(t *testing.T) {
		pub := &capturePublisher{}
		d := NewDispatcher(pending.NewRegistry(), audit.NewCallbackLog(zerolog.Nop()), pub, "", zerolog.Nop())

		d.Dispatch(ctx, &ResponseRecord{
			SessionID: "s1",
			Payload:   map[string]any{"message": "live"},
		})

		assert.Equal(t, 1, pub.calls)
		assert.Equal(t, "s1", pub.sessionID)
		assert.Equal(t, "live", pub.payload["message"])
	})

	t.Run("forwards the payload to the frontend webhook", func(t *testing.T) {
		var got map[string]any
		frontend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusOK)
		}))
		defer frontend.Close()

		d := NewDispatcher(pending.NewRegistry(), audit.NewCallbackLog(zerolog.Nop()), nil, frontend.URL, zerolog.Nop())
		d.Dispatch(ctx, &ResponseRecord{
			SessionID: "s1",
			Payload:   map[string]any{"message": "forwarded"},
		})

		assert.Equal(t, "forwarded", got["message"])
	})

	t.Run("survives a failing frontend webhook", func(t *testing.T) {
		frontend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusBadGateway)
		}))
		defer frontend.Close()

		log := audit.NewCallbackLog(zerolog.Nop())
		d := NewDispatcher(pending.NewRegistry(), log, nil, frontend.URL, zerolog.Nop())
		d.Dispatch(ctx, &ResponseRecord{
			SessionID: "s1",
			Payload:   map[string]any{"message": "still logged"},
		})

		assert.Equal(t, 1, log.Len())
	})

	t.Run("defaults a nil payload to an empty object", func(t *testing.T) {
		log := audit.NewCallbackLog(zerolog.Nop())
		d := NewDispatcher(pending.NewRegistry(), log, nil, "", zerolog.Nop())
		d.Dispatch(ctx, &ResponseRecord{SessionID: "s1"})

		entries := log.Entries()
		require.Len(t, entries, 1)
		assert.NotNil(t, entries[0])
	})
}
