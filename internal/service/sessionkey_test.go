package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSessionID(t *testing.T) {
	t.Run("reads the canonical key", func(t *testing.T) {
		got := ExtractSessionID(map[string]any{"session_id": "abc-123"})
		assert.Equal(t, "abc-123", got)
	})

	t.Run("matches aliases case-insensitively with dashes folded", func(t *testing.T) {
		for _, key := range []string{"Session-Id", "SESSIONID", "X-Session-Id", "conversation-id"} {
			got := ExtractSessionID(map[string]any{key: "abc"})
			assert.Equal(t, "abc", got, "key %q", key)
		}
	})

	t.Run("prefers session_id over conversation aliases", func(t *testing.T) {
		got := ExtractSessionID(map[string]any{
			"conversation_id": "conv",
			"session_id":      "sess",
		})
		assert.Equal(t, "sess", got)
	})

	t.Run("prefers a top-level alias over a nested one", func(t *testing.T) {
		got := ExtractSessionID(map[string]any{
			"session": "outer",
			"payload": map[string]any{"session_id": "inner"},
		})
		assert.Equal(t, "outer", got)
	})

	t.Run("descends into nested objects", func(t *testing.T) {
		got := ExtractSessionID(map[string]any{
			"data": map[string]any{
				"attributes": map[string]any{"session_id": "deep"},
			},
		})
		assert.Equal(t, "deep", got)
	})

	t.Run("descends into arrays", func(t *testing.T) {
		got := ExtractSessionID(map[string]any{
			"events": []any{
				map[string]any{"kind": "noise"},
				map[string]any{"session_id": "from-array"},
			},
		})
		assert.Equal(t, "from-array", got)
	})

	t.Run("nested descent is deterministic across key order", func(t *testing.T) {
		// "alpha" sorts before "beta", so its match wins regardless of map
		// iteration order.
		payload := map[string]any{
			"beta":  map[string]any{"session_id": "b"},
			"alpha": map[string]any{"session_id": "a"},
		}
		for i := 0; i < 20; i++ {
			assert.Equal(t, "a", ExtractSessionID(payload))
		}
	})

	t.Run("stringifies numeric identifiers", func(t *testing.T) {
		got := ExtractSessionID(map[string]any{"session_id": float64(42)})
		assert.Equal(t, "42", got)
	})

	t.Run("takes the first usable element of a list value", func(t *testing.T) {
		got := ExtractSessionID(map[string]any{"session_id": []any{nil, "", "picked"}})
		assert.Equal(t, "picked", got)
	})

	t.Run("skips empty and nil values", func(t *testing.T) {
		got := ExtractSessionID(map[string]any{
			"session_id": "",
			"session":    nil,
			"payload":    map[string]any{"conversation": "fallback"},
		})
		assert.Equal(t, "fallback", got)
	})

	t.Run("returns empty for payloads without any identifier", func(t *testing.T) {
		assert.Empty(t, ExtractSessionID(map[string]any{"message": "hi"}))
		assert.Empty(t, ExtractSessionID(nil))
	})
}
