package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL, apiKey string) *Client {
	c := NewClient(baseURL, apiKey, 5*time.Second, zerolog.Nop())
	c.baseDelay = time.Millisecond
	return c
}

func TestStartMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("posts the payload and decodes a JSON reply", func(t *testing.T) {
		var gotBody map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"accepted"}`))
		}))
		defer server.Close()

		client := newTestClient(server.URL, "sk-test")
		result, err := client.StartMessage(ctx, map[string]any{"prompt": "hello", "sessionID": "s1"})
		require.NoError(t, err)
		assert.Equal(t, "accepted", result["status"])
		assert.Equal(t, "hello", gotBody["prompt"])
		assert.Equal(t, "s1", gotBody["sessionID"])
	})

	t.Run("omits the auth header without an api key", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		client := newTestClient(server.URL, "")
		_, err := client.StartMessage(ctx, map[string]any{"prompt": "hi"})
		require.NoError(t, err)
	})

	t.Run("wraps a non-JSON reply", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte("queued"))
		}))
		defer server.Close()

		client := newTestClient(server.URL, "")
		result, err := client.StartMessage(ctx, map[string]any{"prompt": "hi"})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, result["status_code"])
		assert.Equal(t, "queued", result["body"])
	})

	t.Run("retries server errors with backoff", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) <= 2 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"accepted"}`))
		}))
		defer server.Close()

		client := newTestClient(server.URL, "")
		result, err := client.StartMessage(ctx, map[string]any{"prompt": "hi"})
		require.NoError(t, err)
		assert.Equal(t, "accepted", result["status"])
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("surfaces a persistent server error after retries", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("boom"))
		}))
		defer server.Close()

		client := newTestClient(server.URL, "")
		_, err := client.StartMessage(ctx, map[string]any{"prompt": "hi"})
		require.Error(t, err)
		// Final attempt's response is surfaced as the error, not retried again.
		assert.Equal(t, int32(maxRetries+1), calls.Load())
		assert.Contains(t, err.Error(), "500")
	})

	t.Run("does not retry client errors", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte("bad prompt"))
		}))
		defer server.Close()

		client := newTestClient(server.URL, "")
		_, err := client.StartMessage(ctx, map[string]any{"prompt": "hi"})
		require.Error(t, err)
		assert.Equal(t, int32(1), calls.Load())
		assert.Contains(t, err.Error(), "bad prompt")
	})

	t.Run("fails after retries when the backend is unreachable", func(t *testing.T) {
		client := newTestClient("http://127.0.0.1:1", "")
		_, err := client.StartMessage(ctx, map[string]any{"prompt": "hi"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "after retries")
	})
}

func TestTrigger(t *testing.T) {
	ctx := context.Background()

	t.Run("sends the secret and extra headers", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "shh", r.Header.Get("X-Webhook-Secret"))
			assert.Equal(t, "v2", r.Header.Get("X-Api-Version"))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"ok":true}`))
		}))
		defer server.Close()

		client := newTestClient("http://unused.invalid", "")
		result, err := client.Trigger(ctx, TriggerOptions{
			URL:     server.URL,
			Secret:  "shh",
			Headers: map[string]string{"X-Api-Version": "v2"},
		}, map[string]any{"event": "ping"})
		require.NoError(t, err)
		assert.Equal(t, true, result["ok"])
	})

	t.Run("honors the configured method", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPut, r.Method)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := newTestClient("http://unused.invalid", "")
		_, err := client.Trigger(ctx, TriggerOptions{URL: server.URL, Method: "put"}, nil)
		require.NoError(t, err)
	})
}
