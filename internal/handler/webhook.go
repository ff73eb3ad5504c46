package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/config"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/errors"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/webhook"
)

type WebhookHandler struct {
	client *webhook.Client
	cfg    *config.Config
}

func NewWebhookHandler(client *webhook.Client, cfg *config.Config) *WebhookHandler {
	return &WebhookHandler{
		client: client,
		cfg:    cfg,
	}
}

// GET /v1/webhooks
// Lists the extra named webhook targets. Secrets stay server-side.
func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	targets := make([]map[string]any, 0, len(h.cfg.ExtraWebhooks))
	for name, target := range h.cfg.ExtraWebhooks {
		targets = append(targets, map[string]any{
			"name":       name,
			"url":        target.URL,
			"method":     target.Method,
			"has_secret": target.Secret != "",
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"webhooks": targets})
}

// POST /v1/webhooks/{name}
// Triggers a named webhook with the request body as its payload.
func (h *WebhookHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	target, ok := h.cfg.ExtraWebhooks[name]
	if !ok {
		writeError(w, errors.NotFound("webhook"))
		return
	}

	payload, err := decodeObject(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.client.Trigger(r.Context(), webhook.TriggerOptions{
		URL:     target.URL,
		Method:  target.Method,
		Headers: target.Headers,
		Secret:  target.Secret,
	}, payload)
	if err != nil {
		log.Error().Err(err).Str("webhook", name).Msg("webhook trigger failed")
		writeError(w, errors.External(name, err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"webhook": name,
		"result":  result,
	})
}
