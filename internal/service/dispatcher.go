package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/audit"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/config"
	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/pending"
)

// ResponsePublisher pushes a recorded response to live event subscribers.
// The SSE broker implements it; deployments without one run with nil.
type ResponsePublisher interface {
	Publish(ctx context.Context, sessionID string, payload map[string]any)
}

// Dispatcher fans a recorded response out to every listener: the in-memory
// callback log, the pending chat request for the session, live event
// subscribers, and an optional frontend webhook. Sink failures are logged,
// never propagated; the response is already persisted by the time Dispatch
// runs.
type Dispatcher struct {
	registry    *pending.Registry
	callbackLog *audit.CallbackLog
	publisher   ResponsePublisher
	frontendURL string
	httpClient  *http.Client
	logger      zerolog.Logger
}

func NewDispatcher(
	registry *pending.Registry,
	callbackLog *audit.CallbackLog,
	publisher ResponsePublisher,
	frontendURL string,
	logger zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		registry:    registry,
		callbackLog: callbackLog,
		publisher:   publisher,
		frontendURL: frontendURL,
		httpClient:  &http.Client{Timeout: config.FrontendForwardTimeout},
		logger:      logger.With().Str("component", "dispatcher").Logger(),
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, record *ResponseRecord) {
	payload := record.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	d.callbackLog.Append(record.SessionID, payload)

	if record.SessionID == "" {
		d.logger.Warn().Msg("recorded response carries no session id")
	} else if !d.registry.Fulfill(record.SessionID, payload) {
		d.logger.Warn().Str("session_id", record.SessionID).
			Msg("no pending request for session")
	}

	if d.publisher != nil {
		d.publisher.Publish(ctx, record.SessionID, payload)
	}

	if d.frontendURL != "" {
		d.forwardToFrontend(ctx, payload)
	}
}

func (d *Dispatcher) forwardToFrontend(ctx context.Context, payload map[string]any) {
	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Error().Err(err).Msg("frontend payload not serializable")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.frontendURL, bytes.NewReader(body))
	if err != nil {
		d.logger.Error().Err(err).Str("url", d.frontendURL).Msg("build frontend request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.logger.Error().Err(err).Str("url", d.frontendURL).
			Msg("failed to forward callback to frontend")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		text, _ := io.ReadAll(resp.Body)
		d.logger.Error().Int("status", resp.StatusCode).Str("url", d.frontendURL).
			Str("body", string(text)).Msg("frontend webhook rejected callback")
		return
	}
	d.logger.Info().Int("status", resp.StatusCode).Str("url", d.frontendURL).
		Msg("forwarded callback to frontend")
}
