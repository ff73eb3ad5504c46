package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	maxRetries       = 3
	defaultBaseDelay = time.Second
)

// Client talks to the AI backend's webhook endpoint and to any extra
// registered webhooks. Transport failures and 5xx responses are retried with
// exponential backoff before giving up.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger

	// baseDelay is the first retry backoff step. Tests shrink it.
	baseDelay time.Duration
}

func NewClient(baseURL, apiKey string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "webhook_client").Logger(),
		baseDelay:  defaultBaseDelay,
	}
}

// TriggerOptions describes an arbitrary webhook target.
type TriggerOptions struct {
	URL     string
	Method  string
	Headers map[string]string
	Secret  string
}

// StartMessage posts a prompt to the AI backend webhook.
func (c *Client) StartMessage(ctx context.Context, payload map[string]any) (map[string]any, error) {
	resp, err := c.requestWithRetry(ctx, http.MethodPost, c.baseURL, payload, c.buildHeaders(nil, ""))
	if err != nil {
		return nil, err
	}
	return c.handleResponse(resp)
}

// Trigger calls an arbitrary webhook endpoint with the client's credentials
// plus any per-target headers and secret.
func (c *Client) Trigger(ctx context.Context, opts TriggerOptions, payload map[string]any) (map[string]any, error) {
	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodPost
	}
	resp, err := c.requestWithRetry(ctx, method, opts.URL, payload, c.buildHeaders(opts.Headers, opts.Secret))
	if err != nil {
		return nil, err
	}
	return c.handleResponse(resp)
}

func (c *Client) buildHeaders(extra map[string]string, secret string) http.Header {
	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		headers.Set("Authorization", "Bearer "+c.apiKey)
	}
	if secret != "" {
		headers.Set("X-Webhook-Secret", secret)
	}
	for key, value := range extra {
		headers.Set(key, value)
	}
	return headers
}

func (c *Client) requestWithRetry(ctx context.Context, method, url string, payload map[string]any, headers http.Header) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build webhook request: %w", err)
		}
		req.Header = headers.Clone()

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.logger.Warn().Err(err).Int("attempt", attempt+1).Str("url", url).
				Msg("webhook request failed")
			continue
		}
		if resp.StatusCode >= http.StatusInternalServerError && attempt < maxRetries {
			resp.Body.Close()
			lastErr = fmt.Errorf("webhook returned %d", resp.StatusCode)
			c.logger.Warn().Int("status", resp.StatusCode).Int("attempt", attempt+1).
				Str("url", url).Msg("webhook returned server error, retrying")
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("webhook request failed after retries: %w", lastErr)
}

// handleResponse decodes a JSON body, or wraps a non-JSON one so the caller
// still sees what came back. Error statuses become errors with the body text
// attached.
func (c *Client) handleResponse(resp *http.Response) (map[string]any, error) {
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read webhook response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		c.logger.Error().Int("status", resp.StatusCode).Str("body", string(raw)).
			Msg("webhook returned error")
		return nil, fmt.Errorf("webhook call failed: %d %s", resp.StatusCode, string(raw))
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var decoded map[string]any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, fmt.Errorf("decode webhook response: %w", err)
		}
		return decoded, nil
	}
	return map[string]any{
		"status_code": resp.StatusCode,
		"body":        string(raw),
	}, nil
}
