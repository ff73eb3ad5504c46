package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port                   int    `env:"PORT" envDefault:"8765"`
	DatabasePath           string `env:"CONVERSATION_DB_PATH" envDefault:"conversation_history.db"`
	AIWebhookURL           string `env:"AI_WEBHOOK_URL,required"`
	AIAPIKey               string `env:"AI_API_KEY"`
	AITimeoutSeconds       int    `env:"AI_TIMEOUT" envDefault:"30"`
	ExtraWebhooksJSON      string `env:"EXTRA_WEBHOOKS"`
	FrontendWebhookURL     string `env:"FRONTEND_WEBHOOK_URL"`
	ModelName              string `env:"MODEL_NAME" envDefault:"external-ai"`
	HistoryLimit           int    `env:"CONVERSATION_HISTORY_LIMIT" envDefault:"20"`
	MessageRetentionDays   int    `env:"MESSAGE_RETENTION_DAYS" envDefault:"30"`
	ResponseTimeoutSeconds int    `env:"RESPONSE_TIMEOUT_SECONDS" envDefault:"4120"`
	RedisURL               string `env:"REDIS_URL"`
	RateLimitPerMin        int    `env:"RATE_LIMIT_PER_MIN" envDefault:"60"`
	LogLevel               string `env:"LOG_LEVEL" envDefault:"info"`

	// Parsed from ExtraWebhooksJSON by Validate.
	ExtraWebhooks map[string]WebhookTarget `env:"-"`
}

// WebhookTarget is an additional named webhook that tools can trigger on demand.
type WebhookTarget struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Secret  string            `json:"secret"`
	Headers map[string]string `json:"headers"`
}

func (c *Config) AITimeout() time.Duration {
	return time.Duration(c.AITimeoutSeconds) * time.Second
}

func (c *Config) ResponseTimeout() time.Duration {
	return time.Duration(c.ResponseTimeoutSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.AIWebhookURL); err != nil {
		return fmt.Errorf("AI_WEBHOOK_URL must be a valid URL: %w", err)
	}
	if c.AITimeoutSeconds <= 0 {
		return fmt.Errorf("AI_TIMEOUT must be greater than zero")
	}
	if c.HistoryLimit <= 0 || c.HistoryLimit > MaxHistoryLimit {
		return fmt.Errorf("CONVERSATION_HISTORY_LIMIT must be between 1 and %d", MaxHistoryLimit)
	}
	if c.MessageRetentionDays <= 0 {
		return fmt.Errorf("MESSAGE_RETENTION_DAYS must be greater than zero")
	}
	if c.ResponseTimeoutSeconds <= 0 {
		return fmt.Errorf("RESPONSE_TIMEOUT_SECONDS must be greater than zero")
	}
	if c.FrontendWebhookURL != "" {
		if _, err := url.ParseRequestURI(c.FrontendWebhookURL); err != nil {
			return fmt.Errorf("FRONTEND_WEBHOOK_URL must be a valid URL: %w", err)
		}
	}

	targets, err := parseExtraWebhooks(c.ExtraWebhooksJSON)
	if err != nil {
		return err
	}
	c.ExtraWebhooks = targets

	return nil
}

func parseExtraWebhooks(raw string) (map[string]WebhookTarget, error) {
	if raw == "" {
		return map[string]WebhookTarget{}, nil
	}

	var targets map[string]WebhookTarget
	if err := json.Unmarshal([]byte(raw), &targets); err != nil {
		return nil, fmt.Errorf("EXTRA_WEBHOOKS must be a valid JSON object: %w", err)
	}

	for name, target := range targets {
		if _, err := url.ParseRequestURI(target.URL); err != nil {
			return nil, fmt.Errorf("webhook %q has an invalid url: %w", name, err)
		}
		if target.Method == "" {
			target.Method = "POST"
			targets[name] = target
		}
	}

	return targets, nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
