package config

import "time"

// HTTP server timeouts. WriteTimeout is left at zero because both the chat
// completions await and the SSE stream hold connections open for minutes.
const (
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for startup checks
const DBPingTimeout = 5 * time.Second

// Upper bound accepted for CONVERSATION_HISTORY_LIMIT
const MaxHistoryLimit = 200

// Timeout for forwarding a callback payload to the frontend webhook
const FrontendForwardTimeout = 200 * time.Second

// Default rate limiting
const DefaultRateLimitPerMin = 60
