package middleware

import (
	"net/http"

	"github.com/AD-Archer/internal-ai-bridge-mcp/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}
