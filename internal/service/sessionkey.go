package service

import (
	"fmt"
	"sort"
	"strings"
)

// sessionKeyAliases lists the keys accepted as a session identifier, highest
// priority first. Matching is case-insensitive and treats dashes as
// underscores, so "X-Session-Id" and "session_id" name the same field.
var sessionKeyAliases = []string{
	"session_id",
	"sessionid",
	"session",
	"x_session_id",
	"x_session",
	"conversation_id",
	"conversationid",
	"conversation",
	"x_conversation_id",
}

func normalizeSessionKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(key), "-", "_")
}

// ExtractSessionID finds a session identifier anywhere in a decoded JSON
// payload. Aliases at the current level win over nested matches, higher
// priority aliases win over lower ones, and the nested descent visits keys in
// sorted order, so the same payload always yields the same identifier.
func ExtractSessionID(source map[string]any) string {
	if len(source) == 0 {
		return ""
	}

	normalized := make(map[string]any, len(source))
	for key, value := range source {
		nk := normalizeSessionKey(key)
		if _, exists := normalized[nk]; !exists || value != nil {
			normalized[nk] = value
		}
	}

	for _, alias := range sessionKeyAliases {
		value, ok := normalized[alias]
		if !ok || value == nil {
			continue
		}
		if candidate := coerceSessionValue(value); candidate != "" {
			return candidate
		}
	}

	keys := make([]string, 0, len(source))
	for key := range source {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if candidate := extractFromValue(source[key]); candidate != "" {
			return candidate
		}
	}
	return ""
}

func extractFromValue(value any) string {
	switch v := value.(type) {
	case []any:
		for _, item := range v {
			if candidate := extractFromValue(item); candidate != "" {
				return candidate
			}
		}
	case map[string]any:
		return ExtractSessionID(v)
	}
	return ""
}

// coerceSessionValue turns an alias's value into an identifier string. Lists
// yield their first usable element, maps are searched recursively, and scalars
// are stringified.
func coerceSessionValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []any:
		for _, item := range v {
			if candidate := coerceSessionValue(item); candidate != "" {
				return candidate
			}
		}
		return ""
	case map[string]any:
		return ExtractSessionID(v)
	default:
		return fmt.Sprint(v)
	}
}
