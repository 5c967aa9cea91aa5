package agents

import (
	"fmt"
	"strings"
)

// preferredKeys is the fixed priority order scanned for response text.
var preferredKeys = []string{"response", "output", "text", "message", "content"}

// ExtractText scans a decoded provider payload for the first non-empty text
// value: strings are trimmed, sequences are space-joined, nested mappings are
// recursed into. Returns "" when nothing usable is found; the caller falls
// back to raw serialization.
func ExtractText(payload any) string {
	switch v := payload.(type) {
	case map[string]any:
		for _, key := range preferredKeys {
			value, ok := v[key]
			if !ok {
				continue
			}
			if text := extractValue(value); text != "" {
				return text
			}
		}
		return ""
	case []any:
		return joinNonEmpty(v, ExtractText)
	case string:
		return strings.TrimSpace(v)
	default:
		return ""
	}
}

func extractValue(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case []any:
		return joinNonEmpty(v, stringify)
	case map[string]any:
		return ExtractText(v)
	default:
		return ""
	}
}

func stringify(item any) string {
	if item == nil {
		return ""
	}
	if s, ok := item.(string); ok {
		return strings.TrimSpace(s)
	}
	return fmt.Sprint(item)
}

func joinNonEmpty(items []any, render func(any) string) string {
	var parts []string
	for _, item := range items {
		if text := render(item); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}
