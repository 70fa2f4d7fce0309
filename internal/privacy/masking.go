package privacy

import (
	"strings"
	"unicode/utf8"

	"chatbridge/internal/constants"
)

const previewRunes = 48

// MaskAPIKey masks a provider API key showing only the last few
// characters. A scheme prefix before the first hyphen is kept for
// debugging.
// Example: "sk-abcdef12345678" -> "sk-**********5678"
func MaskAPIKey(key string) string {
	if key == "" {
		return ""
	}

	if idx := strings.Index(key, "-"); idx > 0 && idx < len(key)-1 {
		prefix := key[:idx+1]
		rest := key[idx+1:]
		return prefix + maskString(rest, constants.DefaultMaskKeepLength)
	}

	return maskString(key, constants.DefaultMaskKeepLength)
}

// MaskConversation masks a conversation name while keeping some
// readability for debugging. Conversation names are operator-chosen chat
// titles and often contain personal names.
// Example: "family-group-chat" -> "family-*****-***hat"
func MaskConversation(name string) string {
	if name == "" {
		return ""
	}

	if strings.Contains(name, "-") {
		parts := strings.Split(name, "-")
		if len(parts) >= 2 {
			result := parts[0]
			for i := 1; i < len(parts)-1; i++ {
				result += "-" + strings.Repeat("*", len(parts[i]))
			}
			result += "-" + maskString(parts[len(parts)-1], 3)
			return result
		}
	}

	return maskString(name, 3)
}

// PreviewContent returns a short single-line preview of message content
// suitable for debug logs. Newlines are collapsed and the result is
// truncated to a fixed number of runes.
func PreviewContent(content string) string {
	flat := strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(flat) <= previewRunes {
		return flat
	}

	runes := []rune(flat)
	return string(runes[:previewRunes]) + "..."
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	if len(s) <= keepLast {
		return strings.Repeat("*", len(s))
	}

	return strings.Repeat("*", len(s)-keepLast) + s[len(s)-keepLast:]
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{})
	for k, v := range fields {
		switch k {
		case "api_key", "apiKey", "authorization", "token":
			if s, ok := v.(string); ok {
				masked[k] = MaskAPIKey(s)
			} else {
				masked[k] = v
			}
		case "conversation", "conversation_name", "chat":
			if s, ok := v.(string); ok {
				masked[k] = MaskConversation(s)
			} else {
				masked[k] = v
			}
		case "content", "prompt", "response", "reply":
			if s, ok := v.(string); ok {
				masked[k] = PreviewContent(s)
			} else {
				masked[k] = v
			}
		default:
			masked[k] = v
		}
	}

	return masked
}
