package pipeline

import (
	"strconv"
	"strings"
)

const (
	FallbackOutputFailed = "Output validation failed"
	FallbackValidation   = "Validation failed"

	// ErrorPrefix marks transcript entries produced by a failed remote call.
	ErrorPrefix = "Error: "

	rawPreviewLimit = 200
	ragItemLimit    = 100
)

// ExtractError finds the human-readable failure message in a guard or chat
// response. Lookup order: metadata.validation_results[0].error_message,
// error_message, error, fallback.
func ExtractError(obj map[string]any, fallback string) string {
	if msg := findError(obj); msg != "" {
		return msg
	}
	return fallback
}

// extractOutputError checks the output validation result before the
// top-level response.
func extractOutputError(outputResult, response map[string]any) string {
	if msg := findError(outputResult); msg != "" {
		return msg
	}
	return ExtractError(response, FallbackOutputFailed)
}

func findError(obj map[string]any) string {
	if obj == nil {
		return ""
	}
	if meta, ok := obj["metadata"].(map[string]any); ok {
		if results, ok := meta["validation_results"].([]any); ok && len(results) > 0 {
			if first, ok := results[0].(map[string]any); ok {
				if msg := stringField(first, "error_message"); msg != "" {
					return msg
				}
			}
		}
	}
	if msg := stringField(obj, "error_message"); msg != "" {
		return msg
	}
	return stringField(obj, "error")
}

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	case map[string]any:
		if msg := stringField(v, "message"); msg != "" {
			return msg
		}
		return ""
	case float64:
		if v == 0 {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// Truncate cuts s to at most n runes. A cut string ends in "...", which
// counts toward n.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= len(ellipsis) {
		return string(runes[:n])
	}
	return string(runes[:n-len(ellipsis)]) + ellipsis
}

const ellipsis = "..."
