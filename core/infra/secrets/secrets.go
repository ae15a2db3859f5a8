// Package secrets masks credentials before configuration leaves the process:
// api responses, websocket frames and bus events.
package secrets

import (
	"strings"

	"github.com/cordum/playground/core/configsvc"
)

const (
	maskPrefix  = "****"
	visibleTail = 4
)

var sensitiveKeys = []string{"api_key", "apikey", "token", "secret", "password"}

// Mask hides all but the last four characters of a credential. Short values
// are hidden entirely. Empty and already masked values pass through.
func Mask(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || IsMasked(value) {
		return value
	}
	if len(value) <= 2*visibleTail {
		return maskPrefix
	}
	return maskPrefix + value[len(value)-visibleTail:]
}

// IsMasked reports whether value came out of Mask.
func IsMasked(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), maskPrefix)
}

// IsSensitiveKey reports whether a parameter name looks like a credential.
func IsSensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// RedactConfig returns a copy of agg with the LLM key and credential-like
// validator parameters masked.
func RedactConfig(agg configsvc.Aggregate) configsvc.Aggregate {
	out := agg.Clone()
	if out.LLM != nil {
		out.LLM.APIKey = Mask(out.LLM.APIKey)
	}
	if out.Guard != nil {
		for i := range out.Guard.Validators {
			out.Guard.Validators[i].Params = redactMap(out.Guard.Validators[i].Params)
		}
	}
	if out.Validator != nil {
		out.Validator.ValidatorParams = redactMap(out.Validator.ValidatorParams)
	}
	return out
}

// RedactSnapshot masks the configuration of s. Version and hash are kept.
func RedactSnapshot(s configsvc.Snapshot) configsvc.Snapshot {
	s.Config = RedactConfig(s.Config)
	return s
}

// Restore puts back credentials a client echoed in masked form, so a partial
// update built from a redacted view does not overwrite the stored key.
func Restore(partial, current configsvc.Aggregate) configsvc.Aggregate {
	if partial.LLM == nil || !IsMasked(partial.LLM.APIKey) {
		return partial
	}
	out := partial.Clone()
	out.LLM.APIKey = ""
	if current.LLM != nil {
		out.LLM.APIKey = current.LLM.APIKey
	}
	return out
}

// RedactFields masks string values under credential-like keys anywhere in a
// decoded JSON value. It reports whether anything changed.
func RedactFields(value any) (any, bool) {
	switch v := value.(type) {
	case map[string]any:
		changed := false
		out := make(map[string]any, len(v))
		for k, child := range v {
			if s, ok := child.(string); ok && IsSensitiveKey(k) {
				masked := Mask(s)
				changed = changed || masked != s
				out[k] = masked
				continue
			}
			red, childChanged := RedactFields(child)
			changed = changed || childChanged
			out[k] = red
		}
		return out, changed
	case []any:
		changed := false
		out := make([]any, len(v))
		for i, child := range v {
			red, childChanged := RedactFields(child)
			changed = changed || childChanged
			out[i] = red
		}
		return out, changed
	default:
		return v, false
	}
}

func redactMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	red, _ := RedactFields(m)
	return red.(map[string]any)
}
