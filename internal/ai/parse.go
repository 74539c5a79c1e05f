package ai

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DecodeJSON strips markdown fences around a model reply and unmarshals it into target.
// Failures are reported as KindInvalidResponse.
func DecodeJSON(raw string, target any) error {
	cleaned := CleanJSON(raw)
	if cleaned == "" {
		return NewModelError(KindInvalidResponse, fmt.Errorf("empty response"))
	}
	if err := json.Unmarshal([]byte(cleaned), target); err != nil {
		return NewModelError(KindInvalidResponse, fmt.Errorf("parse response: %w", err))
	}
	return nil
}

// CleanJSON removes a surrounding ```json fence, if present.
func CleanJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func CoerceString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}

// CoerceStrings accepts a JSON array or a comma separated string.
func CoerceStrings(v any) []string {
	var out []string
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			if s := CoerceString(item); s != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, item := range val {
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, item := range strings.Split(val, ",") {
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
