package sources

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/funnelsight/tracker/internal/domain"
)

// Providers disagree on casing and nesting, sometimes within their own
// payloads. These helpers probe a decoded JSON object for the first usable
// value under any of the given keys.

func decodeObject(body []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}

// probeString returns the first non-empty string (or stringified number)
// under any of keys.
func probeString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if t != "" {
				return t
			}
		case float64:
			if t == float64(int64(t)) {
				return fmt.Sprintf("%d", int64(t))
			}
			return fmt.Sprintf("%v", t)
		case map[string]any:
			// HubSpot-style {"value": "..."} wrappers.
			if s := probeString(t, "value"); s != "" {
				return s
			}
		}
	}
	return ""
}

// probeObject returns the first nested object under any of keys.
func probeObject(m map[string]any, keys ...string) map[string]any {
	for _, k := range keys {
		if nested, ok := m[k].(map[string]any); ok {
			return nested
		}
	}
	return nil
}

// splitName splits a single full-name field into first/last on the first
// space.
func splitName(full string) (first, last string) {
	full = strings.TrimSpace(full)
	if full == "" {
		return "", ""
	}
	parts := strings.SplitN(full, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.TrimSpace(parts[1])
}

// sniffEventType maps an ambiguous provider "type" string onto one of our
// event types by keyword.
func sniffEventType(raw string) string {
	s := strings.ToLower(raw)
	switch {
	case strings.Contains(s, "appointment"),
		strings.Contains(s, "booking"),
		strings.Contains(s, "meeting"),
		strings.Contains(s, "call"):
		return domain.EventBooking
	case strings.Contains(s, "purchase"),
		strings.Contains(s, "payment"),
		strings.Contains(s, "order"):
		return domain.EventPurchase
	case strings.Contains(s, "optin"),
		strings.Contains(s, "opt_in"),
		strings.Contains(s, "opt-in"),
		strings.Contains(s, "subscribe"):
		return domain.EventOptIn
	default:
		return domain.EventFormSubmit
	}
}
