// Package audit collects frontend activity events: batched on arrival,
// redacted, and persisted for the auditing views.
package audit

import (
	"encoding/json"
	"time"
)

// Event is one frontend activity or error event, as reported by the
// browser-side logger.
type Event struct {
	Type       string          `json:"tipo"`
	Category   string          `json:"categoria"`
	Page       string          `json:"pagina,omitempty"`
	Element    string          `json:"elemento,omitempty"`
	User       string          `json:"usuario,omitempty"`
	Session    string          `json:"sesion,omitempty"`
	Data       json.RawMessage `json:"datos,omitempty"`
	OccurredAt time.Time       `json:"timestamp"`
}

// sensitiveFields are form field names whose values are never stored.
var sensitiveFields = []string{
	"password", "contrasena", "token", "csrfmiddlewaretoken", "secret", "api_key",
}

// Redact strips sensitive form field values out of the event payload.
// Events with no object payload pass through unchanged.
func Redact(e Event) Event {
	if len(e.Data) == 0 {
		return e
	}
	var payload map[string]any
	if err := json.Unmarshal(e.Data, &payload); err != nil {
		return e
	}
	changed := false
	for _, field := range sensitiveFields {
		if _, ok := payload[field]; ok {
			payload[field] = "[REDACTADO]"
			changed = true
		}
	}
	if !changed {
		return e
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return e
	}
	e.Data = raw
	return e
}
