package webhook

import (
	"encoding/json"
	"strings"
)

// Event is an inbound provider notification. It lives for one invocation of
// the gate and is never persisted.
type Event struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Livemode bool      `json:"livemode"`
	Created  int64     `json:"created"`
	Data     EventData `json:"data"`
}

// EventData wraps the affected resource. The object is kept raw; handlers
// decode the slice they care about.
type EventData struct {
	Object json.RawMessage `json:"object"`
}

// Mode returns "live" or "test" derived from the payload's livemode flag.
func (e *Event) Mode() string {
	if e.Livemode {
		return "live"
	}
	return "test"
}

// WebhookID returns the metadata.webhook_id tag embedded by the sender to
// disambiguate multiple configured endpoints, "" when absent.
func (e *Event) WebhookID() string {
	if len(e.Data.Object) == 0 {
		return ""
	}
	var probe struct {
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(e.Data.Object, &probe); err != nil {
		return ""
	}
	return probe.Metadata["webhook_id"]
}

// DispatchKey normalises the dot-delimited event type into a routable key.
func (e *Event) DispatchKey() string {
	return NormalizeKey(e.Type)
}

// NormalizeKey converts a dot-delimited event type into a dispatch key.
func NormalizeKey(eventType string) string {
	return strings.ReplaceAll(strings.TrimSpace(eventType), ".", "_")
}
