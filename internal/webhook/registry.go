package webhook

import (
	"context"
	"encoding/json"
)

// Handler processes the affected object of one dispatched event. Handlers
// must be idempotent with respect to intent status: notifications carry no
// cross-request ordering guarantee.
type Handler func(ctx context.Context, object json.RawMessage, event *Event) error

// Registry is the dispatch table from normalised event type to the ordered
// handlers registered for it. It is built once during process initialisation
// and read-only afterwards; nothing mutates it per request.
type Registry struct {
	routes map[string][]Handler
}

// NewRegistry creates an empty dispatch table.
func NewRegistry() *Registry {
	return &Registry{routes: make(map[string][]Handler)}
}

// On registers a handler for the given event type (dot-delimited accepted).
// Returns the registry for chaining during startup wiring.
func (r *Registry) On(eventType string, h Handler) *Registry {
	key := NormalizeKey(eventType)
	r.routes[key] = append(r.routes[key], h)
	return r
}

func (r *Registry) handlers(key string) []Handler {
	if r == nil {
		return nil
	}
	return r.routes[key]
}
