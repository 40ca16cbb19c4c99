package lifecycle

import (
	"context"

	"avatarmixer/server/logging"
)

const (
	// EventNodeAdmitted is emitted when a node is admitted to the registry.
	EventNodeAdmitted logging.EventType = "lifecycle.node_admitted"
	// EventNodeKilled is emitted when a node departs (timeout or explicit kill).
	EventNodeKilled logging.EventType = "lifecycle.node_killed"
)

// NodeAdmittedPayload captures admission metadata for a newly registered node.
type NodeAdmittedPayload struct {
	Kind       string `json:"kind"`
	Replicated bool   `json:"replicated"`
}

// NodeKilledPayload captures why a node departed.
type NodeKilledPayload struct {
	Reason string `json:"reason"`
}

// NodeAdmitted publishes a node admission event.
func NodeAdmitted(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload NodeAdmittedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventNodeAdmitted,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}

// NodeKilled publishes a node departure event.
func NodeKilled(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload NodeKilledPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventNodeKilled,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	})
}
