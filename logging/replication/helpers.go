package replication

import (
	"context"

	"avatarmixer/server/logging"
)

const (
	// EventShadowMaterialized is emitted when an upstream mixer's
	// replicated node is first materialized locally (spec §4.9).
	EventShadowMaterialized logging.EventType = "replication.shadow_materialized"
	// EventFannedOut is emitted when a packet is mirrored to a downstream
	// mixer (spec §4.9).
	EventFannedOut logging.EventType = "replication.fanned_out"
)

// FannedOutPayload captures which packet type and how many downstream
// mixers received it.
type FannedOutPayload struct {
	PacketType string `json:"packetType"`
	Downstream int    `json:"downstream"`
}

// ShadowMaterialized publishes a shadow-node creation event.
func ShadowMaterialized(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventShadowMaterialized,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryReplication,
		Extra:    extra,
	})
}

// FannedOut publishes a downstream fan-out event.
func FannedOut(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload FannedOutPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventFannedOut,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryReplication,
		Payload:  payload,
		Extra:    extra,
	})
}
