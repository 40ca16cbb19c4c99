package identity

import (
	"context"

	"avatarmixer/server/logging"
)

const (
	// EventRenamed is emitted by the identity sweep when a node's session
	// display name changes (spec §4.5).
	EventRenamed logging.EventType = "identity.renamed"
	// EventVersionMismatch is emitted when a peer's packet version does
	// not match the wire version (spec §4.11).
	EventVersionMismatch logging.EventType = "identity.version_mismatch"
)

// RenamedPayload captures the collision-resolution outcome for one rename.
type RenamedPayload struct {
	BaseName    string `json:"baseName"`
	SessionName string `json:"sessionName"`
	Sequence    uint32 `json:"sequence"`
}

// VersionMismatchPayload captures the offending version byte.
type VersionMismatchPayload struct {
	Version byte `json:"version"`
}

// Renamed publishes a display-name assignment event.
func Renamed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload RenamedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRenamed,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryIdentity,
		Payload:  payload,
		Extra:    extra,
	})
}

// VersionMismatch publishes a version-mismatch event.
func VersionMismatch(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload VersionMismatchPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventVersionMismatch,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryIdentity,
		Payload:  payload,
		Extra:    extra,
	})
}
