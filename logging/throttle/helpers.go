package throttle

import (
	"context"

	"avatarmixer/server/logging"
)

// EventRatioChanged is emitted whenever the throttling controller steps
// throttlingRatio (spec §4.2).
const EventRatioChanged logging.EventType = "throttle.ratio_changed"

// RatioChangedPayload captures the controller's state at the moment of
// a step.
type RatioChangedPayload struct {
	ThrottlingRatio  float64 `json:"throttlingRatio"`
	TrailingMixRatio float64 `json:"trailingMixRatio"`
}

// RatioChanged publishes a throttle-controller step event.
func RatioChanged(ctx context.Context, pub logging.Publisher, tick uint64, payload RatioChangedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventRatioChanged,
		Tick:     tick,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryThrottle,
		Payload:  payload,
		Extra:    extra,
	})
}
