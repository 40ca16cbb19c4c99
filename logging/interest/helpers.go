package interest

import (
	"context"

	"avatarmixer/server/logging"
)

const (
	// EventIgnoreToggled is emitted when a recipient adds or removes a
	// peer from its ignore set (spec §4.7).
	EventIgnoreToggled logging.EventType = "interest.ignore_toggled"
	// EventBudgetExhausted is emitted when a recipient's bandwidth
	// ceiling is reached before all candidates were encoded (spec §4.6).
	EventBudgetExhausted logging.EventType = "interest.budget_exhausted"
)

// IgnoreToggledPayload captures the direction of an ignore mutation.
type IgnoreToggledPayload struct {
	Target string `json:"target"`
	Added  bool   `json:"added"`
}

// BudgetExhaustedPayload captures how many candidates were dropped.
type BudgetExhaustedPayload struct {
	Dropped int `json:"dropped"`
}

// IgnoreToggled publishes an ignore-set mutation event.
func IgnoreToggled(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload IgnoreToggledPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventIgnoreToggled,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryInterest,
		Payload:  payload,
		Extra:    extra,
	})
}

// BudgetExhausted publishes a bandwidth-budget-exhaustion event.
func BudgetExhausted(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload BudgetExhaustedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     EventBudgetExhausted,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryInterest,
		Payload:  payload,
		Extra:    extra,
	})
}
