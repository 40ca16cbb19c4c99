package server

import "sync/atomic"

// ThrottleController implements the closed-loop, modified-PI overload
// shedder from spec §4.2. It is single-writer (the frame driver) but
// read from every slave during pass 2, so the ratio is stored atomically
// as bits; trailingMixRatio is only ever touched by the writer and needs
// no synchronization.
//
// Constants (throttleRate=2/150, backoffRate=throttleRate/4, trailing
// window sized off a 180s recovery target) are carried over unchanged
// from the historical AvatarMixer's throttle() function.
type ThrottleController struct {
	trailingMixRatio float64
	throttlingRatio  atomic.Uint64 // math.Float64bits
	frameInWindow    int
}

// NewThrottleController returns a controller with throttlingRatio=0.
func NewThrottleController() *ThrottleController {
	return &ThrottleController{}
}

// Ratio returns the current throttlingRatio, always in [0,1].
func (t *ThrottleController) Ratio() float64 {
	return float64frombits(t.throttlingRatio.Load())
}

// Observe feeds one frame's duration into the controller. rate is the
// frame driver's target rate in Hz.
func (t *ThrottleController) Observe(duration float64, rate float64) {
	mixRatio := duration * rate

	t.trailingMixRatio = (1-currentFrameRatio)*t.trailingMixRatio + currentFrameRatio*mixRatio

	t.frameInWindow++
	if t.frameInWindow < trailingFrames {
		return
	}
	t.frameInWindow = 0

	current := t.Ratio()
	switch {
	case t.trailingMixRatio > throttleTarget:
		current += throttleRate * (1 + (t.trailingMixRatio-throttleTarget)/0.1)
		if current > 1 {
			current = 1
		}
	case current > 0 && t.trailingMixRatio <= throttleBackoffTarget:
		current -= backoffRate * (1 + (throttleTarget-t.trailingMixRatio)/0.2)
		if current < 0 {
			current = 0
		}
	default:
		return
	}
	t.throttlingRatio.Store(float64bits(current))
}

// TrailingMixRatio exposes the smoothed mix ratio, used by the stats
// reporter (spec §6) and by tests asserting the sustained-overload
// property in spec §8.
func (t *ThrottleController) TrailingMixRatio() float64 {
	return t.trailingMixRatio
}
