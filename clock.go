package server

import "time"

// FrameClock drives the fixed-rate broadcast loop. Spec §4.1: "compute
// duration = now - lastStart; advance nextDeadline = lastStart + 1/R;
// sleep until max(now, nextDeadline)". Grounded on the historical
// AvatarMixer's timeFrame(): the max() call is what keeps the loop from
// falling permanently behind under sustained overload — it runs flat out
// but never schedules a deadline in the past.
type FrameClock struct {
	rate     float64
	interval time.Duration

	lastStart     time.Time
	nextDeadline  time.Time
	frameCount    uint64
	sleeper       func(time.Duration)
	now           func() time.Time
}

// NewFrameClock constructs a FrameClock targeting rateHz ticks per second.
func NewFrameClock(rateHz float64) *FrameClock {
	if rateHz <= 0 {
		rateHz = DefaultBroadcastRateHz
	}
	interval := time.Duration(float64(time.Second) / rateHz)
	now := time.Now()
	return &FrameClock{
		rate:         rateHz,
		interval:     interval,
		lastStart:    now,
		nextDeadline: now.Add(interval),
		sleeper:      time.Sleep,
		now:          time.Now,
	}
}

// Advance blocks until the next frame deadline (or returns immediately if
// the loop is already behind schedule) and returns the previous frame's
// duration and the current frame count.
func (c *FrameClock) Advance() (duration time.Duration, frame uint64) {
	now := c.now()
	duration = now.Sub(c.lastStart)

	target := c.lastStart.Add(c.interval)
	if target.Before(now) {
		target = now
	}
	if wait := target.Sub(now); wait > 0 {
		c.sleeper(wait)
	}

	c.lastStart = c.now()
	c.nextDeadline = c.lastStart.Add(c.interval)
	c.frameCount++
	return duration, c.frameCount
}

// Rate reports the configured target frequency in Hz.
func (c *FrameClock) Rate() float64 { return c.rate }

// LastStart reports the timestamp of the most recently started frame.
func (c *FrameClock) LastStart() time.Time { return c.lastStart }
