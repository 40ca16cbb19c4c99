package server

import (
	"testing"
	"time"
)

func TestFrameClockAdvanceIsMonotonicInFrameCount(t *testing.T) {
	c := NewFrameClock(1000) // fast rate keeps the test quick
	var last uint64
	for i := 0; i < 5; i++ {
		_, frame := c.Advance()
		if frame != last+1 {
			t.Fatalf("expected frame count to increase by exactly one per Advance, got %d after %d", frame, last)
		}
		last = frame
	}
}

func TestFrameClockDoesNotScheduleDeadlineInThePast(t *testing.T) {
	c := NewFrameClock(1000)
	c.sleeper = func(time.Duration) {} // never actually sleep
	c.now = func() time.Time { return time.Now().Add(time.Hour) }

	before := time.Now()
	c.Advance()
	if c.lastStart.Before(before) {
		t.Fatalf("expected lastStart to move forward even when the loop is far behind schedule")
	}
}

func TestFrameClockDefaultsInvalidRate(t *testing.T) {
	c := NewFrameClock(0)
	if c.Rate() != DefaultBroadcastRateHz {
		t.Fatalf("expected a non-positive rate to default to %v, got %v", DefaultBroadcastRateHz, c.Rate())
	}
}
