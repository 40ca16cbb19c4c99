package server

import (
	"testing"
	"time"
)

func TestTickStatsAggregateSumsAcrossSlaves(t *testing.T) {
	tick := newTickStats(3)
	tick.slaves[0] = SlaveStats{NodesProcessed: 2, DataBytes: 10}
	tick.slaves[1] = SlaveStats{NodesProcessed: 3, DataBytes: 20}
	tick.slaves[2] = SlaveStats{NodesProcessed: 1, DataBytes: 5}

	total := tick.Aggregate()
	if total.NodesProcessed != 6 {
		t.Fatalf("expected 6 nodes processed across slaves, got %d", total.NodesProcessed)
	}
	if total.DataBytes != 35 {
		t.Fatalf("expected 35 data bytes across slaves, got %d", total.DataBytes)
	}
}

func TestStatsReporterRecordAndSnapshot(t *testing.T) {
	m, _ := newTestMixer()
	tick := newTickStats(1)
	tick.slaves[0] = SlaveStats{NodesProcessed: 4}
	tick.Renamed = 1

	m.stats.Record(1, 10*time.Millisecond, tick)

	snap := m.stats.Snapshot()
	if snap.SlavesAggregate.NodesProcessed != 4 {
		t.Fatalf("expected snapshot to reflect recorded nodes processed, got %d", snap.SlavesAggregate.NodesProcessed)
	}
	if snap.Renamed != 1 {
		t.Fatalf("expected snapshot to reflect recorded rename count, got %d", snap.Renamed)
	}
	if snap.LoopRateHz != DefaultBroadcastRateHz {
		t.Fatalf("expected snapshot loop rate to match the mixer's configured rate, got %v", snap.LoopRateHz)
	}
}
