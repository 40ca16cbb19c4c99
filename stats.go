package server

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SlaveStats accumulates one slave's per-tick counters (spec §4.12).
type SlaveStats struct {
	NodesProcessed     int
	PacketsProcessed   int
	NodesBroadcastTo   int
	CandidatesIncluded int
	OverBudget         int
	IdentityBytes      int
	TraitBytes         int
	DataBytes          int
}

// TickStats is one tick's full harvest across every slave.
type TickStats struct {
	slaves  []SlaveStats
	Renamed int
}

func newTickStats(slaveCount int) TickStats {
	return TickStats{slaves: make([]SlaveStats, slaveCount)}
}

// Aggregate sums every slave's counters into one SlaveStats-shaped total.
func (t TickStats) Aggregate() SlaveStats {
	var total SlaveStats
	for _, s := range t.slaves {
		total.NodesProcessed += s.NodesProcessed
		total.PacketsProcessed += s.PacketsProcessed
		total.NodesBroadcastTo += s.NodesBroadcastTo
		total.CandidatesIncluded += s.CandidatesIncluded
		total.OverBudget += s.OverBudget
		total.IdentityBytes += s.IdentityBytes
		total.TraitBytes += s.TraitBytes
		total.DataBytes += s.DataBytes
	}
	return total
}

// StatsSnapshot is the structured record published to the telemetry
// collector, matching spec §6's stats record shape.
type StatsSnapshot struct {
	LoopRateHz       float64
	ThreadCount      int
	TrailingMixRatio float64
	ThrottlingRatio  float64
	SlavesAggregate  SlaveStats
	Renamed          int
}

// StatsReporter periodically aggregates per-slave counters (spec §4.12).
// It also exports the same numbers as Prometheus collectors (see
// SPEC_FULL.md §4.16).
type StatsReporter struct {
	mixer *Mixer

	mu       sync.Mutex
	last     StatsSnapshot
	lastTime time.Time

	loopRate       prometheus.Gauge
	throttleRatio  prometheus.Gauge
	trailingRatio  prometheus.Gauge
	nodesProcessed prometheus.Counter
	nodesBroadcast prometheus.Counter
	bytesSent      *prometheus.CounterVec
}

// NewStatsReporter constructs a reporter and its Prometheus collectors.
// The collectors are not registered anywhere until Register is called.
func NewStatsReporter(m *Mixer) *StatsReporter {
	r := &StatsReporter{
		mixer: m,
		loopRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "avatarmixer_loop_rate_hz",
			Help: "Configured broadcast loop target rate in Hz.",
		}),
		throttleRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "avatarmixer_throttling_ratio",
			Help: "Current fraction of candidate streams dropped for overload.",
		}),
		trailingRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "avatarmixer_trailing_mix_ratio",
			Help: "Smoothed mix-time-to-frame-time ratio feeding the throttle controller.",
		}),
		nodesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avatarmixer_nodes_processed_total",
			Help: "Nodes processed during pass 1 across all ticks.",
		}),
		nodesBroadcast: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "avatarmixer_nodes_broadcast_to_total",
			Help: "Recipients that received a digest during pass 2 across all ticks.",
		}),
		bytesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "avatarmixer_bytes_sent_total",
			Help: "Bytes sent by packet class.",
		}, []string{"class"}),
	}
	return r
}

// Register attaches the reporter's collectors to reg.
func (r *StatsReporter) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		r.loopRate, r.throttleRatio, r.trailingRatio,
		r.nodesProcessed, r.nodesBroadcast, r.bytesSent,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Record harvests one tick's stats. It is called from the main loop
// thread after every Tick, honoring the "barriers between ticks briefly"
// note in spec §4.12 by running inline rather than on a separate ticker
// goroutine that could race the next tick's writes.
func (r *StatsReporter) Record(frame uint64, duration time.Duration, tick TickStats) {
	total := tick.Aggregate()

	r.mu.Lock()
	r.last = StatsSnapshot{
		LoopRateHz:       r.mixer.clock.Rate(),
		ThreadCount:      r.mixer.pool.Size(),
		TrailingMixRatio: r.mixer.throttle.TrailingMixRatio(),
		ThrottlingRatio:  r.mixer.throttle.Ratio(),
		SlavesAggregate:  total,
		Renamed:          tick.Renamed,
	}
	r.lastTime = time.Now()
	r.mu.Unlock()

	r.loopRate.Set(r.mixer.clock.Rate())
	r.throttleRatio.Set(r.mixer.throttle.Ratio())
	r.trailingRatio.Set(r.mixer.throttle.TrailingMixRatio())
	r.nodesProcessed.Add(float64(total.NodesProcessed))
	r.nodesBroadcast.Add(float64(total.NodesBroadcastTo))
	r.bytesSent.WithLabelValues("identity").Add(float64(total.IdentityBytes))
	r.bytesSent.WithLabelValues("traits").Add(float64(total.TraitBytes))
	r.bytesSent.WithLabelValues("data").Add(float64(total.DataBytes))
}

// Snapshot returns the most recently recorded structured stats record.
func (r *StatsReporter) Snapshot() StatsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
