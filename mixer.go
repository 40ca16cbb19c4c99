package server

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"avatarmixer/server/logging"
	"avatarmixer/server/logging/identity"
	"avatarmixer/server/logging/lifecycle"
	"avatarmixer/server/logging/replication"
	"avatarmixer/server/logging/throttle"
)

// MixerConfig collects the settings-derived and injectable pieces the
// Mixer needs at construction time.
type MixerConfig struct {
	Rate             float64
	Threads          int
	MaxBandwidthMBps float64
	Whitelist        *AvatarWhitelist
	Publisher        logging.Publisher
	AdminVerifier    *AdminVerifier
	Replication      ReplicationPolicy
}

// Mixer is the top-level orchestrator wiring every component in spec §2's
// component list into the per-tick data flow.
type Mixer struct {
	registry *Registry
	clock    *FrameClock
	throttle *ThrottleController
	pool     *SlavePool

	names   *DisplayNameRegistry
	sweeper *IdentitySweeper

	interest InterestFilter
	sorter   *PrioritySorter
	weights  *sortWeightsBox
	encoder  DigestEncoder

	frameInterval time.Duration
	bandwidthMBps float64

	publisher logging.Publisher
	admin     *AdminVerifier
	repl      ReplicationPolicy

	stats *StatsReporter
}

// NewMixer constructs a Mixer from configuration, wiring every internal
// component together.
func NewMixer(cfg MixerConfig) *Mixer {
	registry := NewRegistry()
	weights := newSortWeightsBox(DefaultSortWeights())
	names := NewDisplayNameRegistry()

	pub := cfg.Publisher
	if pub == nil {
		pub = logging.NopPublisher()
	}
	repl := cfg.Replication
	if repl == nil {
		repl = AlwaysReplicate{}
	}

	m := &Mixer{
		registry:      registry,
		clock:         NewFrameClock(cfg.Rate),
		throttle:      NewThrottleController(),
		pool:          NewSlavePool(cfg.Threads),
		names:         names,
		sweeper:       NewIdentitySweeper(names, NewDefaultProfanityFilter(), cfg.Whitelist),
		sorter:        NewPrioritySorter(weights),
		weights:       weights,
		frameInterval: time.Duration(float64(time.Second) / cfg.Rate),
		bandwidthMBps: cfg.MaxBandwidthMBps,
		publisher:     pub,
		admin:         cfg.AdminVerifier,
		repl:          repl,
	}
	m.stats = NewStatsReporter(m)
	return m
}

// Registry exposes the node registry for the transport layer to admit
// and remove nodes.
func (m *Mixer) Registry() *Registry { return m.registry }

// RegisterMetrics attaches the mixer's Prometheus collectors to reg.
func (m *Mixer) RegisterMetrics(reg prometheus.Registerer) error {
	return m.stats.Register(reg)
}

// Stats returns the most recently recorded structured stats snapshot.
func (m *Mixer) Stats() StatsSnapshot { return m.stats.Snapshot() }

// Run drives the fixed-rate loop until ctx is canceled. Spec §4.1/§4.2:
// each iteration advances the frame clock, feeds the duration into the
// throttle controller, then runs one Tick.
func (m *Mixer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		duration, frame := m.clock.Advance()
		before := m.throttle.Ratio()
		m.throttle.Observe(duration.Seconds(), m.clock.Rate())
		if after := m.throttle.Ratio(); after != before {
			throttle.RatioChanged(ctx, m.publisher, frame, throttle.RatioChangedPayload{
				ThrottlingRatio:  after,
				TrailingMixRatio: m.throttle.TrailingMixRatio(),
			}, nil)
		}
		now := time.Now()
		tickStats := m.Tick(now)
		m.stats.Record(frame, duration, tickStats)
	}
}

// AdmitAgent registers a new agent node, called by the transport layer on
// handshake.
func (m *Mixer) AdmitAgent(id uuid.UUID, sender PacketSender) *Node {
	n := m.registry.Add(id, NodeKindAgent, sender, DefaultInboxDepth)
	lifecycle.NodeAdmitted(context.Background(), m.publisher, 0, entityRef(id), lifecycle.NodeAdmittedPayload{
		Kind: n.Kind.String(),
	}, nil)
	return n
}

// AdmitShadow materializes (or refreshes) a replicated shadow node on
// ingress from an upstream mixer, per spec §4.9.
func (m *Mixer) AdmitShadow(id uuid.UUID, sender PacketSender) *Node {
	n := m.registry.Add(id, NodeKindAgent, sender, DefaultInboxDepth)
	n.Replicated = true
	replication.ShadowMaterialized(context.Background(), m.publisher, 0, entityRef(id), nil)
	return n
}

func entityRef(id uuid.UUID) logging.EntityRef {
	return logging.EntityRef{ID: id.String(), Kind: logging.EntityKindNode}
}

// Enqueue routes an already-decoded packet to its destination ClientData
// inbox, or dispatches it immediately if it is a cheap control packet
// (spec §2's Packet Inbox description).
func (m *Mixer) Enqueue(recipientID uuid.UUID, pkt Packet) {
	n := m.registry.Lookup(recipientID)
	if n == nil || n.Data == nil {
		return
	}
	if isControlPlanePacket(pkt.Type) {
		m.handleControlPlane(n, pkt)
		return
	}
	n.Data.Inbox.Enqueue(pkt)
}

func isControlPlanePacket(t PacketType) bool {
	switch t {
	case PacketNodeIgnoreRequest, PacketRadiusIgnoreRequest, PacketRequestsDomainListData,
		PacketAvatarIdentityRequest, PacketAvatarQuery, PacketKillAvatar, PacketAdjustAvatarSorting,
		PacketReplicatedAvatarIdentity, PacketReplicatedKillAvatar, PacketReplicatedBulkAvatarData:
		return true
	default:
		return false
	}
}

// sendRenameIdentity pushes exactly one identity packet for a renamed
// node (Open Question resolution: the historical source sends it twice;
// this rewrite sends it once, see DESIGN.md and identity_test.go).
func (m *Mixer) sendRenameIdentity(r RenamedNode) {
	identity.Renamed(context.Background(), m.publisher, 0, entityRef(r.Node.ID), identity.RenamedPayload{
		SessionName: r.SessionDisplayName,
		Sequence:    r.NewSequence,
	}, nil)
	if r.Node.Sender == nil {
		return
	}
	body := encodeIdentityBody(r.Node.ID, r.SessionDisplayName, "", r.NewSequence)
	framed := EncodeFrame(PacketAvatarIdentity, r.Node.ID, body)
	_ = r.Node.Sender.SendReliable(framed)
}
