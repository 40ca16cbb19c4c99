package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// NodeKind distinguishes the four node roles the mixer routes between.
type NodeKind int

const (
	NodeKindAgent NodeKind = iota
	NodeKindUpstreamMixer
	NodeKindDownstreamMixer
	NodeKindEntityScriptServer
)

func (k NodeKind) String() string {
	switch k {
	case NodeKindAgent:
		return "agent"
	case NodeKindUpstreamMixer:
		return "upstream-mixer"
	case NodeKindDownstreamMixer:
		return "downstream-mixer"
	case NodeKindEntityScriptServer:
		return "entity-script-server"
	default:
		return "unknown"
	}
}

// NodeState models the membership state machine from spec §4.10:
// Added -> Active -> Killed (terminal).
type NodeState int

const (
	NodeStateAdded NodeState = iota
	NodeStateActive
	NodeStateKilled
)

// Node is the registry's record for one connected peer. Node itself carries
// no mixer-specific bookkeeping; that lives in the attached ClientData.
type Node struct {
	ID          uuid.UUID
	LocalID     uint16
	Kind        NodeKind
	State       NodeState
	Active      bool
	Upstream    bool
	Replicated  bool
	HasSocket   bool
	ConnectedAt time.Time

	// Sender is the transport-level handle used to write packets to this
	// node. It is opaque to the core; see internal/net/ws for the
	// websocket-backed implementation.
	Sender PacketSender

	// Data is this node's ClientData. Never nil once the node exists.
	Data *ClientData
}

// PacketSender is the minimal external transport capability the core
// depends on. Concrete implementations live outside this package (see
// spec §1's "out of scope" transport boundary).
type PacketSender interface {
	SendReliable(payload []byte) error
	SendUnreliable(payload []byte) error
}

// AvatarPayload is the opaque, versioned avatar byte blob plus the small
// set of accessors the sorter and interest filter need. The core never
// interprets joint poses or trait bytes beyond these fields.
type AvatarPayload struct {
	Bytes             []byte
	WorldPosition     [3]float64
	Facing            [3]float64
	BoundingRadius    float64
	LastUpdated       time.Time
	IdentitySequence  uint32
	ModelURL          string
	DisplayNameRaw    string
	Traits            map[string]TraitEntry
}

// TraitEntry is one named reliable sub-stream attached to an avatar.
type TraitEntry struct {
	Sequence uint32
	Bytes    []byte
}

// PeerState is the per-peer bookkeeping a ClientData keeps about every
// other node it has broadcast to, keyed by the peer's LocalID.
type PeerState struct {
	LastBroadcastTime time.Time
	SentIdentityVersion uint32
	SentTraitVersions   map[string]uint32
}

// ClientData is the mixer's per-node record. Spec §3: exists iff its Node
// exists, guarded by Mu for all mutable fields except the inbound queue,
// which has its own synchronization (see inbox.go).
type ClientData struct {
	Mu sync.Mutex

	NodeID  uuid.UUID
	LocalID uint16

	Avatar AvatarPayload

	IdentityChangeFlags    bool
	DisplayNameMustChange  bool
	IncomingDisplayName    string
	IdentitySequenceNumber uint32
	BaseDisplayName        string
	SessionDisplayName     string

	RequestsPAL          bool
	RadiusIgnoreEnabled  bool
	Ignored              map[uuid.UUID]struct{}

	// LastAckSequence is the most recent trait-ack sequence this node has
	// reported receiving, used to detect regression (spec §4.11 network
	// event logging).
	LastAckSequence uint32

	// LastVersionMismatchEcho bounds the empty-AvatarData version-mismatch
	// echo to once per RateLimitLogInterval per sender (spec §4.4/§4.11),
	// mirroring the ws handler's own per-sender malformed-packet log gate.
	LastVersionMismatchEcho time.Time

	// PerPeer is keyed by the peer's LocalID, per spec §3's "perPeer maps
	// keyed by peer local id only" invariant.
	PerPeer map[uint16]*PeerState

	Inbox *Inbox
}

// NewClientData constructs an empty ClientData for a freshly admitted node.
func NewClientData(nodeID uuid.UUID, localID uint16, inboxDepth int) *ClientData {
	return &ClientData{
		NodeID:  nodeID,
		LocalID: localID,
		Ignored: make(map[uuid.UUID]struct{}),
		PerPeer: make(map[uint16]*PeerState),
		Inbox:   NewInbox(inboxDepth),
	}
}

// peer returns (creating if necessary) the PeerState for the given peer
// LocalID. Caller must hold Mu.
func (c *ClientData) peer(localID uint16) *PeerState {
	p, ok := c.PerPeer[localID]
	if !ok {
		p = &PeerState{SentTraitVersions: make(map[string]uint32)}
		c.PerPeer[localID] = p
	}
	return p
}

// forgetPeer erases all per-peer bookkeeping for a departed node. Caller
// must hold Mu. Used by the Kill Handler (spec §4.8).
func (c *ClientData) forgetPeer(localID uint16) {
	delete(c.PerPeer, localID)
}

// isIgnoring reports whether c's owner has R in its ignore set.
func (c *ClientData) isIgnoring(id uuid.UUID) bool {
	_, ok := c.Ignored[id]
	return ok
}
