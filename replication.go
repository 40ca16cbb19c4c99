package server

// ReplicationPolicy is the per-deployment policy hook from spec §4.9:
// "shouldReplicateTo(source, D) holds (per-deployment policy hook)".
type ReplicationPolicy interface {
	ShouldReplicateTo(source, downstream *Node) bool
}

// AlwaysReplicate is the default policy: every replicated source node is
// mirrored to every downstream mixer. Deployments needing topology-aware
// filtering (e.g. zone partitioning) supply their own ReplicationPolicy.
type AlwaysReplicate struct{}

// ShouldReplicateTo returns true for any non-nil source whenever
// downstream is a downstream mixer; the source's kind and flags are not
// consulted.
func (AlwaysReplicate) ShouldReplicateTo(source, downstream *Node) bool {
	if source == nil || downstream == nil {
		return false
	}
	return downstream.Kind == NodeKindDownstreamMixer
}

// replicatedPacketTypes is the "replicated mapping" from spec §4.9:
// identity, kill, and bulk avatar data are the only types that
// participate in replication.
var replicatedPacketTypes = map[PacketType]struct{}{
	PacketAvatarIdentity:   {},
	PacketKillAvatar:       {},
	PacketBulkAvatarData:   {},
}

// IsReplicatedType reports whether t participates in the replicated
// mapping.
func IsReplicatedType(t PacketType) bool {
	_, ok := replicatedPacketTypes[t]
	return ok
}

// replicateIdentity fans a ReplicatedAvatarIdentity out to every downstream
// mixer per spec §4.9's egress rule, run synchronously as a side effect of
// applying an inbound AvatarIdentity packet.
func (m *Mixer) replicateIdentity(source *Node) {
	if !IsReplicatedType(PacketAvatarIdentity) {
		return
	}
	source.Data.Mu.Lock()
	sessionName := source.Data.SessionDisplayName
	modelURL := source.Data.Avatar.ModelURL
	seq := source.Data.IdentitySequenceNumber
	source.Data.Mu.Unlock()

	body := EncodeReplicatedPrefix(source.ID, encodeIdentityBody(source.ID, sessionName, modelURL, seq))
	frame := EncodeFrame(PacketReplicatedAvatarIdentity, source.ID, body)
	m.fanoutReplicated(source, frame)
}

// replicateBulkData fans a ReplicatedBulkAvatarData out to every downstream
// mixer, run as a side effect of applying an inbound AvatarData packet.
func (m *Mixer) replicateBulkData(source *Node) {
	if !IsReplicatedType(PacketBulkAvatarData) {
		return
	}
	source.Data.Mu.Lock()
	avatarBytes := append([]byte(nil), source.Data.Avatar.Bytes...)
	source.Data.Mu.Unlock()

	body := EncodeReplicatedPrefix(source.ID, avatarBytes)
	frame := EncodeFrame(PacketReplicatedBulkAvatarData, source.ID, body)
	m.fanoutReplicated(source, frame)
}

func (m *Mixer) fanoutReplicated(source *Node, frame []byte) {
	for _, other := range m.registry.stableSnapshot() {
		if other.Kind != NodeKindDownstreamMixer || other.Sender == nil {
			continue
		}
		if !m.repl.ShouldReplicateTo(source, other) {
			continue
		}
		_ = other.Sender.SendReliable(frame)
	}
}
