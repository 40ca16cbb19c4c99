package server

import (
	"context"

	"github.com/google/uuid"

	"avatarmixer/server/logging/lifecycle"
	"avatarmixer/server/logging/replication"
)

// HandleKill implements the Kill Handler (spec §4.8): on node departure,
// release the display name, fan a kill packet out to interested agents
// and a replicated-kill to downstream mixers, then erase every other
// ClientData's per-peer bookkeeping for the departed node.
func (m *Mixer) HandleKill(killed uuid.UUID) {
	node := m.registry.Lookup(killed)
	if node == nil {
		return
	}

	node.Data.Mu.Lock()
	baseName := node.Data.BaseDisplayName
	node.Data.Mu.Unlock()
	m.names.Release(baseName)

	all := m.registry.stableSnapshot()
	killFrame := EncodeFrame(PacketKillAvatar, killed, nil)
	replicatedFrame := EncodeFrame(PacketReplicatedKillAvatar, killed, EncodeReplicatedPrefix(killed, nil))
	downstreamCount := 0

	for _, other := range all {
		if other.ID == killed || other.Data == nil {
			continue
		}
		if other.Kind == NodeKindAgent && !other.Upstream && other.Active && other.Sender != nil {
			if !other.Data.isIgnoring(killed) {
				_ = other.Sender.SendReliable(killFrame)
			}
		}
		if other.Kind == NodeKindDownstreamMixer && other.Sender != nil && m.repl.ShouldReplicateTo(node, other) {
			_ = other.Sender.SendReliable(replicatedFrame)
			downstreamCount++
		}

		// Per-ClientData cleanup: erase lastBroadcastTime/sentTraitVersions
		// for the departed node under that node's own mutex (spec §4.8:
		// "message-passing style, not a global sweep under a global lock").
		other.Data.Mu.Lock()
		other.Data.forgetPeer(node.LocalID)
		other.Data.Mu.Unlock()
	}

	if downstreamCount > 0 {
		replication.FannedOut(context.Background(), m.publisher, 0, entityRef(killed), replication.FannedOutPayload{
			PacketType: PacketReplicatedKillAvatar.String(),
			Downstream: downstreamCount,
		}, nil)
	}
	lifecycle.NodeKilled(context.Background(), m.publisher, 0, entityRef(killed), lifecycle.NodeKilledPayload{Reason: "kill"}, nil)

	m.registry.Remove(killed)
}
