package server

import (
	"context"
	"time"

	"avatarmixer/server/logging/identity"
	"avatarmixer/server/logging/network"
)

// drainChunk implements pass 1 (spec §4.4): for each node in the slave's
// chunk, drain its inbox and apply each packet's effect.
func (m *Mixer) drainChunk(chunk []*Node, s *SlaveStats) {
	for _, n := range chunk {
		if n.Data == nil {
			continue
		}
		packets := n.Data.Inbox.Drain()
		s.NodesProcessed++
		for _, pkt := range packets {
			s.PacketsProcessed++
			m.applyPacket(n, pkt)
		}
	}
}

func (m *Mixer) applyPacket(n *Node, pkt Packet) {
	if pkt.Type == PacketUnknown {
		// Unknown packet version: spec §4.4/§4.11 report this once per
		// sender via an echo-empty-packet protocol, not on every offending
		// packet.
		n.Data.Mu.Lock()
		due := time.Since(n.Data.LastVersionMismatchEcho) >= RateLimitLogInterval
		if due {
			n.Data.LastVersionMismatchEcho = time.Now()
		}
		n.Data.Mu.Unlock()
		if !due {
			return
		}
		identity.VersionMismatch(context.Background(), m.publisher, 0, entityRef(n.ID), identity.VersionMismatchPayload{
			Version: pkt.Version,
		}, nil)
		if n.Sender != nil {
			framed := EncodeFrame(PacketAvatarData, n.ID, nil)
			_ = n.Sender.SendUnreliable(framed)
		}
		return
	}

	switch pkt.Type {
	case PacketAvatarData:
		n.Data.Mu.Lock()
		accepted := pkt.Avatar.IdentitySequence >= n.Data.Avatar.IdentitySequence
		if accepted {
			n.Data.Avatar.Bytes = pkt.Avatar.Bytes
			n.Data.Avatar.IdentitySequence = pkt.Avatar.IdentitySequence
			n.Data.Avatar.WorldPosition = pkt.Avatar.WorldPosition
			n.Data.Avatar.Facing = pkt.Avatar.Facing
			n.Data.Avatar.BoundingRadius = pkt.Avatar.BoundingRadius
			n.Data.Avatar.LastUpdated = time.Now()
		}
		n.Data.Mu.Unlock()
		if accepted && !n.Replicated {
			m.replicateBulkData(n)
		}

	case PacketAvatarIdentity:
		n.Data.Mu.Lock()
		if pkt.Avatar.DisplayNameRaw != n.Data.IncomingDisplayName || n.Data.BaseDisplayName == "" {
			n.Data.IncomingDisplayName = pkt.Avatar.DisplayNameRaw
			n.Data.DisplayNameMustChange = true
		}
		if pkt.Avatar.ModelURL != "" {
			n.Data.Avatar.ModelURL = pkt.Avatar.ModelURL
		}
		n.Data.Mu.Unlock()
		if !n.Replicated {
			m.replicateIdentity(n)
		}

	case PacketSetAvatarTraits:
		n.Data.Mu.Lock()
		if n.Data.Avatar.Traits == nil {
			n.Data.Avatar.Traits = make(map[string]TraitEntry)
		}
		for name, trait := range pkt.Avatar.Traits {
			existing, ok := n.Data.Avatar.Traits[name]
			if !ok || trait.Sequence > existing.Sequence {
				n.Data.Avatar.Traits[name] = trait
			}
		}
		n.Data.Mu.Unlock()

	case PacketBulkAvatarTraitsAck:
		n.Data.Mu.Lock()
		previous := n.Data.LastAckSequence
		n.Data.LastAckSequence = pkt.AckSequence
		n.Data.Mu.Unlock()
		switch {
		case pkt.AckSequence > previous:
			network.AckAdvanced(context.Background(), m.publisher, 0, entityRef(n.ID), network.AckPayload{
				Previous: uint64(previous),
				Ack:      uint64(pkt.AckSequence),
			}, nil)
		case pkt.AckSequence < previous:
			network.AckRegression(context.Background(), m.publisher, 0, entityRef(n.ID), network.AckPayload{
				Previous: uint64(previous),
				Ack:      uint64(pkt.AckSequence),
			}, nil)
		}
	}
}
