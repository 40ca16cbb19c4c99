package server

import (
	"context"
	"time"

	"github.com/google/uuid"

	"avatarmixer/server/logging/interest"
)

var zeroTime time.Time

// handleControlPlane applies the receive-thread control packet handlers
// from spec §4.7. These mutate ClientData directly rather than going
// through the inbox, since spec §5 says control-plane mutations "become
// visible to the next tick's pass 2" regardless of whether they are
// applied synchronously on receipt or drained from a queue — applying
// them synchronously here is simpler and avoids inbox capacity pressure
// from cheap boolean toggles.
func (m *Mixer) handleControlPlane(n *Node, pkt Packet) {
	switch pkt.Type {
	case PacketNodeIgnoreRequest:
		m.handleIgnoreRequest(n, pkt)
	case PacketRadiusIgnoreRequest:
		n.Data.Mu.Lock()
		n.Data.RadiusIgnoreEnabled = pkt.RadiusOn
		n.Data.Mu.Unlock()
	case PacketRequestsDomainListData:
		m.handlePALRequest(n, pkt)
	case PacketAvatarIdentityRequest, PacketAvatarQuery:
		m.handleIdentityRequest(n, pkt)
	case PacketKillAvatar:
		m.HandleKill(n.ID)
	case PacketAdjustAvatarSorting:
		m.handleAdjustSorting(pkt)
	case PacketReplicatedAvatarIdentity, PacketReplicatedKillAvatar, PacketReplicatedBulkAvatarData:
		m.applyReplicatedPacket(n, pkt)
	}
}

// applyReplicatedPacket implements spec §4.9's ingress path: materialize or
// refresh a shadow Node for the replicated origin, then re-enter the normal
// handler for the underlying wire type.
func (m *Mixer) applyReplicatedPacket(upstream *Node, pkt Packet) {
	origin := pkt.Target
	if origin == (uuid.UUID{}) {
		return
	}

	shadow := m.registry.Lookup(origin)
	if shadow == nil {
		shadow = m.AdmitShadow(origin, nil)
	}

	switch pkt.Type {
	case PacketReplicatedKillAvatar:
		m.HandleKill(origin)
	case PacketReplicatedAvatarIdentity:
		shadow.Data.Mu.Lock()
		shadow.Data.IncomingDisplayName = pkt.Avatar.DisplayNameRaw
		shadow.Data.DisplayNameMustChange = true
		if pkt.Avatar.ModelURL != "" {
			shadow.Data.Avatar.ModelURL = pkt.Avatar.ModelURL
		}
		shadow.Data.Mu.Unlock()
		m.replicateIdentity(shadow)
	case PacketReplicatedBulkAvatarData:
		shadow.Data.Mu.Lock()
		shadow.Data.Avatar.Bytes = pkt.Avatar.Bytes
		shadow.Data.Avatar.IdentitySequence++
		shadow.Data.Avatar.LastUpdated = time.Now()
		shadow.Data.Mu.Unlock()
		m.replicateBulkData(shadow)
	}
}

// handleIgnoreRequest implements spec §4.7's NodeIgnoreRequest: toggle
// ignore both ways for bookkeeping resets. On addToIgnore two reliable
// kill packets go out: one to the ignored node C telling its client to
// forget the ignorer R (spec §4.7), and one to R itself carrying C's id
// so R's client immediately stops rendering C (spec §8 scenario 3).
func (m *Mixer) handleIgnoreRequest(n *Node, pkt Packet) {
	for _, targetID := range pkt.IgnoreIDs {
		n.Data.Mu.Lock()
		if pkt.AddToIgnore {
			n.Data.Ignored[targetID] = struct{}{}
		} else {
			delete(n.Data.Ignored, targetID)
		}
		n.Data.Mu.Unlock()

		interest.IgnoreToggled(context.Background(), m.publisher, 0, entityRef(n.ID), interest.IgnoreToggledPayload{
			Target: targetID.String(),
			Added:  pkt.AddToIgnore,
		}, nil)

		target := m.registry.Lookup(targetID)
		if target == nil || target.Data == nil {
			continue
		}

		resetPeerState(n.Data, target.LocalID)
		resetPeerState(target.Data, n.LocalID)

		if pkt.AddToIgnore {
			if target.Active && target.Sender != nil {
				body := EncodeFrame(PacketKillAvatar, n.ID, nil)
				_ = target.Sender.SendReliable(body)
			}
			if n.Sender != nil {
				body := EncodeFrame(PacketKillAvatar, targetID, nil)
				_ = n.Sender.SendReliable(body)
			}
		}
	}
}

// resetPeerState zeroes lastBroadcastTime and sentIdentityVersion for
// peerLocalID inside owner's ClientData, forcing identity/data resync
// (spec §4.6's "Resetting lastBroadcastTime[C] = 0 ... forces identity
// resync").
func resetPeerState(owner *ClientData, peerLocalID uint16) {
	owner.Mu.Lock()
	defer owner.Mu.Unlock()
	p, ok := owner.PerPeer[peerLocalID]
	if !ok {
		return
	}
	p.LastBroadcastTime = zeroTime
	p.SentIdentityVersion = 0
	for name := range p.SentTraitVersions {
		delete(p.SentTraitVersions, name)
	}
}

// handlePALRequest implements spec §4.7's RequestsDomainListData: when
// newly opted in, reset lastBroadcastTime for every currently-ignored
// peer so their identity repopulates via emitPALIdentities.
func (m *Mixer) handlePALRequest(n *Node, pkt Packet) {
	n.Data.Mu.Lock()
	wasOn := n.Data.RequestsPAL
	n.Data.RequestsPAL = pkt.DomainList
	ignoredIDs := make([]uuid.UUID, 0, len(n.Data.Ignored))
	for id := range n.Data.Ignored {
		ignoredIDs = append(ignoredIDs, id)
	}
	n.Data.Mu.Unlock()

	if wasOn || !pkt.DomainList {
		return
	}
	for _, id := range ignoredIDs {
		if node := m.registry.Lookup(id); node != nil && node.Data != nil {
			resetPeerState(n.Data, node.LocalID)
		}
	}
}

// handleIdentityRequest implements spec §4.7's AvatarIdentityRequest:
// look up the target, send its current identity, and reset the
// requester's sentTraitVersions for that target to force a trait resync.
func (m *Mixer) handleIdentityRequest(n *Node, pkt Packet) {
	target := m.registry.Lookup(pkt.Target)
	if target == nil || target.Data == nil {
		return
	}

	target.Data.Mu.Lock()
	seq := target.Data.IdentitySequenceNumber
	sessionName := target.Data.SessionDisplayName
	modelURL := target.Data.Avatar.ModelURL
	target.Data.Mu.Unlock()

	if n.Sender != nil {
		body := encodeIdentityBody(target.ID, sessionName, modelURL, seq)
		framed := EncodeFrame(PacketAvatarIdentity, target.ID, body)
		_ = n.Sender.SendReliable(framed)
	}

	n.Data.Mu.Lock()
	peer := n.Data.peer(target.LocalID)
	for name := range peer.SentTraitVersions {
		delete(peer.SentTraitVersions, name)
	}
	peer.SentIdentityVersion = seq
	n.Data.Mu.Unlock()
}

// handleAdjustSorting implements spec §4.7's admin-gated
// AdjustAvatarSorting: silently dropped on failed verification (spec §7:
// "policy violation ... drop silently").
func (m *Mixer) handleAdjustSorting(pkt Packet) {
	if m.admin == nil || !m.admin.Verify(pkt.CapabilityToken) {
		return
	}
	m.weights.Store(pkt.SortWeights)
}
