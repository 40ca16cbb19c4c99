package server

import (
	"testing"

	"github.com/google/uuid"

	"avatarmixer/server/logging/identity"
	"avatarmixer/server/logging/network"
)

func TestApplyPacketAckAdvanceEmitsEvent(t *testing.T) {
	m, pub := newTestMixer()
	n := m.registry.Add(uuid.New(), NodeKindAgent, nil, DefaultInboxDepth)

	m.applyPacket(n, Packet{Type: PacketBulkAvatarTraitsAck, AckSequence: 3})

	advanced := pub.byType(network.EventAckAdvanced)
	if len(advanced) != 1 {
		t.Fatalf("expected one ack-advanced event, got %d", len(advanced))
	}
	if pub.byType(network.EventAckRegression) != nil {
		t.Fatalf("expected no ack-regression event on the first ack")
	}
}

func TestApplyPacketAckRegressionEmitsEvent(t *testing.T) {
	m, pub := newTestMixer()
	n := m.registry.Add(uuid.New(), NodeKindAgent, nil, DefaultInboxDepth)

	m.applyPacket(n, Packet{Type: PacketBulkAvatarTraitsAck, AckSequence: 5})
	m.applyPacket(n, Packet{Type: PacketBulkAvatarTraitsAck, AckSequence: 2})

	regressed := pub.byType(network.EventAckRegression)
	if len(regressed) != 1 {
		t.Fatalf("expected one ack-regression event when a later ack reports a lower sequence, got %d", len(regressed))
	}
}

func TestApplyPacketAckSameSequenceEmitsNoEvent(t *testing.T) {
	m, pub := newTestMixer()
	n := m.registry.Add(uuid.New(), NodeKindAgent, nil, DefaultInboxDepth)

	m.applyPacket(n, Packet{Type: PacketBulkAvatarTraitsAck, AckSequence: 4})
	m.applyPacket(n, Packet{Type: PacketBulkAvatarTraitsAck, AckSequence: 4})

	if got := len(pub.byType(network.EventAckAdvanced)) + len(pub.byType(network.EventAckRegression)); got != 1 {
		t.Fatalf("expected exactly one progression event across an advance followed by a repeat, got %d", got)
	}
}

func TestApplyPacketAvatarDataRejectsStaleSequence(t *testing.T) {
	m, _ := newTestMixer()
	n := m.registry.Add(uuid.New(), NodeKindAgent, nil, DefaultInboxDepth)
	n.Data.Avatar.IdentitySequence = 10
	n.Data.Avatar.Bytes = []byte("fresh")

	m.applyPacket(n, Packet{Type: PacketAvatarData, Avatar: AvatarPayload{IdentitySequence: 5, Bytes: []byte("stale")}})

	if string(n.Data.Avatar.Bytes) != "fresh" {
		t.Fatalf("expected a stale-sequence avatar update to be rejected, got %q", n.Data.Avatar.Bytes)
	}
}

func TestApplyPacketUnknownVersionEchoesOncePerInterval(t *testing.T) {
	m, pub := newTestMixer()
	sender := &fakeSender{}
	n := m.registry.Add(uuid.New(), NodeKindAgent, sender, DefaultInboxDepth)

	m.applyPacket(n, Packet{Type: PacketUnknown, Version: WireVersion + 1})
	m.applyPacket(n, Packet{Type: PacketUnknown, Version: WireVersion + 1})
	m.applyPacket(n, Packet{Type: PacketUnknown, Version: WireVersion + 1})

	if got := len(pub.byType(identity.EventVersionMismatch)); got != 1 {
		t.Fatalf("expected exactly one version-mismatch event within the rate-limit interval, got %d", got)
	}
	if got := len(sender.unreliable); got != 1 {
		t.Fatalf("expected exactly one echoed empty avatar-data packet within the rate-limit interval, got %d", got)
	}
}

func TestApplyPacketAvatarDataAcceptsNewerSequence(t *testing.T) {
	m, _ := newTestMixer()
	n := m.registry.Add(uuid.New(), NodeKindAgent, nil, DefaultInboxDepth)
	n.Data.Avatar.IdentitySequence = 1
	n.Data.Avatar.Bytes = []byte("old")

	m.applyPacket(n, Packet{Type: PacketAvatarData, Avatar: AvatarPayload{IdentitySequence: 2, Bytes: []byte("new")}})

	if string(n.Data.Avatar.Bytes) != "new" {
		t.Fatalf("expected a newer-sequence avatar update accepted, got %q", n.Data.Avatar.Bytes)
	}
}
