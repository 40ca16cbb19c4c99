package server

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func newAvatarNode(id uuid.UUID, sender PacketSender, bytes []byte) *Node {
	n := &Node{
		ID:      id,
		LocalID: 1,
		Kind:    NodeKindAgent,
		State:   NodeStateActive,
		Active:  true,
		Sender:  sender,
		Data:    NewClientData(id, 1, DefaultInboxDepth),
	}
	n.Data.Avatar.Bytes = bytes
	n.Data.SessionDisplayName = "candidate"
	n.Data.IdentitySequenceNumber = 1
	return n
}

func TestDigestEncoderStopsAtBandwidthBudget(t *testing.T) {
	recipient := newAvatarNode(uuid.New(), &fakeSender{}, nil)
	recipient.LocalID = 100

	a := newAvatarNode(uuid.New(), nil, make([]byte, 40))
	a.LocalID = 1
	b := newAvatarNode(uuid.New(), nil, make([]byte, 40))
	b.LocalID = 2

	budget := BandwidthBudget{Remaining: estimatePacketLen(a.Data.Avatar.Bytes)}
	var enc DigestEncoder
	result := enc.Encode(recipient, []*Node{a, b}, &budget, time.Now())

	if len(result.Included) != 1 {
		t.Fatalf("expected exactly one candidate to fit the budget, got %d", len(result.Included))
	}
	if result.OverBudget != 1 {
		t.Fatalf("expected exactly one candidate dropped over budget, got %d", result.OverBudget)
	}
}

func TestDigestEncoderEmitsIdentityEvenAtZeroBudget(t *testing.T) {
	sender := &fakeSender{}
	recipient := newAvatarNode(uuid.New(), sender, nil)
	recipient.LocalID = 100
	candidate := newAvatarNode(uuid.New(), nil, []byte("position-delta"))
	candidate.LocalID = 1

	budget := BandwidthBudget{Remaining: 0}
	var enc DigestEncoder
	result := enc.Encode(recipient, []*Node{candidate}, &budget, time.Now())

	if result.OverBudget != 1 {
		t.Fatalf("expected the candidate's avatar data to be dropped over budget, got %d", result.OverBudget)
	}
	if result.IdentityBytes == 0 {
		t.Fatalf("expected an identity packet to be emitted even with zero remaining budget")
	}
	if sender.reliableCount() == 0 {
		t.Fatalf("expected a reliable send for the lagging identity packet")
	}

	recipient.Data.Mu.Lock()
	peer := recipient.Data.peer(candidate.LocalID)
	sentVersion := peer.SentIdentityVersion
	recipient.Data.Mu.Unlock()
	if sentVersion == 0 {
		t.Fatalf("expected SentIdentityVersion to advance despite the zero-budget avatar-data skip")
	}
}

func TestDigestEncoderResendsIdentityOnlyWhenSequenceAdvances(t *testing.T) {
	sender := &fakeSender{}
	recipient := newAvatarNode(uuid.New(), sender, nil)
	recipient.LocalID = 100
	candidate := newAvatarNode(uuid.New(), nil, []byte("stable"))
	candidate.LocalID = 1

	budget := NewBandwidthBudget(DefaultMaxNodeSendBandwidthMBps, DefaultFrameInterval)
	var enc DigestEncoder

	enc.Encode(recipient, []*Node{candidate}, &budget, time.Now())
	firstReliable := sender.reliableCount()
	if firstReliable == 0 {
		t.Fatalf("expected the first encode to send an identity packet")
	}

	budget = NewBandwidthBudget(DefaultMaxNodeSendBandwidthMBps, DefaultFrameInterval)
	enc.Encode(recipient, []*Node{candidate}, &budget, time.Now())
	if got := sender.reliableCount(); got != firstReliable {
		t.Fatalf("expected no additional identity packet when the sequence has not advanced, got %d more reliable sends", got-firstReliable)
	}

	candidate.Data.Mu.Lock()
	candidate.Data.IdentitySequenceNumber++
	candidate.Data.Mu.Unlock()

	budget = NewBandwidthBudget(DefaultMaxNodeSendBandwidthMBps, DefaultFrameInterval)
	enc.Encode(recipient, []*Node{candidate}, &budget, time.Now())
	if got := sender.reliableCount(); got != firstReliable+1 {
		t.Fatalf("expected exactly one more identity packet after the sequence advanced, got %d total", got)
	}
}

func TestDigestEncoderAlwaysSendsAvatarDataUnreliably(t *testing.T) {
	sender := &fakeSender{}
	recipient := newAvatarNode(uuid.New(), sender, nil)
	recipient.LocalID = 100
	candidate := newAvatarNode(uuid.New(), nil, []byte("position-delta"))
	candidate.LocalID = 1

	budget := NewBandwidthBudget(DefaultMaxNodeSendBandwidthMBps, DefaultFrameInterval)
	var enc DigestEncoder
	enc.Encode(recipient, []*Node{candidate}, &budget, time.Now())

	if len(sender.unreliable) != 1 {
		t.Fatalf("expected exactly one unreliable avatar-data send, got %d", len(sender.unreliable))
	}
}
