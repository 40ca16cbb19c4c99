package server

import "sync"

// Inbox is a bounded per-ClientData packet queue. Spec §5: "bounded
// wait-free MPSC preferred, otherwise a short-held mutex" — we take the
// mutex option; the receive thread is the only writer contention point
// and hold times are a slice append.
//
// Overflow policy (spec §5, "Cancellation / timeouts"): drop the oldest
// data-bearing packet and keep the newest identity/traits packet, since
// avatar data is lossy by design but identity/traits are reliable state.
type Inbox struct {
	mu       sync.Mutex
	capacity int
	packets  []Packet
}

// NewInbox constructs an Inbox with the given bounded capacity.
func NewInbox(capacity int) *Inbox {
	if capacity <= 0 {
		capacity = DefaultInboxDepth
	}
	return &Inbox{capacity: capacity}
}

// Enqueue appends a packet, applying the overflow policy if the inbox is
// at capacity.
func (ib *Inbox) Enqueue(p Packet) {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	if len(ib.packets) < ib.capacity {
		ib.packets = append(ib.packets, p)
		return
	}
	if idx := ib.oldestDataIndex(); idx >= 0 {
		ib.packets = append(ib.packets[:idx], ib.packets[idx+1:]...)
		ib.packets = append(ib.packets, p)
		return
	}
	// No data-bearing packet to evict and the inbox is full of reliable
	// control packets already: drop the incoming packet rather than a
	// reliable one.
}

func (ib *Inbox) oldestDataIndex() int {
	for i, p := range ib.packets {
		if !isReliableControlPacket(p.Type) {
			return i
		}
	}
	return -1
}

func isReliableControlPacket(t PacketType) bool {
	switch t {
	case PacketAvatarIdentity, PacketSetAvatarTraits, PacketBulkAvatarTraitsAck:
		return true
	default:
		return false
	}
}

// Drain removes and returns all queued packets in FIFO order. Called once
// per node per tick during pass 1 (spec §4.4).
func (ib *Inbox) Drain() []Packet {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	if len(ib.packets) == 0 {
		return nil
	}
	drained := ib.packets
	ib.packets = nil
	return drained
}

// Len reports the current queue depth, used by tests and stats.
func (ib *Inbox) Len() int {
	ib.mu.Lock()
	defer ib.mu.Unlock()
	return len(ib.packets)
}
