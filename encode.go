package server

import (
	"time"

	"github.com/klauspost/compress/s2"
)

// BandwidthBudget tracks a per-recipient byte ceiling for one tick. B_max
// is the bytes/tick allowance derived from
// avatar_mixer.max_node_send_bandwidth (spec §6).
type BandwidthBudget struct {
	Remaining int
}

// NewBandwidthBudget derives a per-tick byte ceiling from a MB/s rate and
// the frame interval.
func NewBandwidthBudget(mbPerSec float64, frameInterval time.Duration) BandwidthBudget {
	bytesPerSecond := mbPerSec * 1_000_000
	perTick := bytesPerSecond * frameInterval.Seconds()
	if perTick < 0 {
		perTick = 0
	}
	return BandwidthBudget{Remaining: int(perTick)}
}

// compressionThreshold is the minimum payload size (bytes) worth paying
// s2's framing overhead for; small avatar deltas are left uncompressed.
const compressionThreshold = 256

// DigestResult summarizes what the encoder produced for one recipient,
// consumed by the stats reporter (spec §4.12).
type DigestResult struct {
	Included       []*Node
	OverBudget     int
	IdentityBytes  int
	TraitBytes     int
	DataBytes      int
}

// DigestEncoder serializes selected candidates into wire packets within a
// recipient's bandwidth ceiling (spec §4.6 step 4).
type DigestEncoder struct{}

// Encode iterates ordered candidates, emitting identity/trait/data packets
// as needed and stopping once the budget is exhausted. It sends directly
// via recipient.Sender rather than returning bytes, mirroring the "always
// emit the avatar data bytes" per-candidate loop in spec §4.6.
func (DigestEncoder) Encode(recipient *Node, ordered []*Node, budget *BandwidthBudget, now time.Time) DigestResult {
	result := DigestResult{}
	if recipient == nil || recipient.Data == nil {
		return result
	}

	for _, c := range ordered {
		recipient.Data.Mu.Lock()
		peer := recipient.Data.peer(c.LocalID)
		recipient.Data.Mu.Unlock()

		c.Data.Mu.Lock()
		identitySeq := c.Data.IdentitySequenceNumber
		sessionName := c.Data.SessionDisplayName
		modelURL := c.Data.Avatar.ModelURL
		avatarBytes := c.Data.Avatar.Bytes
		traits := c.Data.Avatar.Traits
		c.Data.Mu.Unlock()

		// Identity resync always goes out, even at B_max = 0 (spec §8): a
		// recipient must never fall behind on who a candidate is just
		// because their avatar data doesn't fit this tick's budget.
		if identitySeq > peer.SentIdentityVersion {
			idBytes := encodeIdentityBody(c.ID, sessionName, modelURL, identitySeq)
			framed := EncodeFrame(PacketAvatarIdentity, c.ID, idBytes)
			_ = recipient.Sender.SendReliable(framed)
			result.IdentityBytes += len(framed)
			peer.SentIdentityVersion = identitySeq
		}

		for name, trait := range traits {
			if trait.Sequence <= peer.SentTraitVersions[name] {
				continue
			}
			traitBytes := encodeTraitBody(name, trait)
			framed := EncodeFrame(PacketBulkAvatarTraits, c.ID, traitBytes)
			_ = recipient.Sender.SendReliable(framed)
			result.TraitBytes += len(framed)
			peer.SentTraitVersions[name] = trait.Sequence
		}

		dataLen := estimatePacketLen(avatarBytes)
		if dataLen > budget.Remaining {
			result.OverBudget++
			continue
		}

		payload := avatarBytes
		if len(payload) >= compressionThreshold {
			payload = s2.Encode(nil, payload)
		}
		framed := EncodeFrame(PacketBulkAvatarData, c.ID, payload)
		_ = recipient.Sender.SendUnreliable(framed)
		result.DataBytes += len(framed)
		budget.Remaining -= dataLen

		peer.LastBroadcastTime = now
		result.Included = append(result.Included, c)
	}
	return result
}

func estimatePacketLen(avatarBytes []byte) int {
	if len(avatarBytes) >= compressionThreshold {
		return minFramingLen + len(s2.Encode(nil, avatarBytes))
	}
	return minFramingLen + len(avatarBytes)
}

func encodeIdentityBody(id [16]byte, sessionName, modelURL string, seq uint32) []byte {
	// Layout: 4-byte sequence, 2-byte name len, name, 2-byte url len, url.
	body := make([]byte, 0, 8+len(sessionName)+len(modelURL))
	body = appendUint32(body, seq)
	body = appendString(body, sessionName)
	body = appendString(body, modelURL)
	return body
}

func encodeTraitBody(name string, trait TraitEntry) []byte {
	body := make([]byte, 0, 6+len(name)+len(trait.Bytes))
	body = appendUint32(body, trait.Sequence)
	body = appendString(body, name)
	body = append(body, trait.Bytes...)
	return body
}

func appendUint32(dst []byte, v uint32) []byte {
	return append(dst, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func appendString(dst []byte, s string) []byte {
	dst = append(dst, byte(len(s)>>8), byte(len(s)))
	return append(dst, s...)
}
