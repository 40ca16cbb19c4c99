package server

import (
	"testing"

	"github.com/google/uuid"
)

func TestDecodeRejectsShortPacket(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	if err == nil {
		t.Fatalf("expected a packet shorter than the framing prefix to be rejected")
	}
}

func TestDecodeUnknownVersionYieldsUnknownType(t *testing.T) {
	sender := uuid.New()
	raw := EncodeFrame(PacketAvatarData, sender, nil)
	raw[1] = WireVersion + 1 // corrupt the version byte

	pkt, err := Decode(raw)
	if err != nil {
		t.Fatalf("expected a version mismatch to decode without error, got %v", err)
	}
	if pkt.Type != PacketUnknown {
		t.Fatalf("expected version mismatch to yield PacketUnknown, got %v", pkt.Type)
	}
}

func TestDecodeUnknownTypeTagYieldsUnknownType(t *testing.T) {
	sender := uuid.New()
	raw := EncodeFrame(PacketType(200), sender, nil)

	pkt, err := Decode(raw)
	if err != nil {
		t.Fatalf("expected an out-of-range type tag to decode without error, got %v", err)
	}
	if pkt.Type != PacketUnknown {
		t.Fatalf("expected out-of-range type tag to yield PacketUnknown, got %v", pkt.Type)
	}
}

func TestDecodeAvatarIdentityRequestAndQueryShareLayout(t *testing.T) {
	sender := uuid.New()
	target := uuid.New()

	for _, typ := range []PacketType{PacketAvatarIdentityRequest, PacketAvatarQuery} {
		raw := EncodeFrame(typ, sender, target[:])
		pkt, err := Decode(raw)
		if err != nil {
			t.Fatalf("unexpected decode error for %v: %v", typ, err)
		}
		if pkt.Target != target {
			t.Fatalf("expected decoded target %s for %v, got %s", target, typ, pkt.Target)
		}
	}
}

func TestDecodeAvatarQueryRejectsMissingTarget(t *testing.T) {
	sender := uuid.New()
	raw := EncodeFrame(PacketAvatarQuery, sender, nil)
	if _, err := Decode(raw); err == nil {
		t.Fatalf("expected a query with no target to be rejected")
	}
}

func TestDecodeBulkAvatarTraitsAck(t *testing.T) {
	sender := uuid.New()
	body := []byte{0, 0, 0, 42}
	raw := EncodeFrame(PacketBulkAvatarTraitsAck, sender, body)

	pkt, err := Decode(raw)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if pkt.AckSequence != 42 {
		t.Fatalf("expected ack sequence 42, got %d", pkt.AckSequence)
	}
}

func TestDecodeReplicatedIdentityRoundTrips(t *testing.T) {
	source := uuid.New()
	origin := uuid.New()

	identityBody := encodeIdentityBody(origin, "nova", "https://example.com/avatar.glb", 3)
	raw := EncodeFrame(PacketReplicatedAvatarIdentity, source, EncodeReplicatedPrefix(origin, identityBody))

	pkt, err := Decode(raw)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if pkt.Target != origin {
		t.Fatalf("expected decoded origin %s, got %s", origin, pkt.Target)
	}
	if pkt.Avatar.DisplayNameRaw != "nova" {
		t.Fatalf("expected decoded display name %q, got %q", "nova", pkt.Avatar.DisplayNameRaw)
	}
	if pkt.Avatar.ModelURL != "https://example.com/avatar.glb" {
		t.Fatalf("expected decoded model URL preserved, got %q", pkt.Avatar.ModelURL)
	}
	if pkt.Avatar.IdentitySequence != 3 {
		t.Fatalf("expected decoded identity sequence 3, got %d", pkt.Avatar.IdentitySequence)
	}
}

func TestDecodeReplicatedBulkDataRoundTrips(t *testing.T) {
	source := uuid.New()
	origin := uuid.New()
	payload := []byte{1, 2, 3, 4, 5}

	raw := EncodeFrame(PacketReplicatedBulkAvatarData, source, EncodeReplicatedPrefix(origin, payload))

	pkt, err := Decode(raw)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if pkt.Target != origin {
		t.Fatalf("expected decoded origin %s, got %s", origin, pkt.Target)
	}
	if string(pkt.Avatar.Bytes) != string(payload) {
		t.Fatalf("expected decoded payload %v, got %v", payload, pkt.Avatar.Bytes)
	}
}

func TestDecodeIgnoreRequestParsesIDList(t *testing.T) {
	sender := uuid.New()
	a, b := uuid.New(), uuid.New()
	body := append([]byte{1}, append(a[:], b[:]...)...)
	raw := EncodeFrame(PacketNodeIgnoreRequest, sender, body)

	pkt, err := Decode(raw)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if !pkt.AddToIgnore {
		t.Fatalf("expected AddToIgnore true")
	}
	if len(pkt.IgnoreIDs) != 2 || pkt.IgnoreIDs[0] != a || pkt.IgnoreIDs[1] != b {
		t.Fatalf("expected ignore id list [%s %s], got %v", a, b, pkt.IgnoreIDs)
	}
}

func TestDecodeIgnoreRequestRejectsMisalignedIDList(t *testing.T) {
	sender := uuid.New()
	body := []byte{1, 0, 1, 2, 3} // trailing bytes not a multiple of 16
	raw := EncodeFrame(PacketNodeIgnoreRequest, sender, body)
	if _, err := Decode(raw); err == nil {
		t.Fatalf("expected a misaligned ignore id list to be rejected")
	}
}

// testEncodeAvatarDataBody builds the wire body a client's AvatarData
// packet carries: identity sequence, world position, facing, bounding
// radius, then the opaque avatar bytes. It mirrors decodeBody's
// PacketAvatarData case so tests can round-trip it.
func testEncodeAvatarDataBody(seq uint32, pos, facing [3]float64, radius float64, payload []byte) []byte {
	body := make([]byte, 0, 4+8*3+8*3+8+len(payload))
	body = appendUint32(body, seq)
	for _, v := range pos {
		body = appendFloat64(body, v)
	}
	for _, v := range facing {
		body = appendFloat64(body, v)
	}
	body = appendFloat64(body, radius)
	body = append(body, payload...)
	return body
}

func appendFloat64(dst []byte, f float64) []byte {
	bits := float64bits(f)
	return append(dst,
		byte(bits>>56), byte(bits>>48), byte(bits>>40), byte(bits>>32),
		byte(bits>>24), byte(bits>>16), byte(bits>>8), byte(bits))
}

func TestDecodeAvatarDataRoundTrips(t *testing.T) {
	sender := uuid.New()
	pos := [3]float64{1.5, -2.25, 3.0}
	facing := [3]float64{0, 0, 1}
	payload := []byte{9, 8, 7, 6}

	body := testEncodeAvatarDataBody(7, pos, facing, 0.5, payload)
	raw := EncodeFrame(PacketAvatarData, sender, body)

	pkt, err := Decode(raw)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if pkt.Avatar.IdentitySequence != 7 {
		t.Fatalf("expected identity sequence 7, got %d", pkt.Avatar.IdentitySequence)
	}
	if pkt.Avatar.WorldPosition != pos {
		t.Fatalf("expected world position %v, got %v", pos, pkt.Avatar.WorldPosition)
	}
	if pkt.Avatar.Facing != facing {
		t.Fatalf("expected facing %v, got %v", facing, pkt.Avatar.Facing)
	}
	if pkt.Avatar.BoundingRadius != 0.5 {
		t.Fatalf("expected bounding radius 0.5, got %v", pkt.Avatar.BoundingRadius)
	}
	if string(pkt.Avatar.Bytes) != string(payload) {
		t.Fatalf("expected decoded avatar bytes %v, got %v", payload, pkt.Avatar.Bytes)
	}
}

func TestDecodeAvatarDataRejectsShortHeader(t *testing.T) {
	sender := uuid.New()
	raw := EncodeFrame(PacketAvatarData, sender, []byte{0, 0, 0, 1})
	if _, err := Decode(raw); err == nil {
		t.Fatalf("expected a truncated avatar data header to be rejected")
	}
}

func TestDecodeAvatarIdentityRoundTrips(t *testing.T) {
	sender := uuid.New()
	body := encodeIdentityBody(sender, "aurora", "https://example.com/aurora.glb", 5)
	raw := EncodeFrame(PacketAvatarIdentity, sender, body)

	pkt, err := Decode(raw)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if pkt.Avatar.DisplayNameRaw != "aurora" {
		t.Fatalf("expected display name %q, got %q", "aurora", pkt.Avatar.DisplayNameRaw)
	}
	if pkt.Avatar.ModelURL != "https://example.com/aurora.glb" {
		t.Fatalf("expected model URL preserved, got %q", pkt.Avatar.ModelURL)
	}
	if pkt.Avatar.IdentitySequence != 5 {
		t.Fatalf("expected identity sequence 5, got %d", pkt.Avatar.IdentitySequence)
	}
}

// testEncodeSetAvatarTraitsBody builds the wire body decodeBody's
// PacketSetAvatarTraits case parses: a 2-byte count followed by
// length-prefixed name/sequence/length-prefixed-bytes entries.
func testEncodeSetAvatarTraitsBody(traits map[string]TraitEntry) []byte {
	body := []byte{byte(len(traits) >> 8), byte(len(traits))}
	for name, trait := range traits {
		body = appendString(body, name)
		body = appendUint32(body, trait.Sequence)
		body = appendUint32(body, uint32(len(trait.Bytes)))
		body = append(body, trait.Bytes...)
	}
	return body
}

func TestDecodeSetAvatarTraitsRoundTrips(t *testing.T) {
	sender := uuid.New()
	traits := map[string]TraitEntry{
		"skin": {Sequence: 2, Bytes: []byte{1, 2, 3}},
	}
	raw := EncodeFrame(PacketSetAvatarTraits, sender, testEncodeSetAvatarTraitsBody(traits))

	pkt, err := Decode(raw)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	got, ok := pkt.Avatar.Traits["skin"]
	if !ok {
		t.Fatalf("expected decoded traits to contain %q, got %v", "skin", pkt.Avatar.Traits)
	}
	if got.Sequence != 2 || string(got.Bytes) != "\x01\x02\x03" {
		t.Fatalf("expected trait {2 [1 2 3]}, got %+v", got)
	}
}

func TestDecodeSetAvatarTraitsRejectsTruncatedPayload(t *testing.T) {
	sender := uuid.New()
	body := []byte{0, 1, 0, 4, 's', 'k', 'i', 'n', 0, 0, 0, 1, 0, 0, 0, 5}
	raw := EncodeFrame(PacketSetAvatarTraits, sender, body)
	if _, err := Decode(raw); err == nil {
		t.Fatalf("expected a truncated trait payload to be rejected")
	}
}

// testEncodeAdjustSortingBody builds the wire body decodeBody's
// PacketAdjustAvatarSorting case parses: three float64 weights followed by
// a length-prefixed capability token.
func testEncodeAdjustSortingBody(w SortWeights, token string) []byte {
	body := appendFloat64(nil, w.Size)
	body = appendFloat64(body, w.Center)
	body = appendFloat64(body, w.Age)
	body = appendString(body, token)
	return body
}

func TestDecodeAdjustAvatarSortingRoundTrips(t *testing.T) {
	sender := uuid.New()
	weights := SortWeights{Size: 0.6, Center: 0.3, Age: 0.1}
	raw := EncodeFrame(PacketAdjustAvatarSorting, sender, testEncodeAdjustSortingBody(weights, "admin-token"))

	pkt, err := Decode(raw)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if pkt.SortWeights != weights {
		t.Fatalf("expected sort weights %+v, got %+v", weights, pkt.SortWeights)
	}
	if pkt.CapabilityToken != "admin-token" {
		t.Fatalf("expected capability token %q, got %q", "admin-token", pkt.CapabilityToken)
	}
}

func TestDecodeAdjustAvatarSortingRejectsShortBody(t *testing.T) {
	sender := uuid.New()
	raw := EncodeFrame(PacketAdjustAvatarSorting, sender, []byte{0, 0, 0})
	if _, err := Decode(raw); err == nil {
		t.Fatalf("expected a truncated adjust-sorting body to be rejected")
	}
}
