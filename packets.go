package server

import "github.com/google/uuid"

// PacketType is the closed enum of wire message cases. Design note (spec
// §9, "Dynamic dispatch over packet handlers"): every inbound packet is
// decoded into one of these before it reaches any handler, so unknown
// types are an explicit, testable case rather than a missing branch.
type PacketType int

const (
	PacketUnknown PacketType = iota

	// Inbound.
	PacketAvatarData
	PacketAvatarIdentity
	PacketAvatarIdentityRequest
	PacketSetAvatarTraits
	PacketBulkAvatarTraitsAck
	PacketKillAvatar
	PacketNodeIgnoreRequest
	PacketRadiusIgnoreRequest
	PacketRequestsDomainListData
	PacketAvatarQuery
	PacketAdjustAvatarSorting
	PacketReplicatedAvatarIdentity
	PacketReplicatedKillAvatar
	PacketReplicatedBulkAvatarData

	// Outbound only.
	PacketBulkAvatarData
	PacketBulkAvatarTraits
)

func (t PacketType) String() string {
	switch t {
	case PacketAvatarData:
		return "AvatarData"
	case PacketAvatarIdentity:
		return "AvatarIdentity"
	case PacketAvatarIdentityRequest:
		return "AvatarIdentityRequest"
	case PacketSetAvatarTraits:
		return "SetAvatarTraits"
	case PacketBulkAvatarTraitsAck:
		return "BulkAvatarTraitsAck"
	case PacketKillAvatar:
		return "KillAvatar"
	case PacketNodeIgnoreRequest:
		return "NodeIgnoreRequest"
	case PacketRadiusIgnoreRequest:
		return "RadiusIgnoreRequest"
	case PacketRequestsDomainListData:
		return "RequestsDomainListData"
	case PacketAvatarQuery:
		return "AvatarQuery"
	case PacketAdjustAvatarSorting:
		return "AdjustAvatarSorting"
	case PacketReplicatedAvatarIdentity:
		return "ReplicatedAvatarIdentity"
	case PacketReplicatedKillAvatar:
		return "ReplicatedKillAvatar"
	case PacketReplicatedBulkAvatarData:
		return "ReplicatedBulkAvatarData"
	case PacketBulkAvatarData:
		return "BulkAvatarData"
	case PacketBulkAvatarTraits:
		return "BulkAvatarTraits"
	default:
		return "Unknown"
	}
}

// WireVersion is the single version byte carried by every packet.
const WireVersion byte = 1

// Packet is the closed variant every inbound message is decoded into
// before dispatch. Only the fields relevant to Type are populated.
type Packet struct {
	Type    PacketType
	Version byte
	Sender  uuid.UUID

	Avatar       AvatarPayload
	TraitNames   []string
	AckSequence  uint32
	Target       uuid.UUID
	IgnoreIDs    []uuid.UUID
	AddToIgnore  bool
	RadiusOn     bool
	DomainList   bool

	SortWeights    SortWeights
	CapabilityToken string
}

// DecodeError is returned by Decode for malformed input (spec §4.11:
// "size < required prefix" is dropped and rate-limit-logged, not treated
// as a fatal error).
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return "avatarmixer: malformed packet: " + e.Reason }

// minFramingLen is the type tag + version byte + 16-byte sender UUID.
const minFramingLen = 1 + 1 + 16

// Decode parses the common framing (type tag, version, sender UUID) and
// returns a Packet with Type set to PacketUnknown if the type tag or
// version is not recognized; callers distinguish "malformed" (returns
// error) from "unknown type/version" (returns ok Packet, caller decides
// version-mismatch handling per spec §4.11).
func Decode(raw []byte) (Packet, error) {
	if len(raw) < minFramingLen {
		return Packet{}, &DecodeError{Reason: "short packet"}
	}
	typeTag := raw[0]
	version := raw[1]
	sender, err := uuid.FromBytes(raw[2:18])
	if err != nil {
		return Packet{}, &DecodeError{Reason: "bad sender uuid"}
	}
	body := raw[18:]

	pkt := Packet{Version: version, Sender: sender}
	if version != WireVersion {
		pkt.Type = PacketUnknown
		return pkt, nil
	}
	pkt.Type = packetTypeFromTag(typeTag)
	if pkt.Type == PacketUnknown {
		return pkt, nil
	}
	if err := decodeBody(&pkt, body); err != nil {
		return Packet{}, err
	}
	return pkt, nil
}

func packetTypeFromTag(tag byte) PacketType {
	if int(tag) <= 0 || int(tag) > int(PacketReplicatedBulkAvatarData) {
		return PacketUnknown
	}
	return PacketType(tag)
}

// decodeBody is intentionally shallow: avatar/trait bytes are opaque per
// spec §1 ("core treats these as opaque, versioned byte arrays"), so it
// decodes only the fields the core acts on directly: the avatar-data
// header (sequence, position, facing, bounding radius), identity and
// trait framing, and the control-plane packet fields. The avatar and
// trait payload bytes themselves are copied through undecoded.
func decodeBody(pkt *Packet, body []byte) error {
	switch pkt.Type {
	case PacketAvatarData:
		const headerLen = 4 + 8*3 + 8*3 + 8
		if len(body) < headerLen {
			return &DecodeError{Reason: "avatar data missing header"}
		}
		pkt.Avatar.IdentitySequence = beUint32(body)
		body = body[4:]
		for i := range pkt.Avatar.WorldPosition {
			pkt.Avatar.WorldPosition[i] = float64frombits(beUint64(body))
			body = body[8:]
		}
		for i := range pkt.Avatar.Facing {
			pkt.Avatar.Facing[i] = float64frombits(beUint64(body))
			body = body[8:]
		}
		pkt.Avatar.BoundingRadius = float64frombits(beUint64(body))
		body = body[8:]
		pkt.Avatar.Bytes = append([]byte(nil), body...)

	case PacketAvatarIdentity:
		name, url, seq, err := decodeIdentityBody(body)
		if err != nil {
			return err
		}
		pkt.Avatar.DisplayNameRaw = name
		pkt.Avatar.ModelURL = url
		pkt.Avatar.IdentitySequence = seq

	case PacketSetAvatarTraits:
		if len(body) < 2 {
			return &DecodeError{Reason: "traits missing count"}
		}
		count := int(body[0])<<8 | int(body[1])
		body = body[2:]
		traits := make(map[string]TraitEntry, count)
		for i := 0; i < count; i++ {
			if len(body) < 2 {
				return &DecodeError{Reason: "traits truncated name length"}
			}
			nameLen := int(body[0])<<8 | int(body[1])
			body = body[2:]
			if len(body) < nameLen+4+4 {
				return &DecodeError{Reason: "traits truncated entry header"}
			}
			name := string(body[:nameLen])
			body = body[nameLen:]
			seq := beUint32(body)
			body = body[4:]
			byteLen := int(beUint32(body))
			body = body[4:]
			if len(body) < byteLen {
				return &DecodeError{Reason: "traits truncated payload"}
			}
			traits[name] = TraitEntry{Sequence: seq, Bytes: append([]byte(nil), body[:byteLen]...)}
			body = body[byteLen:]
		}
		pkt.Avatar.Traits = traits

	case PacketAdjustAvatarSorting:
		if len(body) < 8*3+2 {
			return &DecodeError{Reason: "adjust sorting missing weights"}
		}
		pkt.SortWeights.Size = float64frombits(beUint64(body))
		body = body[8:]
		pkt.SortWeights.Center = float64frombits(beUint64(body))
		body = body[8:]
		pkt.SortWeights.Age = float64frombits(beUint64(body))
		body = body[8:]
		tokenLen := int(body[0])<<8 | int(body[1])
		body = body[2:]
		if len(body) < tokenLen {
			return &DecodeError{Reason: "adjust sorting truncated token"}
		}
		pkt.CapabilityToken = string(body[:tokenLen])

	case PacketNodeIgnoreRequest:
		if len(body) < 1 {
			return &DecodeError{Reason: "ignore request missing flag"}
		}
		pkt.AddToIgnore = body[0] != 0
		rest := body[1:]
		if len(rest)%16 != 0 {
			return &DecodeError{Reason: "ignore request truncated id list"}
		}
		for i := 0; i+16 <= len(rest); i += 16 {
			id, err := uuid.FromBytes(rest[i : i+16])
			if err != nil {
				return &DecodeError{Reason: "bad ignore id"}
			}
			pkt.IgnoreIDs = append(pkt.IgnoreIDs, id)
		}
	case PacketRadiusIgnoreRequest:
		if len(body) < 1 {
			return &DecodeError{Reason: "radius request missing flag"}
		}
		pkt.RadiusOn = body[0] != 0
	case PacketRequestsDomainListData:
		if len(body) < 1 {
			return &DecodeError{Reason: "PAL request missing flag"}
		}
		pkt.DomainList = body[0] != 0
	case PacketAvatarIdentityRequest, PacketAvatarQuery:
		if len(body) < 16 {
			return &DecodeError{Reason: "identity request missing target"}
		}
		id, err := uuid.FromBytes(body[:16])
		if err != nil {
			return &DecodeError{Reason: "bad identity target"}
		}
		pkt.Target = id
	case PacketBulkAvatarTraitsAck:
		if len(body) < 4 {
			return &DecodeError{Reason: "trait ack missing sequence"}
		}
		pkt.AckSequence = beUint32(body)

	case PacketReplicatedKillAvatar:
		if len(body) < 16 {
			return &DecodeError{Reason: "replicated kill missing origin"}
		}
		origin, err := uuid.FromBytes(body[:16])
		if err != nil {
			return &DecodeError{Reason: "bad replicated origin"}
		}
		pkt.Target = origin

	case PacketReplicatedAvatarIdentity:
		if len(body) < 16 {
			return &DecodeError{Reason: "replicated identity missing origin"}
		}
		origin, err := uuid.FromBytes(body[:16])
		if err != nil {
			return &DecodeError{Reason: "bad replicated origin"}
		}
		pkt.Target = origin
		name, url, seq, err := decodeIdentityBody(body[16:])
		if err != nil {
			return err
		}
		pkt.Avatar.DisplayNameRaw = name
		pkt.Avatar.ModelURL = url
		pkt.Avatar.IdentitySequence = seq

	case PacketReplicatedBulkAvatarData:
		if len(body) < 16 {
			return &DecodeError{Reason: "replicated data missing origin"}
		}
		origin, err := uuid.FromBytes(body[:16])
		if err != nil {
			return &DecodeError{Reason: "bad replicated origin"}
		}
		pkt.Target = origin
		pkt.Avatar.Bytes = append([]byte(nil), body[16:]...)
	}
	return nil
}

// decodeIdentityBody parses the layout encodeIdentityBody writes: 4-byte
// sequence, 2-byte name len, name, 2-byte url len, url.
func decodeIdentityBody(body []byte) (name, url string, seq uint32, err error) {
	if len(body) < 4+2 {
		return "", "", 0, &DecodeError{Reason: "identity body too short"}
	}
	seq = beUint32(body)
	body = body[4:]
	nameLen := int(body[0])<<8 | int(body[1])
	body = body[2:]
	if len(body) < nameLen+2 {
		return "", "", 0, &DecodeError{Reason: "identity body truncated name"}
	}
	name = string(body[:nameLen])
	body = body[nameLen:]
	urlLen := int(body[0])<<8 | int(body[1])
	body = body[2:]
	if len(body) < urlLen {
		return "", "", 0, &DecodeError{Reason: "identity body truncated url"}
	}
	url = string(body[:urlLen])
	return name, url, seq, nil
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func beUint64(b []byte) uint64 {
	return uint64(b[0])<<56 | uint64(b[1])<<48 | uint64(b[2])<<40 | uint64(b[3])<<32 |
		uint64(b[4])<<24 | uint64(b[5])<<16 | uint64(b[6])<<8 | uint64(b[7])
}

// EncodeFrame writes the common header (type, version, sender) ahead of
// body, matching spec §6's "every packet begins with a type tag and a
// version byte; sourced packets carry a sender UUID".
func EncodeFrame(t PacketType, sender uuid.UUID, body []byte) []byte {
	out := make([]byte, minFramingLen+len(body))
	out[0] = byte(t)
	out[1] = WireVersion
	copy(out[2:18], sender[:])
	copy(out[18:], body)
	return out
}

// EncodeReplicatedPrefix returns the 16-byte original-sender-UUID prefix
// used by non-sourced replicated packet types (spec §6).
func EncodeReplicatedPrefix(original uuid.UUID, body []byte) []byte {
	out := make([]byte, 16+len(body))
	copy(out[:16], original[:])
	copy(out[16:], body)
	return out
}
