package server

import (
	"crypto/subtle"

	"golang.org/x/crypto/blake2b"
)

// AdminVerifier gates AdjustAvatarSorting (spec §4.7: "admin-gated (kick
// permission)"). A caller proves kick permission by presenting a token
// whose keyed hash matches the server-side expected digest, checked in
// constant time.
type AdminVerifier struct {
	key      []byte
	expected [32]byte
}

// NewAdminVerifier derives the expected digest from a shared server key
// and the out-of-band capability token issued to admins, matching the
// historical mixer's coarse-grained kick permission rather than a full
// ACL system.
func NewAdminVerifier(key []byte, capabilityToken string) (*AdminVerifier, error) {
	digest, err := keyedDigest(key, capabilityToken)
	if err != nil {
		return nil, err
	}
	return &AdminVerifier{key: key, expected: digest}, nil
}

// Verify reports whether token proves kick permission.
func (v *AdminVerifier) Verify(token string) bool {
	if v == nil || token == "" {
		return false
	}
	digest, err := keyedDigest(v.key, token)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(digest[:], v.expected[:]) == 1
}

func keyedDigest(key []byte, message string) ([32]byte, error) {
	h, err := blake2b.New256(key)
	if err != nil {
		return [32]byte{}, err
	}
	h.Write([]byte(message))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}
