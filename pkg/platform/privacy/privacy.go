// Package privacy provides the pseudonymization helpers used wherever a
// personal identifier would otherwise reach a store or a log line.
package privacy

import (
	"encoding/hex"
	"net"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// HashIdentity derives an opaque, stable pseudonym for a sender identity
// using keyed BLAKE2b-256. The raw identity is never persisted; the same
// (key, identity) pair always yields the same hash so repeat submissions
// correlate without exposing the sender.
func HashIdentity(key []byte, identity string) string {
	h, err := blake2b.New256(key)
	if err != nil {
		// blake2b only rejects keys longer than 64 bytes; callers pass
		// config-sized keys, so fall back to unkeyed hashing.
		sum := blake2b.Sum256([]byte(identity))
		return hex.EncodeToString(sum[:])
	}
	h.Write([]byte(identity))
	return hex.EncodeToString(h.Sum(nil))
}

// AnonymizeIP truncates an IP for logging: /24 for IPv4, /48 for IPv6.
func AnonymizeIP(ip string) string {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return "invalid"
	}
	if v4 := parsed.To4(); v4 != nil {
		return net.IPv4(v4[0], v4[1], v4[2], 0).String() + "/24"
	}
	masked := parsed.Mask(net.CIDRMask(48, 128))
	return masked.String() + "/48"
}
