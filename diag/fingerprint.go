// Package diag provides operator-facing diagnostics for the block
// engine: a stable fingerprint of an Anchor's addressing parameters,
// used to correlate log lines and CLI output across a support session
// without printing the raw seed ID or full orbit-hint bitfield.
//
// It deliberately stays off the hot path: trajectory computation and
// block CRCs use CRC32 with domain-separated seeds; SHA3 here is
// purely a diagnostics convenience for a collision-resistant digest
// outside the consensus-critical path.
package diag

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/sha3"

	"hn4.dev/core/block"
)

// AnchorFingerprint returns a stable, hex-encoded SHA3-256 digest of
// anchor's addressing-relevant fields: seed ID, gravity center, orbit
// vector, and fractal scale. Two anchors with the same seed ID and the
// same addressing parameters always produce the same fingerprint; write generation
// and orbit hints are excluded since they mutate on every write and
// would make the fingerprint useless as a stable correlation key.
func AnchorFingerprint(anchor *block.Anchor) string {
	var buf [33]byte
	copy(buf[:16], anchor.SeedID[:])
	binary.LittleEndian.PutUint64(buf[16:24], anchor.GravityCenter)
	binary.LittleEndian.PutUint64(buf[24:32], anchor.OrbitVector)
	buf[32] = anchor.FractalScale

	h := sha3.New256()
	_, _ = h.Write(buf[:])
	return hex.EncodeToString(h.Sum(nil))
}
