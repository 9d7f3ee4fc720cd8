package addressing

import "math/bits"

// gravityAssistConstant and gravityAssistRotation are fixed format
// constants: the source gives no derivation for either, and changing
// them is a format break (see swizzle).
const (
	gravityAssistConstant = 0xA5A5A5A5A5A5A5A5
	gravityAssistRotation = 17
)

// swizzle applies the Gravity Assist transform used to decorrelate deep
// orbits (k>=4) from the primary orbit vector. Callers are responsible
// for forcing odd parity afterward (V_k = swizzle(V) | 1); swizzle
// itself does not force parity so that the two concerns stay testable
// independently.
func swizzle(v uint64) uint64 {
	return bits.RotateLeft64(v, gravityAssistRotation) ^ gravityAssistConstant
}
