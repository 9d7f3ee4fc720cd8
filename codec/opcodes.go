// Package codec implements the TCC structural compressor: a
// four-opcode byte-stream format tuned for sparse/linear/isotopic data
// (tensor weights, sensor telemetry, WAL padding). It is not a
// general-purpose dictionary compressor — repeated strings in natural
// text are not deduplicated, and worst-case output is bounded by
// Bound, not guaranteed smaller than the input.
package codec

import "errors"

// Opcode is the 2-bit token selector occupying the top bits of every
// token's header byte.
type Opcode uint8

const (
	OpLiteral  Opcode = 0 // 00: next N raw bytes
	OpIsotope  Opcode = 1 // 01: one byte repeated N times
	OpGradient Opcode = 2 // 10: arithmetic progression (start, slope)
	OpBitmask  Opcode = 3 // 11: sparse 32-bit-word encoding (TSM)
)

// ErrDataRot is returned by Decode for any malformed, reserved, or
// out-of-envelope input: reserved opcode bits, a non-canonical token,
// a truncated header/payload, or a destination overflow. It is the
// codec-specific integrity failure that the block layer surfaces to
// callers as PAYLOAD_ROT.
var ErrDataRot = errors.New("codec: data-rot")

// ErrInvalidArgument flags a caller contract violation distinct from a
// malformed stream: a negative output length, or an input/output size
// beyond the 1 GiB hard limit.
var ErrInvalidArgument = errors.New("codec: invalid argument")

// ErrNoSpace is returned by EncodeInto when dst is too small; callers
// are expected to size dst via Bound.
var ErrNoSpace = errors.New("codec: output buffer too small")

const (
	lengthFieldBits   = 6
	lengthSentinel    = 63 // 6-bit field value that triggers a VarInt extension
	maxExtensionBytes = 32
	lengthBias        = 4 // bias applied to Isotope/Gradient logical lengths

	// MaxLiteralLen is the largest logical length a single Literal or
	// Bitmask token may declare. Longer runs must be split into
	// multiple tokens. Derived from the VarInt scheme: within the
	// 32-byte extension cap the largest representable sum is
	// 31*255+254=8159, plus the 63-byte direct-encodable base.
	MaxLiteralLen = lengthSentinel + 31*255 + 254

	// MaxBiasedLen is the largest logical length a single Isotope or
	// Gradient token may declare (MaxLiteralLen plus the length bias).
	MaxBiasedLen = MaxLiteralLen + lengthBias

	// MaxInputOutputBytes is the hard 1 GiB cap on logical input/output
	// size, keeping 32-bit offsets safe throughout the codec.
	MaxInputOutputBytes = 1 << 30

	bitmaskWordBytes = 4
)
