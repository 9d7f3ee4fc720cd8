// Package hal defines the hardware abstraction boundary the block
// layer reads and writes through: sector I/O, capability reporting,
// randomness, and prefetch hints. Superblock/volume mount lifecycle
// and the physical device drivers behind a real Device are out of
// scope here — this package only fixes the contract and ships two
// reference implementations (in-memory and file-backed) to exercise
// it in tests and the CLI.
package hal

import (
	"context"

	"hn4.dev/core/policy"
)

// Capabilities describes what a Device can do, resolved once at open
// time and never expected to change for the life of the device.
type Capabilities struct {
	DeviceClass    policy.DeviceClass
	NTStoreCapable bool
	BlockSize      int
}

// SyncIO is the synchronous sector read/write contract. Both methods
// operate on exactly one block's worth of bytes at a time; callers own
// slicing a multi-block transfer into per-block calls.
type SyncIO interface {
	SyncRead(ctx context.Context, lba uint64, buf []byte) error
	SyncWrite(ctx context.Context, lba uint64, buf []byte) error
}

// Device is the full HAL contract the block pipeline depends on.
type Device interface {
	SyncIO

	// GetCaps reports the device's fixed capabilities.
	GetCaps() Capabilities

	// GetRandomU64 returns a cryptographically random 64-bit value,
	// used by callers above this layer for nonce-like needs; the block
	// and allocator packages never call it themselves.
	GetRandomU64() (uint64, error)

	// Prefetch is a best-effort read-ahead hint for count blocks
	// starting at lba. It never returns an error and may be a no-op.
	Prefetch(ctx context.Context, lba uint64, count int)
}
