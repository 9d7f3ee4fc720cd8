package block

import (
	"context"
	"fmt"
	"sync/atomic"

	"hn4.dev/core/addressing"
	"hn4.dev/core/allocator"
	"hn4.dev/core/bitmap"
	"hn4.dev/core/codec"
	"hn4.dev/core/hal"
	"hn4.dev/core/integrity"
	"hn4.dev/core/policy"
)

// Pipeline wires the addressing/allocator/codec/HAL components into
// the write and read operations this package exposes. One Pipeline
// serves one volume.
type Pipeline struct {
	Device    hal.Device
	Allocator *allocator.Allocator
	Geometry  addressing.Geometry
	Policy    policy.Policy
	Profile   policy.Profile
	ScanProf  codec.ScanProfile

	// PayloadCapacity is the fixed logical payload size every
	// write_block call must present (the block size minus HeaderSize).
	PayloadCapacity int

	// Health counters, atomic increments only, no ordering
	// relationship between them. HealCount counts auto-medic repairs;
	// CRCFailures counts header/payload CRC mismatches observed during
	// probes; CollapseCount counts trajectory-collapse detections
	// (deduplicated candidate set smaller than half the ladder);
	// TaintCount counts corrupt replicas auto-medic could not repair.
	HealCount     atomic.Uint64
	CRCFailures   atomic.Uint64
	CollapseCount atomic.Uint64
	TaintCount    atomic.Uint64
}

// blockSize is the full physical sector size this pipeline writes.
func (p *Pipeline) blockSize() int { return HeaderSize + p.PayloadCapacity }

// WriteBlock places payload (which must be exactly PayloadCapacity
// bytes) for blockIdx under anchor, mutating anchor in place on
// success: write_gen, the orbit hint, and the Horizon bit. A SOVEREIGN
// session may write without the anchor's WRITE bit; IMMUTABLE denies
// writes unconditionally, sovereign or not.
func (p *Pipeline) WriteBlock(ctx context.Context, anchor *Anchor, blockIdx uint64, payload []byte, sessionPerms Permission) error {
	if anchor.Permissions&PermImmutable != 0 {
		return ErrAccessDenied
	}
	if anchor.Permissions&PermWrite == 0 && sessionPerms&PermSovereign == 0 {
		return ErrAccessDenied
	}
	if len(payload) != p.PayloadCapacity {
		return fmt.Errorf("%w: payload %d bytes, want %d", ErrInvalidArgument, len(payload), p.PayloadCapacity)
	}

	compMeta := PackCompMeta(uint32(len(payload)), AlgoRaw)
	slot := make([]byte, p.PayloadCapacity)
	copy(slot, payload)

	shouldCompress := anchor.DataClass&ClassCompressed != 0 || p.Profile == policy.ProfileArchive
	if shouldCompress {
		compressed, err := codec.Encode(payload, p.ScanProf)
		if err == nil && len(compressed) < len(payload) {
			clear(slot)
			copy(slot, compressed)
			compMeta = PackCompMeta(uint32(len(compressed)), AlgoTCC)
		}
		// ineffective or failed compression silently falls back to raw
	}

	req := allocator.Request{G: anchor.GravityCenter, V: anchor.OrbitVector, N: blockIdx, M: anchor.FractalScale}
	res, err := p.Allocator.Alloc(req, p.Policy)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNoSpace, err)
	}

	newGen := anchor.WriteGen + 1
	h := Header{
		Magic:      FormatMagic,
		WellID:     anchor.SeedID,
		Generation: uint64(newGen),
		SeqIndex:   blockIdx,
		CompMeta:   compMeta,
	}
	h.DataCRC = integrity.DataCRC(slot)
	headerBytes := h.Encode() // also fills h.HeaderCRC

	buf := make([]byte, p.blockSize())
	copy(buf[:HeaderSize], headerBytes)
	copy(buf[HeaderSize:], slot)

	if err := p.Device.SyncWrite(ctx, res.LBA, buf); err != nil {
		_ = p.Allocator.Free(res.LBA, res.Horizon)
		return newError(OutcomeHWIO, err)
	}

	anchor.WriteGen = newGen
	if res.K >= 0 && res.K <= 3 {
		_ = anchor.SetHint(blockIdx, res.K)
	}
	if res.Horizon {
		anchor.DataClass |= ClassHorizon
	}

	p.eclipseShadows(ctx, anchor, blockIdx, res.K, newGen)
	return nil
}

// eclipseShadows clears the bitmap bit of every lower-k orbit that
// still belongs to this anchor's block at a stale generation. The
// disk bytes of the shadow are left untouched — the bitmap clear is
// the eclipse.
func (p *Pipeline) eclipseShadows(ctx context.Context, anchor *Anchor, blockIdx uint64, k int, newGen uint32) {
	for kp := 0; kp < k && kp <= addressing.MaxBallisticK; kp++ {
		orbit, err := addressing.Trajectory(p.Geometry, anchor.GravityCenter, anchor.OrbitVector, blockIdx, anchor.FractalScale, kp)
		if err != nil {
			continue
		}
		res, err := p.Allocator.Test(orbit.LBA, false)
		if err != nil || res != bitmap.ResultSet {
			continue
		}
		buf := make([]byte, p.blockSize())
		if err := p.Device.SyncRead(ctx, orbit.LBA, buf); err != nil {
			continue
		}
		if !VerifyHeaderCRC(buf[:HeaderSize]) {
			continue
		}
		hdr, err := DecodeHeader(buf[:HeaderSize])
		if err != nil || hdr.Magic != FormatMagic {
			continue
		}
		if hdr.WellID != anchor.SeedID || hdr.SeqIndex != blockIdx {
			continue
		}
		if uint32(hdr.Generation) == newGen {
			continue
		}
		_ = p.Allocator.Free(orbit.LBA, false)
	}
}
