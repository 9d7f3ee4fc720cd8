package block

import (
	"context"
	"fmt"

	"hn4.dev/core/addressing"
	"hn4.dev/core/bitmap"
	"hn4.dev/core/codec"
	"hn4.dev/core/integrity"
	"hn4.dev/core/policy"
)

// candidate is one probed orbit along with its outcome, kept so
// auto-medic can revisit earlier failures once a good copy is found.
type candidate struct {
	orbit   addressing.Orbit
	outcome Outcome
	buf     []byte // the raw physical block as read, valid only when outcome requires auto-medic consideration
}

// ReadBlock resolves blockIdx under anchor: it builds the candidate
// list (hinted orbit first, then 0..KMax if policy permits), probes
// each in order, and returns the first OK. If no candidate succeeds it
// returns the highest-precedence error observed, wrapped in *Error.
// A nil error means success, with the payload copied into dst; any other
// outcome (including InfoSparse) is surfaced as a non-nil *Error so
// callers distinguish "no data" from "found and validated" via
// errors.As, matching the rest of this codebase's error-wrapping
// convention.
func (p *Pipeline) ReadBlock(ctx context.Context, anchor *Anchor, blockIdx uint64, dst []byte, sessionPerms Permission) error {
	if dst == nil || len(dst) < p.PayloadCapacity {
		return fmt.Errorf("%w: dst must be at least %d bytes", ErrInvalidArgument, p.PayloadCapacity)
	}
	if !anchor.Readable() {
		return ErrAccessDenied
	}
	if anchor.Permissions&PermRead == 0 && sessionPerms&PermSovereign == 0 {
		return ErrAccessDenied
	}
	if anchor.Permissions&PermEncrypted != 0 {
		return ErrAccessDenied
	}

	candidates, err := p.buildCandidates(anchor, blockIdx)
	if err != nil {
		return newError(OutcomeInfoSparse, err)
	}

	if p.Policy.EnablePrefetch {
		for _, orbit := range candidates {
			p.Device.Prefetch(ctx, orbit.LBA, 1)
		}
	}

	worst := OutcomeInfoSparse

	for _, orbit := range candidates {
		c := p.probe(ctx, anchor, blockIdx, orbit)
		if c.outcome == OutcomeOK {
			payload, err := p.materialize(c.buf)
			if err != nil {
				worst = worseOf(worst, OutcomePayloadRot)
				continue
			}
			copy(dst, payload)
			for i := len(payload); i < len(dst); i++ {
				dst[i] = 0
			}
			if anchor.Permissions&PermWrite != 0 {
				p.autoMedic(ctx, anchor, blockIdx, c)
			}
			return nil
		}
		worst = worseOf(worst, c.outcome)
	}

	for i := range dst {
		dst[i] = 0
	}
	return newError(worst, nil)
}

// buildCandidates returns the deduplicated, ordered list of orbits to
// probe: the hinted orbit first, then k=0..KMax when the policy allows
// scanning beyond the hint. PICO never scans beyond the hint, and its
// allocator only ever places at k=0, so it probes k=0 alone.
func (p *Pipeline) buildCandidates(anchor *Anchor, blockIdx uint64) ([]addressing.Orbit, error) {
	order := []int{anchor.HintedK(blockIdx)}
	if p.Policy.ScanBeyondHint {
		for k := 0; k <= p.Policy.KMax; k++ {
			order = append(order, k)
		}
	}
	if anchor.DataClass&ClassHorizon != 0 {
		order = append(order, addressing.HorizonSentinelK)
	}

	seen := make(map[uint64]bool)
	var out []addressing.Orbit
	for _, k := range order {
		orbit, err := addressing.Trajectory(p.Geometry, anchor.GravityCenter, anchor.OrbitVector, blockIdx, anchor.FractalScale, k)
		if err != nil {
			continue
		}
		if seen[orbit.LBA] {
			continue
		}
		seen[orbit.LBA] = true
		out = append(out, orbit)
	}
	// Trajectory-collapse telemetry: a full-ladder scan that deduplicates
	// to fewer than half of KMax+1 distinct LBAs means the addressing
	// parameters have degenerated into a small cycle (V sharing factors
	// with phi, typically).
	if p.Policy.ScanBeyondHint && 2*len(out) < p.Policy.KMax+1 {
		p.CollapseCount.Add(1)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("block: no addressable candidates for block %d", blockIdx)
	}
	return out, nil
}

// probe runs the full per-candidate validation chain: bitmap test,
// poison-prefill read, DMA-ghost detection, header validation,
// identity/generation check, payload CRC (decode happens separately in
// materialize, once the caller knows this candidate is the winner).
func (p *Pipeline) probe(ctx context.Context, anchor *Anchor, blockIdx uint64, orbit addressing.Orbit) candidate {
	horizon := orbit.K == addressing.HorizonSentinelK
	res, err := p.Allocator.Test(orbit.LBA, horizon)
	if err != nil {
		return candidate{orbit: orbit, outcome: OutcomeInfoSparse}
	}
	switch res {
	case bitmap.ResultClear:
		return candidate{orbit: orbit, outcome: OutcomeInfoSparse}
	case bitmap.ResultCorrupt:
		return candidate{orbit: orbit, outcome: OutcomeBitmapCorrupt}
	}

	buf := make([]byte, p.blockSize())
	integrity.FillPoison(buf)
	if err := p.readWithRetry(ctx, orbit.LBA, buf); err != nil {
		return candidate{orbit: orbit, outcome: OutcomeHWIO}
	}
	if integrity.IsGhostRead(buf) {
		return candidate{orbit: orbit, outcome: OutcomeHWIO}
	}

	hdr, err := DecodeHeader(buf[:HeaderSize])
	if err != nil {
		return candidate{orbit: orbit, outcome: OutcomeHeaderRot}
	}
	if hdr.Magic != FormatMagic {
		return candidate{orbit: orbit, outcome: OutcomePhantomBlock}
	}
	if !VerifyHeaderCRC(buf[:HeaderSize]) {
		p.CRCFailures.Add(1)
		return candidate{orbit: orbit, outcome: OutcomeHeaderRot}
	}

	compSize, algo := UnpackCompMeta(hdr.CompMeta)
	if algo != AlgoRaw && algo != AlgoTCC {
		return candidate{orbit: orbit, outcome: OutcomeAlgoUnknown}
	}
	if algo == AlgoTCC && int(compSize) > p.PayloadCapacity {
		return candidate{orbit: orbit, outcome: OutcomeHeaderRot}
	}

	if hdr.WellID != anchor.SeedID {
		return candidate{orbit: orbit, outcome: OutcomeIDMismatch}
	}
	if uint32(hdr.Generation) != anchor.WriteGen {
		return candidate{orbit: orbit, outcome: OutcomeGenerationSkew}
	}
	if hdr.SeqIndex != blockIdx {
		return candidate{orbit: orbit, outcome: OutcomePhantomBlock}
	}

	slot := buf[HeaderSize:]
	if integrity.DataCRC(slot) != hdr.DataCRC {
		p.CRCFailures.Add(1)
		return candidate{orbit: orbit, outcome: OutcomePayloadRot}
	}

	return candidate{orbit: orbit, outcome: OutcomeOK, buf: buf}
}

// readWithRetry retries the HAL read exactly once on failure. Retry
// stays confined to this one call: the allocator and codec layers
// never retry.
func (p *Pipeline) readWithRetry(ctx context.Context, lba uint64, buf []byte) error {
	err := p.Device.SyncRead(ctx, lba, buf)
	if err == nil {
		return nil
	}
	integrity.FillPoison(buf)
	return p.Device.SyncRead(ctx, lba, buf)
}

// materialize decompresses (or copies) the winning candidate's payload
// slot into a PayloadCapacity-length buffer.
func (p *Pipeline) materialize(buf []byte) ([]byte, error) {
	hdr, err := DecodeHeader(buf[:HeaderSize])
	if err != nil {
		return nil, err
	}
	compSize, algo := UnpackCompMeta(hdr.CompMeta)
	slot := buf[HeaderSize:]
	if algo == AlgoRaw {
		return slot, nil
	}
	return codec.Decode(slot[:compSize], p.PayloadCapacity)
}

// autoMedic heals every numerically earlier ballistic orbit k' <
// good.orbit.K that independently probes as payload-rot or
// phantom-block, re-writing it verbatim (header included) from the
// good copy. It skips compressed sources (no decompress-recompress
// during repair), id-mismatch candidates (never healed — a mismatch
// means the slot belongs to someone else), and the PICO profile.
// Callers already gate on (perms & WRITE); a heal failure here must
// never affect the read outcome already returned to the caller.
func (p *Pipeline) autoMedic(ctx context.Context, anchor *Anchor, blockIdx uint64, good candidate) {
	if p.Profile == policy.ProfilePico {
		return
	}
	hdr, err := DecodeHeader(good.buf[:HeaderSize])
	if err != nil {
		return
	}
	_, algo := UnpackCompMeta(hdr.CompMeta)
	if algo != AlgoRaw {
		return
	}
	if good.orbit.K == addressing.HorizonSentinelK {
		return // no lower numeric orbit to compare against Horizon
	}

	for kp := 0; kp < good.orbit.K; kp++ {
		orbit, err := addressing.Trajectory(p.Geometry, anchor.GravityCenter, anchor.OrbitVector, blockIdx, anchor.FractalScale, kp)
		if err != nil {
			continue
		}
		c := p.probe(ctx, anchor, blockIdx, orbit)
		if c.outcome != OutcomePayloadRot && c.outcome != OutcomePhantomBlock {
			continue
		}
		if err := p.Device.SyncWrite(ctx, orbit.LBA, good.buf); err == nil {
			p.HealCount.Add(1)
		} else {
			// The replica stays corrupt and the slot just failed a
			// write: count the taint and downgrade the slot's quality
			// so the allocator steers new data elsewhere.
			p.TaintCount.Add(1)
			p.Allocator.Degrade(orbit.LBA)
		}
	}
}
