// Package allocator implements the K-ladder: given an anchor's
// addressing parameters and a logical block index, claim the lowest
// available physical LBA across the ballistic orbits and, failing
// that, the Horizon region.
package allocator

import (
	"errors"
	"fmt"

	"hn4.dev/core/addressing"
	"hn4.dev/core/bitmap"
	"hn4.dev/core/policy"
)

// ErrGravityCollapse is returned when the K-ladder and Horizon fallback
// are both exhausted: no free, non-toxic slot exists for this anchor
// anywhere the policy permits it to look.
var ErrGravityCollapse = errors.New("allocator: gravity collapse, no free orbit")

// ErrBitmapCorrupt surfaces a CORRUPT bitmap test during allocation.
// A corrupt armored word is a read error, never treated as a free
// slot.
var ErrBitmapCorrupt = errors.New("allocator: bitmap corrupt")

// horizonScanLimit bounds the linear Horizon probe so a pathological
// volume can't spin forever before reporting GRAVITY_COLLAPSE.
const horizonScanLimit = 4096

// Allocator owns the bitmap and quality mask for one volume's ballistic
// and Horizon regions and resolves K-ladder allocations against them.
type Allocator struct {
	geo     addressing.Geometry
	bmp     *bitmap.Bitmap
	qmask   *bitmap.QualityMask
	horizon *bitmap.Bitmap
}

// New builds an Allocator. bmp covers the ballistic region
// [geo.FluxStart, geo.FluxStart+geo.Phi); horizon covers the Horizon
// region starting at geo.HorizonStart. qmask shares the ballistic
// region's addressing (Horizon slots are never quality-tagged: media
// health on the Horizon fallback path is the allocator's problem of
// last resort, not a first-class concern).
func New(geo addressing.Geometry, bmp *bitmap.Bitmap, qmask *bitmap.QualityMask, horizon *bitmap.Bitmap) *Allocator {
	return &Allocator{geo: geo, bmp: bmp, qmask: qmask, horizon: horizon}
}

// Request names the addressing parameters for one block of one anchor.
type Request struct {
	G uint64
	V uint64
	N uint64
	M uint8
}

// Result is the outcome of a successful Alloc: the claimed LBA, the
// orbit k that produced it (addressing.HorizonSentinelK for Horizon),
// and whether Horizon was entered.
type Result struct {
	LBA     uint64
	K       int
	Horizon bool
}

// Alloc walks the K-ladder 0..pol.KMax, skipping out-of-bounds,
// TOXIC, and already-set candidates, then falls back to a linear
// Horizon scan if pol.HorizonEnabled. It returns the lowest available
// k: freeing a low-k slot and retrying must reproduce it, since the
// bitmap is the only state consulted.
func (a *Allocator) Alloc(req Request, pol policy.Policy) (Result, error) {
	for k := 0; k <= pol.KMax; k++ {
		orbit, err := addressing.Trajectory(a.geo, req.G, req.V, req.N, req.M, k)
		if err != nil {
			continue // OOB/overflow candidate, try the next k
		}
		if a.qmask != nil {
			q, err := a.qmask.Get(orbit.LBA)
			if err == nil && q == bitmap.Toxic {
				continue
			}
		}
		res, err := a.bmp.TestAndSet(orbit.LBA)
		if err != nil {
			continue // LBA outside this bitmap's coverage
		}
		switch res {
		case bitmap.ResultCorrupt:
			return Result{}, fmt.Errorf("%w: orbit k=%d lba=%d", ErrBitmapCorrupt, k, orbit.LBA)
		case bitmap.ResultSet:
			continue
		case bitmap.ResultClear:
			return Result{LBA: orbit.LBA, K: k}, nil
		}
	}

	if !pol.HorizonEnabled || a.horizon == nil {
		return Result{}, ErrGravityCollapse
	}
	start, err := addressing.Trajectory(a.geo, req.G, req.V, req.N, req.M, addressing.HorizonSentinelK)
	if err != nil {
		return Result{}, fmt.Errorf("%w: horizon base unaddressable: %v", ErrGravityCollapse, err)
	}
	for i := 0; i < horizonScanLimit; i++ {
		lba := start.LBA + uint64(i)
		res, err := a.horizon.TestAndSet(lba)
		if err != nil {
			break // ran off the end of the horizon region
		}
		if res == bitmap.ResultClear {
			return Result{LBA: lba, K: addressing.HorizonSentinelK, Horizon: true}, nil
		}
	}
	return Result{}, ErrGravityCollapse
}

// Free clears lba in whichever region it belongs to (the eclipse
// operation for a superseded shadow, or a caller-driven deallocation).
func (a *Allocator) Free(lba uint64, horizon bool) error {
	if horizon {
		if a.horizon == nil {
			return fmt.Errorf("allocator: no horizon region configured")
		}
		return a.horizon.Clear(lba)
	}
	return a.bmp.Clear(lba)
}

// Degrade marks lba Suspect in the quality mask unless it is already
// Suspect or Toxic. The read pipeline calls it when a heal write to a
// ballistic slot fails, so future allocations steer around media that
// has demonstrably started rejecting writes. Horizon slots carry no
// quality tag and degrade is a no-op for them.
func (a *Allocator) Degrade(lba uint64) {
	if a.qmask == nil {
		return
	}
	q, err := a.qmask.Get(lba)
	if err != nil || q == bitmap.Toxic || q == bitmap.Suspect {
		return
	}
	_ = a.qmask.Set(lba, bitmap.Suspect)
}

// Test reports the raw bitmap state for lba without claiming it, used
// by the read pipeline's sparse-fast-path.
func (a *Allocator) Test(lba uint64, horizon bool) (bitmap.TestResult, error) {
	if horizon {
		if a.horizon == nil {
			return bitmap.ResultClear, fmt.Errorf("allocator: no horizon region configured")
		}
		return a.horizon.Test(lba)
	}
	return a.bmp.Test(lba)
}
