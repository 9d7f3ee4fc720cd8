package allocator

import (
	"errors"
	"testing"

	"hn4.dev/core/addressing"
	"hn4.dev/core/bitmap"
	"hn4.dev/core/policy"
)

func testGeometry() addressing.Geometry {
	return addressing.Geometry{FluxStart: 1 << 10, Phi: 1 << 16, HorizonStart: 1 << 20}
}

func newTestAllocator() *Allocator {
	geo := testGeometry()
	bmp := bitmap.New(geo.FluxStart, geo.Phi)
	qmask := bitmap.NewQualityMask(geo.FluxStart, geo.Phi)
	horizon := bitmap.New(geo.HorizonStart, 1<<16)
	return New(geo, bmp, qmask, horizon)
}

func TestAllocReturnsLowestK(t *testing.T) {
	a := newTestAllocator()
	pol := policy.For(policy.DeviceSSD, policy.ProfileGeneric)
	req := Request{G: 42, V: 7, N: 3, M: 1}

	res, err := a.Alloc(req, pol)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if res.K != 0 {
		t.Fatalf("expected k=0 on a clean bitmap, got k=%d", res.K)
	}
}

func TestFreeThenReallocReturnsSameSlot(t *testing.T) {
	a := newTestAllocator()
	pol := policy.For(policy.DeviceSSD, policy.ProfileGeneric)
	req := Request{G: 42, V: 7, N: 3, M: 1}

	first, err := a.Alloc(req, pol)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if err := a.Free(first.LBA, first.Horizon); err != nil {
		t.Fatalf("Free: %v", err)
	}
	second, err := a.Alloc(req, pol)
	if err != nil {
		t.Fatalf("Alloc (retry): %v", err)
	}
	if second.LBA != first.LBA || second.K != first.K {
		t.Fatalf("retry after free did not reproduce the lowest-k slot: first=%+v second=%+v", first, second)
	}
}

func TestCollisionAdvancesToNextK(t *testing.T) {
	a := newTestAllocator()
	pol := policy.For(policy.DeviceSSD, policy.ProfileGeneric)
	req := Request{G: 100, V: 5, N: 1, M: 0}

	first, err := a.Alloc(req, pol)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	second, err := a.Alloc(req, pol)
	if err != nil {
		t.Fatalf("Alloc (second): %v", err)
	}
	if second.K <= first.K {
		t.Fatalf("expected second allocation to advance to a higher k, got first=%d second=%d", first.K, second.K)
	}
}

func TestHDDCollisionGoesStraightToHorizon(t *testing.T) {
	a := newTestAllocator()
	pol := policy.For(policy.DeviceHDD, policy.ProfileGeneric)
	req := Request{G: 9, V: 2, N: 1, M: 0}

	first, err := a.Alloc(req, pol)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if first.K != 0 || first.Horizon {
		t.Fatalf("first HDD alloc should land at k=0, got %+v", first)
	}
	second, err := a.Alloc(req, pol)
	if err != nil {
		t.Fatalf("Alloc (second): %v", err)
	}
	if !second.Horizon {
		t.Fatalf("HDD must escalate a collision straight to Horizon, not scatter to k=1: got %+v", second)
	}
}

func TestPicoNeverUsesHorizon(t *testing.T) {
	a := newTestAllocator()
	pol := policy.For(policy.DeviceSSD, policy.ProfilePico)
	req := Request{G: 1, V: 1, N: 1, M: 0}

	if _, err := a.Alloc(req, pol); err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	_, err := a.Alloc(req, pol)
	if !errors.Is(err, ErrGravityCollapse) {
		t.Fatalf("PICO with KMax=0 and no Horizon should collapse on collision, got %v", err)
	}
}

func TestToxicCandidateIsSkipped(t *testing.T) {
	a := newTestAllocator()
	pol := policy.For(policy.DeviceSSD, policy.ProfileGeneric)
	req := Request{G: 55, V: 11, N: 2, M: 0}

	orbit0, err := addressing.Trajectory(a.geo, req.G, req.V, req.N, req.M, 0)
	if err != nil {
		t.Fatalf("Trajectory: %v", err)
	}
	if err := a.qmask.Set(orbit0.LBA, bitmap.Toxic); err != nil {
		t.Fatalf("Set toxic: %v", err)
	}

	res, err := a.Alloc(req, pol)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if res.K == 0 {
		t.Fatalf("allocator claimed a TOXIC-tagged slot at k=0")
	}
}

func TestCorruptBitmapPropagatesAsError(t *testing.T) {
	a := newTestAllocator()
	pol := policy.For(policy.DeviceSSD, policy.ProfileGeneric)
	req := Request{G: 3, V: 3, N: 1, M: 0}

	orbit0, err := addressing.Trajectory(a.geo, req.G, req.V, req.N, req.M, 0)
	if err != nil {
		t.Fatalf("Trajectory: %v", err)
	}
	word, err := a.bmp.WordAt(int((orbit0.LBA - a.geo.FluxStart) / 64))
	if err != nil {
		t.Fatalf("WordAt: %v", err)
	}
	word.Corrupt(0, 1) // flip two bits: double-bit error is uncorrectable

	_, err = a.Alloc(req, pol)
	if !errors.Is(err, ErrBitmapCorrupt) {
		t.Fatalf("expected ErrBitmapCorrupt, got %v", err)
	}
}
