package diag

import "testing"

import "hn4.dev/core/block"

func TestAnchorFingerprintDeterministic(t *testing.T) {
	a := &block.Anchor{
		SeedID:        [16]byte{0xCA, 0xFE},
		GravityCenter: 100,
		OrbitVector:   7,
		FractalScale:  2,
	}
	got1 := AnchorFingerprint(a)
	got2 := AnchorFingerprint(a)
	if got1 != got2 {
		t.Fatalf("fingerprint not deterministic: %s vs %s", got1, got2)
	}
	if len(got1) != 64 {
		t.Fatalf("expected 64 hex chars (32 bytes), got %d", len(got1))
	}
}

func TestAnchorFingerprintIgnoresMutableFields(t *testing.T) {
	a := &block.Anchor{SeedID: [16]byte{0xAA}, GravityCenter: 1, OrbitVector: 2, FractalScale: 3}
	before := AnchorFingerprint(a)

	a.WriteGen = 99
	_ = a.SetHint(0, 2)
	after := AnchorFingerprint(a)

	if before != after {
		t.Fatalf("fingerprint changed when only mutable fields changed: %s vs %s", before, after)
	}
}

func TestAnchorFingerprintDiffersOnIdentity(t *testing.T) {
	a := &block.Anchor{SeedID: [16]byte{0x01}, GravityCenter: 1, OrbitVector: 2, FractalScale: 3}
	b := &block.Anchor{SeedID: [16]byte{0x02}, GravityCenter: 1, OrbitVector: 2, FractalScale: 3}
	if AnchorFingerprint(a) == AnchorFingerprint(b) {
		t.Fatalf("expected different fingerprints for different seed IDs")
	}
}
