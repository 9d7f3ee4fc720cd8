package policy

import "testing"

func TestHDDNeverScatters(t *testing.T) {
	p := For(DeviceHDD, ProfileGeneric)
	if p.KMax != 0 {
		t.Fatalf("HDD KMax = %d, want 0", p.KMax)
	}
	if !p.HorizonEnabled {
		t.Fatalf("HDD should still have Horizon as fallback")
	}
}

func TestSSDFullLadder(t *testing.T) {
	p := For(DeviceSSD, ProfileGeneric)
	if p.KMax != MaxBallisticK {
		t.Fatalf("SSD KMax = %d, want %d", p.KMax, MaxBallisticK)
	}
}

func TestPicoOverridesToNoScatterNoHorizon(t *testing.T) {
	p := For(DeviceSSD, ProfilePico)
	if p.KMax != 0 || p.HorizonEnabled {
		t.Fatalf("PICO should force KMax=0 and disable horizon, got %+v", p)
	}
}

func TestSystemProfileStrictMagicFullLadder(t *testing.T) {
	p := For(DeviceHDD, ProfileSystem)
	if p.KMax != MaxBallisticK {
		t.Fatalf("SYSTEM should force full ladder even on HDD baseline, got %d", p.KMax)
	}
	if !p.StrictMagic {
		t.Fatalf("SYSTEM profile must set StrictMagic")
	}
}

func TestValidateRejectsUnknown(t *testing.T) {
	if err := Validate(DeviceClass(99), ProfileGeneric); err == nil {
		t.Fatalf("expected error for unknown device class")
	}
	if err := Validate(DeviceHDD, Profile(99)); err == nil {
		t.Fatalf("expected error for unknown profile")
	}
}
