// Package policy is the const lookup table that turns a DeviceClass and
// Profile pair into allocator/codec tuning knobs. It is deliberately a
// sum type plus a cold table, not virtual dispatch: the branch count is
// tiny and the values never change after a volume is opened.
package policy

import "fmt"

// DeviceClass is the physical medium backing a volume.
type DeviceClass int

const (
	DeviceHDD DeviceClass = iota
	DeviceSSD
	DeviceNVM
)

func (d DeviceClass) String() string {
	switch d {
	case DeviceHDD:
		return "HDD"
	case DeviceSSD:
		return "SSD"
	case DeviceNVM:
		return "NVM"
	default:
		return "UNKNOWN"
	}
}

// Profile further overrides allocator/codec behavior beyond the raw
// device class.
type Profile int

const (
	ProfileGeneric Profile = iota
	ProfilePico
	ProfileArchive
	ProfileSystem
)

func (p Profile) String() string {
	switch p {
	case ProfileGeneric:
		return "GENERIC"
	case ProfilePico:
		return "PICO"
	case ProfileArchive:
		return "ARCHIVE"
	case ProfileSystem:
		return "SYSTEM"
	default:
		return "UNKNOWN"
	}
}

// Policy is the resolved tuning for a (DeviceClass, Profile) pair.
type Policy struct {
	KMax           int  // highest ballistic orbit the allocator will try
	HorizonEnabled bool // whether Horizon fallback is available
	ScanDepth      int  // TCC isotope/gradient match window, in bytes
	UseNTStores    bool // use non-temporal stores for NVM writes/literal flush
	EnablePrefetch bool
	StrictMagic    bool // SYSTEM profile: reject anything but the canonical magic
	ScanBeyondHint bool // read pipeline may probe k=0..KMax, not just the hint
	DeepScan       bool // HDD: strided pre-check before linear verification in the TCC encoder
}

// For resolves the effective policy. Device class sets the baseline
// (HDD never scatters; SSD/NVM use the full ladder); profile then
// overrides it, device first, then profile. PICO narrows the ladder to
// k=0 with no Horizon, while ARCHIVE and SYSTEM widen it to the full
// ladder even on an HDD baseline.
func For(dev DeviceClass, profile Profile) Policy {
	p := Policy{
		KMax:           0,
		HorizonEnabled: true,
		ScanDepth:      8,
		UseNTStores:    false,
		EnablePrefetch: false,
		StrictMagic:    false,
		ScanBeyondHint: true,
	}

	switch dev {
	case DeviceHDD:
		p.KMax = 0
		p.ScanDepth = 24
		p.EnablePrefetch = true
		p.DeepScan = true
	case DeviceSSD:
		p.KMax = MaxBallisticK
		p.ScanDepth = 8
	case DeviceNVM:
		p.KMax = MaxBallisticK
		p.ScanDepth = 8
		p.UseNTStores = true
	}

	switch profile {
	case ProfilePico:
		p.KMax = 0
		p.HorizonEnabled = false
		p.ScanBeyondHint = false
	case ProfileArchive:
		p.KMax = MaxBallisticK
		p.HorizonEnabled = true
	case ProfileSystem:
		p.KMax = MaxBallisticK
		p.HorizonEnabled = true
		p.StrictMagic = true
	}

	return p
}

// MaxBallisticK mirrors addressing.MaxBallisticK; duplicated as a
// constant here (rather than imported) to keep policy a leaf package
// with no dependency on the addressing math it tunes.
const MaxBallisticK = 12

// Validate reports whether dev/profile are known enum members.
func Validate(dev DeviceClass, profile Profile) error {
	if dev < DeviceHDD || dev > DeviceNVM {
		return fmt.Errorf("policy: unknown device class %d", dev)
	}
	if profile < ProfileGeneric || profile > ProfileSystem {
		return fmt.Errorf("policy: unknown profile %d", profile)
	}
	return nil
}
