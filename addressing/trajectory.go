package addressing

import (
	"fmt"
	"math/big"
	"math/bits"
)

// Geometry carries the volume-wide constants a trajectory computation
// needs. It never changes after a volume is opened, so a Trajectory
// call with the same Geometry and the same (G,V,N,M,k) is always
// deterministic.
type Geometry struct {
	FluxStart    uint64 // first LBA of the ballistic region
	Phi          uint64 // size of the ballistic region (capacity beyond FluxStart); the modulus
	HorizonStart uint64 // first LBA of the Horizon region
}

// Orbit identifies a computed candidate: the physical LBA and the k
// that produced it.
type Orbit struct {
	LBA uint64
	K   int
}

// Trajectory computes the physical LBA for orbit k of a block addressed
// by (G,V,N,M). k in [0,MaxBallisticK] yields a ballistic LBA; k ==
// HorizonSentinelK yields a Horizon LBA. Any other k is rejected. The
// function is pure: identical inputs always yield identical outputs,
// independent of any bitmap or device state.
func Trajectory(geo Geometry, g, v, n uint64, m uint8, k int) (Orbit, error) {
	if k == HorizonSentinelK {
		lba, err := horizonLBA(geo, n, m)
		if err != nil {
			return Orbit{}, err
		}
		return Orbit{LBA: lba, K: k}, nil
	}
	if k < 0 || k > MaxBallisticK {
		return Orbit{}, fmt.Errorf("addressing: orbit k=%d is neither ballistic nor horizon", k)
	}
	if m > 63 {
		return Orbit{}, fmt.Errorf("addressing: fractal_scale m=%d exceeds 63", m)
	}
	if geo.Phi == 0 {
		return Orbit{}, fmt.Errorf("addressing: phi must be > 0")
	}

	shifted, err := shiftLeftChecked(n, m)
	if err != nil {
		return Orbit{}, err
	}

	vk := v
	if k >= 4 {
		vk = swizzle(v) | 1
	}

	// (shifted * vk) always fits a 128-bit intermediate for two 64-bit
	// operands; the multiply can therefore never overflow here, so no
	// overflow check is made on it.
	hi, lo := bits.Mul64(shifted, vk)

	th, err := Theta(k)
	if err != nil {
		return Orbit{}, err
	}

	lo1, c1 := bits.Add64(lo, g, 0)
	hi1, _ := bits.Add64(hi, 0, c1)
	lo2, c2 := bits.Add64(lo1, th, 0)
	hi2, _ := bits.Add64(hi1, 0, c2)

	sum := new(big.Int).SetUint64(hi2)
	sum.Lsh(sum, 64)
	sum.Or(sum, new(big.Int).SetUint64(lo2))

	phi := new(big.Int).SetUint64(geo.Phi)
	mod := new(big.Int).Mod(sum, phi)
	if !mod.IsUint64() {
		return Orbit{}, fmt.Errorf("addressing: modulo result exceeds 64 bits")
	}

	lba, carry := bits.Add64(geo.FluxStart, mod.Uint64(), 0)
	if carry != 0 {
		return Orbit{}, fmt.Errorf("addressing: flux_start + offset overflows uint64")
	}
	return Orbit{LBA: lba, K: k}, nil
}

func horizonLBA(geo Geometry, n uint64, m uint8) (uint64, error) {
	if m > 63 {
		return 0, fmt.Errorf("addressing: fractal_scale m=%d exceeds 63", m)
	}
	shifted, err := shiftLeftChecked(n, m)
	if err != nil {
		return 0, err
	}
	lba, carry := bits.Add64(geo.HorizonStart, shifted, 0)
	if carry != 0 {
		return 0, fmt.Errorf("addressing: horizon_start + offset overflows uint64")
	}
	return lba, nil
}

// shiftLeftChecked computes n<<m, rejecting any shift that would lose
// set bits off the top of a uint64 rather than silently wrapping.
func shiftLeftChecked(n uint64, m uint8) (uint64, error) {
	if n == 0 || m == 0 {
		return n << m, nil
	}
	if bits.LeadingZeros64(n) < int(m) {
		return 0, fmt.Errorf("addressing: n<<m overflows uint64 (n=%d, m=%d)", n, m)
	}
	return n << m, nil
}
