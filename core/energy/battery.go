package energy

import "math"

// Battery is a lossless energy store. It only bounds charging by capacity
// and target; there is no charge curve.
type Battery struct {
	CapacityJ float64
	EnergyJ   float64
}

// SoC returns the state of charge in [0,1].
func (b *Battery) SoC() float64 {
	if b.CapacityJ <= 0 {
		return 0
	}
	return math.Min(1, math.Max(0, b.EnergyJ/b.CapacityJ))
}

// Headroom returns the energy missing to reach target.
func (b *Battery) Headroom(target float64) float64 {
	target = math.Min(1, math.Max(0, target))
	return math.Max(0, target*b.CapacityJ-b.EnergyJ)
}

// Charge applies powerW for seconds without exceeding target and returns
// the energy actually stored.
func (b *Battery) Charge(powerW, seconds, target float64) float64 {
	if powerW <= 0 || seconds <= 0 {
		return 0
	}
	applied := math.Min(powerW*seconds, b.Headroom(target))
	b.EnergyJ += applied
	return applied
}

// TimeTo returns the seconds needed to reach target at powerW, or +Inf
// when powerW is not positive.
func (b *Battery) TimeTo(target, powerW float64) float64 {
	h := b.Headroom(target)
	if h == 0 {
		return 0
	}
	if powerW <= 0 {
		return math.Inf(1)
	}
	return h / powerW
}
