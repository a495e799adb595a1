package indicators

import "math"

// ScaleStrength maps an absolute percentage gap linearly onto the [0, 100]
// strength range: scale is the strength contributed per 1% of gap.
func ScaleStrength(gapPct, scale float64) float64 {
	return Clamp(math.Abs(gapPct)*scale, 0, 100)
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
