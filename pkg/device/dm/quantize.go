package dm

import "math"

// FloatToUint maps x in [min, max] linearly onto an unsigned integer of the
// given bit width, rounding to nearest. x outside the range is clamped.
func FloatToUint(x, min, max float64, bits uint) uint32 {
	span := max - min
	if span <= 0 || math.IsNaN(x) {
		return 0
	}
	if x < min {
		x = min
	} else if x > max {
		x = max
	}
	levels := float64(uint32(1)<<bits - 1)
	return uint32(math.Round((x - min) * levels / span))
}

// UintToFloat is the inverse of FloatToUint.
func UintToFloat(u uint32, min, max float64, bits uint) float64 {
	levels := float64(uint32(1)<<bits - 1)
	return float64(u)*(max-min)/levels + min
}

// Step returns the quantization step of a field.
func Step(min, max float64, bits uint) float64 {
	return (max - min) / float64(uint32(1)<<bits-1)
}
