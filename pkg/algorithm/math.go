// Package algorithm provides small numeric helpers shared by drivers and
// controllers.
package algorithm

import (
	"cmp"
	"math"
)

// Number is the set of numeric types the helpers accept.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Signed is the set of signed numeric types.
type Signed interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64
}

// Sign returns 1, -1 or 0.
func Sign[T Signed](v T) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// Constrain limits v to [lo, hi].
func Constrain[T cmp.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// AbsConstrain limits v to [-limit, limit].
func AbsConstrain[T Signed](v, limit T) T {
	if limit < 0 {
		limit = -limit
	}
	return Constrain(v, -limit, limit)
}

// Deadband returns v if it lies in [lo, hi], otherwise 0.
func Deadband[T Number](v, lo, hi T) T {
	if v < lo || v > hi {
		return 0
	}
	return v
}

// LoopConstrain folds v into one period [lo, hi).
// e.g. LoopConstrain(370, 0, 360) == 10.
func LoopConstrain(v, lo, hi float64) float64 {
	period := hi - lo
	if period <= 0 {
		return v
	}
	v = math.Mod(v-lo, period)
	if v < 0 {
		v += period
	}
	if v >= period {
		v = 0
	}
	return lo + v
}
