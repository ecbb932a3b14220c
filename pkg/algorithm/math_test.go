package algorithm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConstrain(t *testing.T) {
	require.Equal(t, 5, Constrain(7, 0, 5))
	require.Equal(t, 0, Constrain(-1, 0, 5))
	require.Equal(t, 3, Constrain(3, 0, 5))
	require.Equal(t, int16(-100), AbsConstrain(int16(-300), int16(100)))
	require.Equal(t, 2.5, AbsConstrain(2.5, -3.0))
}

func TestLoopConstrain(t *testing.T) {
	testCases := []struct {
		name   string
		in     float64
		expect float64
	}{
		{"inside", 10, 10},
		{"above", 370, 10},
		{"far above", 730, 10},
		{"below", -10, 350},
		{"upper bound", 360, 0},
		{"huge", 1e17, 280},
		{"huge negative", -1e17, 80},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.InDelta(t, tc.expect, LoopConstrain(tc.in, 0, 360), 1e-9)
		})
	}
	require.Equal(t, 42.0, LoopConstrain(42, 1, 1))
}

func TestSignDeadband(t *testing.T) {
	require.Equal(t, 1, Sign(3.2))
	require.Equal(t, -1, Sign(-2))
	require.Equal(t, 0, Sign(0))
	require.Equal(t, 0.0, Deadband(5.0, -1, 1))
	require.Equal(t, 0.5, Deadband(0.5, -1, 1))
}

func TestAngle(t *testing.T) {
	require.InDelta(t, -math.Pi/2, AngleFromDegrees(270).Radians(), 1e-9)
	require.InDelta(t, 90, AngleFromRadians(math.Pi/2+4*math.Pi).Degrees(), 1e-9)
}
