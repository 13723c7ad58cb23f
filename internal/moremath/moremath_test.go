package moremath

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWasmCompatMin(t *testing.T) {
	tests := []struct {
		name     string
		x, y     float64
		expected float64
	}{
		{name: "both NaN", x: math.NaN(), y: math.NaN(), expected: math.NaN()},
		{name: "x NaN", x: math.NaN(), y: math.Inf(-1), expected: math.NaN()},
		{name: "y NaN", x: math.Inf(1), y: math.NaN(), expected: math.NaN()},
		{name: "x -Inf", x: math.Inf(-1), y: 1.0, expected: math.Inf(-1)},
		{name: "y -Inf", x: 1.0, y: math.Inf(-1), expected: math.Inf(-1)},
		{name: "both zero, x negative", x: math.Copysign(0, -1), y: 0, expected: math.Copysign(0, -1)},
		{name: "both zero, y negative", x: 0, y: math.Copysign(0, -1), expected: math.Copysign(0, -1)},
		{name: "x smaller", x: -1, y: 1, expected: -1},
		{name: "y smaller", x: 1, y: -1, expected: -1},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			actual := WasmCompatMin(tc.x, tc.y)
			if math.IsNaN(tc.expected) {
				require.True(t, math.IsNaN(actual))
			} else {
				require.Equal(t, tc.expected, actual)
			}
		})
	}
}

func TestWasmCompatMax(t *testing.T) {
	tests := []struct {
		name     string
		x, y     float64
		expected float64
	}{
		{name: "both NaN", x: math.NaN(), y: math.NaN(), expected: math.NaN()},
		{name: "x NaN", x: math.NaN(), y: math.Inf(1), expected: math.NaN()},
		{name: "y NaN", x: math.Inf(-1), y: math.NaN(), expected: math.NaN()},
		{name: "x +Inf", x: math.Inf(1), y: 1.0, expected: math.Inf(1)},
		{name: "y +Inf", x: 1.0, y: math.Inf(1), expected: math.Inf(1)},
		{name: "both zero, x positive", x: 0, y: math.Copysign(0, -1), expected: 0},
		{name: "both zero, y positive", x: math.Copysign(0, -1), y: 0, expected: 0},
		{name: "x bigger", x: 1, y: -1, expected: 1},
		{name: "y bigger", x: -1, y: 1, expected: 1},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			actual := WasmCompatMax(tc.x, tc.y)
			if math.IsNaN(tc.expected) {
				require.True(t, math.IsNaN(actual))
			} else {
				require.Equal(t, tc.expected, actual)
			}
		})
	}
}

func TestCanonicalizeNaN32(t *testing.T) {
	require.Equal(t, CanonicalNaN32Bits, math.Float32bits(CanonicalizeNaN32(math.Float32frombits(0x7fc00001))))
	require.Equal(t, CanonicalNaN32Bits, math.Float32bits(CanonicalizeNaN32(math.Float32frombits(0xffc00000))))
	require.Equal(t, float32(1.5), CanonicalizeNaN32(1.5))
	require.Equal(t, float32(0), CanonicalizeNaN32(0))
}

func TestCanonicalizeNaN64(t *testing.T) {
	require.Equal(t, CanonicalNaN64Bits, math.Float64bits(CanonicalizeNaN64(math.Float64frombits(0x7ff8000000000001))))
	require.Equal(t, CanonicalNaN64Bits, math.Float64bits(CanonicalizeNaN64(math.Float64frombits(0xfff8000000000000))))
	require.Equal(t, 1.5, CanonicalizeNaN64(1.5))
	require.Equal(t, float64(0), CanonicalizeNaN64(0))
}
