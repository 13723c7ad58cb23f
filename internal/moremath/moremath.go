// Package moremath packages math routines needed by the runtime that aren't
// in the Go standard library, or differ in NaN handling from it.
package moremath

import "math"

// WasmCompatMin is logically equivalent to math.Min, except that math.Min doesn't comply with the Wasm spec if
// either argument is a NaN: math.Min(math.NaN(), -math.Inf(1)) is -math.Inf(1), but the Wasm spec requires NaN,
// which is what WasmCompatMin returns.
// https://github.com/golang/go/blob/1d20a362d0ca4898d77865e314ef6f73582daef0/src/math/dim.go#L74-L91
func WasmCompatMin(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case math.IsInf(x, -1) || math.IsInf(y, -1):
		return math.Inf(-1)
	case x == 0 && x == y:
		if math.Signbit(x) {
			return x
		}
		return y
	}
	if x < y {
		return x
	}
	return y
}

// WasmCompatMax is logically equivalent to math.Max, with the same NaN caveat described on WasmCompatMin.
// https://github.com/golang/go/blob/1d20a362d0ca4898d77865e314ef6f73582daef0/src/math/dim.go#L42-L59
func WasmCompatMax(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case math.IsInf(x, 1) || math.IsInf(y, 1):
		return math.Inf(1)
	case x == 0 && x == y:
		if math.Signbit(x) {
			return y
		}
		return x
	}
	if x > y {
		return x
	}
	return y
}

// CanonicalNaN32Bits is the canonical NaN bit pattern used when
// RuntimeConfig.WithNaNCanonicalization is enabled for a 32-bit float result.
const CanonicalNaN32Bits uint32 = 0x7fc00000

// CanonicalNaN64Bits is the 64-bit counterpart of CanonicalNaN32Bits.
const CanonicalNaN64Bits uint64 = 0x7ff8000000000000

// CanonicalizeNaN32 replaces any NaN payload with the canonical one, leaving every other value untouched.
func CanonicalizeNaN32(v float32) float32 {
	if math.IsNaN(float64(v)) {
		return math.Float32frombits(CanonicalNaN32Bits)
	}
	return v
}

// CanonicalizeNaN64 replaces any NaN payload with the canonical one, leaving every other value untouched.
func CanonicalizeNaN64(v float64) float64 {
	if math.IsNaN(v) {
		return math.Float64frombits(CanonicalNaN64Bits)
	}
	return v
}
