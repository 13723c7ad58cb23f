// Package u64 includes little-endian encoding helpers for uint64, used by
// the compilation cache's serialized artifact header (see internal/wasm).
package u64

import "encoding/binary"

// LeBytes encodes v as 8 little-endian bytes.
func LeBytes(v uint64) []byte {
	ret := make([]byte, 8)
	binary.LittleEndian.PutUint64(ret, v)
	return ret
}

// Le decodes the first 8 bytes of b as a little-endian uint64. It panics if
// b is shorter than 8 bytes, matching encoding/binary's own convention.
func Le(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}
