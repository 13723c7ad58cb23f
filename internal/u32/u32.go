// Package u32 includes little-endian encoding helpers for uint32, used by
// the compilation cache's serialized artifact header (see internal/wasm).
package u32

import "encoding/binary"

// LeBytes encodes v as 4 little-endian bytes.
func LeBytes(v uint32) []byte {
	ret := make([]byte, 4)
	binary.LittleEndian.PutUint32(ret, v)
	return ret
}

// Le decodes the first 4 bytes of b as a little-endian uint32. It panics if
// b is shorter than 4 bytes, matching encoding/binary's own convention.
func Le(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}
