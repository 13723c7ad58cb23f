package wasm

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/wasmvm/wasmvm/internal/leb128"
	"github.com/wasmvm/wasmvm/internal/u32"
	"github.com/wasmvm/wasmvm/internal/u64"
)

// cacheMagic and cacheFormatVersion identify a serialized artifact header:
// a compiled-module cache entry from an incompatible build of this runtime
// must never be deserialized, per §6's "Serialized artifact" contract.
const (
	cacheMagic         = "WVMC"
	cacheFormatVersion = 1
)

// CacheKey is the content hash used to look up a compiled module in the
// cache: xxhash of the original Wasm bytes plus the Tunables and Features
// the module was compiled under, since either changes the resulting
// Artifact.
type CacheKey uint64

// ComputeCacheKey hashes wasmBytes together with the compilation
// configuration, so a cache entry from a differently configured Runtime is
// never mistaken for a hit.
func ComputeCacheKey(wasmBytes []byte, features Features, tunables Tunables) CacheKey {
	h := xxhash.New()
	_, _ = h.Write(wasmBytes)
	_, _ = h.Write(leb128.EncodeUint64(uint64(features)))
	_, _ = h.Write(leb128.EncodeUint64(tunables.StaticMemoryBoundPages))
	_, _ = h.Write(leb128.EncodeUint64(tunables.StaticMemoryGuardBytes))
	_, _ = h.Write(leb128.EncodeUint64(tunables.DynamicMemoryGuardBytes))
	return CacheKey(h.Sum64())
}

// EncodeCacheHeader writes the fixed-format header that must prefix every
// serialized artifact blob on disk: magic, a fixed-width format version, and
// a fixed-width xxhash checksum of the payload that follows, so a truncated
// or corrupted file is rejected before a single byte of it is treated as
// compiled code. The version and checksum are fixed-width (u32/u64) rather
// than leb128-encoded like the cache key's hash inputs: both fields are
// always present at their full width, so there's nothing for a varint
// encoding to save.
func EncodeCacheHeader(payload []byte) []byte {
	out := make([]byte, 0, len(cacheMagic)+4+8+len(payload))
	out = append(out, cacheMagic...)
	out = append(out, u32.LeBytes(cacheFormatVersion)...)
	out = append(out, u64.LeBytes(xxhash.Sum64(payload))...)
	out = append(out, payload...)
	return out
}

// DecodeCacheHeader validates and strips the header written by
// EncodeCacheHeader, returning the payload.
func DecodeCacheHeader(blob []byte) ([]byte, error) {
	const headerLen = 4 + 8
	if len(blob) < len(cacheMagic)+headerLen {
		return nil, fmt.Errorf("wasm: cache entry too short")
	}
	if string(blob[:len(cacheMagic)]) != cacheMagic {
		return nil, fmt.Errorf("wasm: cache entry has wrong magic")
	}
	pos := len(cacheMagic)
	if version := u32.Le(blob[pos : pos+4]); version != cacheFormatVersion {
		return nil, fmt.Errorf("wasm: cache entry format version %d unsupported (want %d)", version, cacheFormatVersion)
	}
	pos += 4
	checksum := u64.Le(blob[pos : pos+8])
	pos += 8
	payload := blob[pos:]
	if got := xxhash.Sum64(payload); got != checksum {
		return nil, fmt.Errorf("wasm: cache entry checksum mismatch: got %x want %x", got, checksum)
	}
	return payload, nil
}
