// Package leb128 implements LEB128 varint encoding. The unsigned pair is the
// format ComputeCacheKey (cache_format.go) uses to feed configuration fields
// into the cache-key hash; the cache header itself uses fixed-width fields.
// The signed pair is the encoding gcc's exception-table format uses
// for action-table entries (internal/wasm's LSDA generator).
//
// This is a deliberately narrow cut: decoding the Wasm binary format itself,
// including the "int33" variant it uses for some instruction immediates, is
// out of scope here.
package leb128

import "fmt"

// EncodeUint32 encodes v as an unsigned LEB128 varint.
func EncodeUint32(v uint32) []byte {
	return EncodeUint64(uint64(v))
}

// EncodeUint64 encodes v as an unsigned LEB128 varint.
func EncodeUint64(v uint64) []byte {
	var ret []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			ret = append(ret, b|0x80)
		} else {
			ret = append(ret, b)
			break
		}
	}
	return ret
}

// LoadUint32 decodes an unsigned LEB128 varint from the head of buf,
// returning the value and the number of bytes consumed.
func LoadUint32(buf []byte) (ret uint32, bytesRead uint64, err error) {
	v, n, err := LoadUint64(buf)
	if err != nil {
		return 0, 0, err
	}
	if n > 5 {
		return 0, 0, fmt.Errorf("invalid LEB128 encoding: too long for uint32")
	}
	if v > 0xffffffff {
		return 0, 0, fmt.Errorf("overflows uint32")
	}
	return uint32(v), n, nil
}

// LoadUint64 decodes an unsigned LEB128 varint from the head of buf,
// returning the value and the number of bytes consumed.
func LoadUint64(buf []byte) (ret uint64, bytesRead uint64, err error) {
	const maxBytes = 10 // ceil(64/7)
	var shift uint
	for i := 0; ; i++ {
		if i == maxBytes {
			return 0, 0, fmt.Errorf("invalid LEB128 encoding: too long")
		}
		if i >= len(buf) {
			return 0, 0, fmt.Errorf("unexpected end of buffer")
		}
		b := buf[i]
		if i == maxBytes-1 && b&0xfe != 0 {
			return 0, 0, fmt.Errorf("invalid LEB128 encoding: overflow")
		}
		ret |= uint64(b&0x7f) << shift
		bytesRead++
		if b&0x80 == 0 {
			break
		}
		shift += 7
	}
	return ret, bytesRead, nil
}

// EncodeInt32 encodes v as a signed LEB128 varint.
func EncodeInt32(v int32) []byte {
	return EncodeInt64(int64(v))
}

// EncodeInt64 encodes v as a signed LEB128 varint.
func EncodeInt64(v int64) []byte {
	var ret []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		signBitSet := b&0x40 != 0
		done := (v == 0 && !signBitSet) || (v == -1 && signBitSet)
		if !done {
			ret = append(ret, b|0x80)
		} else {
			ret = append(ret, b)
			break
		}
	}
	return ret
}

// LoadInt64 decodes a signed LEB128 varint from the head of buf, returning
// the value and the number of bytes consumed.
func LoadInt64(buf []byte) (ret int64, bytesRead uint64, err error) {
	const maxBytes = 10 // ceil(64/7)
	var shift uint
	var b byte
	i := 0
	for {
		if i == maxBytes {
			return 0, 0, fmt.Errorf("invalid LEB128 encoding: too long")
		}
		if i >= len(buf) {
			return 0, 0, fmt.Errorf("unexpected end of buffer")
		}
		b = buf[i]
		ret |= int64(b&0x7f) << shift
		shift += 7
		i++
		bytesRead++
		if b&0x80 == 0 {
			break
		}
	}
	if shift < 64 && b&0x40 != 0 {
		ret |= -1 << shift
	}
	return ret, bytesRead, nil
}
