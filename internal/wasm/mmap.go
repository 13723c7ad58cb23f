package wasm

import "fmt"

// pageSize is the Wasm linear-memory page size: 64 KiB.
const pageSize = 64 * 1024

// reservation models the page allocator contract of §4.4: a zero-filled
// region split into an accessible prefix and a reserved (not yet backed)
// suffix, grown in whole pages.
//
// The design calls for PROT_NONE guard pages enforced by the host MMU. A
// portable Go implementation without a per-platform mmap/mprotect binding
// can't fault on an out-of-bounds access the way the reserved suffix would
// on Unix; reads/writes here are bounds-checked by MemoryInstance against
// accessibleBytes instead. The accessible/reserved split and Fork semantics
// below otherwise match the contract exactly, so callers that only ever go
// through MemoryInstance observe identical behavior to a real guarded
// mapping.
type reservation struct {
	buf              []byte
	accessibleBytes  uint64
	reservedBytes    uint64
}

// reserve allocates a zero-filled region with the given initial accessible
// length and a reserved suffix, both rounded up to whole pages.
func reserve(accessiblePages, reservedPages uint64) (*reservation, error) {
	accessible := accessiblePages * pageSize
	reserved := reservedPages * pageSize
	total := accessible + reserved
	if total < accessible { // overflow
		return nil, fmt.Errorf("mmap: requested size overflows")
	}
	return &reservation{
		buf:             make([]byte, accessible, total),
		accessibleBytes: accessible,
		reservedBytes:   reserved,
	}, nil
}

// grow extends the accessible prefix by deltaPages. When the reserved
// suffix covers the request (the common static/bounded-dynamic case), it
// consumes directly from that suffix. Otherwise — an unbounded dynamic
// memory, which reserve() leaves with a zero-length suffix since there's no
// Max to size it from — it re-reserves by appending deltaPages of
// zero-filled bytes to buf directly, matching §4.4's "Dynamic{guard_bytes}:
// growable reservation" for the no-max case. It reports false only on
// overflow: an unbounded memory otherwise always has room to grow.
func (r *reservation) grow(deltaPages uint64) bool {
	delta := deltaPages * pageSize
	if delta <= r.reservedBytes {
		newLen := r.accessibleBytes + delta
		r.buf = r.buf[:newLen]
		r.accessibleBytes = newLen
		r.reservedBytes -= delta
		return true
	}
	newLen := r.accessibleBytes + delta
	if newLen < r.accessibleBytes { // overflow
		return false
	}
	r.buf = append(r.buf, make([]byte, delta)...)
	r.accessibleBytes = newLen
	return true
}

// bytes returns the current accessible region. The slice aliases the
// reservation's storage: writes are visible to subsequent reads, matching
// the write-through contract api.Memory documents.
func (r *reservation) bytes() []byte {
	return r.buf
}

// fork produces a new reservation whose accessible prefix is an independent
// copy of r's; the reserved suffix is preserved so the clone can still grow.
// Per §9's Open Question, the core refuses to fork shared memories before
// ever calling this (see MemoryInstance.Fork); a plain copy here is a
// correct, if not copy-on-write, implementation of "fork" for the
// non-shared case the contract permits.
func (r *reservation) fork() *reservation {
	total := r.accessibleBytes + r.reservedBytes
	buf := make([]byte, r.accessibleBytes, total)
	copy(buf, r.buf)
	return &reservation{
		buf:             buf,
		accessibleBytes: r.accessibleBytes,
		reservedBytes:   r.reservedBytes,
	}
}
