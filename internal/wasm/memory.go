package wasm

import (
	"fmt"
	"sync"

	"github.com/wasmvm/wasmvm/internal/wasmruntime"
)

// MemoryType describes a memory import/export/local declaration: §3's
// Memory parameters.
type MemoryType struct {
	Min    uint64
	Max    *uint64 // nil means unbounded
	Shared bool
}

// MemoryError is the taxonomy §4.4 specifies for the page allocator.
type MemoryError struct {
	Kind MemoryErrorKind
	Msg  string
}

type MemoryErrorKind int

const (
	MemoryErrorAllocationFailed MemoryErrorKind = iota
	MemoryErrorMaximumExceeded
	MemoryErrorInvalidStyle
)

func (e *MemoryError) Error() string { return e.Msg }

// MemoryInstance is a linear memory's runtime state: a reservation (mmap.go)
// governed by a MemoryStyle, guarded by a mutex because memory.grow can run
// concurrently with host-side reads in principle (the spec serializes all
// other access within one store, but Memory.Read/Write are also reachable
// directly from host functions running on the same goroutine, so the lock
// is cheap insurance against future concurrent host access rather than a
// requirement of the single-threaded-per-store model).
type MemoryInstance struct {
	MaybeInline

	Type  MemoryType
	Style MemoryStyle

	mu   sync.Mutex
	res  *reservation
}

// NewMemoryInstance allocates a memory per ty using style, matching §4.4's
// create_host_memory / create_vm_memory pair. owner/instanceID record which
// MaybeInline variant applies; VM-owned (inline) memories pass OwnerInline
// and their instance's id.
func NewMemoryInstance(ty MemoryType, style MemoryStyle, owner Owner, instanceID uint64) (*MemoryInstance, error) {
	if ty.Shared && ty.Max == nil {
		return nil, &MemoryError{Kind: MemoryErrorInvalidStyle, Msg: "shared memory requires a declared maximum"}
	}
	var reservedPages uint64
	switch style.Kind {
	case MemoryStyleStatic:
		if ty.Max != nil && *ty.Max > style.BoundPages {
			return nil, &MemoryError{Kind: MemoryErrorInvalidStyle, Msg: "declared maximum exceeds static bound"}
		}
		reservedPages = style.BoundPages - ty.Min
	case MemoryStyleDynamic:
		if ty.Max != nil {
			reservedPages = *ty.Max - ty.Min
		}
		// unbounded dynamic memory grows by re-reserving; reservedPages left 0.
	}
	res, err := reserve(ty.Min, reservedPages)
	if err != nil {
		return nil, &MemoryError{Kind: MemoryErrorAllocationFailed, Msg: err.Error()}
	}
	return &MemoryInstance{
		MaybeInline: MaybeInline{Owner: owner, InstanceID: instanceID},
		Type:        ty,
		Style:       style,
		res:         res,
	}, nil
}

// Fork clones a memory's accessible bytes into a new, independent
// MemoryInstance. Per the Open Question resolved in the expanded design,
// shared memories refuse to fork: the semantics of observing a snapshot of
// memory another store can concurrently mutate are undefined.
func (m *MemoryInstance) Fork() (*MemoryInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Type.Shared {
		return nil, &MemoryError{Kind: MemoryErrorInvalidStyle, Msg: "cannot fork a shared memory"}
	}
	return &MemoryInstance{
		MaybeInline: m.MaybeInline,
		Type:        m.Type,
		Style:       m.Style,
		res:         m.res.fork(),
	}, nil
}

// PageSize is the fixed 64KiB Wasm page size.
const PageSize = pageSize

// SizePages returns the current size in pages.
func (m *MemoryInstance) SizePages() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint32(m.res.accessibleBytes / PageSize)
}

// Grow implements api.Memory's "memory.grow": it returns the previous size
// in pages, and false if the growth was refused because it would exceed the
// declared maximum. Refusal is reported to Wasm as -1, never as a host
// error, per §7's propagation policy.
func (m *MemoryInstance) Grow(deltaPages uint32) (previousPages uint32, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	previous := uint32(m.res.accessibleBytes / PageSize)
	if deltaPages == 0 {
		return previous, true
	}
	newTotal := uint64(previous) + uint64(deltaPages)
	if m.Type.Max != nil && newTotal > *m.Type.Max {
		return previous, false
	}
	if !m.res.grow(uint64(deltaPages)) {
		return previous, false
	}
	return previous, true
}

func (m *MemoryInstance) bytes() []byte {
	return m.res.bytes()
}

// Read returns a write-through view of byteCount bytes at offset, or false
// if out of range, matching api.Memory.Read's contract.
func (m *MemoryInstance) Read(offset, byteCount uint32) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := m.bytes()
	end := uint64(offset) + uint64(byteCount)
	if end > uint64(len(buf)) {
		return nil, false
	}
	return buf[offset:end:end], true
}

// Write copies v into the buffer at offset, or returns false if out of
// range.
func (m *MemoryInstance) Write(offset uint32, v []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := m.bytes()
	end := uint64(offset) + uint64(len(v))
	if end > uint64(len(buf)) {
		return false
	}
	copy(buf[offset:end], v)
	return true
}

// MustRead is used by generated-code stand-ins (the call gate and test
// artifacts) for memory accesses that should trap, not return an error,
// when out of range: it panics with wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess,
// which the call gate's deferred recover turns into a RuntimeError.Trap.
func (m *MemoryInstance) MustRead(offset, byteCount uint32) []byte {
	b, ok := m.Read(offset, byteCount)
	if !ok {
		panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
	}
	return b
}

func (m *MemoryInstance) MustWrite(offset uint32, v []byte) {
	if !m.Write(offset, v) {
		panic(wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess)
	}
}

// ApplyDataSegment copies bytes into the memory at offset, as part of
// instantiation's segment-application step (§4.3 step 4). It returns an
// error (not a panic) since, per that step, bulk-memory modules must abort
// instantiation atomically rather than trap.
func (m *MemoryInstance) ApplyDataSegment(offset uint32, data []byte) error {
	if !m.Write(offset, data) {
		return fmt.Errorf("data segment out of bounds: offset=%d len=%d size=%d", offset, len(data), m.SizePages()*PageSize)
	}
	return nil
}
