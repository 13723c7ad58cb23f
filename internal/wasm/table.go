package wasm

import "fmt"

// TableType describes a table import/export/local declaration: §3's Table
// parameters.
type TableType struct {
	ElemType ValueType // ValueTypeFuncref or ValueTypeExternref
	Min      uint32
	Max      *uint32
}

// TableInstance holds a table's runtime element slots. Each slot is either
// a typed null (zero value) or a reference, represented as a raw 64-bit
// cell; instantiation stores a function index plus one, so zero stays null.
type TableInstance struct {
	MaybeInline

	Type     TableType
	elements []uint64
}

// NewTableInstance allocates a table per ty, with every slot zero-
// initialized (a typed null), matching §4.3 step 2.
func NewTableInstance(ty TableType, owner Owner, instanceID uint64) *TableInstance {
	return &TableInstance{
		MaybeInline: MaybeInline{Owner: owner, InstanceID: instanceID},
		Type:        ty,
		elements:    make([]uint64, ty.Min),
	}
}

func (t *TableInstance) Len() uint32 { return uint32(len(t.elements)) }

// Get returns the raw cell at idx, or false if out of range.
func (t *TableInstance) Get(idx uint32) (uint64, bool) {
	if idx >= uint32(len(t.elements)) {
		return 0, false
	}
	return t.elements[idx], true
}

// Set stores v at idx, or returns false if out of range.
func (t *TableInstance) Set(idx uint32, v uint64) bool {
	if idx >= uint32(len(t.elements)) {
		return false
	}
	t.elements[idx] = v
	return true
}

// Grow extends the table by delta elements, each initialized to init. It
// returns the previous length, or false if growth would exceed the
// declared maximum.
func (t *TableInstance) Grow(delta uint32, init uint64) (previous uint32, ok bool) {
	previous = t.Len()
	newLen := uint64(previous) + uint64(delta)
	if t.Type.Max != nil && newLen > uint64(*t.Type.Max) {
		return previous, false
	}
	grown := make([]uint64, newLen)
	copy(grown, t.elements)
	for i := previous; uint64(i) < newLen; i++ {
		grown[i] = init
	}
	t.elements = grown
	return previous, true
}

// ApplyElementSegment writes fn into table slots [offset, offset+len(fn)),
// as part of instantiation's segment-application step.
func (t *TableInstance) ApplyElementSegment(offset uint32, fn []uint64) error {
	end := uint64(offset) + uint64(len(fn))
	if end > uint64(len(t.elements)) {
		return fmt.Errorf("element segment out of bounds: offset=%d len=%d size=%d", offset, len(fn), len(t.elements))
	}
	copy(t.elements[offset:end], fn)
	return nil
}
