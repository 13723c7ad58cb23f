package api

import "fmt"

// Value is the tagged variant over i32, i64, f32, f64, v128, funcref and
// externref described in §3: the semantic form used at the host boundary,
// as opposed to RawValue, the raw 128-bit cell the trampoline ABI actually
// transports.
type Value struct {
	kind    ValueType
	lo      uint64
	hi      uint64 // only meaningful for v128
	ref     interface{}
	storeID uint64 // only meaningful for non-nil funcref/externref; 0 means untied
}

func ValueI32(v int32) Value  { return Value{kind: ValueTypeI32, lo: EncodeI32(v)} }
func ValueI64(v int64) Value  { return Value{kind: ValueTypeI64, lo: EncodeI64(v)} }
func ValueF32(v float32) Value { return Value{kind: ValueTypeF32, lo: EncodeF32(v)} }
func ValueF64(v float64) Value { return Value{kind: ValueTypeF64, lo: EncodeF64(v)} }

// ValueFuncref wraps a possibly-nil Function reference.
func ValueFuncref(fn Function) Value { return Value{kind: valueTypeFuncrefInternal, ref: fn} }

// ValueExternref wraps a possibly-nil external reference.
func ValueExternref(v interface{}) Value { return Value{kind: ValueTypeExternref, ref: v} }

// valueTypeFuncrefInternal mirrors the SIMD/reference-types funcref code
// point; kept unexported here since api.ValueType's public constants predate
// reference types and this package otherwise avoids redefining it.
const valueTypeFuncrefInternal ValueType = 0x70

func (v Value) Type() ValueType { return v.kind }
func (v Value) I32() int32      { return int32(uint32(v.lo)) }
func (v Value) I64() int64      { return int64(v.lo) }
func (v Value) F32() float32    { return DecodeF32(v.lo) }
func (v Value) F64() float64    { return DecodeF64(v.lo) }
func (v Value) Ref() interface{} { return v.ref }

// WithStoreID returns a copy of v stamped as owned by the store identified
// by id. The embedding runtime calls this when it hands a reference-typed
// Value (funcref/externref) back across the host boundary, so a later
// IsFromStore check can tell whether the Value is later passed to a call on
// a different store.
func (v Value) WithStoreID(id uint64) Value {
	v.storeID = id
	return v
}

// IsFromStore reports whether v can be used with the store identified by
// id. Primitive numeric values and null references are untied to any store
// and are always usable; a non-nil funcref or externref is only usable with
// the store it was stamped for.
func (v Value) IsFromStore(id uint64) bool {
	if v.kind != valueTypeFuncrefInternal && v.kind != ValueTypeExternref {
		return true
	}
	if v.ref == nil {
		return true
	}
	return v.storeID == id
}

func (v Value) String() string {
	switch v.kind {
	case ValueTypeI32:
		return fmt.Sprintf("i32:%d", v.I32())
	case ValueTypeI64:
		return fmt.Sprintf("i64:%d", v.I64())
	case ValueTypeF32:
		return fmt.Sprintf("f32:%g", v.F32())
	case ValueTypeF64:
		return fmt.Sprintf("f64:%g", v.F64())
	default:
		return fmt.Sprintf("%s:%v", ValueTypeName(v.kind), v.ref)
	}
}

// RawValue is a raw 128-bit cell: the wire form Value is converted to and
// from when crossing the trampoline ABI (§3, §4.6 step 2). Lo/Hi are used
// for every numeric value type (only Lo, except v128 which is out of scope
// for actual vector-instruction execution here since compilation backends
// are an external collaborator, but still round-trips through Hi so a
// v128 Value's bit pattern is preserved end to end). Ref carries a
// reference value's identity directly, since this implementation has no
// native pointer representation of refs to encode into Lo the way a real
// "opaque raw 64-bit pointer" ABI would.
type RawValue struct {
	Lo  uint64
	Hi  uint64
	Ref interface{}
}

// ToRaw converts a semantic Value into its raw transport form.
func (v Value) ToRaw() RawValue {
	if v.ref != nil {
		return RawValue{Ref: v.ref}
	}
	return RawValue{Lo: v.lo, Hi: v.hi}
}

// ValueFromRaw reconstructs a semantic Value of the given type from its raw
// transport form, the inverse of Value.ToRaw.
func ValueFromRaw(t ValueType, raw RawValue) Value {
	switch t {
	case ValueTypeI32:
		return ValueI32(int32(uint32(raw.Lo)))
	case ValueTypeI64:
		return ValueI64(int64(raw.Lo))
	case ValueTypeF32:
		return ValueF32(DecodeF32(raw.Lo))
	case ValueTypeF64:
		return ValueF64(DecodeF64(raw.Lo))
	case ValueTypeExternref:
		return ValueExternref(raw.Ref)
	default: // funcref and v128
		return Value{kind: t, lo: raw.Lo, hi: raw.Hi, ref: raw.Ref}
	}
}

// GoFunction is the low-level host function signature used by
// HostFunctionBuilder.WithGoFunction: given a raw stack of width
// max(len(params),len(results)), it reads params from the front and writes
// results to the front, in place.
type GoFunction func(ctx interface{}, stack []uint64)

// GoModuleFunction is like GoFunction but also receives the calling Module,
// most commonly to access its exported memory.
type GoModuleFunction func(ctx interface{}, mod Module, stack []uint64)
