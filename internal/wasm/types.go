package wasm

import (
	"fmt"

	"github.com/wasmvm/wasmvm/api"
)

// ValueType re-exports api.ValueType so the rest of this package has a
// short, internal name without importing api everywhere.
type ValueType = api.ValueType

const (
	ValueTypeI32       = api.ValueTypeI32
	ValueTypeI64       = api.ValueTypeI64
	ValueTypeF32       = api.ValueTypeF32
	ValueTypeF64       = api.ValueTypeF64
	ValueTypeExternref = api.ValueTypeExternref
	// ValueTypeV128 is the 128-bit vector type added by the SIMD proposal.
	ValueTypeV128 ValueType = 0x7b
	// ValueTypeFuncref is a nullable reference to a function.
	ValueTypeFuncref ValueType = 0x70
)

// ExternType classifies an import or export descriptor.
type ExternType = api.ExternType

const (
	ExternTypeFunc   = api.ExternTypeFunc
	ExternTypeTable  = api.ExternTypeTable
	ExternTypeMemory = api.ExternTypeMemory
	ExternTypeGlobal = api.ExternTypeGlobal
	// ExternTypeTag classifies a typed exception tag import/export, added by
	// the exception-handling proposal. It is not part of api.ExternType
	// because tags have no host-observable value; they are matched by
	// identity only (see TagType).
	ExternTypeTag ExternType = 0x04
)

// FunctionType is an ordered list of parameter value types and an ordered
// list of result value types. Equality is structural: see FunctionType.EqualTo.
type FunctionType struct {
	Params  []ValueType
	Results []ValueType
}

// EqualTo reports whether ft and o declare the same parameter and result
// value types, in order. This is the comparison call_indirect and the
// import resolver (C5) use for function-type compatibility.
func (ft *FunctionType) EqualTo(o *FunctionType) bool {
	if len(ft.Params) != len(o.Params) || len(ft.Results) != len(o.Results) {
		return false
	}
	for i, p := range ft.Params {
		if p != o.Params[i] {
			return false
		}
	}
	for i, r := range ft.Results {
		if r != o.Results[i] {
			return false
		}
	}
	return true
}

// String renders ft in a Wasm-text-like form, e.g. "(i32,i32)->(i32)".
func (ft *FunctionType) String() string {
	s := "("
	for i, p := range ft.Params {
		if i > 0 {
			s += ","
		}
		s += api.ValueTypeName(p)
	}
	s += ")->("
	for i, r := range ft.Results {
		if i > 0 {
			s += ","
		}
		s += api.ValueTypeName(r)
	}
	return s + ")"
}

// Features is a bitset of accepted Wasm proposals. The zero value enables
// no proposal; Features20191205 is the WebAssembly 1.0 (MVP) feature set,
// with FeatureMutableGlobal on, as that proposal finished before the 1.0
// recommendation.
type Features uint64

const (
	FeatureMutableGlobal Features = 1 << iota
	FeatureSignExtensionOps
	FeatureMultiValue
	FeatureBulkMemoryOperations
	FeatureReferenceTypes
	FeatureSIMD
	FeatureThreads
	FeatureExceptionHandling
	FeatureTailCall
)

// Features20191205 is the WebAssembly Core 1.0 (20191205) feature set.
const Features20191205 = FeatureMutableGlobal

// FeaturesFinished includes every proposal that has reached Stage 4 as of
// this package's writing, beyond the 1.0 baseline.
const FeaturesFinished = Features20191205 |
	FeatureSignExtensionOps | FeatureMultiValue | FeatureBulkMemoryOperations | FeatureReferenceTypes

// Get reports whether f is enabled in the set.
func (set Features) Get(f Features) bool {
	return set&f != 0
}

// Set returns a copy of the set with f enabled or disabled.
func (set Features) Set(f Features, enabled bool) Features {
	if enabled {
		return set | f
	}
	return set &^ f
}

// RequireEnabled returns an error naming the proposal if f is not enabled.
func (set Features) RequireEnabled(f Features, name string) error {
	if !set.Get(f) {
		return fmt.Errorf("feature %q is disabled", name)
	}
	return nil
}
