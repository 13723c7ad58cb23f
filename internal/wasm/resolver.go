package wasm

import (
	"fmt"

	"github.com/wasmvm/wasmvm/api"
)

// Export is what a Resolver hands back for one resolved import: the kind of
// object plus a handle into whichever store owns it. Exactly one of the
// handle fields is valid, selected by Type.
type Export struct {
	Type ExternType

	Func   Handle[FunctionInstance]
	Table  Handle[TableInstance]
	Memory Handle[MemoryInstance]
	Global Handle[GlobalInstance]
	Tag    Handle[TagInstance]
}

// Resolver looks up one import by its declared (module, name), per §4.5.
// The index argument is the import's position in ModuleInfo.ImportSection,
// which a resolver may use to disambiguate same-named imports or to report
// richer errors; most implementations ignore it.
type Resolver interface {
	Resolve(index uint32, moduleName, name string) (Export, bool)
}

// MapResolver resolves against a fixed module-name -> field-name -> Export
// table, the common case of linking one already-instantiated module's
// exports into another's imports.
type MapResolver map[string]map[string]Export

func (m MapResolver) Resolve(_ uint32, moduleName, name string) (Export, bool) {
	fields, ok := m[moduleName]
	if !ok {
		return Export{}, false
	}
	exp, ok := fields[name]
	return exp, ok
}

// ChainResolver tries each Resolver in order and returns the first hit,
// implementing §4.5's "chain_front/chain_back" composition: a later
// resolver only runs when every earlier one misses.
type ChainResolver []Resolver

func (c ChainResolver) Resolve(index uint32, moduleName, name string) (Export, bool) {
	for _, r := range c {
		if exp, ok := r.Resolve(index, moduleName, name); ok {
			return exp, true
		}
	}
	return Export{}, false
}

// ChainFront returns a resolver that tries r first, then the receiver.
func ChainFront(r Resolver, rest Resolver) Resolver {
	return ChainResolver{r, rest}
}

// ChainBack returns a resolver that tries the receiver first, then r.
func ChainBack(rest Resolver, r Resolver) Resolver {
	return ChainResolver{rest, r}
}

// LinkErrorCause classifies why one particular import failed to resolve.
type LinkErrorCause int

const (
	// LinkCauseUnknownImport means no resolver produced any export for the
	// (module, name) pair.
	LinkCauseUnknownImport LinkErrorCause = iota
	// LinkCauseIncompatibleType means an export was found but its type
	// does not satisfy the import's declared type.
	LinkCauseIncompatibleType
)

// LinkError is returned from instantiation when an import fails to resolve,
// per §4.3/§7: it names the offending (module, name) and why. Index is the
// import's position in ModuleInfo.ImportSection, carried through so a
// caller can distinguish which of several imports sharing a (module, name)
// pair failed, per §4.5's Resolver.Resolve index argument and §8's boundary
// test for that scenario.
type LinkError struct {
	Module, Name string
	Index        uint32
	Cause        LinkErrorCause
	Expected     string
	Found        string
}

func (e *LinkError) Error() string {
	switch e.Cause {
	case LinkCauseIncompatibleType:
		return fmt.Sprintf("wasm: import %s.%s: incompatible type: expected %s, found %s",
			e.Module, e.Name, e.Expected, e.Found)
	default:
		return fmt.Sprintf("wasm: import %s.%s: unknown import (expected %s)", e.Module, e.Name, e.Expected)
	}
}

// checkFunctionCompat reports whether an imported function export's type
// matches the import's declared type. Function compatibility is nominal on
// shape: params and results must match exactly (§4.5).
func checkFunctionCompat(want, got *FunctionType) error {
	if !want.EqualTo(got) {
		return fmt.Errorf("expected %s, found %s", want.String(), got.String())
	}
	return nil
}

// checkTableCompat reports whether an imported table export's type is
// compatible with the import's declared type: same element type, the
// export's minimum must be >= the import's minimum, and if the import
// declares a maximum, the export must also declare one that is <= it.
func checkTableCompat(want, got *TableType) error {
	if want.ElemType != got.ElemType {
		return fmt.Errorf("element type mismatch: expected %s, found %s",
			fmt.Sprintf("%#x", want.ElemType), fmt.Sprintf("%#x", got.ElemType))
	}
	if got.Min < want.Min {
		return fmt.Errorf("minimum too small: expected >= %d, found %d", want.Min, got.Min)
	}
	if want.Max != nil {
		if got.Max == nil || *got.Max > *want.Max {
			return fmt.Errorf("maximum exceeds import's bound of %d", *want.Max)
		}
	}
	return nil
}

// checkMemoryCompat mirrors checkTableCompat for memories, plus the
// shared-memory flag, which must match exactly.
func checkMemoryCompat(want, got *MemoryType) error {
	if got.Min < want.Min {
		return fmt.Errorf("minimum too small: expected >= %d, found %d", want.Min, got.Min)
	}
	if want.Max != nil {
		if got.Max == nil || *got.Max > *want.Max {
			return fmt.Errorf("maximum exceeds import's bound of %d", *want.Max)
		}
	}
	if want.Shared != got.Shared {
		return fmt.Errorf("shared-ness mismatch: expected %v, found %v", want.Shared, got.Shared)
	}
	return nil
}

// checkGlobalCompat requires an exact match: same value type and mutability.
// Unlike tables/memories, globals have no notion of a compatible subrange.
func checkGlobalCompat(want, got *GlobalType) error {
	if want.ValType != got.ValType || want.Mutable != got.Mutable {
		return fmt.Errorf("expected %s (mutable=%v), found %s (mutable=%v)",
			api.ValueTypeName(want.ValType), want.Mutable, api.ValueTypeName(got.ValType), got.Mutable)
	}
	return nil
}

// checkTagCompat requires the tag's payload function type to match exactly.
func checkTagCompat(want, got *TagType) error {
	if want.Kind != got.Kind {
		return fmt.Errorf("tag kind mismatch")
	}
	if !want.Payload.EqualTo(&got.Payload) {
		return fmt.Errorf("tag payload mismatch: expected %s, found %s", want.Payload.String(), got.Payload.String())
	}
	return nil
}
