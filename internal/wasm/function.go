package wasm

import "github.com/wasmvm/wasmvm/api"

// FunctionInstance is the store-owned runtime identity of one function,
// whether it originates from a Wasm-defined body (backed by the artifact)
// or a host closure. The call gate (callgate.go) is the only place that
// distinguishes the two, by checking HostFunc.
type FunctionInstance struct {
	MaybeInline

	ModuleName string
	Name       string
	Index      uint32
	Type       *FunctionType

	// LocalFuncIndex and artifact identify a Wasm-defined function's entry
	// point. Set only when HostFunc == nil.
	LocalFuncIndex uint32
	artifact       Artifact

	// HostFunc is set when this function is a host closure: either a static
	// (signature-known) or dynamic host function, per §4.6's "Host
	// functions" paragraph.
	HostFunc *HostFunc
}

// HostFuncKind distinguishes static host functions (Go func values
// converted by reflection, or GoFunction/GoModuleFunction) from dynamic
// ones (arbitrary Value slices in and out).
type HostFuncKind int

const (
	HostFuncStatic HostFuncKind = iota
	HostFuncDynamic
)

// HostFunc is a host-defined function as registered through
// Function.NewStatic / Function.NewDynamic (§6's host boundary).
type HostFunc struct {
	Kind HostFuncKind

	// Go is set for HostFuncStatic: it wraps a reflect.Value func or a
	// GoFunction/GoModuleFunction, already normalized to the
	// stack-in/stack-out calling convention by hostfunc.go.
	Go func(ctx interface{}, mod api.Module, stack []uint64)

	// Dynamic is set for HostFuncDynamic: it receives and returns typed
	// Values directly, validated against Type by the call gate before and
	// after invocation.
	Dynamic func(ctx interface{}, mod api.Module, params []api.Value) ([]api.Value, error)

	ParamNames  []string
	ResultNames []string
}
