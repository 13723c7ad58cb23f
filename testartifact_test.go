package wasmvm

import "github.com/wasmvm/wasmvm/internal/wasm"

// simpleArtifact is the wasmvm-side equivalent of internal/wasm's
// testArtifact: a minimal closure-backed wasm.Artifact used so these tests
// can exercise CompileModule/InstantiateModule without a real bytecode
// frontend, consistent with this core never decoding Wasm itself.
type simpleArtifact struct {
	fns []wasm.CompiledFunction
}

func (a *simpleArtifact) Functions() []wasm.CompiledFunction { return a.fns }

func (a *simpleArtifact) DynamicFunctionTrampoline(uint32) (func(ctx interface{}, params []uint64) ([]uint64, error), bool) {
	return nil, false
}

func (a *simpleArtifact) Serialize() ([]byte, error) { return nil, nil }

func newSimpleArtifact(fns ...func(ctx interface{}, params []uint64) ([]uint64, error)) *simpleArtifact {
	a := &simpleArtifact{fns: make([]wasm.CompiledFunction, len(fns))}
	for i, fn := range fns {
		a.fns[i] = wasm.CompiledFunction{LocalIndex: uint32(i), Call: fn}
	}
	return a
}

func addFn() func(ctx interface{}, params []uint64) ([]uint64, error) {
	return func(ctx interface{}, params []uint64) ([]uint64, error) {
		a, b := uint32(params[0]), uint32(params[1])
		return []uint64{uint64(a + b)}, nil
	}
}

func i32i32ToI32() *wasm.FunctionType {
	return &wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32}, Results: []wasm.ValueType{wasm.ValueTypeI32}}
}
