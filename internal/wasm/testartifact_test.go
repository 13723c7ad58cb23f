package wasm

// testArtifact is a minimal Artifact built from plain Go closures, standing
// in for a real compiler backend in tests: this package presumes its inputs
// are already compiled (see package doc), so exercising C3/C6/C7 without a
// bytecode interpreter requires handing Instantiate a ModuleInfo paired with
// compiled entry points supplied directly as Go functions.
type testArtifact struct {
	fns []CompiledFunction
}

func (a *testArtifact) Functions() []CompiledFunction { return a.fns }

func (a *testArtifact) DynamicFunctionTrampoline(uint32) (func(ctx interface{}, params []uint64) ([]uint64, error), bool) {
	return nil, false
}

func (a *testArtifact) Serialize() ([]byte, error) { return nil, nil }

// newTestArtifact builds a testArtifact from a list of calling conventions,
// one per locally defined function, in LocalFuncIndex order.
func newTestArtifact(fns ...func(ctx interface{}, params []uint64) ([]uint64, error)) *testArtifact {
	a := &testArtifact{fns: make([]CompiledFunction, len(fns))}
	for i, fn := range fns {
		a.fns[i] = CompiledFunction{LocalIndex: uint32(i), Call: fn}
	}
	return a
}

// constFunc returns a CompiledFunction-compatible closure that always
// returns results, ignoring its params and the *Store passed as ctx.
func constFunc(results ...uint64) func(ctx interface{}, params []uint64) ([]uint64, error) {
	return func(ctx interface{}, params []uint64) ([]uint64, error) {
		return results, nil
	}
}

// addFunc returns an i32.add-shaped CompiledFunction: two i32 params, one
// i32 result, the low 32 bits of each param summed.
func addFunc() func(ctx interface{}, params []uint64) ([]uint64, error) {
	return func(ctx interface{}, params []uint64) ([]uint64, error) {
		return []uint64{uint64(uint32(params[0]) + uint32(params[1]))}, nil
	}
}

// trappingFunc returns a CompiledFunction that panics with a wasmruntime
// trap sentinel, simulating what a real compiled body does on an
// unreachable instruction.
func trappingFunc(sentinel error) func(ctx interface{}, params []uint64) ([]uint64, error) {
	return func(ctx interface{}, params []uint64) ([]uint64, error) {
		panic(sentinel)
	}
}

// i32i32ToI32 returns the shared (i32,i32)->i32 signature used by several tests.
func i32i32ToI32() *FunctionType {
	return &FunctionType{Params: []ValueType{ValueTypeI32, ValueTypeI32}, Results: []ValueType{ValueTypeI32}}
}

func noParamsToI32() *FunctionType {
	return &FunctionType{Results: []ValueType{ValueTypeI32}}
}

func noParamsNoResults() *FunctionType {
	return &FunctionType{}
}
