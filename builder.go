package wasmvm

import (
	"context"

	"github.com/wasmvm/wasmvm/api"
	"github.com/wasmvm/wasmvm/internal/wasm"
)

// HostFunctionBuilder defines a host function (in Go), so that a
// WebAssembly binary (e.g. %.wasm file) can import and use it.
//
// Here's an example of an addition function:
//
//	hostModuleBuilder.NewFunctionBuilder().
//		WithFunc(func(cxt context.Context, x, y uint32) uint32 {
//			return x + y
//		}).
//		Export("add")
//
// # Memory
//
// All host functions act on the importing api.Module, including any memory
// exported in its binary (%.wasm file). If you are reading or writing memory,
// it is sand-boxed Wasm memory defined by the guest.
//
// Below, `m` is the importing module, defined in Wasm. `fn` is a host function
// added via Export. This means that `x` was read from memory defined in Wasm,
// not arbitrary memory in the process.
//
//	fn := func(m api.Module, offset uint32) uint32 {
//		x, _ := m.Memory().ReadUint32Le(context.Background(), offset)
//		return x
//	}
//
// # Notes
//
//   - This is an interface for decoupling, not third-party implementations.
//     All implementations are in this package.
type HostFunctionBuilder interface {
	// WithGoFunction is an advanced feature for those who need higher
	// performance than WithFunc at the cost of more complexity.
	//
	// Here's an example addition function:
	//
	//	builder.WithGoFunction(api.GoFunction(func(ctx interface{}, stack []uint64) {
	//		x, y := int32(stack[0]), int32(stack[1])
	//		sum := x + y
	//		stack[0] = api.EncodeI32(sum)
	//	}), []api.ValueType{api.ValueTypeI32, api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32})
	//
	// As you can see above, defining in this way implies knowledge of which
	// WebAssembly api.ValueType is appropriate for each parameter and result.
	//
	// See WithGoModuleFunction if you also need to access the calling module.
	WithGoFunction(fn api.GoFunction, params, results []api.ValueType) HostFunctionBuilder

	// WithGoModuleFunction is an advanced feature for those who need higher
	// performance than WithFunc at the cost of more complexity.
	//
	// Here's an example addition function that loads operands from memory:
	//
	//	builder.WithGoModuleFunction(api.GoModuleFunction(func(ctx interface{}, m api.Module, stack []uint64) {
	//		mem := m.Memory()
	//		offset := uint32(stack[0])
	//
	//		x, _ := mem.ReadUint32Le(context.Background(), offset)
	//		y, _ := mem.ReadUint32Le(context.Background(), offset + 4) // 32 bits == 4 bytes!
	//		sum := x + y
	//
	//		stack[0] = uint64(sum)
	//	}), []api.ValueType{api.ValueTypeI32}, []api.ValueType{api.ValueTypeI32})
	//
	// As you can see above, defining in this way implies knowledge of which
	// WebAssembly api.ValueType is appropriate for each parameter and result.
	//
	// See WithGoFunction if you don't need access to the calling module.
	WithGoModuleFunction(fn api.GoModuleFunction, params, results []api.ValueType) HostFunctionBuilder

	// WithFunc uses reflect.Value to map a go `func` to a WebAssembly
	// compatible Signature. An input that isn't a `func` will fail to
	// instantiate.
	//
	// Here's an example of an addition function:
	//
	//	builder.WithFunc(func(cxt context.Context, x, y uint32) uint32 {
	//		return x + y
	//	})
	//
	// # Defining a function
	//
	// Except for an optional leading context.Context or api.Module, all
	// parameters or result types must map to WebAssembly numeric value types.
	// This means uint32, int32, uint64, int64, float32 or float64.
	//
	// api.Module may be specified as the first parameter, in place of
	// context.Context, usually to access memory. This is important because
	// there are only numeric types in Wasm. The only way to share other data
	// is via writing memory and sharing offsets. Only the first parameter is
	// checked for either type, so one function cannot receive both.
	//
	//	builder.WithFunc(func(m api.Module, offset uint32) uint32 {
	//		mem := m.Memory()
	//		x, _ := mem.ReadUint32Le(context.Background(), offset)
	//		y, _ := mem.ReadUint32Le(context.Background(), offset + 4) // 32 bits == 4 bytes!
	//		return x + y
	//	})
	//
	// This example calls another function exported in the api.Module:
	//
	//	builder.WithFunc(func(m api.Module, offset, byteCount uint32) uint32 {
	//		fn := m.ExportedFunction("__read")
	//		results, err := fn.Call(context.Background(), uint64(offset), uint64(byteCount))
	//	--snip--
	WithFunc(interface{}) HostFunctionBuilder

	// WithName defines the optional module-local name of this function, e.g.
	// "random_get"
	//
	// Note: This is not required to match the Export name.
	WithName(name string) HostFunctionBuilder

	// WithParameterNames defines optional parameter names of the function
	// signature, e.x. "buf", "buf_len"
	//
	// Note: When defined, names must be provided for all parameters.
	WithParameterNames(names ...string) HostFunctionBuilder

	// WithResultNames defines optional result names of the function
	// signature, e.x. "errno"
	//
	// Note: When defined, names must be provided for all results.
	WithResultNames(names ...string) HostFunctionBuilder

	// Export exports this to the HostModuleBuilder as the given name, e.g.
	// "random_get"
	Export(name string) HostModuleBuilder
}

// HostModuleBuilder is a way to define host functions (in Go), so that a
// WebAssembly binary (e.g. %.wasm file) can import and use them.
//
// Specifically, this implements the host side of an Application Binary
// Interface (ABI) like WASI or AssemblyScript.
//
// For example, this defines and instantiates a module named "env" with one
// function:
//
//	ctx := context.Background()
//	r := NewRuntime(ctx)
//	defer r.Close(ctx) // This closes everything this Runtime created.
//
//	hello := func() {
//		println("hello!")
//	}
//	env, _ := r.NewHostModuleBuilder("env").
//		NewFunctionBuilder().WithFunc(hello).Export("hello").
//		Instantiate(ctx)
//
// Compile and Instantiate both perform the same work for a host module:
// unlike a guest module, there is no decoded code to share between separate
// instantiations, so each call to either produces one usable module
// registered under its builder's name.
//
// See HostFunctionBuilder for valid host function signatures and other details.
//
// # Notes
//
//   - This is an interface for decoupling, not third-party implementations.
//     All implementations are in this package.
//   - HostModuleBuilder is mutable: each method returns the same instance for
//     chaining.
//   - methods do not return errors, to allow chaining. Any validation errors
//     are deferred until Compile.
//   - Functions are indexed in order of calls to NewFunctionBuilder as
//     insertion ordering is needed by ABI such as Emscripten (invoke_*).
type HostModuleBuilder interface {
	// Note: until golang/go#5860, we can't use example tests to embed code in interface godocs.

	// ExportMemory adds linear memory, which a WebAssembly module can import and become available via api.Memory.
	// If a memory is already exported with the same name, this overwrites it.
	//
	// # Parameters
	//
	//   - name - the name to export. Ex "memory" for wasi_snapshot_preview1.ModuleSnapshotPreview1
	//   - minPages - the possibly zero initial size in pages (65536 bytes per page).
	//
	// For example, the WebAssembly 1.0 Text Format below is the equivalent of this builder method:
	//	// (memory (export "memory") 1)
	//	builder.ExportMemory("memory", 1)
	//
	// # Notes
	//
	//   - No maximum is declared, so growth is not bounded by one. To bound it, use ExportMemoryWithMax.
	//   - Version 1.0 (20191205) of the WebAssembly spec allows at most one memory per module.
	//
	// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#memory-section%E2%91%A0
	ExportMemory(name string, minPages uint32) HostModuleBuilder

	// ExportMemoryWithMax is like ExportMemory, but can prevent overuse of memory.
	//
	// For example, the WebAssembly 1.0 Text Format below is the equivalent of this builder method:
	//	// (memory (export "memory") 1 1)
	//	builder.ExportMemoryWithMax("memory", 1, 1)
	//
	// Note: Grow fails once the memory would exceed maxPages.
	ExportMemoryWithMax(name string, minPages, maxPages uint32) HostModuleBuilder

	// NewFunctionBuilder begins the definition of a host function.
	NewFunctionBuilder() HostFunctionBuilder

	// Compile instantiates the host module in the Runtime's store, registers
	// it under the builder's module name, and returns its CompiledModule.
	Compile(context.Context) (CompiledModule, error)

	// Instantiate is a convenience that calls Compile and returns the module
	// Compile registered. It fails for the same reasons Compile does.
	//
	// Here's an example:
	//
	//	ctx := context.Background()
	//	r := NewRuntime(ctx)
	//	defer r.Close(ctx) // This closes everything this Runtime created.
	//
	//	hello := func() {
	//		println("hello!")
	//	}
	//	env, _ := r.NewHostModuleBuilder("env").
	//		NewFunctionBuilder().WithFunc(hello).Export("hello").
	//		Instantiate(ctx)
	//
	// # Notes
	//
	//   - Closing the Runtime has the same effect as closing the result.
	//   - Fields in the builder are copied during instantiation: Later changes do not affect the instantiated result.
	Instantiate(context.Context) (api.Module, error)
}

// hostModuleBuilder implements HostModuleBuilder
type hostModuleBuilder struct {
	r          *runtime
	moduleName string
	funcOrder  []string
	nameToFunc map[string]*wasm.HostFunc
	nameToType map[string]*wasm.FunctionType
	memOrder   []string
	nameToMem  map[string]wasm.MemoryType
	pending    []error
}

// NewHostModuleBuilder returns a builder for defining host functions (and
// memories) a compiled guest module can import by moduleName.
func (r *runtime) NewHostModuleBuilder(moduleName string) HostModuleBuilder {
	return &hostModuleBuilder{
		r:          r,
		moduleName: moduleName,
		nameToFunc: map[string]*wasm.HostFunc{},
		nameToType: map[string]*wasm.FunctionType{},
		nameToMem:  map[string]wasm.MemoryType{},
	}
}

// hostFunctionBuilder implements HostFunctionBuilder
type hostFunctionBuilder struct {
	b           *hostModuleBuilder
	hostFunc    *wasm.HostFunc
	funcType    *wasm.FunctionType
	name        string
	paramNames  []string
	resultNames []string
}

// WithGoFunction implements HostFunctionBuilder.WithGoFunction
func (h *hostFunctionBuilder) WithGoFunction(fn api.GoFunction, params, results []api.ValueType) HostFunctionBuilder {
	h.hostFunc = wasm.NewGoFunction(&wasm.FunctionType{Params: params, Results: results}, fn)
	h.funcType = &wasm.FunctionType{Params: params, Results: results}
	return h
}

// WithGoModuleFunction implements HostFunctionBuilder.WithGoModuleFunction
func (h *hostFunctionBuilder) WithGoModuleFunction(fn api.GoModuleFunction, params, results []api.ValueType) HostFunctionBuilder {
	h.hostFunc = wasm.NewGoModuleFunction(&wasm.FunctionType{Params: params, Results: results}, fn)
	h.funcType = &wasm.FunctionType{Params: params, Results: results}
	return h
}

// WithFunc implements HostFunctionBuilder.WithFunc
func (h *hostFunctionBuilder) WithFunc(fn interface{}) HostFunctionBuilder {
	hostFunc, ft, err := wasm.NewGoReflectFunc(fn)
	if err != nil {
		// Deferred: Compile surfaces this once it validates every function.
		h.b.pending = append(h.b.pending, err)
		return h
	}
	h.hostFunc = hostFunc
	h.funcType = ft
	return h
}

// WithName implements HostFunctionBuilder.WithName
func (h *hostFunctionBuilder) WithName(name string) HostFunctionBuilder {
	h.name = name
	return h
}

// WithParameterNames implements HostFunctionBuilder.WithParameterNames
func (h *hostFunctionBuilder) WithParameterNames(names ...string) HostFunctionBuilder {
	h.paramNames = names
	return h
}

// WithResultNames implements HostFunctionBuilder.WithResultNames
func (h *hostFunctionBuilder) WithResultNames(names ...string) HostFunctionBuilder {
	h.resultNames = names
	return h
}

// Export implements HostFunctionBuilder.Export
func (h *hostFunctionBuilder) Export(exportName string) HostModuleBuilder {
	if h.hostFunc == nil {
		return h.b
	}
	if len(h.paramNames) != 0 {
		h.hostFunc.ParamNames = h.paramNames
	}
	if len(h.resultNames) != 0 {
		h.hostFunc.ResultNames = h.resultNames
	}
	h.b.exportFunc(exportName, h.hostFunc, h.funcType)
	return h.b
}

func (b *hostModuleBuilder) exportFunc(name string, fn *wasm.HostFunc, ft *wasm.FunctionType) {
	if _, exists := b.nameToFunc[name]; !exists {
		b.funcOrder = append(b.funcOrder, name)
	}
	b.nameToFunc[name] = fn
	b.nameToType[name] = ft
}

// ExportMemory implements HostModuleBuilder.ExportMemory
func (b *hostModuleBuilder) ExportMemory(name string, minPages uint32) HostModuleBuilder {
	return b.exportMemory(name, wasm.MemoryType{Min: uint64(minPages)})
}

// ExportMemoryWithMax implements HostModuleBuilder.ExportMemoryWithMax
func (b *hostModuleBuilder) ExportMemoryWithMax(name string, minPages, maxPages uint32) HostModuleBuilder {
	max := uint64(maxPages)
	return b.exportMemory(name, wasm.MemoryType{Min: uint64(minPages), Max: &max})
}

func (b *hostModuleBuilder) exportMemory(name string, mt wasm.MemoryType) HostModuleBuilder {
	if _, exists := b.nameToMem[name]; !exists {
		b.memOrder = append(b.memOrder, name)
	}
	b.nameToMem[name] = mt
	return b
}

// NewFunctionBuilder implements HostModuleBuilder.NewFunctionBuilder
func (b *hostModuleBuilder) NewFunctionBuilder() HostFunctionBuilder {
	return &hostFunctionBuilder{b: b}
}

// Compile implements HostModuleBuilder.Compile
func (b *hostModuleBuilder) Compile(ctx context.Context) (CompiledModule, error) {
	if len(b.pending) != 0 {
		return nil, b.pending[0]
	}
	inst, err := wasm.InstantiateHostModule(b.r.store, b.r.tunables, wasm.HostModuleSpec{
		ModuleName: b.moduleName,
		FuncOrder:  b.funcOrder,
		Funcs:      b.nameToFunc,
		FuncTypes:  b.nameToType,
		MemOrder:   b.memOrder,
		Memories:   b.nameToMem,
	})
	if err != nil {
		return nil, err
	}
	mi := &moduleInstance{r: b.r, inst: inst, ctx: b.r.ctx}
	b.r.modules[b.moduleName] = mi
	return &compiledModule{module: inst.Module}, nil
}

// Instantiate implements HostModuleBuilder.Instantiate
func (b *hostModuleBuilder) Instantiate(ctx context.Context) (api.Module, error) {
	if _, err := b.Compile(ctx); err != nil {
		return nil, err
	}
	return b.r.modules[b.moduleName], nil
}
