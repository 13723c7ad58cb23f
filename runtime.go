package wasmvm

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/sirupsen/logrus"

	"github.com/wasmvm/wasmvm/api"
	"github.com/wasmvm/wasmvm/internal/moremath"
	"github.com/wasmvm/wasmvm/internal/wasm"
)

// Runtime owns a single Store (C1) and every Module compiled, and Instance
// instantiated, through it. Closing a Runtime is the only way to release
// the objects its Store holds.
type Runtime interface {
	api.Closer

	// CompileModule registers a module whose metadata and code have already
	// been decoded and compiled into an Artifact by an external frontend:
	// this core presumes compilation and never parses Wasm bytecode itself
	// (spec's Non-goals). wasmBytes is used only as cache key material and
	// for content identity; it is not reparsed. If a Cache is configured and
	// already holds a Module compiled from the same bytes under the same
	// Features/Tunables, that Module is reused in place of info/art.
	CompileModule(ctx context.Context, wasmBytes []byte, info *wasm.ModuleInfo, art wasm.Artifact) (CompiledModule, error)

	// InstantiateModule resolves compiled's imports against resolver (nil
	// means "no imports available"), allocates its local objects, and runs
	// its start function, per §4.3.
	InstantiateModule(ctx context.Context, compiled CompiledModule, config *ModuleConfig, resolver wasm.Resolver) (api.Module, error)

	// Module looks up a previously instantiated, still-open module by name.
	Module(name string) api.Module

	// NewHostModuleBuilder begins defining a set of host functions (and
	// memories) importable under moduleName.
	NewHostModuleBuilder(moduleName string) HostModuleBuilder
}

type runtime struct {
	store    *wasm.Store
	features wasm.Features
	tunables wasm.Tunables
	ctx      context.Context
	cache    Cache
	log          *logrus.Logger
	metrics      *Metrics
	nanCanonical bool

	modules map[string]*moduleInstance
}

// NewRuntime returns a Runtime configured with NewRuntimeConfig's defaults.
func NewRuntime(ctx context.Context) Runtime {
	return NewRuntimeWithConfig(ctx, NewRuntimeConfig())
}

// NewRuntimeWithConfig returns a Runtime configured by cfg.
func NewRuntimeWithConfig(ctx context.Context, cfg *RuntimeConfig) Runtime {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg == nil {
		cfg = NewRuntimeConfig()
	}
	return &runtime{
		store:        wasm.NewStore(),
		features:     cfg.enabledFeatures,
		tunables:     cfg.tunables,
		ctx:          ctx,
		cache:        cfg.cache,
		log:          cfg.log,
		metrics:      cfg.metrics,
		nanCanonical: cfg.nanCanonical,
		modules:      map[string]*moduleInstance{},
	}
}

// Close forgets every module registered by name in this runtime (the Store itself,
// and every object it owns, becomes unreachable once the Runtime is, and is
// reclaimed by the garbage collector: there is no explicit native
// deallocation step to run, per the memory-management note in §9).
func (r *runtime) Close(ctx context.Context) error {
	for name := range r.modules {
		delete(r.modules, name)
	}
	return nil
}

func (r *runtime) CompileModule(ctx context.Context, wasmBytes []byte, info *wasm.ModuleInfo, art wasm.Artifact) (CompiledModule, error) {
	key := wasm.ComputeCacheKey(wasmBytes, r.features, r.tunables)
	if r.cache != nil {
		if cached, ok := r.cacheGet(key); ok {
			r.metrics.observeCacheHit()
			return &compiledModule{module: cached}, nil
		}
	}

	if err := info.Validate(); err != nil {
		return nil, &api.CompileError{Kind: api.CompileErrorWasm, Err: err}
	}

	mod := wasm.NewModule(info, art)
	if r.cache != nil {
		r.cachePut(key, mod)
	}
	return &compiledModule{module: mod}, nil
}

// cacheGet/cachePut go through the unexported *cache methods directly,
// since Cache (the public interface) only exposes configuration, not the
// get/put path CompileModule needs. This core has no
// generic way to rebuild an Artifact from serialized bytes alone (it never
// decodes Wasm itself), so an on-disk entry can only be consulted once the
// same process has already held the live Artifact in memory this run.
func (r *runtime) cacheGet(key wasm.CacheKey) (*wasm.Module, bool) {
	c, ok := r.cache.(*cache)
	if !ok {
		return nil, false
	}
	warnedDiskMiss := false
	mod, found := c.get(key, func([]byte) (wasm.Artifact, error) {
		warnedDiskMiss = true
		return nil, fmt.Errorf("wasm: no artifact deserializer configured for this runtime")
	})
	if warnedDiskMiss && r.log != nil {
		r.log.WithField("cacheKey", fmt.Sprintf("%016x", uint64(key))).
			Warn("on-disk cache entry found but cannot be deserialized in this process; recompiling")
	}
	return mod, found
}

func (r *runtime) cachePut(key wasm.CacheKey, mod *wasm.Module) {
	if c, ok := r.cache.(*cache); ok {
		_ = c.put(key, mod)
	}
}

func (r *runtime) InstantiateModule(ctx context.Context, compiled CompiledModule, config *ModuleConfig, resolver wasm.Resolver) (api.Module, error) {
	cm, ok := compiled.(*compiledModule)
	if !ok {
		return nil, fmt.Errorf("wasm: compiled module not produced by this runtime")
	}
	if config == nil {
		config = NewModuleConfig()
	}
	if resolver == nil {
		resolver = wasm.MapResolver{}
	}

	name := cm.module.Info.Name
	if config.name != "" {
		name = config.name
	}

	info := *cm.module.Info
	info.Name = name
	if config.overrideStartFunction != nil {
		if *config.overrideStartFunction == "" {
			info.StartFunctionIndex = nil
		} else if idx, ok := exportedFuncIndex(&info, *config.overrideStartFunction); ok {
			info.StartFunctionIndex = &idx
		}
	}
	effective := wasm.NewModule(&info, cm.module.Artifact)

	inst, err := wasm.Instantiate(r.store, effective, r.tunables, resolver)
	if err != nil {
		return nil, err
	}

	mi := &moduleInstance{r: r, inst: inst, ctx: r.ctx}
	r.modules[name] = mi
	return mi, nil
}

func (r *runtime) Module(name string) api.Module {
	if mi, ok := r.modules[name]; ok {
		return mi
	}
	return nil
}

func exportedFuncIndex(info *wasm.ModuleInfo, name string) (uint32, bool) {
	for _, exp := range info.ExportSection {
		if exp.Name == name && exp.Type == wasm.ExternTypeFunc {
			return exp.Index, true
		}
	}
	return 0, false
}

// CompiledModule is a module ready to instantiate, per CompiledCode of the
// original WebAssembly semantic phases: decoded, validated, and compiled.
type CompiledModule interface {
	// Close releases engine-side resources retained for this module
	// independent of any instance (e.g. a cache entry kept alive only by
	// this handle).
	Close(ctx context.Context) error
}

type compiledModule struct {
	module *wasm.Module
}

func (c *compiledModule) Close(context.Context) error { return nil }

// moduleInstance implements api.Module over an internal/wasm.Instance.
type moduleInstance struct {
	r    *runtime
	inst *wasm.Instance
	ctx  context.Context
}

func (m *moduleInstance) String() string { return "module[" + m.inst.Module.Info.Name + "]" }

func (m *moduleInstance) Name() string { return m.inst.Module.Info.Name }

func (m *moduleInstance) Memory() api.Memory {
	mem := m.inst.DefinedMemory()
	if mem == nil {
		return nil
	}
	return &memoryWrapper{mem}
}

func (m *moduleInstance) ExportedFunction(name string) api.Function {
	exp, ok := m.inst.Exports()[name]
	if !ok || exp.Type != wasm.ExternTypeFunc {
		return nil
	}
	fn, err := m.r.store.GetFunction(exp.Func)
	if err != nil {
		return nil
	}
	return &functionHandle{r: m.r, fn: fn, mod: m}
}

func (m *moduleInstance) ExportedMemory(name string) api.Memory {
	exp, ok := m.inst.Exports()[name]
	if !ok || exp.Type != wasm.ExternTypeMemory {
		return nil
	}
	mem, err := m.r.store.GetMemory(exp.Memory)
	if err != nil {
		return nil
	}
	return &memoryWrapper{mem}
}

func (m *moduleInstance) ExportedGlobal(name string) api.Global {
	exp, ok := m.inst.Exports()[name]
	if !ok || exp.Type != wasm.ExternTypeGlobal {
		return nil
	}
	g, err := m.r.store.GetGlobal(exp.Global)
	if err != nil {
		return nil
	}
	if g.Type.Mutable {
		return &mutableGlobalWrapper{globalWrapper{g}}
	}
	return &globalWrapper{g}
}

func (m *moduleInstance) CloseWithExitCode(ctx context.Context, exitCode uint32) error {
	delete(m.r.modules, m.inst.Module.Info.Name)
	return nil
}

func (m *moduleInstance) Close(ctx context.Context) error {
	return m.CloseWithExitCode(ctx, 0)
}

// globalWrapper implements api.Global.
type globalWrapper struct{ g *wasm.GlobalInstance }

func (g *globalWrapper) String() string           { return fmt.Sprintf("global(%s)", api.ValueTypeName(g.Type())) }
func (g *globalWrapper) Type() api.ValueType       { return g.g.Type.ValType }
func (g *globalWrapper) Get(context.Context) uint64 { return g.g.Get() }

// mutableGlobalWrapper adds Set, implementing api.MutableGlobal.
type mutableGlobalWrapper struct{ globalWrapper }

func (g *mutableGlobalWrapper) Set(_ context.Context, v uint64) { g.g.Set(v) }

// memoryWrapper implements api.Memory over a *wasm.MemoryInstance.
type memoryWrapper struct{ m *wasm.MemoryInstance }

func (w *memoryWrapper) Size(context.Context) uint32 { return w.m.SizePages() * wasm.PageSize }

func (w *memoryWrapper) Grow(_ context.Context, deltaPages uint32) (uint32, bool) {
	return w.m.Grow(deltaPages)
}

func (w *memoryWrapper) ReadByte(_ context.Context, offset uint32) (byte, bool) {
	b, ok := w.m.Read(offset, 1)
	if !ok {
		return 0, false
	}
	return b[0], true
}

func (w *memoryWrapper) ReadUint16Le(_ context.Context, offset uint32) (uint16, bool) {
	b, ok := w.m.Read(offset, 2)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint16(b), true
}

func (w *memoryWrapper) ReadUint32Le(_ context.Context, offset uint32) (uint32, bool) {
	b, ok := w.m.Read(offset, 4)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

func (w *memoryWrapper) ReadFloat32Le(ctx context.Context, offset uint32) (float32, bool) {
	v, ok := w.ReadUint32Le(ctx, offset)
	return math.Float32frombits(v), ok
}

func (w *memoryWrapper) ReadUint64Le(_ context.Context, offset uint32) (uint64, bool) {
	b, ok := w.m.Read(offset, 8)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b), true
}

func (w *memoryWrapper) ReadFloat64Le(ctx context.Context, offset uint32) (float64, bool) {
	v, ok := w.ReadUint64Le(ctx, offset)
	return math.Float64frombits(v), ok
}

func (w *memoryWrapper) Read(_ context.Context, offset, byteCount uint32) ([]byte, bool) {
	return w.m.Read(offset, byteCount)
}

func (w *memoryWrapper) WriteByte(_ context.Context, offset uint32, v byte) bool {
	return w.m.Write(offset, []byte{v})
}

func (w *memoryWrapper) WriteUint16Le(_ context.Context, offset uint32, v uint16) bool {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return w.m.Write(offset, buf[:])
}

func (w *memoryWrapper) WriteUint32Le(_ context.Context, offset, v uint32) bool {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return w.m.Write(offset, buf[:])
}

func (w *memoryWrapper) WriteFloat32Le(ctx context.Context, offset uint32, v float32) bool {
	return w.WriteUint32Le(ctx, offset, math.Float32bits(v))
}

func (w *memoryWrapper) WriteUint64Le(_ context.Context, offset uint32, v uint64) bool {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return w.m.Write(offset, buf[:])
}

func (w *memoryWrapper) WriteFloat64Le(ctx context.Context, offset uint32, v float64) bool {
	return w.WriteUint64Le(ctx, offset, math.Float64bits(v))
}

func (w *memoryWrapper) Write(_ context.Context, offset uint32, v []byte) bool {
	return w.m.Write(offset, v)
}

// functionHandle implements both api.Function and api.FunctionDefinition
// over an internal/wasm.FunctionInstance, delegating every invocation to
// the call gate (internal/wasm.Call).
type functionHandle struct {
	r   *runtime
	fn  *wasm.FunctionInstance
	mod *moduleInstance
}

func (f *functionHandle) Definition() api.FunctionDefinition { return f }

func (f *functionHandle) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	results, err := wasm.Call(ctx, f.r.store, f.fn, f.mod, params)
	var rerr *wasm.RuntimeError
	f.r.metrics.observeCall(errors.As(err, &rerr) && rerr.Kind == wasm.RuntimeErrorTrap)
	if err == nil && f.r.nanCanonical {
		f.canonicalizeNaNs(results)
	}
	return results, err
}

// canonicalizeNaNs rewrites every float32/float64 result that holds a NaN
// payload to this runtime's canonical bit pattern, per
// RuntimeConfig.WithNaNCanonicalization.
func (f *functionHandle) canonicalizeNaNs(results []uint64) {
	for i, rt := range f.fn.Type.Results {
		switch rt {
		case api.ValueTypeF32:
			v := moremath.CanonicalizeNaN32(math.Float32frombits(uint32(results[i])))
			results[i] = uint64(math.Float32bits(v))
		case api.ValueTypeF64:
			v := moremath.CanonicalizeNaN64(math.Float64frombits(results[i]))
			results[i] = math.Float64bits(v)
		}
	}
}

func (f *functionHandle) ModuleName() string { return f.fn.ModuleName }
func (f *functionHandle) Index() uint32      { return f.fn.Index }
func (f *functionHandle) Name() string       { return f.fn.Name }

func (f *functionHandle) DebugName() string {
	if f.fn.Name != "" {
		return f.fn.ModuleName + "." + f.fn.Name
	}
	return f.fn.ModuleName + ".$" + fmt.Sprint(f.fn.Index)
}

func (f *functionHandle) Import() (moduleName, name string, isImport bool) {
	return "", "", false
}

func (f *functionHandle) ExportNames() []string {
	var names []string
	for name, exp := range f.mod.inst.Exports() {
		if exp.Type == wasm.ExternTypeFunc {
			if fn, err := f.r.store.GetFunction(exp.Func); err == nil && fn == f.fn {
				names = append(names, name)
			}
		}
	}
	return names
}

func (f *functionHandle) GoFunc() *reflect.Value {
	return nil // host functions here are registered as closures, not reflect.Values retained on the definition.
}

func (f *functionHandle) ParamTypes() []api.ValueType  { return f.fn.Type.Params }
func (f *functionHandle) ParamNames() []string         { return f.paramNames() }
func (f *functionHandle) ResultTypes() []api.ValueType { return f.fn.Type.Results }

func (f *functionHandle) paramNames() []string {
	if f.fn.HostFunc != nil {
		return f.fn.HostFunc.ParamNames
	}
	return nil
}
