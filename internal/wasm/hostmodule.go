package wasm

// HostModuleSpec describes a set of host-defined functions and memories to
// expose as a module's exports, bypassing the ordinary import-resolution
// and segment-application steps of Instantiate: a host module has no
// imports of its own and no code to decode, so §4.3's six steps collapse to
// "allocate, then export" for it.
type HostModuleSpec struct {
	ModuleName string
	// FuncOrder lists exported function names in declaration order, so the
	// resulting index namespace is stable (insertion order matters for ABIs
	// like Emscripten's invoke_* family).
	FuncOrder []string
	Funcs     map[string]*HostFunc
	FuncTypes map[string]*FunctionType

	MemOrder []string
	Memories map[string]MemoryType
}

// InstantiateHostModule builds an Instance directly from spec: every
// function and memory it names becomes a locally owned object in store,
// exported under the same name it was declared with.
func InstantiateHostModule(store *Store, tunables Tunables, spec HostModuleSpec) (*Instance, error) {
	instID := newInstanceID()
	inst := &Instance{Store: store, id: instID, exports: map[string]Export{}}

	for i, name := range spec.FuncOrder {
		hf := spec.Funcs[name]
		ft := spec.FuncTypes[name]
		fn := &FunctionInstance{
			MaybeInline: MaybeInline{Owner: OwnerInline, InstanceID: instID},
			ModuleName:  spec.ModuleName,
			Name:        name,
			Index:       uint32(i),
			Type:        ft,
			HostFunc:    hf,
		}
		h := store.InsertFunction(fn)
		inst.funcHandles = append(inst.funcHandles, h)
		store.FrameInfo().Register(fn, spec.ModuleName+"."+name, paramsOf(ft), resultsOf(ft))
		inst.exports[name] = Export{Type: ExternTypeFunc, Func: h}
	}

	for _, name := range spec.MemOrder {
		mt := spec.Memories[name]
		style := tunables.ChooseMemoryStyle(mt.Max)
		m, err := NewMemoryInstance(mt, style, OwnerInline, instID)
		if err != nil {
			return nil, &InstantiationError{Kind: InstantiationErrorResource, Msg: err.Error()}
		}
		h := store.InsertMemory(m)
		inst.memHandles = append(inst.memHandles, h)
		inst.exports[name] = Export{Type: ExternTypeMemory, Memory: h}
	}

	mInfo := &ModuleInfo{Name: spec.ModuleName}
	inst.Module = NewModule(mInfo, nopArtifact{})
	inst.Module.onInstantiated()
	return inst, nil
}

// nopArtifact backs a host module's Module, which has no Wasm-defined
// functions of its own to compile.
type nopArtifact struct{}

func (nopArtifact) Functions() []CompiledFunction { return nil }
func (nopArtifact) DynamicFunctionTrampoline(uint32) (func(ctx interface{}, params []uint64) ([]uint64, error), bool) {
	return nil, false
}
func (nopArtifact) Serialize() ([]byte, error) { return nil, nil }
