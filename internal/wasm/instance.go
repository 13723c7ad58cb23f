package wasm

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/wasmvm/wasmvm/api"
)

var nextInstanceID uint64

func newInstanceID() uint64 { return atomic.AddUint64(&nextInstanceID, 1) }

// InstantiationErrorKind classifies why Instantiate failed, per §7.
type InstantiationErrorKind int

const (
	InstantiationErrorLink InstantiationErrorKind = iota
	InstantiationErrorStart
	InstantiationErrorResource
)

// InstantiationError is returned from Instantiate.
type InstantiationError struct {
	Kind  InstantiationErrorKind
	Link  *LinkError
	Start *RuntimeError
	Msg   string
}

func (e *InstantiationError) Error() string {
	switch e.Kind {
	case InstantiationErrorLink:
		return e.Link.Error()
	case InstantiationErrorStart:
		return fmt.Sprintf("wasm: start function trapped: %s", e.Start.Error())
	default:
		return fmt.Sprintf("wasm: instantiation failed: %s", e.Msg)
	}
}

func (e *InstantiationError) Unwrap() error {
	switch e.Kind {
	case InstantiationErrorLink:
		return e.Link
	case InstantiationErrorStart:
		return e.Start
	default:
		return nil
	}
}

// Instance is the live, store-owned result of instantiating a Module (§4):
// a VMContext plus a back-reference to the Module it was built from, which
// this implementation keeps alive simply by holding a Go pointer to it (I5).
type Instance struct {
	Module *Module
	Store  *Store

	id uint64

	ctx VMContext

	// handles mirrors ctx's defined-object slices as store handles, so
	// exports and host-held references can be looked up without walking the
	// VMContext pointer arithmetic a real generated-code caller would do.
	funcHandles   []Handle[FunctionInstance]
	tableHandles  []Handle[TableInstance]
	memHandles    []Handle[MemoryInstance]
	globalHandles []Handle[GlobalInstance]
	tagHandles    []Handle[TagInstance]

	exports map[string]Export
}

// Instantiate implements §4.3's six-step process: resolve imports, allocate
// local objects, assemble the VMContext, apply segments, register frame
// info, and run the start function.
func Instantiate(store *Store, mod *Module, tunables Tunables, resolver Resolver) (*Instance, error) {
	info := mod.Info
	instID := newInstanceID()

	inst := &Instance{Module: mod, Store: store, id: instID, exports: map[string]Export{}}

	// Step 1: resolve imports, in declaration order.
	for i, imp := range info.ImportSection {
		exp, ok := resolver.Resolve(uint32(i), imp.Module, imp.Name)
		if !ok {
			return nil, &InstantiationError{Kind: InstantiationErrorLink, Link: &LinkError{
				Module: imp.Module, Name: imp.Name, Index: uint32(i), Cause: LinkCauseUnknownImport, Expected: importTypeName(imp),
			}}
		}
		if exp.Type != imp.Type {
			return nil, &InstantiationError{Kind: InstantiationErrorLink, Link: &LinkError{
				Module: imp.Module, Name: imp.Name, Index: uint32(i), Cause: LinkCauseIncompatibleType,
				Expected: importTypeName(imp), Found: api.ExternTypeName(exp.Type),
			}}
		}
		if err := inst.resolveOneImport(store, imp, exp); err != nil {
			return nil, &InstantiationError{Kind: InstantiationErrorLink, Link: &LinkError{
				Module: imp.Module, Name: imp.Name, Index: uint32(i), Cause: LinkCauseIncompatibleType,
				Expected: importTypeName(imp), Found: err.Error(),
			}}
		}
	}

	// Step 2: allocate locally defined tables, memories, globals and tags.
	for _, tt := range info.TableSection {
		t := NewTableInstance(*tt, OwnerInline, instID)
		inst.ctx.definedTables = append(inst.ctx.definedTables, t)
		inst.tableHandles = append(inst.tableHandles, store.InsertTable(t))
	}
	for _, mt := range info.MemorySection {
		style := tunables.ChooseMemoryStyle(mt.Max)
		m, err := NewMemoryInstance(*mt, style, OwnerInline, instID)
		if err != nil {
			return nil, &InstantiationError{Kind: InstantiationErrorResource, Msg: err.Error()}
		}
		inst.ctx.definedMemories = append(inst.ctx.definedMemories, m)
		inst.memHandles = append(inst.memHandles, store.InsertMemory(m))
	}
	for i, gt := range info.GlobalSection {
		var init uint64
		if i < len(info.GlobalInitExprs) {
			init = info.GlobalInitExprs[i]
		}
		g := NewGlobalInstance(*gt, init, OwnerInline, instID)
		inst.ctx.definedGlobals = append(inst.ctx.definedGlobals, g)
		inst.globalHandles = append(inst.globalHandles, store.InsertGlobal(g))
	}
	for _, tt := range info.TagSection {
		tg := NewTagInstance(*tt, OwnerInline, instID)
		inst.ctx.definedTags = append(inst.ctx.definedTags, tg)
		inst.tagHandles = append(inst.tagHandles, store.InsertTag(tg))
	}

	// Step 2 (functions): allocate a FunctionInstance per locally defined
	// function, wired to the artifact's compiled entry points.
	compiled := mod.Artifact.Functions()
	for local, typeIdx := range info.FunctionSection {
		var ft *FunctionType
		if int(typeIdx) < len(info.TypeSection) {
			ft = info.TypeSection[typeIdx]
		}
		var art Artifact
		if local < len(compiled) {
			art = singleFunctionArtifact{mod.Artifact, compiled[local]}
		}
		name := info.Name
		if n, ok := info.NameHints[uint32(local)]; ok {
			name = n
		}
		fn := &FunctionInstance{
			MaybeInline:    MaybeInline{Owner: OwnerInline, InstanceID: instID},
			ModuleName:     info.Name,
			Name:           name,
			Index:          info.FunctionCount() - uint32(len(info.FunctionSection)) + uint32(local),
			Type:           ft,
			LocalFuncIndex: uint32(local),
			artifact:       art,
		}
		inst.ctx.definedFunctions = append(inst.ctx.definedFunctions, fn)
		h := store.InsertFunction(fn)
		inst.funcHandles = append(inst.funcHandles, h)
		store.FrameInfo().Register(fn, fn.ModuleName+"."+fn.Name, paramsOf(ft), resultsOf(ft))
		if lp, ok := mod.Artifact.(LSDAProvider); ok {
			if blob, ok := lp.LSDA(uint32(local)); ok {
				store.FrameInfo().RegisterLSDA(fn, blob)
			}
		}
	}

	// Step 4: segment application (bulk memory/table initialization).
	for _, seg := range info.DataSection {
		if seg.OffsetExpr == nil {
			continue // passive: left for memory.init
		}
		mem := inst.ctx.Memory(seg.MemoryIndex)
		if err := mem.ApplyDataSegment(*seg.OffsetExpr, seg.Bytes); err != nil {
			inst.deregisterFrames()
			return nil, &InstantiationError{Kind: InstantiationErrorResource, Msg: err.Error()}
		}
	}
	for _, seg := range info.ElementSection {
		if seg.OffsetExpr == nil {
			continue // passive: left for table.init
		}
		tbl := inst.ctx.Table(seg.TableIndex)
		refs := make([]uint64, len(seg.FuncIndices))
		for i, fi := range seg.FuncIndices {
			refs[i] = uint64(fi) + 1 // encode as a nonzero funcref; 0 means null
		}
		if err := tbl.ApplyElementSegment(*seg.OffsetExpr, refs); err != nil {
			inst.deregisterFrames()
			return nil, &InstantiationError{Kind: InstantiationErrorResource, Msg: err.Error()}
		}
	}

	// Step 5 (frame info already registered above, before segments run, so
	// a trapping start function still has a name for its stack trace).

	// Step 6: run the start function, if any, through the same call gate
	// (C6) every other invocation uses, so a trapping start function gets
	// the same panic/recover translation and stack trace treatment.
	if info.StartFunctionIndex != nil {
		fn := inst.ctx.Function(*info.StartFunctionIndex)
		if _, err := Call(context.Background(), store, fn, nil, nil); err != nil {
			re, ok := err.(*RuntimeError)
			if !ok {
				re = &RuntimeError{Kind: RuntimeErrorTrap, Trap: TrapUnreachable, message: err.Error(), cause: err}
			}
			inst.deregisterFrames()
			return nil, &InstantiationError{Kind: InstantiationErrorStart, Start: re}
		}
	}

	mod.onInstantiated()
	inst.buildExports()
	return inst, nil
}

func (inst *Instance) deregisterFrames() {
	for _, fn := range inst.ctx.definedFunctions {
		inst.Store.FrameInfo().Deregister(fn)
		inst.Store.FrameInfo().DeregisterLSDA(fn)
	}
}

func (inst *Instance) buildExports() {
	info := inst.Module.Info
	for _, exp := range info.ExportSection {
		switch exp.Type {
		case ExternTypeFunc:
			inst.exports[exp.Name] = Export{Type: exp.Type, Func: inst.handleForFunc(exp.Index)}
		case ExternTypeTable:
			inst.exports[exp.Name] = Export{Type: exp.Type, Table: inst.handleForTable(exp.Index)}
		case ExternTypeMemory:
			inst.exports[exp.Name] = Export{Type: exp.Type, Memory: inst.handleForMemory(exp.Index)}
		case ExternTypeGlobal:
			inst.exports[exp.Name] = Export{Type: exp.Type, Global: inst.handleForGlobal(exp.Index)}
		case ExternTypeTag:
			inst.exports[exp.Name] = Export{Type: exp.Type, Tag: inst.handleForTag(exp.Index)}
		}
	}
}

// Exports returns this instance's export table, suitable for feeding a
// MapResolver{Info.Name: inst.Exports()} when linking a dependent module.
func (inst *Instance) Exports() map[string]Export { return inst.exports }

// DefinedMemory returns the first memory this instance defines locally, or
// nil if it defines none (imported-only modules report nil here even if an
// imported memory is reachable by index; api.Module.Memory only reports a
// memory the module itself defines).
func (inst *Instance) DefinedMemory() *MemoryInstance {
	if len(inst.ctx.definedMemories) == 0 {
		return nil
	}
	return inst.ctx.definedMemories[0]
}

func (inst *Instance) handleForFunc(idx uint32) Handle[FunctionInstance] {
	nImp := uint32(len(inst.ctx.importedFunctions))
	if idx < nImp {
		return inst.ctx.importedFunctions[idx].handle
	}
	return inst.funcHandles[idx-nImp]
}

func (inst *Instance) handleForTable(idx uint32) Handle[TableInstance] {
	nImp := uint32(len(inst.ctx.importedTables))
	if idx < nImp {
		return inst.ctx.importedTables[idx].handle
	}
	return inst.tableHandles[idx-nImp]
}

func (inst *Instance) handleForMemory(idx uint32) Handle[MemoryInstance] {
	nImp := uint32(len(inst.ctx.importedMemories))
	if idx < nImp {
		return inst.ctx.importedMemories[idx].handle
	}
	return inst.memHandles[idx-nImp]
}

func (inst *Instance) handleForGlobal(idx uint32) Handle[GlobalInstance] {
	nImp := uint32(len(inst.ctx.importedGlobals))
	if idx < nImp {
		return inst.ctx.importedGlobals[idx].handle
	}
	return inst.globalHandles[idx-nImp]
}

func (inst *Instance) handleForTag(idx uint32) Handle[TagInstance] {
	nImp := uint32(len(inst.ctx.importedTags))
	if idx < nImp {
		return inst.ctx.importedTags[idx].handle
	}
	return inst.tagHandles[idx-nImp]
}

// resolveOneImport dereferences exp against store, type-checks it against
// imp's declared type, and appends the corresponding indirection record to
// inst.ctx.
func (inst *Instance) resolveOneImport(store *Store, imp *ImportDesc, exp Export) error {
	switch imp.Type {
	case ExternTypeFunc:
		fn, err := store.GetFunction(exp.Func)
		if err != nil {
			return err
		}
		if err := checkFunctionCompat(imp.FuncType, fn.Type); err != nil {
			return err
		}
		inst.ctx.importedFunctions = append(inst.ctx.importedFunctions, importedFunction{handle: exp.Func, def: fn})
	case ExternTypeTable:
		t, err := store.GetTable(exp.Table)
		if err != nil {
			return err
		}
		if err := checkTableCompat(imp.TableType, &t.Type); err != nil {
			return err
		}
		inst.ctx.importedTables = append(inst.ctx.importedTables, importedTable{handle: exp.Table, def: t})
	case ExternTypeMemory:
		m, err := store.GetMemory(exp.Memory)
		if err != nil {
			return err
		}
		if err := checkMemoryCompat(imp.MemoryType, &m.Type); err != nil {
			return err
		}
		inst.ctx.importedMemories = append(inst.ctx.importedMemories, importedMemory{handle: exp.Memory, def: m})
	case ExternTypeGlobal:
		g, err := store.GetGlobal(exp.Global)
		if err != nil {
			return err
		}
		if err := checkGlobalCompat(imp.GlobalType, &g.Type); err != nil {
			return err
		}
		inst.ctx.importedGlobals = append(inst.ctx.importedGlobals, importedGlobal{handle: exp.Global, def: g})
	case ExternTypeTag:
		tg, err := store.GetTag(exp.Tag)
		if err != nil {
			return err
		}
		if err := checkTagCompat(imp.TagType, &tg.Type); err != nil {
			return err
		}
		inst.ctx.importedTags = append(inst.ctx.importedTags, importedTag{handle: exp.Tag, def: tg})
	}
	return nil
}

func importTypeName(imp *ImportDesc) string {
	switch imp.Type {
	case ExternTypeFunc:
		return imp.FuncType.String()
	case ExternTypeTable:
		return "table"
	case ExternTypeMemory:
		return "memory"
	case ExternTypeGlobal:
		return "global"
	default:
		return "tag"
	}
}

func paramsOf(ft *FunctionType) []ValueType {
	if ft == nil {
		return nil
	}
	return ft.Params
}

func resultsOf(ft *FunctionType) []ValueType {
	if ft == nil {
		return nil
	}
	return ft.Results
}

// singleFunctionArtifact adapts one CompiledFunction into an Artifact of its
// own so a FunctionInstance can hold a narrow, function-scoped view instead
// of the whole module's artifact plus an index to re-look-up every call.
type singleFunctionArtifact struct {
	parent Artifact
	fn     CompiledFunction
}

func (s singleFunctionArtifact) Functions() []CompiledFunction { return []CompiledFunction{s.fn} }

func (s singleFunctionArtifact) DynamicFunctionTrampoline(funcIndex uint32) (func(ctx interface{}, params []uint64) ([]uint64, error), bool) {
	return s.parent.DynamicFunctionTrampoline(funcIndex)
}

func (s singleFunctionArtifact) Serialize() ([]byte, error) { return s.parent.Serialize() }
