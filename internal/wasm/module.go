package wasm

import "fmt"

// ImportDesc describes one import slot: its declared (module, name) pair
// and the type it requires, per §3's ModuleInfo.imports.
type ImportDesc struct {
	Module, Name string
	Type         ExternType
	FuncType     *FunctionType // set when Type == ExternTypeFunc
	TableType    *TableType    // set when Type == ExternTypeTable
	MemoryType   *MemoryType   // set when Type == ExternTypeMemory
	GlobalType   *GlobalType   // set when Type == ExternTypeGlobal
	TagType      *TagType      // set when Type == ExternTypeTag
}

// ExportDesc describes one export: a name plus the index, within the
// relevant namespace (function/table/memory/global/tag), of the object it
// names.
type ExportDesc struct {
	Name  string
	Type  ExternType
	Index uint32
}

// DataSegment is a data-section entry: bytes to be copied into a memory at
// instantiation, either eagerly at a constant offset ("active") or left for
// explicit "memory.init" ("passive", when OffsetExpr is nil).
type DataSegment struct {
	MemoryIndex uint32
	OffsetExpr  *uint32 // nil => passive
	Bytes       []byte
}

// ElementSegment is an element-section entry: function indices to be
// copied into a table at instantiation, active or passive like DataSegment.
type ElementSegment struct {
	TableIndex  uint32
	OffsetExpr  *uint32 // nil => passive
	FuncIndices []uint32
}

// ModuleInfo is the metadata half of a Module (§3): everything needed to
// allocate and wire an instance, independent of how function bodies were
// compiled.
type ModuleInfo struct {
	Name string

	TypeSection []*FunctionType

	ImportSection []*ImportDesc
	ExportSection []*ExportDesc

	// FunctionSection maps each locally defined function's position (after
	// imports, in the function index namespace) to its declared type index.
	FunctionSection []uint32

	TableSection  []*TableType
	MemorySection []*MemoryType
	GlobalSection []*GlobalType
	TagSection    []*TagType

	// GlobalInitExprs holds the constant initializer for each locally
	// defined global, index-aligned with GlobalSection.
	GlobalInitExprs []uint64

	DataSection    []*DataSegment
	ElementSection []*ElementSegment

	StartFunctionIndex *uint32 // nil => no start function

	CustomSections map[string][]byte

	// NameHints maps a local function index to a debug name decoded from
	// the name custom section, if present.
	NameHints map[uint32]string

	Features Features
}

// FunctionCount returns the total number of functions in this module's
// function index namespace, imports first.
func (m *ModuleInfo) FunctionCount() uint32 {
	var imported uint32
	for _, imp := range m.ImportSection {
		if imp.Type == ExternTypeFunc {
			imported++
		}
	}
	return imported + uint32(len(m.FunctionSection))
}

// Validate checks static invariants that don't depend on an engine: index
// bounds, and that every used feature is enabled. A real frontend would
// call this right after decoding, before Module ever wraps an Artifact.
func (m *ModuleInfo) Validate() error {
	for _, exp := range m.ExportSection {
		if exp.Type == ExternTypeFunc && exp.Index >= m.FunctionCount() {
			return fmt.Errorf("export %q: function index %d out of range", exp.Name, exp.Index)
		}
	}
	if len(m.TagSection) > 0 {
		if err := m.Features.RequireEnabled(FeatureExceptionHandling, "exception-handling"); err != nil {
			return err
		}
	}
	return nil
}

// CompiledFunction is one entry of the Artifact interface's
// finished_functions map: a local function's callable entry point, already
// specialized to this engine's calling convention.
type CompiledFunction struct {
	LocalIndex uint32
	Call       func(ctx interface{}, params []uint64) ([]uint64, error)
}

// Artifact is the opaque, engine-produced compilation output consumed by
// C3 and C6 (§6's Artifact interface). Code generation itself is out of
// scope; this package only ever calls through this interface.
type Artifact interface {
	// Functions returns the compiled entry points for this module's locally
	// defined functions, ordered by LocalFuncIndex.
	Functions() []CompiledFunction

	// DynamicFunctionTrampoline returns the trampoline for an imported host
	// function at funcIndex. Implementations that don't distinguish
	// host-call trampolines may return nil. The call gate does not call this
	// method: it invokes a host function's HostFunc, or a local function's
	// Functions() entry, directly.
	DynamicFunctionTrampoline(funcIndex uint32) (func(ctx interface{}, params []uint64) ([]uint64, error), bool)

	// Serialize returns the engine-private encoding of this artifact's code
	// and side tables, for use by the compiled-module cache.
	Serialize() ([]byte, error)
}

// LSDAProvider is an optional Artifact capability (§3: "optionally an LSDA
// blob for exception handling"): an Artifact whose compiler emitted
// exception tables (see GenerateLSDA) implements this to hand a local
// function's finished, fully relocated blob to instantiation, which
// registers it via frameInfoRegistry.RegisterLSDA per I6.
type LSDAProvider interface {
	LSDA(localIndex uint32) ([]byte, bool)
}

// Module is the immutable, shareable compiled unit of §3: ModuleInfo plus
// an Artifact. Many instances may share one Module; the Module must outlive
// every Instance derived from it (I5), which this implementation ensures by
// having Instance hold a plain Go reference (the garbage collector keeps it
// alive, the same guarantee §9 asks an Rc/Arc for).
type Module struct {
	Info     *ModuleInfo
	Artifact Artifact

	instanceCount int
}

// NewModule pairs info and artifact into an immutable Module. Per §4.2's
// state machine, a Module begins Compiled; SetName is only legal before the
// first instance exists.
func NewModule(info *ModuleInfo, artifact Artifact) *Module {
	return &Module{Info: info, Artifact: artifact}
}

// SetName renames the module, returning whether the change took effect
// (false once any instance has been created from it).
func (m *Module) SetName(name string) bool {
	if m.instanceCount > 0 {
		return false
	}
	m.Info.Name = name
	return true
}

func (m *Module) onInstantiated() { m.instanceCount++ }

// InstanceCount reports how many instances have been created from this
// module; the count never decreases.
func (m *Module) InstanceCount() int { return m.instanceCount }
