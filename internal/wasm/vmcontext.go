package wasm

// Owner distinguishes who is responsible for releasing a VM object's
// backing storage, per the MaybeInstanceOwned<T> variant of §3.
type Owner int

const (
	// OwnerInline means the storage lives inside the owning instance's
	// VMContext region; it is released when the instance itself is.
	OwnerInline Owner = iota
	// OwnerHost means the storage is a separately heap-allocated cell,
	// released independently (e.g. a Memory created via the host API and
	// possibly imported by several instances).
	OwnerHost
)

// MaybeInline is the Go rendering of MaybeInstanceOwned<T>: every VM object
// (MemoryInstance, TableInstance, GlobalInstance, TagInstance) embeds one to
// record who owns its backing storage, even though in this implementation
// both variants are ordinary heap values — Go's garbage collector already
// gives identical observable behavior for either, so the distinction here
// is bookkeeping (I2: detecting accidental instance aliasing), not a
// manual-deallocation path the way it is in the source this was derived
// from.
type MaybeInline struct {
	Owner Owner
	// InstanceID, when Owner == OwnerInline, is the identity of the
	// instance this object's storage is carved from. Two distinct live
	// instances must never report the same non-zero InstanceID for an
	// inline object: that would violate I2.
	InstanceID uint64
}

// VMContext is the per-instance region described in §3: it exposes the
// inline definitions local objects can be addressed through, plus the
// indirection records describing imported objects. Generated code in a
// real backend would walk this by fixed offsets; since code generation is
// out of scope here, VMContext instead hands out the same information as
// typed accessors the call gate (C6) and instance allocator (C3) use
// directly.
type VMContext struct {
	InstanceID uint64

	definedFunctions []*FunctionInstance
	definedMemories  []*MemoryInstance
	definedTables    []*TableInstance
	definedGlobals   []*GlobalInstance
	definedTags      []*TagInstance

	// importedMemories etc. hold the indirection records: the resolved
	// handle plus a cached pointer to the object itself, exactly as §3
	// describes for imports ("{definition_pointer, owning_handle}").
	importedFunctions []importedFunction
	importedMemories  []importedMemory
	importedTables    []importedTable
	importedGlobals   []importedGlobal
	importedTags      []importedTag
}

type importedFunction struct {
	handle Handle[FunctionInstance]
	def    *FunctionInstance
}

type importedMemory struct {
	handle Handle[MemoryInstance]
	def    *MemoryInstance
}

type importedTable struct {
	handle Handle[TableInstance]
	def    *TableInstance
}

type importedGlobal struct {
	handle Handle[GlobalInstance]
	def    *GlobalInstance
}

type importedTag struct {
	handle Handle[TagInstance]
	def    *TagInstance
}

// Function returns the idx'th function in the combined import+local
// function index namespace.
func (c *VMContext) Function(idx uint32) *FunctionInstance {
	if int(idx) < len(c.importedFunctions) {
		return c.importedFunctions[idx].def
	}
	return c.definedFunctions[int(idx)-len(c.importedFunctions)]
}

// FunctionCount returns the total number of functions addressable through
// this context, imports plus locals.
func (c *VMContext) FunctionCount() uint32 {
	return uint32(len(c.importedFunctions) + len(c.definedFunctions))
}

// Memory returns the idx'th memory in the function-index-like namespace
// where imports precede locally defined objects, matching how Wasm indexes
// memories/tables/globals/tags across the import/local boundary.
func (c *VMContext) Memory(idx uint32) *MemoryInstance {
	if int(idx) < len(c.importedMemories) {
		return c.importedMemories[idx].def
	}
	return c.definedMemories[int(idx)-len(c.importedMemories)]
}

func (c *VMContext) Table(idx uint32) *TableInstance {
	if int(idx) < len(c.importedTables) {
		return c.importedTables[idx].def
	}
	return c.definedTables[int(idx)-len(c.importedTables)]
}

func (c *VMContext) Global(idx uint32) *GlobalInstance {
	if int(idx) < len(c.importedGlobals) {
		return c.importedGlobals[idx].def
	}
	return c.definedGlobals[int(idx)-len(c.importedGlobals)]
}

func (c *VMContext) Tag(idx uint32) *TagInstance {
	if int(idx) < len(c.importedTags) {
		return c.importedTags[idx].def
	}
	return c.definedTags[int(idx)-len(c.importedTags)]
}
