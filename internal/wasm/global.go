package wasm

// GlobalType describes a global import/export/local declaration.
type GlobalType struct {
	ValType ValueType
	Mutable bool
}

// GlobalInstance holds a global's current value as a raw 64-bit cell,
// matching how api.Global/api.MutableGlobal already expose values.
type GlobalInstance struct {
	MaybeInline

	Type GlobalType
	val  uint64
}

// NewGlobalInstance allocates a global initialized to init.
func NewGlobalInstance(ty GlobalType, init uint64, owner Owner, instanceID uint64) *GlobalInstance {
	return &GlobalInstance{MaybeInline: MaybeInline{Owner: owner, InstanceID: instanceID}, Type: ty, val: init}
}

func (g *GlobalInstance) Get() uint64 { return g.val }

// Set updates the value. Callers (the call gate, host Global.Set) are
// responsible for checking Type.Mutable first; an immutable global accepting
// Set would be a bug in the caller, not something this type itself guards,
// mirroring how api.MutableGlobal is a distinct, narrower interface from
// api.Global rather than a runtime check.
func (g *GlobalInstance) Set(v uint64) { g.val = v }
