package wasm

import "sync"

// VMSharedSignatureIndex is the interned identity of a FunctionType, shared
// process-wide so that call_indirect can compare signatures across modules
// and stores with a single integer comparison instead of a structural walk.
type VMSharedSignatureIndex uint64

// signatureRegistry is a global, internally synchronized interner: "global
// state" per §9 of the design. Every Store shares one instance (see NewStore
// and Store.Signatures); tests can construct a fresh one with
// NewSignatureRegistry instead of sharing process-wide state across cases.
type signatureRegistry struct {
	mu      sync.RWMutex
	byType  map[string]VMSharedSignatureIndex
	byIndex []*FunctionType
}

// NewSignatureRegistry returns a fresh, empty registry. NewStore shares one
// process-wide registry among all stores; tests construct their own to
// avoid cross-test interference.
func NewSignatureRegistry() *signatureRegistry {
	return &signatureRegistry{byType: map[string]VMSharedSignatureIndex{}}
}

func signatureKey(ft *FunctionType) string {
	buf := make([]byte, 0, len(ft.Params)+len(ft.Results)+2)
	buf = append(buf, ft.Params...)
	buf = append(buf, 0xff) // separator: not a valid ValueType
	buf = append(buf, ft.Results...)
	return string(buf)
}

// Intern returns the VMSharedSignatureIndex for ft, registering it on first
// use. Structurally equal FunctionTypes always map to the same index.
func (r *signatureRegistry) Intern(ft *FunctionType) VMSharedSignatureIndex {
	key := signatureKey(ft)

	r.mu.RLock()
	if idx, ok := r.byType[key]; ok {
		r.mu.RUnlock()
		return idx
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if idx, ok := r.byType[key]; ok { // re-check under write lock
		return idx
	}
	r.byIndex = append(r.byIndex, ft)
	idx := VMSharedSignatureIndex(len(r.byIndex))
	r.byType[key] = idx
	return idx
}

// Lookup returns the FunctionType interned at idx, or nil if idx was never
// issued by this registry.
func (r *signatureRegistry) Lookup(idx VMSharedSignatureIndex) *FunctionType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx == 0 || int(idx) > len(r.byIndex) {
		return nil
	}
	return r.byIndex[idx-1]
}
