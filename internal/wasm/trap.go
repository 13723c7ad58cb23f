package wasm

import (
	"fmt"
	"sync"

	"github.com/wasmvm/wasmvm/internal/wasmdebug"
	"github.com/wasmvm/wasmvm/internal/wasmruntime"
)

// TrapKind enumerates the machine-fault categories §4.7 requires the trap
// subsystem to recognize and translate.
type TrapKind int

const (
	TrapUnreachable TrapKind = iota
	TrapMemoryOutOfBounds
	TrapCallIndirectSignatureMismatch
	TrapCallIndirectOutOfBounds
	TrapIllegalArithmetic
	TrapStackOverflow
	TrapMisalignedAtomic
	TrapUserDefined
)

func (k TrapKind) String() string {
	switch k {
	case TrapUnreachable:
		return "unreachable"
	case TrapMemoryOutOfBounds:
		return "out of bounds memory access"
	case TrapCallIndirectSignatureMismatch:
		return "indirect call type mismatch"
	case TrapCallIndirectOutOfBounds:
		return "invalid table access"
	case TrapIllegalArithmetic:
		return "illegal arithmetic"
	case TrapStackOverflow:
		return "stack overflow"
	case TrapMisalignedAtomic:
		return "misaligned atomic access"
	case TrapUserDefined:
		return "user defined"
	default:
		return fmt.Sprintf("trap(%d)", int(k))
	}
}

// trapKindForRecovered classifies a value recovered from a call-gate panic
// into a TrapKind, per the wasmruntime.Err* sentinel a trampoline (or its Go
// stand-in) panics with. Anything else recovered is treated as a user trap:
// this is the panic/recover analogue of catching SIGSEGV/SIGBUS/illegal
// instruction within registered code ranges, since Go gives no portable way
// to intercept an actual hardware fault from user code.
func trapKindForRecovered(recovered interface{}) (TrapKind, bool) {
	err, ok := recovered.(wasmruntime.Error)
	if !ok {
		return 0, false
	}
	switch err {
	case wasmruntime.ErrRuntimeUnreachable:
		return TrapUnreachable, true
	case wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess:
		return TrapMemoryOutOfBounds, true
	case wasmruntime.ErrRuntimeIndirectCallTypeMismatch:
		return TrapCallIndirectSignatureMismatch, true
	case wasmruntime.ErrRuntimeInvalidTableAccess:
		return TrapCallIndirectOutOfBounds, true
	case wasmruntime.ErrRuntimeInvalidConversionToInteger,
		wasmruntime.ErrRuntimeIntegerOverflow,
		wasmruntime.ErrRuntimeIntegerDivideByZero:
		return TrapIllegalArithmetic, true
	case wasmruntime.ErrRuntimeStackOverflow, wasmruntime.ErrRuntimeCallStackOverflow:
		return TrapStackOverflow, true
	case wasmruntime.ErrRuntimeMisalignedAtomic:
		return TrapMisalignedAtomic, true
	default:
		return TrapUserDefined, true
	}
}

// RuntimeError is the error a TypedFunction/Function call returns for any
// failure, per §7's RuntimeError{Trap, User, CrossStore, BadDynamicReturn}.
// Reentrant is this implementation's own addition for I7 (see newReentryError):
// the spec's taxonomy doesn't distinguish it from CrossStore, but the two are
// unrelated failures at the call gate and deserve separate reporting.
type RuntimeError struct {
	Kind    RuntimeErrorKind
	Trap    TrapKind
	User    interface{} // payload when Kind == RuntimeErrorUser
	message string
	cause   error
}

type RuntimeErrorKind int

const (
	RuntimeErrorTrap RuntimeErrorKind = iota
	RuntimeErrorUser
	RuntimeErrorCrossStore
	RuntimeErrorBadDynamicReturn
	RuntimeErrorReentrant
)

func (e *RuntimeError) Error() string { return e.message }
func (e *RuntimeError) Unwrap() error { return e.cause }

// newTrapError builds a RuntimeError{Trap} from a recovered panic, using an
// ErrorBuilder to attach the Wasm-style stack trace accumulated by the call
// gate's frames, the same way a compiled engine turns a recovered
// panic into an error at the top of callEngine.Call.
func newTrapError(kind TrapKind, recovered interface{}, eb wasmdebug.ErrorBuilder) *RuntimeError {
	var cause error
	if err, ok := recovered.(error); ok {
		cause = err
	} else {
		cause = fmt.Errorf("%v", recovered)
	}
	msg := cause.Error()
	if eb != nil {
		if wrapped := eb.FromRecovered(recovered); wrapped != nil {
			msg = wrapped.Error()
		}
	}
	return &RuntimeError{Kind: RuntimeErrorTrap, Trap: kind, message: msg, cause: cause}
}

func newCrossStoreError() *RuntimeError {
	return &RuntimeError{Kind: RuntimeErrorCrossStore, message: "wasm: value crosses store boundary"}
}

// newReentryError reports I7's pause-guard violation: a call gate re-entered
// while a call on the same store is already in flight. This is a host
// programming error, not a value crossing a store boundary, so it gets its
// own RuntimeErrorKind rather than overloading RuntimeErrorCrossStore.
func newReentryError() *RuntimeError {
	return &RuntimeError{Kind: RuntimeErrorReentrant, message: "wasm: store re-entered while a call is already in flight"}
}

func newBadDynamicReturnError(msg string) *RuntimeError {
	return &RuntimeError{Kind: RuntimeErrorBadDynamicReturn, message: "wasm: " + msg}
}

func newUserError(payload interface{}) *RuntimeError {
	msg := fmt.Sprintf("%v", payload)
	if err, ok := payload.(error); ok {
		msg = err.Error()
	}
	return &RuntimeError{Kind: RuntimeErrorUser, User: payload, message: msg}
}

// frameRecord maps one function's registered address range to the frame
// info the trap subsystem needs: its debug name and signature, used to
// build stack traces (P3), plus the trap-record table LSDA generation
// would otherwise consult to classify a fault by instruction pointer. Since
// this core receives traps as typed panics rather than raw instruction
// pointers, the "address map" is degenerate: each compiled function is its
// own range, keyed by the FunctionInstance pointer active during a call.
type frameRecord struct {
	debugName   string
	paramTypes  []ValueType
	resultTypes []ValueType
}

// frameInfoRegistry is the global RW-locked registry of §5's locking
// discipline: "readers dominate (every trap lookup)". One instance lives on
// each Store rather than process-wide, since this implementation scopes
// frame info per store instead of per process the way a shared native
// unwinder's registry would.
type frameInfoRegistry struct {
	mu      sync.RWMutex
	records map[*FunctionInstance]frameRecord
	lsda    map[*FunctionInstance][]byte
}

func newFrameInfoRegistry() *frameInfoRegistry {
	return &frameInfoRegistry{
		records: map[*FunctionInstance]frameRecord{},
		lsda:    map[*FunctionInstance][]byte{},
	}
}

// Register implements §4.3 step 5 / §4.2's register_frame_info: it must
// happen before the first call into an instance (I6).
func (r *frameInfoRegistry) Register(fn *FunctionInstance, debugName string, params, results []ValueType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[fn] = frameRecord{debugName: debugName, paramTypes: params, resultTypes: results}
}

// Deregister implements the unregistration half of I6: it must happen
// before the artifact's code memory could be released, and strictly after
// any registration succeeded if instantiation later fails (§7's
// propagation policy for start-function traps).
func (r *frameInfoRegistry) Deregister(fn *FunctionInstance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, fn)
}

func (r *frameInfoRegistry) Lookup(fn *FunctionInstance) (frameRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[fn]
	return rec, ok
}

// RegisterLSDA attaches a finished LSDA blob (GenerateLSDA's output, with
// every tag relocation already patched in, see PatchLSDARelocations) to fn,
// satisfying I6 for functions whose Artifact opted into exception tables by
// implementing LSDAProvider. Must happen before fn's first call, same as
// Register.
func (r *frameInfoRegistry) RegisterLSDA(fn *FunctionInstance, blob []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lsda[fn] = blob
}

// DeregisterLSDA is the unregistration half of RegisterLSDA, run alongside
// Deregister.
func (r *frameInfoRegistry) DeregisterLSDA(fn *FunctionInstance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.lsda, fn)
}

// LookupLSDA returns the blob registered for fn, if any.
func (r *frameInfoRegistry) LookupLSDA(fn *FunctionInstance) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	blob, ok := r.lsda[fn]
	return blob, ok
}
