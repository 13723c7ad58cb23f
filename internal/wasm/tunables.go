package wasm

import "math/bits"

// MemoryStyleKind distinguishes the two protection layouts a linear memory
// can be allocated with.
type MemoryStyleKind int

const (
	// MemoryStyleStatic reserves boundPages up front with a large guard
	// region, so bounds checks on generated code can often be elided.
	MemoryStyleStatic MemoryStyleKind = iota
	// MemoryStyleDynamic reserves only what's needed, growing (and
	// re-reserving) on demand behind a small guard.
	MemoryStyleDynamic
)

// MemoryStyle is the resource-layout decision C4 makes for one memory type,
// per §4.4.
type MemoryStyle struct {
	Kind MemoryStyleKind
	// BoundPages is only meaningful for MemoryStyleStatic: the page count
	// reserved regardless of the type's declared maximum.
	BoundPages uint64
	// GuardBytes is the size of the reserved-but-inaccessible suffix appended
	// after the accessible region.
	GuardBytes uint64
}

// Tunables parameterizes C4's resource-layout decisions. DefaultTunables
// mirrors wasmer's BaseTunables::for_target, keyed on pointer width, since
// the static bound and guard sizes only make sense relative to how much
// virtual address space a process can reserve.
type Tunables struct {
	// StaticMemoryBoundPages is the threshold below which a memory type is
	// given MemoryStyleStatic: see ChooseMemoryStyle.
	StaticMemoryBoundPages uint64
	// StaticMemoryGuardBytes is the guard region appended to a static
	// reservation.
	StaticMemoryGuardBytes uint64
	// DynamicMemoryGuardBytes is the (smaller) guard region appended to a
	// dynamic reservation.
	DynamicMemoryGuardBytes uint64
	// WasmStackSizeBytes is the size of the stack generated code runs on, if
	// the backend honors it. Zero means "use the host's default".
	WasmStackSizeBytes uint64
}

// DefaultTunables returns the tunables appropriate for the host's pointer
// width, following the U16/U32/U64 cases of wasmer's
// lib/compiler/src/engine/tunables.rs::BaseTunables::for_target.
func DefaultTunables() Tunables {
	switch bits.UintSize {
	case 16:
		return Tunables{
			StaticMemoryBoundPages:  0x400,
			StaticMemoryGuardBytes:  0x1000,
			DynamicMemoryGuardBytes: 0x1000,
		}
	case 32:
		return Tunables{
			StaticMemoryBoundPages:  0x4000,
			StaticMemoryGuardBytes:  0x1_0000,
			DynamicMemoryGuardBytes: 0x1000,
		}
	default: // 64
		return Tunables{
			StaticMemoryBoundPages:  0x1_0000,
			StaticMemoryGuardBytes:  0x8000_0000,
			DynamicMemoryGuardBytes: 0x1_0000,
		}
	}
}

// ChooseMemoryStyle implements §4.4's style decision: Static when the
// declared maximum fits under the configured bound, Dynamic otherwise.
// declaredMaximum of nil means "unbounded" (always Dynamic, since an
// unbounded memory can't be proven to fit a fixed reservation).
func (t Tunables) ChooseMemoryStyle(declaredMaximum *uint64) MemoryStyle {
	if declaredMaximum != nil && *declaredMaximum <= t.StaticMemoryBoundPages {
		return MemoryStyle{Kind: MemoryStyleStatic, BoundPages: t.StaticMemoryBoundPages, GuardBytes: t.StaticMemoryGuardBytes}
	}
	return MemoryStyle{Kind: MemoryStyleDynamic, GuardBytes: t.DynamicMemoryGuardBytes}
}

// VMConfig carries the subset of tunables generated code itself consults,
// per §4.4's vmconfig() operation.
type VMConfig struct {
	WasmStackSizeBytes uint64 // zero means unset
}

func (t Tunables) VMConfig() VMConfig {
	return VMConfig{WasmStackSizeBytes: t.WasmStackSizeBytes}
}
