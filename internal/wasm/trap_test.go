package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmvm/wasmvm/internal/wasmruntime"
)

func TestTrapKindForRecovered(t *testing.T) {
	tests := []struct {
		recovered interface{}
		wantKind  TrapKind
		wantKnown bool
	}{
		{wasmruntime.ErrRuntimeUnreachable, TrapUnreachable, true},
		{wasmruntime.ErrRuntimeOutOfBoundsMemoryAccess, TrapMemoryOutOfBounds, true},
		{wasmruntime.ErrRuntimeIndirectCallTypeMismatch, TrapCallIndirectSignatureMismatch, true},
		{wasmruntime.ErrRuntimeInvalidTableAccess, TrapCallIndirectOutOfBounds, true},
		{wasmruntime.ErrRuntimeIntegerDivideByZero, TrapIllegalArithmetic, true},
		{wasmruntime.ErrRuntimeStackOverflow, TrapStackOverflow, true},
		{wasmruntime.ErrRuntimeMisalignedAtomic, TrapMisalignedAtomic, true},
		{"not a wasmruntime.Error", 0, false},
	}
	for _, tt := range tests {
		kind, known := trapKindForRecovered(tt.recovered)
		require.Equal(t, tt.wantKnown, known)
		if known {
			require.Equal(t, tt.wantKind, kind)
		}
	}
}

func TestTrapKind_String(t *testing.T) {
	require.Equal(t, "unreachable", TrapUnreachable.String())
	require.Contains(t, TrapKind(99).String(), "trap(99)")
}

func TestFrameInfoRegistry_RegisterLookupDeregister(t *testing.T) {
	r := newFrameInfoRegistry()
	fn := &FunctionInstance{ModuleName: "m", Name: "f"}

	_, ok := r.Lookup(fn)
	require.False(t, ok)

	r.Register(fn, "m.f", nil, nil)
	rec, ok := r.Lookup(fn)
	require.True(t, ok)
	require.Equal(t, "m.f", rec.debugName)

	r.Deregister(fn)
	_, ok = r.Lookup(fn)
	require.False(t, ok)
}

func TestNewUserError(t *testing.T) {
	err := newUserError("custom trap reason")
	require.Equal(t, RuntimeErrorUser, err.Kind)
	require.Equal(t, "custom trap reason", err.Error())
}

func TestNewCrossStoreError(t *testing.T) {
	err := newCrossStoreError()
	require.Equal(t, RuntimeErrorCrossStore, err.Kind)
}

func TestNewReentryError(t *testing.T) {
	err := newReentryError()
	require.Equal(t, RuntimeErrorReentrant, err.Kind)
	require.NotEqual(t, RuntimeErrorCrossStore, err.Kind)
}
