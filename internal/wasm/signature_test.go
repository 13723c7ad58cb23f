package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignatureRegistry_InternDeduplicatesStructurally(t *testing.T) {
	r := NewSignatureRegistry()
	a := &FunctionType{Params: []ValueType{ValueTypeI32}, Results: []ValueType{ValueTypeI64}}
	b := &FunctionType{Params: []ValueType{ValueTypeI32}, Results: []ValueType{ValueTypeI64}}

	idxA := r.Intern(a)
	idxB := r.Intern(b)
	require.Equal(t, idxA, idxB)

	c := &FunctionType{Params: []ValueType{ValueTypeI64}}
	idxC := r.Intern(c)
	require.NotEqual(t, idxA, idxC)
}

func TestSignatureRegistry_LookupRoundTrips(t *testing.T) {
	r := NewSignatureRegistry()
	ft := &FunctionType{Params: []ValueType{ValueTypeF32}}
	idx := r.Intern(ft)

	got := r.Lookup(idx)
	require.Equal(t, ft, got)

	require.Nil(t, r.Lookup(VMSharedSignatureIndex(9999)))
	require.Nil(t, r.Lookup(0))
}
