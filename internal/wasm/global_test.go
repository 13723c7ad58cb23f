package wasm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGlobalInstance_GetSet(t *testing.T) {
	g := NewGlobalInstance(GlobalType{ValType: ValueTypeI32, Mutable: true}, 42, OwnerInline, 1)
	require.Equal(t, uint64(42), g.Get())

	g.Set(7)
	require.Equal(t, uint64(7), g.Get())
}
