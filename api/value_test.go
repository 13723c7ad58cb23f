package api

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValue_IsFromStore_PrimitivesAlwaysTrue(t *testing.T) {
	require.True(t, ValueI32(1).IsFromStore(1))
	require.True(t, ValueI32(1).IsFromStore(2))
	require.True(t, ValueI64(1).IsFromStore(99))
	require.True(t, ValueF32(1).IsFromStore(99))
	require.True(t, ValueF64(1).IsFromStore(99))
}

func TestValue_IsFromStore_NullReferenceAlwaysTrue(t *testing.T) {
	require.True(t, ValueFuncref(nil).IsFromStore(1))
	require.True(t, ValueExternref(nil).IsFromStore(1))
}

func TestValue_IsFromStore_NonNilReferenceTiedToStamp(t *testing.T) {
	v := ValueExternref("obj").WithStoreID(7)
	require.True(t, v.IsFromStore(7))
	require.False(t, v.IsFromStore(8))

	unstamped := ValueExternref("obj")
	require.False(t, unstamped.IsFromStore(7))
}
