package wasmvm

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/wasmvm/wasmvm/internal/moremath"
	"github.com/wasmvm/wasmvm/internal/wasm"
)

func addModuleInfo() *wasm.ModuleInfo {
	return &wasm.ModuleInfo{
		Name:            "mod",
		TypeSection:     []*wasm.FunctionType{i32i32ToI32()},
		FunctionSection: []uint32{0},
		ExportSection:   []*wasm.ExportDesc{{Name: "add", Type: wasm.ExternTypeFunc, Index: 0}},
	}
}

func TestRuntime_CompileAndInstantiate_CallExportedFunction(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime(ctx)
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, []byte("add module"), addModuleInfo(), newSimpleArtifact(addFn()))
	require.NoError(t, err)

	mod, err := r.InstantiateModule(ctx, compiled, nil, nil)
	require.NoError(t, err)

	fn := mod.ExportedFunction("add")
	require.NotNil(t, fn)

	results, err := fn.Call(ctx, 3, 4)
	require.NoError(t, err)
	require.Equal(t, []uint64{7}, results)
}

func TestRuntime_CompileModule_RejectsInvalidModuleInfo(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime(ctx)
	defer r.Close(ctx)

	info := &wasm.ModuleInfo{
		ExportSection: []*wasm.ExportDesc{{Name: "missing", Type: wasm.ExternTypeFunc, Index: 5}},
	}
	_, err := r.CompileModule(ctx, []byte("bad"), info, newSimpleArtifact())
	require.Error(t, err)
}

func TestRuntime_InstantiateModule_NameOverride(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime(ctx)
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, []byte("add module"), addModuleInfo(), newSimpleArtifact(addFn()))
	require.NoError(t, err)

	mod, err := r.InstantiateModule(ctx, compiled, NewModuleConfig().WithName("renamed"), nil)
	require.NoError(t, err)
	require.Equal(t, "renamed", mod.Name())
	require.Same(t, mod, r.Module("renamed"))
	require.Nil(t, r.Module("mod"))
}

// TestRuntime_InstantiateModule_NameOverride_OnlyChangesName exercises the
// P5-style identity property: instantiating under a name override must
// leave every other field of the underlying ModuleInfo untouched. A
// structural diff makes the "only Name differs" claim legible in a way a
// reflect.DeepEqual boolean result would not.
func TestRuntime_InstantiateModule_NameOverride_OnlyChangesName(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime(ctx)
	defer r.Close(ctx)

	original := addModuleInfo()
	compiled, err := r.CompileModule(ctx, []byte("add module"), original, newSimpleArtifact(addFn()))
	require.NoError(t, err)

	mod, err := r.InstantiateModule(ctx, compiled, NewModuleConfig().WithName("renamed"), nil)
	require.NoError(t, err)
	require.Equal(t, "renamed", mod.Name())

	mi, ok := mod.(*moduleInstance)
	require.True(t, ok)
	gotInfo := *mi.inst.Module.Info

	want := *original
	want.Name = "renamed"
	diff := cmp.Diff(want, gotInfo)
	require.Empty(t, diff, "instantiation must change only Name:\n%s", diff)
}

func TestRuntime_InstantiateModule_UnknownImportFails(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime(ctx)
	defer r.Close(ctx)

	info := &wasm.ModuleInfo{
		Name:          "needs-import",
		ImportSection: []*wasm.ImportDesc{{Module: "env", Name: "missing", Type: wasm.ExternTypeFunc, FuncType: i32i32ToI32()}},
	}
	compiled, err := r.CompileModule(ctx, []byte("imports"), info, newSimpleArtifact())
	require.NoError(t, err)

	_, err = r.InstantiateModule(ctx, compiled, nil, nil)
	require.Error(t, err)
}

func TestRuntime_WithNaNCanonicalization_RewritesNonCanonicalNaN(t *testing.T) {
	ctx := context.Background()

	// A NaN bit pattern distinct from moremath.CanonicalNaN32Bits, to prove
	// canonicalization actually rewrites rather than leaving it alone by luck.
	const nonCanonicalNaN32 uint32 = 0x7fc00001

	info := &wasm.ModuleInfo{
		Name:            "floaty",
		TypeSection:     []*wasm.FunctionType{{Results: []wasm.ValueType{wasm.ValueTypeF32}}},
		FunctionSection: []uint32{0},
		ExportSection:   []*wasm.ExportDesc{{Name: "nan", Type: wasm.ExternTypeFunc, Index: 0}},
	}
	returnsNaN := func(ctx interface{}, params []uint64) ([]uint64, error) {
		return []uint64{uint64(nonCanonicalNaN32)}, nil
	}

	t.Run("disabled by default", func(t *testing.T) {
		r := NewRuntime(ctx)
		defer r.Close(ctx)
		compiled, err := r.CompileModule(ctx, []byte("floaty"), info, newSimpleArtifact(returnsNaN))
		require.NoError(t, err)
		mod, err := r.InstantiateModule(ctx, compiled, nil, nil)
		require.NoError(t, err)
		results, err := mod.ExportedFunction("nan").Call(ctx)
		require.NoError(t, err)
		require.Equal(t, nonCanonicalNaN32, uint32(results[0]))
	})

	t.Run("enabled rewrites to canonical bits", func(t *testing.T) {
		r := NewRuntimeWithConfig(ctx, NewRuntimeConfig().WithNaNCanonicalization(true))
		defer r.Close(ctx)
		compiled, err := r.CompileModule(ctx, []byte("floaty"), info, newSimpleArtifact(returnsNaN))
		require.NoError(t, err)
		mod, err := r.InstantiateModule(ctx, compiled, nil, nil)
		require.NoError(t, err)
		results, err := mod.ExportedFunction("nan").Call(ctx)
		require.NoError(t, err)
		require.Equal(t, moremath.CanonicalNaN32Bits, uint32(results[0]))
	})
}

func TestRuntime_Module_LinksHostModuleImport(t *testing.T) {
	ctx := context.Background()
	r := NewRuntime(ctx)
	defer r.Close(ctx)

	host, err := r.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(func(ctx context.Context, a, b uint32) uint32 { return a + b }).
		Export("add").
		Instantiate(ctx)
	require.NoError(t, err)
	hostMI, ok := host.(*moduleInstance)
	require.True(t, ok)

	info := &wasm.ModuleInfo{
		Name:          "consumer",
		ImportSection: []*wasm.ImportDesc{{Module: "env", Name: "add", Type: wasm.ExternTypeFunc, FuncType: i32i32ToI32()}},
		ExportSection: []*wasm.ExportDesc{{Name: "reexported", Type: wasm.ExternTypeFunc, Index: 0}},
	}
	compiled, err := r.CompileModule(ctx, []byte("consumer"), info, newSimpleArtifact())
	require.NoError(t, err)

	resolver := wasm.MapResolver{"env": hostMI.inst.Exports()}
	consumer, err := r.InstantiateModule(ctx, compiled, nil, resolver)
	require.NoError(t, err)

	fn := consumer.ExportedFunction("reexported")
	require.NotNil(t, fn)
	results, err := fn.Call(ctx, 10, 32)
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, results)
}
