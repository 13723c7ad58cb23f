package wasm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmvm/wasmvm/api"
	"github.com/wasmvm/wasmvm/internal/wasmruntime"
)

func definedFuncInstance(store *Store, ft *FunctionType, body func(ctx interface{}, params []uint64) ([]uint64, error)) *FunctionInstance {
	fn := &FunctionInstance{
		ModuleName:     "m",
		Name:           "f",
		Type:           ft,
		LocalFuncIndex: 0,
		artifact:       newTestArtifact(body),
	}
	return fn
}

func TestCall_ReturnsResults(t *testing.T) {
	store := NewStore()
	fn := definedFuncInstance(store, i32i32ToI32(), addFunc())

	results, err := Call(context.Background(), store, fn, nil, []uint64{7, 8})
	require.NoError(t, err)
	require.Equal(t, []uint64{15}, results)
}

func TestCall_TrapIsTranslatedToRuntimeError(t *testing.T) {
	store := NewStore()
	fn := definedFuncInstance(store, noParamsNoResults(), trappingFunc(wasmruntime.ErrRuntimeIntegerDivideByZero))

	_, err := Call(context.Background(), store, fn, nil, nil)
	require.Error(t, err)
	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, RuntimeErrorTrap, rerr.Kind)
	require.Equal(t, TrapIllegalArithmetic, rerr.Trap)
	require.Contains(t, err.Error(), "wasm stack trace")
}

func TestCall_NonSentinelPanicIsUserDefinedTrap(t *testing.T) {
	store := NewStore()
	fn := definedFuncInstance(store, noParamsNoResults(), func(ctx interface{}, params []uint64) ([]uint64, error) {
		panic("boom")
	})

	_, err := Call(context.Background(), store, fn, nil, nil)
	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, TrapUserDefined, rerr.Trap)
}

func TestCall_ReentrancyIsRejected(t *testing.T) {
	store := NewStore()
	var reenterErr error
	outer := definedFuncInstance(store, noParamsNoResults(), func(ctx interface{}, params []uint64) ([]uint64, error) {
		inner := definedFuncInstance(store, noParamsNoResults(), constFunc())
		_, reenterErr = Call(context.Background(), store, inner, nil, nil)
		return nil, nil
	})

	_, err := Call(context.Background(), store, outer, nil, nil)
	require.NoError(t, err)
	require.Error(t, reenterErr)
	var rerr *RuntimeError
	require.ErrorAs(t, reenterErr, &rerr)
	require.Equal(t, RuntimeErrorReentrant, rerr.Kind)
}

func TestCall_OnCalledInvokeAgainLoopsUntilFinish(t *testing.T) {
	store := NewStore()
	calls := 0
	fn := definedFuncInstance(store, noParamsToI32(), func(ctx interface{}, params []uint64) ([]uint64, error) {
		calls++
		if calls < 3 {
			store.SetOnCalled(func() OnCalledResult { return OnCalledResult{Kind: OnCalledInvokeAgain} })
		}
		return []uint64{uint64(calls)}, nil
	})

	results, err := Call(context.Background(), store, fn, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, []uint64{3}, results)
}

func TestCall_OnCalledTrapStopsTheLoop(t *testing.T) {
	store := NewStore()
	fn := definedFuncInstance(store, noParamsNoResults(), func(ctx interface{}, params []uint64) ([]uint64, error) {
		store.SetOnCalled(func() OnCalledResult {
			return OnCalledResult{Kind: OnCalledTrap, Trap: TrapStackOverflow}
		})
		return nil, nil
	})

	_, err := Call(context.Background(), store, fn, nil, nil)
	require.Error(t, err)
	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, TrapStackOverflow, rerr.Trap)
}

func TestCall_HostFunctionReceivesContextAndModule(t *testing.T) {
	store := NewStore()
	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "present")

	var sawCtx interface{}
	hf := NewGoFunction(noParamsNoResults(), func(c interface{}, stack []uint64) {
		sawCtx = c
	})
	fn := &FunctionInstance{ModuleName: "env", Name: "cb", Type: noParamsNoResults(), HostFunc: hf}

	_, err := Call(ctx, store, fn, nil, nil)
	require.NoError(t, err)
	require.Equal(t, ctx, sawCtx)
}

func TestCallDynamic_ValidatesParamTypes(t *testing.T) {
	store := NewStore()
	fn := definedFuncInstance(store, i32i32ToI32(), addFunc())

	_, err := CallDynamic(context.Background(), store, fn, nil, []api.Value{api.ValueI64(1), api.ValueI32(2)})
	require.Error(t, err)
	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, RuntimeErrorBadDynamicReturn, rerr.Kind)
}

func TestCallDynamic_RejectsReferenceFromAnotherStore(t *testing.T) {
	otherStore := NewStore()
	store := NewStore()
	ft := &FunctionType{Params: []ValueType{ValueTypeExternref}}
	fn := definedFuncInstance(store, ft, constFunc())

	foreignRef := api.ValueExternref("opaque host object").WithStoreID(uint64(otherStore.ID()))

	_, err := CallDynamic(context.Background(), store, fn, nil, []api.Value{foreignRef})
	require.Error(t, err)
	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, RuntimeErrorCrossStore, rerr.Kind)
}

func TestCallDynamic_ReferenceFromSameStoreIsAccepted(t *testing.T) {
	store := NewStore()
	ft := &FunctionType{Params: []ValueType{ValueTypeExternref}}
	fn := definedFuncInstance(store, ft, constFunc())

	ownRef := api.ValueExternref("opaque host object").WithStoreID(uint64(store.ID()))
	_, err := CallDynamic(context.Background(), store, fn, nil, []api.Value{ownRef})
	require.NoError(t, err)
}

func TestCallDynamic_NullReferenceIsAlwaysAccepted(t *testing.T) {
	store := NewStore()
	ft := &FunctionType{Params: []ValueType{ValueTypeFuncref}}
	fn := definedFuncInstance(store, ft, constFunc())

	_, err := CallDynamic(context.Background(), store, fn, nil, []api.Value{api.ValueFuncref(nil)})
	require.NoError(t, err)
}

func TestCallDynamic_StampsReferenceResultsWithCallingStore(t *testing.T) {
	store := NewStore()
	ft := &FunctionType{Results: []ValueType{ValueTypeExternref}}
	hf := &HostFunc{
		Kind: HostFuncDynamic,
		Dynamic: func(ctx interface{}, mod api.Module, params []api.Value) ([]api.Value, error) {
			return []api.Value{api.ValueExternref("produced here")}, nil
		},
	}
	fn := &FunctionInstance{ModuleName: "env", Name: "make_ref", Type: ft, HostFunc: hf}

	results, err := CallDynamic(context.Background(), store, fn, nil, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].IsFromStore(uint64(store.ID())))

	// Passing that same result into another store's call is rejected.
	other := NewStore()
	fn2 := definedFuncInstance(other, &FunctionType{Params: []ValueType{ValueTypeExternref}}, constFunc())
	_, err = CallDynamic(context.Background(), other, fn2, nil, results)
	require.Error(t, err)
	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, RuntimeErrorCrossStore, rerr.Kind)
}

func TestCallDynamic_RoundTripsThroughRawStack(t *testing.T) {
	store := NewStore()
	fn := definedFuncInstance(store, i32i32ToI32(), addFunc())

	results, err := CallDynamic(context.Background(), store, fn, nil, []api.Value{api.ValueI32(4), api.ValueI32(9)})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, int32(13), results[0].I32())
}
