package wasm

import (
	"context"
	"strconv"

	"github.com/wasmvm/wasmvm/api"
	"github.com/wasmvm/wasmvm/internal/wasmdebug"
)

// Call invokes fn with params already laid out as a raw uint64 stack (one
// cell per parameter, sign/bit-pattern preserving per §3's RawValue), per
// the typed call gate of §4.6. mod is passed through to host functions of
// kind GoModule; it may be nil for a purely Wasm-defined fn. ctx reaches
// GoContext-kind host functions unchanged; a nil ctx is treated as
// context.Background by the reflective wrapper that built them.
//
// This is the entry point every exported function call, host callback, and
// table.call_indirect ultimately funnels through, except a dynamic host
// function, which CallDynamic invokes itself behind the same reentry guard.
// It owns the
// reentry guard (I7), the panic/recover boundary that stands in for a
// native unwinder (C7), and the on_called asyncify loop (§4.6 step 5).
func Call(ctx context.Context, store *Store, fn *FunctionInstance, mod api.Module, params []uint64) (results []uint64, rerr error) {
	store.pauseGuardDepth++
	defer func() { store.pauseGuardDepth-- }()
	if store.pauseGuardDepth > 1 {
		return nil, newReentryError()
	}

	eb := wasmdebug.NewErrorBuilder()
	defer func() {
		if r := recover(); r != nil {
			kind, known := trapKindForRecovered(r)
			if !known {
				kind = TrapUserDefined
			}
			rerr = newTrapError(kind, r, eb)
			results = nil
		}
	}()

	debugName := wasmdebug.FuncName(fn.ModuleName, fn.Name, fn.Index)
	eb.AddFrame(debugName, fn.Type.Params, fn.Type.Results)

	out := invokeTrampoline(ctx, store, fn, mod, params)

	for {
		handler := store.TakeOnCalled()
		if handler == nil {
			break
		}
		switch res := handler(); res.Kind {
		case OnCalledFinish:
			// no further action: out already holds the final results.
		case OnCalledInvokeAgain:
			out = invokeTrampoline(ctx, store, fn, mod, out)
			continue
		case OnCalledTrap:
			return nil, newTrapError(res.Trap, res.Err, eb)
		case OnCalledErr:
			return nil, newUserError(res.Err)
		}
		break
	}
	return out, nil
}

// invokeTrampoline dispatches to the one concrete entry point a
// FunctionInstance can have: a host closure, or a local function's artifact
// entry. Both share the stack-in/stack-out calling convention (§4.6 step 2).
func invokeTrampoline(ctx context.Context, store *Store, fn *FunctionInstance, mod api.Module, params []uint64) []uint64 {
	if fn.HostFunc != nil {
		return callHostFunc(ctx, fn.HostFunc, mod, params, len(fn.Type.Results))
	}

	// fn.artifact is a singleFunctionArtifact scoped to this one function
	// (see instance.go), so its Functions() slice always has exactly one
	// entry regardless of fn.LocalFuncIndex within the owning module.
	results, err := fn.artifact.Functions()[0].Call(store, params)
	if err != nil {
		panic(err)
	}
	return results
}

func callHostFunc(ctx context.Context, hf *HostFunc, mod api.Module, params []uint64, numResults int) []uint64 {
	switch hf.Kind {
	case HostFuncStatic:
		width := len(params)
		if numResults > width {
			width = numResults
		}
		stack := make([]uint64, width)
		copy(stack, params)
		hf.Go(ctx, mod, stack)
		return stack[:numResults]
	case HostFuncDynamic:
		panic("wasm: dynamic host functions must be invoked through CallDynamic")
	default:
		panic("wasm: unknown host function kind")
	}
}

// CallDynamic is the Value-typed call path (the "dynamic Function.Call"
// half of the TypedFunction/Function split, per SPEC_FULL.md §4's
// supplemented-features note): it validates params against fn.Type before
// invoking, and validates the result shape after, raising
// RuntimeErrorBadDynamicReturn on a mismatch a static call can't produce.
func CallDynamic(ctx context.Context, store *Store, fn *FunctionInstance, mod api.Module, params []api.Value) ([]api.Value, error) {
	if len(params) != len(fn.Type.Params) {
		return nil, newBadDynamicReturnError("parameter count mismatch")
	}
	storeID := uint64(store.ID())
	for i, p := range params {
		if p.Type() != fn.Type.Params[i] {
			return nil, newBadDynamicReturnError("parameter type mismatch at index " + strconv.Itoa(i))
		}
		// §4.6 step 1: a reference argument must originate from this call's
		// store. A funcref or externref stamped for a different store (or
		// never stamped at all, meaning it came from somewhere this store
		// never issued it to) can't be dereferenced safely against this
		// store's object table.
		if !p.IsFromStore(storeID) {
			return nil, newCrossStoreError()
		}
	}

	if fn.HostFunc != nil && fn.HostFunc.Kind == HostFuncDynamic {
		store.pauseGuardDepth++
		defer func() { store.pauseGuardDepth-- }()
		if store.pauseGuardDepth > 1 {
			return nil, newReentryError()
		}
		results, err := fn.HostFunc.Dynamic(ctx, mod, params)
		if err != nil {
			return nil, err
		}
		if len(results) != len(fn.Type.Results) {
			return nil, newBadDynamicReturnError("result count mismatch")
		}
		for i, r := range results {
			if r.Type() != fn.Type.Results[i] {
				return nil, newBadDynamicReturnError("result type mismatch at index " + strconv.Itoa(i))
			}
		}
		return stampResults(results, storeID), nil
	}

	raw := make([]uint64, len(params))
	for i, p := range params {
		raw[i] = p.ToRaw().Lo
	}
	rawResults, err := Call(ctx, store, fn, mod, raw)
	if err != nil {
		return nil, err
	}
	if len(rawResults) != len(fn.Type.Results) {
		return nil, newBadDynamicReturnError("result count mismatch")
	}
	results := make([]api.Value, len(rawResults))
	for i, v := range rawResults {
		results[i] = api.ValueFromRaw(fn.Type.Results[i], api.RawValue{Lo: v})
	}
	return stampResults(results, storeID), nil
}

// stampResults marks every reference-typed result as owned by storeID, so a
// caller that forwards one of these Values into a later CallDynamic on a
// different store trips the origin check above instead of silently
// dereferencing a handle that store never issued.
func stampResults(results []api.Value, storeID uint64) []api.Value {
	for i, v := range results {
		results[i] = v.WithStoreID(storeID)
	}
	return results
}
