package wasm

import (
	"context"
	"fmt"
	"reflect"

	"github.com/wasmvm/wasmvm/api"
)

// FunctionKind classifies the calling convention of a reflected Go host
// function, distinguishing a plain
// "no context" func from one that additionally receives a context.Context
// or the calling api.Module.
type FunctionKind int

const (
	FunctionKindGoNoContext FunctionKind = iota
	FunctionKindGoContext
	FunctionKindGoModule
)

var (
	moduleType  = reflect.TypeOf((*api.Module)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

func goKindToValueType(k reflect.Kind) (ValueType, bool) {
	switch k {
	case reflect.Uint32, reflect.Int32:
		return ValueTypeI32, true
	case reflect.Uint64, reflect.Int64:
		return ValueTypeI64, true
	case reflect.Float32:
		return ValueTypeF32, true
	case reflect.Float64:
		return ValueTypeF64, true
	default:
		return 0, false
	}
}

// getFunctionType inspects fn's reflected signature, returning the kind of
// first parameter it expects (none, context.Context, or api.Module), its
// Wasm-visible FunctionType, and whether its final declared return is an
// error (allowed only when allowErrorResult is set; NewGoReflectFunc, the
// path WithFunc takes, always sets it).
func getFunctionType(fn *reflect.Value, allowErrorResult bool) (FunctionKind, *FunctionType, bool, error) {
	t := fn.Type()
	if t.Kind() != reflect.Func {
		return 0, nil, false, fmt.Errorf("not a function: %s", t.Kind())
	}

	kind := FunctionKindGoNoContext
	pStart := 0
	if t.NumIn() > 0 {
		switch {
		case t.In(0).Implements(moduleType):
			kind = FunctionKindGoModule
			pStart = 1
		case t.In(0) == contextType:
			kind = FunctionKindGoContext
			pStart = 1
		}
	}

	params := make([]ValueType, 0, t.NumIn()-pStart)
	for i := pStart; i < t.NumIn(); i++ {
		vt, ok := goKindToValueType(t.In(i).Kind())
		if !ok {
			return 0, nil, false, fmt.Errorf("param[%d] is unsupported type: %s", i, t.In(i))
		}
		params = append(params, vt)
	}

	nOut := t.NumOut()
	hasErrorResult := false
	if nOut > 0 && t.Out(nOut-1) == errorType {
		if !allowErrorResult {
			return 0, nil, false, fmt.Errorf("error result not allowed for this function")
		}
		hasErrorResult = true
		nOut--
	}

	results := make([]ValueType, 0, nOut)
	for i := 0; i < nOut; i++ {
		vt, ok := goKindToValueType(t.Out(i).Kind())
		if !ok {
			return 0, nil, false, fmt.Errorf("result[%d] is unsupported type: %s", i, t.Out(i))
		}
		results = append(results, vt)
	}

	return kind, &FunctionType{Params: params, Results: results}, hasErrorResult, nil
}

// NewGoReflectFunc builds a HostFunc that wraps an arbitrary Go func value
// (any signature getFunctionType accepts) into the stack-in/stack-out
// calling convention the call gate invokes every host function through.
func NewGoReflectFunc(fn interface{}) (*HostFunc, *FunctionType, error) {
	rVal := reflect.ValueOf(fn)
	kind, ft, hasErrorResult, err := getFunctionType(&rVal, true)
	if err != nil {
		return nil, nil, err
	}

	pStart := 0
	if kind != FunctionKindGoNoContext {
		pStart = 1
	}
	t := rVal.Type()

	call := func(ctx interface{}, mod api.Module, stack []uint64) {
		in := make([]reflect.Value, t.NumIn())
		if kind == FunctionKindGoModule {
			in[0] = reflect.ValueOf(mod)
		} else if kind == FunctionKindGoContext {
			c, _ := ctx.(context.Context)
			if c == nil {
				c = context.Background()
			}
			in[0] = reflect.ValueOf(c)
		}
		for i := 0; i < len(ft.Params); i++ {
			in[pStart+i] = decodeReflectArg(t.In(pStart+i), stack[i])
		}

		out := rVal.Call(in)
		if hasErrorResult {
			if errVal := out[len(out)-1]; !errVal.IsNil() {
				panic(errVal.Interface().(error))
			}
			out = out[:len(out)-1]
		}
		for i, rv := range out {
			stack[i] = encodeReflectResult(rv)
		}
	}

	return &HostFunc{Kind: HostFuncStatic, Go: call}, ft, nil
}

func decodeReflectArg(t reflect.Type, raw uint64) reflect.Value {
	switch t.Kind() {
	case reflect.Uint32:
		return reflect.ValueOf(uint32(raw)).Convert(t)
	case reflect.Int32:
		return reflect.ValueOf(int32(uint32(raw))).Convert(t)
	case reflect.Uint64:
		return reflect.ValueOf(raw).Convert(t)
	case reflect.Int64:
		return reflect.ValueOf(int64(raw)).Convert(t)
	case reflect.Float32:
		return reflect.ValueOf(api.DecodeF32(raw)).Convert(t)
	case reflect.Float64:
		return reflect.ValueOf(api.DecodeF64(raw)).Convert(t)
	default:
		panic(fmt.Sprintf("wasm: unsupported host param type %s", t))
	}
}

func encodeReflectResult(rv reflect.Value) uint64 {
	switch rv.Kind() {
	case reflect.Uint32:
		return rv.Uint()
	case reflect.Int32:
		return uint64(uint32(rv.Int()))
	case reflect.Uint64:
		return rv.Uint()
	case reflect.Int64:
		return uint64(rv.Int())
	case reflect.Float32:
		return api.EncodeF32(float32(rv.Float()))
	case reflect.Float64:
		return api.EncodeF64(rv.Float())
	default:
		panic(fmt.Sprintf("wasm: unsupported host result type %s", rv.Type()))
	}
}

// NewGoFunction wraps a low-level api.GoFunction directly: no reflection, the
// closure already speaks the stack-in/stack-out convention.
func NewGoFunction(ft *FunctionType, fn api.GoFunction) *HostFunc {
	return &HostFunc{Kind: HostFuncStatic, Go: func(ctx interface{}, _ api.Module, stack []uint64) {
		fn(ctx, stack)
	}}
}

// NewGoModuleFunction wraps an api.GoModuleFunction, which additionally
// receives the calling module (most often to reach its exported memory).
func NewGoModuleFunction(ft *FunctionType, fn api.GoModuleFunction) *HostFunc {
	return &HostFunc{Kind: HostFuncStatic, Go: func(ctx interface{}, mod api.Module, stack []uint64) {
		fn(ctx, mod, stack)
	}}
}
