// Package wasmdebug turns a recovered panic from inside a call-gate
// invocation (internal/wasm) into a user-facing error with a Wasm-flavored
// stack trace, the way a compiler engine's deferred recover would, via
// wasmdebug.NewErrorBuilder() in its deferredOnCall.
package wasmdebug

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wasmvm/wasmvm/api"
	"github.com/wasmvm/wasmvm/internal/wasmruntime"
)

// FuncName returns a stable debug name for a function, following
// api.FunctionDefinition.DebugName's rules: prefer the module-defined name,
// fall back to "$<index>" when it is empty.
func FuncName(moduleName, funcName string, funcIdx uint32) string {
	if funcName == "" {
		funcName = "$" + strconv.FormatUint(uint64(funcIdx), 10)
	}
	return moduleName + "." + funcName
}

// signature appends a Wasm-style parenthesized signature to name, e.g.
// "x.y(i32,f64) i64" or "x.y() (i64,f32)" for multiple results.
func signature(name string, paramTypes, resultTypes []api.ValueType) string {
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('(')
	for i, t := range paramTypes {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(api.ValueTypeName(t))
	}
	sb.WriteByte(')')
	switch len(resultTypes) {
	case 0:
	case 1:
		sb.WriteByte(' ')
		sb.WriteString(api.ValueTypeName(resultTypes[0]))
	default:
		sb.WriteString(" (")
		for i, t := range resultTypes {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(api.ValueTypeName(t))
		}
		sb.WriteByte(')')
	}
	return sb.String()
}

// ErrorBuilder accumulates call frames, innermost first, to build a
// traceback for a recovered panic.
type ErrorBuilder interface {
	// AddFrame records one call frame. Call in order from the frame where
	// the panic originated outward to the entry point.
	AddFrame(debugName string, paramTypes, resultTypes []api.ValueType)

	// FromRecovered converts the value recover() returned into an error
	// carrying the accumulated stack trace. Returns nil if recovered is nil.
	FromRecovered(recovered interface{}) error
}

type errorBuilder struct {
	frames []string
}

// NewErrorBuilder returns a fresh ErrorBuilder.
func NewErrorBuilder() ErrorBuilder {
	return &errorBuilder{}
}

// AddFrame implements ErrorBuilder.AddFrame.
func (b *errorBuilder) AddFrame(debugName string, paramTypes, resultTypes []api.ValueType) {
	b.frames = append(b.frames, signature(debugName, paramTypes, resultTypes))
}

// FromRecovered implements ErrorBuilder.FromRecovered.
func (b *errorBuilder) FromRecovered(recovered interface{}) error {
	if recovered == nil {
		return nil
	}

	var wrapped error
	var message string
	switch v := recovered.(type) {
	case error:
		wrapped = v
		message = v.Error()
	default:
		wrapped = fmt.Errorf("%v", v)
		message = wrapped.Error()
	}

	var sb strings.Builder
	if _, ok := recovered.(wasmruntime.Error); ok {
		// A wasmruntime.Error's message already begins with "wasm error: ",
		// so skip the "(recovered)" embellishment used for everything else.
		sb.WriteString(message)
	} else {
		sb.WriteString(message)
		sb.WriteString(" (recovered)")
	}
	sb.WriteString("\nwasm stack trace:")
	for _, f := range b.frames {
		sb.WriteString("\n\t")
		sb.WriteString(f)
	}

	return &tracedError{message: sb.String(), cause: wrapped}
}

type tracedError struct {
	message string
	cause   error
}

func (e *tracedError) Error() string { return e.message }
func (e *tracedError) Unwrap() error { return e.cause }
