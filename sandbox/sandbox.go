// Package sandbox runs authored user code under a restricted ECMAScript
// evaluator (goja), backing the python_code node kind. The wire name is a
// holdover from the system this engine generalizes; the sandboxed language
// is goja's JavaScript subset, not Python — see the engine-level design
// notes for why.
package sandbox

import (
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
)

// Error reports a sandbox compile, runtime, or timeout failure.
type Error struct {
	Message string
}

func (e *Error) Error() string { return "python_code_error: " + e.Message }

// StdoutKey is the reserved result key under which captured console output
// is attached, when the callable's return value is an object.
const StdoutKey = "_stdout"

// Run executes code as the body of a user_main(input) callable and invokes
// it with input, enforcing timeout as a hard wall-clock budget. If the
// callable returns an object (a JS object, exported as map[string]any) it
// is used as-is — with captured stdout merged in under StdoutKey — and
// otherwise the raw exported value is returned for projection.
func Run(code string, input any, timeout time.Duration) (any, error) {
	vm := goja.New()

	var stdout strings.Builder
	console := vm.NewObject()
	_ = console.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		stdout.WriteString(strings.Join(parts, " "))
		stdout.WriteByte('\n')
		return goja.Undefined()
	})
	_ = vm.Set("console", console)

	timer := time.AfterFunc(timeout, func() {
		vm.Interrupt("sandbox execution timed out")
	})
	defer timer.Stop()

	done := make(chan struct{})
	var result goja.Value
	var runErr error

	go func() {
		defer close(done)
		wrapped := fmt.Sprintf("(function user_main(input){\n%s\n})", code)
		fn, err := vm.RunString(wrapped)
		if err != nil {
			runErr = err
			return
		}
		callable, ok := goja.AssertFunction(fn)
		if !ok {
			runErr = fmt.Errorf("user code did not evaluate to a callable")
			return
		}
		v, err := callable(goja.Undefined(), vm.ToValue(input))
		if err != nil {
			runErr = err
			return
		}
		result = v
	}()
	<-done

	if runErr != nil {
		return nil, &Error{Message: runErr.Error()}
	}

	exported := result.Export()
	if m, ok := exported.(map[string]any); ok {
		if stdout.Len() > 0 {
			m[StdoutKey] = stdout.String()
		}
		return m, nil
	}
	return exported, nil
}
