// Package sandbox executes untrusted transform scripts in an isolated,
// capability-free JavaScript interpreter.
//
// This is the broker's primary trust boundary. Each execution gets a fresh
// interpreter runtime whose global namespace holds only the ECMAScript
// builtins and the single input value: no filesystem, no network, no process
// access, no reference to the registry or any other host state. The host
// enforces a hard wall-clock deadline by interrupting the interpreter; a
// script raising its own error surfaces only the script's message.
package sandbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dop251/goja"

	"github.com/transom-dev/transom/internal/cachemanager"
	"github.com/transom-dev/transom/internal/contract"
	"github.com/transom-dev/transom/internal/log"
)

// Stable failure messages surfaced through the error taxonomy.
const (
	MsgScriptTimeout = "Script execution timed out"
	MsgScriptError   = "Script error"
)

// DefaultTimeout bounds script execution when no explicit deadline is configured.
const DefaultTimeout = 2 * time.Second

// maxCallStackSize bounds interpreter recursion depth so runaway recursion
// faults the script instead of exhausting host memory.
const maxCallStackSize = 4096

// transformFn is the function name a script may define to receive the input
// value explicitly. A script without it is evaluated as an expression whose
// completion value becomes the result.
const transformFn = "transform"

// Executor runs scripts with a hard deadline. Compiled programs are cached by
// content hash; goja programs are immutable and safe to share across runtimes.
type Executor struct {
	timeout  time.Duration
	programs cachemanager.CacheManager[string, *goja.Program]
}

// New creates an executor with the given wall-clock budget per execution.
// A non-positive timeout falls back to DefaultTimeout.
func New(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{
		timeout: timeout,
		programs: cachemanager.NewInMemoryCacheManager[string, *goja.Program](
			"scripts", cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval),
	}
}

// Execute runs script against input and returns the JSON encoding of its
// result. The script sees the decoded input as the global `input` (and as the
// argument of its `transform` function, when defined). Exceeding the deadline
// aborts the runtime and discards any partial result.
func (e *Executor) Execute(ctx context.Context, script string, input json.RawMessage) (json.RawMessage, error) {
	program, err := e.compile(ctx, script)
	if err != nil {
		return nil, err
	}

	var inputValue any
	if len(input) > 0 {
		if err := json.Unmarshal(input, &inputValue); err != nil {
			return nil, contract.WrapResourceError(MsgScriptError, fmt.Errorf("input is not valid JSON: %w", err))
		}
	}

	vm := goja.New()
	vm.SetMaxCallStackSize(maxCallStackSize)
	if err := vm.Set("input", inputValue); err != nil {
		return nil, contract.WrapResourceError(MsgScriptError, err)
	}

	type runResult struct {
		value goja.Value
		err   error
	}
	done := make(chan runResult, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- runResult{err: fmt.Errorf("script panicked: %v", p)}
			}
		}()

		value, runErr := vm.RunProgram(program)
		if runErr == nil {
			// Prefer an explicit transform(input) function when the script
			// defines one.
			if fn, ok := goja.AssertFunction(vm.Get(transformFn)); ok {
				value, runErr = fn(goja.Undefined(), vm.ToValue(inputValue))
			}
		}
		done <- runResult{value: value, err: runErr}
	}()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	var res runResult
	select {
	case res = <-done:
	case <-timer.C:
		vm.Interrupt(MsgScriptTimeout)
		res = <-done
	case <-ctx.Done():
		vm.Interrupt(ctx.Err().Error())
		res = <-done
	}

	if res.err != nil {
		return nil, classify(res.err)
	}

	return encodeResult(res.value)
}

// Timeout returns the configured per-execution budget.
func (e *Executor) Timeout() time.Duration { return e.timeout }

// compile returns the cached compiled program for script, compiling on a miss.
func (e *Executor) compile(ctx context.Context, script string) (*goja.Program, error) {
	sum := sha256.Sum256([]byte(script))
	key := hex.EncodeToString(sum[:])

	if program, ok := e.programs.Get(ctx, key); ok {
		return program, nil
	}

	program, err := goja.Compile("transform.js", script, true)
	if err != nil {
		return nil, contract.WrapResourceError(MsgScriptError, err)
	}

	e.programs.Set(ctx, key, program, cachemanager.DefaultExpiration)
	log.Debug(log.CatSandbox, "script compiled", "hash", key[:12])

	return program, nil
}

// classify maps interpreter failures onto the resource taxonomy. Timeouts and
// script faults are both contained; neither carries host state.
func classify(err error) error {
	switch e := err.(type) {
	case *goja.InterruptedError:
		return contract.NewResourceError(MsgScriptTimeout, fmt.Sprint(e.Value()))
	case *goja.Exception:
		// Only the script's own message crosses the boundary.
		return contract.NewResourceError(MsgScriptError, e.Value().String())
	case *goja.StackOverflowError:
		return contract.NewResourceError(MsgScriptError, "stack overflow")
	default:
		return contract.WrapResourceError(MsgScriptError, err)
	}
}

// encodeResult converts the script's return value to JSON.
func encodeResult(value goja.Value) (json.RawMessage, error) {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return json.RawMessage("null"), nil
	}

	data, err := json.Marshal(value.Export())
	if err != nil {
		return nil, contract.NewResourceError(MsgScriptError, "script returned a value that cannot be encoded as JSON")
	}
	return data, nil
}
