// internal/jsexec/runtime.go
package jsexec

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// DefaultTimeout applies when the context has no deadline.
const DefaultTimeout = 30 * time.Second

// ErrPendingPromise is returned when a script returns a promise that has not
// settled by the time the script finishes. There is no event loop to drive it.
var ErrPendingPromise = errors.New("script returned a pending promise")

// ExceptionError is a JavaScript exception thrown by a script.
type ExceptionError struct {
	Message string
}

func (e *ExceptionError) Error() string {
	return "javascript exception: " + e.Message
}

// Runtime is a persistent page context. Globals set by one script, such as
// window.foo = 1, are visible to the next. Scripts run one at a time.
type Runtime struct {
	vm        *goja.Runtime
	document  *goja.Object
	logger    *zap.Logger
	execMutex sync.Mutex
}

// NewRuntime creates a page context whose document has the given title.
// window is an alias of the global object, as in a browser.
func NewRuntime(logger *zap.Logger, title string) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}

	vm := goja.New()
	global := vm.GlobalObject()
	_ = global.Set("window", global)

	document := vm.NewObject()
	_ = document.Set("title", title)
	_ = global.Set("document", document)

	console := vm.NewObject()
	log := logger.Named("jsexec")
	_ = console.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]interface{}, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.Export()
		}
		log.Info("console.log", zap.Any("args", parts))
		return goja.Undefined()
	})
	_ = global.Set("console", console)

	return &Runtime{vm: vm, document: document, logger: log}
}

// SetTitle changes document.title.
func (r *Runtime) SetTitle(title string) {
	r.execMutex.Lock()
	defer r.execMutex.Unlock()
	_ = r.document.Set("title", title)
}

// ExecuteScript runs body as the body of a function invoked with args and
// the global object as this, and exports its return value to Go.
// Undefined becomes nil. Execution is interrupted when ctx is done.
func (r *Runtime) ExecuteScript(ctx context.Context, body string, args []interface{}) (interface{}, error) {
	r.execMutex.Lock()
	defer r.execMutex.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	stop := r.watchContext(ctx)
	defer stop()

	prog, err := goja.Compile("script", "(function () {\n"+body+"\n})", false)
	if err != nil {
		return nil, &ExceptionError{Message: err.Error()}
	}
	val, err := r.vm.RunProgram(prog)
	if err != nil {
		return nil, r.translate(ctx, err)
	}
	fn, ok := goja.AssertFunction(val)
	if !ok {
		return nil, fmt.Errorf("script did not compile to a function")
	}

	jsArgs := make([]goja.Value, len(args))
	for i, arg := range args {
		jsArgs[i] = r.vm.ToValue(arg)
	}

	result, err := fn(r.vm.GlobalObject(), jsArgs...)
	if err != nil {
		return nil, r.translate(ctx, err)
	}
	return exportValue(result)
}

// watchContext interrupts the VM when ctx ends. The returned func stops the
// watcher and clears any pending interrupt before the next script runs.
func (r *Runtime) watchContext(ctx context.Context) func() {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			r.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()
	return func() {
		close(done)
		<-exited
		r.vm.ClearInterrupt()
	}
}

func (r *Runtime) translate(ctx context.Context, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return fmt.Errorf("javascript execution interrupted: %w", ctx.Err())
	}
	var exception *goja.Exception
	if errors.As(err, &exception) {
		if v := exception.Value(); v != nil {
			return &ExceptionError{Message: v.String()}
		}
		return &ExceptionError{Message: exception.Error()}
	}
	return fmt.Errorf("javascript error: %w", err)
}

func exportValue(v goja.Value) (interface{}, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	exported := v.Export()
	if promise, ok := exported.(*goja.Promise); ok {
		switch promise.State() {
		case goja.PromiseStateFulfilled:
			return exportValue(promise.Result())
		case goja.PromiseStateRejected:
			return nil, &ExceptionError{Message: fmt.Sprintf("promise rejected: %v", promise.Result().Export())}
		default:
			return nil, ErrPendingPromise
		}
	}
	return exported, nil
}
