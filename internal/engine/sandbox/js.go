package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dop251/goja"
)

const (
	jsModule  = "module"
	jsExports = "exports"
	jsConsole = "console"
	jsMessage = "message"
)

func runJS(
	ctx context.Context, unit *CodeUnit, inputs map[string]any, lim Limits,
) (any, error) {
	vm := goja.New()
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer func() {
		stop()
		vm.ClearInterrupt()
	}()

	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	if lim.MaxCallStack > 0 {
		vm.SetMaxCallStackSize(lim.MaxCallStack)
	}
	if err := bindModule(vm, unit.Name); err != nil {
		return nil, err
	}

	if _, err := vm.RunScript(unit.Path, unit.Source); err != nil {
		return nil, jsError(ctx, err)
	}
	fn, err := jsEntry(vm)
	if err != nil {
		return nil, err
	}

	res, err := fn(goja.Undefined(), vm.ToValue(inputs))
	if err != nil {
		return nil, jsError(ctx, err)
	}
	return jsResult(vm, res)
}

func bindModule(vm *goja.Runtime, name string) error {
	module := vm.NewObject()
	exports := vm.NewObject()
	if err := module.Set(jsExports, exports); err != nil {
		return err
	}
	if err := vm.Set(jsModule, module); err != nil {
		return err
	}
	if err := vm.Set(jsExports, exports); err != nil {
		return err
	}

	console := vm.NewObject()
	logFn := func(call goja.FunctionCall) goja.Value {
		args := make([]any, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = a.Export()
		}
		slog.Debug("Code unit log",
			slog.String("step_name", name),
			slog.Any("args", args))
		return goja.Undefined()
	}
	for _, m := range []string{"log", "info", "warn", "error", "debug"} {
		if err := console.Set(m, logFn); err != nil {
			return err
		}
	}
	return vm.Set(jsConsole, console)
}

// jsEntry finds the code function on module.exports, exports, or the
// global object, in that order
func jsEntry(vm *goja.Runtime) (goja.Callable, error) {
	candidates := []goja.Value{}
	if module := vm.Get(jsModule); module != nil {
		if exp := module.ToObject(vm).Get(jsExports); isObject(exp) {
			candidates = append(candidates, exp.ToObject(vm).Get(entryFunction))
		}
	}
	if exp := vm.Get(jsExports); isObject(exp) {
		candidates = append(candidates, exp.ToObject(vm).Get(entryFunction))
	}
	candidates = append(candidates, vm.Get(entryFunction))

	for _, c := range candidates {
		if c == nil {
			continue
		}
		if fn, ok := goja.AssertFunction(c); ok {
			return fn, nil
		}
	}
	return nil, ErrNoEntryFunction
}

func jsResult(vm *goja.Runtime, v goja.Value) (any, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	p, ok := v.Export().(*goja.Promise)
	if !ok {
		return v.Export(), nil
	}
	switch p.State() {
	case goja.PromiseStateFulfilled:
		return jsResult(vm, p.Result())
	case goja.PromiseStateRejected:
		return nil, NewCodeError(jsMessageOf(vm, p.Result()))
	default:
		return nil, ErrPromisePending
	}
}

func jsError(ctx context.Context, err error) error {
	var ie *goja.InterruptedError
	if errors.As(err, &ie) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return NewCodeError(ie.Error())
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return NewCodeError(jsMessageOf(nil, ex.Value()))
	}
	return NewCodeError(err.Error())
}

func jsMessageOf(vm *goja.Runtime, v goja.Value) string {
	if v == nil {
		return "unknown error"
	}
	if obj, ok := v.(*goja.Object); ok {
		if msg := obj.Get(jsMessage); msg != nil && !goja.IsUndefined(msg) {
			return msg.String()
		}
	}
	if vm != nil && isObject(v) {
		return fmt.Sprint(v.Export())
	}
	return v.String()
}

func isObject(v goja.Value) bool {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return false
	}
	_, ok := v.(*goja.Object)
	return ok
}
