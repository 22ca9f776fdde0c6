package jsrunner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

type gojaRunner struct {
	vm      *goja.Runtime
	console ConsoleFunc
}

type gojaValue struct {
	val goja.Value
	vm  *goja.Runtime
}

// NewJSRunner returns a fresh runtime. A goja runtime is not safe for concurrent use, so
// callers that render concurrently make one runner per render.
func NewJSRunner(console ConsoleFunc) (JSRunner, error) {
	g := &gojaRunner{vm: goja.New(), console: console}
	if err := g.installConsole(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *gojaRunner) RunString(code string) (JSValue, error) {
	return g.RunScript("", code)
}

func (g *gojaRunner) RunScript(name, code string) (JSValue, error) {
	val, err := g.vm.RunScript(name, code)
	if err != nil {
		return nil, err
	}
	return &gojaValue{val: val, vm: g.vm}, nil
}

func (v *gojaValue) String() string {
	return v.val.String()
}

func (v *gojaValue) Export() interface{} {
	return v.val.Export()
}

func (v *gojaValue) IsPromise() bool {
	_, ok := v.val.Export().(*goja.Promise)
	return ok
}

func (g *gojaRunner) Set(name string, value interface{}) error {
	return g.vm.Set(name, value)
}

func (g *gojaRunner) Get(name string) (JSValue, bool) {
	val := g.vm.Get(name)
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, false
	}
	return &gojaValue{val: val, vm: g.vm}, true
}

func (g *gojaRunner) Call(fn string, args ...interface{}) (JSValue, error) {
	callable, ok := goja.AssertFunction(g.vm.Get(fn))
	if !ok {
		return nil, fmt.Errorf("%s is not a function", fn)
	}
	jsArgs := make([]goja.Value, len(args))
	for i, arg := range args {
		jsArgs[i] = g.vm.ToValue(arg)
	}
	val, err := callable(goja.Undefined(), jsArgs...)
	if err != nil {
		return nil, err
	}
	return &gojaValue{val: val, vm: g.vm}, nil
}

func (g *gojaRunner) WaitPromise(ctx context.Context, val JSValue) (interface{}, error) {
	gVal := val.(*gojaValue)
	promise, ok := gVal.val.Export().(*goja.Promise)
	if !ok {
		return gVal.val.Export(), nil
	}

	for promise.State() == goja.PromiseStatePending {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		continue
	}

	if promise.State() == goja.PromiseStateRejected {
		if reason := promise.Result(); reason != nil {
			return nil, fmt.Errorf("promise rejected: %s", reason.String())
		}
		return nil, errors.New("promise rejected")
	}

	return promise.Result().Export(), nil
}

func (g *gojaRunner) installConsole() error {
	vm := g.vm
	console := vm.NewObject()

	for _, level := range []string{"log", "info", "warn", "error"} {
		level := level
		err := console.Set(level, vm.ToValue(func(call goja.FunctionCall) goja.Value {
			if g.console == nil {
				return nil
			}
			args := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				args[i] = arg.String()
			}
			g.console(level, strings.Join(args, " "))
			return nil
		}))
		if err != nil {
			return err
		}
	}

	return vm.Set("console", console)
}
