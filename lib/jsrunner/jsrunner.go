// Package jsrunner runs engine payloads written in JavaScript.
package jsrunner

import "context"

type JSRunner interface {
	RunString(code string) (JSValue, error)
	// RunScript is RunString with a name for the script used in stack traces.
	RunScript(name, code string) (JSValue, error)
	Set(name string, value interface{}) error
	Get(name string) (JSValue, bool)
	// Call invokes the global function fn with args.
	Call(fn string, args ...interface{}) (JSValue, error)
	WaitPromise(ctx context.Context, val JSValue) (interface{}, error)
}

type JSValue interface {
	String() string
	Export() interface{}
	IsPromise() bool
}

// ConsoleFunc receives every console.log/console.error line of a script.
type ConsoleFunc func(level, line string)
