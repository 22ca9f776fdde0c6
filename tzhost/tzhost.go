// Package tzhost models the documents the pipeline renders into: windows that open and
// close, each with one HTML document, DOM events and mutation observers.
//
// The pipeline only depends on the Host, Window and Document interfaces. MemHost and
// HTMLDocument are in-memory implementations backed by golang.org/x/net/html used by the
// CLI and the tests.
package tzhost

import (
	"context"

	"golang.org/x/net/html"
)

const (
	// EventLoadFinished is dispatched by an engine once a diagram has been rendered. The
	// event target is the <svg> element now in place of the placeholder.
	EventLoadFinished = "tikzjax-load-finished"
	// EventLoadFailed is dispatched when the engine could not render a placeholder. The
	// target is the error element left in its place.
	EventLoadFailed = "tikzjax-load-failed"
)

type Event struct {
	Name   string
	Target *html.Node
	// Doc is the document the event was dispatched on. DispatchEvent fills it in.
	Doc Document
	// Err is set on EventLoadFailed.
	Err error
}

type Listener func(ctx context.Context, ev Event)

type Document interface {
	ID() string

	// View calls fn with the document root while holding the read lock.
	View(fn func(root *html.Node) error) error
	// Update calls fn with the document root while holding the write lock. Observers are
	// notified once the lock is released, whether or not fn failed.
	Update(fn func(root *html.Node) error) error

	// AddEventListener registers l for events named name. Registering the same function
	// twice yields two registrations. remove unregisters this registration only.
	AddEventListener(name string, l Listener) (remove func())
	// DispatchEvent calls the listeners registered for ev.Name at the time of the call,
	// without holding the document lock.
	DispatchEvent(ctx context.Context, ev Event)

	// Observe calls fn after every Update until disconnect is called. fn runs on the
	// goroutine that called Update and must not block.
	Observe(fn func()) (disconnect func())
}

type Window interface {
	ID() string
	Document() Document
}

type Host interface {
	// Windows returns the currently open windows in the order they were opened.
	Windows() []Window
	// OnWindowOpen calls fn with every window opened after the call.
	OnWindowOpen(fn func(Window)) (unsubscribe func())
	// OnWindowClose calls fn with every window closed after the call, before its document
	// is discarded.
	OnWindowClose(fn func(Window)) (unsubscribe func())
}
