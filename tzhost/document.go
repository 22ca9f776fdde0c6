package tzhost

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/net/html"
)

type listenerEntry struct {
	name string
	fn   Listener
}

type observerEntry struct {
	fn func()
}

// HTMLDocument is a Document held in memory.
type HTMLDocument struct {
	id string

	mu   sync.RWMutex
	root *html.Node

	lmu       sync.Mutex
	listeners []*listenerEntry
	observers []*observerEntry
}

var _ Document = &HTMLDocument{}

// NewDocument parses body into the <body> of a fresh HTML document.
func NewDocument(id, title, body string) (*HTMLDocument, error) {
	src := fmt.Sprintf("<!DOCTYPE html><html><head><title>%s</title></head><body>%s</body></html>", html.EscapeString(title), body)
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document %s: %w", id, err)
	}
	return &HTMLDocument{
		id:   id,
		root: root,
	}, nil
}

func (d *HTMLDocument) ID() string {
	return d.id
}

func (d *HTMLDocument) View(fn func(root *html.Node) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return fn(d.root)
}

func (d *HTMLDocument) Update(fn func(root *html.Node) error) error {
	d.mu.Lock()
	err := fn(d.root)
	d.mu.Unlock()

	d.lmu.Lock()
	observers := append([]*observerEntry(nil), d.observers...)
	d.lmu.Unlock()
	for _, o := range observers {
		o.fn()
	}
	return err
}

func (d *HTMLDocument) AddEventListener(name string, l Listener) (remove func()) {
	e := &listenerEntry{name: name, fn: l}
	d.lmu.Lock()
	d.listeners = append(d.listeners, e)
	d.lmu.Unlock()

	return func() {
		d.lmu.Lock()
		defer d.lmu.Unlock()
		for i, e2 := range d.listeners {
			if e2 == e {
				d.listeners = append(d.listeners[:i], d.listeners[i+1:]...)
				return
			}
		}
	}
}

func (d *HTMLDocument) DispatchEvent(ctx context.Context, ev Event) {
	if ev.Doc == nil {
		ev.Doc = d
	}
	d.lmu.Lock()
	var fns []Listener
	for _, e := range d.listeners {
		if e.name == ev.Name {
			fns = append(fns, e.fn)
		}
	}
	d.lmu.Unlock()

	for _, fn := range fns {
		fn(ctx, ev)
	}
}

func (d *HTMLDocument) Observe(fn func()) (disconnect func()) {
	o := &observerEntry{fn: fn}
	d.lmu.Lock()
	d.observers = append(d.observers, o)
	d.lmu.Unlock()

	return func() {
		d.lmu.Lock()
		defer d.lmu.Unlock()
		for i, o2 := range d.observers {
			if o2 == o {
				d.observers = append(d.observers[:i], d.observers[i+1:]...)
				return
			}
		}
	}
}

// ListenerCount returns how many listeners are registered for name.
func (d *HTMLDocument) ListenerCount(name string) int {
	d.lmu.Lock()
	defer d.lmu.Unlock()
	n := 0
	for _, e := range d.listeners {
		if e.name == name {
			n++
		}
	}
	return n
}

// ObserverCount returns how many mutation observers are connected.
func (d *HTMLDocument) ObserverCount() int {
	d.lmu.Lock()
	defer d.lmu.Unlock()
	return len(d.observers)
}

// HTML serializes the whole document.
func (d *HTMLDocument) HTML() ([]byte, error) {
	buf := &bytes.Buffer{}
	err := d.View(func(root *html.Node) error {
		return html.Render(buf, root)
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BodyHTML serializes the children of <body>.
func (d *HTMLDocument) BodyHTML() (string, error) {
	var s string
	err := d.View(func(root *html.Node) (err error) {
		s, err = InnerHTML(Body(root))
		return err
	})
	return s, err
}
