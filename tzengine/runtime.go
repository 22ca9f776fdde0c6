package tzengine

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/net/html"

	"oss.terrastruct.com/tikzjax/lib/log"
	"oss.terrastruct.com/tikzjax/tzhost"
)

const (
	// PlaceholderSelector matches the elements an engine renders.
	PlaceholderSelector = `script[type="text/tikz"]`
	// ShowConsoleAttr on a placeholder asks for the console output of its render.
	ShowConsoleAttr = "data-show-console"

	claimedAttr = "data-tikzjax-claimed"
)

// Runtime is an engine serving one document. It watches the document for placeholders,
// renders each one once and puts the SVG where the placeholder was.
type Runtime struct {
	ctx    context.Context
	engine Engine
	doc    tzhost.Document

	wake       chan struct{}
	stop       chan struct{}
	stopOnce   sync.Once
	disconnect func()

	done chan struct{}

	// In flight renders. Stop does not cancel them.
	mu       sync.Mutex
	inflight int
	idle     chan struct{}
}

type placeholder struct {
	n           *html.Node
	src         string
	showConsole bool
}

// Start begins serving doc with engine. Placeholders already in doc are picked up
// immediately.
func Start(ctx context.Context, engine Engine, doc tzhost.Document) *Runtime {
	rt := &Runtime{
		ctx:    log.Fork(context.Background(), log.Named(ctx, "engine")),
		engine: engine,
		doc:    doc,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		idle:   make(chan struct{}),
	}
	close(rt.idle)
	rt.disconnect = doc.Observe(rt.requestScan)
	rt.requestScan()

	go rt.loop()
	return rt
}

func (rt *Runtime) requestScan() {
	select {
	case rt.wake <- struct{}{}:
	default:
	}
}

func (rt *Runtime) loop() {
	defer close(rt.done)
	for {
		select {
		case <-rt.stop:
			return
		case <-rt.wake:
			ps, err := rt.claim()
			if err != nil {
				log.Error(rt.ctx, fmt.Sprintf("failed to scan document %s: %v", rt.doc.ID(), err))
				continue
			}
			for _, p := range ps {
				rt.begin()
				go rt.render(p)
			}
		}
	}
}

// claim marks every unclaimed placeholder of the document and returns them.
func (rt *Runtime) claim() ([]placeholder, error) {
	var ps []placeholder
	err := rt.doc.View(func(root *html.Node) error {
		for _, n := range tzhost.Find(root, PlaceholderSelector) {
			if _, ok := tzhost.Attr(n, claimedAttr); !ok {
				ps = append(ps, placeholder{n: n})
			}
		}
		return nil
	})
	if err != nil || len(ps) == 0 {
		return nil, err
	}

	var claimed []placeholder
	err = rt.doc.Update(func(root *html.Node) error {
		for _, p := range ps {
			// Another scan of the same runtime cannot race us but a second runtime on
			// the same document can.
			if _, ok := tzhost.Attr(p.n, claimedAttr); ok || p.n.Parent == nil {
				continue
			}
			tzhost.SetAttr(p.n, claimedAttr, "")
			v, _ := tzhost.Attr(p.n, ShowConsoleAttr)
			p.showConsole = v == "true"
			p.src = tzhost.Text(p.n)
			claimed = append(claimed, p)
		}
		return nil
	})
	return claimed, err
}

func (rt *Runtime) render(p placeholder) {
	defer rt.end()

	ctx := rt.ctx
	if !p.showConsole {
		ctx = log.Discard(ctx)
	}
	svg, renderErr := rt.engine.Render(ctx, p.src)

	var target *html.Node
	err := rt.doc.Update(func(root *html.Node) error {
		if p.n.Parent == nil {
			return tzhost.ErrDetached
		}
		markup := svg
		if renderErr != nil {
			markup = errorMarkup(renderErr)
		}
		nodes, err := tzhost.ReplaceOuterHTML(p.n, markup)
		if err != nil {
			return err
		}
		target = firstElement(nodes)
		return nil
	})
	if err != nil {
		log.Warn(rt.ctx, fmt.Sprintf("dropped render for document %s: %v", rt.doc.ID(), err))
		return
	}

	if renderErr != nil {
		log.Error(rt.ctx, fmt.Sprintf("failed to render diagram: %v", renderErr))
		rt.doc.DispatchEvent(rt.ctx, tzhost.Event{
			Name:   tzhost.EventLoadFailed,
			Target: target,
			Err:    renderErr,
		})
		return
	}
	rt.doc.DispatchEvent(rt.ctx, tzhost.Event{
		Name:   tzhost.EventLoadFinished,
		Target: target,
	})
}

// Stop disconnects the runtime from the document. Renders in flight still complete and
// dispatch their events.
func (rt *Runtime) Stop() {
	rt.stopOnce.Do(func() {
		rt.disconnect()
		close(rt.stop)
	})
	<-rt.done
}

func (rt *Runtime) begin() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.inflight == 0 {
		rt.idle = make(chan struct{})
	}
	rt.inflight++
}

func (rt *Runtime) end() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.inflight--
	if rt.inflight == 0 {
		close(rt.idle)
	}
}

// Wait blocks until no render is in flight or ctx is done.
func (rt *Runtime) Wait(ctx context.Context) error {
	rt.mu.Lock()
	idle := rt.idle
	rt.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ErrorMarkup is what a placeholder becomes when its diagram cannot be shown.
func ErrorMarkup(msg string) string {
	return `<pre class="tikzjax-error">` + html.EscapeString(msg) + `</pre>`
}

func errorMarkup(err error) string {
	return ErrorMarkup(err.Error())
}

func firstElement(nodes []*html.Node) *html.Node {
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			return n
		}
	}
	return nil
}
