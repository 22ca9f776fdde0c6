// Package tzpipeline turns TikZ blocks of open documents into displayed diagrams.
//
// RenderBlock leaves a placeholder for the engine. When the engine reports the graphic it
// produced, the coordinator rewrites it with tzsvg and puts the result in its place.
package tzpipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cdr.dev/slog"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/net/html"

	"oss.terrastruct.com/util-go/xdefer"

	"oss.terrastruct.com/tikzjax/lib/background"
	"oss.terrastruct.com/tikzjax/lib/log"
	"oss.terrastruct.com/tikzjax/lib/syncmap"
	"oss.terrastruct.com/tikzjax/tzblock"
	"oss.terrastruct.com/tikzjax/tzengine"
	"oss.terrastruct.com/tikzjax/tzhost"
	"oss.terrastruct.com/tikzjax/tzlifecycle"
	"oss.terrastruct.com/tikzjax/tzsettings"
	"oss.terrastruct.com/tikzjax/tzsvg"
)

const (
	// WrapperClass is the class of the element every diagram is displayed in.
	WrapperClass = "tikzjax-block"
	// RequestAttr on a wrapper holds the id of its request.
	RequestAttr = "data-tikzjax-request"
)

var (
	ErrUnloaded     = errors.New("pipeline unloaded")
	ErrWindowClosed = errors.New("window closed")
	ErrTimeout      = errors.New("render timed out")
	ErrEngine       = errors.New("engine failed")
)

type Coordinator struct {
	host     tzhost.Host
	settings tzsettings.Settings
	manager  *tzlifecycle.Manager

	// Optimizer replaces the default minifier when set before Load.
	Optimizer tzsvg.Optimizer

	pending syncmap.SyncMap[string, *Request]

	mu         sync.Mutex
	ctx        context.Context
	loaded     bool
	unsubOpen  func()
	unsubClose func()
	stopSweep  func()
}

// New returns a Coordinator rendering the blocks of host's documents with engine.
func New(host tzhost.Host, engine tzengine.Engine, settings tzsettings.Settings) *Coordinator {
	c := &Coordinator{
		host:     host,
		settings: settings,
		pending:  syncmap.New[string, *Request](),
	}
	c.manager = tzlifecycle.NewManager(host, engine, c.handle)
	return c
}

// Manager returns the lifecycle manager the coordinator injects the engine with.
func (c *Coordinator) Manager() *tzlifecycle.Manager {
	return c.manager
}

// Load injects the engine into every open window and into every window opened until
// Unload.
func (c *Coordinator) Load(ctx context.Context) (err error) {
	defer xdefer.Errorf(&err, "failed to load pipeline")

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}
	c.ctx = log.Fork(context.Background(), ctx)
	c.loaded = true

	err = c.manager.InjectAll(ctx)
	c.unsubOpen = c.host.OnWindowOpen(c.windowOpened)
	c.unsubClose = c.host.OnWindowClose(c.windowClosed)

	if c.settings.RenderTimeout > 0 {
		c.stopSweep = background.Repeat(c.sweep, sweepInterval(c.settings.RenderTimeout))
	}
	log.Debug(ctx, "loaded pipeline", slog.F("windows", len(c.host.Windows())))
	return err
}

// Unload removes the engine from every window, then stops watching for new ones. Requests
// still pending fail with ErrUnloaded.
func (c *Coordinator) Unload(ctx context.Context) (err error) {
	defer xdefer.Errorf(&err, "failed to unload pipeline")

	c.mu.Lock()
	if !c.loaded {
		c.mu.Unlock()
		return nil
	}
	c.loaded = false
	unsubOpen, unsubClose, stopSweep := c.unsubOpen, c.unsubClose, c.stopSweep
	c.unsubOpen, c.unsubClose, c.stopSweep = nil, nil, nil
	c.mu.Unlock()

	err = c.manager.RemoveAll(ctx)
	unsubOpen()
	unsubClose()
	if stopSweep != nil {
		stopSweep()
	}

	c.pending.Range(func(id string, _ *Request) bool {
		c.reject(ctx, id, ErrUnloaded)
		return true
	})
	if err != nil {
		log.Error(ctx, fmt.Sprintf("engine teardown incomplete: %v", err))
	}
	return err
}

func (c *Coordinator) isLoaded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loaded
}

func (c *Coordinator) logger() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

func (c *Coordinator) windowOpened(w tzhost.Window) {
	// A window can open while Unload is between RemoveAll and unsubscribing.
	if !c.isLoaded() {
		return
	}
	ctx := c.logger()
	if err := c.manager.Inject(ctx, w.Document()); err != nil {
		log.Error(ctx, err.Error(), slog.F("window", w.ID()))
	}
}

func (c *Coordinator) windowClosed(w tzhost.Window) {
	ctx := c.logger()
	doc := w.Document()
	if err := c.manager.Remove(ctx, doc); err != nil {
		log.Error(ctx, err.Error(), slog.F("window", w.ID()))
	}
	c.pending.Range(func(id string, req *Request) bool {
		if req.Doc.ID() == doc.ID() {
			c.reject(ctx, id, ErrWindowClosed)
		}
		return true
	})
}

// RenderBlock parses raw and appends the diagram it describes to container, which must
// belong to doc. The engine attached to doc picks it up from there.
func (c *Coordinator) RenderBlock(ctx context.Context, doc tzhost.Document, container *html.Node, raw string) (*Request, error) {
	if !c.isLoaded() {
		return nil, ErrUnloaded
	}

	req := newRequest(uuid.NewString(), doc, tzblock.Parse(raw))
	err := doc.Update(func(root *html.Node) error {
		req.Wrapper = tzhost.NewElement("div",
			html.Attribute{Key: "class", Val: WrapperClass},
			html.Attribute{Key: "style", Val: req.Block.Style()},
			html.Attribute{Key: RequestAttr, Val: req.ID},
		)
		req.Placeholder = tzhost.NewElement("script",
			html.Attribute{Key: "type", Val: "text/tikz"},
			html.Attribute{Key: tzengine.ShowConsoleAttr, Val: "true"},
		)
		tzhost.SetText(req.Placeholder, req.Block.DiagramSource)
		req.Wrapper.AppendChild(req.Placeholder)
		req.setState(PlaceholderBuilt)

		// Registered before the engine can see the placeholder.
		c.pending.Set(req.ID, req)
		container.AppendChild(req.Wrapper)
		req.setState(DelegatedToEngine)
		return nil
	})
	if err != nil {
		c.pending.Delete(req.ID)
		return nil, fmt.Errorf("failed to build placeholder: %w", err)
	}
	log.Debug(ctx, "delegated diagram", slog.F("request", req.ID), slog.F("doc", doc.ID()))
	return req, nil
}

// handle is registered on every document for the completion and failure events of the
// engine.
func (c *Coordinator) handle(ctx context.Context, ev tzhost.Event) {
	if ev.Doc == nil || ev.Target == nil {
		log.Warn(ctx, "dropped event without target", slog.F("event", ev.Name))
		return
	}

	var id, svg string
	err := ev.Doc.View(func(root *html.Node) error {
		if ev.Target.Parent == nil {
			return tzhost.ErrDetached
		}
		if w := tzhost.Closest(ev.Target, RequestAttr); w != nil {
			id, _ = tzhost.Attr(w, RequestAttr)
		}
		var err error
		svg, err = tzhost.OuterHTML(ev.Target)
		return err
	})
	if err != nil {
		log.Warn(ctx, fmt.Sprintf("dropped %s: %v", ev.Name, err))
		return
	}
	req, ok := c.pending.Lookup(id)
	if !ok {
		log.Debug(ctx, "dropped event of unknown diagram", slog.F("event", ev.Name), slog.F("request", id))
		return
	}
	ctx = log.WithFields(ctx, slog.F("request", id))

	if ev.Name == tzhost.EventLoadFailed {
		c.reject(ctx, id, fmt.Errorf("%w: %v", ErrEngine, ev.Err))
		return
	}
	req.setState(CompletionReceived)

	svg, err = tzsvg.Rewrite(svg, &tzsvg.RewriteOpts{
		InvertColorsInDarkMode: c.settings.InvertColorsInDarkMode,
		Optimizer:              c.Optimizer,
	})
	if err != nil {
		log.Error(ctx, err.Error())
		c.reject(ctx, id, err)
		return
	}
	req.setState(Rewritten)

	// The request can time out or be unloaded while it is rewritten.
	if _, ok := c.pending.Pop(id); !ok {
		return
	}
	err = ev.Doc.Update(func(root *html.Node) error {
		if ev.Target.Parent == nil {
			return tzhost.ErrDetached
		}
		_, err := tzhost.ReplaceOuterHTML(ev.Target, svg)
		return err
	})
	if err != nil {
		log.Error(ctx, fmt.Sprintf("failed to display diagram: %v", err))
		req.finish(err)
		return
	}
	req.finish(nil)
	log.Debug(ctx, "displayed diagram")
}

// reject fails the pending request id with err. It reports whether the request was still
// pending.
func (c *Coordinator) reject(ctx context.Context, id string, err error) bool {
	req, ok := c.pending.Pop(id)
	if !ok {
		return false
	}
	req.finish(err)
	log.Debug(ctx, "diagram failed", slog.F("request", id), slog.Error(err))
	return true
}

func (c *Coordinator) sweep() {
	ctx := c.logger()
	now := time.Now()
	c.pending.Range(func(id string, req *Request) bool {
		if now.Sub(req.Created) < c.settings.RenderTimeout {
			return true
		}
		if !c.reject(ctx, id, ErrTimeout) {
			return true
		}
		err := req.Doc.Update(func(root *html.Node) error {
			if req.Wrapper.Parent == nil {
				return nil
			}
			return tzhost.SetInnerHTML(req.Wrapper, tzengine.ErrorMarkup(ErrTimeout.Error()))
		})
		if err != nil {
			log.Error(ctx, fmt.Sprintf("failed to show timeout: %v", err), slog.F("request", id))
		}
		log.Warn(ctx, "diagram timed out", slog.F("request", id), slog.F("after", c.settings.RenderTimeout))
		return true
	})
}

func sweepInterval(timeout time.Duration) time.Duration {
	d := timeout / 4
	if d > time.Second {
		d = time.Second
	}
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}

// Pending returns the number of requests not yet displayed or failed.
func (c *Coordinator) Pending() int {
	return c.pending.Len()
}

// Wait blocks until every request in reqs has settled and combines their errors.
func Wait(ctx context.Context, reqs ...*Request) error {
	var errs error
	for _, req := range reqs {
		if err := req.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errs = multierr.Append(errs, fmt.Errorf("request %s: %w", req.ID, err))
		}
	}
	return errs
}
