package tzengine_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"cdr.dev/slog/sloggers/slogtest"
	tassert "github.com/stretchr/testify/assert"
	"golang.org/x/net/html"
	"oss.terrastruct.com/util-go/assert"

	"oss.terrastruct.com/tikzjax/lib/log"
	"oss.terrastruct.com/tikzjax/tzengine"
	"oss.terrastruct.com/tikzjax/tzhost"
)

type fakeEngine struct {
	render func(ctx context.Context, src string) (string, error)

	mu   sync.Mutex
	srcs []string
}

func (e *fakeEngine) Info(context.Context) (*tzengine.Info, error) {
	return &tzengine.Info{Name: "fake", Type: "bundled"}, nil
}

func (e *fakeEngine) Payload() string {
	return "fake"
}

func (e *fakeEngine) Render(ctx context.Context, src string) (string, error) {
	e.mu.Lock()
	e.srcs = append(e.srcs, src)
	e.mu.Unlock()
	return e.render(ctx, src)
}

func (e *fakeEngine) rendered() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.srcs...)
}

func events(doc tzhost.Document, name string) <-chan tzhost.Event {
	ch := make(chan tzhost.Event, 16)
	doc.AddEventListener(name, func(ctx context.Context, ev tzhost.Event) {
		ch <- ev
	})
	return ch
}

func waitEvent(t *testing.T, ch <-chan tzhost.Event) tzhost.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for event")
		return tzhost.Event{}
	}
}

func TestRuntime(t *testing.T) {
	t.Parallel()

	ctx := log.WithTB(context.Background(), t, nil)
	e := &fakeEngine{render: func(ctx context.Context, src string) (string, error) {
		return `<svg viewBox="0 0 1 1"><circle id="c" fill="black"></circle></svg>`, nil
	}}
	doc, err := tzhost.NewDocument("d", "t", `<div id="before"><script type="text/tikz">\draw (0,0);</script></div>`)
	assert.Success(t, err)
	finished := events(doc, tzhost.EventLoadFinished)

	rt := tzengine.Start(ctx, e, doc)
	defer rt.Stop()

	ev := waitEvent(t, finished)
	assert.String(t, "svg", ev.Target.Data)
	id, _ := tzhost.Attr(tzhost.Closest(ev.Target, "id"), "id")
	assert.String(t, "before", id)

	// Placeholders added later are picked up by the observer.
	assert.Success(t, doc.Update(func(root *html.Node) error {
		div := tzhost.NewElement("div", html.Attribute{Key: "id", Val: "after"})
		script := tzhost.NewElement("script", html.Attribute{Key: "type", Val: "text/tikz"})
		tzhost.SetText(script, `\draw (1,1);`)
		div.AppendChild(script)
		tzhost.Body(root).AppendChild(div)
		return nil
	}))
	waitEvent(t, finished)
	assert.Success(t, rt.Wait(ctx))

	assert.JSON(t, []string{`\draw (0,0);`, `\draw (1,1);`}, e.rendered())
	body, err := doc.BodyHTML()
	assert.Success(t, err)
	tassert.NotContains(t, body, "text/tikz")
	assert.Equal(t, 2, strings.Count(body, "<svg"))
}

func TestRuntimeRenderError(t *testing.T) {
	t.Parallel()

	ctx := log.WithTB(context.Background(), t, &slogtest.Options{IgnoreErrors: true})
	e := &fakeEngine{render: func(ctx context.Context, src string) (string, error) {
		return "", errors.New("! Undefined control sequence <x>")
	}}
	doc, err := tzhost.NewDocument("d", "t", `<div><script type="text/tikz">\bad</script></div>`)
	assert.Success(t, err)
	failed := events(doc, tzhost.EventLoadFailed)

	rt := tzengine.Start(ctx, e, doc)
	defer rt.Stop()

	ev := waitEvent(t, failed)
	assert.String(t, "pre", ev.Target.Data)
	assert.ErrorString(t, ev.Err, "! Undefined control sequence <x>")

	body, err := doc.BodyHTML()
	assert.Success(t, err)
	assert.String(t, `<div><pre class="tikzjax-error">! Undefined control sequence &lt;x&gt;</pre></div>`, body)
}

func TestRuntimeStop(t *testing.T) {
	t.Parallel()

	ctx := log.WithTB(context.Background(), t, nil)
	release := make(chan struct{})
	e := &fakeEngine{render: func(ctx context.Context, src string) (string, error) {
		<-release
		return `<svg></svg>`, nil
	}}
	doc, err := tzhost.NewDocument("d", "t", `<div><script type="text/tikz">a</script></div>`)
	assert.Success(t, err)
	finished := events(doc, tzhost.EventLoadFinished)

	rt := tzengine.Start(ctx, e, doc)
	assert.Equal(t, 1, doc.ObserverCount())

	// Wait for the placeholder to be claimed.
	for len(e.rendered()) == 0 {
		time.Sleep(time.Millisecond)
	}
	rt.Stop()
	rt.Stop()
	assert.Equal(t, 0, doc.ObserverCount())

	// The in flight render still completes.
	close(release)
	waitEvent(t, finished)
	assert.Success(t, rt.Wait(ctx))

	// New placeholders are not rendered once stopped.
	assert.Success(t, doc.Update(func(root *html.Node) error {
		script := tzhost.NewElement("script", html.Attribute{Key: "type", Val: "text/tikz"})
		tzhost.SetText(script, "b")
		tzhost.Body(root).AppendChild(script)
		return nil
	}))
	time.Sleep(50 * time.Millisecond)
	assert.JSON(t, []string{"a"}, e.rendered())
}

func TestRuntimeDetachedPlaceholder(t *testing.T) {
	t.Parallel()

	ctx := log.WithTB(context.Background(), t, nil)
	release := make(chan struct{})
	e := &fakeEngine{render: func(ctx context.Context, src string) (string, error) {
		<-release
		return `<svg></svg>`, nil
	}}
	doc, err := tzhost.NewDocument("d", "t", `<div id="w"><script type="text/tikz">a</script></div>`)
	assert.Success(t, err)
	finished := events(doc, tzhost.EventLoadFinished)

	rt := tzengine.Start(ctx, e, doc)
	defer rt.Stop()
	for len(e.rendered()) == 0 {
		time.Sleep(time.Millisecond)
	}
	assert.Success(t, doc.Update(func(root *html.Node) error {
		tzhost.Detach(tzhost.ElementByID(root, "w"))
		return nil
	}))
	close(release)
	assert.Success(t, rt.Wait(ctx))

	select {
	case <-finished:
		t.Fatal("unexpected event for a detached placeholder")
	default:
	}
}
