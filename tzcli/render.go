package tzcli

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/net/html"

	"oss.terrastruct.com/util-go/xmain"

	"oss.terrastruct.com/tikzjax/lib/log"
	"oss.terrastruct.com/tikzjax/tzengine"
	"oss.terrastruct.com/tikzjax/tzhost"
	"oss.terrastruct.com/tikzjax/tzmarkdown"
	"oss.terrastruct.com/tikzjax/tzpipeline"
	"oss.terrastruct.com/tikzjax/tzsettings"
)

type renderOpts struct {
	engine     tzengine.Engine
	settings   tzsettings.Settings
	inputPath  string
	outputPath string
}

// pageStyle defines the colors recolored diagrams refer to.
const pageStyle = `
:root { --background-primary: #ffffff; color: #222222; background: var(--background-primary); }
@media (prefers-color-scheme: dark) {
  :root { --background-primary: #1e1e1e; color: #dcddde; }
}
.tikzjax-block { display: flex; justify-content: center; margin: 1em 0; }
.tikzjax-block svg { max-width: 100%; height: auto; }
.tikzjax-error { color: #e93147; white-space: pre-wrap; }
`

// render converts the markdown at inputPath, renders its diagrams in a fresh window and
// writes the resulting page to outputPath. The page is written even when some diagrams
// failed. page is what was written, nil when nothing was.
func render(ctx context.Context, ms *xmain.State, opts renderOpts) (page []byte, err error) {
	start := time.Now()
	input, err := ms.ReadPath(opts.inputPath)
	if err != nil {
		return nil, err
	}
	md, err := tzmarkdown.Convert(input)
	if err != nil {
		return nil, err
	}

	host := tzhost.NewMemHost()
	c := tzpipeline.New(host, opts.engine, opts.settings)
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err2 := c.Unload(ctx); err == nil {
			err = err2
		}
	}()

	title := md.Title
	if title == "" {
		title = ms.HumanPath(opts.inputPath)
	}
	w, err := host.Open(title, md.Body)
	if err != nil {
		return nil, err
	}

	var reqs []*tzpipeline.Request
	for _, b := range md.Blocks {
		var container *html.Node
		_ = w.Document().View(func(root *html.Node) error {
			container = tzhost.ElementByID(root, b.ContainerID)
			return nil
		})
		if container == nil {
			return nil, fmt.Errorf("missing container %s", b.ContainerID)
		}
		req, err := c.RenderBlock(ctx, w.Document(), container, b.Source)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	if len(reqs) > 0 {
		ms.Log.Info.Printf("rendering %d diagram(s) of %s...", len(reqs), ms.HumanPath(opts.inputPath))
	}
	renderErr := tzpipeline.Wait(ctx, reqs...)

	// Closing the window takes the engine out of the page.
	host.Close(w)
	page, err = pageHTML(w.HTMLDocument())
	if err != nil {
		return nil, err
	}
	err = ms.WritePath(opts.outputPath, page)
	if err != nil {
		return nil, err
	}
	dur := time.Since(start)
	log.Debug(ctx, fmt.Sprintf("rendered %s in %s", opts.inputPath, dur))
	if opts.outputPath != "-" {
		ms.Log.Success.Printf("successfully rendered %s to %s in %s", ms.HumanPath(opts.inputPath), ms.HumanPath(opts.outputPath), dur.Round(time.Millisecond))
	}
	return page, renderErr
}

func pageHTML(doc *tzhost.HTMLDocument) ([]byte, error) {
	err := doc.Update(func(root *html.Node) error {
		head := tzhost.Find(root, "head")
		if len(head) == 0 {
			return fmt.Errorf("document %s has no head", doc.ID())
		}
		meta := tzhost.NewElement("meta", html.Attribute{Key: "charset", Val: "utf-8"})
		head[0].InsertBefore(meta, head[0].FirstChild)
		style := tzhost.NewElement("style")
		tzhost.SetText(style, pageStyle)
		head[0].AppendChild(style)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc.HTML()
}
