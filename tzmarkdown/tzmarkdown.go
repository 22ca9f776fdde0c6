// Package tzmarkdown converts markdown notes to HTML and finds their tikz blocks.
package tzmarkdown

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkHtml "github.com/yuin/goldmark/renderer/html"
)

// ContainerClass is the class of the empty element left where a tikz block was.
const ContainerClass = "tikzjax-container"

var markdownRenderer = goldmark.New(
	goldmark.WithRendererOptions(
		goldmarkHtml.WithUnsafe(),
		goldmarkHtml.WithXHTML(),
	),
	goldmark.WithExtensions(
		extension.Strikethrough,
		extension.Table,
	),
)

// Block is the source of a ```tikz fence and the id of the container it renders into.
type Block struct {
	ContainerID string
	Source      string
}

type Document struct {
	// Title is the text of the first h1, if any.
	Title  string
	Body   string
	Blocks []Block
}

// Convert renders md and swaps every ```tikz fence for an empty container.
func Convert(md []byte) (*Document, error) {
	var output bytes.Buffer
	if err := markdownRenderer.Convert(md, &output); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(&output)
	if err != nil {
		return nil, err
	}

	d := &Document{
		Title: strings.TrimSpace(doc.Find("h1").First().Text()),
	}
	doc.Find("pre > code.language-tikz").Each(func(i int, code *goquery.Selection) {
		id := fmt.Sprintf("%s-%d", ContainerClass, i)
		d.Blocks = append(d.Blocks, Block{
			ContainerID: id,
			// Fences keep their final newline.
			Source: strings.TrimSuffix(code.Text(), "\n"),
		})
		code.Parent().ReplaceWithHtml(fmt.Sprintf(`<div class="%s" id="%s"></div>`, ContainerClass, id))
	})

	d.Body, err = doc.Find("body").Html()
	if err != nil {
		return nil, err
	}
	return d, nil
}
