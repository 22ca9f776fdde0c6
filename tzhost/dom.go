package tzhost

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var ErrDetached = errors.New("element is not attached to a document")

func selection(root *html.Node) *goquery.Selection {
	return goquery.NewDocumentFromNode(root).Selection
}

// Find returns the elements under root matching the CSS selector, in document order.
func Find(root *html.Node, selector string) []*html.Node {
	return selection(root).Find(selector).Nodes
}

// Body returns the <body> element of root, or root itself when root has none.
func Body(root *html.Node) *html.Node {
	if body := Find(root, "body"); len(body) > 0 {
		return body[0]
	}
	return root
}

// ElementByID returns the first element in document order whose id is id.
//
// Generated ids may start with a digit and are not valid CSS id selectors, so this
// compares the attribute instead of selecting #id.
func ElementByID(root *html.Node, id string) *html.Node {
	s := selection(root).Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr("id")
		return v == id
	})
	if s.Length() == 0 {
		return nil
	}
	return s.Get(0)
}

// ElementsByAttr returns every element whose attribute key equals val.
func ElementsByAttr(root *html.Node, key, val string) []*html.Node {
	return selection(root).Find("["+key+"]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		v, _ := s.Attr(key)
		return v == val
	}).Nodes
}

// Closest returns n or its nearest ancestor that carries the attribute key.
func Closest(n *html.Node, key string) *html.Node {
	for ; n != nil; n = n.Parent {
		if _, ok := Attr(n, key); ok && n.Type == html.ElementNode {
			return n
		}
	}
	return nil
}

func NewElement(tag string, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
		Attr:     attrs,
	}
}

func Attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// Text returns the concatenated text of n's descendants.
func Text(n *html.Node) string {
	return goquery.NewDocumentFromNode(n).Text()
}

// SetText replaces the children of n with a single text node.
func SetText(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; c = n.FirstChild {
		n.RemoveChild(c)
	}
	n.AppendChild(&html.Node{
		Type: html.TextNode,
		Data: text,
	})
}

// Detach removes n from its parent. It reports whether n was attached.
func Detach(n *html.Node) bool {
	if n.Parent == nil {
		return false
	}
	n.Parent.RemoveChild(n)
	return true
}

func OuterHTML(n *html.Node) (string, error) {
	buf := &bytes.Buffer{}
	if err := html.Render(buf, n); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func InnerHTML(n *html.Node) (string, error) {
	buf := &bytes.Buffer{}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(buf, c); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// ReplaceOuterHTML parses markup in the context of n's parent and puts the resulting
// nodes where n was. It returns the new nodes.
func ReplaceOuterHTML(n *html.Node, markup string) ([]*html.Node, error) {
	parent := n.Parent
	if parent == nil {
		return nil, ErrDetached
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), parent)
	if err != nil {
		return nil, fmt.Errorf("failed to parse replacement markup: %w", err)
	}
	for _, c := range nodes {
		parent.InsertBefore(c, n)
	}
	parent.RemoveChild(n)
	return nodes, nil
}

// SetInnerHTML replaces the children of n with the nodes parsed from markup in the
// context of n.
func SetInnerHTML(n *html.Node, markup string) error {
	nodes, err := html.ParseFragment(strings.NewReader(markup), n)
	if err != nil {
		return fmt.Errorf("failed to parse replacement markup: %w", err)
	}
	for c := n.FirstChild; c != nil; c = n.FirstChild {
		n.RemoveChild(c)
	}
	for _, c := range nodes {
		n.AppendChild(c)
	}
	return nil
}
