package tzsvg

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Engines emit ids like "a", "g0-1" or "clip1" that collide as soon as two diagrams are
// on the same page. The graphic is parsed and only the places an id can be named are
// rewritten: id attributes, href and xlink:href fragments, url(#ref) inside attribute
// values and inside <style>, and #ref selectors inside <style>. Tag names, attribute
// names, path data and text are never touched.
var (
	urlRefRe   = regexp.MustCompile(`url\(\s*(['"]?)#([^'")\s]+)(['"]?)\s*\)`)
	selectorRe = regexp.MustCompile(`#((?:[A-Za-z0-9_-]|\\.)+)`)
)

// fragmentContext is where graphics live in a host document.
var fragmentContext = &html.Node{
	Type:     html.ElementNode,
	Data:     "body",
	DataAtom: atom.Body,
}

// IsolateIDs gives every id in svg a fresh globally unique value and redirects every
// reference to it. Elements are visited in document order. All new ids are decided
// before any is applied, so a new id is never matched again.
func IsolateIDs(svg string) (string, error) {
	nodes, err := parseGraphic(svg)
	if err != nil {
		return "", err
	}
	ids := collectIDs(nodes)
	if len(ids) == 0 {
		return svg, nil
	}

	mapping := make(map[string]string, len(ids))
	for _, id := range ids {
		mapping[id] = uuid.NewString()
	}
	for _, n := range nodes {
		walk(n, func(n *html.Node) {
			rewriteNode(n, mapping)
		})
	}

	buf := &bytes.Buffer{}
	for _, n := range nodes {
		if err := html.Render(buf, n); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

func rewriteNode(n *html.Node, mapping map[string]string) {
	switch n.Type {
	case html.ElementNode:
		for i, a := range n.Attr {
			n.Attr[i].Val = rewriteAttr(a, mapping)
		}
	case html.TextNode:
		if n.Parent != nil && n.Parent.Type == html.ElementNode && n.Parent.Data == "style" {
			n.Data = rewriteCSS(n.Data, mapping)
		}
	}
}

func rewriteAttr(a html.Attribute, mapping map[string]string) string {
	switch {
	case a.Namespace == "" && a.Key == "id":
		if newID, ok := mapping[a.Val]; ok {
			return newID
		}
		return a.Val
	case a.Key == "href" && (a.Namespace == "" || a.Namespace == "xlink"):
		if strings.HasPrefix(a.Val, "#") {
			if newID, ok := mapping[a.Val[1:]]; ok {
				return "#" + newID
			}
		}
		return a.Val
	default:
		return rewriteURLRefs(a.Val, mapping)
	}
}

func rewriteURLRefs(s string, mapping map[string]string) string {
	if !strings.Contains(s, "url(") {
		return s
	}
	return urlRefRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := urlRefRe.FindStringSubmatch(m)
		newID, ok := mapping[sub[2]]
		if !ok {
			return m
		}
		return fmt.Sprintf("url(%s#%s%s)", sub[1], newID, sub[3])
	})
}

// rewriteCSS rewrites a stylesheet. Text before a "{" is a selector list where #ref
// selectors are rewritten; declarations only get their url(#ref) values rewritten, so a
// color like #fff is never taken for an id.
func rewriteCSS(s string, mapping map[string]string) string {
	var b strings.Builder
	for s != "" {
		i := strings.IndexAny(s, "{};")
		if i < 0 {
			b.WriteString(rewriteURLRefs(s, mapping))
			break
		}
		chunk := s[:i]
		if s[i] == '{' {
			chunk = rewriteSelectors(chunk, mapping)
		} else {
			chunk = rewriteURLRefs(chunk, mapping)
		}
		b.WriteString(chunk)
		b.WriteByte(s[i])
		s = s[i+1:]
	}
	return b.String()
}

func rewriteSelectors(s string, mapping map[string]string) string {
	return selectorRe.ReplaceAllStringFunc(s, func(m string) string {
		if newID, ok := mapping[strings.ReplaceAll(m[1:], `\`, "")]; ok {
			return "#" + cssEscapeID(newID)
		}
		return m
	})
}

// cssEscapeID escapes a leading digit so the uuid stays a valid selector.
func cssEscapeID(id string) string {
	if id != "" && id[0] >= '0' && id[0] <= '9' {
		return fmt.Sprintf(`\3%c %s`, id[0], id[1:])
	}
	return id
}

// IDs returns the distinct ids of the elements of svg in document order.
func IDs(svg string) ([]string, error) {
	nodes, err := parseGraphic(svg)
	if err != nil {
		return nil, err
	}
	return collectIDs(nodes), nil
}

func parseGraphic(svg string) ([]*html.Node, error) {
	nodes, err := html.ParseFragment(strings.NewReader(svg), fragmentContext)
	if err != nil {
		return nil, fmt.Errorf("failed to parse svg: %w", err)
	}
	return nodes, nil
}

func collectIDs(nodes []*html.Node) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, n := range nodes {
		walk(n, func(n *html.Node) {
			if n.Type != html.ElementNode {
				return
			}
			for _, a := range n.Attr {
				if a.Namespace != "" || a.Key != "id" || a.Val == "" {
					continue
				}
				if _, ok := seen[a.Val]; !ok {
					seen[a.Val] = struct{}{}
					ids = append(ids, a.Val)
				}
			}
		})
	}
	return ids
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}
