package tzblock_test

import (
	"strings"
	"testing"

	tassert "github.com/stretchr/testify/assert"
	"oss.terrastruct.com/util-go/assert"

	"oss.terrastruct.com/tikzjax/tzblock"
)

func TestParse(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		raw   string
		decls []string
		style string
		src   string
	}{
		{
			name:  "style_and_source",
			raw:   "%color: red\n%padding: 4px\n\\begin{tikzpicture}\n\\end{tikzpicture}",
			decls: []string{"color: red", "padding: 4px"},
			style: "color: red; padding: 4px",
			src:   "\\begin{tikzpicture}\n\\end{tikzpicture}",
		},
		{
			name: "empty",
			raw:  "",
		},
		{
			name: "only_whitespace",
			raw:  "  \n\t\n",
		},
		{
			name:  "all_style",
			raw:   "% width: 50%\n  %  margin: auto  \n%",
			decls: []string{"width: 50%", "margin: auto"},
			style: "width: 50%; margin: auto",
		},
		{
			name: "no_style",
			raw:  "  \\draw (0,0) circle (1);  \n\n",
			src:  "\\draw (0,0) circle (1);",
		},
		{
			name:  "percent_after_source_is_source",
			raw:   "%color: blue\n\\begin{tikzpicture}\n% a tex comment\n\\end{tikzpicture}",
			decls: []string{"color: blue"},
			style: "color: blue",
			src:   "\\begin{tikzpicture}\n% a tex comment\n\\end{tikzpicture}",
		},
		{
			name:  "empty_style_lines_dropped",
			raw:   "%\n%   \n% color: green\n\\draw (0,0) -- (1,1);",
			decls: []string{"color: green"},
			style: "color: green",
			src:   "\\draw (0,0) -- (1,1);",
		},
		{
			name: "blank_line_ends_style_prefix",
			raw:  "\n%color: red\n\\draw (0,0) -- (1,1);",
			src:  "%color: red\n\\draw (0,0) -- (1,1);",
		},
		{
			name:  "nbsp_and_crlf",
			raw:   "%color: red\r\n\\begin{tikzpicture}&nbsp;\r\n&nbsp;&nbsp;\r\n  \\draw&nbsp;(0,0);\r\n\\end{tikzpicture}\r\n",
			decls: []string{"color: red"},
			style: "color: red",
			src:   "\\begin{tikzpicture}\n\\draw(0,0);\n\\end{tikzpicture}",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			b := tzblock.Parse(tc.raw)
			assert.JSON(t, tc.decls, b.StyleDeclarations)
			assert.String(t, tc.style, b.Style())
			assert.String(t, tc.src, b.DiagramSource)
		})
	}
}

func TestParseAllStyleLines(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"%a: 1",
		"%a: 1\n %b: 2\n\t%c: 3",
		"%\n%\n%",
		"% x: y\n%x:y\n%   spaced out: value   ",
	}
	for _, raw := range inputs {
		b := tzblock.Parse(raw)
		assert.String(t, "", b.DiagramSource)

		var want []string
		for _, l := range strings.Split(raw, "\n") {
			l = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l), "%"))
			if l != "" {
				want = append(want, l)
			}
		}
		assert.JSON(t, want, b.StyleDeclarations)
	}
}

func TestParseNoStyleLines(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"\\draw (0,0) -- (1,1);",
		"  \\node at (0,0) {a};\n\n\n  \\node at (1,0) {b};  ",
		"\\begin{tikzpicture}\n%comment\n\\end{tikzpicture}",
	}
	for _, raw := range inputs {
		b := tzblock.Parse(raw)
		tassert.Empty(t, b.StyleDeclarations)
		assert.String(t, tzblock.Tidy(raw), b.DiagramSource)
	}
}

func TestTidy(t *testing.T) {
	t.Parallel()

	assert.String(t, "\\draw (0,0) circle (1);", tzblock.Tidy("  \\draw (0,0) circle (1);  \n\n"))
	assert.String(t, "", tzblock.Tidy(""))
	assert.String(t, "a\nb", tzblock.Tidy("&nbsp;a&nbsp;\n&nbsp;\nb"))
	assert.String(t, "", tzblock.Tidy("&&nbsp;nbsp;"))
}

func TestTidyIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"  a  \n\n  b",
		"&nbsp;\n  \\draw&nbsp;(0,0);\n",
		"&&nbsp;nbsp;x",
		"\r\n\t\\node {x};\r\n",
	}
	for _, s := range inputs {
		once := tzblock.Tidy(s)
		assert.String(t, once, tzblock.Tidy(once))
	}
}
