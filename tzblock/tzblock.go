// Package tzblock splits an authored tikz block into its style prefix and the diagram
// source handed to the engine.
//
// A block looks like
//
//	% color: red
//	% padding: 4px
//	\begin{tikzpicture}
//	  \draw (0,0) circle (1);
//	\end{tikzpicture}
//
// Leading lines starting with % (after whitespace) are style declarations for the
// wrapper element. Everything from the first other line on is diagram source, even
// lines that also start with %, since those are TeX comments.
package tzblock

import (
	"strings"
	"unicode"
)

const (
	styleMarker = '%'
	nbsp        = "&nbsp;"
)

// Block is a parsed tikz block.
type Block struct {
	// StyleDeclarations are the trimmed, non empty style lines in authored order.
	StyleDeclarations []string `json:"styleDeclarations"`
	// DiagramSource is the tidied diagram source.
	DiagramSource string `json:"diagramSource"`
}

// Style returns the inline style string for the wrapper element.
func (b Block) Style() string {
	return strings.Join(b.StyleDeclarations, "; ")
}

// Parse never fails. Empty and all-comment input produce an empty DiagramSource.
func Parse(raw string) Block {
	lines := splitLines(raw)

	k := 0
	for k < len(lines) && isStyleLine(lines[k]) {
		k++
	}

	var b Block
	for _, l := range lines[:k] {
		decl := strings.TrimLeftFunc(l, unicode.IsSpace)
		decl = strings.TrimPrefix(decl, string(styleMarker))
		decl = strings.TrimSpace(decl)
		if decl == "" {
			continue
		}
		b.StyleDeclarations = append(b.StyleDeclarations, decl)
	}
	b.DiagramSource = tidyLines(lines[k:])
	return b
}

// Tidy removes &nbsp; sequences, trims every line and drops blank lines.
// Tidy(Tidy(s)) == Tidy(s).
func Tidy(s string) string {
	return tidyLines(splitLines(s))
}

func tidyLines(lines []string) string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		for strings.Contains(l, nbsp) {
			l = strings.ReplaceAll(l, nbsp, "")
		}
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}

func isStyleLine(l string) bool {
	l = strings.TrimLeftFunc(l, unicode.IsSpace)
	return len(l) > 0 && l[0] == styleMarker
}

func splitLines(s string) []string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
