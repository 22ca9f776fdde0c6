//go:build !nolatex

package tzengine

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"oss.terrastruct.com/util-go/xdefer"

	"oss.terrastruct.com/tikzjax/lib/log"
)

//go:embed preamble.tex
var preambleTeX string

var LatexEngine = latexEngine{
	latex:    "latex",
	dvisvgm:  "dvisvgm",
	preamble: preambleTeX,
}

func init() {
	engines = append(engines, &LatexEngine)
}

// latexEngine compiles every diagram as a standalone document with a local TeX
// installation and converts the DVI output with dvisvgm.
type latexEngine struct {
	latex    string
	dvisvgm  string
	preamble string
}

func (e *latexEngine) Info(context.Context) (*Info, error) {
	return &Info{
		Name:      "latex",
		ShortHelp: "Renders with a local latex and dvisvgm",
		LongHelp: `latex compiles each diagram as a standalone document and converts the
result to SVG with dvisvgm. Both must be on $PATH.

The preamble loads tikz, pgfplots, tikz-cd, circuitikz and chemfig. A diagram that
does not contain \begin{document} is wrapped in one.
`,
		Type: "bundled",
	}, nil
}

func (e *latexEngine) Payload() string {
	return e.preamble
}

// Document returns the TeX document compiled for src.
func (e *latexEngine) Document(src string) string {
	var sb strings.Builder
	sb.WriteString(e.preamble)
	if !strings.HasSuffix(e.preamble, "\n") {
		sb.WriteByte('\n')
	}
	if strings.Contains(src, `\begin{document}`) {
		sb.WriteString(src)
	} else {
		sb.WriteString("\\begin{document}\n")
		sb.WriteString(src)
		sb.WriteString("\n\\end{document}")
	}
	sb.WriteByte('\n')
	return sb.String()
}

func (e *latexEngine) Render(ctx context.Context, src string) (_ string, err error) {
	defer xdefer.Errorf(&err, "latex failed to render")

	dir, err := os.MkdirTemp("", "tikzjax-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	err = os.WriteFile(filepath.Join(dir, "diagram.tex"), []byte(e.Document(src)), 0600)
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, e.latex, "-interaction=nonstopmode", "-halt-on-error", "diagram.tex")
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("%s: %w\n%s", e.latex, err, texError(out))
	}

	cmd = exec.CommandContext(ctx, e.dvisvgm, "--no-fonts", "--exact-bbox", "--stdout", "diagram.dvi")
	cmd.Dir = dir
	svg, err := run(cmd)
	if err != nil {
		return "", fmt.Errorf("%s: %w", e.dvisvgm, err)
	}
	log.Debug(ctx, "rendered diagram with latex")

	// dvisvgm writes an XML declaration and doctype that cannot be embedded in HTML.
	s := string(svg)
	if i := strings.Index(s, "<svg"); i > 0 {
		s = s[i:]
	}
	return s, nil
}

// texError extracts the lines of a TeX log that start with "!".
func texError(out []byte) string {
	var lines []string
	for _, l := range strings.Split(string(out), "\n") {
		if strings.HasPrefix(l, "!") {
			lines = append(lines, strings.TrimSpace(l))
		}
	}
	if len(lines) == 0 {
		return strings.TrimSpace(string(out))
	}
	return strings.Join(lines, "\n")
}
