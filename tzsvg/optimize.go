package tzsvg

import (
	"errors"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/svg"
)

const svgMediaType = "image/svg+xml"

var ErrOptimize = errors.New("failed to optimize svg")

type Optimizer interface {
	Optimize(svg string) (string, error)
}

// Minifier is the default Optimizer. It never renames or drops ids: IsolateIDs just made
// them globally unique and renumbering would bring collisions back.
type Minifier struct {
	m *minify.M
}

var defaultOptimizer = NewMinifier()

func NewMinifier() *Minifier {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.Add(svgMediaType, &svg.Minifier{})
	return &Minifier{m: m}
}

func (mf *Minifier) Optimize(in string) (string, error) {
	return mf.m.String(svgMediaType, in)
}

// Optimize minifies svg with the default Minifier. Errors are returned as is.
func Optimize(svg string) (string, error) {
	return defaultOptimizer.Optimize(svg)
}
