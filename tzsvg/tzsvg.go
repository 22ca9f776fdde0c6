// Package tzsvg rewrites the SVG an engine produced so it can be embedded next to other
// diagrams: ids are made globally unique, black and white follow the page theme, and the
// markup is minified.
package tzsvg

import (
	"fmt"

	"oss.terrastruct.com/util-go/xdefer"
)

type RewriteOpts struct {
	// InvertColorsInDarkMode enables Recolor.
	InvertColorsInDarkMode bool
	// Optimizer defaults to the package minifier.
	Optimizer Optimizer
}

// Rewrite runs IsolateIDs, Recolor when enabled, then Optimize.
func Rewrite(svg string, opts *RewriteOpts) (_ string, err error) {
	defer xdefer.Errorf(&err, "failed to rewrite svg")

	if opts == nil {
		opts = &RewriteOpts{}
	}
	optimizer := opts.Optimizer
	if optimizer == nil {
		optimizer = defaultOptimizer
	}

	svg, err = IsolateIDs(svg)
	if err != nil {
		return "", err
	}
	if opts.InvertColorsInDarkMode {
		svg = Recolor(svg)
	}
	svg, err = optimizer.Optimize(svg)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOptimize, err)
	}
	return svg, nil
}
