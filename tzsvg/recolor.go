package tzsvg

import "regexp"

const (
	// TextColor follows the color of the surrounding text.
	TextColor = "currentColor"
	// BackgroundColor follows the background of the page the diagram is embedded in.
	BackgroundColor = "var(--background-primary)"
)

var (
	blackRe = regexp.MustCompile(`"(#000|black)"`)
	whiteRe = regexp.MustCompile(`"(#fff|white)"`)
)

// Recolor maps the quoted literals "#000" and "black" to the text color and "#fff" and
// "white" to the page background. Unquoted, uppercase and longhand forms like "#000000"
// are left alone.
func Recolor(svg string) string {
	svg = blackRe.ReplaceAllLiteralString(svg, `"`+TextColor+`"`)
	svg = whiteRe.ReplaceAllLiteralString(svg, `"`+BackgroundColor+`"`)
	return svg
}
