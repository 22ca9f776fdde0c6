package tzmarkdown_test

import (
	"strings"
	"testing"

	tassert "github.com/stretchr/testify/assert"
	"oss.terrastruct.com/util-go/assert"

	"oss.terrastruct.com/tikzjax/tzmarkdown"
)

func TestConvert(t *testing.T) {
	t.Parallel()

	md := "# Circuits\n\nSome *text*.\n\n```tikz\n% width: 50%\n\\begin{document}\n\\draw (0,0) -- (1,1)&nbsp;;\n\\end{document}\n```\n\n```go\nfmt.Println(\"<b>\")\n```\n\n```tikz\n\\draw (0,0) circle (1);\n```\n"
	d, err := tzmarkdown.Convert([]byte(md))
	assert.Success(t, err)

	assert.String(t, "Circuits", d.Title)
	assert.Equal(t, 2, len(d.Blocks))
	assert.String(t, "tikzjax-container-0", d.Blocks[0].ContainerID)
	assert.String(t, "% width: 50%\n\\begin{document}\n\\draw (0,0) -- (1,1)&nbsp;;\n\\end{document}", d.Blocks[0].Source)
	assert.String(t, `\draw (0,0) circle (1);`, d.Blocks[1].Source)

	assert.True(t, strings.Contains(d.Body, `<div class="tikzjax-container" id="tikzjax-container-0"></div>`))
	assert.True(t, strings.Contains(d.Body, `<div class="tikzjax-container" id="tikzjax-container-1"></div>`))
	assert.True(t, strings.Contains(d.Body, `<em>text</em>`))
	assert.True(t, strings.Contains(d.Body, `language-go`))
	tassert.NotContains(t, d.Body, `language-tikz`)
}

func TestConvertNoBlocks(t *testing.T) {
	t.Parallel()

	d, err := tzmarkdown.Convert([]byte("plain"))
	assert.Success(t, err)
	assert.String(t, "", d.Title)
	tassert.Empty(t, d.Blocks)
	assert.String(t, "<p>plain</p>", strings.TrimSpace(d.Body))
}
