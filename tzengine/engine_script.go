package tzengine

import (
	"context"
	_ "embed"
	"fmt"

	"cdr.dev/slog"

	"oss.terrastruct.com/util-go/xdefer"

	"oss.terrastruct.com/tikzjax/lib/jsrunner"
	"oss.terrastruct.com/tikzjax/lib/log"
)

//go:embed preview.js
var previewJS string

// ScriptEngine is the bundled script engine running the preview payload.
var ScriptEngine = NewScriptEngine("script", previewJS)

func init() {
	engines = append(engines, ScriptEngine)
}

// scriptEngine evaluates a JavaScript payload that defines render(source). render may
// return the SVG markup or a promise of it.
type scriptEngine struct {
	name    string
	payload string
}

// NewScriptEngine returns an engine called name that runs payload.
func NewScriptEngine(name, payload string) Engine {
	return &scriptEngine{name: name, payload: payload}
}

func (e *scriptEngine) Info(context.Context) (*Info, error) {
	return &Info{
		Name:      e.name,
		ShortHelp: "Renders with a JavaScript payload",
		LongHelp: `script evaluates a JavaScript payload that defines render(source) and returns
SVG markup, or a promise of it. console output of the payload is logged when the
diagram asks for it.

Without --script the bundled preview payload draws the diagram source as text.
`,
		Type: "bundled",
	}, nil
}

func (e *scriptEngine) Payload() string {
	return e.payload
}

func (e *scriptEngine) Render(ctx context.Context, src string) (_ string, err error) {
	defer xdefer.Errorf(&err, "%s failed to render", e.name)

	// A goja runtime is single threaded, so every render gets its own.
	r, err := jsrunner.NewJSRunner(func(level, line string) {
		log.Info(ctx, line, slog.F("console", level))
	})
	if err != nil {
		return "", err
	}
	if _, err := r.RunScript(e.name+".js", e.payload); err != nil {
		return "", err
	}
	val, err := r.Call("render", src)
	if err != nil {
		return "", err
	}
	out, err := r.WaitPromise(ctx, val)
	if err != nil {
		return "", err
	}
	svg, ok := out.(string)
	if !ok {
		return "", fmt.Errorf("render returned %T instead of a string", out)
	}
	return svg, nil
}
