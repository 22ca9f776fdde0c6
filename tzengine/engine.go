// Package tzengine runs the engines that turn TikZ source into SVG.
//
// Engines are either bundled with the tikzjax binary or found in $PATH with the prefix
// tikzjax-engine-*. i.e the binary for a dvisvgm based engine might be
// tikzjax-engine-dvisvgm. See List() below.
package tzengine

import (
	"context"
	"os/exec"
	"strings"

	"oss.terrastruct.com/util-go/xexec"

	"oss.terrastruct.com/tikzjax/lib/env"
)

// engines contains the bundled engines.
//
// See engine_* files for the engines available for bundling.
var engines []Engine

type Engine interface {
	// Info returns the current info information of the engine.
	Info(context.Context) (*Info, error)
	// Payload is the text placed verbatim inside the engine script element of every
	// document the engine serves.
	Payload() string
	// Render turns the source of one diagram into SVG markup.
	Render(ctx context.Context, src string) (string, error)
}

// Info is the current info information of an engine.
// note: Type and Path are not set by the engine itself but only in List.
type Info struct {
	Name      string `json:"name"`
	ShortHelp string `json:"shortHelp"`
	LongHelp  string `json:"longHelp"`

	// bundled | binary
	Type string `json:"type"`
	// If Type == binary then this contains the absolute path to the binary.
	Path string `json:"path"`

	// Payload is only sent over the binary protocol.
	Payload string `json:"payload,omitempty"`
}

const binaryPrefix = "tikzjax-engine-"

// List returns the bundled engines followed by every binary engine whose name is not
// already taken.
//
//  1. Run Info on all bundled engines.
//  2. Look for $TIKZJAX_ENGINE_PATH, then for executables in $PATH with the prefix
//     tikzjax-engine-*.
//  3. Run each binary with the argument info. e.g. tikzjax-engine-dvisvgm info
func List(ctx context.Context) ([]Engine, error) {
	var es []Engine
	es = append(es, engines...)

	matches, err := xexec.SearchPath(binaryPrefix)
	if err != nil {
		return nil, err
	}
	if p := env.EnginePath(); p != "" {
		matches = append([]string{p}, matches...)
	}

BINARY_ENGINES_LOOP:
	for _, path := range matches {
		e := &execEngine{path: path}
		info, err := e.Info(ctx)
		if err != nil {
			return nil, err
		}
		for _, e2 := range es {
			info2, err := e2.Info(ctx)
			if err != nil {
				return nil, err
			}
			if info.Name == info2.Name {
				continue BINARY_ENGINES_LOOP
			}
		}
		es = append(es, e)
	}
	return es, nil
}

func ListInfos(ctx context.Context, es []Engine) ([]*Info, error) {
	var infos []*Info
	for _, e := range es {
		info, err := e.Info(ctx)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// Find returns the engine of es named name, ignoring case.
func Find(ctx context.Context, es []Engine, name string) (Engine, error) {
	for _, e := range es {
		info, err := e.Info(ctx)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(info.Name, name) {
			return e, nil
		}
	}
	return nil, exec.ErrNotFound
}
