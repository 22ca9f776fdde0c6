package tzcli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"oss.terrastruct.com/util-go/xmain"

	"oss.terrastruct.com/tikzjax/lib/version"
	"oss.terrastruct.com/tikzjax/tzengine"
)

func help(ms *xmain.State) {
	fmt.Fprintf(ms.Stdout, `%[1]s %[2]s
Usage:
  %[1]s [--watch=false] [--engine=latex] file.md [file.html]
  %[1]s engines [name]

%[1]s renders every tikz code block of file.md to an inline SVG diagram and writes the
page to file.html. It defaults to file.html if an output path is not provided.

Use - to have %[1]s read from stdin or write to stdout.

Flags:
%[3]s

Subcommands:
  %[1]s engines - Lists available render engines with short help
  %[1]s engines [name] - Display long help for a particular render engine
  %[1]s version - Print the version
`, filepath.Base(ms.Name), version.Version, ms.Opts.Defaults())
}

func enginesCmd(ctx context.Context, ms *xmain.State, es []tzengine.Engine) error {
	switch len(ms.Opts.Flags.Args()) {
	case 1:
		return shortEngineHelp(ctx, ms, es)
	case 2:
		return longEngineHelp(ctx, ms, es)
	default:
		return xmain.UsageErrorf("engines subcommand accepts at most one argument")
	}
}

func shortEngineHelp(ctx context.Context, ms *xmain.State, es []tzengine.Engine) error {
	infos, err := tzengine.ListInfos(ctx, es)
	if err != nil {
		return err
	}
	var lines []string
	for _, info := range infos {
		var l string
		if info.Type == "bundled" {
			l = fmt.Sprintf("%s (bundled) - %s", info.Name, info.ShortHelp)
		} else {
			l = fmt.Sprintf("%s (%s) - %s", info.Name, humanPath(info.Path), info.ShortHelp)
		}
		lines = append(lines, l)
	}
	fmt.Fprintf(ms.Stdout, `Available render engines found:

%s

Usage:
  To use a particular engine, set the environment variable TIKZJAX_ENGINE=[name] or flag --engine=[name].

Example:
  TIKZJAX_ENGINE=script %[2]s notes.md notes.html

Subcommands:
  %[2]s engines [engine name] - Display long help for a particular render engine
`, strings.Join(lines, "\n"), ms.Name)
	return nil
}

func longEngineHelp(ctx context.Context, ms *xmain.State, es []tzengine.Engine) error {
	name := ms.Opts.Flags.Arg(1)
	e, err := tzengine.Find(ctx, es, name)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return engineNotFound(ctx, es, name)
		}
		return err
	}
	info, err := e.Info(ctx)
	if err != nil {
		return err
	}

	location := info.Type
	if info.Type == "binary" {
		location = fmt.Sprintf("executable engine at %s", humanPath(info.Path))
	}
	if !strings.HasSuffix(info.LongHelp, "\n") {
		info.LongHelp += "\n"
	}
	fmt.Fprintf(ms.Stdout, `%s (%s):

%s`, info.Name, location, info.LongHelp)
	return nil
}

func engineNotFound(ctx context.Context, es []tzengine.Engine, name string) error {
	infos, err := tzengine.ListInfos(ctx, es)
	if err != nil {
		return err
	}
	var names []string
	for _, info := range infos {
		names = append(names, info.Name)
	}
	return xmain.UsageErrorf(`TIKZJAX_ENGINE "%s" is not bundled and could not be found in your $PATH.
The available options are: %s. For details on each option, run "tikzjax engines".`,
		name, strings.Join(names, ", "))
}

func humanPath(fp string) string {
	if home := os.Getenv("HOME"); home != "" && strings.HasPrefix(fp, home) {
		return filepath.Join("~", strings.TrimPrefix(fp, home))
	}
	return fp
}
