package tzcli

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"cdr.dev/slog"
	"github.com/spf13/pflag"

	"oss.terrastruct.com/util-go/go2"
	"oss.terrastruct.com/util-go/xmain"

	"oss.terrastruct.com/tikzjax/lib/log"
	"oss.terrastruct.com/tikzjax/lib/version"
	"oss.terrastruct.com/tikzjax/tzengine"
	"oss.terrastruct.com/tikzjax/tzsettings"
)

func Run(ctx context.Context, ms *xmain.State) (err error) {
	ctx = log.WithDefault(ctx)
	// These should be kept up-to-date with the tikzjax man page
	watchFlag, err := ms.Opts.Bool("TIKZJAX_WATCH", "watch", "w", false, "watch for changes to input and re-render the output on every change.")
	if err != nil {
		return err
	}
	configFlag := ms.Opts.String("TIKZJAX_CONFIG", "config", "", "", "path to a YAML or JSON settings file, e.g. the data.json of a vault plugin directory.")
	engineFlag := ms.Opts.String("TIKZJAX_ENGINE", "engine", "e", "latex", "the engine diagrams are rendered with. Run tikzjax engines for the available ones.")
	scriptFlag := ms.Opts.String("TIKZJAX_SCRIPT", "script", "", "", "path to a JavaScript payload defining render(source). Implies --engine=script.")
	invertColorsFlag, err := ms.Opts.Bool("TIKZJAX_INVERT_COLORS", "invert-colors", "", true, "map black and white in diagrams to the text and background colors of the page so they follow dark mode.")
	if err != nil {
		return err
	}
	timeoutFlag, err := ms.Opts.Int64("TIKZJAX_TIMEOUT", "timeout", "", 120, "the maximum number of seconds a diagram may take to render before it is shown as failed.")
	if err != nil {
		return err
	}
	hostFlag := ms.Opts.String("HOST", "host", "h", "localhost", "host listening address when used with watch")
	portFlag := ms.Opts.String("PORT", "port", "p", "0", "port listening address when used with watch")
	browserFlag := ms.Opts.String("BROWSER", "browser", "", "", "browser executable that watch opens. Setting to 0 opens no browser.")
	debugFlag, err := ms.Opts.Bool("DEBUG", "debug", "d", false, "print debug logs.")
	if err != nil {
		ms.Log.Warn.Printf("Invalid DEBUG flag value ignored")
		debugFlag = go2.Pointer(false)
	}
	versionFlag, err := ms.Opts.Bool("", "version", "v", false, "get the version")
	if err != nil {
		return err
	}

	err = ms.Opts.Flags.Parse(ms.Opts.Args)
	if !errors.Is(err, pflag.ErrHelp) && err != nil {
		return xmain.UsageErrorf("failed to parse flags: %v", err)
	}
	if errors.Is(err, pflag.ErrHelp) {
		help(ms)
		return nil
	}

	if *debugFlag {
		ctx = log.Leveled(ctx, slog.LevelDebug)
		ms.Env.Setenv("DEBUG", "1")
	}
	if *browserFlag != "" {
		ms.Env.Setenv("BROWSER", *browserFlag)
	}

	engines, err := tzengine.List(ctx)
	if err != nil {
		return err
	}

	if len(ms.Opts.Flags.Args()) > 0 {
		switch ms.Opts.Flags.Arg(0) {
		case "engines":
			return enginesCmd(ctx, ms, engines)
		case "version":
			if len(ms.Opts.Flags.Args()) > 1 {
				return xmain.UsageErrorf("version subcommand accepts no arguments")
			}
			fmt.Fprintln(ms.Stdout, version.Version)
			return nil
		}
	}

	if len(ms.Opts.Flags.Args()) == 0 {
		if *versionFlag {
			fmt.Fprintln(ms.Stdout, version.Version)
			return nil
		}
		help(ms)
		return nil
	} else if len(ms.Opts.Flags.Args()) >= 3 {
		return xmain.UsageErrorf("too many arguments passed")
	}

	inputPath := ms.Opts.Flags.Arg(0)
	var outputPath string
	if len(ms.Opts.Flags.Args()) >= 2 {
		outputPath = ms.Opts.Flags.Arg(1)
	} else if inputPath == "-" {
		outputPath = "-"
	} else {
		outputPath = renameExt(inputPath, ".html")
	}
	if inputPath != "-" {
		inputPath = ms.AbsPath(inputPath)
	}
	if outputPath != "-" {
		outputPath = ms.AbsPath(outputPath)
	}

	settings, err := tzsettings.Load(*configFlag)
	if err != nil {
		return xmain.UsageErrorf("%v", err)
	}
	// Flags only override settings when given explicitly.
	flagSet := make(map[string]struct{})
	ms.Opts.Flags.Visit(func(f *pflag.Flag) {
		flagSet[f.Name] = struct{}{}
	})
	if _, ok := flagSet["invert-colors"]; ok || ms.Env.Getenv("TIKZJAX_INVERT_COLORS") != "" {
		settings.InvertColorsInDarkMode = *invertColorsFlag
	}
	if *timeoutFlag < 0 {
		return xmain.UsageErrorf("--timeout must not be negative: %d", *timeoutFlag)
	}
	if settings.RenderTimeout == 0 {
		settings.RenderTimeout = time.Duration(*timeoutFlag) * time.Second
	}

	engine, err := resolveEngine(ctx, ms, engines, *engineFlag, *scriptFlag)
	if err != nil {
		return err
	}
	info, err := engine.Info(ctx)
	if err != nil {
		return err
	}
	ms.Log.Debug.Printf("using engine %s (%s)", info.Name, info.Type)

	opts := renderOpts{
		engine:     engine,
		settings:   settings,
		inputPath:  inputPath,
		outputPath: outputPath,
	}

	if *watchFlag {
		if inputPath == "-" {
			return xmain.UsageErrorf("-w[atch] cannot be combined with reading input from stdin")
		}
		if outputPath == "-" {
			return xmain.UsageErrorf("-w[atch] cannot be combined with writing output to stdout")
		}
		w, err := newWatcher(ctx, ms, watcherOpts{
			renderOpts: opts,
			host:       *hostFlag,
			port:       *portFlag,
		})
		if err != nil {
			return err
		}
		return w.run()
	}

	// Twice the render timeout leaves room for reading and writing around the renders.
	ctx, cancel := log.WithTimeout(ctx, 2*settings.RenderTimeout)
	defer cancel()

	page, err := render(ctx, ms, opts)
	if err != nil {
		if page != nil {
			return fmt.Errorf("failed to fully render (partial render written) %s: %w", ms.HumanPath(inputPath), err)
		}
		return fmt.Errorf("failed to render %s: %w", ms.HumanPath(inputPath), err)
	}
	return nil
}

func resolveEngine(ctx context.Context, ms *xmain.State, engines []tzengine.Engine, name, scriptPath string) (tzengine.Engine, error) {
	if scriptPath != "" {
		payload, err := ms.ReadPath(ms.AbsPath(scriptPath))
		if err != nil {
			return nil, xmain.UsageErrorf("failed to read --script: %v", err)
		}
		return tzengine.NewScriptEngine("script", string(payload)), nil
	}

	engine, err := tzengine.Find(ctx, engines, name)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, engineNotFound(ctx, engines, name)
		}
		return nil, err
	}
	return engine, nil
}

func renameExt(fp string, newExt string) string {
	ext := filepath.Ext(fp)
	if ext == "" {
		return fp + newExt
	}
	return strings.TrimSuffix(fp, ext) + newExt
}
