package tzengine

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/spf13/pflag"

	"oss.terrastruct.com/util-go/xmain"
)

// Serve returns a xmain.RunFunc that will invoke the engine e as necessary to service
// the calling tikzjax CLI.
//
// See implementation of tikzjax-engine-script in the ./cmd directory.
//
// Also see execEngine in exec.go for the binary engine protocol.
func Serve(e Engine) xmain.RunFunc {
	return func(ctx context.Context, ms *xmain.State) (err error) {
		if !ms.Opts.Flags.Parsed() {
			err = ms.Opts.Flags.Parse(ms.Opts.Args)
			if !errors.Is(err, pflag.ErrHelp) && err != nil {
				return xmain.UsageErrorf("failed to parse flags: %v", err)
			}
			if errors.Is(err, pflag.ErrHelp) {
				return help(ctx, e, ms)
			}
		}

		if len(ms.Opts.Flags.Args()) < 1 {
			return xmain.UsageErrorf("expected first argument to be subcmd name")
		}

		subcmd := ms.Opts.Flags.Arg(0)
		switch subcmd {
		case "info":
			return info(ctx, e, ms)
		case "render":
			return render(ctx, e, ms)
		default:
			return xmain.UsageErrorf("unrecognized command: %s", subcmd)
		}
	}
}

func info(ctx context.Context, e Engine, ms *xmain.State) error {
	info, err := e.Info(ctx)
	if err != nil {
		return err
	}
	info2 := *info
	info2.Payload = e.Payload()
	b, err := json.Marshal(info2)
	if err != nil {
		return err
	}
	_, err = ms.Stdout.Write(b)
	return err
}

func help(ctx context.Context, e Engine, ms *xmain.State) error {
	info, err := e.Info(ctx)
	if err != nil {
		return err
	}
	_, err = ms.Stdout.Write([]byte(info.LongHelp + "\n"))
	return err
}

func render(ctx context.Context, e Engine, ms *xmain.State) error {
	in, err := io.ReadAll(ms.Stdin)
	if err != nil {
		return err
	}
	svg, err := e.Render(ctx, string(in))
	if err != nil {
		return err
	}
	_, err = io.WriteString(ms.Stdout, svg)
	return err
}
