package tzengine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"oss.terrastruct.com/util-go/xdefer"
)

// execEngine uses the binary at path with the engine protocol to implement the Engine
// interface.
//
// The engine protocol works as follows.
//
// Info
//  1. The binary is invoked with info as the first argument.
//  2. The stdout of the binary is unmarshalled into Info, including its payload.
//
// Render
//  1. The binary is invoked with render as the first argument and the diagram source
//     on stdin.
//  2. The stdout of the binary is the SVG markup.
//
// If any errors occur the binary will exit with a non zero status code and write
// the error to stderr.
type execEngine struct {
	path string

	mu   sync.Mutex
	info *Info
}

// NewExecEngine returns an Engine backed by the binary at path.
func NewExecEngine(path string) Engine {
	return &execEngine{path: path}
}

func (e *execEngine) Info(ctx context.Context) (_ *Info, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.info != nil {
		return e.info, nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()
	cmd := exec.CommandContext(ctx, e.path, "info")
	defer xdefer.Errorf(&err, "failed to run %v", cmd.Args)

	stdout, err := run(cmd)
	if err != nil {
		return nil, err
	}

	var info Info
	err = json.Unmarshal(stdout, &info)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal json: %w", err)
	}
	info.Type = "binary"
	info.Path = e.path

	e.info = &info
	return e.info, nil
}

// Payload is empty until Info has succeeded once. List and Find always call Info.
func (e *execEngine) Payload() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.info == nil {
		return ""
	}
	return e.info.Payload
}

func (e *execEngine) Render(ctx context.Context, src string) (_ string, err error) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.path, "render")
	defer xdefer.Errorf(&err, "failed to run %v", cmd.Args)
	cmd.Stdin = bytes.NewBufferString(src)

	stdout, err := run(cmd)
	if err != nil {
		return "", err
	}
	return string(stdout), nil
}

func run(cmd *exec.Cmd) ([]byte, error) {
	stdout, err := cmd.Output()
	if err != nil {
		ee := &exec.ExitError{}
		if errors.As(err, &ee) && len(ee.Stderr) > 0 {
			return nil, fmt.Errorf("%v\nstderr:\n%s", ee, ee.Stderr)
		}
		return nil, err
	}
	return stdout, nil
}
