package tzcli_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"cdr.dev/slog/sloggers/slogtest"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	tassert "github.com/stretchr/testify/assert"

	"oss.terrastruct.com/util-go/assert"
	"oss.terrastruct.com/util-go/xmain"
	"oss.terrastruct.com/util-go/xos"

	"oss.terrastruct.com/tikzjax/lib/log"
	"oss.terrastruct.com/tikzjax/lib/version"
	"oss.terrastruct.com/tikzjax/tzcli"
)

const notes = "# Notes\n\nA square:\n\n```tikz\n\\draw (0,0) rectangle (1,1);\n```\n\nAnd a circle:\n\n```tikz\n\\draw (0,0) circle (1);\n```\n"

func TestRun(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		run  func(t *testing.T, ctx context.Context, dir string)
	}{
		{
			name: "render",
			run: func(t *testing.T, ctx context.Context, dir string) {
				writeFile(t, dir, "notes.md", notes)
				_, err := runTestMain(t, ctx, dir, "--engine=script", "notes.md")
				assert.Success(t, err)
				page := string(readFile(t, dir, "notes.html"))
				tassert.Equal(t, 2, bytes.Count([]byte(page), []byte(`class="tikzjax-block"`)))
				tassert.Contains(t, page, "<svg")
				tassert.Contains(t, page, "--background-primary")
				tassert.Contains(t, strings.ToLower(page), "currentcolor")
				tassert.NotContains(t, page, `id="tikzjax"`)
				tassert.NotContains(t, page, `type="text/tikz"`)
			},
		},
		{
			name: "no-invert",
			run: func(t *testing.T, ctx context.Context, dir string) {
				writeFile(t, dir, "notes.md", notes)
				_, err := runTestMain(t, ctx, dir, "--engine=script", "--invert-colors=false", "notes.md", "out.html")
				assert.Success(t, err)
				page := string(readFile(t, dir, "out.html"))
				tassert.Contains(t, page, "<svg")
				tassert.NotContains(t, strings.ToLower(page), "currentcolor")
			},
		},
		{
			name: "config",
			run: func(t *testing.T, ctx context.Context, dir string) {
				writeFile(t, dir, "notes.md", notes)
				writeFile(t, dir, "data.json", `{"invertColorsInDarkMode": false}`)
				_, err := runTestMain(t, ctx, dir, "--engine=script", "--config=data.json", "notes.md")
				assert.Success(t, err)
				page := string(readFile(t, dir, "notes.html"))
				tassert.NotContains(t, strings.ToLower(page), "currentcolor")
			},
		},
		{
			name: "stdio",
			run: func(t *testing.T, ctx context.Context, dir string) {
				tms := testMain(dir, "--engine=script", "-")
				tms.Stdin = bytes.NewBufferString(notes)
				stdout := &bytes.Buffer{}
				tms.Stdout = stdout
				tms.Start(t, ctx)
				defer tms.Cleanup(t)
				assert.Success(t, tms.Wait(ctx))
				tassert.Contains(t, stdout.String(), "<svg")
			},
		},
		{
			name: "script-payload",
			run: func(t *testing.T, ctx context.Context, dir string) {
				writeFile(t, dir, "notes.md", notes)
				writeFile(t, dir, "engine.js", `
var engineInfo = {name: "mine", shortHelp: "", longHelp: ""};
function render(source) {
  return '<svg xmlns="http://www.w3.org/2000/svg"><circle id="dot" r="1" fill="black"></circle></svg>';
}
`)
				_, err := runTestMain(t, ctx, dir, "--script=engine.js", "notes.md")
				assert.Success(t, err)
				page := string(readFile(t, dir, "notes.html"))
				tassert.Equal(t, 2, bytes.Count([]byte(page), []byte("<circle")))
				tassert.NotContains(t, page, `id="dot"`)
			},
		},
		{
			name: "script-error",
			run: func(t *testing.T, ctx context.Context, dir string) {
				writeFile(t, dir, "notes.md", notes)
				writeFile(t, dir, "engine.js", `function render(source) { throw new Error("no tikz here"); }`)
				_, err := runTestMain(t, ctx, dir, "--script=engine.js", "notes.md")
				tassert.Error(t, err)
				tassert.Contains(t, err.Error(), "partial render written")
				page := string(readFile(t, dir, "notes.html"))
				tassert.Contains(t, page, `class="tikzjax-error"`)
			},
		},
		{
			name: "engines",
			run: func(t *testing.T, ctx context.Context, dir string) {
				stdout, err := runTestMain(t, ctx, dir, "engines")
				assert.Success(t, err)
				tassert.Contains(t, stdout, "latex (bundled)")
				tassert.Contains(t, stdout, "script (bundled)")

				stdout, err = runTestMain(t, ctx, dir, "engines", "script")
				assert.Success(t, err)
				tassert.Contains(t, stdout, "script (bundled):")
			},
		},
		{
			name: "engine-not-found",
			run: func(t *testing.T, ctx context.Context, dir string) {
				writeFile(t, dir, "notes.md", notes)
				_, err := runTestMain(t, ctx, dir, "--engine=mathjax", "notes.md")
				tassert.Error(t, err)
				tassert.Contains(t, err.Error(), `TIKZJAX_ENGINE "mathjax" is not bundled`)
			},
		},
		{
			name: "version",
			run: func(t *testing.T, ctx context.Context, dir string) {
				stdout, err := runTestMain(t, ctx, dir, "version")
				assert.Success(t, err)
				assert.String(t, version.Version+"\n", stdout)
			},
		},
		{
			name: "too-many-args",
			run: func(t *testing.T, ctx context.Context, dir string) {
				_, err := runTestMain(t, ctx, dir, "a.md", "b.html", "c.html")
				tassert.Error(t, err)
				tassert.Contains(t, err.Error(), "too many arguments passed")
			},
		},
		{
			name: "watch-stdin",
			run: func(t *testing.T, ctx context.Context, dir string) {
				_, err := runTestMain(t, ctx, dir, "--watch", "-")
				tassert.Error(t, err)
				tassert.Contains(t, err.Error(), "cannot be combined with reading input from stdin")
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			// Failed diagrams log errors.
			ctx = log.WithTB(ctx, t, &slogtest.Options{IgnoreErrors: true})

			tc.run(t, ctx, t.TempDir())
		})
	}
}

func TestWatch(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = log.WithTB(ctx, t, &slogtest.Options{IgnoreErrors: true})

	dir := t.TempDir()
	writeFile(t, dir, "notes.md", notes)

	stderr := &syncBuffer{}
	tms := testMain(dir, "--engine=script", "--watch", "--port=0", "notes.md")
	tms.Env = xos.NewEnv([]string{"BROWSER=0"})
	tms.Stderr = stderr
	tms.Start(t, ctx)
	defer tms.Cleanup(t)

	addrRe := regexp.MustCompile(`listening on http://(\S+)`)
	var addr string
	waitFor(t, ctx, func() bool {
		m := addrRe.FindStringSubmatch(stderr.String())
		if m == nil {
			return false
		}
		addr = m[1]
		return true
	})

	c, _, err := websocket.Dial(ctx, "ws://"+addr+"/watch", nil)
	assert.Success(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	var res struct {
		Version int    `json:"version"`
		Err     string `json:"err"`
	}
	err = wsjson.Read(ctx, c, &res)
	assert.Success(t, err)
	assert.Equal(t, 1, res.Version)
	assert.Equal(t, "", res.Err)
	tassert.Equal(t, 2, blocks(string(readFile(t, dir, "notes.html"))))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/", nil)
	assert.Success(t, err)
	resp, err := http.DefaultClient.Do(req)
	assert.Success(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Success(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	tassert.Equal(t, 2, blocks(string(body)))
	tassert.Contains(t, string(body), "<svg")
	tassert.Contains(t, string(body), `new WebSocket(`)
	tassert.Contains(t, string(body), "var version = 1;")

	writeFile(t, dir, "notes.md", notes+"\nA line:\n\n```tikz\n\\draw (0,0) -- (1,1);\n```\n")

	// Saving can show up as more than one change, so read until the new page is out.
	version := res.Version
	for blocks(string(readFile(t, dir, "notes.html"))) != 3 {
		err = wsjson.Read(ctx, c, &res)
		assert.Success(t, err)
		tassert.Greater(t, res.Version, version)
		version = res.Version
	}
	tassert.Contains(t, stderr.String(), "detected change in")

	err = tms.Signal(ctx, syscall.SIGTERM)
	assert.Success(t, err)
	assert.Success(t, tms.Wait(ctx))
}

// syncBuffer lets stderr be written by the watcher while the test reads it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(tb testing.TB, ctx context.Context, fn func() bool) {
	tb.Helper()
	t := time.NewTicker(time.Millisecond * 20)
	defer t.Stop()
	for !fn() {
		select {
		case <-t.C:
		case <-ctx.Done():
			tb.Fatalf("timed out: %v", ctx.Err())
		}
	}
}

func blocks(page string) int {
	return strings.Count(page, `class="tikzjax-block"`)
}

func testMain(dir string, args ...string) *xmain.TestState {
	return &xmain.TestState{
		Run:  tzcli.Run,
		Env:  xos.NewEnv(nil),
		Args: append([]string{"tikzjax"}, args...),
		PWD:  dir,
	}
}

func runTestMain(tb testing.TB, ctx context.Context, dir string, args ...string) (string, error) {
	tms := testMain(dir, args...)
	stdout := &bytes.Buffer{}
	tms.Stdout = stdout
	tms.Start(tb, ctx)
	defer tms.Cleanup(tb)
	err := tms.Wait(ctx)
	return stdout.String(), err
}

func writeFile(tb testing.TB, dir, fp, data string) {
	tb.Helper()
	err := os.MkdirAll(filepath.Dir(filepath.Join(dir, fp)), 0755)
	assert.Success(tb, err)
	assert.WriteFile(tb, filepath.Join(dir, fp), []byte(data), 0644)
}

func readFile(tb testing.TB, dir, fp string) []byte {
	tb.Helper()
	return assert.ReadFile(tb, filepath.Join(dir, fp))
}
