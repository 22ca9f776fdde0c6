package tzpipeline

import (
	"context"
	"sync"
	"time"

	"golang.org/x/net/html"

	"oss.terrastruct.com/tikzjax/tzblock"
	"oss.terrastruct.com/tikzjax/tzhost"
)

type State int

const (
	Discovered State = iota
	PlaceholderBuilt
	DelegatedToEngine
	CompletionReceived
	Rewritten
	Displayed
	Failed
)

func (s State) String() string {
	switch s {
	case Discovered:
		return "discovered"
	case PlaceholderBuilt:
		return "placeholder built"
	case DelegatedToEngine:
		return "delegated to engine"
	case CompletionReceived:
		return "completion received"
	case Rewritten:
		return "rewritten"
	case Displayed:
		return "displayed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Request is one diagram on its way from source block to displayed graphic.
type Request struct {
	ID      string
	Doc     tzhost.Document
	Block   tzblock.Block
	Created time.Time

	// Wrapper and Placeholder are owned by Doc and only touched inside its View and
	// Update.
	Wrapper     *html.Node
	Placeholder *html.Node

	mu    sync.Mutex
	state State
	err   error
	done  chan struct{}
}

func newRequest(id string, doc tzhost.Document, b tzblock.Block) *Request {
	return &Request{
		ID:      id,
		Doc:     doc,
		Block:   b,
		Created: time.Now(),
		state:   Discovered,
		done:    make(chan struct{}),
	}
}

func (r *Request) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Request) setState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settled() {
		return
	}
	r.state = s
}

// finish settles r with err, or as displayed when err is nil. Only the first call has
// an effect.
func (r *Request) finish(err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settled() {
		return false
	}
	if err != nil {
		r.state = Failed
		r.err = err
	} else {
		r.state = Displayed
	}
	close(r.done)
	return true
}

func (r *Request) settled() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Done is closed once r is displayed or has failed.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Err returns why r failed. It is nil while r is pending and once it is displayed.
func (r *Request) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Wait blocks until r settles and returns its error.
func (r *Request) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
