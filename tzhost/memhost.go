package tzhost

import (
	"fmt"
	"sort"
	"sync"
)

// MemHost is a Host whose windows live in memory.
type MemHost struct {
	mu      sync.Mutex
	seq     int
	windows []*MemWindow
	subSeq  int
	onOpen  map[int]func(Window)
	onClose map[int]func(Window)
}

var _ Host = &MemHost{}

func NewMemHost() *MemHost {
	return &MemHost{
		onOpen:  make(map[int]func(Window)),
		onClose: make(map[int]func(Window)),
	}
}

type MemWindow struct {
	id    string
	title string
	doc   *HTMLDocument
}

var _ Window = &MemWindow{}

func (w *MemWindow) ID() string {
	return w.id
}

func (w *MemWindow) Title() string {
	return w.title
}

func (w *MemWindow) Document() Document {
	return w.doc
}

// HTMLDocument returns the concrete document of w.
func (w *MemWindow) HTMLDocument() *HTMLDocument {
	return w.doc
}

// Open creates a window whose document body is body and notifies OnWindowOpen
// subscribers before returning.
func (h *MemHost) Open(title, body string) (*MemWindow, error) {
	h.mu.Lock()
	h.seq++
	id := fmt.Sprintf("window-%d", h.seq)
	h.mu.Unlock()

	doc, err := NewDocument(id, title, body)
	if err != nil {
		return nil, err
	}
	w := &MemWindow{
		id:    id,
		title: title,
		doc:   doc,
	}

	h.mu.Lock()
	h.windows = append(h.windows, w)
	subs := subscribers(h.onOpen)
	h.mu.Unlock()

	for _, fn := range subs {
		fn(w)
	}
	return w, nil
}

// Close notifies OnWindowClose subscribers and forgets w. Closing a window twice is a
// no-op.
func (h *MemHost) Close(w *MemWindow) {
	h.mu.Lock()
	found := false
	for i, w2 := range h.windows {
		if w2 == w {
			h.windows = append(h.windows[:i], h.windows[i+1:]...)
			found = true
			break
		}
	}
	subs := subscribers(h.onClose)
	h.mu.Unlock()

	if !found {
		return
	}
	for _, fn := range subs {
		fn(w)
	}
}

func (h *MemHost) Windows() []Window {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Window, len(h.windows))
	for i, w := range h.windows {
		out[i] = w
	}
	return out
}

func (h *MemHost) OnWindowOpen(fn func(Window)) (unsubscribe func()) {
	return h.subscribe(h.onOpen, fn)
}

func (h *MemHost) OnWindowClose(fn func(Window)) (unsubscribe func()) {
	return h.subscribe(h.onClose, fn)
}

// Subscriptions returns the number of live OnWindowOpen and OnWindowClose subscriptions.
func (h *MemHost) Subscriptions() (nOpen, nClose int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.onOpen), len(h.onClose)
}

func (h *MemHost) subscribe(m map[int]func(Window), fn func(Window)) func() {
	h.mu.Lock()
	h.subSeq++
	id := h.subSeq
	m[id] = fn
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(m, id)
		h.mu.Unlock()
	}
}

// subscribers returns the subscriptions of m in subscription order.
func subscribers(m map[int]func(Window)) []func(Window) {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(Window), len(ids))
	for i, id := range ids {
		out[i] = m[id]
	}
	return out
}
