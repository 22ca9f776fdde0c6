// Package tzlifecycle keeps exactly one engine attached to every open document.
package tzlifecycle

import (
	"context"
	"fmt"
	"sync"

	"cdr.dev/slog"
	"go.uber.org/multierr"
	"golang.org/x/net/html"

	"oss.terrastruct.com/tikzjax/lib/log"
	"oss.terrastruct.com/tikzjax/tzengine"
	"oss.terrastruct.com/tikzjax/tzhost"
)

// ScriptID is the id of the element carrying the engine payload.
const ScriptID = "tikzjax"

// Instance is the engine attached to one document.
type Instance struct {
	Doc     tzhost.Document
	Script  *html.Node
	Runtime *tzengine.Runtime

	removeListeners []func()
}

type Manager struct {
	host     tzhost.Host
	engine   tzengine.Engine
	listener tzhost.Listener

	mu        sync.Mutex
	instances map[string]*Instance
}

// NewManager returns a Manager attaching engine to the windows of host. listener is
// registered for tikzjax-load-finished and tikzjax-load-failed on every document the
// engine is injected into.
func NewManager(host tzhost.Host, engine tzengine.Engine, listener tzhost.Listener) *Manager {
	return &Manager{
		host:      host,
		engine:    engine,
		listener:  listener,
		instances: make(map[string]*Instance),
	}
}

// Inject appends the engine script to the body of doc, starts the engine for it and
// registers the listener.
//
// Inject does not check for an engine already attached to doc. Injecting twice leaves two
// scripts, two runtimes and two listeners in doc, and only the second is recorded.
func (m *Manager) Inject(ctx context.Context, doc tzhost.Document) error {
	var script *html.Node
	err := doc.Update(func(root *html.Node) error {
		script = tzhost.NewElement("script", html.Attribute{Key: "id", Val: ScriptID})
		tzhost.SetText(script, m.engine.Payload())
		tzhost.Body(root).AppendChild(script)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to inject engine into %s: %w", doc.ID(), err)
	}

	inst := &Instance{
		Doc:     doc,
		Script:  script,
		Runtime: tzengine.Start(ctx, m.engine, doc),
		removeListeners: []func(){
			doc.AddEventListener(tzhost.EventLoadFinished, m.listener),
			doc.AddEventListener(tzhost.EventLoadFailed, m.listener),
		},
	}

	m.mu.Lock()
	m.instances[doc.ID()] = inst
	m.mu.Unlock()

	log.Debug(ctx, "injected engine", slog.F("doc", doc.ID()))
	return nil
}

// Remove detaches the first engine script of doc, stops the engine, then unregisters the
// listeners. A document the engine was never injected into is left alone.
func (m *Manager) Remove(ctx context.Context, doc tzhost.Document) error {
	m.mu.Lock()
	inst, ok := m.instances[doc.ID()]
	delete(m.instances, doc.ID())
	m.mu.Unlock()
	if !ok {
		return nil
	}

	found := false
	err := doc.Update(func(root *html.Node) error {
		if n := tzhost.ElementByID(root, ScriptID); n != nil {
			found = tzhost.Detach(n)
		}
		return nil
	})
	inst.Runtime.Stop()
	for _, remove := range inst.removeListeners {
		remove()
	}
	if err != nil {
		return fmt.Errorf("failed to remove engine from %s: %w", doc.ID(), err)
	}
	if !found {
		log.Warn(ctx, "engine script already gone", slog.F("doc", doc.ID()))
	}
	return nil
}

// InjectAll injects the engine into the document of every open window.
func (m *Manager) InjectAll(ctx context.Context) (err error) {
	for _, w := range m.host.Windows() {
		err = multierr.Append(err, m.Inject(ctx, w.Document()))
	}
	return err
}

// RemoveAll removes the engine from every document it is attached to, including documents
// of windows that are already gone.
func (m *Manager) RemoveAll(ctx context.Context) (err error) {
	seen := make(map[string]struct{})
	for _, w := range m.host.Windows() {
		doc := w.Document()
		seen[doc.ID()] = struct{}{}
		err = multierr.Append(err, m.Remove(ctx, doc))
	}

	m.mu.Lock()
	var orphans []tzhost.Document
	for id, inst := range m.instances {
		if _, ok := seen[id]; !ok {
			orphans = append(orphans, inst.Doc)
		}
	}
	m.mu.Unlock()

	for _, doc := range orphans {
		err = multierr.Append(err, m.Remove(ctx, doc))
	}
	return err
}

func (m *Manager) Instance(docID string) (*Instance, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[docID]
	return inst, ok
}

// Len returns the number of documents with an engine attached.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.instances)
}
