// Package pool indexes every connector by server name, drives concurrent
// boot through an errgroup, and reconciles against settings changes through
// a sync.WaitGroup fan-out, as a top-level, settings-driven registry
// independent of any one session.
package pool

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mcphub-dev/mcphub/internal/connector"
	"github.com/mcphub-dev/mcphub/internal/logging"
	"github.com/mcphub-dev/mcphub/internal/settings"
)

// DefaultInitTimeout bounds Boot.
const DefaultInitTimeout = 300 * time.Second

// ChangeListener is notified after Boot and after each Reconcile, feeding
// C4/C5's "tool-list-changed" event. A connector that reconnects through its
// own retry loop, or re-synthesizes its openapi tools, does not notify.
type ChangeListener func()

// Pool owns the connector map and serializes reconciliation per name.
type Pool struct {
	logger      *logging.Logger
	initTimeout time.Duration

	mu         sync.RWMutex
	connectors map[string]*connector.Connector

	reconcileMu sync.Mutex
	perName     map[string]*sync.Mutex

	listenersMu sync.Mutex
	listeners   []ChangeListener
}

// New builds an empty pool. initTimeout <= 0 uses DefaultInitTimeout.
func New(logger *logging.Logger, initTimeout time.Duration) *Pool {
	if initTimeout <= 0 {
		initTimeout = DefaultInitTimeout
	}
	return &Pool{
		logger:      logger,
		initTimeout: initTimeout,
		connectors:  map[string]*connector.Connector{},
		perName:     map[string]*sync.Mutex{},
	}
}

// OnChange registers a listener fired after Boot and after every Reconcile.
func (p *Pool) OnChange(l ChangeListener) {
	p.listenersMu.Lock()
	p.listeners = append(p.listeners, l)
	p.listenersMu.Unlock()
}

func (p *Pool) notify() {
	p.listenersMu.Lock()
	listeners := append([]ChangeListener(nil), p.listeners...)
	p.listenersMu.Unlock()
	for _, l := range listeners {
		l()
	}
}

// Boot initializes every enabled connector in doc concurrently, bounded by
// the pool's init timeout. Per-connector failures do not fail Boot as a
// whole: Boot returns once each connector has either reached connected or
// exhausted its first retry budget.
func (p *Pool) Boot(ctx context.Context, doc *settings.Document) error {
	ctx, cancel := context.WithTimeout(ctx, p.initTimeout)
	defer cancel()

	p.mu.Lock()
	for name, cfg := range doc.MCPServers {
		if !cfg.IsEnabled() {
			continue
		}
		p.connectors[name] = connector.New(cfg, p.logger)
	}
	conns := make([]*connector.Connector, 0, len(p.connectors))
	for _, c := range p.connectors {
		conns = append(conns, c)
	}
	p.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range conns {
		c := c
		g.Go(func() error {
			_ = c.Initialize(gctx)
			return nil
		})
	}
	err := g.Wait()
	p.notify()
	return err
}

// Get returns the connector for name, or nil.
func (p *Pool) Get(name string) *connector.Connector {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connectors[name]
}

// List returns a snapshot of all connectors.
func (p *Pool) List() []*connector.Connector {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*connector.Connector, 0, len(p.connectors))
	for _, c := range p.connectors {
		out = append(out, c)
	}
	return out
}

// AllConnected reports whether every enabled connector is connected.
func (p *Pool) AllConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, c := range p.connectors {
		if c.Config().IsEnabled() && c.Status() != connector.StatusConnected {
			return false
		}
	}
	return true
}

func (p *Pool) mutexFor(name string) *sync.Mutex {
	p.reconcileMu.Lock()
	defer p.reconcileMu.Unlock()
	m, ok := p.perName[name]
	if !ok {
		m = &sync.Mutex{}
		p.perName[name] = m
	}
	return m
}

// Reconcile diffs oldDoc against newDoc and applies added/removed/enabled/
// disabled/config-changed transitions, serialized per connector name so a
// reload can never race a connector's own Initialize/Disconnect. Reconcile
// against the same document twice is a no-op.
func (p *Pool) Reconcile(ctx context.Context, oldDoc, newDoc *settings.Document) {
	names := map[string]bool{}
	for n := range oldDoc.MCPServers {
		names[n] = true
	}
	for n := range newDoc.MCPServers {
		names[n] = true
	}

	var wg sync.WaitGroup
	for name := range names {
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			mu := p.mutexFor(name)
			mu.Lock()
			defer mu.Unlock()
			p.reconcileOne(ctx, name, oldDoc.MCPServers[name], newDoc.MCPServers[name])
		}()
	}
	wg.Wait()
	p.notify()
}

func (p *Pool) reconcileOne(ctx context.Context, name string, oldCfg, newCfg *settings.ServerConfig) {
	switch {
	case oldCfg == nil && newCfg != nil:
		if !newCfg.IsEnabled() {
			return
		}
		c := connector.New(newCfg, p.logger)
		p.mu.Lock()
		p.connectors[name] = c
		p.mu.Unlock()
		_ = c.Initialize(ctx)

	case oldCfg != nil && newCfg == nil:
		p.mu.Lock()
		c := p.connectors[name]
		delete(p.connectors, name)
		p.mu.Unlock()
		if c != nil {
			_ = c.Disconnect()
		}

	case oldCfg != nil && newCfg != nil:
		p.mu.RLock()
		c := p.connectors[name]
		p.mu.RUnlock()

		wasEnabled := oldCfg.IsEnabled()
		nowEnabled := newCfg.IsEnabled()
		changed := configChanged(oldCfg, newCfg)

		switch {
		case wasEnabled && !nowEnabled:
			if c != nil {
				_ = c.Disconnect()
			}
		case !wasEnabled && nowEnabled:
			nc := connector.New(newCfg, p.logger)
			p.mu.Lock()
			p.connectors[name] = nc
			p.mu.Unlock()
			_ = nc.Initialize(ctx)
		case nowEnabled && changed:
			if c != nil {
				_ = c.Disconnect()
			}
			nc := connector.New(newCfg, p.logger)
			p.mu.Lock()
			p.connectors[name] = nc
			p.mu.Unlock()
			_ = nc.Initialize(ctx)
		}
	}
}

// configChanged compares the fields that require a reconnect (transport
// identity), ignoring cosmetic fields like per-tool description overrides.
func configChanged(a, b *settings.ServerConfig) bool {
	if a.Kind != b.Kind || a.Command != b.Command || a.URL != b.URL {
		return true
	}
	if len(a.Args) != len(b.Args) {
		return true
	}
	for i := range a.Args {
		if a.Args[i] != b.Args[i] {
			return true
		}
	}
	return false
}
