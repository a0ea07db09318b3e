package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"goblin/internal/config"
	"goblin/pkg/logging"

	"golang.org/x/sync/singleflight"
)

// ErrCircuitOpen is returned by GetTransport when the upstream's circuit
// breaker is OPEN and the cooldown has not yet elapsed.
type ErrCircuitOpen struct{ Upstream string }

func (e ErrCircuitOpen) Error() string {
	return fmt.Sprintf("upstream %s: circuit open", e.Upstream)
}

type entry struct {
	cfg        config.ServerConfig
	transport  Transport
	breaker    *breaker
	lastUsed   time.Time
	inflight   int
	evictTimer *time.Timer
}

// HealthEntry is one row of Pool.HealthSnapshot.
type HealthEntry struct {
	Name      string
	Connected bool
	Inflight  int
	Circuit   CircuitState
}

// Factory builds an unconnected Transport for cfg; New is the production
// factory. Tests substitute a fake to observe single-flight behavior without
// real network/process I/O.
type Factory func(config.ServerConfig) (Transport, error)

// Pool gives the Router a connected Transport for a given upstream, or a
// fatal error, and never lets two callers build a transport concurrently for
// the same upstream (single-flight).
type Pool struct {
	mu      sync.Mutex
	entries map[string]*entry
	group   singleflight.Group
	factory Factory

	idleTimeout  time.Duration
	drainTimeout time.Duration
}

// NewPool constructs an empty pool. idleTimeout governs `smart`-mode
// eviction (default 60s); drainTimeout bounds Remove's wait for in-flight
// calls to finish.
func NewPool(idleTimeout, drainTimeout time.Duration) *Pool {
	return NewPoolWithFactory(idleTimeout, drainTimeout, New)
}

// NewPoolWithFactory is NewPool with an injectable Transport factory.
func NewPoolWithFactory(idleTimeout, drainTimeout time.Duration, factory Factory) *Pool {
	if idleTimeout <= 0 {
		idleTimeout = time.Duration(config.DefaultIdleMs) * time.Millisecond
	}
	if drainTimeout <= 0 {
		drainTimeout = 5 * time.Second
	}
	return &Pool{
		entries:      make(map[string]*entry),
		idleTimeout:  idleTimeout,
		drainTimeout: drainTimeout,
		factory:      factory,
	}
}

// Configure installs (or replaces the config of) the named upstream without
// connecting it; connection happens lazily on first GetTransport. A transport
// already live for that name is kept.
func (p *Pool) Configure(cfg config.ServerConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, exists := p.entries[cfg.Name]
	if !exists {
		p.entries[cfg.Name] = &entry{
			cfg:     cfg,
			breaker: newBreaker(config.DefaultCircuitFailureThreshold, config.DefaultCircuitSuccessThreshold, config.DefaultCircuitTimeoutMs*time.Millisecond),
		}
		return
	}
	e.cfg = cfg
}

// GetTransport returns a connected transport for upstream, connecting it if
// necessary. At most one connect runs per upstream name at any time; other
// callers await the in-flight connect's result.
func (p *Pool) GetTransport(ctx context.Context, upstream string) (Transport, error) {
	p.mu.Lock()
	e, ok := p.entries[upstream]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("upstream %s not configured", upstream)
	}

	if !e.breaker.allow() {
		return nil, ErrCircuitOpen{Upstream: upstream}
	}

	p.mu.Lock()
	if e.transport != nil && e.transport.IsConnected() {
		e.lastUsed = time.Now()
		e.inflight++
		t := e.transport
		p.mu.Unlock()
		return t, nil
	}
	p.mu.Unlock()

	result, err, _ := p.group.Do(upstream, func() (interface{}, error) {
		t, err := p.factory(e.cfg)
		if err != nil {
			return nil, err
		}
		if err := t.Connect(ctx); err != nil {
			return nil, err
		}
		return t, nil
	})
	if err != nil {
		e.breaker.recordFailure()
		logging.Warn("TransportPool", "connect failed for upstream %s: %s", upstream, err)
		return nil, fmt.Errorf("connect upstream %s: %w", upstream, err)
	}

	t := result.(Transport)
	e.breaker.recordSuccess()

	p.mu.Lock()
	e.transport = t
	e.lastUsed = time.Now()
	e.inflight++
	p.mu.Unlock()

	return t, nil
}

// Release returns a transport after use; behavior depends on the upstream's
// lifecycle mode.
func (p *Pool) Release(upstream string) {
	p.mu.Lock()
	e, ok := p.entries[upstream]
	if !ok {
		p.mu.Unlock()
		return
	}
	if e.inflight > 0 {
		e.inflight--
	}
	mode := e.cfg.Mode
	p.mu.Unlock()

	switch mode {
	case config.LifecycleStateless:
		p.closeEntry(upstream)
	case config.LifecycleSmart:
		p.armIdleEviction(upstream)
	case config.LifecycleStateful, "":
		// no-op: stays connected while configured.
	}
}

func (p *Pool) armIdleEviction(upstream string) {
	p.mu.Lock()
	e, ok := p.entries[upstream]
	if !ok {
		p.mu.Unlock()
		return
	}
	if e.evictTimer != nil {
		e.evictTimer.Stop()
	}
	e.evictTimer = time.AfterFunc(p.idleTimeout, func() {
		p.mu.Lock()
		ent, ok := p.entries[upstream]
		idle := ok && ent.inflight == 0 && time.Since(ent.lastUsed) >= p.idleTimeout
		p.mu.Unlock()
		if idle {
			p.closeEntry(upstream)
		}
	})
	p.mu.Unlock()
}

func (p *Pool) closeEntry(upstream string) {
	p.mu.Lock()
	e, ok := p.entries[upstream]
	if !ok || e.transport == nil {
		p.mu.Unlock()
		return
	}
	t := e.transport
	e.transport = nil
	p.mu.Unlock()

	if err := t.Close(); err != nil {
		logging.Warn("TransportPool", "error closing upstream %s: %s", upstream, err)
	}
}

// Remove drains in-flight calls (bounded by the pool's drain timeout), closes
// the transport, and purges the upstream entirely.
func (p *Pool) Remove(upstream string) {
	deadline := time.Now().Add(p.drainTimeout)
	for {
		p.mu.Lock()
		e, ok := p.entries[upstream]
		if !ok {
			p.mu.Unlock()
			return
		}
		if e.inflight == 0 || time.Now().After(deadline) {
			break
		}
		p.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	p.mu.Unlock()

	p.closeEntry(upstream)

	p.mu.Lock()
	delete(p.entries, upstream)
	p.mu.Unlock()
}

// HealthSnapshot reports per-upstream connection and circuit state.
func (p *Pool) HealthSnapshot() []HealthEntry {
	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot := make([]HealthEntry, 0, len(p.entries))
	for name, e := range p.entries {
		connected := e.transport != nil && e.transport.IsConnected()
		snapshot = append(snapshot, HealthEntry{
			Name:      name,
			Connected: connected,
			Inflight:  e.inflight,
			Circuit:   e.breaker.snapshot(),
		})
	}
	return snapshot
}
