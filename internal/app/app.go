// Package app wires every gateway component together: Config Manager,
// Transport Pool, Registry, Router, Subscription Manager, Session Store,
// notification Hub, and the client-facing gatewayserver.Server. It is the
// single place that knows the full construction order; every other package
// only knows its own narrow dependencies.
package app

import (
	"context"
	"fmt"
	"time"

	"goblin/internal/config"
	"goblin/internal/gatewayserver"
	"goblin/internal/hub"
	"goblin/internal/registry"
	"goblin/internal/router"
	"goblin/internal/session"
	"goblin/internal/subscription"
	"goblin/internal/transport"
	"goblin/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
)

// Application owns every long-lived component and the background goroutines
// that bind them (config reload, registry change fan-out, notification hub).
type Application struct {
	configPath string

	manager  *config.Manager
	pool     *transport.Pool
	registry *registry.Registry
	router   *router.Router
	subs     *subscription.Manager
	sessions *session.Store
	hub      *hub.Hub
	gateway  *gatewayserver.Server

	cancel context.CancelFunc
}

// New constructs every component from the configuration at path, in
// dependency order, but does not start any background goroutine or
// listener; call Run for that.
func New(configPath string) (*Application, error) {
	manager, err := config.NewManager(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	cfg := manager.Current()

	pool := transport.NewPool(
		time.Duration(config.DefaultIdleMs)*time.Millisecond,
		5*time.Second,
	)
	reg := registry.NewRegistry()
	r := router.New(reg, pool, time.Duration(cfg.Policies.DefaultTimeoutMs)*time.Millisecond)
	subs := subscription.NewManager(config.DefaultMaxPerClient)

	// The shared mcp-go server is built ahead of the Session Store so its
	// session-targeted send can be wrapped as a session.Notifier before any
	// session exists.
	mcpServer := gatewayserver.NewMCPServer()
	sessions := session.NewStore(
		gatewayserver.NewNotifier(mcpServer),
		subs,
		reg,
		time.Duration(cfg.StreamableHTTP.SessionTimeoutMs)*time.Millisecond,
		cfg.StreamableHTTP.MaxSessions,
	)
	h := hub.New(sessions, subs)
	gw := gatewayserver.New(cfg, mcpServer, reg, r, subs, sessions, pool)

	for _, sc := range cfg.Servers {
		if sc.IsEnabled() {
			pool.Configure(sc)
		}
	}

	return &Application{
		configPath: configPath,
		manager:    manager,
		pool:       pool,
		registry:   reg,
		router:     r,
		subs:       subs,
		sessions:   sessions,
		hub:        h,
		gateway:    gw,
	}, nil
}

// Run performs the initial upstream sync, starts the notification hub, the
// configuration watcher, and the front-end listener, then blocks until ctx
// is cancelled.
func (a *Application) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.syncAll(runCtx)

	go a.hub.Run(runCtx, a.registry.Subscribe())
	go a.watchConfig(runCtx)

	a.gateway.Run(runCtx)
	if err := a.gateway.Listen(); err != nil {
		return fmt.Errorf("starting front-end listener: %w", err)
	}

	logging.Info("Application", "gateway running with %d configured upstream(s)", len(a.manager.Current().Servers))
	<-runCtx.Done()
	a.Stop()
	return nil
}

// Stop shuts the application down: it cancels the run context, stops the
// gateway server (its registry watcher and every live session), and removes
// the pooled transport of every upstream the registry knows. It does not
// close the front-end listener itself.
func (a *Application) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.gateway.Stop()
	for _, name := range a.registry.Upstreams() {
		a.pool.Remove(name)
	}
	logging.Info("Application", "shutdown complete")
}

// syncAll connects and syncs every enabled upstream, logging (not failing)
// per-upstream errors so one misconfigured server doesn't block the rest.
func (a *Application) syncAll(ctx context.Context) {
	for _, sc := range a.manager.Current().Servers {
		if !sc.IsEnabled() {
			continue
		}
		if err := a.syncOne(ctx, sc.Name); err != nil {
			logging.Warn("Application", "initial sync failed for %s: %s", sc.Name, err)
		}
	}
}

func (a *Application) syncOne(ctx context.Context, name string) error {
	t, err := a.pool.GetTransport(ctx, name)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", name, err)
	}
	if nc, ok := t.Client().(notifiable); ok {
		nc.OnNotification(a.onUpstreamNotification(name))
	}
	if err := a.registry.SyncUpstream(ctx, name, t.Client()); err != nil {
		return fmt.Errorf("syncing %s: %w", name, err)
	}
	return nil
}

// notifiable is implemented by mcp-go's concrete SSE/Streamable-HTTP clients;
// it is checked via type assertion on the Transport.Client() interface value
// because not every transport (e.g. stdio) supports server-initiated pushes.
type notifiable interface {
	OnNotification(handler func(notification mcp.JSONRPCNotification))
}

// onUpstreamNotification reacts to an upstream's own notifications: a
// list_changed triggers a re-sync of that upstream so the aggregated
// capability set catches up, and a resources/updated is forwarded to the
// Hub so any subscribed client learns about it.
func (a *Application) onUpstreamNotification(name string) func(mcp.JSONRPCNotification) {
	return func(n mcp.JSONRPCNotification) {
		switch n.Method {
		case "notifications/tools/list_changed", "notifications/prompts/list_changed", "notifications/resources/list_changed":
			go func() {
				if err := a.syncOne(context.Background(), name); err != nil {
					logging.Warn("Application", "re-sync after %s from %s failed: %s", n.Method, name, err)
				}
			}()
		case "notifications/resources/updated":
			if uri, ok := n.Params.AdditionalFields["uri"].(string); ok {
				a.hub.PublishResourceUpdated(name, uri)
			}
		}
	}
}

// watchConfig applies each reload diff: new servers are configured and
// synced, removed servers are torn down, and changed servers are
// reconfigured and re-synced.
func (a *Application) watchConfig(ctx context.Context) {
	diffs := a.manager.Subscribe()
	go func() {
		if err := a.manager.Watch(ctx); err != nil {
			logging.Warn("Application", "configuration watch stopped: %s", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case diff, ok := <-diffs:
			if !ok {
				return
			}
			a.applyDiff(ctx, diff)
		}
	}
}

func (a *Application) applyDiff(ctx context.Context, diff config.Diff) {
	for _, sc := range diff.ServersRemoved {
		logging.Info("Application", "removing upstream %s", sc.Name)
		a.pool.Remove(sc.Name)
		a.registry.RemoveUpstream(sc.Name)
	}
	for _, sc := range diff.ServersAdded {
		if !sc.IsEnabled() {
			continue
		}
		logging.Info("Application", "adding upstream %s", sc.Name)
		a.pool.Configure(sc)
		if err := a.syncOne(ctx, sc.Name); err != nil {
			logging.Warn("Application", "sync failed for added upstream %s: %s", sc.Name, err)
		}
	}
	for _, d := range diff.ServersChanged {
		logging.Info("Application", "reconfiguring upstream %s", d.Name)
		a.pool.Configure(*d.New)
		if !d.New.IsEnabled() {
			a.registry.RemoveUpstream(d.Name)
			continue
		}
		if err := a.syncOne(ctx, d.Name); err != nil {
			logging.Warn("Application", "re-sync failed for changed upstream %s: %s", d.Name, err)
		}
	}
}
