// Package gatewayserver owns the shared mcp-go server instance exposed to
// clients, rebuilding its tool/prompt/resource sets from Registry change
// events and bridging tool/prompt/resource calls to the Router.
package gatewayserver

import (
	"context"
	"time"

	"goblin/internal/config"
	"goblin/internal/registry"
	"goblin/internal/session"
	"goblin/internal/subscription"
	"goblin/internal/transport"
	"goblin/pkg/logging"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

// poolFacade is the narrow slice of *transport.Pool the gateway server's
// /status and /servers endpoints read.
type poolFacade interface {
	HealthSnapshot() []transport.HealthEntry
}

// Server wires the Registry, Router, Subscription Manager, and Session Store
// into a client-facing mcp-go server plus an HTTP control surface.
type Server struct {
	cfg      config.GatewayConfig
	registry *registry.Registry
	router   routerFacade
	subs     *subscription.Manager
	sessions *session.Store
	pool     poolFacade

	mcpServer *mcpserver.MCPServer
	installed *installedSets
	startedAt time.Time

	cancel context.CancelFunc
}

// NewMCPServer builds the shared mcp-go server instance. It is exported
// separately from New so a caller can wrap its session-targeted send as a
// session.Notifier before the Session Store (and therefore this Server)
// exists.
func NewMCPServer() *mcpserver.MCPServer {
	return mcpserver.NewMCPServer(
		"goblin-gateway", "1.0.0",
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithPromptCapabilities(true),
	)
}

// New builds a Server around an already-constructed mcp-go server (see
// NewMCPServer). The caller owns starting the background registry watcher
// (Run) and the front-end transport (Listen).
func New(cfg config.GatewayConfig, mcpServer *mcpserver.MCPServer, reg *registry.Registry, r routerFacade, subs *subscription.Manager, sessions *session.Store, pool poolFacade) *Server {
	return &Server{
		cfg:       cfg,
		registry:  reg,
		router:    r,
		subs:      subs,
		sessions:  sessions,
		pool:      pool,
		mcpServer: mcpServer,
		installed: newInstalledSets(),
		startedAt: time.Now(),
	}
}

// Run rebuilds the exposed capability sets once, then keeps them in sync
// with Registry change events until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.rebuild()
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.watchRegistry(ctx, s.registry.Subscribe())
}

// Stop halts the registry watcher and every live session.
func (s *Server) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.sessions.Stop()
	logging.Info("GatewayServer", "stopped")
}
