// Package transport abstracts a connection to a single upstream MCP server
// behind a common capability set (connect, close, is_connected, client,
// health), with four variants (stdio-subprocess, HTTP, SSE,
// Streamable-HTTP), and a Pool that deduplicates concurrent connects,
// enforces per-upstream lifecycle modes, and gates acquisition with a
// circuit breaker.
package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"goblin/internal/config"
	"goblin/pkg/logging"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

const protocolVersion = "2024-11-05"

// Transport is the capability set the Pool and Router depend on. Kind-specific
// behavior (reconnect policy, session id) is exposed through optional
// interfaces below.
type Transport interface {
	Connect(ctx context.Context) error
	Close() error
	IsConnected() bool
	Client() mcpclient.MCPClient
	Health(ctx context.Context) error
}

// Sessioned is implemented by transports that carry an upstream session id
// (Streamable-HTTP); used for observability, not by the Router itself.
type Sessioned interface {
	SessionID() (string, bool)
}

// base holds the fields and init sequence shared by every variant.
type base struct {
	mu        sync.RWMutex
	name      string
	connected bool
	client    mcpclient.MCPClient
}

func (b *base) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

func (b *base) Client() mcpclient.MCPClient {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.client
}

func (b *base) Health(ctx context.Context) error {
	b.mu.RLock()
	cl := b.client
	connected := b.connected
	b.mu.RUnlock()
	if !connected || cl == nil {
		return fmt.Errorf("transport %s: not connected", b.name)
	}
	return cl.Ping(ctx)
}

func (b *base) closeLocked() error {
	if !b.connected || b.client == nil {
		return nil
	}
	err := b.client.Close()
	b.connected = false
	b.client = nil
	return err
}

// initialize performs the MCP handshake on a freshly constructed client and,
// on success, installs it as the transport's active client.
func (b *base) initialize(ctx context.Context, cl mcpclient.MCPClient) error {
	initCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}

	result, err := cl.Initialize(initCtx, mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: protocolVersion,
			ClientInfo: mcp.Implementation{
				Name:    "goblin-gateway",
				Version: "1.0.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		_ = cl.Close()
		return fmt.Errorf("initialize upstream %s: %w", b.name, err)
	}

	b.mu.Lock()
	b.client = cl
	b.connected = true
	b.mu.Unlock()

	logging.Debug("Transport", "upstream %s initialized: server=%s version=%s",
		b.name, result.ServerInfo.Name, result.ServerInfo.Version)
	return nil
}

// New builds the Transport variant named by cfg.Transport.
func New(cfg config.ServerConfig) (Transport, error) {
	switch cfg.Transport {
	case config.TransportStdio:
		return newStdio(cfg), nil
	case config.TransportHTTP:
		return newHTTP(cfg), nil
	case config.TransportSSE:
		return newSSE(cfg), nil
	case config.TransportStreamableHTTP:
		return newStreamableHTTP(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported transport kind %q for upstream %s", cfg.Transport, cfg.Name)
	}
}
