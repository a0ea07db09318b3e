package transport

import (
	"context"
	"fmt"

	"goblin/internal/config"
	"goblin/pkg/logging"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
)

// sseTransport holds a long-lived GET for server events and POSTs client
// messages, correlated by the server-issued endpoint url (legacy MCP
// transport). Deliberately carries no client-side timeout or body size cap:
// the event stream's body IS the long-lived connection, so bounding it would
// sever it rather than protect it.
type sseTransport struct {
	base
	url     string
	headers map[string]string
}

func newSSE(cfg config.ServerConfig) *sseTransport {
	return &sseTransport{base: base{name: cfg.Name}, url: cfg.URL, headers: cfg.Headers}
}

func (t *sseTransport) Connect(ctx context.Context) error {
	t.mu.RLock()
	already := t.connected
	t.mu.RUnlock()
	if already {
		return nil
	}

	var opts []transport.ClientOption
	if len(t.headers) > 0 {
		opts = append(opts, transport.WithHeaders(t.headers))
	}

	logging.Debug("Transport", "connecting SSE upstream %s at %s", t.name, t.url)
	cl, err := mcpclient.NewSSEMCPClient(t.url, opts...)
	if err != nil {
		return fmt.Errorf("create SSE client for upstream %s: %w", t.name, err)
	}
	if err := cl.Start(ctx); err != nil {
		return fmt.Errorf("start SSE transport for upstream %s: %w", t.name, err)
	}

	return t.initialize(ctx, cl)
}

func (t *sseTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked()
}
