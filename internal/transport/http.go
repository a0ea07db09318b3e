package transport

import (
	"context"
	"fmt"

	"goblin/internal/config"
	"goblin/pkg/logging"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
)

// httpTransport issues JSON-RPC POSTs over the same Streamable-HTTP wire
// client (the library does not expose a bare stateless HTTP client), without
// streamableHTTPTransport's reconnect policy. One client is created per
// Connect and serves every call until Close; nothing here clears session
// state that client holds between calls.
type httpTransport struct {
	base
	url     string
	headers map[string]string
}

func newHTTP(cfg config.ServerConfig) *httpTransport {
	return &httpTransport{base: base{name: cfg.Name}, url: cfg.URL, headers: cfg.Headers}
}

func (t *httpTransport) Connect(ctx context.Context) error {
	t.mu.RLock()
	already := t.connected
	t.mu.RUnlock()
	if already {
		return nil
	}

	opts := []transport.StreamableHTTPCOption{transport.WithHTTPTimeout(defaultStreamableHTTPTimeout)}
	if len(t.headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(t.headers))
	}

	logging.Debug("Transport", "connecting HTTP upstream %s at %s", t.name, t.url)
	cl, err := mcpclient.NewStreamableHttpClient(t.url, opts...)
	if err != nil {
		return fmt.Errorf("create HTTP client for upstream %s: %w", t.name, err)
	}

	return t.initialize(ctx, cl)
}

func (t *httpTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked()
}
