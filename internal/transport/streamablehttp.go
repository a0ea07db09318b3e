package transport

import (
	"context"
	"fmt"
	"math"
	"time"

	"goblin/internal/config"
	"goblin/pkg/logging"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
)

// defaultStreamableHTTPTimeout bounds each request on a sessionized
// Streamable-HTTP upstream; unlike SSE, the request/response body is not a
// long-lived stream, so a client-side timeout is safe and desirable.
const defaultStreamableHTTPTimeout = 30 * time.Second

// streamableHTTPTransport POSTs /mcp with a protocol-version header and an
// optional mcp-session-id; the first call establishes a session, subsequent
// calls reuse it. The reconnect policy governs retries of a failed connect;
// an error on a call made after the connection is up is returned to the
// caller and is not retried here.
type streamableHTTPTransport struct {
	base
	url       string
	headers   map[string]string
	reconnect config.ReconnectPolicy
}

func newStreamableHTTP(cfg config.ServerConfig) *streamableHTTPTransport {
	return &streamableHTTPTransport{
		base:      base{name: cfg.Name},
		url:       cfg.URL,
		headers:   cfg.Headers,
		reconnect: cfg.Reconnect,
	}
}

func (t *streamableHTTPTransport) Connect(ctx context.Context) error {
	t.mu.RLock()
	already := t.connected
	t.mu.RUnlock()
	if already {
		return nil
	}

	return t.connectWithReconnect(ctx)
}

func (t *streamableHTTPTransport) connectWithReconnect(ctx context.Context) error {
	attempt := 0
	delay := time.Duration(t.reconnect.InitialDelayMs) * time.Millisecond
	if delay <= 0 {
		delay = time.Second
	}

	for {
		err := t.connectOnce(ctx)
		if err == nil {
			return nil
		}
		if !t.reconnect.Enabled || attempt >= t.reconnect.MaxRetries {
			return err
		}

		attempt++
		mult := t.reconnect.BackoffMultiplier
		if mult <= 0 {
			mult = 2
		}
		wait := time.Duration(float64(delay) * math.Pow(mult, float64(attempt-1)))
		logging.Warn("Transport", "upstream %s connect attempt %d failed, retrying in %s: %s", t.name, attempt, wait, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (t *streamableHTTPTransport) connectOnce(ctx context.Context) error {
	opts := []transport.StreamableHTTPCOption{transport.WithHTTPTimeout(defaultStreamableHTTPTimeout)}
	if len(t.headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(t.headers))
	}

	logging.Debug("Transport", "connecting Streamable-HTTP upstream %s at %s", t.name, t.url)
	cl, err := mcpclient.NewStreamableHttpClient(t.url, opts...)
	if err != nil {
		return fmt.Errorf("create Streamable-HTTP client for upstream %s: %w", t.name, err)
	}

	return t.initialize(ctx, cl)
}

func (t *streamableHTTPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked()
}

// SessionID reports the upstream session id negotiated on connect, if the
// underlying client type exposes one; best-effort, for observability only.
func (t *streamableHTTPTransport) SessionID() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	type sessionIDer interface{ GetSessionId() string }
	if cl, ok := t.client.(sessionIDer); ok {
		if id := cl.GetSessionId(); id != "" {
			return id, true
		}
	}
	return "", false
}

var _ Sessioned = (*streamableHTTPTransport)(nil)
