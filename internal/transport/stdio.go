package transport

import (
	"context"
	"fmt"

	"goblin/internal/config"
	"goblin/pkg/logging"

	mcpclient "github.com/mark3labs/mcp-go/client"
)

// stdioTransport spawns the upstream as a subprocess (array-form argv, never
// shelled) and frames JSON-RPC over its stdin/stdout.
// Subprocess stderr is routed into the gateway log stream by the underlying
// client library.
type stdioTransport struct {
	base
	command string
	args    []string
}

func newStdio(cfg config.ServerConfig) *stdioTransport {
	return &stdioTransport{base: base{name: cfg.Name}, command: cfg.Command, args: cfg.Args}
}

func (t *stdioTransport) Connect(ctx context.Context) error {
	t.mu.RLock()
	already := t.connected
	t.mu.RUnlock()
	if already {
		return nil
	}

	logging.Debug("Transport", "spawning stdio upstream %s: %s %v", t.name, t.command, t.args)
	cl, err := mcpclient.NewStdioMCPClient(t.command, nil, t.args...)
	if err != nil {
		return fmt.Errorf("spawn stdio upstream %s: %w", t.name, err)
	}

	return t.initialize(ctx, cl)
}

func (t *stdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked()
}
