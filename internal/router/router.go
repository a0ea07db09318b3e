// Package router resolves a namespaced tool/prompt id or resource uri to its
// owning upstream, acquires a transport from the Pool, forwards the request
// under a per-call deadline, and maps the outcome to the gateway's §7 error
// kinds. Local ("meta") tools bypass upstream routing entirely.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"goblin/internal/gatewayerr"
	"goblin/internal/registry"
	"goblin/internal/transport"
	"goblin/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
)

// transportProvider is the narrow slice of *transport.Pool the Router
// depends on; it lets tests substitute a fake pool without a real network.
type transportProvider interface {
	GetTransport(ctx context.Context, upstream string) (transport.Transport, error)
	Release(upstream string)
}

// registryLookup is the narrow slice of *registry.Registry the Router reads.
type registryLookup interface {
	GetLocalTool(name string) (*registry.LocalTool, bool)
	GetTool(name string) (*registry.ToolEntry, bool)
	GetPrompt(name string) (*registry.PromptEntry, bool)
	ResolveResourceURI(uri string) (registry.ResourceResolution, bool)
}

// Router forwards client-facing operations to the correct upstream.
type Router struct {
	registry       registryLookup
	pool           transportProvider
	defaultTimeout time.Duration
	metrics        *callMetrics
}

// New builds a Router. defaultTimeout is policies.defaultTimeout; callers may
// override it per-call (e.g. from an X-Request-Timeout header).
func New(reg registryLookup, pool transportProvider, defaultTimeout time.Duration) *Router {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &Router{registry: reg, pool: pool, defaultTimeout: defaultTimeout, metrics: newCallMetrics()}
}

// Metrics returns a snapshot of per-upstream, per-entity call counters.
func (r *Router) Metrics() []EntityMetrics {
	return r.metrics.Snapshot()
}

func (r *Router) deadline(ctx context.Context, override time.Duration) (context.Context, context.CancelFunc) {
	d := r.defaultTimeout
	if override > 0 {
		d = override
	}
	return context.WithTimeout(ctx, d)
}

// CallTool invokes a tool by its exposed (possibly namespaced) name. Local
// tools are checked first and run synchronously under the same deadline.
func (r *Router) CallTool(ctx context.Context, name string, args map[string]any, timeoutOverride time.Duration) (*mcp.CallToolResult, error) {
	if local, ok := r.registry.GetLocalTool(name); ok {
		cctx, cancel := r.deadline(ctx, timeoutOverride)
		defer cancel()

		start := time.Now()
		result, err := local.Handler(cctx, args)
		r.metrics.record("local", "tool", time.Since(start).Milliseconds(), err != nil)
		if err != nil {
			return nil, gatewayerr.Wrap(gatewayerr.KindInternalError, fmt.Sprintf("local tool %q failed", name), err)
		}
		return result, nil
	}

	entry, ok := r.registry.GetTool(name)
	if !ok {
		return nil, gatewayerr.New(gatewayerr.KindNotFound, fmt.Sprintf("tool %q not found", name))
	}

	t, err := r.acquire(ctx, entry.Upstream)
	if err != nil {
		return nil, err
	}
	defer r.pool.Release(entry.Upstream)

	cctx, cancel := r.deadline(ctx, timeoutOverride)
	defer cancel()

	start := time.Now()
	result, callErr := t.Client().CallTool(cctx, mcp.CallToolRequest{
		Params: struct {
			Name      string    `json:"name"`
			Arguments any       `json:"arguments,omitempty"`
			Meta      *mcp.Meta `json:"_meta,omitempty"`
		}{
			Name:      entry.OriginalName,
			Arguments: args,
		},
	})
	r.metrics.record(entry.Upstream, "tool", time.Since(start).Milliseconds(), callErr != nil)
	if callErr != nil {
		return nil, r.mapUpstreamError(cctx, callErr)
	}
	return result, nil
}

// GetPrompt resolves and forwards a prompts/get request, passing the string
// argument values through unchanged.
func (r *Router) GetPrompt(ctx context.Context, name string, args map[string]string, timeoutOverride time.Duration) (*mcp.GetPromptResult, error) {
	entry, ok := r.registry.GetPrompt(name)
	if !ok {
		return nil, gatewayerr.New(gatewayerr.KindNotFound, fmt.Sprintf("prompt %q not found", name))
	}

	t, err := r.acquire(ctx, entry.Upstream)
	if err != nil {
		return nil, err
	}
	defer r.pool.Release(entry.Upstream)

	cctx, cancel := r.deadline(ctx, timeoutOverride)
	defer cancel()

	start := time.Now()
	result, callErr := t.Client().GetPrompt(cctx, mcp.GetPromptRequest{
		Params: struct {
			Name      string            `json:"name"`
			Arguments map[string]string `json:"arguments,omitempty"`
		}{
			Name:      entry.OriginalName,
			Arguments: args,
		},
	})
	r.metrics.record(entry.Upstream, "prompt", time.Since(start).Milliseconds(), callErr != nil)
	if callErr != nil {
		return nil, r.mapUpstreamError(cctx, callErr)
	}
	return result, nil
}

// ReadResource resolves a namespaced (or template-matched) resource uri and
// forwards a resources/read using the upstream's original raw uri.
func (r *Router) ReadResource(ctx context.Context, uri string, timeoutOverride time.Duration) (*mcp.ReadResourceResult, error) {
	resolution, ok := r.registry.ResolveResourceURI(uri)
	if !ok {
		return nil, gatewayerr.New(gatewayerr.KindNotFound, fmt.Sprintf("resource %q not found", uri))
	}

	t, err := r.acquire(ctx, resolution.Upstream)
	if err != nil {
		return nil, err
	}
	defer r.pool.Release(resolution.Upstream)

	cctx, cancel := r.deadline(ctx, timeoutOverride)
	defer cancel()

	start := time.Now()
	result, callErr := t.Client().ReadResource(cctx, mcp.ReadResourceRequest{
		Params: struct {
			URI       string         `json:"uri"`
			Arguments map[string]any `json:"arguments,omitempty"`
		}{
			URI: resolution.RawURI,
		},
	})
	r.metrics.record(resolution.Upstream, "resource", time.Since(start).Milliseconds(), callErr != nil)
	if callErr != nil {
		return nil, r.mapUpstreamError(cctx, callErr)
	}
	return result, nil
}

func (r *Router) acquire(ctx context.Context, upstream string) (transport.Transport, error) {
	t, err := r.pool.GetTransport(ctx, upstream)
	if err != nil {
		var circuitOpen transport.ErrCircuitOpen
		if errors.As(err, &circuitOpen) {
			return nil, gatewayerr.Wrap(gatewayerr.KindCircuitOpen, fmt.Sprintf("upstream %s unavailable", upstream), err)
		}
		return nil, gatewayerr.Wrap(gatewayerr.KindConnectionError, fmt.Sprintf("acquire upstream %s", upstream), err)
	}
	return t, nil
}

// mapUpstreamError translates a forwarding failure into its §7 kind: a
// deadline exceeded on our own context is a timeout, an explicit cancel is
// Cancelled, anything else from the wire is a connection error.
func (r *Router) mapUpstreamError(ctx context.Context, err error) *gatewayerr.Error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return gatewayerr.Wrap(gatewayerr.KindRequestTimeout, "upstream call deadline exceeded", err)
	case errors.Is(ctx.Err(), context.Canceled):
		return gatewayerr.Wrap(gatewayerr.KindCancelled, "upstream call cancelled", err)
	default:
		logging.Warn("Router", "upstream call failed: %s", err)
		return gatewayerr.Wrap(gatewayerr.KindConnectionError, "upstream call failed", err)
	}
}
