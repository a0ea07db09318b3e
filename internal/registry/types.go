// Package registry maintains the authoritative, in-memory index of every
// tool, prompt, resource, and resource template aggregated from the upstream
// fleet, plus any locally-defined meta-tools. Every upstream-owned identifier
// is namespaced before it is exposed, so two upstreams can define a tool or
// resource with the same name without colliding.
package registry

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// ToolEntry is one namespaced tool, backed by a single upstream.
type ToolEntry struct {
	Name         string // "{upstream}_{originalName}"
	Upstream     string
	OriginalName string
	Tool         mcp.Tool
}

// PromptEntry is one namespaced prompt, backed by a single upstream.
type PromptEntry struct {
	Name         string
	Upstream     string
	OriginalName string
	Prompt       mcp.Prompt
}

// ResourceEntry is one namespaced, concrete resource.
type ResourceEntry struct {
	URI      string // "mcp://{upstream}/{percent-encode(rawUri)}"
	Upstream string
	RawURI   string
	Resource mcp.Resource
}

// ResourceTemplateEntry is one namespaced resource template. Its URITemplate
// keeps `{var}` expressions literal so clients can expand them; only the
// literal segments around the expressions are percent-encoded.
type ResourceTemplateEntry struct {
	URITemplate      string
	Upstream         string
	RawTemplate      string
	ResourceTemplate mcp.ResourceTemplate
	matcher          *templateMatcher
}

// LocalToolHandler executes a locally-defined tool (one not backed by any
// upstream), such as a gateway introspection tool.
type LocalToolHandler func(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error)

// LocalTool pairs a tool definition with its handler. Local tools are never
// namespaced: their Tool.Name is exposed as-is and takes priority over any
// upstream-owned name that would otherwise collide with it.
type LocalTool struct {
	Tool    mcp.Tool
	Handler LocalToolHandler
}

// ChangeKind identifies what changed in a ChangeEvent.
type ChangeKind string

const (
	ChangeUpstreamSynced  ChangeKind = "upstream_synced"
	ChangeUpstreamRemoved ChangeKind = "upstream_removed"
)

// ChangeEvent is emitted whenever the registry's contents change, so
// subscribers (the session layer, the notification hub) can push
// `list_changed` notifications to attached clients.
type ChangeEvent struct {
	Kind      ChangeKind
	Upstream  string
	Timestamp time.Time
}
