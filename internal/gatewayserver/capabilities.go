package gatewayserver

import (
	"context"
	"sync"

	"goblin/internal/registry"
	"goblin/pkg/logging"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

// installedSets tracks which exposed names/uris are currently installed on
// the shared *mcpserver.MCPServer, per category, so a Registry change event
// can be diffed into an add/remove batch instead of a full reinstall.
// Mirrors the aggregator's activeItemManager/getInactiveItems idiom.
type installedSets struct {
	mu        sync.Mutex
	tools     map[string]struct{}
	prompts   map[string]struct{}
	resources map[string]struct{}
}

func newInstalledSets() *installedSets {
	return &installedSets{
		tools:     make(map[string]struct{}),
		prompts:   make(map[string]struct{}),
		resources: make(map[string]struct{}),
	}
}

// rebuild recomputes the shared MCP server's exposed capability sets from the
// Registry's current contents, installing what's new and deleting what
// dropped out since the last rebuild.
func (s *Server) rebuild() {
	s.rebuildTools()
	s.rebuildPrompts()
	s.rebuildResources()
}

func (s *Server) rebuildTools() {
	tools := s.registry.ListTools()
	desired := make(map[string]struct{}, len(tools))
	batch := make([]mcpserver.ServerTool, 0, len(tools))
	for _, t := range tools {
		desired[t.Name] = struct{}{}
		batch = append(batch, mcpserver.ServerTool{Tool: t, Handler: s.toolHandler(t.Name)})
	}

	s.installed.mu.Lock()
	var removed []string
	for name := range s.installed.tools {
		if _, ok := desired[name]; !ok {
			removed = append(removed, name)
		}
	}
	s.installed.tools = desired
	s.installed.mu.Unlock()

	if len(removed) > 0 {
		s.mcpServer.DeleteTools(removed...)
	}
	if len(batch) > 0 {
		s.mcpServer.AddTools(batch...)
	}
	logging.Debug("GatewayServer", "tools rebuilt: %d installed, %d removed", len(batch), len(removed))
}

func (s *Server) rebuildPrompts() {
	prompts := s.registry.ListPrompts()
	desired := make(map[string]struct{}, len(prompts))
	batch := make([]mcpserver.ServerPrompt, 0, len(prompts))
	for _, p := range prompts {
		desired[p.Name] = struct{}{}
		batch = append(batch, mcpserver.ServerPrompt{Prompt: p, Handler: s.promptHandler(p.Name)})
	}

	s.installed.mu.Lock()
	var removed []string
	for name := range s.installed.prompts {
		if _, ok := desired[name]; !ok {
			removed = append(removed, name)
		}
	}
	s.installed.prompts = desired
	s.installed.mu.Unlock()

	if len(removed) > 0 {
		s.mcpServer.DeletePrompts(removed...)
	}
	if len(batch) > 0 {
		s.mcpServer.AddPrompts(batch...)
	}
	logging.Debug("GatewayServer", "prompts rebuilt: %d installed, %d removed", len(batch), len(removed))
}

func (s *Server) rebuildResources() {
	resources := s.registry.ListResources()
	desired := make(map[string]struct{}, len(resources))
	batch := make([]mcpserver.ServerResource, 0, len(resources))
	for _, r := range resources {
		desired[r.URI] = struct{}{}
		batch = append(batch, mcpserver.ServerResource{Resource: r, Handler: s.resourceHandler(r.URI)})
	}

	s.installed.mu.Lock()
	var removed []string
	for uri := range s.installed.resources {
		if _, ok := desired[uri]; !ok {
			removed = append(removed, uri)
		}
	}
	s.installed.resources = desired
	s.installed.mu.Unlock()

	// The MCP server exposes no batch removal for resources (unlike
	// DeleteTools/DeletePrompts), so each stale uri is removed individually.
	for _, uri := range removed {
		s.mcpServer.RemoveResource(uri)
	}
	if len(batch) > 0 {
		s.mcpServer.AddResources(batch...)
	}
	logging.Debug("GatewayServer", "resources rebuilt: %d installed, %d removed", len(batch), len(removed))
}

// watchRegistry rebuilds the exposed capability sets whenever the Registry
// reports a change, until ctx is done.
func (s *Server) watchRegistry(ctx context.Context, changes <-chan registry.ChangeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			s.rebuild()
		}
	}
}
