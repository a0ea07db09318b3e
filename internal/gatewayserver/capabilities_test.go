package gatewayserver

import (
	"context"
	"testing"

	"goblin/internal/registry"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCapabilityLister struct {
	tools     []mcp.Tool
	prompts   []mcp.Prompt
	resources []mcp.Resource
}

func (f *fakeCapabilityLister) ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}
func (f *fakeCapabilityLister) ListPrompts(ctx context.Context, req mcp.ListPromptsRequest) (*mcp.ListPromptsResult, error) {
	return &mcp.ListPromptsResult{Prompts: f.prompts}, nil
}
func (f *fakeCapabilityLister) ListResources(ctx context.Context, req mcp.ListResourcesRequest) (*mcp.ListResourcesResult, error) {
	return &mcp.ListResourcesResult{Resources: f.resources}, nil
}
func (f *fakeCapabilityLister) ListResourceTemplates(ctx context.Context, req mcp.ListResourceTemplatesRequest) (*mcp.ListResourceTemplatesResult, error) {
	return &mcp.ListResourceTemplatesResult{}, nil
}

// TestRebuild_DropsPromptsAndResourcesOnUpstreamRemoval guards against the
// tools-only diffing regression: rebuildPrompts/rebuildResources must shrink
// installedSets the same way rebuildTools does once an upstream disappears.
func TestRebuild_DropsPromptsAndResourcesOnUpstreamRemoval(t *testing.T) {
	reg := registry.NewRegistry()
	lister := &fakeCapabilityLister{
		tools:     []mcp.Tool{{Name: "t1"}},
		prompts:   []mcp.Prompt{{Name: "p1"}},
		resources: []mcp.Resource{{URI: "r1"}},
	}
	require.NoError(t, reg.SyncUpstream(context.Background(), "up1", lister))

	s := &Server{registry: reg, mcpServer: NewMCPServer(), installed: newInstalledSets()}
	s.rebuild()

	assert.Len(t, s.installed.tools, 1)
	assert.Len(t, s.installed.prompts, 1)
	assert.Len(t, s.installed.resources, 1)

	reg.RemoveUpstream("up1")
	s.rebuild()

	assert.Empty(t, s.installed.tools)
	assert.Empty(t, s.installed.prompts, "rebuildPrompts must diff out removed upstreams, not just add")
	assert.Empty(t, s.installed.resources, "rebuildResources must diff out removed upstreams, not just add")
}
