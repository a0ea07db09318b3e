package registry

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	tools     []mcp.Tool
	prompts   []mcp.Prompt
	resources []mcp.Resource
	templates []mcp.ResourceTemplate

	promptsErr   error
	resourcesErr error
}

func (f *fakeLister) ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeLister) ListPrompts(ctx context.Context, req mcp.ListPromptsRequest) (*mcp.ListPromptsResult, error) {
	if f.promptsErr != nil {
		return nil, f.promptsErr
	}
	return &mcp.ListPromptsResult{Prompts: f.prompts}, nil
}

func (f *fakeLister) ListResources(ctx context.Context, req mcp.ListResourcesRequest) (*mcp.ListResourcesResult, error) {
	if f.resourcesErr != nil {
		return nil, f.resourcesErr
	}
	return &mcp.ListResourcesResult{Resources: f.resources}, nil
}

func (f *fakeLister) ListResourceTemplates(ctx context.Context, req mcp.ListResourceTemplatesRequest) (*mcp.ListResourceTemplatesResult, error) {
	return &mcp.ListResourceTemplatesResult{ResourceTemplates: f.templates}, nil
}

func TestSyncUpstream_NamespacesEverything(t *testing.T) {
	r := NewRegistry()
	lister := &fakeLister{
		tools:     []mcp.Tool{{Name: "echo"}},
		prompts:   []mcp.Prompt{{Name: "greet"}},
		resources: []mcp.Resource{{URI: "file:///x", Name: "x"}},
		templates: []mcp.ResourceTemplate{{URITemplate: "file:///{path}", Name: "tpl"}},
	}

	require.NoError(t, r.SyncUpstream(context.Background(), "a", lister))

	tool, ok := r.GetTool("a_echo")
	require.True(t, ok)
	assert.Equal(t, "a", tool.Upstream)
	assert.Equal(t, "echo", tool.OriginalName)

	prompt, ok := r.GetPrompt("a_greet")
	require.True(t, ok)
	assert.Equal(t, "greet", prompt.OriginalName)

	resources := r.ListResources()
	require.Len(t, resources, 1)
	assert.Equal(t, "mcp://a/file%3A%2F%2F%2Fx", resources[0].URI)
}

func TestSyncUpstream_TolerantOfOptionalCapabilityFailures(t *testing.T) {
	r := NewRegistry()
	lister := &fakeLister{
		tools:        []mcp.Tool{{Name: "echo"}},
		promptsErr:   assert.AnError,
		resourcesErr: assert.AnError,
	}

	require.NoError(t, r.SyncUpstream(context.Background(), "a", lister))
	assert.Empty(t, r.ListPrompts())
	assert.Empty(t, r.ListResources())
	_, ok := r.GetTool("a_echo")
	assert.True(t, ok)
}

func TestSyncUpstream_RequiredToolFailureFails(t *testing.T) {
	r := NewRegistry()
	lister := &fakeListerToolsFail{}
	err := r.SyncUpstream(context.Background(), "a", lister)
	assert.Error(t, err)
}

type fakeListerToolsFail struct{ fakeLister }

func (f *fakeListerToolsFail) ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	return nil, assert.AnError
}

func TestResolveResourceURI_ExactAndCollisionFree(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.SyncUpstream(context.Background(), "a", &fakeLister{
		resources: []mcp.Resource{{URI: "file:///x"}},
	}))
	require.NoError(t, r.SyncUpstream(context.Background(), "b", &fakeLister{
		resources: []mcp.Resource{{URI: "file:///x"}},
	}))

	res, ok := r.ResolveResourceURI("mcp://b/file%3A%2F%2F%2Fx")
	require.True(t, ok)
	assert.Equal(t, "b", res.Upstream)
	assert.Equal(t, "file:///x", res.RawURI)
	assert.False(t, res.ViaTemplate)
}

func TestResolveResourceURI_ViaTemplate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.SyncUpstream(context.Background(), "a", &fakeLister{
		templates: []mcp.ResourceTemplate{{URITemplate: "file:///{+path}"}},
	}))

	uri := namespaceResourceURI("a", "file:///docs/readme.md")
	res, ok := r.ResolveResourceURI(uri)
	require.True(t, ok)
	assert.Equal(t, "a", res.Upstream)
	assert.Equal(t, "file:///docs/readme.md", res.RawURI)
	assert.True(t, res.ViaTemplate)
}

func TestResolveResourceURI_Unknown(t *testing.T) {
	r := NewRegistry()
	_, ok := r.ResolveResourceURI("mcp://missing/file%3A%2F%2F%2Fx")
	assert.False(t, ok)
}

func TestRemoveUpstream_PurgesAllCategories(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.SyncUpstream(context.Background(), "a", &fakeLister{
		tools:     []mcp.Tool{{Name: "echo"}},
		prompts:   []mcp.Prompt{{Name: "greet"}},
		resources: []mcp.Resource{{URI: "file:///x"}},
		templates: []mcp.ResourceTemplate{{URITemplate: "file:///{path}"}},
	}))

	r.RemoveUpstream("a")

	assert.Empty(t, r.ListTools())
	assert.Empty(t, r.ListPrompts())
	assert.Empty(t, r.ListResources())
	assert.Empty(t, r.ListResourceTemplates())
	assert.Empty(t, r.Upstreams())
}

func TestRegisterLocalTool_ShadowsUpstreamTool(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterLocalTool(mcp.Tool{Name: "a_echo"}, nil))
	require.NoError(t, r.SyncUpstream(context.Background(), "a", &fakeLister{
		tools: []mcp.Tool{{Name: "echo"}},
	}))

	tools := r.ListTools()
	count := 0
	for _, tool := range tools {
		if tool.Name == "a_echo" {
			count++
		}
	}
	assert.Equal(t, 1, count, "local tool must shadow the colliding upstream tool, not duplicate it")
}

func TestRegisterLocalTool_DuplicateRejected(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterLocalTool(mcp.Tool{Name: "status"}, nil))
	assert.Error(t, r.RegisterLocalTool(mcp.Tool{Name: "status"}, nil))
}
