package registry

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// capabilityLister is the subset of mcpclient.MCPClient that SyncUpstream
// needs. Keeping it narrow (rather than depending on the full client
// interface) lets tests fake an upstream without implementing every MCP
// client method.
type capabilityLister interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	ListPrompts(ctx context.Context, request mcp.ListPromptsRequest) (*mcp.ListPromptsResult, error)
	ListResources(ctx context.Context, request mcp.ListResourcesRequest) (*mcp.ListResourcesResult, error)
	ListResourceTemplates(ctx context.Context, request mcp.ListResourceTemplatesRequest) (*mcp.ListResourceTemplatesResult, error)
}

func fetchAllTools(ctx context.Context, client capabilityLister) ([]mcp.Tool, error) {
	var all []mcp.Tool
	cursor := mcp.Cursor("")
	for {
		req := mcp.ListToolsRequest{}
		req.Params.Cursor = cursor
		result, err := client.ListTools(ctx, req)
		if err != nil {
			return nil, err
		}
		all = append(all, result.Tools...)
		if result.NextCursor == "" {
			return all, nil
		}
		cursor = result.NextCursor
	}
}

func fetchAllPrompts(ctx context.Context, client capabilityLister) ([]mcp.Prompt, error) {
	var all []mcp.Prompt
	cursor := mcp.Cursor("")
	for {
		req := mcp.ListPromptsRequest{}
		req.Params.Cursor = cursor
		result, err := client.ListPrompts(ctx, req)
		if err != nil {
			return nil, err
		}
		all = append(all, result.Prompts...)
		if result.NextCursor == "" {
			return all, nil
		}
		cursor = result.NextCursor
	}
}

func fetchAllResources(ctx context.Context, client capabilityLister) ([]mcp.Resource, error) {
	var all []mcp.Resource
	cursor := mcp.Cursor("")
	for {
		req := mcp.ListResourcesRequest{}
		req.Params.Cursor = cursor
		result, err := client.ListResources(ctx, req)
		if err != nil {
			return nil, err
		}
		all = append(all, result.Resources...)
		if result.NextCursor == "" {
			return all, nil
		}
		cursor = result.NextCursor
	}
}

func fetchAllResourceTemplates(ctx context.Context, client capabilityLister) ([]mcp.ResourceTemplate, error) {
	var all []mcp.ResourceTemplate
	cursor := mcp.Cursor("")
	for {
		req := mcp.ListResourceTemplatesRequest{}
		req.Params.Cursor = cursor
		result, err := client.ListResourceTemplates(ctx, req)
		if err != nil {
			return nil, err
		}
		all = append(all, result.ResourceTemplates...)
		if result.NextCursor == "" {
			return all, nil
		}
		cursor = result.NextCursor
	}
}
