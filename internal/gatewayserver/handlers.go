package gatewayserver

import (
	"context"
	"time"

	"goblin/internal/gatewayerr"
	"goblin/internal/router"
	"goblin/pkg/logging"

	"github.com/mark3labs/mcp-go/mcp"
)

// routerFacade is the narrow slice of *router.Router the gateway server
// calls; kept narrow so tests can substitute a fake without a real Pool.
type routerFacade interface {
	CallTool(ctx context.Context, name string, args map[string]any, timeoutOverride time.Duration) (*mcp.CallToolResult, error)
	GetPrompt(ctx context.Context, name string, args map[string]string, timeoutOverride time.Duration) (*mcp.GetPromptResult, error)
	ReadResource(ctx context.Context, uri string, timeoutOverride time.Duration) (*mcp.ReadResourceResult, error)
	Metrics() []router.EntityMetrics
}

func (s *Server) toolHandler(name string) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		result, err := s.router.CallTool(ctx, name, args, 0)
		if err != nil {
			return toolErrorResult(err), nil
		}
		return result, nil
	}
}

func (s *Server) promptHandler(name string) func(context.Context, mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		return s.router.GetPrompt(ctx, name, req.Params.Arguments, 0)
	}
}

// resourceHandler bridges the Router's *mcp.ReadResourceResult return shape
// to mcp-go/server's ServerResource handler shape ([]mcp.ResourceContents).
func (s *Server) resourceHandler(uri string) func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		result, err := s.router.ReadResource(ctx, uri, 0)
		if err != nil {
			return nil, err
		}
		return result.Contents, nil
	}
}

// toolErrorResult renders a gatewayerr.Error as an MCP tool-call error
// result rather than a transport-level error, so the client sees a normal
// tool response with isError=true (per the MCP tool-call convention).
func toolErrorResult(err error) *mcp.CallToolResult {
	logging.Debug("GatewayServer", "tool call failed: %s", err)
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: gatewayMessage(err)}},
	}
}

func gatewayMessage(err error) string {
	if ge, ok := err.(*gatewayerr.Error); ok {
		return ge.Message
	}
	return err.Error()
}
