package gatewayserver

import (
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Notifier implements session.Notifier over the shared mcp-go server,
// delivering a notification straight to one client's transport-level
// session instead of going through the Registry-change broadcast path.
type Notifier struct {
	mcpServer *mcpserver.MCPServer
}

// NewNotifier wraps mcpServer as a session.Notifier.
func NewNotifier(mcpServer *mcpserver.MCPServer) Notifier {
	return Notifier{mcpServer: mcpServer}
}

// Notify implements session.Notifier.
func (n Notifier) Notify(sessionID, method string, params map[string]any) error {
	return n.mcpServer.SendNotificationToSpecificClient(sessionID, method, params)
}
