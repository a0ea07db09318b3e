package gatewayserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"goblin/internal/config"
	"goblin/pkg/logging"

	"github.com/coreos/go-systemd/v22/activation"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Listen dispatches on the configured front-end transport, starting the
// appropriate mcp-go transport wrapper and HTTP mux. It returns once the
// listener(s) are started; transport errors are logged asynchronously.
func (s *Server) Listen() error {
	switch s.cfg.Gateway.Transport {
	case config.TransportStdio:
		logging.Info("GatewayServer", "starting stdio transport")
		stdio := mcpserver.NewStdioServer(s.mcpServer)
		go func() {
			if err := stdio.Listen(context.Background(), os.Stdin, os.Stdout); err != nil {
				logging.Error("GatewayServer", err, "stdio transport stopped")
			}
		}()
		return nil

	case config.TransportSSE:
		baseURL := fmt.Sprintf("http://%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
		sse := mcpserver.NewSSEServer(
			s.mcpServer,
			mcpserver.WithBaseURL(baseURL),
			mcpserver.WithSSEEndpoint("/sse"),
			mcpserver.WithMessageEndpoint("/message"),
			mcpserver.WithKeepAlive(true),
			mcpserver.WithKeepAliveInterval(30*time.Second),
		)
		return s.serveHTTP(sse)

	case config.TransportStreamableHTTP:
		fallthrough
	default:
		stream := mcpserver.NewStreamableHTTPServer(s.mcpServer)
		return s.serveHTTP(stream)
	}
}

func (s *Server) serveHTTP(mcpHandler http.Handler) error {
	mux := s.buildMux(mcpHandler)

	listeners, err := systemdListeners()
	if err != nil {
		logging.Error("GatewayServer", err, "failed to inspect systemd listeners")
	}
	if len(listeners) > 0 {
		logging.Info("GatewayServer", "using %d systemd socket-activated listener(s)", len(listeners))
		for i, l := range listeners {
			srv := &http.Server{Handler: mux}
			go func(l net.Listener, i int) {
				if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
					logging.Error("GatewayServer", err, "listener %d stopped", i)
				}
			}(l, i)
		}
		return nil
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Gateway.Host, s.cfg.Gateway.Port)
	srv := &http.Server{Addr: addr, Handler: mux}
	logging.Info("GatewayServer", "listening on %s", addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("GatewayServer", err, "HTTP server stopped")
		}
	}()
	return nil
}

func systemdListeners() ([]net.Listener, error) {
	byName, err := activation.ListenersWithNames()
	if err != nil {
		return nil, err
	}
	var out []net.Listener
	for _, ls := range byName {
		out = append(out, ls...)
	}
	return out, nil
}

// buildMux wires the control endpoints, the resources/subscribe interceptor,
// and the main MCP handler behind origin-check and auth middleware.
func (s *Server) buildMux(mcpHandler http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/tools", s.handleTools)
	mux.HandleFunc("/servers", s.handleServers)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/shutdown", s.handleShutdown)

	mux.Handle("/", originSecurity(s.sessionDispatch(mcpHandler)))

	return s.authMiddleware(mux)
}

// authMiddleware enforces the configured API key on every path except
// /health, using a constant-time comparison to avoid timing side-channels.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	if s.cfg.Auth.Mode != config.AuthModeAPIKey {
		return next
	}
	expected := []byte(s.cfg.Auth.APIKey)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		got := bearerToken(r)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(auth, prefix) {
		return strings.TrimPrefix(auth, prefix)
	}
	return r.Header.Get("X-API-Key")
}

// originSecurity rejects cross-origin browser requests carrying an Origin
// header that isn't localhost, to prevent DNS-rebinding attacks against the
// local SSE/Streamable-HTTP listener. Non-browser clients send no Origin
// header and pass through untouched.
func originSecurity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && !isLocalOrigin(origin) {
			http.Error(w, "forbidden: invalid origin", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isLocalOrigin(origin string) bool {
	return strings.Contains(origin, "://localhost") || strings.Contains(origin, "://127.0.0.1") || strings.Contains(origin, "://[::1]")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// serverStatus is one row of the /servers response, matching the §6 contract.
type serverStatus struct {
	Name      string `json:"name"`
	Transport string `json:"transport"`
	Status    string `json:"status"`
	Enabled   bool   `json:"enabled"`
	Tools     int    `json:"tools"`
}

// buildServerStatuses joins the configured server list with live connection
// state from the Transport Pool and live tool counts from the Registry.
func (s *Server) buildServerStatuses() []serverStatus {
	connected := make(map[string]bool)
	if s.pool != nil {
		for _, h := range s.pool.HealthSnapshot() {
			connected[h.Name] = h.Connected
		}
	}
	toolCounts := s.registry.UpstreamToolCounts()

	out := make([]serverStatus, 0, len(s.cfg.Servers))
	for _, sc := range s.cfg.Servers {
		status := "offline"
		switch {
		case !sc.IsEnabled():
			status = "disabled"
		case connected[sc.Name]:
			status = "online"
		}
		out = append(out, serverStatus{
			Name:      sc.Name,
			Transport: string(sc.Transport),
			Status:    status,
			Enabled:   sc.IsEnabled(),
			Tools:     toolCounts[sc.Name],
		})
	}
	return out
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	servers := s.buildServerStatuses()
	online, offline := 0, 0
	for _, srv := range servers {
		if srv.Status == "online" {
			online++
		} else if srv.Status != "disabled" {
			offline++
		}
	}

	health := "healthy"
	switch {
	case len(servers) > 0 && online == 0:
		health = "unhealthy"
	case offline > 0:
		health = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"servers": map[string]any{
			"total":   len(servers),
			"online":  online,
			"offline": offline,
		},
		"tools":   len(s.registry.ListTools()),
		"uptime":  time.Since(s.startedAt).Seconds(),
		"health":  health,
		"metrics": s.router.Metrics(),
	})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	search := strings.ToLower(r.URL.Query().Get("search"))
	server := r.URL.Query().Get("server")

	infos := s.registry.ListToolInfo()
	out := make([]map[string]any, 0, len(infos))
	for _, ti := range infos {
		if server != "" && ti.ServerID != server {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(ti.Tool.Name), search) &&
			!strings.Contains(strings.ToLower(ti.Tool.Description), search) {
			continue
		}
		out = append(out, map[string]any{
			"name":        ti.Tool.Name,
			"description": ti.Tool.Description,
			"serverId":    ti.ServerID,
			"inputSchema": ti.Tool.InputSchema,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": out})
}

func (s *Server) handleServers(w http.ResponseWriter, r *http.Request) {
	servers := s.buildServerStatuses()
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := make([]serverStatus, 0, len(servers))
		for _, srv := range servers {
			if srv.Status == status {
				filtered = append(filtered, srv)
			}
		}
		servers = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"servers": servers})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.router.Metrics())
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	logging.Info("GatewayServer", "shutdown requested via control endpoint")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "shutting down"})
	go s.Stop()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
