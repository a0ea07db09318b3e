package gatewayserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"goblin/internal/config"
	"goblin/internal/registry"
	"goblin/internal/router"
	"goblin/internal/session"
	"goblin/internal/subscription"
	"goblin/internal/transport"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRouter struct{}

func (fakeRouter) CallTool(ctx context.Context, name string, args map[string]any, timeout time.Duration) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{}, nil
}
func (fakeRouter) GetPrompt(ctx context.Context, name string, args map[string]string, timeout time.Duration) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{}, nil
}
func (fakeRouter) ReadResource(ctx context.Context, uri string, timeout time.Duration) (*mcp.ReadResourceResult, error) {
	return &mcp.ReadResourceResult{}, nil
}
func (fakeRouter) Metrics() []router.EntityMetrics { return nil }

type fakeNotifier struct{}

func (fakeNotifier) Notify(sessionID, method string, params map[string]any) error { return nil }

func newTestServer(t *testing.T, authMode config.AuthMode, apiKey string) *Server {
	t.Helper()
	reg := registry.NewRegistry()
	subs := subscription.NewManager(0)
	sessions := session.NewStore(fakeNotifier{}, subs, reg, time.Hour, 10)
	t.Cleanup(sessions.Stop)

	cfg := config.GatewayConfig{
		Gateway: config.GatewayListenConfig{Host: "127.0.0.1", Port: 0, Transport: config.TransportStreamableHTTP},
		Auth:    config.AuthConfig{Mode: authMode, APIKey: apiKey},
	}
	mcpServer := NewMCPServer()
	return New(cfg, mcpServer, reg, fakeRouter{}, subs, sessions, fakePool{})
}

type fakePool struct{}

func (fakePool) HealthSnapshot() []transport.HealthEntry { return nil }

func TestHealth_NeverRequiresAuth(t *testing.T) {
	s := newTestServer(t, config.AuthModeAPIKey, "secret")
	mux := s.buildMux(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatus_RejectsMissingAPIKey(t *testing.T) {
	s := newTestServer(t, config.AuthModeAPIKey, "secret")
	mux := s.buildMux(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStatus_AcceptsValidAPIKey(t *testing.T) {
	s := newTestServer(t, config.AuthModeAPIKey, "secret")
	mux := s.buildMux(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDevMode_SkipsAuthEntirely(t *testing.T) {
	s := newTestServer(t, config.AuthModeDev, "")
	mux := s.buildMux(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) }))

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "the real /status handler runs, not the passthrough stub")
}

func TestOriginSecurity_RejectsNonLocalOrigin(t *testing.T) {
	handler := originSecurity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestOriginSecurity_AllowsLocalhost(t *testing.T) {
	handler := originSecurity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOriginSecurity_AllowsNoOriginHeader(t *testing.T) {
	handler := originSecurity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }))

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionDispatch_HandlesResourcesSubscribe(t *testing.T) {
	reg := registry.NewRegistry()
	require.NoError(t, reg.RegisterLocalTool(mcp.Tool{Name: "noop"}, func(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{}, nil
	}))
	subs := subscription.NewManager(0)
	sessions := session.NewStore(fakeNotifier{}, subs, reg, time.Hour, 10)
	t.Cleanup(sessions.Stop)

	s := &Server{registry: reg, subs: subs, sessions: sessions}
	passthroughCalled := false
	handler := s.sessionDispatch(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { passthroughCalled = true }))

	body := `{"jsonrpc":"2.0","id":1,"method":"resources/subscribe","params":{"uri":"mcp://ghost/x"}}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Mcp-Session-Id", "sess-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.False(t, passthroughCalled, "subscribe method should not pass through")
	assert.Contains(t, rec.Body.String(), "\"error\"")
}

func TestSessionDispatch_PassesThroughOtherMethods(t *testing.T) {
	reg := registry.NewRegistry()
	subs := subscription.NewManager(0)
	sessions := session.NewStore(fakeNotifier{}, subs, reg, time.Hour, 10)
	t.Cleanup(sessions.Stop)

	s := &Server{registry: reg, subs: subs, sessions: sessions}
	passthroughCalled := false
	handler := s.sessionDispatch(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { passthroughCalled = true }))

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{}}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, passthroughCalled)
}

func TestSessionDispatch_CancelledStopsInFlightRequest(t *testing.T) {
	reg := registry.NewRegistry()
	subs := subscription.NewManager(0)
	sessions := session.NewStore(fakeNotifier{}, subs, reg, time.Hour, 10)
	t.Cleanup(sessions.Stop)

	s := &Server{registry: reg, subs: subs, sessions: sessions}
	started := make(chan struct{})
	var sawCancel bool
	handler := s.sessionDispatch(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
		sawCancel = true
	}))

	begin := `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{}}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(begin))
	req.Header.Set("Mcp-Session-Id", "sess-cancel")
	done := make(chan struct{})
	go func() {
		handler.ServeHTTP(httptest.NewRecorder(), req)
		close(done)
	}()
	<-started

	cancel := `{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":7}}`
	cancelReq := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(cancel))
	cancelReq.Header.Set("Mcp-Session-Id", "sess-cancel")
	cancelRec := httptest.NewRecorder()
	handler.ServeHTTP(cancelRec, cancelReq)

	assert.Equal(t, http.StatusAccepted, cancelRec.Code)
	<-done
	assert.True(t, sawCancel, "in-flight handler's context should have been cancelled")
}

func TestSessionDispatch_EnforcesSessionCap(t *testing.T) {
	reg := registry.NewRegistry()
	subs := subscription.NewManager(0)
	sessions := session.NewStore(fakeNotifier{}, subs, reg, time.Hour, 1)
	t.Cleanup(sessions.Stop)

	s := &Server{registry: reg, subs: subs, sessions: sessions}
	handler := s.sessionDispatch(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	body := `{"jsonrpc":"2.0","id":1,"method":"ping","params":{}}`

	first := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	first.Header.Set("Mcp-Session-Id", "sess-a")
	handler.ServeHTTP(httptest.NewRecorder(), first)

	second := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	second.Header.Set("Mcp-Session-Id", "sess-b")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, second)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Too many concurrent sessions")
}
