// Package session implements the per-client state machine sitting between a
// transport-level connection (stdio, SSE, Streamable-HTTP) and the shared
// Router/Registry/Subscription Manager: tracking initialize negotiation,
// in-flight request cancel handles, and resource subscriptions scoped to one
// client id.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"goblin/internal/gatewayerr"
	"goblin/internal/registry"
	"goblin/internal/subscription"
	"goblin/pkg/logging"
)

// State is a position in the Created -> Initializing -> Ready -> Closed
// lifecycle. Every handler but initialize/ping requires Ready.
type State int

const (
	StateCreated State = iota
	StateInitializing
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SupportedProtocolVersions is the set negotiate accepts, newest first.
var SupportedProtocolVersions = []string{"2025-11-25", "2024-11-05"}

// Notifier pushes a server-to-client notification for one session. It wraps
// the MCP server library's per-session send so this package never depends on
// it directly.
type Notifier interface {
	Notify(sessionID, method string, params map[string]any) error
}

// resourceResolver is the narrow slice of *registry.Registry a Session needs
// to validate a subscribe/unsubscribe request before delegating to the
// Subscription Manager.
type resourceResolver interface {
	ResolveResourceURI(uri string) (registry.ResourceResolution, bool)
}

// Session is one client's connection state: protocol negotiation, the
// currently in-flight request set, and a handle back to the shared
// Subscription Manager keyed by this session's id.
type Session struct {
	ID        string
	CreatedAt time.Time

	notifier Notifier
	subs     *subscription.Manager
	registry resourceResolver

	mu           sync.Mutex
	state        State
	lastActivity time.Time
	active       map[any]context.CancelFunc
}

func newSession(id string, notifier Notifier, subs *subscription.Manager, reg resourceResolver) *Session {
	now := time.Now()
	return &Session{
		ID:           id,
		CreatedAt:    now,
		notifier:     notifier,
		subs:         subs,
		registry:     reg,
		state:        StateCreated,
		lastActivity: now,
		active:       make(map[any]context.CancelFunc),
	}
}

// State returns the session's current lifecycle position.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Touch records activity, resetting the idle eviction clock in the owning
// Store.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastActivity)
}

// Initialize negotiates a protocol version and moves Created -> Initializing.
// Calling it from any other state is an InvalidRequest error.
func (s *Session) Initialize(requested string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCreated {
		return "", gatewayerr.New(gatewayerr.KindInvalidRequest, "initialize called outside Created state")
	}

	for _, v := range SupportedProtocolVersions {
		if v == requested {
			s.state = StateInitializing
			s.lastActivity = time.Now()
			return v, nil
		}
	}
	return "", gatewayerr.New(gatewayerr.KindInvalidRequest, fmt.Sprintf("unsupported protocol version %q", requested))
}

// MarkInitialized handles notifications/initialized, moving
// Initializing -> Ready.
func (s *Session) MarkInitialized() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInitializing {
		return gatewayerr.New(gatewayerr.KindInvalidRequest, "notifications/initialized received outside Initializing state")
	}
	s.state = StateReady
	s.lastActivity = time.Now()
	return nil
}

// requireReady is called by every handler except initialize/ping.
func (s *Session) requireReady() error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state != StateReady {
		return gatewayerr.New(gatewayerr.KindInvalidRequest, fmt.Sprintf("request received in %s state, session is not Ready", state))
	}
	return nil
}

// BeginRequest installs a cancel handle for reqID and returns a context that
// is cancelled either by the caller's ctx or by a later CancelRequest(reqID).
// skipReadyCheck allows initialize/ping to bypass the Ready requirement.
func (s *Session) BeginRequest(ctx context.Context, reqID any, skipReadyCheck bool) (context.Context, error) {
	if !skipReadyCheck {
		if err := s.requireReady(); err != nil {
			return nil, err
		}
	}

	cctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.active[reqID] = cancel
	s.lastActivity = time.Now()
	s.mu.Unlock()
	return cctx, nil
}

// EndRequest removes reqID's cancel handle once its handler has returned.
func (s *Session) EndRequest(reqID any) {
	s.mu.Lock()
	cancel, ok := s.active[reqID]
	delete(s.active, reqID)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// CancelRequest handles notifications/cancelled{requestId}: looks up the
// handle and signals cancellation. Reports whether one was found.
func (s *Session) CancelRequest(reqID any) bool {
	s.mu.Lock()
	cancel, ok := s.active[reqID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Subscribe validates uri against the Registry then records a subscription
// under this session's id.
func (s *Session) Subscribe(uri string) (subscription.Subscription, error) {
	if err := s.requireReady(); err != nil {
		return subscription.Subscription{}, err
	}
	resolution, ok := s.registry.ResolveResourceURI(uri)
	if !ok {
		return subscription.Subscription{}, gatewayerr.New(gatewayerr.KindNotFound, fmt.Sprintf("resource %q not found", uri))
	}
	sub, err := s.subs.Subscribe(s.ID, uri, resolution.Upstream)
	if err != nil {
		return subscription.Subscription{}, gatewayerr.Wrap(gatewayerr.KindLimitExceeded, "subscribe failed", err)
	}
	return sub, nil
}

// Unsubscribe removes this session's subscription to uri, if any.
func (s *Session) Unsubscribe(uri string) error {
	if err := s.requireReady(); err != nil {
		return err
	}
	s.subs.Unsubscribe(s.ID, uri)
	return nil
}

// NotifyListChanged pushes a `notifications/{kind}/list_changed` to this
// client. kind is one of "tools", "prompts", "resources".
func (s *Session) NotifyListChanged(kind string) {
	if s.State() != StateReady {
		return
	}
	if err := s.notifier.Notify(s.ID, "notifications/"+kind+"/list_changed", nil); err != nil {
		logging.Warn("Session", "dropping list_changed notification for %s: %s", s.ID, err)
	}
}

// NotifyResourceUpdated pushes `notifications/resources/updated` for a
// namespaced uri this client is subscribed to.
func (s *Session) NotifyResourceUpdated(uri string) {
	if s.State() != StateReady {
		return
	}
	if err := s.notifier.Notify(s.ID, "notifications/resources/updated", map[string]any{"uri": uri}); err != nil {
		logging.Warn("Session", "dropping resources/updated notification for %s: %s", s.ID, err)
	}
}

// Close cancels every active request, releases this client's subscriptions,
// and marks the session Closed. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	handles := s.active
	s.active = nil
	s.mu.Unlock()

	for _, cancel := range handles {
		cancel()
	}
	n := s.subs.CleanupClient(s.ID)
	logging.Debug("Session", "closed %s, released %d subscriptions", s.ID, n)
}
