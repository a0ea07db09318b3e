package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"goblin/internal/gatewayerr"
	"goblin/internal/subscription"
	"goblin/pkg/logging"
)

// DefaultMaxSessions caps concurrent sessions absent an explicit config
// value, mirroring the streamable-HTTP front-end's own default.
const DefaultMaxSessions = 1000

// DefaultSessionTimeout is the idle eviction window absent an explicit
// config value.
const DefaultSessionTimeout = 300 * time.Second

const minCleanupInterval = time.Second

// ErrSessionLimitExceeded is returned by Create when the store is at
// capacity.
type ErrSessionLimitExceeded struct{ Limit int }

func (e ErrSessionLimitExceeded) Error() string {
	return "session limit exceeded"
}

// ErrSessionNotFound is returned by Close for an unknown id (Get reports a
// miss through its bool result instead).
type ErrSessionNotFound struct{ ID string }

func (e ErrSessionNotFound) Error() string {
	return "session not found: " + e.ID
}

// Store owns every live Session, evicting idle ones on a background ticker,
// mirroring the aggregator's session registry cleanup idiom.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	notifier Notifier
	subs     *subscription.Manager
	registry resourceResolver

	timeout     time.Duration
	maxSessions int
	stopCleanup chan struct{}
}

// NewStore builds a Store. timeout <= 0 uses DefaultSessionTimeout;
// maxSessions <= 0 uses DefaultMaxSessions.
func NewStore(notifier Notifier, subs *subscription.Manager, reg resourceResolver, timeout time.Duration, maxSessions int) *Store {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	s := &Store{
		sessions:    make(map[string]*Session),
		notifier:    notifier,
		subs:        subs,
		registry:    reg,
		timeout:     timeout,
		maxSessions: maxSessions,
		stopCleanup: make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Create allocates a fresh session with a new uuid, or ErrSessionLimitExceeded
// if the store is at capacity.
func (s *Store) Create() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.sessions) >= s.maxSessions {
		return nil, gatewayerr.Wrap(gatewayerr.KindLimitExceeded, "too many concurrent sessions", ErrSessionLimitExceeded{Limit: s.maxSessions})
	}

	id := uuid.NewString()
	sess := newSession(id, s.notifier, s.subs, s.registry)
	s.sessions[id] = sess
	return sess, nil
}

// GetOrCreateReady returns the session for an id already known to the
// front-end's own transport layer (e.g. an mcp-go SSE/Streamable-HTTP
// session that has already completed its own initialize handshake before
// our handler ever runs), creating one already in the Ready state if this
// is the first time this package has seen that id. Creating a new session
// is subject to the same maxSessions cap as Create.
func (s *Store) GetOrCreateReady(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		sess.Touch()
		return sess, nil
	}

	if len(s.sessions) >= s.maxSessions {
		return nil, gatewayerr.Wrap(gatewayerr.KindLimitExceeded, "too many concurrent sessions", ErrSessionLimitExceeded{Limit: s.maxSessions})
	}

	sess := newSession(id, s.notifier, s.subs, s.registry)
	sess.state = StateReady
	s.sessions[id] = sess
	return sess, nil
}

// Get looks up a session by id and touches its activity clock.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		sess.Touch()
	}
	return sess, ok
}

// Close closes and removes a session.
func (s *Store) Close(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return gatewayerr.Wrap(gatewayerr.KindNotFound, "session close", ErrSessionNotFound{ID: id})
	}
	sess.Close()
	return nil
}

// All returns every live session, for broadcasting list_changed notifications.
func (s *Store) All() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Stop halts the idle-eviction loop and closes every remaining session.
func (s *Store) Stop() {
	close(s.stopCleanup)
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		_ = s.Close(id)
	}
}

func (s *Store) cleanupLoop() {
	interval := s.timeout / 2
	if interval < minCleanupInterval {
		interval = minCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *Store) cleanup() {
	s.mu.Lock()
	var idle []*Session
	for id, sess := range s.sessions {
		if sess.idleSince() > s.timeout {
			idle = append(idle, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range idle {
		sess.Close()
	}
	if len(idle) > 0 {
		logging.Debug("SessionStore", "evicted %d idle sessions", len(idle))
	}
}
