// Package hub fans Registry change events and upstream resource-update
// notifications out to every attached client session, keeping the Registry
// and Session layers from referencing each other directly.
package hub

import (
	"context"

	"goblin/internal/registry"
	"goblin/internal/session"
	"goblin/internal/subscription"
	"goblin/pkg/logging"
)

// sessionSource is the narrow slice of *session.Store the hub reads.
type sessionSource interface {
	All() []*session.Session
	Get(id string) (*session.Session, bool)
}

// subscriberSource is the narrow slice of *subscription.Manager the hub reads.
type subscriberSource interface {
	Subscribers(uri string) []string
}

// listChangedKinds is broadcast on every Registry change event: a sync or
// removal can add/drop tools, prompts, resources, and templates together, and
// clients re-list whichever kinds they care about.
var listChangedKinds = []string{"tools", "prompts", "resources"}

// Hub pushes notifications to live sessions.
type Hub struct {
	sessions sessionSource
	subs     subscriberSource
}

// New builds a Hub over a session Store and Subscription Manager.
func New(sessions sessionSource, subs subscriberSource) *Hub {
	return &Hub{sessions: sessions, subs: subs}
}

// Run consumes Registry change events until ctx is done, broadcasting
// list_changed notifications to every attached session.
func (h *Hub) Run(ctx context.Context, changes <-chan registry.ChangeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-changes:
			if !ok {
				return
			}
			h.broadcastListChanged(ev)
		}
	}
}

func (h *Hub) broadcastListChanged(ev registry.ChangeEvent) {
	sessions := h.sessions.All()
	logging.Debug("Hub", "registry change (%s, upstream=%s) -> list_changed to %d sessions", ev.Kind, ev.Upstream, len(sessions))
	for _, sess := range sessions {
		for _, kind := range listChangedKinds {
			sess.NotifyListChanged(kind)
		}
	}
}

// PublishResourceUpdated handles an upstream's resources/updated(rawUri)
// notification: it recomputes the namespaced uri the client subscribed to
// and pushes a notification to each subscriber.
func (h *Hub) PublishResourceUpdated(upstream, rawURI string) {
	uri := registry.NamespaceResourceURI(upstream, rawURI)
	for _, clientID := range h.subs.Subscribers(uri) {
		sess, ok := h.sessions.Get(clientID)
		if !ok {
			continue
		}
		sess.NotifyResourceUpdated(uri)
	}
}
