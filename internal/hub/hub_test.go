package hub

import (
	"context"
	"testing"
	"time"

	"goblin/internal/registry"
	"goblin/internal/session"
	"goblin/internal/subscription"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	sent []string
}

func (f *fakeNotifier) Notify(sessionID, method string, params map[string]any) error {
	f.sent = append(f.sent, sessionID+":"+method)
	return nil
}

type fakeResolver struct{}

func (fakeResolver) ResolveResourceURI(uri string) (registry.ResourceResolution, bool) {
	return registry.ResourceResolution{}, false
}

func TestRun_BroadcastsListChangedToAllSessions(t *testing.T) {
	n := &fakeNotifier{}
	subs := subscription.NewManager(0)
	store := session.NewStore(n, subs, fakeResolver{}, time.Hour, 10)
	defer store.Stop()

	s1, err := store.Create()
	require.NoError(t, err)
	_, _ = s1.Initialize("2025-11-25")
	_ = s1.MarkInitialized()

	h := New(store, subs)
	changes := make(chan registry.ChangeEvent, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx, changes)

	changes <- registry.ChangeEvent{Kind: registry.ChangeUpstreamSynced, Upstream: "a"}
	require.Eventually(t, func() bool {
		return len(n.sent) >= 3
	}, time.Second, time.Millisecond)
	cancel()

	assert.Contains(t, n.sent, s1.ID+":notifications/tools/list_changed")
	assert.Contains(t, n.sent, s1.ID+":notifications/prompts/list_changed")
	assert.Contains(t, n.sent, s1.ID+":notifications/resources/list_changed")
}

func TestPublishResourceUpdated_NotifiesSubscribers(t *testing.T) {
	n := &fakeNotifier{}
	subs := subscription.NewManager(0)
	store := session.NewStore(n, subs, fakeResolver{}, time.Hour, 10)
	defer store.Stop()

	s1, err := store.Create()
	require.NoError(t, err)
	_, _ = s1.Initialize("2025-11-25")
	_ = s1.MarkInitialized()

	uri := registry.NamespaceResourceURI("a", "file:///x")
	_, err = subs.Subscribe(s1.ID, uri, "a")
	require.NoError(t, err)

	h := New(store, subs)
	h.PublishResourceUpdated("a", "file:///x")

	assert.Contains(t, n.sent, s1.ID+":notifications/resources/updated")
}
