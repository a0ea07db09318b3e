package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"goblin/internal/config"
	"goblin/internal/hub"
	"goblin/internal/registry"
	"goblin/internal/session"
	"goblin/internal/subscription"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureNotifier struct{ sent []string }

func (n *captureNotifier) Notify(sessionID, method string, params map[string]any) error {
	n.sent = append(n.sent, sessionID+":"+method)
	return nil
}

func TestNew_BuildsFromMissingConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.yaml")

	a, err := New(path)
	require.NoError(t, err)
	t.Cleanup(a.Stop)

	assert.Empty(t, a.registry.Upstreams())
	assert.Equal(t, 0, a.sessions.Count())
}

func TestOnUpstreamNotification_ResourceUpdatedForwardsToHub(t *testing.T) {
	notifier := &captureNotifier{}
	subs := subscription.NewManager(0)
	reg := registry.NewRegistry()
	sessions := session.NewStore(notifier, subs, reg, time.Hour, 10)
	t.Cleanup(sessions.Stop)

	sess, err := sessions.Create()
	require.NoError(t, err)
	_, err = sess.Initialize("2025-11-25")
	require.NoError(t, err)
	require.NoError(t, sess.MarkInitialized())

	uri := registry.NamespaceResourceURI("up1", "file:///x")
	_, err = subs.Subscribe(sess.ID, uri, "up1")
	require.NoError(t, err)

	h := hub.New(sessions, subs)
	a := &Application{registry: reg, hub: h}

	a.onUpstreamNotification("up1")(mcp.JSONRPCNotification{
		Notification: mcp.Notification{
			Method: "notifications/resources/updated",
			Params: mcp.NotificationParams{AdditionalFields: map[string]any{"uri": "file:///x"}},
		},
	})

	assert.Contains(t, notifier.sent, sess.ID+":notifications/resources/updated")
}

func TestApplyDiff_RemovesUpstream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.yaml")
	a, err := New(path)
	require.NoError(t, err)
	t.Cleanup(a.Stop)

	diff := config.Diff{
		ServersRemoved: []config.ServerConfig{{Name: "ghost"}},
	}
	assert.NotPanics(t, func() {
		a.applyDiff(context.Background(), diff)
	})
	assert.NotContains(t, a.registry.Upstreams(), "ghost")
}
