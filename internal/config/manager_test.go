package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestManager_ReloadAppliesDiff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, `
servers:
  - name: a
    transport: stdio
    command: /bin/a
`)

	mgr, err := NewManager(path)
	require.NoError(t, err)
	diffs := mgr.Subscribe()

	writeConfig(t, path, `
servers:
  - name: a
    transport: stdio
    command: /bin/a
  - name: b
    transport: stdio
    command: /bin/b
`)
	mgr.ReloadNow()

	diff := <-diffs
	require.Len(t, diff.ServersAdded, 1)
	assert.Equal(t, "b", diff.ServersAdded[0].Name)
	assert.Empty(t, diff.ServersRemoved)
}

func TestManager_ReloadRemovesServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, `
servers:
  - name: a
    transport: stdio
    command: /bin/a
  - name: b
    transport: stdio
    command: /bin/b
`)

	mgr, err := NewManager(path)
	require.NoError(t, err)
	diffs := mgr.Subscribe()

	writeConfig(t, path, `
servers:
  - name: a
    transport: stdio
    command: /bin/a
`)
	mgr.ReloadNow()

	diff := <-diffs
	require.Len(t, diff.ServersRemoved, 1)
	assert.Equal(t, "b", diff.ServersRemoved[0].Name)
}

func TestManager_InvalidReloadKeepsPriorConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, `
servers:
  - name: a
    transport: stdio
    command: /bin/a
`)

	mgr, err := NewManager(path)
	require.NoError(t, err)
	before := mgr.Current()

	writeConfig(t, path, `
servers:
  - name: a
    transport: carrier-pigeon
`)
	mgr.ReloadNow()

	assert.Equal(t, before, mgr.Current())
}

func TestComputeDiff_ChangedServer(t *testing.T) {
	old := GatewayConfig{Servers: []ServerConfig{{Name: "a", Transport: TransportStdio, Command: "/bin/a"}}}
	next := GatewayConfig{Servers: []ServerConfig{{Name: "a", Transport: TransportStdio, Command: "/bin/a-v2"}}}

	diff := computeDiff(old, next)
	require.Len(t, diff.ServersChanged, 1)
	assert.Equal(t, "a", diff.ServersChanged[0].Name)
}
