package config

import (
	"context"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"goblin/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

// ServerDiff captures an added, removed, or changed server entry between two
// config generations.
type ServerDiff struct {
	Name string
	Old  *ServerConfig
	New  *ServerConfig
}

// Diff is the typed change event the Config Manager emits on every applied
// reload.
type Diff struct {
	ServersAdded   []ServerConfig
	ServersRemoved []ServerConfig
	ServersChanged []ServerDiff

	GatewayChanged        bool
	AuthChanged           bool
	PoliciesChanged       bool
	StreamableHTTPChanged bool
}

// IsEmpty reports whether the diff carries no observable change.
func (d Diff) IsEmpty() bool {
	return len(d.ServersAdded) == 0 && len(d.ServersRemoved) == 0 && len(d.ServersChanged) == 0 &&
		!d.GatewayChanged && !d.AuthChanged && !d.PoliciesChanged && !d.StreamableHTTPChanged
}

func computeDiff(old, next GatewayConfig) Diff {
	var d Diff

	oldByName := make(map[string]ServerConfig, len(old.Servers))
	for _, s := range old.Servers {
		oldByName[s.Name] = s
	}
	nextByName := make(map[string]ServerConfig, len(next.Servers))
	for _, s := range next.Servers {
		nextByName[s.Name] = s
	}

	for name, ns := range nextByName {
		os, existed := oldByName[name]
		if !existed {
			d.ServersAdded = append(d.ServersAdded, ns)
			continue
		}
		if !reflect.DeepEqual(os, ns) {
			oCopy, nCopy := os, ns
			d.ServersChanged = append(d.ServersChanged, ServerDiff{Name: name, Old: &oCopy, New: &nCopy})
		}
	}
	for name, os := range oldByName {
		if _, stillPresent := nextByName[name]; !stillPresent {
			d.ServersRemoved = append(d.ServersRemoved, os)
		}
	}

	d.GatewayChanged = !reflect.DeepEqual(old.Gateway, next.Gateway)
	d.AuthChanged = !reflect.DeepEqual(old.Auth, next.Auth)
	d.PoliciesChanged = !reflect.DeepEqual(old.Policies, next.Policies)
	d.StreamableHTTPChanged = !reflect.DeepEqual(old.StreamableHTTP, next.StreamableHTTP)

	return d
}

// Manager owns the current configuration generation, reloading it on file
// change (or on an explicit ReloadNow call) and publishing a Diff to
// subscribers. A failed reload
// discards the candidate and keeps serving the prior configuration, per
// subscriber fan-out.
type Manager struct {
	mu      sync.RWMutex
	path    string
	current GatewayConfig
	watcher *fsnotify.Watcher

	subscribers []chan Diff
}

// NewManager loads the initial configuration at path and prepares (but does
// not start) file-watch based hot reload.
func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Manager{path: path, current: cfg}, nil
}

// Current returns the active configuration.
func (m *Manager) Current() GatewayConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Subscribe registers a channel that receives one Diff per successfully
// applied reload. The channel has a buffer of 4 diffs; a full
// channel causes that diff to be dropped for that subscriber, logged at warn.
func (m *Manager) Subscribe() <-chan Diff {
	ch := make(chan Diff, 4)
	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()
	return ch
}

// Watch starts the fsnotify-backed file watch (debounced) and blocks,
// applying reloads, until ctx is cancelled. Call from a dedicated goroutine.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(m.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}
	m.mu.Lock()
	m.watcher = watcher
	m.mu.Unlock()

	var debounce *time.Timer
	const debounceWindow = 250 * time.Millisecond
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(m.path) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceWindow, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn("ConfigManager", "file watch error: %s", werr)
		case <-reload:
			m.reload()
		}
	}
}

// ReloadNow forces an immediate reload without waiting for a file event. No
// signal handler in this module calls it.
func (m *Manager) ReloadNow() {
	m.reload()
}

func (m *Manager) reload() {
	next, err := Load(m.path)
	if err != nil {
		logging.Warn("ConfigManager", "reload failed, keeping prior configuration: %s", err)
		return
	}

	m.mu.Lock()
	prev := m.current
	diff := computeDiff(prev, next)
	if diff.IsEmpty() {
		m.mu.Unlock()
		return
	}
	m.current = next
	subs := append([]chan Diff(nil), m.subscribers...)
	m.mu.Unlock()

	logging.Info("ConfigManager", "configuration reloaded: +%d/-%d/~%d servers",
		len(diff.ServersAdded), len(diff.ServersRemoved), len(diff.ServersChanged))

	for _, ch := range subs {
		select {
		case ch <- diff:
		default:
			logging.Warn("ConfigManager", "diff subscriber channel full, dropping reload notification")
		}
	}
}
