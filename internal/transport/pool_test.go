package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"goblin/internal/config"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu        sync.Mutex
	connected bool
	failNext  bool
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		return fmt.Errorf("simulated connect failure")
	}
	f.connected = true
	return nil
}
func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}
func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}
func (f *fakeTransport) Client() mcpclient.MCPClient { return nil }
func (f *fakeTransport) Health(ctx context.Context) error {
	if !f.IsConnected() {
		return fmt.Errorf("not connected")
	}
	return nil
}

func TestPool_SingleFlightConnect(t *testing.T) {
	var constructCount int32
	factory := func(cfg config.ServerConfig) (Transport, error) {
		atomic.AddInt32(&constructCount, 1)
		time.Sleep(20 * time.Millisecond)
		return &fakeTransport{}, nil
	}

	pool := NewPoolWithFactory(time.Minute, time.Second, factory)
	pool.Configure(config.ServerConfig{Name: "fs", Transport: config.TransportStdio, Mode: config.LifecycleStateful})

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := pool.GetTransport(context.Background(), "fs")
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&constructCount))
}

func TestPool_UnknownUpstream(t *testing.T) {
	pool := NewPool(time.Minute, time.Second)
	_, err := pool.GetTransport(context.Background(), "missing")
	assert.Error(t, err)
}

func TestPool_CircuitOpensAfterRepeatedFailure(t *testing.T) {
	factory := func(cfg config.ServerConfig) (Transport, error) {
		return nil, fmt.Errorf("boom")
	}
	pool := NewPoolWithFactory(time.Minute, time.Second, factory)
	pool.Configure(config.ServerConfig{Name: "bad", Transport: config.TransportStdio})

	var lastErr error
	for i := 0; i < config.DefaultCircuitFailureThreshold; i++ {
		_, lastErr = pool.GetTransport(context.Background(), "bad")
		assert.Error(t, lastErr)
	}

	_, err := pool.GetTransport(context.Background(), "bad")
	require.Error(t, err)
	_, isCircuitOpen := err.(ErrCircuitOpen)
	assert.True(t, isCircuitOpen, "expected ErrCircuitOpen, got %v", err)
}

func TestPool_StatelessReleaseCloses(t *testing.T) {
	ft := &fakeTransport{}
	factory := func(cfg config.ServerConfig) (Transport, error) { return ft, nil }
	pool := NewPoolWithFactory(time.Minute, time.Second, factory)
	pool.Configure(config.ServerConfig{Name: "once", Transport: config.TransportHTTP, Mode: config.LifecycleStateless})

	tr, err := pool.GetTransport(context.Background(), "once")
	require.NoError(t, err)
	assert.True(t, tr.IsConnected())

	pool.Release("once")
	assert.False(t, ft.IsConnected())
}

func TestPool_HealthSnapshot(t *testing.T) {
	factory := func(cfg config.ServerConfig) (Transport, error) { return &fakeTransport{}, nil }
	pool := NewPoolWithFactory(time.Minute, time.Second, factory)
	pool.Configure(config.ServerConfig{Name: "a", Transport: config.TransportStdio})

	_, err := pool.GetTransport(context.Background(), "a")
	require.NoError(t, err)

	snap := pool.HealthSnapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "a", snap[0].Name)
	assert.True(t, snap[0].Connected)
}
