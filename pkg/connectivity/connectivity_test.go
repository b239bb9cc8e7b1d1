package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wurt83ow/backoffice-client/pkg/backend"
)

type proberFunc func(ctx context.Context) bool

func (f proberFunc) Probe(ctx context.Context) bool { return f(ctx) }

func TestMonitor_SeededByProbe(t *testing.T) {
	up := New(context.Background(), proberFunc(func(context.Context) bool { return true }), 0, nil)
	assert.True(t, up.IsOnline())

	down := New(context.Background(), proberFunc(func(context.Context) bool { return false }), 0, nil)
	assert.False(t, down.IsOnline())
}

func TestMonitor_OnChangeOnlyOnFlips(t *testing.T) {
	m := New(context.Background(), nil, 0, nil)

	var got []bool
	unsubscribe := m.OnChange(func(online bool) { got = append(got, online) })

	m.Set(false) // no flip
	m.Set(true)
	m.Set(true)
	m.Set(false)
	assert.Equal(t, []bool{true, false}, got)

	unsubscribe()
	unsubscribe()
	assert.Empty(t, m.listeners)

	m.Set(true)
	assert.Len(t, got, 2)
}

func TestMonitor_RunFollowsProbe(t *testing.T) {
	var online atomic.Bool
	m := New(context.Background(), proberFunc(func(context.Context) bool { return online.Load() }), 5*time.Millisecond, nil)
	require.False(t, m.IsOnline())

	flips := make(chan bool, 4)
	defer m.OnChange(func(v bool) { flips <- v })()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.Run(ctx)
	}()

	online.Store(true)
	select {
	case v := <-flips:
		assert.True(t, v)
	case <-time.After(time.Second):
		t.Fatal("monitor did not observe the backend coming back")
	}

	cancel()
	wg.Wait()
}

func TestMonitor_ForcedOfflineIgnoresProbe(t *testing.T) {
	m := New(context.Background(), proberFunc(func(context.Context) bool { return true }), time.Millisecond, nil)
	m.Set(false)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	m.Run(ctx)

	assert.False(t, m.IsOnline())
}

func TestHTTPProber(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, backend.HealthPath, r.URL.Path)
		w.WriteHeader(status)
	}))
	c, err := backend.NewClient(srv.URL)
	require.NoError(t, err)
	p := &HTTPProber{Client: c, Timeout: time.Second}

	assert.True(t, p.Probe(context.Background()))

	status = http.StatusUnauthorized
	assert.True(t, p.Probe(context.Background()), "a 4xx still means the server answered")

	status = http.StatusServiceUnavailable
	assert.False(t, p.Probe(context.Background()))

	srv.Close()
	assert.False(t, p.Probe(context.Background()))
}
