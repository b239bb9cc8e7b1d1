// Package connectivity tracks whether the back-office API is reachable.
package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/wurt83ow/backoffice-client/pkg/backend"
)

// Prober reports whether the backend can currently be reached.
type Prober interface {
	Probe(ctx context.Context) bool
}

// HTTPProber probes GET /health. Transport failures and 5xx responses count
// as offline; any other answer means the server is there.
type HTTPProber struct {
	Client  *backend.Client
	Timeout time.Duration
}

func (p *HTTPProber) Probe(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := p.Client.Health(ctx)
	if err == nil {
		return true
	}
	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode < http.StatusInternalServerError
	}
	return false
}

// Monitor holds the best-known connectivity state and notifies listeners
// on every observed flip.
type Monitor struct {
	mu        sync.RWMutex
	online    bool
	forced    bool
	listeners map[int]func(bool)
	nextID    int

	prober   Prober
	interval time.Duration
	log      *slog.Logger
}

// New creates a monitor seeded by one synchronous probe.
func New(ctx context.Context, prober Prober, interval time.Duration, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	m := &Monitor{
		listeners: make(map[int]func(bool)),
		prober:    prober,
		interval:  interval,
		log:       log,
	}
	if prober != nil {
		m.online = prober.Probe(ctx)
	}
	return m
}

func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// OnChange registers fn for state flips in either direction.
// The returned function removes it.
func (m *Monitor) OnChange(fn func(online bool)) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// Set overrides the state, as a probe would. Forcing offline also stops Run
// from flipping it back until Set(true) is called.
func (m *Monitor) Set(online bool) {
	m.mu.Lock()
	m.forced = !online
	m.mu.Unlock()
	m.update(online)
}

// Run probes every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	if m.prober == nil || m.interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.mu.RLock()
			forced := m.forced
			m.mu.RUnlock()
			if forced {
				continue
			}
			m.update(m.prober.Probe(ctx))
		}
	}
}

func (m *Monitor) update(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	fns := make([]func(bool), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	m.log.Info("connectivity changed", slog.Bool("online", online))
	for _, fn := range fns {
		fn(online)
	}
}
