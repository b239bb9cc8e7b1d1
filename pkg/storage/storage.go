// Package storage is the read-through cache of last-known list responses,
// used to display data while the backend cannot be reached.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wurt83ow/backoffice-client/pkg/backend"
	"github.com/wurt83ow/backoffice-client/pkg/bdkeeper"
)

// ErrNotCached is returned offline when nothing was ever fetched for a key.
var ErrNotCached = errors.New("no cached data")

// CacheStore is the persistent side of the cache. bdkeeper.Keeper implements it.
type CacheStore interface {
	GetCache(ctx context.Context, key string) ([]byte, time.Time, error)
	PutCache(ctx context.Context, key string, body []byte, fetchedAt time.Time) error
	DeleteCache(ctx context.Context, key string) error
}

type Connectivity interface {
	IsOnline() bool
}

// Fetcher loads a fresh body from the backend.
type Fetcher func(ctx context.Context) (json.RawMessage, error)

// Entry is a cached response.
type Entry struct {
	Body      json.RawMessage
	FetchedAt time.Time
	// Stale marks a body served from cache because the backend was unreachable.
	Stale bool
}

type Storage struct {
	mu     sync.RWMutex
	data   map[string]Entry
	keeper CacheStore
	conn   Connectivity
	ttl    time.Duration
	group  singleflight.Group
	log    *slog.Logger
	now    func() time.Time
}

func New(keeper CacheStore, conn Connectivity, ttl time.Duration, log *slog.Logger) *Storage {
	if log == nil {
		log = slog.Default()
	}
	return &Storage{
		data:   make(map[string]Entry),
		keeper: keeper,
		conn:   conn,
		ttl:    ttl,
		log:    log,
		now:    time.Now,
	}
}

// Get returns the body for key. A cached body younger than the TTL is served
// as is. Otherwise fetch runs (once for concurrent callers of the same key)
// and its result is stored. When the backend is offline or unreachable the
// last known body is returned with Stale set.
func (s *Storage) Get(ctx context.Context, key string, fetch Fetcher) (Entry, error) {
	cached, hit, err := s.lookup(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	if hit && s.ttl > 0 && s.now().Sub(cached.FetchedAt) < s.ttl {
		return cached, nil
	}

	if s.conn != nil && !s.conn.IsOnline() {
		return s.fallback(key, cached, hit, backend.ErrNetworkUnavailable)
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		body, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		entry := Entry{Body: body, FetchedAt: s.now().UTC()}
		if err := s.store(ctx, key, entry); err != nil {
			s.log.Warn("failed to cache response", slog.String("key", key), slog.String("error", err.Error()))
		}
		return entry, nil
	})
	if err != nil {
		if errors.Is(err, backend.ErrNetworkUnavailable) {
			return s.fallback(key, cached, hit, err)
		}
		return Entry{}, err
	}
	return v.(Entry), nil
}

func (s *Storage) fallback(key string, cached Entry, hit bool, cause error) (Entry, error) {
	if !hit {
		return Entry{}, fmt.Errorf("%w for %s: %w", ErrNotCached, key, cause)
	}
	s.log.Info("serving cached data", slog.String("key", key), slog.Time("fetched_at", cached.FetchedAt))
	cached.Stale = true
	return cached, nil
}

// Invalidate drops key so the next Get fetches.
func (s *Storage) Invalidate(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return s.keeper.DeleteCache(ctx, key)
}

func (s *Storage) lookup(ctx context.Context, key string) (Entry, bool, error) {
	s.mu.RLock()
	entry, ok := s.data[key]
	s.mu.RUnlock()
	if ok {
		return entry, true, nil
	}

	body, fetchedAt, err := s.keeper.GetCache(ctx, key)
	if errors.Is(err, bdkeeper.ErrNotFound) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	entry = Entry{Body: body, FetchedAt: fetchedAt}

	s.mu.Lock()
	s.data[key] = entry
	s.mu.Unlock()
	return entry, true, nil
}

func (s *Storage) store(ctx context.Context, key string, entry Entry) error {
	s.mu.Lock()
	s.data[key] = entry
	s.mu.Unlock()
	return s.keeper.PutCache(ctx, key, entry.Body, entry.FetchedAt)
}
