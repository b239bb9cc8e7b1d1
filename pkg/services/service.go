package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/wurt83ow/backoffice-client/pkg/backend"
	"github.com/wurt83ow/backoffice-client/pkg/coordinator"
	"github.com/wurt83ow/backoffice-client/pkg/models"
	"github.com/wurt83ow/backoffice-client/pkg/offlinequeue"
	"github.com/wurt83ow/backoffice-client/pkg/storage"
)

// ErrInvalidInput is returned before any network or queue work for bad arguments.
var ErrInvalidInput = errors.New("invalid input")

// Writer is the coordinator's entry point.
type Writer interface {
	PerformWrite(ctx context.Context, execute coordinator.ExecuteFunc, queued models.QueuedAction) (models.Result, error)
}

// Sender is the backend client.
type Sender interface {
	Send(ctx context.Context, r backend.Request, reqEditors ...backend.RequestEditorFn) (json.RawMessage, error)
}

// Cache is the read-through cache.
type Cache interface {
	Get(ctx context.Context, key string, fetch storage.Fetcher) (storage.Entry, error)
	Invalidate(ctx context.Context, key string) error
}

// Service holds the data-access hooks of every back-office feature.
// Writes go through the coordinator, lists through the cache.
type Service struct {
	client Sender
	writer Writer
	cache  Cache
}

func NewServices(client Sender, writer Writer, cache Cache) *Service {
	return &Service{
		client: client,
		writer: writer,
		cache:  cache,
	}
}

// write performs one mutation. invalidate names the list caches the write
// makes outdated; they are dropped after a direct success only, so a queued
// write leaves the last known lists in place.
func (s *Service) write(ctx context.Context, action, method, endpoint string, payload interface{},
	attachments []models.Attachment, invalidate ...string) (models.Result, error) {
	body, err := offlinequeue.MarshalPayload(payload)
	if err != nil {
		return models.Result{}, err
	}

	// One key per user action: the direct attempt and any replay of it
	// carry the same Idempotency-Key.
	requestID, err := uuid.NewRandom()
	if err != nil {
		return models.Result{}, err
	}
	req := backend.Request{
		Method:         method,
		Endpoint:       endpoint,
		Payload:        body,
		Attachments:    attachments,
		IdempotencyKey: requestID.String(),
	}
	queued := models.QueuedAction{
		RequestID:   requestID.String(),
		Action:      action,
		Endpoint:    endpoint,
		Method:      method,
		Payload:     body,
		Attachments: attachments,
	}

	res, err := s.writer.PerformWrite(ctx, func(ctx context.Context) (json.RawMessage, error) {
		return s.client.Send(ctx, req)
	}, queued)
	if err != nil {
		return res, err
	}
	if !res.Queued {
		for _, key := range invalidate {
			// A stale list is refetched on the next read anyway.
			_ = s.cache.Invalidate(ctx, key)
		}
	}
	return res, nil
}

// list reads endpoint through the cache and decodes it into out.
// It reports whether the data came from cache because the backend was unreachable.
func (s *Service) list(ctx context.Context, endpoint string, out interface{}) (bool, error) {
	entry, err := s.cache.Get(ctx, endpoint, func(ctx context.Context) (json.RawMessage, error) {
		return s.client.Send(ctx, backend.Request{Method: http.MethodGet, Endpoint: endpoint})
	})
	if err != nil {
		return false, err
	}
	if err := backend.Decode(entry.Body, out); err != nil {
		return false, fmt.Errorf("%s: %w", endpoint, err)
	}
	return entry.Stale, nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
