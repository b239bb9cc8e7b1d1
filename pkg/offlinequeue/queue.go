// Package offlinequeue is the durable FIFO of writes deferred while offline.
//
// One Queue is created at startup and shared by every feature service and
// the replay trigger; it serializes all mutations of the underlying store.
package offlinequeue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wurt83ow/backoffice-client/pkg/models"
)

var (
	// ErrNotSerializable is returned when a payload or attachment cannot be stored losslessly.
	ErrNotSerializable = errors.New("payload is not serializable")
	// ErrInvalidAction is returned for actions with a missing name, endpoint or unsupported method.
	ErrInvalidAction = errors.New("invalid queued action")
)

// Store is the persistence the queue runs on. bdkeeper.Keeper implements it.
type Store interface {
	InsertAction(ctx context.Context, a models.QueuedAction) (int64, error)
	ListActions(ctx context.Context, statuses ...models.ActionStatus) ([]models.QueuedAction, error)
	GetAction(ctx context.Context, id int64) (models.QueuedAction, error)
	DeleteAction(ctx context.Context, id int64) error
	ClearActions(ctx context.Context) error
	UpdateActionStatus(ctx context.Context, id int64, status models.ActionStatus, attempts int, lastError string) error
	ResetReplaying(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context) (models.QueueStats, error)
	GetBlob(ctx context.Context, ref string) ([]byte, error)
}

type Queue struct {
	mu    sync.Mutex
	store Store
	log   *slog.Logger
	now   func() time.Time
}

func New(store Store, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

var writeMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// Enqueue validates the action and appends it to the end of the queue.
// Attachments must carry their content; it is stored by digest.
func (q *Queue) Enqueue(ctx context.Context, a models.QueuedAction) (models.QueuedAction, error) {
	a.Method = strings.ToUpper(a.Method)
	if a.Action == "" || a.Endpoint == "" || !writeMethods[a.Method] {
		return models.QueuedAction{}, fmt.Errorf("%w: action=%q endpoint=%q method=%q", ErrInvalidAction, a.Action, a.Endpoint, a.Method)
	}
	if len(a.Payload) > 0 && !json.Valid(a.Payload) {
		return models.QueuedAction{}, fmt.Errorf("%w: %s payload is not valid JSON", ErrNotSerializable, a.Action)
	}

	atts := make([]models.Attachment, len(a.Attachments))
	for i, att := range a.Attachments {
		if att.Data == nil {
			return models.QueuedAction{}, fmt.Errorf("%w: attachment %q has no materialized content", ErrNotSerializable, att.FileName)
		}
		att.Ref = Digest(att.Data)
		atts[i] = att
	}
	a.Attachments = atts

	if a.RequestID == "" {
		id, err := uuid.NewRandom()
		if err != nil {
			return models.QueuedAction{}, err
		}
		a.RequestID = id.String()
	}
	a.EnqueuedAt = q.now().UTC()
	a.Status = models.StatusPending
	a.Attempts = 0
	a.LastError = ""

	q.mu.Lock()
	defer q.mu.Unlock()

	id, err := q.store.InsertAction(ctx, a)
	if err != nil {
		return models.QueuedAction{}, fmt.Errorf("failed to enqueue %s: %w", a.Action, err)
	}
	a.ID = id

	q.log.Info("action queued",
		slog.Int64("id", a.ID),
		slog.String("action", a.Action),
		slog.String("method", a.Method),
		slog.String("endpoint", a.Endpoint),
	)
	return a, nil
}

// List returns every action held by the queue, oldest first.
func (q *Queue) List(ctx context.Context) ([]models.QueuedAction, error) {
	return q.store.ListActions(ctx)
}

// Pending returns actions eligible for replay, oldest first.
func (q *Queue) Pending(ctx context.Context) ([]models.QueuedAction, error) {
	return q.store.ListActions(ctx, models.StatusPending)
}

// Abandoned returns dead-lettered actions, oldest first.
func (q *Queue) Abandoned(ctx context.Context) ([]models.QueuedAction, error) {
	return q.store.ListActions(ctx, models.StatusAbandoned)
}

// Remove deletes one action, normally after a successful replay.
func (q *Queue) Remove(ctx context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.store.DeleteAction(ctx, id)
}

// Clear empties the queue.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.ClearActions(ctx); err != nil {
		return err
	}
	q.log.Info("queue cleared")
	return nil
}

// MarkReplaying flags an action as being sent.
func (q *Queue) MarkReplaying(ctx context.Context, a models.QueuedAction) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.store.UpdateActionStatus(ctx, a.ID, models.StatusReplaying, a.Attempts, a.LastError)
}

// MarkFailed records a failed replay. The action goes back to Pending, or to
// Abandoned once maxAttempts (when positive) is reached. It reports whether
// the action was abandoned.
func (q *Queue) MarkFailed(ctx context.Context, a models.QueuedAction, cause error, maxAttempts int) (bool, error) {
	attempts := a.Attempts + 1
	status := models.StatusPending
	if maxAttempts > 0 && attempts >= maxAttempts {
		status = models.StatusAbandoned
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.UpdateActionStatus(ctx, a.ID, status, attempts, cause.Error()); err != nil {
		return false, err
	}
	return status == models.StatusAbandoned, nil
}

// Requeue moves an abandoned action back to Pending with a fresh attempt count.
func (q *Queue) Requeue(ctx context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, err := q.store.GetAction(ctx, id); err != nil {
		return err
	}
	return q.store.UpdateActionStatus(ctx, id, models.StatusPending, 0, "")
}

// Recover returns actions interrupted mid-replay to Pending. Call once at startup.
func (q *Queue) Recover(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	n, err := q.store.ResetReplaying(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		q.log.Warn("recovered interrupted replays", slog.Int64("count", n))
	}
	return nil
}

func (q *Queue) Stats(ctx context.Context) (models.QueueStats, error) {
	return q.store.CountByStatus(ctx)
}

// Materialize loads attachment content for replay and checks it against its digest.
func (q *Queue) Materialize(ctx context.Context, a models.QueuedAction) (models.QueuedAction, error) {
	if len(a.Attachments) == 0 {
		return a, nil
	}
	atts := make([]models.Attachment, len(a.Attachments))
	for i, att := range a.Attachments {
		data, err := q.store.GetBlob(ctx, att.Ref)
		if err != nil {
			return a, fmt.Errorf("attachment %q: %w", att.FileName, err)
		}
		if Digest(data) != att.Ref {
			return a, fmt.Errorf("attachment %q: content does not match %s", att.FileName, att.Ref)
		}
		att.Data = data
		atts[i] = att
	}
	a.Attachments = atts
	return a, nil
}
