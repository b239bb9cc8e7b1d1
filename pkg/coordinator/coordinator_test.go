package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wurt83ow/backoffice-client/pkg/appcontext"
	"github.com/wurt83ow/backoffice-client/pkg/backend"
	"github.com/wurt83ow/backoffice-client/pkg/bdkeeper"
	"github.com/wurt83ow/backoffice-client/pkg/models"
	"github.com/wurt83ow/backoffice-client/pkg/offlinequeue"
)

type staticConn bool

func (s staticConn) IsOnline() bool { return bool(s) }

func newQueue(t *testing.T) *offlinequeue.Queue {
	t.Helper()
	keeper, err := bdkeeper.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { keeper.Close() })
	return offlinequeue.New(keeper, nil)
}

func addItemAction(name string) models.QueuedAction {
	return models.QueuedAction{
		Action:   "add-inventory-item",
		Endpoint: backend.InventoryPath,
		Method:   http.MethodPost,
		Payload:  json.RawMessage(fmt.Sprintf(`{"name":%q}`, name)),
	}
}

func TestPerformWrite_OnlineSuccess(t *testing.T) {
	q := newQueue(t)
	c := New(staticConn(true), q)

	var action string
	res, err := c.PerformWrite(context.Background(), func(ctx context.Context) (json.RawMessage, error) {
		action = appcontext.GetActionName(ctx)
		return json.RawMessage(`{"id":"1"}`), nil
	}, addItemAction("flour"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Queued)
	assert.JSONEq(t, `{"id":"1"}`, string(res.Body))
	assert.Equal(t, "add-inventory-item", action)

	actions, err := q.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestPerformWrite_OnlineFailureIsPropagatedUnchanged(t *testing.T) {
	q := newQueue(t)
	c := New(staticConn(true), q, WithQueueOnNetworkError())

	rejected := &backend.StatusError{StatusCode: http.StatusInternalServerError, Status: "500 Internal Server Error"}
	_, err := c.PerformWrite(context.Background(), func(context.Context) (json.RawMessage, error) {
		return nil, rejected
	}, addItemAction("flour"))
	assert.Same(t, rejected, err)

	sentinel := errors.New("boom")
	_, err = New(staticConn(true), q).PerformWrite(context.Background(), func(context.Context) (json.RawMessage, error) {
		return nil, sentinel
	}, addItemAction("flour"))
	assert.Same(t, sentinel, err)

	actions, err := q.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestPerformWrite_OfflineSubstitution(t *testing.T) {
	q := newQueue(t)
	var notified []models.QueuedAction
	c := New(staticConn(false), q, WithNotifier(NotifierFunc(func(a models.QueuedAction) {
		notified = append(notified, a)
	})))

	calls := 0
	execute := func(context.Context) (json.RawMessage, error) {
		calls++
		return nil, nil
	}
	for _, name := range []string{"A", "B", "C"} {
		res, err := c.PerformWrite(context.Background(), execute, addItemAction(name))
		require.NoError(t, err)
		assert.Equal(t, models.QueuedResult(), res)

		b, err := json.Marshal(res)
		require.NoError(t, err)
		assert.JSONEq(t, `{"success":true,"queued":true}`, string(b))
	}
	assert.Zero(t, calls)

	actions, err := q.List(context.Background())
	require.NoError(t, err)
	require.Len(t, actions, 3)
	for i, name := range []string{"A", "B", "C"} {
		want := addItemAction(name)
		assert.Equal(t, want.Action, actions[i].Action)
		assert.Equal(t, want.Endpoint, actions[i].Endpoint)
		assert.Equal(t, want.Method, actions[i].Method)
		assert.JSONEq(t, string(want.Payload), string(actions[i].Payload))
	}
	require.Len(t, notified, 3)
	assert.Equal(t, actions[0].ID, notified[0].ID)
}

func TestPerformWrite_OfflineEnqueueErrorIsReturned(t *testing.T) {
	q := newQueue(t)
	c := New(staticConn(false), q)

	want := addItemAction("soup")
	want.Attachments = []models.Attachment{{Field: "image", FileName: "soup.png"}}
	_, err := c.PerformWrite(context.Background(), func(context.Context) (json.RawMessage, error) {
		t.Fatal("execute must not run offline")
		return nil, nil
	}, want)
	assert.ErrorIs(t, err, offlinequeue.ErrNotSerializable)
}

func TestPerformWrite_QueueOnNetworkError(t *testing.T) {
	q := newQueue(t)
	c := New(staticConn(true), q, WithQueueOnNetworkError())
	refused := func(context.Context) (json.RawMessage, error) {
		return nil, fmt.Errorf("%w: %w: connection refused", backend.ErrNetworkUnavailable, backend.ErrRequestNotSent)
	}

	res, err := c.PerformWrite(context.Background(), refused, addItemAction("flour"))
	require.NoError(t, err)
	assert.True(t, res.Queued)

	stats, err := q.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)

	// Without the option the transport error reaches the caller.
	_, err = New(staticConn(true), q).PerformWrite(context.Background(), refused, addItemAction("flour"))
	assert.ErrorIs(t, err, backend.ErrNetworkUnavailable)
}

func TestPerformWrite_TimedOutWriteIsNotQueued(t *testing.T) {
	var (
		mu   sync.Mutex
		keys []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		first := len(keys) == 1
		mu.Unlock()
		if first {
			time.Sleep(200 * time.Millisecond)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()
	client, err := backend.NewClient(srv.URL)
	require.NoError(t, err)

	q := newQueue(t)
	c := New(staticConn(true), q, WithQueueOnNetworkError(), WithRequestTimeout(50*time.Millisecond))

	action := addItemAction("flour")
	action.RequestID = "4a7c7f1e-6a0e-4f55-9d55-5f0c2b1b8e01"
	_, err = c.PerformWrite(context.Background(), func(ctx context.Context) (json.RawMessage, error) {
		return client.Send(ctx, backend.Request{
			Method:         action.Method,
			Endpoint:       action.Endpoint,
			Payload:        action.Payload,
			IdempotencyKey: action.RequestID,
		})
	}, action)
	assert.ErrorIs(t, err, backend.ErrNetworkUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	actions, err := q.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, actions, "the backend may already have applied the write")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{action.RequestID}, keys)
}

func TestPerformWrite_TimeoutAbortsHungWrite(t *testing.T) {
	q := newQueue(t)
	c := New(staticConn(true), q, WithRequestTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := c.PerformWrite(context.Background(), func(ctx context.Context) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}, addItemAction("flour"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPerformWrite_CallerCancellation(t *testing.T) {
	q := newQueue(t)
	c := New(staticConn(true), q, WithQueueOnNetworkError())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.PerformWrite(ctx, func(ctx context.Context) (json.RawMessage, error) {
		return nil, fmt.Errorf("%w: %w", backend.ErrNetworkUnavailable, ctx.Err())
	}, addItemAction("flour"))
	assert.ErrorIs(t, err, context.Canceled)

	actions, err := q.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, actions, "a cancelled write is not queued")
}
