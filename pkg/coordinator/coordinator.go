// Package coordinator decides, for every mutating call, whether it runs now
// or waits in the offline queue.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/wurt83ow/backoffice-client/pkg/appcontext"
	"github.com/wurt83ow/backoffice-client/pkg/backend"
	"github.com/wurt83ow/backoffice-client/pkg/models"
)

// ExecuteFunc performs the write against the backend.
type ExecuteFunc func(ctx context.Context) (json.RawMessage, error)

// Connectivity is the read side of connectivity.Monitor.
type Connectivity interface {
	IsOnline() bool
}

// Enqueuer is the write side of offlinequeue.Queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, a models.QueuedAction) (models.QueuedAction, error)
}

// Notifier surfaces the "queued for later" notice to the user.
type Notifier interface {
	Notify(a models.QueuedAction)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(a models.QueuedAction)

func (f NotifierFunc) Notify(a models.QueuedAction) { f(a) }

type Coordinator struct {
	conn           Connectivity
	queue          Enqueuer
	notifier       Notifier
	log            *slog.Logger
	timeout        time.Duration
	queueOnNetwork bool
}

type Option func(*Coordinator)

// WithRequestTimeout bounds every direct write.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

// WithNotifier sets where queued notices go.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) { c.notifier = n }
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Coordinator) { c.log = log }
}

// WithQueueOnNetworkError also queues writes that were attempted online but
// could not connect to the backend. A write that may have reached it (timed
// out waiting for the answer, broken response) is returned as an error, as
// are backend rejections.
func WithQueueOnNetworkError() Option {
	return func(c *Coordinator) { c.queueOnNetwork = true }
}

func New(conn Connectivity, queue Enqueuer, opts ...Option) *Coordinator {
	c := &Coordinator{
		conn:  conn,
		queue: queue,
		log:   slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// PerformWrite runs execute when online and returns its outcome unchanged.
// Offline, execute is not called: the action is queued once and a queued result
// is returned.
//
// Attachments of the action must already hold their bytes (see offlinequeue.Attach);
// a file handle cannot be queued and fails with offlinequeue.ErrNotSerializable.
func (c *Coordinator) PerformWrite(ctx context.Context, execute ExecuteFunc, queued models.QueuedAction) (models.Result, error) {
	ctx = appcontext.WithActionName(ctx, queued.Action)

	if !c.conn.IsOnline() {
		return c.enqueue(ctx, queued)
	}

	body, err := c.execute(ctx, execute)
	if err != nil {
		if c.queueOnNetwork && errors.Is(err, backend.ErrRequestNotSent) && ctx.Err() == nil {
			c.log.Warn("backend unreachable, queueing",
				slog.String("action", queued.Action),
				slog.String("error", err.Error()),
			)
			return c.enqueue(ctx, queued)
		}
		return models.Result{}, err
	}
	return models.Result{Success: true, Body: body}, nil
}

func (c *Coordinator) execute(ctx context.Context, execute ExecuteFunc) (json.RawMessage, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return execute(ctx)
}

func (c *Coordinator) enqueue(ctx context.Context, queued models.QueuedAction) (models.Result, error) {
	stored, err := c.queue.Enqueue(ctx, queued)
	if err != nil {
		return models.Result{}, err
	}
	if c.notifier != nil {
		c.notifier.Notify(stored)
	}
	return models.QueuedResult(), nil
}
