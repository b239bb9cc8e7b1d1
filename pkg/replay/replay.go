// Package replay drains the offline queue against the backend once
// connectivity returns, or on demand.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wurt83ow/backoffice-client/pkg/appcontext"
	"github.com/wurt83ow/backoffice-client/pkg/backend"
	"github.com/wurt83ow/backoffice-client/pkg/bdkeeper"
	"github.com/wurt83ow/backoffice-client/pkg/models"
	"github.com/wurt83ow/backoffice-client/pkg/syncinfo"
)

// ErrDrainInProgress is returned when a pass is requested while another runs.
var ErrDrainInProgress = errors.New("drain already in progress")

// Queue is the part of offlinequeue.Queue a drain needs.
type Queue interface {
	Pending(ctx context.Context) ([]models.QueuedAction, error)
	MarkReplaying(ctx context.Context, a models.QueuedAction) error
	MarkFailed(ctx context.Context, a models.QueuedAction, cause error, maxAttempts int) (bool, error)
	Remove(ctx context.Context, id int64) error
	Recover(ctx context.Context) error
	Materialize(ctx context.Context, a models.QueuedAction) (models.QueuedAction, error)
	Stats(ctx context.Context) (models.QueueStats, error)
}

// Replayer reissues one queued action.
type Replayer interface {
	Replay(ctx context.Context, a models.QueuedAction) error
}

// BackendReplayer sends queued actions through the REST client, keyed by
// their RequestID so the server can drop duplicates.
type BackendReplayer struct {
	Client *backend.Client
}

func (r *BackendReplayer) Replay(ctx context.Context, a models.QueuedAction) error {
	_, err := r.Client.Send(ctx, backend.Request{
		Method:         a.Method,
		Endpoint:       a.Endpoint,
		Payload:        a.Payload,
		Attachments:    a.Attachments,
		IdempotencyKey: a.RequestID,
	})
	return err
}

// Recorder persists the outcome of a pass. syncinfo.SyncManager implements it.
type Recorder interface {
	Record(info syncinfo.SyncInfo) error
}

// Signal is the subscription side of connectivity.Monitor.
type Signal interface {
	OnChange(fn func(online bool)) (unsubscribe func())
}

// Report summarizes one drain pass.
type Report struct {
	Attempted int
	Replayed  int
	Failed    int
	Abandoned int
	Remaining int
}

type Drainer struct {
	mu sync.Mutex // held for the whole pass

	queue       Queue
	replayer    Replayer
	recorder    Recorder
	limiter     *rate.Limiter
	log         *slog.Logger
	timeout     time.Duration
	maxAttempts int
	onDrain     func(Report, error)
	now         func() time.Time

	wg sync.WaitGroup
}

type Option func(*Drainer)

// WithRequestTimeout bounds every replayed request.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(d *Drainer) { d.timeout = timeout }
}

// WithMaxAttempts abandons an action after n failed replays; 0 retries forever.
func WithMaxAttempts(n int) Option {
	return func(d *Drainer) { d.maxAttempts = n }
}

func WithRecorder(r Recorder) Option {
	return func(d *Drainer) { d.recorder = r }
}

// WithRateLimit paces replayed requests to rps per second.
func WithRateLimit(rps float64, burst int) Option {
	return func(d *Drainer) {
		if rps > 0 {
			if burst < 1 {
				burst = 1
			}
			d.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(d *Drainer) { d.log = log }
}

// WithOnDrain is called after every pass started by Watch.
func WithOnDrain(fn func(Report, error)) Option {
	return func(d *Drainer) { d.onDrain = fn }
}

func New(queue Queue, replayer Replayer, opts ...Option) *Drainer {
	d := &Drainer{
		queue:    queue,
		replayer: replayer,
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Drain makes one pass over the pending actions in enqueue order. A failed
// action stays queued and the pass moves on to the next one. Replay failures
// are reported in the Report, not returned.
func (d *Drainer) Drain(ctx context.Context) (Report, error) {
	if !d.mu.TryLock() {
		return Report{}, ErrDrainInProgress
	}
	defer d.mu.Unlock()

	report, err := d.drain(ctx)
	d.record(report, err)
	return report, err
}

// SyncNow is the manual trigger.
func (d *Drainer) SyncNow(ctx context.Context) (Report, error) {
	return d.Drain(ctx)
}

func (d *Drainer) drain(ctx context.Context) (Report, error) {
	var report Report

	pending, err := d.queue.Pending(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list pending actions: %w", err)
	}
	if len(pending) > 0 {
		d.log.Info("draining offline queue", slog.Int("pending", len(pending)))
	}

	for _, a := range pending {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				break
			}
		}
		if ctx.Err() != nil {
			break
		}

		if err := d.queue.MarkReplaying(ctx, a); err != nil {
			if errors.Is(err, bdkeeper.ErrNotFound) {
				d.log.Info("action left the queue before replay", slog.Int64("id", a.ID))
				continue
			}
			return report, err
		}
		report.Attempted++

		replayErr := d.replayOne(ctx, a)
		if replayErr == nil {
			// Already gone if the queue was cleared while the write was in flight.
			if err := d.queue.Remove(ctx, a.ID); err != nil && !errors.Is(err, bdkeeper.ErrNotFound) {
				return report, err
			}
			report.Replayed++
			d.log.Info("action replayed",
				slog.Int64("id", a.ID),
				slog.String("action", a.Action),
			)
			continue
		}

		if ctx.Err() != nil {
			// Interrupted by the caller, not a verdict on the action.
			report.Attempted--
			if err := d.queue.Recover(context.WithoutCancel(ctx)); err != nil {
				return report, err
			}
			break
		}

		abandoned, err := d.queue.MarkFailed(ctx, a, replayErr, d.maxAttempts)
		if err != nil && !errors.Is(err, bdkeeper.ErrNotFound) {
			return report, err
		}
		report.Failed++
		attrs := []any{
			slog.Int64("id", a.ID),
			slog.String("action", a.Action),
			slog.Int("attempts", a.Attempts+1),
			slog.String("error", replayErr.Error()),
		}
		if abandoned {
			report.Abandoned++
			d.log.Error("action abandoned", attrs...)
		} else {
			d.log.Warn("replay failed, keeping action queued", attrs...)
		}
	}

	stats, err := d.queue.Stats(context.WithoutCancel(ctx))
	if err != nil {
		return report, err
	}
	report.Remaining = stats.Pending + stats.Replaying
	return report, ctx.Err()
}

func (d *Drainer) replayOne(ctx context.Context, a models.QueuedAction) error {
	full, err := d.queue.Materialize(ctx, a)
	if err != nil {
		return err
	}

	ctx = appcontext.WithActionName(ctx, a.Action)
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	return d.replayer.Replay(ctx, full)
}

func (d *Drainer) record(report Report, drainErr error) {
	if d.recorder == nil {
		return
	}
	info := syncinfo.SyncInfo{
		LastSync:  d.now().UTC(),
		Attempted: report.Attempted,
		Replayed:  report.Replayed,
		Failed:    report.Failed,
		Abandoned: report.Abandoned,
		Remaining: report.Remaining,
	}
	if drainErr != nil {
		info.Error = drainErr.Error()
	}
	if err := d.recorder.Record(info); err != nil {
		d.log.Error("failed to save sync info", slog.String("error", err.Error()))
	}
}

// Watch starts a drain on every offline to online flip of s. Drains run in
// the background under ctx. The returned function stops watching.
func (d *Drainer) Watch(ctx context.Context, s Signal) (unsubscribe func()) {
	return s.OnChange(func(online bool) {
		if !online {
			return
		}
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			report, err := d.Drain(ctx)
			if errors.Is(err, ErrDrainInProgress) {
				return
			}
			if err != nil && ctx.Err() == nil {
				d.log.Error("background drain failed", slog.String("error", err.Error()))
			}
			if d.onDrain != nil {
				d.onDrain(report, err)
			}
		}()
	})
}

// Wait blocks until background drains started by Watch have returned.
func (d *Drainer) Wait() {
	d.wg.Wait()
}
