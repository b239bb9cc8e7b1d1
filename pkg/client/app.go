// Package client is the terminal front end: cobra commands and an
// interactive readline shell over the back-office services.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/wurt83ow/backoffice-client/pkg/backend"
	"github.com/wurt83ow/backoffice-client/pkg/bdkeeper"
	"github.com/wurt83ow/backoffice-client/pkg/config"
	"github.com/wurt83ow/backoffice-client/pkg/connectivity"
	"github.com/wurt83ow/backoffice-client/pkg/coordinator"
	"github.com/wurt83ow/backoffice-client/pkg/encription"
	"github.com/wurt83ow/backoffice-client/pkg/logger"
	"github.com/wurt83ow/backoffice-client/pkg/models"
	"github.com/wurt83ow/backoffice-client/pkg/offlinequeue"
	"github.com/wurt83ow/backoffice-client/pkg/replay"
	"github.com/wurt83ow/backoffice-client/pkg/services"
	"github.com/wurt83ow/backoffice-client/pkg/session"
	"github.com/wurt83ow/backoffice-client/pkg/storage"
	"github.com/wurt83ow/backoffice-client/pkg/syncinfo"
)

// App is the wired client. One App owns the queue for its whole lifetime.
type App struct {
	opts    *config.Options
	log     *slog.Logger
	logFile io.Closer
	keeper  *bdkeeper.Keeper
	out     io.Writer

	Backend *backend.Client
	Queue   *offlinequeue.Queue
	Monitor *connectivity.Monitor
	Drainer *replay.Drainer
	Service *services.Service
	Session *session.Manager
	Sync    *syncinfo.SyncManager
}

// NewApp opens the data dir and builds every component. Output meant for
// the user (queued notices) goes to out.
func NewApp(ctx context.Context, opts *config.Options, out io.Writer) (_ *App, err error) {
	if err := opts.Prepare(); err != nil {
		return nil, err
	}
	log, logFile, err := logger.NewLogger(opts.LogPath(), opts.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	app := &App{opts: opts, log: log, logFile: logFile, out: out}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	app.keeper, err = bdkeeper.Open(ctx, opts.DBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open queue database: %w", err)
	}

	enc := encription.NewEnc(opts.Key())
	app.Session = session.NewManager(opts.SessionPath(), enc, opts.SessionDuration)

	app.Backend, err = backend.NewClient(opts.ServerURL,
		backend.WithHTTPClient(&http.Client{}),
		backend.WithRequestEditorFn(backend.BearerTokenEditor(app.Session.Token)),
		backend.WithRequestEditorFn(backend.ActionNameEditor()),
	)
	if err != nil {
		return nil, err
	}

	app.Queue = offlinequeue.New(app.keeper, log)
	if err := app.Queue.Recover(ctx); err != nil {
		return nil, err
	}

	if opts.Offline {
		app.Monitor = connectivity.New(ctx, nil, 0, log)
		app.Monitor.Set(false)
	} else {
		prober := &connectivity.HTTPProber{Client: app.Backend, Timeout: opts.RequestTimeout}
		app.Monitor = connectivity.New(ctx, prober, opts.ProbeInterval, log)
	}

	coordOpts := []coordinator.Option{
		coordinator.WithRequestTimeout(opts.RequestTimeout),
		coordinator.WithLogger(log),
		coordinator.WithNotifier(coordinator.NotifierFunc(app.notifyQueued)),
	}
	if opts.QueueOnNetworkErr {
		coordOpts = append(coordOpts, coordinator.WithQueueOnNetworkError())
	}
	coord := coordinator.New(app.Monitor, app.Queue, coordOpts...)

	app.Sync, err = syncinfo.NewSyncManager(opts.SyncInfoPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load sync info: %w", err)
	}

	app.Drainer = replay.New(app.Queue, &replay.BackendReplayer{Client: app.Backend},
		replay.WithRequestTimeout(opts.RequestTimeout),
		replay.WithMaxAttempts(opts.MaxReplayAttempts),
		replay.WithRateLimit(opts.ReplayRate, 1),
		replay.WithRecorder(app.Sync),
		replay.WithLogger(log),
		replay.WithOnDrain(app.reportDrain),
	)

	cache := storage.New(app.keeper, app.Monitor, opts.CacheTTL, log)
	app.Service = services.NewServices(app.Backend, coord, cache)

	log.Debug("client started",
		slog.String("server", opts.ServerURL),
		slog.Bool("online", app.Monitor.IsOnline()),
	)
	return app, nil
}

func (a *App) notifyQueued(q models.QueuedAction) {
	fmt.Fprintf(a.out, "backend unreachable: %s queued for later (#%d)\n", q.Action, q.ID)
}

func (a *App) reportDrain(r replay.Report, err error) {
	if err != nil {
		fmt.Fprintf(a.out, "sync failed: %v\n", err)
		return
	}
	if r.Attempted > 0 {
		printReport(a.out, r)
	}
}

// CatchUp replays pending actions when the backend is reachable, so queued
// writes reach it before new ones.
func (a *App) CatchUp(ctx context.Context) error {
	if !a.Monitor.IsOnline() {
		return nil
	}
	stats, err := a.Queue.Stats(ctx)
	if err != nil {
		return err
	}
	if stats.Pending == 0 {
		return nil
	}
	report, err := a.Drainer.Drain(ctx)
	if errors.Is(err, replay.ErrDrainInProgress) {
		return nil
	}
	if err != nil {
		return err
	}
	printReport(a.out, report)
	return nil
}

// Close releases the database and the log file.
func (a *App) Close() error {
	var errs []error
	if a.keeper != nil {
		errs = append(errs, a.keeper.Close())
	}
	if a.logFile != nil {
		errs = append(errs, a.logFile.Close())
	}
	return errors.Join(errs...)
}
