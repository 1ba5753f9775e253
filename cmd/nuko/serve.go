package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nuko-mc/nuko/internal/config"
	"github.com/nuko-mc/nuko/internal/events"
	"github.com/nuko-mc/nuko/internal/history"
	"github.com/nuko-mc/nuko/internal/history/factory"
	"github.com/nuko-mc/nuko/internal/instance"
	"github.com/nuko-mc/nuko/internal/logger"
	"github.com/nuko-mc/nuko/internal/metrics"
	"github.com/nuko-mc/nuko/internal/proctable"
	"github.com/nuko-mc/nuko/internal/schedule"
	"github.com/nuko-mc/nuko/internal/server"
	"github.com/nuko-mc/nuko/internal/supervisor"
)

const (
	lockFileName    = "nuko.lock"
	shutdownTimeout = 30 * time.Second
)

// ErrLocked is returned when another daemon holds the data directory.
var ErrLocked = errors.New("data directory is locked by another nuko daemon")

// daemon owns every long-lived component of `nuko serve`.
type daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer
	lock      *flock.Flock
	store     *instance.Store
	bus       *events.Bus
	sink      history.Sink
	sup       *supervisor.Supervisor
	sched     *schedule.Scheduler
	router    *server.Router
}

// newDaemon wires the components described by cfg. Log output goes to w
// unless cfg.Log.File is set.
func newDaemon(cfg *config.Config, w io.Writer) (_ *daemon, err error) {
	d := &daemon{cfg: cfg}
	defer func() {
		if err != nil {
			d.close()
		}
	}()

	d.logger, d.logCloser = logger.New(cfg.Log, w)
	logger.Install(d.logger)

	d.store, err = instance.NewStore(cfg.DataDir, d.logger)
	if err != nil {
		return nil, err
	}
	if err = os.MkdirAll(d.store.Root(), 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	d.lock = flock.New(filepath.Join(d.store.Root(), lockFileName))
	locked, err := d.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		d.lock = nil
		return nil, fmt.Errorf("%w: %s", ErrLocked, d.store.Root())
	}

	if cfg.Metrics.Enabled {
		if err = metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	var sinks []history.Sink
	var querier history.Querier
	if cfg.History.DSN != "" {
		d.sink, err = factory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			return nil, fmt.Errorf("history sink: %w", err)
		}
		sinks = append(sinks, d.sink)
		if q, ok := d.sink.(history.Querier); ok {
			querier = q
		}
	}

	d.bus = events.NewBus()
	d.sup, err = supervisor.New(supervisor.Options{
		Instances:       d.store,
		Lister:          proctable.GopsutilLister{},
		Usage:           proctable.NewShared(),
		Bus:             d.bus,
		Sinks:           sinks,
		Logger:          d.logger.With("component", "supervisor"),
		RestartInterval: cfg.Restart.Interval,
		RestartAttempts: cfg.Restart.Attempts,
	})
	if err != nil {
		return nil, err
	}

	d.sched = schedule.New(d.sup, d.logger.With("component", "schedule"))
	for _, sc := range cfg.Schedules {
		e := schedule.Entry{
			Instance: sc.Instance,
			Spec:     sc.Cron,
			Action:   schedule.Action(sc.Action),
			Command:  sc.Command,
		}
		if err = d.sched.Add(e); err != nil {
			return nil, fmt.Errorf("add schedule: %w", err)
		}
	}

	d.router = server.NewRouter(server.Options{
		Supervisor: d.sup,
		Instances:  d.store,
		Bus:        d.bus,
		History:    querier,
		Schedules:  d.sched,
		BasePath:   cfg.Server.BasePath,
		Metrics:    cfg.Metrics.Enabled,
		Logger:     d.logger.With("component", "http"),
	})
	return d, nil
}

// serve runs the HTTP API on ln until ctx is done, then shuts everything
// down. With stopOnExit the workers are stopped too; otherwise they keep
// running and the next daemon finds them by directory.
func (d *daemon) serve(ctx context.Context, ln net.Listener, stopOnExit bool) error {
	srv := server.NewServer(ln.Addr().String(), d.router.Handler())

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	go func() {
		if err := d.store.Watch(watchCtx, func() { d.bus.Publish(events.StateChanged()) }); err != nil {
			d.logger.Warn("instance watcher stopped", "error", err)
		}
	}()

	d.sched.Start()

	errCh := make(chan error, 1)
	go func() {
		d.logger.Info("listening", "addr", ln.Addr().String(), "base_path", d.cfg.Server.BasePath)
		errCh <- srv.Serve(ln)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
	}

	d.logger.Info("shutting down", "stop_workers", stopOnExit)
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		d.logger.Warn("http shutdown", "error", err)
	}
	if err := d.sched.Stop(sctx); err != nil {
		d.logger.Warn("schedule shutdown", "error", err)
	}
	if err := d.sup.Shutdown(sctx, stopOnExit); err != nil {
		d.logger.Warn("supervisor shutdown", "error", err)
	}
	return serveErr
}

// close releases the history sink, the data dir lock and the log file.
func (d *daemon) close() {
	if d.sink != nil {
		if err := d.sink.Close(); err != nil && d.logger != nil {
			d.logger.Warn("close history sink", "error", err)
		}
	}
	if d.lock != nil {
		_ = d.lock.Unlock()
	}
	if d.logCloser != nil {
		_ = d.logCloser.Close()
	}
}

func runServeCommand(ctx context.Context, f *ServeFlags, args []string, w io.Writer) error {
	configPath := f.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	d, err := newDaemon(cfg, w)
	if err != nil {
		return err
	}
	defer d.close()

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Listen, err)
	}
	return d.serve(ctx, ln, f.StopOnExit)
}
