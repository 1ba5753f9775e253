// Package nuko embeds the instance manager: instance storage, worker
// supervision, scheduling and the HTTP API, behind a small stable surface.
package nuko

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nuko-mc/nuko/internal/events"
	"github.com/nuko-mc/nuko/internal/history"
	"github.com/nuko-mc/nuko/internal/history/factory"
	"github.com/nuko-mc/nuko/internal/instance"
	"github.com/nuko-mc/nuko/internal/metrics"
	"github.com/nuko-mc/nuko/internal/proctable"
	"github.com/nuko-mc/nuko/internal/schedule"
	"github.com/nuko-mc/nuko/internal/server"
	"github.com/nuko-mc/nuko/internal/supervisor"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Instance = instance.Instance

type CreateRequest = instance.CreateRequest

type InstanceInfo = supervisor.InstanceInfo

type Sample = metrics.Sample

type Event = events.Event

type HistoryEvent = history.Event

type HistorySink = history.Sink

type HistoryQuerier = history.Querier

type ScheduleEntry = schedule.Entry

var (
	ErrNotFound           = supervisor.ErrNotFound
	ErrExists             = instance.ErrExists
	ErrInvalidName        = instance.ErrInvalidName
	ErrAlreadyRunning     = supervisor.ErrAlreadyRunning
	ErrNotRunning         = supervisor.ErrNotRunning
	ErrChannelUnavailable = supervisor.ErrChannelUnavailable
	ErrSpawnFailed        = supervisor.ErrSpawnFailed
	ErrShuttingDown       = supervisor.ErrShuttingDown
)

// ErrorKind returns the stable tag the HTTP API reports for err.
func ErrorKind(err error) string { return supervisor.Kind(err) }

// Options configures a Manager. Only DataDir is usually needed.
type Options struct {
	DataDir string
	Logger  *slog.Logger
	History []HistorySink
}

// Manager is a thin facade over the instance store and the supervisor.
type Manager struct {
	store *instance.Store
	sup   *supervisor.Supervisor
	bus   *events.Bus
	sched *schedule.Scheduler
}

func New(opts Options) (*Manager, error) {
	store, err := instance.NewStore(opts.DataDir, opts.Logger)
	if err != nil {
		return nil, err
	}
	bus := events.NewBus()
	sup, err := supervisor.New(supervisor.Options{
		Instances: store,
		Usage:     proctable.NewShared(),
		Bus:       bus,
		Sinks:     opts.History,
		Logger:    opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	return &Manager{store: store, sup: sup, bus: bus, sched: schedule.New(sup, opts.Logger)}, nil
}

func (m *Manager) DataDir() string                            { return m.store.Root() }
func (m *Manager) Create(req CreateRequest) (Instance, error) { return m.store.Create(req) }
func (m *Manager) Resolve(id string) (Instance, error)        { return m.store.Resolve(id) }
func (m *Manager) List(ctx context.Context) ([]InstanceInfo, error) {
	return m.sup.ListRunning(ctx)
}
func (m *Manager) Info(ctx context.Context, id string) (InstanceInfo, error) {
	return m.sup.Info(ctx, id)
}
func (m *Manager) Start(ctx context.Context, id string) error   { return m.sup.Start(ctx, id) }
func (m *Manager) Stop(ctx context.Context, id string) error    { return m.sup.Stop(ctx, id) }
func (m *Manager) Kill(ctx context.Context, id string) error    { return m.sup.Kill(ctx, id) }
func (m *Manager) Restart(ctx context.Context, id string) error { return m.sup.Restart(ctx, id) }
func (m *Manager) Status(ctx context.Context, id string) (bool, error) {
	return m.sup.Status(ctx, id)
}
func (m *Manager) Send(id, command string) error    { return m.sup.Send(id, command) }
func (m *Manager) Logs(id string) ([]string, error) { return m.sup.Logs(id) }
func (m *Manager) Metrics(ctx context.Context, id string) (Sample, error) {
	return m.sup.Metrics(ctx, id)
}

// Subscribe receives state changes and log lines until cancel is called.
func (m *Manager) Subscribe(buffer int) (<-chan Event, func()) { return m.bus.Subscribe(buffer) }

// Schedule registers a cron entry; entries run once StartSchedules is called.
func (m *Manager) Schedule(e ScheduleEntry) error { return m.sched.Add(e) }
func (m *Manager) StartSchedules()                { m.sched.Start() }

// Watch publishes a state change whenever an instance directory is added or
// removed. It blocks until ctx is done.
func (m *Manager) Watch(ctx context.Context) error {
	return m.store.Watch(ctx, func() { m.bus.Publish(events.StateChanged()) })
}

// Shutdown stops the schedules and, with stopWorkers, every worker this
// manager spawned.
func (m *Manager) Shutdown(ctx context.Context, stopWorkers bool) error {
	if err := m.sched.Stop(ctx); err != nil {
		return err
	}
	return m.sup.Shutdown(ctx, stopWorkers)
}

// Handler returns the HTTP API mounted at basePath. Pass a history querier
// (such as a sink from NewHistorySink) to serve /instances/:id/history.
func (m *Manager) Handler(basePath string, q HistoryQuerier) http.Handler {
	return server.NewRouter(server.Options{
		Supervisor: m.sup,
		Instances:  m.store,
		Bus:        m.bus,
		History:    q,
		Schedules:  m.sched,
		BasePath:   basePath,
		Metrics:    true,
	}).Handler()
}

// NewHistorySink opens a lifecycle sink for dsn: clickhouse://, postgres://,
// sqlite:// or a plain sqlite file path.
func NewHistorySink(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

// RegisterMetrics registers the instance collectors with r.
func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }

// RegisterMetricsDefault registers the collectors with the default registry.
func RegisterMetricsDefault() error { return metrics.Register(prometheus.DefaultRegisterer) }
