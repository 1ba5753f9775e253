// Package supervisor starts, stops and observes instance workers.
//
// A worker is identified primarily by the pid retained when it was spawned
// and secondarily by any OS process whose working directory is the instance
// directory, which finds workers left behind by a previous manager.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nuko-mc/nuko/internal/events"
	"github.com/nuko-mc/nuko/internal/history"
	"github.com/nuko-mc/nuko/internal/instance"
	"github.com/nuko-mc/nuko/internal/metrics"
	"github.com/nuko-mc/nuko/internal/proctable"
)

const (
	DefaultRestartInterval = 500 * time.Millisecond
	DefaultRestartAttempts = 60
	DefaultStopCommand     = "stop"

	historyTimeout = 2 * time.Second
)

// Resolver looks instances up by identifier.
type Resolver interface {
	Resolve(id string) (instance.Instance, error)
	List() ([]instance.Instance, error)
}

// Options configures a Supervisor. Instances is required.
type Options struct {
	Instances Resolver

	// Lister backs start/stop/kill/status decisions; a fresh table is taken each time.
	Lister proctable.Lister

	// Usage backs Metrics and is shared across calls.
	Usage metrics.UsageSource

	Bus    *events.Bus
	Sinks  []history.Sink
	Logger *slog.Logger
	State  *State

	RestartInterval time.Duration
	RestartAttempts int
	StopCommand     string
}

// InstanceInfo is an instance together with its run state.
type InstanceInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Dir      string `json:"dir"`
	Software string `json:"software"`
	Version  string `json:"version"`
	Loader   string `json:"loader,omitempty"`
	Running  bool   `json:"running"`
	PID      int    `json:"pid,omitempty"`

	// Attached is true when this manager holds the worker's command channel.
	Attached bool `json:"attached"`
}

type Supervisor struct {
	instances Resolver
	lister    proctable.Lister
	sampler   *metrics.Sampler
	bus       *events.Bus
	sinks     []history.Sink
	logger    *slog.Logger
	state     *State

	restartInterval time.Duration
	restartAttempts int
	stopCommand     string

	closing atomic.Bool
	reapers sync.WaitGroup
}

func New(opts Options) (*Supervisor, error) {
	if opts.Instances == nil {
		return nil, errors.New("supervisor: instances resolver is required")
	}
	if opts.Lister == nil {
		opts.Lister = proctable.GopsutilLister{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.State == nil {
		opts.State = NewState()
	}
	if opts.RestartInterval <= 0 {
		opts.RestartInterval = DefaultRestartInterval
	}
	if opts.RestartAttempts <= 0 {
		opts.RestartAttempts = DefaultRestartAttempts
	}
	if opts.StopCommand == "" {
		opts.StopCommand = DefaultStopCommand
	}
	return &Supervisor{
		instances:       opts.Instances,
		lister:          opts.Lister,
		sampler:         metrics.NewSampler(opts.Usage),
		bus:             opts.Bus,
		sinks:           opts.Sinks,
		logger:          opts.Logger,
		state:           opts.State,
		restartInterval: opts.RestartInterval,
		restartAttempts: opts.RestartAttempts,
		stopCommand:     opts.StopCommand,
	}, nil
}

// State exposes the registries, mainly for tests.
func (s *Supervisor) State() *State { return s.state }

func (s *Supervisor) resolve(op, id string) (instance.Instance, error) {
	inst, err := s.instances.Resolve(id)
	if err != nil {
		if errors.Is(err, instance.ErrNotFound) {
			return instance.Instance{}, opErr(op, id, err)
		}
		return instance.Instance{}, opErr(op, id, fmt.Errorf("%w: %w", ErrIO, err))
	}
	return inst, nil
}

// Start spawns the worker of id and returns without waiting for it to boot.
func (s *Supervisor) Start(ctx context.Context, id string) error {
	inst, err := s.resolve("start", id)
	if err != nil {
		return err
	}
	if s.closing.Load() {
		return opErr("start", id, ErrShuttingDown)
	}
	if !s.state.beginStart(id) {
		return opErr("start", id, ErrAlreadyRunning)
	}
	defer s.state.endStart(id)

	running, err := s.running(ctx, inst)
	if err != nil {
		return opErr("start", id, err)
	}
	if running {
		return opErr("start", id, ErrAlreadyRunning)
	}

	exe, args := instance.LaunchArgs(inst.Config)
	cmd := exec.Command(exe, args...)
	cmd.Dir = inst.Dir
	configureSysProcAttr(cmd)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return opErr("start", id, fmt.Errorf("%w: %w", ErrSpawnFailed, err))
	}
	stdout, stderr, closeWriters, err := outputPipes(cmd)
	if err != nil {
		_ = stdin.Close()
		return opErr("start", id, fmt.Errorf("%w: %w", ErrSpawnFailed, err))
	}
	err = cmd.Start()
	closeWriters()
	if err != nil {
		_ = stdout.Close()
		_ = stderr.Close()
		return opErr("start", id, fmt.Errorf("%w: %w", ErrSpawnFailed, err))
	}

	ch := newChannel(stdin)
	if old := s.state.putChannel(id, ch); old != nil {
		_ = old.Close()
	}
	buf := s.state.newLog(id)
	r := &run{pid: cmd.Process.Pid, cmd: cmd, started: time.Now(), done: make(chan struct{})}
	s.state.putRun(id, r)

	go relay(stdout, id, "stdout", buf, s.bus, s.logger)
	go relay(stderr, id, "stderr", buf, s.bus, s.logger)
	s.reapers.Add(1)
	go s.reap(inst, r, ch)

	metrics.IncStart(id)
	metrics.SetRunning(id, true)
	s.record(history.EventStart, inst, r.pid, "")
	s.bus.Publish(events.StateChanged())
	s.logger.Info("instance started", "instance", id, "name", inst.Name, "pid", r.pid, "dir", inst.Dir)
	return nil
}

// reap is the single authority on worker exit. It retires the run as soon
// as the process is waited for; the relays drain on their own, since a
// grandchild may keep the output pipes open past the worker's exit.
func (s *Supervisor) reap(inst instance.Instance, r *run, ch *Channel) {
	defer s.reapers.Done()
	werr := r.cmd.Wait()

	s.state.removeChannelIf(inst.ID, ch)
	_ = ch.Close()
	s.state.dropRun(inst.ID, r)
	close(r.done)

	detail := ""
	if werr != nil {
		detail = werr.Error()
	}
	metrics.IncExit(inst.ID)
	metrics.SetRunning(inst.ID, false)
	s.record(history.EventExit, inst, r.pid, detail)
	s.bus.Publish(events.StateChanged())
	s.logger.Info("instance exited", "instance", inst.ID, "pid", r.pid,
		"uptime", time.Since(r.started).Round(time.Millisecond), "status", valOr(detail, "ok"))
}

// Stop asks the worker to shut down by writing the stop command to its
// stdin and returns without waiting for it to exit. Without a usable
// command channel it falls back to SIGTERM on every worker process.
func (s *Supervisor) Stop(ctx context.Context, id string) error {
	inst, err := s.resolve("stop", id)
	if err != nil {
		return err
	}
	if ch := s.state.takeChannel(id); ch != nil {
		werr := ch.WriteLine(s.stopCommand)
		_ = ch.Close()
		if werr == nil {
			s.stopped(inst, "graceful")
			return nil
		}
		s.logger.Debug("graceful stop failed, signalling", "instance", id, "error", werr)
	}
	n, err := s.signal(ctx, inst, sigTerm)
	if err != nil {
		return opErr("stop", id, err)
	}
	if n == 0 {
		return opErr("stop", id, ErrNotRunning)
	}
	s.stopped(inst, "signal")
	return nil
}

func (s *Supervisor) stopped(inst instance.Instance, mode string) {
	metrics.IncStop(inst.ID, mode)
	s.record(history.EventStop, inst, s.pid(inst.ID), mode)
	s.bus.Publish(events.StateChanged())
	s.logger.Info("instance stop requested", "instance", inst.ID, "mode", mode)
}

// Kill drops any command channel and sends SIGKILL to every worker process.
func (s *Supervisor) Kill(ctx context.Context, id string) error {
	inst, err := s.resolve("kill", id)
	if err != nil {
		return err
	}
	if ch := s.state.takeChannel(id); ch != nil {
		_ = ch.Close()
	}
	pid := s.pid(id)
	n, err := s.signal(ctx, inst, sigKill)
	if err != nil {
		return opErr("kill", id, err)
	}
	if n == 0 {
		return opErr("kill", id, ErrNotRunning)
	}
	metrics.IncKill(id)
	s.record(history.EventKill, inst, pid, "")
	s.bus.Publish(events.StateChanged())
	s.logger.Warn("instance killed", "instance", id, "processes", n)
	return nil
}

// Status reports whether a worker of id is running.
func (s *Supervisor) Status(ctx context.Context, id string) (bool, error) {
	inst, err := s.resolve("status", id)
	if err != nil {
		return false, err
	}
	running, err := s.running(ctx, inst)
	if err != nil {
		return false, opErr("status", id, err)
	}
	return running, nil
}

// Info returns the instance of id with its run state.
func (s *Supervisor) Info(ctx context.Context, id string) (InstanceInfo, error) {
	inst, err := s.resolve("info", id)
	if err != nil {
		return InstanceInfo{}, err
	}
	snap, err := proctable.Take(ctx, s.lister)
	if err != nil {
		return InstanceInfo{}, opErr("info", id, fmt.Errorf("%w: %w", ErrIO, err))
	}
	return s.info(inst, snap), nil
}

// ListRunning returns every configured instance with its running flag,
// decided from a single process table.
func (s *Supervisor) ListRunning(ctx context.Context) ([]InstanceInfo, error) {
	all, err := s.instances.List()
	if err != nil {
		return nil, opErr("list", "", fmt.Errorf("%w: %w", ErrIO, err))
	}
	snap, err := proctable.Take(ctx, s.lister)
	if err != nil {
		return nil, opErr("list", "", fmt.Errorf("%w: %w", ErrIO, err))
	}
	out := make([]InstanceInfo, 0, len(all))
	for _, inst := range all {
		out = append(out, s.info(inst, snap))
	}
	return out, nil
}

func (s *Supervisor) info(inst instance.Instance, snap *proctable.Snapshot) InstanceInfo {
	ii := InstanceInfo{
		ID:       inst.ID,
		Name:     inst.Name,
		Dir:      inst.Dir,
		Software: inst.Config.Software,
		Version:  inst.Config.Version,
		Loader:   inst.Config.Loader,
		Attached: s.state.HasChannel(inst.ID),
	}
	if r := s.state.run(inst.ID); r != nil {
		ii.Running, ii.PID = true, r.pid
		return ii
	}
	if m := snap.Matching(inst.Dir); len(m) > 0 {
		ii.Running, ii.PID = true, int(m[0].PID)
	}
	return ii
}

// Logs returns the output of the most recent run of id in order. The
// buffer stays readable after the worker exits.
func (s *Supervisor) Logs(id string) ([]string, error) {
	if b, ok := s.state.log(id); ok {
		return b.Lines(), nil
	}
	if _, err := s.resolve("logs", id); err != nil {
		return nil, err
	}
	return []string{}, nil
}

// LogsSince returns the lines of the current run from offset on, the
// offset to continue from and the run's log generation. An offset taken
// from another generation (gen != 0 and not current) starts over at 0.
func (s *Supervisor) LogsSince(id string, gen uint64, offset int) ([]string, int, uint64, error) {
	if b, ok := s.state.log(id); ok {
		if gen != 0 && gen != b.Gen() {
			offset = 0
		}
		lines, next := b.Since(offset)
		return lines, next, b.Gen(), nil
	}
	if _, err := s.resolve("logs", id); err != nil {
		return nil, 0, 0, err
	}
	return []string{}, 0, 0, nil
}

// Metrics samples CPU and memory across every process running in the
// instance directory.
func (s *Supervisor) Metrics(ctx context.Context, id string) (metrics.Sample, error) {
	inst, err := s.resolve("metrics", id)
	if err != nil {
		return metrics.Sample{}, err
	}
	sample, err := s.sampler.Sample(ctx, id, inst.Dir)
	if err != nil {
		return metrics.Sample{}, opErr("metrics", id, fmt.Errorf("%w: %w", ErrIO, err))
	}
	return sample, nil
}

// Send writes one command line to the worker's stdin. A failed write drops
// the channel.
func (s *Supervisor) Send(id, text string) error {
	if _, err := s.resolve("send", id); err != nil {
		return err
	}
	ch := s.state.channel(id)
	if ch == nil {
		return opErr("send", id, ErrChannelUnavailable)
	}
	if err := ch.WriteLine(text); err != nil {
		if s.state.removeChannelIf(id, ch) {
			_ = ch.Close()
		}
		return opErr("send", id, fmt.Errorf("%w: %w", ErrIO, err))
	}
	return nil
}

// Shutdown stops accepting starts. With stopWorkers it stops every worker
// this manager spawned and waits for their reapers until ctx is done;
// otherwise workers are left running and will be found again by directory.
func (s *Supervisor) Shutdown(ctx context.Context, stopWorkers bool) error {
	s.closing.Store(true)
	if !stopWorkers {
		return nil
	}
	for _, id := range s.state.runIDs() {
		if err := s.Stop(ctx, id); err != nil && !errors.Is(err, ErrNotRunning) {
			s.logger.Warn("stop on shutdown failed", "instance", id, "error", err)
		}
	}
	done := make(chan struct{})
	go func() {
		s.reapers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return opErr("shutdown", "", ctx.Err())
	}
}

// running reports whether the tracked run of inst is alive or any process
// runs in its directory.
func (s *Supervisor) running(ctx context.Context, inst instance.Instance) (bool, error) {
	if s.state.run(inst.ID) != nil {
		return true, nil
	}
	snap, err := proctable.Take(ctx, s.lister)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return snap.Any(inst.Dir), nil
}

func (s *Supervisor) pid(id string) int {
	if r := s.state.run(id); r != nil {
		return r.pid
	}
	return 0
}

// signal sends sig to the tracked worker's process group and to every
// process in the instance directory, and returns how many were signalled.
func (s *Supervisor) signal(ctx context.Context, inst instance.Instance, sig syscall.Signal) (int, error) {
	self := os.Getpid()
	seen := map[int]bool{self: true}
	n := 0
	if r := s.state.run(inst.ID); r != nil {
		seen[r.pid] = true
		if err := signalGroup(r.pid, sig); err == nil {
			n++
		} else {
			s.logger.Debug("signal failed", "instance", inst.ID, "pid", r.pid, "error", err)
		}
	}
	snap, err := proctable.Take(ctx, s.lister)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrIO, err)
	}
	for _, p := range snap.Matching(inst.Dir) {
		pid := int(p.PID)
		if seen[pid] {
			continue
		}
		seen[pid] = true
		if err := signalPID(pid, sig); err == nil {
			n++
		} else {
			s.logger.Debug("signal failed", "instance", inst.ID, "pid", pid, "error", err)
		}
	}
	return n, nil
}

func (s *Supervisor) record(typ history.EventType, inst instance.Instance, pid int, detail string) {
	if len(s.sinks) == 0 {
		return
	}
	e := history.Event{
		Type:       typ,
		InstanceID: inst.ID,
		Name:       inst.Name,
		PID:        pid,
		OccurredAt: time.Now().UTC(),
		Detail:     detail,
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	for _, sink := range s.sinks {
		if err := sink.Send(ctx, e); err != nil {
			s.logger.Warn("history send failed", "instance", inst.ID, "type", typ, "error", err)
		}
	}
}

func valOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
