// Package schedule runs instance actions on cron expressions.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Action is what a schedule entry does to its instance.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionKill    Action = "kill"
	ActionRestart Action = "restart"
	ActionCommand Action = "command"
)

// DefaultTimeout bounds one scheduled action; restart polls for up to 30s by default.
const DefaultTimeout = time.Minute

// Actions is the subset of the supervisor a schedule drives.
type Actions interface {
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Kill(ctx context.Context, id string) error
	Restart(ctx context.Context, id string) error
	Send(id, text string) error
}

// Entry is one scheduled action.
type Entry struct {
	Instance string `json:"instance"`
	Spec     string `json:"cron"`
	Action   Action `json:"action"`
	Command  string `json:"command,omitempty"`
}

// Scheduled is an Entry with its next fire time.
type Scheduled struct {
	Entry
	Next time.Time `json:"next"`
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler wraps a cron runner. Overlapping runs of the same entry are skipped.
type Scheduler struct {
	c       *cron.Cron
	actions Actions
	logger  *slog.Logger
	timeout time.Duration

	mu      sync.Mutex
	entries map[cron.EntryID]Entry
}

func New(actions Actions, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{l: logger}
	return &Scheduler{
		c: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		actions: actions,
		logger:  logger,
		timeout: DefaultTimeout,
		entries: make(map[cron.EntryID]Entry),
	}
}

// Validate checks the action and the cron expression of e.
func Validate(e Entry) error {
	if e.Instance == "" {
		return errors.New("schedule requires an instance")
	}
	switch e.Action {
	case ActionStart, ActionStop, ActionKill, ActionRestart:
	case ActionCommand:
		if e.Command == "" {
			return fmt.Errorf("schedule for %s: command action requires a command", e.Instance)
		}
	default:
		return fmt.Errorf("schedule for %s: unknown action %q", e.Instance, e.Action)
	}
	if _, err := parser.Parse(e.Spec); err != nil {
		return fmt.Errorf("schedule for %s: invalid cron %q: %w", e.Instance, e.Spec, err)
	}
	return nil
}

// Add validates and registers e.
func (s *Scheduler) Add(e Entry) error {
	if err := Validate(e); err != nil {
		return err
	}
	id, err := s.c.AddFunc(e.Spec, func() { s.run(e) })
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[id] = e
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) Start() { s.c.Start() }

// Stop halts the scheduler and waits for running actions until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entries lists the registered entries ordered by next fire time.
func (s *Scheduler) Entries() []Scheduled {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Scheduled, 0, len(s.entries))
	for _, ce := range s.c.Entries() {
		if e, ok := s.entries[ce.ID]; ok {
			out = append(out, Scheduled{Entry: e, Next: ce.Next})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Next.Before(out[j].Next) })
	return out
}

func (s *Scheduler) run(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	var err error
	switch e.Action {
	case ActionStart:
		err = s.actions.Start(ctx, e.Instance)
	case ActionStop:
		err = s.actions.Stop(ctx, e.Instance)
	case ActionKill:
		err = s.actions.Kill(ctx, e.Instance)
	case ActionRestart:
		err = s.actions.Restart(ctx, e.Instance)
	case ActionCommand:
		err = s.actions.Send(e.Instance, e.Command)
	}
	if err != nil {
		s.logger.Warn("scheduled action failed", "instance", e.Instance, "action", e.Action, "error", err)
		return
	}
	s.logger.Info("scheduled action ran", "instance", e.Instance, "action", e.Action)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
