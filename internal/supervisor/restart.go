package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/nuko-mc/nuko/internal/history"
)

// Restart stops id, polls until no worker remains or the attempt budget is
// spent, then starts it again. A failed stop is not fatal; a worker that
// outlives the budget makes the start fail with ErrAlreadyRunning.
//
// ctx is only honoured up to the stop. Once the stop has been issued the
// wait and the start run to completion, so an instance is never left down
// by a caller that gave up.
func (s *Supervisor) Restart(ctx context.Context, id string) error {
	inst, err := s.resolve("restart", id)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return opErr("restart", id, err)
	}
	prev := s.pid(id)
	if err := s.Stop(ctx, id); err != nil {
		s.logger.Debug("stop before restart", "instance", id, "error", err)
	}
	ctx = context.WithoutCancel(ctx)

	t := time.NewTicker(s.restartInterval)
	defer t.Stop()
	for i := 0; i < s.restartAttempts; i++ {
		running, err := s.running(ctx, inst)
		if err == nil && !running {
			break
		}
		var exited <-chan struct{}
		if r := s.state.run(id); r != nil {
			exited = r.done
		}
		select {
		case <-exited:
		case <-t.C:
		}
	}

	if err := s.Start(ctx, id); err != nil {
		return err
	}
	detail := ""
	if prev > 0 {
		detail = fmt.Sprintf("replaced pid %d", prev)
	}
	s.record(history.EventRestart, inst, s.pid(id), detail)
	return nil
}
