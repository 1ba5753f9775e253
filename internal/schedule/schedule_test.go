package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
	fail  error
}

func (r *recorder) add(s string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
	return r.fail
}

func (r *recorder) Start(_ context.Context, id string) error   { return r.add("start " + id) }
func (r *recorder) Stop(_ context.Context, id string) error    { return r.add("stop " + id) }
func (r *recorder) Kill(_ context.Context, id string) error    { return r.add("kill " + id) }
func (r *recorder) Restart(_ context.Context, id string) error { return r.add("restart " + id) }
func (r *recorder) Send(id, text string) error                 { return r.add("send " + id + " " + text) }

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestValidate(t *testing.T) {
	ok := []Entry{
		{Instance: "abc123", Spec: "0 4 * * *", Action: ActionRestart},
		{Instance: "abc123", Spec: "@daily", Action: ActionStop},
		{Instance: "abc123", Spec: "*/30 * * * * *", Action: ActionStart},
		{Instance: "abc123", Spec: "@every 30m", Action: ActionCommand, Command: "save-all"},
	}
	for _, e := range ok {
		assert.NoError(t, Validate(e), e.Spec)
	}
	bad := []Entry{
		{Spec: "@daily", Action: ActionStop},
		{Instance: "abc123", Spec: "@daily", Action: "reboot"},
		{Instance: "abc123", Spec: "@daily", Action: ActionCommand},
		{Instance: "abc123", Spec: "61 * * * *", Action: ActionKill},
		{Instance: "abc123", Spec: "", Action: ActionKill},
	}
	for _, e := range bad {
		assert.Error(t, Validate(e), "%+v", e)
	}
}

func TestRunDispatchesActions(t *testing.T) {
	r := &recorder{}
	s := New(r, nil)
	s.run(Entry{Instance: "a", Action: ActionStart})
	s.run(Entry{Instance: "a", Action: ActionStop})
	s.run(Entry{Instance: "a", Action: ActionKill})
	s.run(Entry{Instance: "a", Action: ActionRestart})
	s.run(Entry{Instance: "a", Action: ActionCommand, Command: "say hello"})
	assert.Equal(t, []string{"start a", "stop a", "kill a", "restart a", "send a say hello"}, r.snapshot())
}

func TestRunErrorIsNotFatal(t *testing.T) {
	r := &recorder{fail: errors.New("instance not running")}
	s := New(r, nil)
	s.run(Entry{Instance: "a", Action: ActionStop})
	assert.Len(t, r.snapshot(), 1)
}

func TestSchedulerFires(t *testing.T) {
	r := &recorder{}
	s := New(r, nil)
	require.NoError(t, s.Add(Entry{Instance: "abc123", Spec: "@every 1s", Action: ActionCommand, Command: "save-all"}))
	require.NoError(t, s.Add(Entry{Instance: "abc123", Spec: "0 4 * * *", Action: ActionRestart}))
	require.Error(t, s.Add(Entry{Instance: "abc123", Spec: "nonsense", Action: ActionRestart}))

	s.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	}()

	require.Eventually(t, func() bool {
		for _, c := range r.snapshot() {
			if c == "send abc123 save-all" {
				return true
			}
		}
		return false
	}, 3*time.Second, 20*time.Millisecond)

	entries := s.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, ActionCommand, entries[0].Action)
	assert.False(t, entries[1].Next.IsZero())
}
