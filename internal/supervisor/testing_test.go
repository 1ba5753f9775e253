//go:build !windows

package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nuko-mc/nuko/internal/events"
	"github.com/nuko-mc/nuko/internal/history"
	"github.com/nuko-mc/nuko/internal/instance"
	"github.com/nuko-mc/nuko/internal/proctable"
)

// workerScript echoes its arguments, then echoes every stdin line and
// exits on "stop" or end of input.
const workerScript = `#!/bin/sh
echo "args: $*"
echo "cwd: $(pwd)"
echo "ready" >&2
while IFS= read -r line; do
  echo "got: $line"
  if [ "$line" = "stop" ]; then
    echo "stopping"
    exit 0
  fi
done
`

// sleeperScript ignores stdin and exits on SIGTERM.
const sleeperScript = `#!/bin/sh
echo "ready"
while true; do
  sleep 0.05
done
`

// stubbornScript ignores both the stop command and SIGTERM.
const stubbornScript = `#!/bin/sh
trap '' TERM
echo "ready"
while true; do
  sleep 0.05
done
`

// slowStopScript takes a while to exit after "stop".
const slowStopScript = `#!/bin/sh
echo "ready"
while IFS= read -r line; do
  if [ "$line" = "stop" ]; then
    sleep 0.4
    exit 0
  fi
done
`

func writeScript(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "fake-java.sh")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o700))
	return p
}

// fakeResolver serves a fixed set of instances.
type fakeResolver struct {
	mu   sync.Mutex
	byID map[string]instance.Instance
}

func (f *fakeResolver) Resolve(id string) (instance.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.byID[id]
	if !ok {
		return instance.Instance{}, fmt.Errorf("%w: %s", instance.ErrNotFound, id)
	}
	return inst, nil
}

func (f *fakeResolver) List() ([]instance.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]instance.Instance, 0, len(f.byID))
	for _, inst := range f.byID {
		out = append(out, inst)
	}
	return out, nil
}

func (f *fakeResolver) add(t *testing.T, id, name, java string) instance.Instance {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "instances", name)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	inst := instance.Instance{
		ID:   id,
		Name: name,
		Dir:  dir,
		Config: instance.Config{
			ID:   id,
			Name: name,
			Java: instance.JavaConfig{MinMemory: "2G", MaxMemory: "4G", JavaPath: java},
		},
	}
	f.mu.Lock()
	if f.byID == nil {
		f.byID = make(map[string]instance.Instance)
	}
	f.byID[id] = inst
	f.mu.Unlock()
	return inst
}

// memSink records history events.
type memSink struct {
	mu     sync.Mutex
	events []history.Event
}

func (m *memSink) Send(_ context.Context, e history.Event) error {
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
	return nil
}

func (m *memSink) Close() error { return nil }

func (m *memSink) types() []history.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]history.EventType, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

func (m *memSink) ofType(typ history.EventType) []history.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []history.Event
	for _, e := range m.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// emptyLister reports no processes, so only tracked runs count as running.
var emptyLister = proctable.ListerFunc(func(context.Context) ([]proctable.Proc, error) { return nil, nil })

type harness struct {
	sup  *Supervisor
	res  *fakeResolver
	bus  *events.Bus
	sink *memSink
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{res: &fakeResolver{}, bus: events.NewBus(), sink: &memSink{}}
	opts := Options{
		Instances:       h.res,
		Lister:          emptyLister,
		Bus:             h.bus,
		Sinks:           []history.Sink{h.sink},
		RestartInterval: 20 * time.Millisecond,
		RestartAttempts: 100,
	}
	if mutate != nil {
		mutate(&opts)
	}
	sup, err := New(opts)
	require.NoError(t, err)
	h.sup = sup
	t.Cleanup(func() {
		for _, id := range sup.state.runIDs() {
			_ = sup.Kill(context.Background(), id)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sup.Shutdown(ctx, true)
	})
	return h
}

func (h *harness) waitStopped(t *testing.T, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		running, err := h.sup.Status(context.Background(), id)
		return err == nil && !running
	}, 5*time.Second, 10*time.Millisecond, "worker %s did not exit", id)
}

func (h *harness) waitLog(t *testing.T, id, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		lines, err := h.sup.Logs(id)
		if err != nil {
			return false
		}
		for _, l := range lines {
			if strings.Contains(l, want) {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond, "log line %q never appeared", want)
}
