package proctable

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotMatching(t *testing.T) {
	snap := NewSnapshot([]Proc{
		{PID: 10, Cwd: "/data/instances/survival"},
		{PID: 11, Cwd: "/data/instances/survival/"},
		{PID: 12, Cwd: "/data/instances/survival-2"},
		{PID: 13, Cwd: "/data/instances"},
		{PID: 14, Cwd: ""},
	})

	got := snap.Matching("/data/instances/survival")
	require.Len(t, got, 2)
	assert.Equal(t, int32(10), got[0].PID)
	assert.Equal(t, int32(11), got[1].PID)

	assert.True(t, snap.Any("/data/instances/survival-2"))
	assert.False(t, snap.Any("/data/instances/creative"))
	assert.Equal(t, 5, snap.Len())
}

func TestTakeUsesLister(t *testing.T) {
	called := 0
	l := ListerFunc(func(ctx context.Context) ([]Proc, error) {
		called++
		return []Proc{{PID: 1, Cwd: "/x"}}, nil
	})
	snap, err := Take(context.Background(), l)
	require.NoError(t, err)
	assert.Equal(t, 1, called)
	assert.True(t, snap.Any("/x"))
	assert.False(t, snap.Taken.IsZero())
}

func TestMatcherResolvesSymlinks(t *testing.T) {
	target := t.TempDir()
	link := filepath.Join(t.TempDir(), "link")
	require.NoError(t, os.Symlink(target, link))
	resolved, err := filepath.EvalSymlinks(target)
	require.NoError(t, err)

	snap := NewSnapshot([]Proc{{PID: 1, Cwd: resolved}})
	assert.True(t, snap.Any(link))
}

func startSleeper(t *testing.T, dir string) *exec.Cmd {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX sleep")
	}
	cmd := exec.Command("sleep", "10")
	cmd.Dir = dir
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})
	return cmd
}

func TestGopsutilListerFindsChildByCwd(t *testing.T) {
	dir := t.TempDir()
	cmd := startSleeper(t, dir)

	require.Eventually(t, func() bool {
		snap, err := Take(context.Background(), GopsutilLister{})
		if err != nil {
			return false
		}
		for _, p := range snap.Matching(dir) {
			if int(p.PID) == cmd.Process.Pid {
				return true
			}
		}
		return false
	}, 3*time.Second, 50*time.Millisecond)
}

func TestSharedUsage(t *testing.T) {
	dir := t.TempDir()
	cmd := startSleeper(t, dir)
	s := NewShared()

	require.Eventually(t, func() bool {
		procs, err := s.Usage(context.Background(), dir)
		if err != nil {
			return false
		}
		for _, p := range procs {
			if int(p.PID) == cmd.Process.Pid {
				return p.MemoryBytes > 0
			}
		}
		return false
	}, 3*time.Second, 50*time.Millisecond)
	assert.Greater(t, s.Tracked(), 0)

	procs, err := s.Usage(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, procs)
}
