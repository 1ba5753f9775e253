// Package proctable enumerates OS processes and associates them with
// instances by comparing each process' current working directory with the
// instance directory.
package proctable

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Proc is one OS process as seen by a snapshot.
type Proc struct {
	PID         int32   `json:"pid"`
	Cwd         string  `json:"cwd"`
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryBytes uint64  `json:"memory_bytes"`
}

// Lister enumerates processes.
type Lister interface {
	List(ctx context.Context) ([]Proc, error)
}

// ListerFunc adapts a function to Lister.
type ListerFunc func(ctx context.Context) ([]Proc, error)

func (f ListerFunc) List(ctx context.Context) ([]Proc, error) { return f(ctx) }

// GopsutilLister lists processes through gopsutil. Processes whose cwd cannot
// be read (exited, other users) are skipped. Usage is only filled when
// WithUsage is set, since it costs extra reads per process.
type GopsutilLister struct {
	WithUsage bool
}

func (l GopsutilLister) List(ctx context.Context) ([]Proc, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	self := int32(os.Getpid())
	out := make([]Proc, 0, len(procs))
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		cwd, err := p.CwdWithContext(ctx)
		if err != nil || cwd == "" {
			continue
		}
		pr := Proc{PID: p.Pid, Cwd: cwd}
		if l.WithUsage {
			if c, err := p.CPUPercentWithContext(ctx); err == nil {
				pr.CPUPercent = c
			}
			if m, err := p.MemoryInfoWithContext(ctx); err == nil && m != nil {
				pr.MemoryBytes = m.RSS
			}
		}
		out = append(out, pr)
	}
	return out, nil
}

// Snapshot is a point-in-time process table. It is not kept current; take a
// new one before every decision.
type Snapshot struct {
	Taken time.Time
	procs []Proc
}

// Take lists processes through l.
func Take(ctx context.Context, l Lister) (*Snapshot, error) {
	procs, err := l.List(ctx)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Taken: time.Now(), procs: procs}, nil
}

// NewSnapshot wraps an already listed table.
func NewSnapshot(procs []Proc) *Snapshot {
	return &Snapshot{Taken: time.Now(), procs: procs}
}

// Len returns the number of processes in the snapshot.
func (s *Snapshot) Len() int { return len(s.procs) }

// Matching returns every process whose cwd equals dir.
func (s *Snapshot) Matching(dir string) []Proc {
	m := newMatcher(dir)
	var out []Proc
	for _, p := range s.procs {
		if m.match(p.Cwd) {
			out = append(out, p)
		}
	}
	return out
}

// Any reports whether at least one process runs in dir.
func (s *Snapshot) Any(dir string) bool {
	m := newMatcher(dir)
	for _, p := range s.procs {
		if m.match(p.Cwd) {
			return true
		}
	}
	return false
}

// matcher compares against both the cleaned and the symlink-resolved form of
// dir, since the kernel reports resolved paths.
type matcher struct {
	clean, resolved string
}

func newMatcher(dir string) matcher {
	m := matcher{clean: filepath.Clean(dir)}
	if r, err := filepath.EvalSymlinks(m.clean); err == nil {
		m.resolved = r
	}
	return m
}

func (m matcher) match(cwd string) bool {
	if cwd == "" {
		return false
	}
	c := filepath.Clean(cwd)
	return c == m.clean || (m.resolved != "" && c == m.resolved)
}
