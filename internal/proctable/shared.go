package proctable

import (
	"context"
	"os"
	"sync"

	"github.com/shirou/gopsutil/v4/process"
)

// Shared is a process table refreshed in place. It keeps gopsutil handles
// between refreshes so CPU percent is computed over the interval since the
// previous sample rather than over the whole process lifetime.
type Shared struct {
	mu      sync.Mutex
	handles map[int32]*process.Process
}

func NewShared() *Shared {
	return &Shared{handles: make(map[int32]*process.Process)}
}

// Usage refreshes the table and returns usage of every process running in dir.
func (s *Shared) Usage(ctx context.Context, dir string) ([]Proc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return nil, err
	}
	self := int32(os.Getpid())
	alive := make(map[int32]struct{}, len(pids))
	m := newMatcher(dir)
	var out []Proc
	for _, pid := range pids {
		if pid == self {
			continue
		}
		alive[pid] = struct{}{}
		h, ok := s.handles[pid]
		if !ok {
			h, err = process.NewProcessWithContext(ctx, pid)
			if err != nil {
				continue
			}
			s.handles[pid] = h
		}
		cwd, err := h.CwdWithContext(ctx)
		if err != nil || !m.match(cwd) {
			continue
		}
		p := Proc{PID: pid, Cwd: cwd}
		// first call on a new handle primes the counters and yields 0
		if c, err := h.PercentWithContext(ctx, 0); err == nil {
			p.CPUPercent = c
		}
		if mi, err := h.MemoryInfoWithContext(ctx); err == nil && mi != nil {
			p.MemoryBytes = mi.RSS
		}
		out = append(out, p)
	}
	for pid := range s.handles {
		if _, ok := alive[pid]; !ok {
			delete(s.handles, pid)
		}
	}
	return out, nil
}

// Tracked returns the number of cached process handles.
func (s *Shared) Tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}
