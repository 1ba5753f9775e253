package metrics

import (
	"context"
	"time"

	"github.com/nuko-mc/nuko/internal/proctable"
)

// Sample is a point-in-time resource reading for one instance.
type Sample struct {
	Time        time.Time `json:"time"`
	CPUPercent  float64   `json:"cpu_percent"`
	MemoryBytes uint64    `json:"memory_bytes"`
	Processes   int       `json:"processes"`
}

// UsageSource returns usage for every process running in dir.
type UsageSource interface {
	Usage(ctx context.Context, dir string) ([]proctable.Proc, error)
}

// Sampler aggregates usage across all processes of an instance directory.
type Sampler struct {
	src UsageSource
	now func() time.Time
}

// NewSampler returns a Sampler over src; a nil src uses a fresh proctable.Shared.
func NewSampler(src UsageSource) *Sampler {
	if src == nil {
		src = proctable.NewShared()
	}
	return &Sampler{src: src, now: time.Now}
}

// Sample sums CPU and memory over every process whose cwd is dir. No
// matching process yields a zero sample, not an error.
func (s *Sampler) Sample(ctx context.Context, id, dir string) (Sample, error) {
	procs, err := s.src.Usage(ctx, dir)
	if err != nil {
		return Sample{}, err
	}
	out := Sample{Time: s.now(), Processes: len(procs)}
	for _, p := range procs {
		out.CPUPercent += p.CPUPercent
		out.MemoryBytes += p.MemoryBytes
	}
	SetUsage(id, out.CPUPercent, out.MemoryBytes)
	return out, nil
}
