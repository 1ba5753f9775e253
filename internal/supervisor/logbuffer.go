package supervisor

import "sync"

// LogBuffer is the ordered, append-only output of one run. It lives in
// memory only.
type LogBuffer struct {
	gen   uint64
	mu    sync.Mutex
	lines []string
}

// Gen identifies the run this buffer belongs to. Offsets are only
// meaningful within one generation.
func (b *LogBuffer) Gen() uint64 { return b.gen }

func (b *LogBuffer) Append(line string) {
	b.mu.Lock()
	b.lines = append(b.lines, line)
	b.mu.Unlock()
}

// Lines returns a copy of every line appended so far.
func (b *LogBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

// Since returns the lines from offset on, and the offset to continue from.
func (b *LogBuffer) Since(offset int) ([]string, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if offset < 0 || offset > len(b.lines) {
		offset = 0
	}
	out := make([]string, len(b.lines)-offset)
	copy(out, b.lines[offset:])
	return out, len(b.lines)
}

func (b *LogBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.lines)
}
