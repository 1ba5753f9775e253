package supervisor

import (
	"os/exec"
	"sync"
	"time"
)

// run is one spawned worker, alive until its reaper retires it. done is
// closed once the run is no longer registered.
type run struct {
	pid     int
	cmd     *exec.Cmd
	started time.Time
	done    chan struct{}
}

// State holds the supervisor's registries. Each map has its own lock and
// every critical section is a single lookup, insert or delete.
type State struct {
	chMu     sync.Mutex
	channels map[string]*Channel

	logMu  sync.Mutex
	logs   map[string]*LogBuffer
	logGen uint64

	runMu    sync.Mutex
	runs     map[string]*run
	starting map[string]struct{}
}

func NewState() *State {
	return &State{
		channels: make(map[string]*Channel),
		logs:     make(map[string]*LogBuffer),
		runs:     make(map[string]*run),
		starting: make(map[string]struct{}),
	}
}

// putChannel registers ch for id and returns the registration it replaced.
func (s *State) putChannel(id string, ch *Channel) *Channel {
	s.chMu.Lock()
	defer s.chMu.Unlock()
	old := s.channels[id]
	s.channels[id] = ch
	return old
}

func (s *State) channel(id string) *Channel {
	s.chMu.Lock()
	defer s.chMu.Unlock()
	return s.channels[id]
}

// takeChannel removes and returns the channel registered for id.
func (s *State) takeChannel(id string) *Channel {
	s.chMu.Lock()
	defer s.chMu.Unlock()
	ch := s.channels[id]
	delete(s.channels, id)
	return ch
}

// removeChannelIf removes the registration for id only if it is still ch.
func (s *State) removeChannelIf(id string, ch *Channel) bool {
	s.chMu.Lock()
	defer s.chMu.Unlock()
	if cur, ok := s.channels[id]; ok && cur == ch {
		delete(s.channels, id)
		return true
	}
	return false
}

// HasChannel reports whether a command channel is registered for id.
func (s *State) HasChannel(id string) bool { return s.channel(id) != nil }

// newLog installs an empty buffer for id, replacing the previous run's.
// Every buffer gets a generation no other buffer of this State shares.
func (s *State) newLog(id string) *LogBuffer {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	s.logGen++
	b := &LogBuffer{gen: s.logGen}
	s.logs[id] = b
	return b
}

func (s *State) log(id string) (*LogBuffer, bool) {
	s.logMu.Lock()
	defer s.logMu.Unlock()
	b, ok := s.logs[id]
	return b, ok
}

// beginStart marks id as starting; false if a start is already in flight.
func (s *State) beginStart(id string) bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if _, busy := s.starting[id]; busy {
		return false
	}
	s.starting[id] = struct{}{}
	return true
}

func (s *State) endStart(id string) {
	s.runMu.Lock()
	delete(s.starting, id)
	s.runMu.Unlock()
}

func (s *State) putRun(id string, r *run) {
	s.runMu.Lock()
	s.runs[id] = r
	s.runMu.Unlock()
}

func (s *State) run(id string) *run {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.runs[id]
}

func (s *State) dropRun(id string, r *run) {
	s.runMu.Lock()
	if s.runs[id] == r {
		delete(s.runs, id)
	}
	s.runMu.Unlock()
}

// runIDs returns the ids with a live run.
func (s *State) runIDs() []string {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	return ids
}
