package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Kind identifies what an Event reports.
type Kind string

const (
	// KindStateChanged carries no payload; listeners refresh their instance list.
	KindStateChanged Kind = "instances-updated"
	// KindLog carries one line of worker output.
	KindLog Kind = "log"
)

// Event is published on the Bus.
type Event struct {
	Kind       Kind      `json:"kind"`
	InstanceID string    `json:"instance_id,omitempty"`
	Stream     string    `json:"stream,omitempty"`
	Line       string    `json:"line,omitempty"`
	Time       time.Time `json:"time"`
}

// StateChanged builds a state-changed event.
func StateChanged() Event { return Event{Kind: KindStateChanged, Time: time.Now()} }

// LogLine builds a log event for one output line.
func LogLine(id, stream, line string) Event {
	return Event{Kind: KindLog, InstanceID: id, Stream: stream, Line: line, Time: time.Now()}
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	next    uint64
	dropped atomic.Uint64
}

func NewBus() *Bus { return &Bus{subs: make(map[uint64]chan Event)} }

// Subscribe registers a listener with the given buffer size. The returned
// cancel func unregisters it and closes the channel; it is safe to call twice.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers e to every subscriber that has room for it.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of active subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }
