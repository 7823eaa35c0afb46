// Package progress fans measurement progress out to renderers and loggers
// without ever blocking the session that produces it.
package progress

import (
	"sync"
	"sync/atomic"
	"time"

	"netcheck/pkg/speedtest"
)

// Event is a progress update stamped with the time it was published.
//
// Contract:
//   - Publish never blocks.
//   - Subscribers get buffered channels.
//   - Slow subscribers drop events; fractions within a phase only grow, so a
//     dropped event is superseded by the next one.
type Event struct {
	speedtest.ProgressEvent
	Time time.Time
}

// Bus is an in-memory fanout that also satisfies speedtest.ProgressSink.
// It owns no goroutines.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	seq     atomic.Uint64
	dropped atomic.Uint64
}

var _ speedtest.ProgressSink = (*Bus)(nil)

// New returns an empty bus.
func New() *Bus {
	return &Bus{subs: map[uint64]chan Event{}}
}

// Progress implements speedtest.ProgressSink.
func (b *Bus) Progress(ev speedtest.ProgressEvent) {
	b.Publish(Event{ProgressEvent: ev})
}

// Publish delivers e to every subscriber that has room for it.
func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// Snapshot subscribers so Publish doesn't hold locks while attempting sends.
	b.mu.RLock()
	chs := make([]chan Event, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// A subscriber may unsubscribe (and close) concurrently; recover from
		// the send-on-closed panic.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- e:
			default:
				b.dropped.Add(1)
			}
		}()
	}
}

// Subscribe registers a buffered subscriber. unsubscribe closes the channel
// and is safe to call more than once.
func (b *Bus) Subscribe(buffer int) (ch <-chan Event, unsubscribe func()) {
	if buffer <= 0 {
		buffer = 32
	}
	c := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = c
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(c)
		})
	}
	return c, unsub
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }
