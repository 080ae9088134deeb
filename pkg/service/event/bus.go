package event

import (
	"sync"
	"sync/atomic"

	"github.com/secmon-lab/anemone/pkg/domain/interfaces"
	"github.com/secmon-lab/anemone/pkg/domain/model"
)

// DefaultBufferSize is the per-subscriber queue length.
const DefaultBufferSize = 256

// Bus fans out the events of one agent. Publish never blocks: a subscriber
// whose queue is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan model.Event
	nextID int
	closed bool

	dropped atomic.Uint64
}

var _ interfaces.EventPublisher = &Bus{}

func NewBus() *Bus {
	return &Bus{subs: map[int]chan model.Event{}}
}

func (x *Bus) Publish(ev model.Event) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return
	}

	for _, ch := range x.subs {
		select {
		case ch <- ev:
		default:
			x.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber was
// behind.
func (x *Bus) Dropped() uint64 {
	return x.dropped.Load()
}

// Subscribe registers a receiver with a queue of size buffer. The returned
// function unsubscribes and closes the channel; it may be called repeatedly.
func (x *Bus) Subscribe(buffer int) (<-chan model.Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	ch := make(chan model.Event, buffer)

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		close(ch)
		return ch, func() {}
	}
	id := x.nextID
	x.nextID++
	x.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			x.mu.Lock()
			defer x.mu.Unlock()
			if sub, ok := x.subs[id]; ok {
				delete(x.subs, id)
				close(sub)
			}
		})
	}
}

// Close ends every subscription.
func (x *Bus) Close() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return
	}
	x.closed = true
	for id, ch := range x.subs {
		delete(x.subs, id)
		close(ch)
	}
}
