package catalog

import "sync"

const defaultSubscriberBuffer = 16

// Broker fans catalog events out to subscribers. A subscriber that falls
// behind loses events instead of stalling writers.
type Broker struct {
	mu     sync.Mutex
	subs   map[uint64]chan Event
	next   uint64
	buffer int
}

func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	return &Broker{
		subs:   make(map[uint64]chan Event),
		buffer: buffer,
	}
}

// Subscribe registers a listener. The returned cancel func unregisters it and
// closes the channel; calling it more than once is safe.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

// Publish delivers ev to every current subscriber without blocking.
// It reports how many subscribers received the event.
func (b *Broker) Publish(ev Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for _, ch := range b.subs {
		select {
		case ch <- ev:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
