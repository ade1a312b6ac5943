// Package notify is a typed publish/subscribe bus. Subscribers receive on a
// buffered channel and must Unsubscribe when they lose interest.
package notify

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dmitrijs2005/marketkeeper/internal/logging"
)

// DefaultBuffer is the channel capacity used when NewBus gets zero.
const DefaultBuffer = 8

// Bus fans values of type T out to the subscribers of a topic.
type Bus[T any] struct {
	mu      sync.RWMutex
	subs    map[string]map[uint64]chan T
	next    uint64
	buffer  int
	closed  bool
	dropped atomic.Int64
	log     logging.Logger
}

// Subscription is one subscriber's view of a topic.
type Subscription[T any] struct {
	C <-chan T

	topic string
	id    uint64
	bus   *Bus[T]
	once  sync.Once
}

func NewBus[T any](log logging.Logger, buffer int) *Bus[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Bus[T]{subs: make(map[string]map[uint64]chan T), buffer: buffer, log: log}
}

// Subscribe registers a new subscriber. On a closed bus the returned
// channel is already closed.
func (b *Bus[T]) Subscribe(topic string) *Subscription[T] {
	ch := make(chan T, b.buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return &Subscription[T]{C: ch, topic: topic, bus: b}
	}

	b.next++
	id := b.next
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]chan T)
	}
	b.subs[topic][id] = ch
	return &Subscription[T]{C: ch, topic: topic, id: id, bus: b}
}

// Unsubscribe removes the subscriber and closes its channel. Safe to call
// more than once.
func (s *Subscription[T]) Unsubscribe() {
	s.once.Do(func() { s.bus.remove(s.topic, s.id) })
}

func (b *Bus[T]) remove(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subs[topic][id]
	if !ok {
		return
	}
	delete(b.subs[topic], id)
	if len(b.subs[topic]) == 0 {
		delete(b.subs, topic)
	}
	close(ch)
}

// Publish delivers v to every subscriber of topic without blocking. A
// subscriber whose buffer is full misses the value. Returns the number of
// subscribers that received it.
func (b *Bus[T]) Publish(topic string, v T) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, ch := range b.subs[topic] {
		select {
		case ch <- v:
			delivered++
		default:
			n := b.dropped.Add(1)
			b.log.Debug(context.Background(), "dropped notification for slow subscriber", "topic", topic, "dropped_total", n)
		}
	}
	return delivered
}

// Subscribers returns the number of live subscriptions on topic.
func (b *Bus[T]) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

// Dropped returns how many notifications were discarded so far.
func (b *Bus[T]) Dropped() int64 {
	return b.dropped.Load()
}

// Close unsubscribes everyone. Later Subscribe calls get closed channels.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for topic, subs := range b.subs {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(b.subs, topic)
	}
}
