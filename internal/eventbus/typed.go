// Package eventbus implements the publish/subscribe channel used to fan out
// engine notifications. A bus is created per simulation run and injected
// into its producers and consumers; there is no package-level instance.
package eventbus

import (
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the channel capacity used by Subscribe.
const DefaultBuffer = 64

type subscriber[T any] struct {
	ch       chan T
	reliable bool
	// gone is closed by Unsubscribe so a publisher blocked on a reliable
	// subscriber gives up before the channel is removed.
	gone chan struct{}
	once sync.Once
}

func (s *subscriber[T]) leave() { s.once.Do(func() { close(s.gone) }) }

// TypedBus is a type-safe publish/subscribe bus for events of type T.
type TypedBus[T any] struct {
	mu      sync.RWMutex
	subs    []*subscriber[T]
	closed  bool
	dropped atomic.Uint64
}

// NewTyped creates a new TypedBus.
func NewTyped[T any]() *TypedBus[T] { return &TypedBus[T]{} }

// Publish sends the event to all subscribers. Delivery to a regular
// subscriber is non-blocking: when its buffer is full it misses the event
// and the drop is counted. Delivery to a reliable subscriber waits until
// it has room or unsubscribes.
func (b *TypedBus[T]) Publish(e T) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		if s.reliable {
			select {
			case s.ch <- e:
			case <-s.gone:
			}
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscriber with the default buffer.
func (b *TypedBus[T]) Subscribe() <-chan T {
	return b.SubscribeBuffered(DefaultBuffer)
}

// SubscribeBuffered registers a subscriber with a buffer of size n.
func (b *TypedBus[T]) SubscribeBuffered(n int) <-chan T {
	return b.subscribe(n, false)
}

// SubscribeReliable registers a subscriber that never misses an event.
// Publishers block while its buffer of size n is full, so the consumer
// must keep reading until it unsubscribes or the bus is closed.
func (b *TypedBus[T]) SubscribeReliable(n int) <-chan T {
	return b.subscribe(n, true)
}

func (b *TypedBus[T]) subscribe(n int, reliable bool) <-chan T {
	if n < 0 {
		n = 0
	}
	s := &subscriber[T]{ch: make(chan T, n), reliable: reliable, gone: make(chan struct{})}
	b.mu.Lock()
	if b.closed {
		close(s.ch)
	} else {
		b.subs = append(b.subs, s)
	}
	b.mu.Unlock()
	return s.ch
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *TypedBus[T]) Unsubscribe(sub <-chan T) {
	b.mu.RLock()
	var found *subscriber[T]
	for _, s := range b.subs {
		if s.ch == sub {
			found = s
			break
		}
	}
	b.mu.RUnlock()
	if found == nil {
		return
	}
	// Release a publisher blocked on found before taking the write lock.
	found.leave()

	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == found {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			if !b.closed {
				close(s.ch)
			}
			return
		}
	}
}

// Dropped returns how many deliveries were skipped because a subscriber
// was not keeping up.
func (b *TypedBus[T]) Dropped() uint64 { return b.dropped.Load() }

// Close closes the bus and all subscriber channels.
func (b *TypedBus[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subs {
		close(s.ch)
	}
	b.subs = nil
}
