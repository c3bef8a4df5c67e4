// Package event provides in-process fan-out of run events to monitoring
// subscribers.
//
// The bus is a tap, not the primary delivery path: per-run event ordering
// guarantees come from the engine's synchronous sinks, while bus subscribers
// observe a best-effort firehose across all threads. Slow subscribers drop
// events rather than backpressure runs.
package event

import (
	"sync"
	"sync/atomic"
)

// Config configures bus behavior.
type Config struct {
	// BufferSize is the channel buffer size per subscription.
	// Default: 256
	BufferSize int

	// OnDrop is called when a subscriber's buffer is full and an event is
	// dropped for it.
	OnDrop func(subscriberID int64)
}

// DefaultConfig provides reasonable defaults.
var DefaultConfig = Config{
	BufferSize: 256,
}

// Bus is an in-memory fan-out bus for values of type T.
// Publish never blocks; each subscriber has a buffered channel and loses
// events it cannot keep up with.
type Bus[T any] struct {
	config Config

	mu   sync.RWMutex
	subs map[int64]*Subscription[T]

	nextID atomic.Int64
	closed atomic.Bool
}

// NewBus creates a new bus.
func NewBus[T any](config Config) *Bus[T] {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig.BufferSize
	}
	return &Bus[T]{
		config: config,
		subs:   make(map[int64]*Subscription[T]),
	}
}

// Subscription is an active subscription. Receive from C until it is closed.
type Subscription[T any] struct {
	id     int64
	ch     chan T
	closed bool
	bus    *Bus[T]
}

// C returns the subscription's receive channel. It is closed by Unsubscribe
// or by closing the bus.
func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

// Unsubscribe removes the subscription and closes its channel.
// Safe to call more than once.
func (s *Subscription[T]) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	delete(s.bus.subs, s.id)
	close(s.ch)
}

// Subscribe registers a new subscriber.
// Returns nil if the bus is closed.
func (b *Bus[T]) Subscribe() *Subscription[T] {
	if b.closed.Load() {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription[T]{
		id:  b.nextID.Add(1),
		ch:  make(chan T, b.config.BufferSize),
		bus: b,
	}
	b.subs[sub.id] = sub
	return sub
}

// Publish delivers a value to all subscribers without blocking.
// Subscribers whose buffers are full miss the value.
func (b *Bus[T]) Publish(v T) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		select {
		case sub.ch <- v:
		default:
			if b.config.OnDrop != nil {
				b.config.OnDrop(sub.id)
			}
		}
	}
}

// Close shuts down the bus and closes all subscriber channels.
// Safe to call more than once.
func (b *Bus[T]) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subs {
		sub.closed = true
		close(sub.ch)
		delete(b.subs, id)
	}
}

// Len returns the number of active subscriptions.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
