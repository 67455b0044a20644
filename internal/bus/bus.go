// Package bus implements the broadcast primitive used throughout the hub: a
// bounded, lossy, single-producer/multi-consumer ring buffer. A slow
// receiver never blocks the sender; instead it observes a Lagged signal the
// next time it reads and its cursor jumps forward to the oldest item still
// buffered.
//
// The ring is guarded by one mutex. Blocked receivers wait on a
// closed-and-replaced notify channel rather than a sync.Cond, so a Recv
// call can select between the notify channel and ctx.Done() without a
// helper goroutine per call.
package bus

import (
	"context"
	"sync"
)

// Bus is a bounded ring buffer of items shared by one or more senders and
// zero or more receivers. The zero value is not usable; construct with New.
type Bus[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity uint64
	head     uint64 // sequence number of the oldest item still buffered
	tail     uint64 // sequence number of the next item to be written
	senders  int
	readers  int
	closed   bool
	notify   chan struct{}
}

// New creates a Bus with the given capacity and one live sender reference.
// Capacity must be positive.
func New[T any](capacity int) *Bus[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Bus[T]{
		items:    make([]T, capacity),
		capacity: uint64(capacity),
		senders:  1,
		notify:   make(chan struct{}),
	}
}

// Send enqueues item for delivery to every subscribed receiver. If the ring
// is full, the oldest item is overwritten and every receiver whose cursor
// still pointed at it will observe a Lagged signal on its next Recv.
//
// Send reports whether at least one receiver was subscribed at the moment
// of the call. A false result is not an error: per spec, callers ignore it.
func (b *Bus[T]) Send(item T) bool {
	b.mu.Lock()
	idx := b.tail % b.capacity
	b.items[idx] = item
	b.tail++
	if b.tail-b.head > b.capacity {
		b.head = b.tail - b.capacity
	}
	hasReaders := b.readers > 0
	b.wakeLocked()
	b.mu.Unlock()
	return hasReaders
}

// AddSender registers an additional logical owner of the send half and
// returns the same Bus pointer (all senders share one ring). Pair with a
// matching Close call.
func (b *Bus[T]) AddSender() *Bus[T] {
	b.mu.Lock()
	b.senders++
	b.mu.Unlock()
	return b
}

// Close releases one sender reference. When the last sender reference is
// released, the bus transitions to closed: all current and future
// receivers observe Closed once they have drained buffered items.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	if b.senders > 0 {
		b.senders--
	}
	if b.senders == 0 && !b.closed {
		b.closed = true
		b.wakeLocked()
	}
	b.mu.Unlock()
}

// Subscribe creates a Receiver positioned at the current tail: it observes
// only items sent strictly after this call.
func (b *Bus[T]) Subscribe() *Receiver[T] {
	b.mu.Lock()
	b.readers++
	cursor := b.tail
	b.mu.Unlock()
	return &Receiver[T]{bus: b, cursor: cursor}
}

// wakeLocked closes the current notify channel (waking every blocked
// receiver) and installs a fresh one. Must be called with mu held.
func (b *Bus[T]) wakeLocked() {
	close(b.notify)
	b.notify = make(chan struct{})
}

// Receiver is an independent cursor into a Bus's ring buffer.
type Receiver[T any] struct {
	bus    *Bus[T]
	cursor uint64
}

// Recv blocks until the next item is available, a lag is detected, the bus
// closes, or ctx is done. Exactly one of (a non-zero item), lagged>0, or
// closed is meaningful per call; err is non-nil only on ctx cancellation.
func (r *Receiver[T]) Recv(ctx context.Context) (item T, lagged int, closed bool, err error) {
	for {
		r.bus.mu.Lock()
		if r.cursor < r.bus.head {
			skipped := r.bus.head - r.cursor
			r.cursor = r.bus.head
			r.bus.mu.Unlock()
			return item, int(skipped), false, nil
		}
		if r.cursor < r.bus.tail {
			idx := r.cursor % r.bus.capacity
			item = r.bus.items[idx]
			r.cursor++
			r.bus.mu.Unlock()
			return item, 0, false, nil
		}
		if r.bus.closed {
			r.bus.mu.Unlock()
			return item, 0, true, nil
		}
		ch := r.bus.notify
		r.bus.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return item, 0, false, ctx.Err()
		}
	}
}

// Close releases this receiver's slot. Subscriber sessions require no
// cleanup beyond this; it only affects the "has receivers" bookkeeping used
// by Send's return value.
func (r *Receiver[T]) Close() {
	r.bus.mu.Lock()
	if r.bus.readers > 0 {
		r.bus.readers--
	}
	r.bus.mu.Unlock()
}
