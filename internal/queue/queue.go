// Package queue provides the bounded latest-wins buffer between frame ingestion and inference.
package queue

import (
	"sync"
)

// DefaultCapacity keeps end-to-end latency at one frame under a slow consumer.
const DefaultCapacity = 1

// Stats reports queue activity since creation.
type Stats struct {
	Enqueued uint64 `json:"enqueued"`
	Dequeued uint64 `json:"dequeued"`
	Dropped  uint64 `json:"dropped"`
	Pending  int    `json:"pending"`
	Capacity int    `json:"capacity"`
}

// Queue is a bounded FIFO that evicts its oldest entry when full.
//
// Enqueue never blocks. Dequeue blocks a single consumer until an entry or the
// stop sentinel is available.
type Queue[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []T
	capacity int
	stopped  bool // sentinel inserted, no further entries accepted
	onEvict  func(T)

	enqueued uint64
	dequeued uint64
	dropped  uint64
}

// New creates a queue holding at most capacity entries.
// onEvict, when non-nil, receives every entry that is dropped without being dequeued.
func New[T any](capacity int, onEvict func(T)) *Queue[T] {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	q := &Queue[T]{
		items:    make([]T, 0, capacity),
		capacity: capacity,
		onEvict:  onEvict,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue inserts v, evicting the oldest entry first when the queue is full.
// It reports whether an entry was evicted. After Stop, v is released immediately.
func (q *Queue[T]) Enqueue(v T) bool {
	q.mu.Lock()

	if q.stopped {
		q.mu.Unlock()
		q.evict(v)
		return false
	}

	var (
		evicted  T
		overflow bool
	)
	if len(q.items) >= q.capacity {
		evicted = q.items[0]
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		q.dropped++
		overflow = true
	}

	q.items = append(q.items, v)
	q.enqueued++
	q.cond.Signal()
	q.mu.Unlock()

	if overflow {
		q.evict(evicted)
	}
	return overflow
}

// Dequeue blocks until an entry is available and returns it.
// It returns false once the stop sentinel has been reached.
func (q *Queue[T]) Dequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.stopped {
		q.cond.Wait()
	}

	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	v := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	q.dequeued++
	return v, true
}

// Stop drains pending entries and places the sentinel that ends the consumer loop.
// Calling Stop more than once is a no-op.
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}

	pending := q.items
	q.items = make([]T, 0, q.capacity)
	q.dropped += uint64(len(pending))
	q.stopped = true
	q.cond.Broadcast()
	q.mu.Unlock()

	for _, v := range pending {
		q.evict(v)
	}
}

// Len returns the number of pending entries.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the configured bound.
func (q *Queue[T]) Cap() int {
	return q.capacity
}

// Stats returns a snapshot of the counters.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Enqueued: q.enqueued,
		Dequeued: q.dequeued,
		Dropped:  q.dropped,
		Pending:  len(q.items),
		Capacity: q.capacity,
	}
}

func (q *Queue[T]) evict(v T) {
	if q.onEvict != nil {
		q.onEvict(v)
	}
}
