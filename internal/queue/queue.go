// Package queue is a bounded priority batch queue. Producers enqueue
// tagged requests; a drainer pulls batches, high priority first, with a
// timeout after which a partial batch is released anyway.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/jmolinaso/voxbridge/internal/fault"
)

// Priority orders queued requests. Higher drains first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// ParsePriority maps the wire names to a Priority. Unknown names are
// normal.
func ParsePriority(s string) Priority {
	switch s {
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

const (
	defaultCapacity     = 1024
	defaultBatchSize    = 16
	defaultBatchTimeout = 50 * time.Millisecond
)

// Queue is a bounded three-level priority queue. Within one level,
// order is FIFO.
type Queue[T any] struct {
	capacity     int
	batchSize    int
	batchTimeout time.Duration

	mu     sync.Mutex
	levels [3][]T
	size   int

	// notify wakes a waiting drainer; buffered so enqueue never blocks.
	notify chan struct{}
}

// Options tunes the queue. Zero values take the defaults.
type Options struct {
	Capacity     int
	BatchSize    int
	BatchTimeout time.Duration
}

// New builds an empty queue.
func New[T any](opts Options) *Queue[T] {
	if opts.Capacity <= 0 {
		opts.Capacity = defaultCapacity
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = defaultBatchTimeout
	}
	return &Queue[T]{
		capacity:     opts.Capacity,
		batchSize:    opts.BatchSize,
		batchTimeout: opts.BatchTimeout,
		notify:       make(chan struct{}, 1),
	}
}

// Enqueue adds an item. A full queue fails rate_limited; the caller
// surfaces that as backpressure.
func (q *Queue[T]) Enqueue(item T, p Priority) error {
	q.mu.Lock()
	if q.size >= q.capacity {
		q.mu.Unlock()
		return fault.New(fault.KindRateLimited, "queue", "queue is full")
	}
	q.levels[levelIndex(p)] = append(q.levels[levelIndex(p)], item)
	q.size++
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Len returns the number of queued items across all levels.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Drain blocks until at least one item is available, then waits up to
// the batch timeout for a full batch. High priority drains before
// normal, normal before low. Returns ctx.Err() on cancellation.
func (q *Queue[T]) Drain(ctx context.Context) ([]T, error) {
	// Wait for the first item.
	for {
		if batch := q.take(q.batchSize); len(batch) > 0 {
			if len(batch) == q.batchSize {
				return batch, nil
			}
			return q.fill(ctx, batch), nil
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// fill tops up a partial batch until the batch timeout expires.
func (q *Queue[T]) fill(ctx context.Context, batch []T) []T {
	timer := time.NewTimer(q.batchTimeout)
	defer timer.Stop()
	for len(batch) < q.batchSize {
		select {
		case <-q.notify:
			batch = append(batch, q.take(q.batchSize-len(batch))...)
		case <-timer.C:
			return batch
		case <-ctx.Done():
			return batch
		}
	}
	return batch
}

// take removes up to n items, highest priority first.
func (q *Queue[T]) take(n int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []T
	for _, idx := range []int{levelIndex(PriorityHigh), levelIndex(PriorityNormal), levelIndex(PriorityLow)} {
		for len(q.levels[idx]) > 0 && len(out) < n {
			out = append(out, q.levels[idx][0])
			q.levels[idx] = q.levels[idx][1:]
			q.size--
		}
	}
	return out
}

func levelIndex(p Priority) int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityNormal:
		return 1
	default:
		return 2
	}
}

// Run drains batches into handler until ctx is canceled. Intended to
// run as the single drainer goroutine.
func (q *Queue[T]) Run(ctx context.Context, handler func(context.Context, []T)) {
	for {
		batch, err := q.Drain(ctx)
		if err != nil {
			return
		}
		handler(ctx, batch)
	}
}
