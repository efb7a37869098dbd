package taskqueue

import (
	"context"
	"sync"
	"time"
)

// InMemoryQueue is a Queue backed by a buffered channel. Tasks with a future
// NotBefore are held by a timer and pushed when due. It is safe for
// concurrent use and intended for tests and single-process deployments.
type InMemoryQueue struct {
	ch      chan Task
	mu      sync.Mutex
	pending int
	closed  chan struct{}
	once    sync.Once
}

// NewInMemoryQueue creates a new queue with the given capacity. A modest
// capacity (e.g. 1024) is fine for tests and local runners.
func NewInMemoryQueue(capacity int) *InMemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &InMemoryQueue{
		ch:     make(chan Task, capacity),
		closed: make(chan struct{}),
	}
}

var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}

	delay := time.Until(t.NotBefore)
	if t.NotBefore.IsZero() || delay <= 0 {
		select {
		case q.ch <- t:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	q.mu.Lock()
	q.pending++
	q.mu.Unlock()

	time.AfterFunc(delay, func() {
		q.mu.Lock()
		q.pending--
		q.mu.Unlock()
		select {
		case q.ch <- t:
		case <-q.closed:
		}
	})
	return nil
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	select {
	case t := <-q.ch:
		return &t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ch) + q.pending
}

// Close releases any timer goroutines still waiting to deliver.
func (q *InMemoryQueue) Close() {
	q.once.Do(func() { close(q.closed) })
}
