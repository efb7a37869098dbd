package taskqueue

import (
	"context"
	"time"

	"github.com/petrijr/genflow/pkg/api"
)

// Task is one queued control message awaiting worker processing. The engine
// itself never consumes tasks; a worker dequeues them and feeds the envelope
// to the dispatcher.
type Task struct {
	ID       string                        `json:"id"`
	Envelope api.FlowInvokeEnvelopeMessage `json:"envelope"`

	EnqueuedAt time.Time `json:"enqueuedAt"`

	// NotBefore is the earliest time this task becomes eligible for
	// processing. Zero means immediately. Scheduled flows ride on this:
	// the worker enqueues the runScheduled follow-up with
	// NotBefore = now + delay.
	NotBefore time.Time `json:"notBefore,omitempty"`

	// Attempts counts how many times a worker has tried this task. Used by
	// the worker's bounded re-enqueue retry for engine-level failures.
	Attempts int `json:"attempts,omitempty"`
}

// Queue is the asynchronous transport between message producers and workers.
type Queue interface {
	// Enqueue adds a task. Implementations must honor ctx for cancellation
	// and must not deliver the task before its NotBefore time.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next eligible task, blocking until one
	// is available or the context is cancelled.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued, including tasks
	// not yet eligible.
	Len() int
}
