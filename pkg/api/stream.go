package api

import (
	"context"
	"sync"
)

// streamBuffer is the default capacity of a FlowStream's chunk channel.
// Emission applies backpressure once the buffer fills, so callers should
// drain Chunks while the flow runs.
const streamBuffer = 64

// FlowStream is the result of Dispatcher.Stream: a single-pass sequence of
// chunks plus the settling operation. The chunk channel is closed exactly
// once, when the operation settles, so ranging over Chunks terminates as
// soon as the flow finishes, successfully or not.
type FlowStream struct {
	chunks chan any
	done   chan struct{}

	mu      sync.Mutex
	settled bool
	op      *Operation
	err     error
}

// NewFlowStream constructs an unsettled stream. Used by the dispatcher.
func NewFlowStream() *FlowStream {
	return &FlowStream{
		chunks: make(chan any, streamBuffer),
		done:   make(chan struct{}),
	}
}

// Chunks returns the chunk sequence. It is single-pass and not restartable;
// if the flow never emits, the sequence is simply empty.
func (s *FlowStream) Chunks() <-chan any { return s.chunks }

// Wait blocks until the operation settles or ctx is cancelled.
func (s *FlowStream) Wait(ctx context.Context) (*Operation, error) {
	select {
	case <-s.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.op, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Emit delivers one chunk, blocking when the buffer is full. Once the
// stream has settled it is a no-op, so an emission racing settlement (a
// goroutine spawned by the flow body that outlives it) cannot hit the
// closed channel. The send happens under s.mu, which Settle also takes, so
// an in-flight emission always completes before the channel closes.
func (s *FlowStream) Emit(chunk any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settled {
		return
	}
	s.chunks <- chunk
}

// Settle records the outcome and closes the chunk channel. Calls after the
// first are no-ops.
func (s *FlowStream) Settle(op *Operation, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settled {
		return
	}
	s.settled = true
	s.op = op
	s.err = err
	close(s.chunks)
	close(s.done)
}
