package genflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/petrijr/genflow/internal/taskqueue"
	"github.com/petrijr/genflow/pkg/worker"
)

// LocalRunner bundles an in-memory dispatcher, an in-memory task queue, and
// a worker into a simple single-process runner for development and tests.
//
// Typical usage:
//
//	runner := genflow.NewLocalRunner()
//	flow, _ := runner.Dispatcher.DefineFlow(genflow.FlowConfig{Name: "greet"}, steps)
//
//	// Synchronous run (no queue or worker involved):
//	op, err := flow.Run(ctx, input)
//
//	// Asynchronous run:
//	_ = runner.StartWorkers(ctx, 2)
//	_ = runner.StartAsync(ctx, flow.Name(), input)
//	...
//	runner.Stop()
type LocalRunner struct {
	// Dispatcher is the flow engine used by this runner.
	Dispatcher Dispatcher

	// Worker processes queued control messages against Dispatcher.
	Worker *worker.Worker

	queue *taskqueue.InMemoryQueue

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// LocalRunnerOption configures a LocalRunner.
type LocalRunnerOption func(*localRunnerConfig)

type localRunnerConfig struct {
	dispatcherOpts []DispatcherOption
	workerOpts     []worker.Option
}

// WithDispatcherOptions forwards options to the underlying dispatcher.
func WithDispatcherOptions(opts ...DispatcherOption) LocalRunnerOption {
	return func(c *localRunnerConfig) {
		c.dispatcherOpts = append(c.dispatcherOpts, opts...)
	}
}

// WithWorkerOptions forwards options to the underlying worker.
func WithWorkerOptions(opts ...worker.Option) LocalRunnerOption {
	return func(c *localRunnerConfig) {
		c.workerOpts = append(c.workerOpts, opts...)
	}
}

// NewLocalRunner constructs a LocalRunner backed by an in-memory store and
// queue with default settings.
func NewLocalRunner(opts ...LocalRunnerOption) *LocalRunner {
	var cfg localRunnerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	d := NewInMemoryDispatcher(cfg.dispatcherOpts...)
	q := taskqueue.NewInMemoryQueue(1024)
	w := worker.New(d, q, cfg.workerOpts...)

	return &LocalRunner{
		Dispatcher: d,
		Worker:     w,
		queue:      q,
	}
}

// StartWorkers starts concurrency worker goroutines that process queued
// messages until Stop is called or ctx is cancelled. Calling it again
// without Stop is an error.
func (r *LocalRunner) StartWorkers(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("genflow: LocalRunner already started")
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.Worker.Run(ctx, concurrency)
	}()
	return nil
}

// Stop cancels the worker goroutines and waits for them to exit.
func (r *LocalRunner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	r.queue.Close()
}

// StartAsync enqueues a start message for the given flow.
func (r *LocalRunner) StartAsync(ctx context.Context, flowName string, input any) error {
	return r.Worker.EnqueueStart(ctx, flowName, input)
}

// ScheduleAsync enqueues a schedule message; the flow runs after delay once
// a worker picks up the follow-up message.
func (r *LocalRunner) ScheduleAsync(ctx context.Context, flowName string, input any, delay time.Duration) error {
	return r.Worker.EnqueueSchedule(ctx, flowName, input, delay)
}

// ResumeAsync enqueues a resume message for a blocked flow.
func (r *LocalRunner) ResumeAsync(ctx context.Context, flowID string, payload any) error {
	return r.Worker.EnqueueResume(ctx, flowID, payload)
}

// NewDevelopmentRunner is NewLocalRunner with console logging attached to
// both the dispatcher and the worker. Intended for interactive debugging.
func NewDevelopmentRunner() (*LocalRunner, error) {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}
	return NewLocalRunner(
		WithDispatcherOptions(WithObserver(NewLoggingObserver(logger))),
		WithWorkerOptions(worker.WithLogger(logger)),
	), nil
}
