package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/petrijr/genflow/internal/taskqueue"
	"github.com/petrijr/genflow/pkg/api"
)

// Worker pulls control messages from a queue and feeds them to a dispatcher.
// It owns the two transport concerns the dispatcher deliberately lacks:
// delayed delivery of scheduled runs, and bounded redelivery of messages
// whose dispatch failed with an engine-level error.
type Worker struct {
	dispatcher api.Dispatcher
	queue      taskqueue.Queue
	retry      RetryPolicy
	logger     *zap.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithRetryPolicy overrides the default redelivery policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(w *Worker) { w.retry = p }
}

// WithLogger attaches a structured logger. Nil keeps logging off.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// New creates a Worker over the given dispatcher and queue.
func New(d api.Dispatcher, q taskqueue.Queue, opts ...Option) *Worker {
	w := &Worker{
		dispatcher: d,
		queue:      q,
		retry:      DefaultRetryPolicy(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// EnqueueStart queues a start message for asynchronous execution.
func (w *Worker) EnqueueStart(ctx context.Context, flowName string, input any) error {
	return w.enqueue(ctx, api.FlowInvokeEnvelopeMessage{
		Start: &api.StartMessage{Flow: flowName, Input: input},
	}, time.Time{})
}

// EnqueueSchedule queues a schedule message. The delay is applied when the
// worker later processes the message and emits the runScheduled follow-up.
func (w *Worker) EnqueueSchedule(ctx context.Context, flowName string, input any, delay time.Duration) error {
	return w.enqueue(ctx, api.FlowInvokeEnvelopeMessage{
		Schedule: &api.ScheduleMessage{Flow: flowName, Input: input, Delay: delay},
	}, time.Time{})
}

// EnqueueResume queues a resume message for a blocked flow.
func (w *Worker) EnqueueResume(ctx context.Context, flowID string, payload any) error {
	return w.enqueue(ctx, api.FlowInvokeEnvelopeMessage{
		Resume: &api.ResumeMessage{FlowID: flowID, Payload: payload},
	}, time.Time{})
}

// EnqueueRetry queues a retry message for a failed or blocked flow.
func (w *Worker) EnqueueRetry(ctx context.Context, flowID string) error {
	return w.enqueue(ctx, api.FlowInvokeEnvelopeMessage{
		Retry: &api.RetryMessage{FlowID: flowID},
	}, time.Time{})
}

func (w *Worker) enqueue(ctx context.Context, env api.FlowInvokeEnvelopeMessage, notBefore time.Time) error {
	if err := env.Validate(); err != nil {
		return err
	}
	return w.queue.Enqueue(ctx, taskqueue.Task{
		ID:         uuid.NewString(),
		Envelope:   env,
		EnqueuedAt: time.Now(),
		NotBefore:  notBefore,
		Attempts:   1,
	})
}

// ProcessOne pulls a single task and processes it. It returns false with the
// context's error when cancelled before a task was obtained; otherwise the
// task counts as processed and err reports a terminal dispatch failure.
// Redelivered tasks report success here and fail only once attempts run out.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}
	return true, w.process(ctx, task)
}

func (w *Worker) process(ctx context.Context, task *taskqueue.Task) error {
	// Schedule messages get special treatment: after the dispatcher creates
	// the flow state, the worker queues the runScheduled follow-up with the
	// requested delay. The dispatcher itself never sleeps.
	if sched := task.Envelope.Schedule; sched != nil {
		op, err := w.dispatcher.Dispatch(ctx, &task.Envelope)
		if err != nil {
			return w.redeliver(ctx, task, err)
		}
		followUp := taskqueue.Task{
			ID: uuid.NewString(),
			Envelope: api.FlowInvokeEnvelopeMessage{
				RunScheduled: &api.RunScheduledMessage{FlowID: op.Name},
			},
			EnqueuedAt: time.Now(),
			Attempts:   1,
		}
		if sched.Delay > 0 {
			followUp.NotBefore = time.Now().Add(sched.Delay)
		}
		if err := w.queue.Enqueue(ctx, followUp); err != nil {
			return err
		}
		w.logger.Info(string(api.EventFlowScheduled),
			zap.String("flow", sched.Flow),
			zap.String("flow_id", op.Name),
			zap.Duration("delay", sched.Delay),
		)
		return nil
	}

	op, err := w.dispatcher.Dispatch(ctx, &task.Envelope)
	if err != nil {
		return w.redeliver(ctx, task, err)
	}
	if op != nil && op.Done && op.Result != nil && op.Result.Error != "" {
		// A business failure settled into the operation; nothing to retry at
		// the transport level.
		w.logger.Warn(string(api.EventFlowFailed),
			zap.String("flow_id", op.Name),
			zap.String("error", op.Result.Error),
		)
		return nil
	}
	if task.Envelope.Resume != nil && op != nil {
		w.logger.Info(string(api.EventFlowResumed),
			zap.String("flow_id", op.Name),
			zap.Bool("done", op.Done),
		)
	}
	return nil
}

// redeliver re-enqueues a task after an engine-level failure, with backoff,
// until attempts run out. Permanent errors are surfaced immediately.
func (w *Worker) redeliver(ctx context.Context, task *taskqueue.Task, cause error) error {
	if isPermanent(cause) {
		return cause
	}
	if task.Attempts >= w.retry.MaxAttempts {
		w.logger.Error("task.exhausted",
			zap.String("task_id", task.ID),
			zap.Int("attempts", task.Attempts),
			zap.Error(cause),
		)
		return cause
	}

	next := *task
	next.Attempts = task.Attempts + 1
	next.NotBefore = time.Now().Add(w.retry.backoff(task.Attempts))
	if err := w.queue.Enqueue(ctx, next); err != nil {
		return errors.Join(cause, err)
	}
	w.logger.Warn("task.redelivered",
		zap.String("task_id", task.ID),
		zap.Int("attempt", next.Attempts),
		zap.Error(cause),
	)
	return nil
}

// isPermanent reports whether retrying the same message can never succeed.
func isPermanent(err error) bool {
	if errors.Is(err, api.ErrNotFound) || errors.Is(err, api.ErrInvalidState) || errors.Is(err, api.ErrAlreadyExists) {
		return true
	}
	var verr *api.ValidationError
	if errors.As(err, &verr) {
		return true
	}
	var aerr *api.AuthorizationError
	return errors.As(err, &aerr)
}

// Run processes tasks with the given concurrency until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, concurrency int) {
	if concurrency <= 0 {
		concurrency = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				processed, err := w.ProcessOne(ctx)
				if err == nil {
					continue
				}
				if !processed {
					// Dequeue failed; a cancelled context ends the loop.
					if ctx.Err() != nil {
						return
					}
					w.logger.Error("worker.dequeue", zap.Error(err))
					continue
				}
				// Terminal dispatch failure: the message left the queue and
				// will not be redelivered.
				w.logger.Error("task.failed", zap.Error(err))
			}
		}()
	}
	wg.Wait()
}
