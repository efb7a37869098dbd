package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/petrijr/genflow/internal/dispatch"
	"github.com/petrijr/genflow/internal/persistence"
	"github.com/petrijr/genflow/internal/taskqueue"
	"github.com/petrijr/genflow/pkg/api"
)

func newTestWorker(t *testing.T, opts ...Option) (*Worker, *dispatch.Dispatcher, api.FlowStateStore, *taskqueue.InMemoryQueue) {
	t.Helper()
	store := persistence.NewInMemoryStore()
	d := dispatch.New(store)
	q := taskqueue.NewInMemoryQueue(64)
	t.Cleanup(q.Close)
	return New(d, q, opts...), d, store, q
}

func TestWorker_ProcessStart(t *testing.T) {
	ctx := context.Background()
	w, d, store, _ := newTestWorker(t)

	var calls int32
	_, err := d.DefineFlow(api.FlowConfig{Name: "asyncFlow"}, func(ctx context.Context, input any) (any, error) {
		atomic.AddInt32(&calls, 1)
		return input, nil
	})
	require.NoError(t, err)

	require.NoError(t, w.EnqueueStart(ctx, "asyncFlow", "hello"))

	processed, err := w.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	page, _, err := store.List(ctx, api.StateQuery{Name: "asyncFlow"})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.True(t, page[0].Done)
}

func TestWorker_ScheduleEmitsDelayedFollowUp(t *testing.T) {
	ctx := context.Background()
	w, d, store, q := newTestWorker(t)

	var calls int32
	_, err := d.DefineFlow(api.FlowConfig{Name: "laterFlow"}, func(ctx context.Context, input any) (any, error) {
		atomic.AddInt32(&calls, 1)
		return input, nil
	})
	require.NoError(t, err)

	require.NoError(t, w.EnqueueSchedule(ctx, "laterFlow", "soon", 50*time.Millisecond))

	// Processing the schedule message creates the state but does not run
	// the flow; it queues the runScheduled follow-up instead.
	processed, err := w.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, int32(0), atomic.LoadInt32(&calls))
	require.Equal(t, 1, q.Len())

	page, _, err := store.List(ctx, api.StateQuery{Name: "laterFlow"})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, api.StatusCreated, page[0].Status)

	// The follow-up becomes eligible only after the delay.
	processed, err = w.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	page, _, err = store.List(ctx, api.StateQuery{Name: "laterFlow"})
	require.NoError(t, err)
	require.True(t, page[0].Done)
}

func TestWorker_BusinessFailureIsNotRedelivered(t *testing.T) {
	ctx := context.Background()
	w, d, _, q := newTestWorker(t)

	var calls int32
	_, err := d.DefineFlow(api.FlowConfig{Name: "failFlow"}, func(ctx context.Context, input any) (any, error) {
		return api.RunStep(ctx, "explode", func(ctx context.Context) (any, error) {
			atomic.AddInt32(&calls, 1)
			return nil, errors.New("oven exploded")
		})
	})
	require.NoError(t, err)

	require.NoError(t, w.EnqueueStart(ctx, "failFlow", nil))

	processed, err := w.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
	require.Equal(t, 0, q.Len())
}

func TestWorker_PermanentErrorNotRedelivered(t *testing.T) {
	ctx := context.Background()
	w, _, _, q := newTestWorker(t)

	// Resume for an unknown flowId can never succeed.
	require.NoError(t, w.EnqueueResume(ctx, "no-such-flow", nil))

	processed, err := w.ProcessOne(ctx)
	require.True(t, processed)
	require.ErrorIs(t, err, api.ErrNotFound)
	require.Equal(t, 0, q.Len())
}

func TestWorker_ResumeUnblocksFlow(t *testing.T) {
	ctx := context.Background()
	w, d, _, _ := newTestWorker(t)

	_, err := d.DefineFlow(api.FlowConfig{Name: "waitFlow"}, func(ctx context.Context, input any) (any, error) {
		return api.WaitForEvent(ctx, "go", nil)
	})
	require.NoError(t, err)

	op, err := d.Run(ctx, "waitFlow", nil)
	require.NoError(t, err)
	require.False(t, op.Done)

	require.NoError(t, w.EnqueueResume(ctx, op.Name, "green light"))
	processed, err := w.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	st, err := d.State(ctx, op.Name)
	require.NoError(t, err)
	require.True(t, st.Done)
	require.Equal(t, "green light", st.Result.Response)
}

type flakyStore struct {
	api.FlowStateStore
	failLoads int32
}

func (s *flakyStore) Load(ctx context.Context, flowID string) (*api.FlowState, error) {
	if atomic.AddInt32(&s.failLoads, -1) >= 0 {
		return nil, context.DeadlineExceeded
	}
	return s.FlowStateStore.Load(ctx, flowID)
}

func TestWorker_EngineErrorRedeliveredWithBackoff(t *testing.T) {
	ctx := context.Background()

	store := &flakyStore{FlowStateStore: persistence.NewInMemoryStore(), failLoads: 1}
	d := dispatch.New(store)
	q := taskqueue.NewInMemoryQueue(64)
	t.Cleanup(q.Close)
	w := New(d, q, WithRetryPolicy(Retry(3).WithConstantBackoff(10*time.Millisecond).Policy()))

	_, err := d.DefineFlow(api.FlowConfig{Name: "flakyFlow"}, func(ctx context.Context, input any) (any, error) {
		return api.WaitForEvent(ctx, "go", nil)
	})
	require.NoError(t, err)

	op, err := d.Run(ctx, "flakyFlow", nil)
	require.NoError(t, err)
	require.False(t, op.Done)

	require.NoError(t, w.EnqueueResume(ctx, op.Name, "payload"))

	// First delivery hits the flaky load and is re-enqueued, not failed.
	processed, err := w.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, 1, q.Len())

	// Second delivery succeeds.
	processed, err = w.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	st, err := d.State(ctx, op.Name)
	require.NoError(t, err)
	require.True(t, st.Done)
}

func TestWorker_LogsLifecycleEventNames(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.InfoLevel)
	w, d, _, _ := newTestWorker(t, WithLogger(zap.New(core)))

	_, err := d.DefineFlow(api.FlowConfig{Name: "loggedFlow"}, func(ctx context.Context, input any) (any, error) {
		return api.WaitForEvent(ctx, "go", nil)
	})
	require.NoError(t, err)

	require.NoError(t, w.EnqueueSchedule(ctx, "loggedFlow", nil, 0))
	processed, err := w.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, processed)
	require.Len(t, logs.FilterMessage(string(api.EventFlowScheduled)).All(), 1)

	// Run the scheduled flow; it blocks, then resume it through the queue.
	processed, err = w.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	page, _, err := d.ListStates(ctx, api.StateQuery{Name: "loggedFlow"})
	require.NoError(t, err)
	require.Len(t, page, 1)

	require.NoError(t, w.EnqueueResume(ctx, page[0].FlowID, "payload"))
	processed, err = w.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, processed)
	require.Len(t, logs.FilterMessage(string(api.EventFlowResumed)).All(), 1)
}

func TestWorker_LogsBusinessFailureEventName(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.InfoLevel)
	w, d, _, _ := newTestWorker(t, WithLogger(zap.New(core)))

	_, err := d.DefineFlow(api.FlowConfig{Name: "doomedFlow"}, func(ctx context.Context, input any) (any, error) {
		return nil, errors.New("out of stock")
	})
	require.NoError(t, err)

	require.NoError(t, w.EnqueueStart(ctx, "doomedFlow", nil))
	processed, err := w.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	entries := logs.FilterMessage(string(api.EventFlowFailed)).All()
	require.Len(t, entries, 1)
}

func TestWorker_RunLogsTerminalDispatchFailures(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	w, _, _, _ := newTestWorker(t, WithLogger(zap.New(core)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Resume for an unknown flowId is a permanent failure; in the
	// long-running loop it must be logged, not silently dropped.
	require.NoError(t, w.EnqueueResume(ctx, "no-such-flow", nil))

	done := make(chan struct{})
	go func() {
		w.Run(ctx, 1)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for logs.FilterMessage("task.failed").Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("terminal dispatch failure was not logged")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	w, _, _, _ := newTestWorker(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, 2)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}
