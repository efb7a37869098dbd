package genflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// waitForDone polls the dispatcher until the named flow has exactly one
// state and it is done, or the deadline passes.
func waitForDone(t *testing.T, d Dispatcher, flowName string) *Operation {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		summaries, _, err := d.ListStates(ctx, StateQuery{Name: flowName})
		require.NoError(t, err)
		if len(summaries) == 1 {
			op, err := d.State(ctx, summaries[0].FlowID)
			require.NoError(t, err)
			if op.Done {
				return op
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("flow %q did not complete in time", flowName)
	return nil
}

func TestLocalRunner_StartAsyncCompletesFlow(t *testing.T) {
	ctx := context.Background()
	runner := NewLocalRunner()

	_, err := runner.Dispatcher.DefineFlow(FlowConfig{Name: "greet"},
		func(ctx context.Context, input any) (any, error) {
			return RunStep(ctx, "format", func(ctx context.Context) (any, error) {
				return fmt.Sprintf("hello, %v", input), nil
			})
		})
	require.NoError(t, err)

	require.NoError(t, runner.StartWorkers(ctx, 2))
	defer runner.Stop()

	require.NoError(t, runner.StartAsync(ctx, "greet", "world"))

	op := waitForDone(t, runner.Dispatcher, "greet")
	require.Equal(t, "hello, world", op.Result.Response)
}

func TestLocalRunner_ScheduleAsyncRunsAfterDelay(t *testing.T) {
	ctx := context.Background()
	runner := NewLocalRunner()

	_, err := runner.Dispatcher.DefineFlow(FlowConfig{Name: "reminder"},
		func(ctx context.Context, input any) (any, error) {
			return "sent", nil
		})
	require.NoError(t, err)

	require.NoError(t, runner.StartWorkers(ctx, 1))
	defer runner.Stop()

	require.NoError(t, runner.ScheduleAsync(ctx, "reminder", nil, 30*time.Millisecond))

	op := waitForDone(t, runner.Dispatcher, "reminder")
	require.Equal(t, "sent", op.Result.Response)
}

func TestLocalRunner_ResumeAsyncUnblocksFlow(t *testing.T) {
	ctx := context.Background()
	runner := NewLocalRunner()

	flow, err := runner.Dispatcher.DefineFlow(FlowConfig{Name: "signoff"},
		func(ctx context.Context, input any) (any, error) {
			approved, err := WaitForEvent(ctx, "manager-approval", nil)
			if err != nil {
				return nil, err
			}
			return fmt.Sprintf("approved=%v", approved), nil
		})
	require.NoError(t, err)

	op, err := flow.Run(ctx, nil)
	require.NoError(t, err)
	require.False(t, op.Done)

	require.NoError(t, runner.StartWorkers(ctx, 1))
	defer runner.Stop()

	require.NoError(t, runner.ResumeAsync(ctx, op.Name, true))

	done := waitForDone(t, runner.Dispatcher, "signoff")
	require.Equal(t, "approved=true", done.Result.Response)
}

func TestLocalRunner_StartWorkersTwiceFails(t *testing.T) {
	ctx := context.Background()
	runner := NewLocalRunner()

	require.NoError(t, runner.StartWorkers(ctx, 1))
	require.Error(t, runner.StartWorkers(ctx, 1))
	runner.Stop()

	// Stop is idempotent.
	runner.Stop()
}
