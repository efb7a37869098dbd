package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/petrijr/genflow/internal/persistence"
	"github.com/petrijr/genflow/pkg/api"
)

func TestExecution_RecordsTraceContext(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	store := persistence.NewInMemoryStore()
	d := New(store, WithTracerProvider(tp))

	flow, err := d.DefineFlow(api.FlowConfig{Name: "tracedFlow"}, func(ctx context.Context, input any) (any, error) {
		return api.RunStep(ctx, "traced-step", func(ctx context.Context) (any, error) {
			return "ok", nil
		})
	})
	require.NoError(t, err)

	op, err := flow.Run(ctx, nil)
	require.NoError(t, err)
	require.True(t, op.Done)

	spans := recorder.Ended()
	var names []string
	for _, s := range spans {
		names = append(names, s.Name())
	}
	require.Contains(t, names, "flow tracedFlow")

	fs, err := store.Load(ctx, op.Name)
	require.NoError(t, err)
	require.Contains(t, fs.TraceContext, "traceparent")
	require.Len(t, fs.Executions, 1)
	require.NotEmpty(t, fs.Executions[0].TraceIDs)
	require.Equal(t, fs.Executions[0].TraceIDs[0], op.Metadata["traceId"])
}

func TestRetry_ContinuesTraceAcrossAttempts(t *testing.T) {
	ctx := context.Background()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	store := persistence.NewInMemoryStore()
	d := New(store, WithTracerProvider(tp))

	failed := false
	flow, err := d.DefineFlow(api.FlowConfig{Name: "retryTrace"}, func(ctx context.Context, input any) (any, error) {
		return api.RunStep(ctx, "flaky", func(ctx context.Context) (any, error) {
			if !failed {
				failed = true
				return nil, errors.New("transient")
			}
			return "ok", nil
		})
	})
	require.NoError(t, err)

	op, err := flow.Run(ctx, nil)
	require.NoError(t, err)
	require.True(t, op.Done)
	require.NotEmpty(t, op.Result.Error)

	op2, err := d.Retry(ctx, op.Name)
	require.NoError(t, err)
	require.Empty(t, op2.Result.Error)

	fs, err := store.Load(ctx, op.Name)
	require.NoError(t, err)
	require.Len(t, fs.Executions, 2)

	// Both attempts share one trace because the second extracts the
	// propagation context persisted by the first.
	require.Equal(t, fs.Executions[0].TraceIDs, fs.Executions[1].TraceIDs)
	require.EqualValues(t, 2, fs.Operation.Metadata["executions"])
}
