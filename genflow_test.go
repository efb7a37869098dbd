package genflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/redis/go-redis/v9"
)

func TestNewRedisDispatcher_RunAndReload(t *testing.T) {
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	d := NewRedisDispatcher(client, "genflow:test:")

	flow, err := d.DefineFlow(FlowConfig{Name: "counter"},
		func(ctx context.Context, input any) (any, error) {
			return RunStep(ctx, "increment", func(ctx context.Context) (any, error) {
				return 41 + 1, nil
			})
		})
	require.NoError(t, err)

	op, err := flow.Run(ctx, nil)
	require.NoError(t, err)
	require.True(t, op.Done)
	require.Equal(t, float64(42), op.Result.Response)

	// State is readable through a fresh dispatcher over the same backend.
	d2 := NewRedisDispatcher(client, "genflow:test:")
	op2, err := d2.State(ctx, op.Name)
	require.NoError(t, err)
	require.Equal(t, float64(42), op2.Result.Response)
}

func TestStream_ReExportedHelpers(t *testing.T) {
	ctx := context.Background()
	d := NewInMemoryDispatcher()

	flow, err := d.DefineFlow(FlowConfig{Name: "narrator"},
		func(ctx context.Context, input any) (any, error) {
			for i := 1; i <= 3; i++ {
				if err := EmitChunk(ctx, fmt.Sprintf("part %d", i)); err != nil {
					return nil, err
				}
			}
			return "the end", nil
		})
	require.NoError(t, err)

	stream, err := flow.Stream(ctx, nil)
	require.NoError(t, err)

	var chunks []any
	for c := range stream.Chunks() {
		chunks = append(chunks, c)
	}
	require.Equal(t, []any{"part 1", "part 2", "part 3"}, chunks)

	op, err := stream.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, "the end", op.Result.Response)
}

func TestWithObserver_ReceivesLifecycleEvents(t *testing.T) {
	ctx := context.Background()

	logger := zap.NewNop()
	d := NewInMemoryDispatcher(WithObserver(NewLoggingObserver(logger)))

	flow, err := d.DefineFlow(FlowConfig{Name: "observed"},
		func(ctx context.Context, input any) (any, error) {
			return "ok", nil
		})
	require.NoError(t, err)

	op, err := flow.Run(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, "ok", op.Result.Response)
}

func TestSentinelErrors_AreReExported(t *testing.T) {
	ctx := context.Background()
	d := NewInMemoryDispatcher()

	_, err := d.State(ctx, "no-such-flow")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = d.Run(ctx, "no-such-flow", nil)
	require.ErrorIs(t, err, ErrNotFound)
}
