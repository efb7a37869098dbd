package genflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/genflow/pkg/config"
)

func TestNewRunner_MemoryBackends(t *testing.T) {
	ctx := context.Background()

	runner, err := NewRunner(ctx, config.Default())
	require.NoError(t, err)
	defer runner.Close(ctx)

	_, err = runner.Dispatcher.DefineFlow(FlowConfig{Name: "ping"},
		func(ctx context.Context, input any) (any, error) {
			return "pong", nil
		})
	require.NoError(t, err)

	require.NoError(t, runner.Worker.EnqueueStart(ctx, "ping", nil))
	processed, err := runner.Worker.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	op := waitForDone(t, runner.Dispatcher, "ping")
	require.Equal(t, "pong", op.Result.Response)
}

func TestNewRunner_SQLiteBackends(t *testing.T) {
	ctx := context.Background()

	cfg := config.Default()
	cfg.Store.Driver = config.DriverSQLite
	cfg.Store.DSN = ":memory:"
	cfg.Queue.Driver = config.DriverSQLite
	cfg.Queue.DSN = ":memory:"

	runner, err := NewRunner(ctx, cfg)
	require.NoError(t, err)
	defer runner.Close(ctx)

	_, err = runner.Dispatcher.DefineFlow(FlowConfig{Name: "persisted"},
		func(ctx context.Context, input any) (any, error) {
			return RunStep(ctx, "compute", func(ctx context.Context) (any, error) {
				return 7, nil
			})
		})
	require.NoError(t, err)

	require.NoError(t, runner.Worker.EnqueueStart(ctx, "persisted", nil))
	processed, err := runner.Worker.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	op := waitForDone(t, runner.Dispatcher, "persisted")
	require.Equal(t, float64(7), op.Result.Response)
}

func TestNewRunner_RejectsInvalidConfig(t *testing.T) {
	ctx := context.Background()

	cfg := config.Default()
	cfg.Store.Driver = "cassandra"
	_, err := NewRunner(ctx, cfg)
	require.Error(t, err)
}
