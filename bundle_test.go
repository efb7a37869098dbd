package genflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSQLiteBundle_ProcessesQueuedStart(t *testing.T) {
	ctx := context.Background()

	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer db.Close()

	bundle, err := NewSQLiteBundle(db)
	require.NoError(t, err)

	_, err = bundle.Dispatcher.DefineFlow(FlowConfig{Name: "invoice"},
		func(ctx context.Context, input any) (any, error) {
			return RunStep(ctx, "render", func(ctx context.Context) (any, error) {
				return fmt.Sprintf("invoice for %v", input), nil
			})
		})
	require.NoError(t, err)

	require.NoError(t, bundle.Worker.EnqueueStart(ctx, "invoice", "acme"))
	processed, err := bundle.Worker.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	op := waitForDone(t, bundle.Dispatcher, "invoice")
	require.Equal(t, "invoice for acme", op.Result.Response)
}

func TestSQLiteBundle_StateAndQueueShareDatabase(t *testing.T) {
	ctx := context.Background()

	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer db.Close()

	bundle, err := NewSQLiteBundle(db)
	require.NoError(t, err)

	_, err = bundle.Dispatcher.DefineFlow(FlowConfig{Name: "audit"},
		func(ctx context.Context, input any) (any, error) {
			return "recorded", nil
		})
	require.NoError(t, err)

	// Both tables live in the one database handle.
	var stateTables, queueTables int
	require.NoError(t, db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'flow_states'`,
	).Scan(&stateTables))
	require.NoError(t, db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'tasks'`,
	).Scan(&queueTables))
	require.Equal(t, 1, stateTables)
	require.Equal(t, 1, queueTables)

	require.NoError(t, bundle.Worker.EnqueueStart(ctx, "audit", nil))
	processed, err := bundle.Worker.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, processed)

	op := waitForDone(t, bundle.Dispatcher, "audit")
	require.Equal(t, "recorded", op.Result.Response)
}
