package taskqueue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/genflow/pkg/api"
)

type queueFactory struct {
	name string
	make func(t *testing.T) Queue
}

func queueFactories(t *testing.T) []queueFactory {
	t.Helper()
	return []queueFactory{
		{
			name: "memory",
			make: func(t *testing.T) Queue {
				q := NewInMemoryQueue(64)
				t.Cleanup(q.Close)
				return q
			},
		},
		{
			name: "sqlite",
			make: func(t *testing.T) Queue {
				db, err := openTestDB(t)
				require.NoError(t, err)
				q, err := NewSQLiteQueue(db)
				require.NoError(t, err)
				return q
			},
		},
	}
}

func startTask(id, flow string) Task {
	return Task{
		ID: id,
		Envelope: api.FlowInvokeEnvelopeMessage{
			Start: &api.StartMessage{Flow: flow, Input: map[string]any{"n": 1}},
		},
	}
}

func TestQueue_EnqueueDequeueFIFO(t *testing.T) {
	for _, f := range queueFactories(t) {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			q := f.make(t)

			for i := 0; i < 3; i++ {
				require.NoError(t, q.Enqueue(ctx, startTask(fmt.Sprintf("t-%d", i), "menuFlow")))
			}
			require.Equal(t, 3, q.Len())

			for i := 0; i < 3; i++ {
				task, err := q.Dequeue(ctx)
				require.NoError(t, err)
				require.Equal(t, fmt.Sprintf("t-%d", i), task.ID)
				require.NotNil(t, task.Envelope.Start)
				require.Equal(t, "menuFlow", task.Envelope.Start.Flow)
			}
			require.Equal(t, 0, q.Len())
		})
	}
}

func TestQueue_NotBeforeDelaysDelivery(t *testing.T) {
	for _, f := range queueFactories(t) {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			q := f.make(t)

			delayed := startTask("delayed", "menuFlow")
			delayed.NotBefore = time.Now().Add(80 * time.Millisecond)
			require.NoError(t, q.Enqueue(ctx, delayed))
			require.NoError(t, q.Enqueue(ctx, startTask("immediate", "menuFlow")))

			// The immediate task overtakes the delayed one.
			first, err := q.Dequeue(ctx)
			require.NoError(t, err)
			require.Equal(t, "immediate", first.ID)

			second, err := q.Dequeue(ctx)
			require.NoError(t, err)
			require.Equal(t, "delayed", second.ID)
		})
	}
}

func TestQueue_DequeueHonorsCancellation(t *testing.T) {
	for _, f := range queueFactories(t) {
		t.Run(f.name, func(t *testing.T) {
			q := f.make(t)

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			_, err := q.Dequeue(ctx)
			require.ErrorIs(t, err, context.DeadlineExceeded)
		})
	}
}

func TestQueue_EnvelopeSurvivesRoundTrip(t *testing.T) {
	for _, f := range queueFactories(t) {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			q := f.make(t)

			task := Task{
				ID: "resume-1",
				Envelope: api.FlowInvokeEnvelopeMessage{
					Resume: &api.ResumeMessage{
						FlowID:  "flow-9",
						Payload: map[string]any{"approved": true},
					},
				},
			}
			require.NoError(t, q.Enqueue(ctx, task))

			got, err := q.Dequeue(ctx)
			require.NoError(t, err)
			require.NotNil(t, got.Envelope.Resume)
			require.Equal(t, "flow-9", got.Envelope.Resume.FlowID)
			require.Equal(t, map[string]any{"approved": true}, got.Envelope.Resume.Payload)
		})
	}
}
