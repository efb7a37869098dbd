package taskqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/petrijr/genflow/pkg/api"
)

func TestCodec_TaskRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	task := Task{
		ID: "c-1",
		Envelope: api.FlowInvokeEnvelopeMessage{
			Schedule: &api.ScheduleMessage{
				Flow:  "menuFlow",
				Input: map[string]any{"theme": "noir"},
				Delay: 5 * time.Second,
			},
		},
		EnqueuedAt: now,
		NotBefore:  now.Add(5 * time.Second),
		Attempts:   2,
	}

	data, err := EncodeTask(task)
	require.NoError(t, err)

	got, err := DecodeTask(data)
	require.NoError(t, err)
	require.Equal(t, "c-1", got.ID)
	require.NoError(t, got.Envelope.Validate())
	require.Equal(t, 5*time.Second, got.Envelope.Schedule.Delay)
	require.Equal(t, map[string]any{"theme": "noir"}, got.Envelope.Schedule.Input)
	require.True(t, got.NotBefore.Equal(task.NotBefore))
	require.Equal(t, 2, got.Attempts)
}
