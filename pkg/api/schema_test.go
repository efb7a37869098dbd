package api

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchema_Validate(t *testing.T) {
	s := MustSchema(`{
		"type": "object",
		"properties": {
			"name": {"type": "string"},
			"servings": {"type": "integer", "minimum": 1}
		},
		"required": ["name"]
	}`)

	require.NoError(t, s.Validate("input", map[string]any{"name": "soup", "servings": 4}))

	err := s.Validate("input", map[string]any{"servings": 0})
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "input", verr.Subject)
	require.NotEmpty(t, verr.Details)
}

func TestSchema_NilAcceptsEverything(t *testing.T) {
	var s *Schema
	require.NoError(t, s.Validate("input", map[string]any{"anything": true}))
	require.NoError(t, s.Validate("input", nil))
}

func TestSchema_SurvivesJSONRoundTrip(t *testing.T) {
	s := MustSchema(`{"type":"boolean"}`)

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var restored Schema
	require.NoError(t, json.Unmarshal(data, &restored))

	require.NoError(t, restored.Validate("payload", true))
	require.Error(t, restored.Validate("payload", "yes"))
}

func TestNewSchema_RejectsMalformedDefinition(t *testing.T) {
	_, err := NewSchema([]byte(`{"type": ["not", 42`))
	require.Error(t, err)
}
