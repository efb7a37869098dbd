package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/petrijr/genflow/pkg/api"
)

// EncodeState serializes a FlowState for storage. JSON is used everywhere so
// that every backend persists the same bytes and cached step values keep an
// identical shape across save/load cycles.
func EncodeState(fs *api.FlowState) ([]byte, error) {
	data, err := json.Marshal(fs)
	if err != nil {
		return nil, fmt.Errorf("encode flow state %s: %w", fs.FlowID, err)
	}
	return data, nil
}

// DecodeState deserializes a stored FlowState.
func DecodeState(data []byte) (*api.FlowState, error) {
	var fs api.FlowState
	if err := json.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("decode flow state: %w", err)
	}
	return &fs, nil
}

// CloneState deep-copies a FlowState through its serialized form. The
// in-memory store uses it so callers can never mutate stored records
// through retained pointers, and so cached values have the same JSON shape
// a durable backend would give them.
func CloneState(fs *api.FlowState) (*api.FlowState, error) {
	data, err := EncodeState(fs)
	if err != nil {
		return nil, err
	}
	return DecodeState(data)
}
