package taskqueue

import (
	"encoding/json"
	"fmt"
)

// EncodeTask serializes a task for durable queues. JSON keeps envelope
// payloads in the same shape the state store uses, so a payload that rode
// through the queue compares equal to one passed in-process.
func EncodeTask(t Task) ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encode task %s: %w", t.ID, err)
	}
	return data, nil
}

// DecodeTask deserializes a stored task.
func DecodeTask(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode task: %w", err)
	}
	return &t, nil
}
