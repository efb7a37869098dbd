package api

import (
	"fmt"
	"time"
)

// StartMessage begins a new flow execution.
type StartMessage struct {
	Flow   string            `json:"flow"`
	Input  any               `json:"input,omitempty"`
	Labels map[string]string `json:"labels,omitempty"`
}

// ScheduleMessage creates a flow state without executing it. Delay tells the
// transport collaborator when to emit the follow-up runScheduled message;
// the dispatcher itself implements no timers.
type ScheduleMessage struct {
	Flow  string        `json:"flow"`
	Input any           `json:"input,omitempty"`
	Delay time.Duration `json:"delay,omitempty"`
}

// RunScheduledMessage executes a previously scheduled flow now.
type RunScheduledMessage struct {
	FlowID string `json:"flowId"`
}

// ResumeMessage supplies external input to unblock a suspended flow.
type ResumeMessage struct {
	FlowID  string `json:"flowId"`
	Payload any    `json:"payload,omitempty"`
}

// RetryMessage re-attempts a failed or blocked execution from its last
// persisted state. Completed steps are skipped via the memo cache.
type RetryMessage struct {
	FlowID string `json:"flowId"`
}

// StateMessage is a read-only status query.
type StateMessage struct {
	FlowID string `json:"flowId"`
}

// FlowInvokeEnvelopeMessage is the control-message union driving the
// dispatcher. Exactly one variant must be populated per message; the
// dispatcher switches on which field is present.
type FlowInvokeEnvelopeMessage struct {
	Start        *StartMessage        `json:"start,omitempty"`
	Schedule     *ScheduleMessage     `json:"schedule,omitempty"`
	RunScheduled *RunScheduledMessage `json:"runScheduled,omitempty"`
	Resume       *ResumeMessage       `json:"resume,omitempty"`
	Retry        *RetryMessage        `json:"retry,omitempty"`
	State        *StateMessage        `json:"state,omitempty"`
}

// Validate checks that exactly one variant is populated.
func (m *FlowInvokeEnvelopeMessage) Validate() error {
	n := 0
	for _, set := range []bool{
		m.Start != nil,
		m.Schedule != nil,
		m.RunScheduled != nil,
		m.Resume != nil,
		m.Retry != nil,
		m.State != nil,
	} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("envelope must populate exactly one variant, got %d: %w", n, ErrInvalidState)
	}
	return nil
}
