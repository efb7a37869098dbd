package api

// EventType identifies a flow lifecycle event reported through observers
// and structured logs.
type EventType string

const (
	EventFlowScheduled EventType = "flow.scheduled"
	EventFlowStarted   EventType = "flow.started"
	EventFlowResumed   EventType = "flow.resumed"
	EventFlowBlocked   EventType = "flow.blocked"
	EventFlowCompleted EventType = "flow.completed"
	EventFlowFailed    EventType = "flow.failed"

	EventStepStarted   EventType = "step.started"
	EventStepCached    EventType = "step.cached"
	EventStepCompleted EventType = "step.completed"
	EventStepFailed    EventType = "step.failed"
)
