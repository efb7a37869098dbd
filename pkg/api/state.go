package api

import (
	"encoding/json"
	"time"
)

// Status represents the lifecycle state of a flow execution.
type Status string

const (
	// StatusCreated means the flow state exists but no execution has been
	// attempted yet (a scheduled flow awaiting its runScheduled message).
	StatusCreated Status = "CREATED"
	StatusRunning Status = "RUNNING"
	// StatusBlocked means the flow is suspended on a step awaiting external
	// input delivered via a resume message.
	StatusBlocked Status = "BLOCKED"
	StatusDone   Status = "DONE"
	StatusFailed Status = "FAILED"
)

// CacheEntry is one memoized step result. The Empty tag distinguishes a step
// that legitimately produced no output from a step that has not run yet, so
// a nil Value alone is never used as an "absent" marker.
type CacheEntry struct {
	Empty bool `json:"empty,omitempty"`
	Value any  `json:"value,omitempty"`
}

// BlockedStep identifies the step a suspended flow is waiting on, together
// with the schema the resume payload must satisfy.
type BlockedStep struct {
	Name   string  `json:"name"`
	Schema *Schema `json:"schema,omitempty"`
}

// Execution records one distinct execution attempt of a flow. The list is
// append-only; retries and resumptions each add an entry.
type Execution struct {
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	TraceIDs  []string   `json:"traceIds,omitempty"`
}

// FlowResult carries the outcome of a finished flow: either a response or
// an error with the stack captured at the failure site.
type FlowResult struct {
	Response   any    `json:"response,omitempty"`
	Error      string `json:"error,omitempty"`
	Stacktrace string `json:"stacktrace,omitempty"`
}

// Operation is the externally visible projection of a flow execution.
// Callers poll or receive this shape regardless of whether the flow finished
// synchronously or is still in flight.
type Operation struct {
	// Name is the flowId of the execution this operation tracks.
	Name      string         `json:"name"`
	Done      bool           `json:"done"`
	BlockedOn *BlockedStep   `json:"blockedOnStep,omitempty"`
	Result    *FlowResult    `json:"result,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// FlowState is the full durable record of one flow execution. It is owned by
// the flow state store for the lifetime of its flowId; the dispatcher holds
// at most a transient working copy while processing a message.
type FlowState struct {
	FlowID    string    `json:"flowId"`
	Name      string    `json:"name"`
	Input     any       `json:"input,omitempty"`
	StartTime time.Time `json:"startTime"`
	Status    Status    `json:"status"`

	// Cache maps step name to its memoized result. Entries are write-once:
	// a step, once cached, is never re-executed within this flowId.
	Cache map[string]*CacheEntry `json:"cache,omitempty"`

	BlockedOn  *BlockedStep `json:"blockedOnStep,omitempty"`
	Executions []Execution  `json:"executions,omitempty"`

	// Operation is the latest projection, overwritten on each transition.
	Operation *Operation `json:"operation,omitempty"`

	// EventsTriggered records external event payloads delivered to this
	// flow, used when a suspended flow is resumed by an event.
	EventsTriggered map[string]any `json:"eventsTriggered,omitempty"`

	// TraceContext is the serialized trace-propagation context of the most
	// recent execution attempt (W3C traceparent carrier).
	TraceContext map[string]string `json:"traceContext,omitempty"`

	Labels map[string]string `json:"labels,omitempty"`
}

// LatestExecution returns the most recent execution attempt, or nil if none
// has been recorded.
func (fs *FlowState) LatestExecution() *Execution {
	if len(fs.Executions) == 0 {
		return nil
	}
	return &fs.Executions[len(fs.Executions)-1]
}

// FlowStateSummary is the compact listing shape returned by
// FlowStateStore.List. It is used for operational inspection only.
type FlowStateSummary struct {
	FlowID    string    `json:"flowId"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	StartTime time.Time `json:"startTime"`
	Done      bool      `json:"done"`
}

// Summary projects a FlowState into its listing shape.
func (fs *FlowState) Summary() *FlowStateSummary {
	done := false
	if fs.Operation != nil {
		done = fs.Operation.Done
	}
	return &FlowStateSummary{
		FlowID:    fs.FlowID,
		Name:      fs.Name,
		Status:    fs.Status,
		StartTime: fs.StartTime,
		Done:      done,
	}
}

// StateQuery filters and paginates FlowStateStore.List results.
type StateQuery struct {
	// Name, if non-empty, limits results to executions of the given flow.
	Name string
	// Limit caps the page size. Zero means a store-chosen default.
	Limit int
	// ContinuationToken resumes a previous listing. Empty starts from the
	// beginning; stores return an empty token when the listing is done.
	ContinuationToken string
}

// NormalizeJSON round-trips v through JSON so that values observed on a
// first run and values reloaded from a persisted cache have an identical
// shape. Step outputs and flow inputs must therefore be JSON-marshalable.
func NormalizeJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
