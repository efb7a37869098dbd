package api

import "context"

// FlowStateStore is the pluggable persistence contract for flow executions.
// Any key-value or document store satisfying these four operations with
// per-key atomic overwrite is a valid backend.
//
// The store provides no optimistic concurrency control: callers are
// responsible for read-modify-write ordering. The dispatcher serializes
// access per flowId before loading and releases only after persisting.
type FlowStateStore interface {
	// Create stores a new flow state. It fails with ErrAlreadyExists if the
	// flowId is already present.
	Create(ctx context.Context, fs *FlowState) error

	// Load reads the flow state for a flowId. It fails with ErrNotFound if
	// absent.
	Load(ctx context.Context, flowID string) (*FlowState, error)

	// Save overwrites the full record keyed by flowId. It fails with
	// ErrNotFound if the flowId was never created.
	Save(ctx context.Context, fs *FlowState) error

	// List returns a page of flow state summaries matching q, in a
	// deterministic order, together with a continuation token. An empty
	// token means the listing reached the end. List is for operational
	// inspection only, not the execution hot path.
	List(ctx context.Context, q StateQuery) ([]*FlowStateSummary, string, error)
}
