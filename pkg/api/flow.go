package api

import (
	"context"
	"errors"
)

// FlowActionPrefix is the key space under which flows are registered in the
// action registry.
const FlowActionPrefix = "/flow/"

// StepsFunc is the body of a flow. It runs to completion or suspension on
// each execution attempt; individual steps inside it are memoized via
// RunStep, so replaying the body after a crash or resume re-executes only
// steps that had not yet completed.
type StepsFunc func(ctx context.Context, input any) (any, error)

// AuthPolicy is invoked with the caller-supplied auth context and the flow
// input before any step executes. Returning an error denies the request.
type AuthPolicy func(ctx context.Context, authContext any, input any) error

// FlowConfig describes a flow definition.
type FlowConfig struct {
	// Name must be unique within the process's action registry.
	Name         string
	InputSchema  *Schema
	OutputSchema *Schema
	StreamSchema *Schema
	Auth         AuthPolicy
}

// Flow is a named, schema-validated definition pairing its schemas with a
// steps function. A flow compiles to an Action and is executed through a
// Dispatcher, which owns the state machine.
type Flow struct {
	cfg        FlowConfig
	steps      StepsFunc
	dispatcher Dispatcher
}

// NewFlow builds a flow definition. Most callers use Dispatcher.DefineFlow,
// which also registers the flow and its action.
func NewFlow(cfg FlowConfig, steps StepsFunc, d Dispatcher) *Flow {
	return &Flow{cfg: cfg, steps: steps, dispatcher: d}
}

// Name returns the flow's definition name.
func (f *Flow) Name() string { return f.cfg.Name }

// Config returns the flow's configuration.
func (f *Flow) Config() FlowConfig { return f.cfg }

// Steps returns the flow body.
func (f *Flow) Steps() StepsFunc { return f.steps }

// Run executes the flow to completion or suspension through its dispatcher.
func (f *Flow) Run(ctx context.Context, input any, opts ...RunOption) (*Operation, error) {
	return f.dispatcher.Run(ctx, f.cfg.Name, input, opts...)
}

// Stream is like Run but additionally delivers incremental output chunks.
func (f *Flow) Stream(ctx context.Context, input any, opts ...RunOption) (*FlowStream, error) {
	return f.dispatcher.Stream(ctx, f.cfg.Name, input, opts...)
}

// Action compiles the flow into an invocable action registered under the
// flow key space.
func (f *Flow) Action() *Action {
	return &Action{
		Name:         FlowActionPrefix + f.cfg.Name,
		InputSchema:  f.cfg.InputSchema,
		OutputSchema: f.cfg.OutputSchema,
		StreamSchema: f.cfg.StreamSchema,
		fn: func(ctx context.Context, input any) (any, error) {
			op, err := f.dispatcher.Run(ctx, f.cfg.Name, input)
			if err != nil {
				return nil, err
			}
			if op.Result != nil && op.Result.Error != "" {
				return nil, &StepExecutionError{Step: f.cfg.Name, Err: opError(op)}
			}
			if op.Result == nil {
				return nil, nil
			}
			return op.Result.Response, nil
		},
	}
}

func opError(op *Operation) error {
	return errors.New(op.Result.Error)
}

// RunOption configures a single Run or Stream invocation.
type RunOption func(*RunOptions)

// RunOptions carries per-invocation settings.
type RunOptions struct {
	AuthContext any
	Labels      map[string]string
}

// WithAuthContext supplies the auth context passed to the flow's AuthPolicy.
func WithAuthContext(v any) RunOption {
	return func(o *RunOptions) { o.AuthContext = v }
}

// WithLabels attaches caller labels to the flow state.
func WithLabels(labels map[string]string) RunOption {
	return func(o *RunOptions) { o.Labels = labels }
}

// ApplyRunOptions folds opts into a RunOptions value.
func ApplyRunOptions(opts []RunOption) RunOptions {
	var o RunOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Dispatcher interprets inbound control messages and drives flow executions
// through the state machine, reading and writing the flow state store.
type Dispatcher interface {
	// DefineFlow registers a flow definition and its compiled action.
	// Redefinition under the same name is a configuration error.
	DefineFlow(cfg FlowConfig, steps StepsFunc) (*Flow, error)

	// Dispatch handles one control message. Engine-level failures (unknown
	// flowId, invalid state, store errors) return a non-nil error; business
	// failures inside the flow body are reported via the operation's result
	// with a nil error.
	Dispatch(ctx context.Context, env *FlowInvokeEnvelopeMessage) (*Operation, error)

	// Run starts a new execution and runs it to completion or suspension.
	Run(ctx context.Context, flowName string, input any, opts ...RunOption) (*Operation, error)

	// Stream is like Run but opens a streaming channel before invoking the
	// flow body. The returned stream's chunk channel is closed exactly once
	// when the operation settles.
	Stream(ctx context.Context, flowName string, input any, opts ...RunOption) (*FlowStream, error)

	// Schedule creates a flow state without executing it. The delay is
	// honored by the transport collaborator, not the dispatcher.
	Schedule(ctx context.Context, flowName string, input any) (*Operation, error)

	// RunScheduled executes a previously scheduled flow now.
	RunScheduled(ctx context.Context, flowID string) (*Operation, error)

	// Resume supplies external input to unblock a suspended flow. It fails
	// with ErrInvalidState if the flow is not blocked.
	Resume(ctx context.Context, flowID string, payload any) (*Operation, error)

	// Retry re-attempts a failed or blocked execution from its last
	// persisted state, skipping completed steps.
	Retry(ctx context.Context, flowID string) (*Operation, error)

	// State returns the operation projection with no side effects.
	State(ctx context.Context, flowID string) (*Operation, error)

	// ListStates returns a page of flow state summaries.
	ListStates(ctx context.Context, q StateQuery) ([]*FlowStateSummary, string, error)

	// Registry returns the dispatcher's action registry.
	Registry() *Registry
}
