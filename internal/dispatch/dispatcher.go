package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/petrijr/genflow/pkg/api"
)

// Dispatcher drives flow executions through the state machine. It interprets
// control messages, reads and writes the flow state store, and invokes flow
// bodies. It holds no timers and no queue: delayed delivery and retries of
// the messages themselves belong to the transport collaborator.
type Dispatcher struct {
	store      api.FlowStateStore
	registry   *api.Registry
	observer   api.Observer
	locks      *flowLocks
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
}

var _ api.Dispatcher = (*Dispatcher)(nil)

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithObserver attaches an observer for flow and step lifecycle events.
func WithObserver(obs api.Observer) Option {
	return func(d *Dispatcher) {
		if obs != nil {
			d.observer = obs
		}
	}
}

// WithRegistry uses a caller-provided action registry instead of a fresh one.
func WithRegistry(r *api.Registry) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.registry = r
		}
	}
}

// WithTracerProvider overrides the tracer provider, mainly for tests.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(d *Dispatcher) {
		if tp != nil {
			d.tracer = tp.Tracer("github.com/petrijr/genflow")
		}
	}
}

// New creates a Dispatcher over the given state store.
func New(store api.FlowStateStore, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:      store,
		registry:   api.NewRegistry(),
		observer:   api.NoopObserver{},
		locks:      newFlowLocks(),
		tracer:     otel.Tracer("github.com/petrijr/genflow"),
		propagator: propagation.TraceContext{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the dispatcher's action registry.
func (d *Dispatcher) Registry() *api.Registry { return d.registry }

// DefineFlow registers a flow definition and its compiled action.
func (d *Dispatcher) DefineFlow(cfg api.FlowConfig, steps api.StepsFunc) (*api.Flow, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("flow name is required")
	}
	if steps == nil {
		return nil, fmt.Errorf("flow %q has no steps function", cfg.Name)
	}
	f := api.NewFlow(cfg, steps, d)
	if err := d.registry.RegisterFlow(f, f.Action()); err != nil {
		return nil, err
	}
	return f, nil
}

// Dispatch handles one control message.
func (d *Dispatcher) Dispatch(ctx context.Context, env *api.FlowInvokeEnvelopeMessage) (*api.Operation, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	switch {
	case env.Start != nil:
		return d.Run(ctx, env.Start.Flow, env.Start.Input, api.WithLabels(env.Start.Labels))
	case env.Schedule != nil:
		return d.Schedule(ctx, env.Schedule.Flow, env.Schedule.Input)
	case env.RunScheduled != nil:
		return d.RunScheduled(ctx, env.RunScheduled.FlowID)
	case env.Resume != nil:
		return d.Resume(ctx, env.Resume.FlowID, env.Resume.Payload)
	case env.Retry != nil:
		return d.Retry(ctx, env.Retry.FlowID)
	default:
		return d.State(ctx, env.State.FlowID)
	}
}

// Run starts a new execution and runs it to completion or suspension.
func (d *Dispatcher) Run(ctx context.Context, flowName string, input any, opts ...api.RunOption) (*api.Operation, error) {
	flow, fs, failedOp, err := d.prepare(ctx, flowName, input, opts)
	if err != nil {
		return nil, err
	}
	if failedOp != nil {
		return failedOp, nil
	}

	unlock := d.locks.lock(fs.FlowID)
	defer unlock()

	fc := api.NewFlowContext(fs, d.store, d.observer)
	return d.execute(ctx, flow, fc)
}

// Stream starts a new execution with a chunk channel attached. Setup errors
// (unknown flow, auth denial) surface synchronously; the flow body then runs
// on its own goroutine and the returned stream settles when it finishes.
func (d *Dispatcher) Stream(ctx context.Context, flowName string, input any, opts ...api.RunOption) (*api.FlowStream, error) {
	flow, fs, failedOp, err := d.prepare(ctx, flowName, input, opts)
	if err != nil {
		return nil, err
	}

	stream := api.NewFlowStream()
	if failedOp != nil {
		stream.Settle(failedOp, nil)
		return stream, nil
	}

	fc := api.NewFlowContext(fs, d.store, d.observer)
	fc.SetStream(stream.Emit, flow.Config().StreamSchema)

	go func() {
		unlock := d.locks.lock(fs.FlowID)
		defer unlock()

		op, err := d.execute(ctx, flow, fc)
		// Settling the flow context detaches the sink; the stream itself
		// also ignores emissions after it settles, so a chunk from a
		// straggling goroutine is dropped rather than racing the close.
		fc.Settle()
		stream.Settle(op, err)
	}()
	return stream, nil
}

// Schedule creates a flow state without executing it.
func (d *Dispatcher) Schedule(ctx context.Context, flowName string, input any) (*api.Operation, error) {
	flow, ok := d.registry.LookupFlow(flowName)
	if !ok {
		return nil, fmt.Errorf("flow %q: %w", flowName, api.ErrNotFound)
	}

	normalized, err := api.NormalizeJSON(input)
	if err != nil {
		return nil, fmt.Errorf("flow %q: input not serializable: %w", flowName, err)
	}

	fs := newFlowState(flow.Name(), normalized, nil)
	fs.Status = api.StatusCreated
	fs.Operation = &api.Operation{Name: fs.FlowID, Done: false}

	if err := d.store.Create(ctx, fs); err != nil {
		return nil, err
	}
	return fs.Operation, nil
}

// RunScheduled executes a previously scheduled flow now.
func (d *Dispatcher) RunScheduled(ctx context.Context, flowID string) (*api.Operation, error) {
	unlock := d.locks.lock(flowID)
	defer unlock()

	fs, err := d.store.Load(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if fs.Status != api.StatusCreated {
		return nil, fmt.Errorf("flow %s is %s, not scheduled: %w", flowID, fs.Status, api.ErrInvalidState)
	}

	flow, ok := d.registry.LookupFlow(fs.Name)
	if !ok {
		return nil, fmt.Errorf("flow %q: %w", fs.Name, api.ErrNotFound)
	}

	fc := api.NewFlowContext(fs, d.store, d.observer)
	return d.execute(ctx, flow, fc)
}

// Resume supplies external input to unblock a suspended flow.
func (d *Dispatcher) Resume(ctx context.Context, flowID string, payload any) (*api.Operation, error) {
	unlock := d.locks.lock(flowID)
	defer unlock()

	fs, err := d.store.Load(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if fs.Status != api.StatusBlocked || fs.BlockedOn == nil {
		return nil, fmt.Errorf("flow %s is not blocked: %w", flowID, api.ErrInvalidState)
	}

	// The payload must satisfy the schema persisted when the flow suspended.
	if err := fs.BlockedOn.Schema.Validate(fs.BlockedOn.Name, payload); err != nil {
		return nil, err
	}

	flow, ok := d.registry.LookupFlow(fs.Name)
	if !ok {
		return nil, fmt.Errorf("flow %q: %w", fs.Name, api.ErrNotFound)
	}

	step := fs.BlockedOn.Name
	fs.BlockedOn = nil

	fc := api.NewFlowContext(fs, d.store, d.observer)
	fc.SetResume(step, payload)
	return d.execute(ctx, flow, fc)
}

// Retry re-attempts a failed or blocked execution from its last persisted
// state. Memoized steps are skipped on replay.
func (d *Dispatcher) Retry(ctx context.Context, flowID string) (*api.Operation, error) {
	unlock := d.locks.lock(flowID)
	defer unlock()

	fs, err := d.store.Load(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if fs.Status != api.StatusFailed && fs.Status != api.StatusBlocked {
		return nil, fmt.Errorf("flow %s is %s, not retryable: %w", flowID, fs.Status, api.ErrInvalidState)
	}

	flow, ok := d.registry.LookupFlow(fs.Name)
	if !ok {
		return nil, fmt.Errorf("flow %q: %w", fs.Name, api.ErrNotFound)
	}

	fs.BlockedOn = nil

	fc := api.NewFlowContext(fs, d.store, d.observer)
	return d.execute(ctx, flow, fc)
}

// State returns the operation projection with no side effects.
func (d *Dispatcher) State(ctx context.Context, flowID string) (*api.Operation, error) {
	fs, err := d.store.Load(ctx, flowID)
	if err != nil {
		return nil, err
	}
	if fs.Operation != nil {
		return fs.Operation, nil
	}
	return &api.Operation{Name: fs.FlowID, Done: false}, nil
}

// ListStates returns a page of flow state summaries.
func (d *Dispatcher) ListStates(ctx context.Context, q api.StateQuery) ([]*api.FlowStateSummary, string, error) {
	return d.store.List(ctx, q)
}

// prepare creates the flow state for a new execution. It returns a non-nil
// failedOp when input validation rejected the request: the failure is already
// persisted and no step may run.
func (d *Dispatcher) prepare(ctx context.Context, flowName string, input any, opts []api.RunOption) (flow *api.Flow, fs *api.FlowState, failedOp *api.Operation, err error) {
	flow, ok := d.registry.LookupFlow(flowName)
	if !ok {
		return nil, nil, nil, fmt.Errorf("flow %q: %w", flowName, api.ErrNotFound)
	}
	o := api.ApplyRunOptions(opts)

	// Authorization is checked before any state exists; a denied request
	// leaves no trace in the store.
	if auth := flow.Config().Auth; auth != nil {
		if err := auth(ctx, o.AuthContext, input); err != nil {
			return nil, nil, nil, &api.AuthorizationError{Flow: flowName, Err: err}
		}
	}

	normalized, err := api.NormalizeJSON(input)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("flow %q: input not serializable: %w", flowName, err)
	}

	fs = newFlowState(flow.Name(), normalized, o.Labels)

	// Invalid input is a business failure: the flow is recorded as failed
	// without ever running a step.
	if verr := flow.Config().InputSchema.Validate("input", normalized); verr != nil {
		fs.Status = api.StatusFailed
		fs.Operation = &api.Operation{
			Name: fs.FlowID,
			Done: true,
			Result: &api.FlowResult{
				Error: verr.Error(),
			},
		}
		if cerr := d.store.Create(ctx, fs); cerr != nil {
			return nil, nil, nil, cerr
		}
		d.observer.OnFlowFailed(ctx, fs, verr)
		return nil, nil, fs.Operation, nil
	}

	if err := d.store.Create(ctx, fs); err != nil {
		return nil, nil, nil, err
	}
	return flow, fs, nil, nil
}

func newFlowState(flowName string, input any, labels map[string]string) *api.FlowState {
	return &api.FlowState{
		FlowID:    uuid.NewString(),
		Name:      flowName,
		Input:     input,
		StartTime: nowFunc(),
		Status:    api.StatusRunning,
		Cache:     make(map[string]*api.CacheEntry),
		Labels:    labels,
	}
}
