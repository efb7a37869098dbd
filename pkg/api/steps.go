package api

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// FlowContext carries the runtime state of one flow execution attempt. The
// dispatcher constructs it before invoking the flow body and places it on
// the context; step helpers retrieve it from there.
//
// Application code never builds a FlowContext directly.
type FlowContext struct {
	State    *FlowState
	Store    FlowStateStore
	Observer Observer

	// mu serializes cache mutation and per-step persistence when the flow
	// body fans out to concurrent steps.
	mu sync.Mutex

	sink         func(any)
	streamSchema *Schema
	settled      bool

	resumeStep    string
	resumePayload any
	hasResume     bool
}

// NewFlowContext builds the runtime context for one execution attempt.
func NewFlowContext(state *FlowState, store FlowStateStore, obs Observer) *FlowContext {
	if obs == nil {
		obs = NoopObserver{}
	}
	return &FlowContext{State: state, Store: store, Observer: obs}
}

// SetStream attaches a chunk sink for a streaming execution. The sink is
// valid only until Settle is called.
func (fc *FlowContext) SetStream(sink func(any), schema *Schema) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.sink = sink
	fc.streamSchema = schema
}

// SetResume injects the payload resolving the blocking step for this
// execution attempt.
func (fc *FlowContext) SetResume(step string, payload any) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.resumeStep = step
	fc.resumePayload = payload
	fc.hasResume = true
}

// Settle marks the operation as settled and detaches the sink. Any later
// chunk emission is a no-op. An emission already past the sink check is
// tolerated: FlowStream ignores emits after its own settlement.
func (fc *FlowContext) Settle() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.settled = true
	fc.sink = nil
}

// emit delivers one chunk if the execution is streaming and not settled.
func (fc *FlowContext) emit(chunk any) error {
	fc.mu.Lock()
	sink := fc.sink
	schema := fc.streamSchema
	fc.mu.Unlock()

	if sink == nil {
		return nil
	}
	if err := schema.Validate("chunk", chunk); err != nil {
		return err
	}
	sink(chunk)
	return nil
}

// cached returns the memo entry for a step, if present.
func (fc *FlowContext) cached(step string) (*CacheEntry, bool) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	entry, ok := fc.State.Cache[step]
	return entry, ok
}

// memoize records a step result with first-write-wins semantics and
// persists the flow state before returning. The returned value is the one
// actually cached, which may differ from out if a concurrent attempt won.
func (fc *FlowContext) memoize(ctx context.Context, step string, out any) (any, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	if entry, ok := fc.State.Cache[step]; ok {
		if entry.Empty {
			return nil, nil
		}
		return entry.Value, nil
	}

	entry := &CacheEntry{}
	if out == nil {
		entry.Empty = true
	} else {
		entry.Value = out
	}
	if fc.State.Cache == nil {
		fc.State.Cache = make(map[string]*CacheEntry)
	}
	fc.State.Cache[step] = entry

	if err := fc.Store.Save(ctx, fc.State); err != nil {
		return nil, NewPersistError(err)
	}
	if entry.Empty {
		return nil, nil
	}
	return entry.Value, nil
}

// takeResume consumes the resume payload if it targets the given step.
func (fc *FlowContext) takeResume(step string) (any, bool) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if !fc.hasResume || fc.resumeStep != step {
		return nil, false
	}
	fc.hasResume = false
	return fc.resumePayload, true
}

type flowContextKey struct{}

// WithFlowContext attaches a FlowContext to ctx. Used by the dispatcher.
func WithFlowContext(ctx context.Context, fc *FlowContext) context.Context {
	return context.WithValue(ctx, flowContextKey{}, fc)
}

// FlowContextFrom retrieves the FlowContext from ctx, if any.
func FlowContextFrom(ctx context.Context) (*FlowContext, bool) {
	fc, ok := ctx.Value(flowContextKey{}).(*FlowContext)
	return fc, ok
}

var stepTracer = otel.Tracer("github.com/petrijr/genflow")

// RunStep executes a named, memoized step inside a flow body. The thunk runs
// at most once per flowId: a cached result is returned without invoking fn,
// and a fresh result is persisted before control returns to the flow body.
// Errors are re-raised to the caller and never cached, so a retried
// execution re-runs only the failed step.
//
// Outside a flow execution, RunStep degrades to calling fn directly.
func RunStep(ctx context.Context, name string, fn func(ctx context.Context) (any, error)) (any, error) {
	fc, ok := FlowContextFrom(ctx)
	if !ok {
		return fn(ctx)
	}

	if entry, ok := fc.cached(name); ok {
		fc.Observer.OnStepCached(ctx, fc.State, name)
		if entry.Empty {
			return nil, nil
		}
		return entry.Value, nil
	}

	ctx, span := stepTracer.Start(ctx, "step "+name,
		trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	fc.Observer.OnStepStart(ctx, fc.State, name)
	started := time.Now()
	out, err := fn(ctx)
	fc.Observer.OnStepCompleted(ctx, fc.State, name, err, time.Since(started))

	if err != nil {
		if _, _, blocked := IsBlockedError(err); blocked {
			return nil, err
		}
		if IsPersistError(err) {
			return nil, err
		}
		return nil, &StepExecutionError{Step: name, Err: err, Stack: string(debug.Stack())}
	}

	normalized, err := NormalizeJSON(out)
	if err != nil {
		return nil, &StepExecutionError{Step: name, Err: fmt.Errorf("step output not serializable: %w", err)}
	}
	return fc.memoize(ctx, name, normalized)
}

// TypedRunStep is a typed wrapper over RunStep. Cached values are decoded
// back into T through their JSON form.
func TypedRunStep[T any](ctx context.Context, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	out, err := RunStep(ctx, name, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	if out == nil {
		return zero, nil
	}
	data, err := json.Marshal(out)
	if err != nil {
		return zero, err
	}
	var typed T
	if err := json.Unmarshal(data, &typed); err != nil {
		return zero, err
	}
	return typed, nil
}

// WaitForEvent is a blocking step: it suspends the flow until a resume
// message (or a previously recorded event) supplies a payload for name. On
// replay after resumption the payload is memoized like any step result, so
// the flow body can be re-entered safely.
//
// schema, if non-nil, validates the resume payload before it is accepted.
func WaitForEvent(ctx context.Context, name string, schema *Schema) (any, error) {
	fc, ok := FlowContextFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("WaitForEvent called outside a flow execution")
	}

	if entry, ok := fc.cached(name); ok {
		fc.Observer.OnStepCached(ctx, fc.State, name)
		if entry.Empty {
			return nil, nil
		}
		return entry.Value, nil
	}

	payload, ok := fc.takeResume(name)
	if !ok {
		// A previously delivered event can also unblock the step.
		fc.mu.Lock()
		if v, found := fc.State.EventsTriggered[name]; found {
			payload, ok = v, true
		}
		fc.mu.Unlock()
	}
	if !ok {
		return nil, NewBlockedError(name, schema)
	}

	if err := schema.Validate(name, payload); err != nil {
		return nil, err
	}

	normalized, err := NormalizeJSON(payload)
	if err != nil {
		return nil, &StepExecutionError{Step: name, Err: fmt.Errorf("resume payload not serializable: %w", err)}
	}

	fc.mu.Lock()
	if fc.State.EventsTriggered == nil {
		fc.State.EventsTriggered = make(map[string]any)
	}
	fc.State.EventsTriggered[name] = normalized
	fc.mu.Unlock()

	return fc.memoize(ctx, name, normalized)
}

// EmitChunk delivers one incremental output chunk to the caller of Stream.
// Outside a streaming execution, or after the operation settles, it is a
// no-op. The chunk is validated against the flow's stream schema if one is
// configured.
func EmitChunk(ctx context.Context, chunk any) error {
	fc, ok := FlowContextFrom(ctx)
	if !ok {
		return nil
	}
	return fc.emit(chunk)
}

// Sleep waits for d, honoring ctx cancellation. It is a plain helper, not a
// memoized step: a replayed execution sleeps again.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
