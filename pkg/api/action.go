package api

import (
	"context"
	"fmt"
	"sync"
)

// ActionFunc is the work an action performs.
type ActionFunc func(ctx context.Context, input any) (any, error)

// StreamingActionFunc additionally emits incremental chunks through onChunk
// before returning the final output. onChunk must not be retained after the
// call returns.
type StreamingActionFunc func(ctx context.Context, input any, onChunk func(any)) (any, error)

// Action is a named, schema-validated, invocable unit of work: a model call,
// a tool call, or an arbitrary function. Actions are immutable once
// registered and uniquely named within a registry.
type Action struct {
	Name         string
	InputSchema  *Schema
	OutputSchema *Schema
	StreamSchema *Schema

	fn       ActionFunc
	streamFn StreamingActionFunc
}

// ActionConfig describes an Action under construction.
type ActionConfig struct {
	Name         string
	InputSchema  *Schema
	OutputSchema *Schema
	StreamSchema *Schema
	Func         ActionFunc
	StreamFunc   StreamingActionFunc
}

// NewAction builds an Action. Name and Func are required; StreamFunc is
// optional and enables InvokeStreaming.
func NewAction(cfg ActionConfig) (*Action, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("action name is required")
	}
	if cfg.Func == nil && cfg.StreamFunc == nil {
		return nil, fmt.Errorf("action %q has no function", cfg.Name)
	}
	return &Action{
		Name:         cfg.Name,
		InputSchema:  cfg.InputSchema,
		OutputSchema: cfg.OutputSchema,
		StreamSchema: cfg.StreamSchema,
		fn:           cfg.Func,
		streamFn:     cfg.StreamFunc,
	}, nil
}

// Invoke validates input, runs the action, and validates its output.
func (a *Action) Invoke(ctx context.Context, input any) (any, error) {
	if err := a.InputSchema.Validate("input", input); err != nil {
		return nil, fmt.Errorf("action %q: %w", a.Name, err)
	}
	fn := a.fn
	if fn == nil {
		// Stream-only actions still support plain invocation; chunks are
		// dropped.
		fn = func(ctx context.Context, input any) (any, error) {
			return a.streamFn(ctx, input, func(any) {})
		}
	}
	out, err := fn(ctx, input)
	if err != nil {
		return nil, err
	}
	if err := a.OutputSchema.Validate("output", out); err != nil {
		return nil, fmt.Errorf("action %q: %w", a.Name, err)
	}
	return out, nil
}

// InvokeStreaming is like Invoke but delivers incremental chunks to onChunk.
// Actions without a stream function fall back to Invoke with no chunks.
func (a *Action) InvokeStreaming(ctx context.Context, input any, onChunk func(any)) (any, error) {
	if a.streamFn == nil {
		return a.Invoke(ctx, input)
	}
	if err := a.InputSchema.Validate("input", input); err != nil {
		return nil, fmt.Errorf("action %q: %w", a.Name, err)
	}
	sink := onChunk
	if sink == nil {
		sink = func(any) {}
	}
	out, err := a.streamFn(ctx, input, sink)
	if err != nil {
		return nil, err
	}
	if err := a.OutputSchema.Validate("output", out); err != nil {
		return nil, fmt.Errorf("action %q: %w", a.Name, err)
	}
	return out, nil
}

// Registry maps action names to actions. It is populated at startup before
// any flow executes and treated as immutable thereafter, so the read path
// takes only an RLock.
//
// Tests should construct a fresh registry rather than share a singleton.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]*Action
	flows   map[string]*Flow
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[string]*Action),
		flows:   make(map[string]*Flow),
	}
}

// RegisterAction adds an action. Registering a duplicate name is a
// configuration error raised immediately, not at run time.
func (r *Registry) RegisterAction(a *Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.actions[a.Name]; ok {
		return fmt.Errorf("action already registered: %s", a.Name)
	}
	r.actions[a.Name] = a
	return nil
}

// LookupAction returns the action registered under name.
func (r *Registry) LookupAction(name string) (*Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.actions[name]
	return a, ok
}

// RegisterFlow adds a flow and its compiled action in one step.
func (r *Registry) RegisterFlow(f *Flow, a *Action) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.flows[f.Name()]; ok {
		return fmt.Errorf("flow already defined: %s", f.Name())
	}
	if _, ok := r.actions[a.Name]; ok {
		return fmt.Errorf("action already registered: %s", a.Name)
	}
	r.flows[f.Name()] = f
	r.actions[a.Name] = a
	return nil
}

// LookupFlow returns the flow defined under name.
func (r *Registry) LookupFlow(name string) (*Flow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.flows[name]
	return f, ok
}

// ActionNames returns the registered action names in unspecified order.
func (r *Registry) ActionNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	return names
}
