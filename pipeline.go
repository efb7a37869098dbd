package genflow

import (
	"context"
	"fmt"

	"github.com/petrijr/genflow/pkg/api"
)

// StageFunc is one pipeline stage. It receives the previous stage's output
// (the flow input for the first stage) and returns its own output.
type StageFunc func(ctx context.Context, input any) (any, error)

// Pipeline provides a fluent way to compose a flow out of named, memoized
// stages executed in order. Each stage becomes a durable step: a replayed
// execution skips stages that already completed.
//
//	flow, err := genflow.NewPipeline("onboardUser").
//	    Stage("createAccount", createAccount).
//	    Stage("sendWelcomeEmail", sendWelcomeEmail).
//	    Define(dispatcher, genflow.FlowConfig{})
type Pipeline struct {
	name   string
	stages []pipelineStage
}

type pipelineStage struct {
	name     string
	fn       StageFunc
	blocking bool
}

// NewPipeline creates a pipeline builder with the given flow name.
func NewPipeline(name string) *Pipeline {
	return &Pipeline{name: name}
}

// Name returns the pipeline's flow name.
func (p *Pipeline) Name() string { return p.name }

// Stage appends a named stage.
func (p *Pipeline) Stage(name string, fn StageFunc) *Pipeline {
	if name == "" {
		panic("genflow: stage name must not be empty")
	}
	if fn == nil {
		panic(fmt.Sprintf("genflow: stage %q has nil function", name))
	}
	p.stages = append(p.stages, pipelineStage{name: name, fn: fn})
	return p
}

// AwaitEvent appends a blocking stage that suspends the flow until a resume
// message supplies a payload for eventName. The previous stage's output is
// discarded; the stage yields the resume payload. schema may be nil.
func (p *Pipeline) AwaitEvent(eventName string, schema *Schema) *Pipeline {
	if eventName == "" {
		panic("genflow: event name must not be empty")
	}
	p.stages = append(p.stages, pipelineStage{
		name: eventName,
		fn: func(ctx context.Context, _ any) (any, error) {
			return api.WaitForEvent(ctx, eventName, schema)
		},
		blocking: true,
	})
	return p
}

// Steps compiles the pipeline into a flow body.
func (p *Pipeline) Steps() StepsFunc {
	stages := append([]pipelineStage(nil), p.stages...)
	return func(ctx context.Context, input any) (any, error) {
		current := input
		for _, st := range stages {
			if st.blocking {
				out, err := st.fn(ctx, current)
				if err != nil {
					return nil, err
				}
				current = out
				continue
			}
			st := st
			prev := current
			out, err := api.RunStep(ctx, st.name, func(ctx context.Context) (any, error) {
				return st.fn(ctx, prev)
			})
			if err != nil {
				return nil, err
			}
			current = out
		}
		return current, nil
	}
}

// Define registers the pipeline as a flow on the given dispatcher. The
// config's Name field is overridden by the pipeline's name.
func (p *Pipeline) Define(d Dispatcher, cfg FlowConfig) (*Flow, error) {
	if len(p.stages) == 0 {
		return nil, fmt.Errorf("pipeline %q has no stages", p.name)
	}
	cfg.Name = p.name
	return d.DefineFlow(cfg, p.Steps())
}

// MustDefine is like Define but panics on error. Useful in main().
func (p *Pipeline) MustDefine(d Dispatcher, cfg FlowConfig) *Flow {
	f, err := p.Define(d, cfg)
	if err != nil {
		panic(err)
	}
	return f
}
