package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/petrijr/genflow/pkg/api"
)

// nowFunc is a test seam for clock control.
var nowFunc = time.Now

// execute runs one attempt of the flow body and settles the state machine:
// DONE on success, BLOCKED on suspension, FAILED on a business error. Engine
// failures (store unavailability) propagate as a non-nil error and leave the
// state at its last persisted snapshot.
//
// The caller must hold the flow's lock.
func (d *Dispatcher) execute(ctx context.Context, flow *api.Flow, fc *api.FlowContext) (*api.Operation, error) {
	fs := fc.State

	// Each attempt continues the trace of the previous one, so a resumed or
	// retried flow shows up as one logical trace across processes.
	if len(fs.TraceContext) > 0 {
		ctx = d.propagator.Extract(ctx, propagation.MapCarrier(fs.TraceContext))
	}
	ctx, span := d.tracer.Start(ctx, "flow "+fs.Name,
		trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	fs.TraceContext = make(map[string]string)
	d.propagator.Inject(ctx, propagation.MapCarrier(fs.TraceContext))

	exec := api.Execution{StartTime: nowFunc()}
	if sc := span.SpanContext(); sc.HasTraceID() {
		exec.TraceIDs = append(exec.TraceIDs, sc.TraceID().String())
	}
	fs.Executions = append(fs.Executions, exec)
	fs.Status = api.StatusRunning
	fs.BlockedOn = nil
	fs.Operation = &api.Operation{Name: fs.FlowID, Done: false}

	if err := d.store.Save(ctx, fs); err != nil {
		return nil, api.NewPersistError(err)
	}

	d.observer.OnFlowStart(ctx, fs)

	out, err := invokeSteps(api.WithFlowContext(ctx, fc), flow, fs.Input)

	finish := nowFunc()
	if last := fs.LatestExecution(); last != nil {
		last.EndTime = &finish
	}

	op := &api.Operation{Name: fs.FlowID, Metadata: operationMetadata(fs)}

	switch {
	case err == nil:
		if verr := flow.Config().OutputSchema.Validate("output", out); verr != nil {
			err = verr
			break
		}
		normalized, nerr := api.NormalizeJSON(out)
		if nerr != nil {
			err = fmt.Errorf("flow output not serializable: %w", nerr)
			break
		}
		fs.Status = api.StatusDone
		op.Done = true
		op.Result = &api.FlowResult{Response: normalized}

	case api.IsPersistError(err):
		// The store failed mid-flight. Do not attempt another save; the
		// message can be redelivered against the last good snapshot.
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if step, schema, blocked := api.IsBlockedError(err); blocked {
		fs.Status = api.StatusBlocked
		fs.BlockedOn = &api.BlockedStep{Name: step, Schema: schema}
		op.Done = false
		op.BlockedOn = fs.BlockedOn
		err = nil
		fs.Operation = op
		if serr := d.store.Save(ctx, fs); serr != nil {
			return nil, api.NewPersistError(serr)
		}
		d.observer.OnFlowBlocked(ctx, fs, step)
		return op, nil
	}

	if err != nil {
		fs.Status = api.StatusFailed
		op.Done = true
		op.Result = &api.FlowResult{
			Error:      err.Error(),
			Stacktrace: errorStack(err),
		}
		span.SetStatus(codes.Error, err.Error())
		fs.Operation = op
		if serr := d.store.Save(ctx, fs); serr != nil {
			return nil, api.NewPersistError(serr)
		}
		d.observer.OnFlowFailed(ctx, fs, err)
		return op, nil
	}

	fs.Operation = op
	if serr := d.store.Save(ctx, fs); serr != nil {
		return nil, api.NewPersistError(serr)
	}
	d.observer.OnFlowCompleted(ctx, fs)
	return op, nil
}

// invokeSteps runs the flow body with panic containment. A panicking step
// must fail the flow, not the worker process.
func invokeSteps(ctx context.Context, flow *api.Flow, input any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &api.StepExecutionError{
				Step:  flow.Name(),
				Err:   fmt.Errorf("panic: %v", r),
				Stack: string(debug.Stack()),
			}
		}
	}()
	return flow.Steps()(ctx, input)
}

func operationMetadata(fs *api.FlowState) map[string]any {
	md := map[string]any{
		"executions": len(fs.Executions),
	}
	if last := fs.LatestExecution(); last != nil && len(last.TraceIDs) > 0 {
		md["traceId"] = last.TraceIDs[len(last.TraceIDs)-1]
	}
	if len(fs.Labels) > 0 {
		md["labels"] = fs.Labels
	}
	return md
}

func errorStack(err error) string {
	var se *api.StepExecutionError
	if errors.As(err, &se) {
		return se.Stack
	}
	return ""
}
