package api

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Observer receives callbacks from the dispatcher for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay flow execution.
type Observer interface {
	// OnFlowStart is called once per execution attempt, before the flow
	// body runs.
	OnFlowStart(ctx context.Context, fs *FlowState)

	// OnFlowCompleted is called when an execution settles with StatusDone.
	OnFlowCompleted(ctx context.Context, fs *FlowState)

	// OnFlowBlocked is called when an execution suspends awaiting external
	// input.
	OnFlowBlocked(ctx context.Context, fs *FlowState, step string)

	// OnFlowFailed is called when an execution settles with StatusFailed.
	OnFlowFailed(ctx context.Context, fs *FlowState, err error)

	// OnStepStart is called before a step thunk is invoked.
	OnStepStart(ctx context.Context, fs *FlowState, step string)

	// OnStepCached is called when a step is skipped because its result was
	// already memoized.
	OnStepCached(ctx context.Context, fs *FlowState, step string)

	// OnStepCompleted is called after a step thunk returns, for both
	// successes and failures (err != nil).
	OnStepCompleted(ctx context.Context, fs *FlowState, step string, err error, duration time.Duration)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnFlowStart(ctx context.Context, fs *FlowState)                     {}
func (NoopObserver) OnFlowCompleted(ctx context.Context, fs *FlowState)                 {}
func (NoopObserver) OnFlowBlocked(ctx context.Context, fs *FlowState, step string)      {}
func (NoopObserver) OnFlowFailed(ctx context.Context, fs *FlowState, err error)         {}
func (NoopObserver) OnStepStart(ctx context.Context, fs *FlowState, step string)        {}
func (NoopObserver) OnStepCached(ctx context.Context, fs *FlowState, step string)       {}
func (NoopObserver) OnStepCompleted(ctx context.Context, fs *FlowState, step string, err error, d time.Duration) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnFlowStart(ctx context.Context, fs *FlowState) {
	for _, o := range c.observers {
		o.OnFlowStart(ctx, fs)
	}
}

func (c *CompositeObserver) OnFlowCompleted(ctx context.Context, fs *FlowState) {
	for _, o := range c.observers {
		o.OnFlowCompleted(ctx, fs)
	}
}

func (c *CompositeObserver) OnFlowBlocked(ctx context.Context, fs *FlowState, step string) {
	for _, o := range c.observers {
		o.OnFlowBlocked(ctx, fs, step)
	}
}

func (c *CompositeObserver) OnFlowFailed(ctx context.Context, fs *FlowState, err error) {
	for _, o := range c.observers {
		o.OnFlowFailed(ctx, fs, err)
	}
}

func (c *CompositeObserver) OnStepStart(ctx context.Context, fs *FlowState, step string) {
	for _, o := range c.observers {
		o.OnStepStart(ctx, fs, step)
	}
}

func (c *CompositeObserver) OnStepCached(ctx context.Context, fs *FlowState, step string) {
	for _, o := range c.observers {
		o.OnStepCached(ctx, fs, step)
	}
}

func (c *CompositeObserver) OnStepCompleted(ctx context.Context, fs *FlowState, step string, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnStepCompleted(ctx, fs, step, err, d)
	}
}

// LoggingObserver writes structured logs using zap.
type LoggingObserver struct {
	logger *zap.Logger
}

// NewLoggingObserver creates an Observer that logs flow and step lifecycle
// events using the provided logger. If logger is nil, zap.NewNop() is used.
func NewLoggingObserver(logger *zap.Logger) Observer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingObserver{logger: logger}
}

func (o *LoggingObserver) OnFlowStart(ctx context.Context, fs *FlowState) {
	o.logger.Info(string(EventFlowStarted),
		zap.String("flow", fs.Name),
		zap.String("flow_id", fs.FlowID),
		zap.Int("attempt", len(fs.Executions)),
	)
}

func (o *LoggingObserver) OnFlowCompleted(ctx context.Context, fs *FlowState) {
	o.logger.Info(string(EventFlowCompleted),
		zap.String("flow", fs.Name),
		zap.String("flow_id", fs.FlowID),
	)
}

func (o *LoggingObserver) OnFlowBlocked(ctx context.Context, fs *FlowState, step string) {
	o.logger.Info(string(EventFlowBlocked),
		zap.String("flow", fs.Name),
		zap.String("flow_id", fs.FlowID),
		zap.String("step", step),
	)
}

func (o *LoggingObserver) OnFlowFailed(ctx context.Context, fs *FlowState, err error) {
	o.logger.Warn(string(EventFlowFailed),
		zap.String("flow", fs.Name),
		zap.String("flow_id", fs.FlowID),
		zap.Error(err),
	)
}

func (o *LoggingObserver) OnStepStart(ctx context.Context, fs *FlowState, step string) {
	o.logger.Debug(string(EventStepStarted),
		zap.String("flow_id", fs.FlowID),
		zap.String("step", step),
	)
}

func (o *LoggingObserver) OnStepCached(ctx context.Context, fs *FlowState, step string) {
	o.logger.Debug(string(EventStepCached),
		zap.String("flow_id", fs.FlowID),
		zap.String("step", step),
	)
}

func (o *LoggingObserver) OnStepCompleted(ctx context.Context, fs *FlowState, step string, err error, d time.Duration) {
	if err != nil {
		o.logger.Warn(string(EventStepFailed),
			zap.String("flow_id", fs.FlowID),
			zap.String("step", step),
			zap.Duration("duration", d),
			zap.Error(err),
		)
		return
	}
	o.logger.Debug(string(EventStepCompleted),
		zap.String("flow_id", fs.FlowID),
		zap.String("step", step),
		zap.Duration("duration", d),
	)
}
