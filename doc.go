// Package genflow provides a lightweight, embeddable durable flow engine
// for Go.
//
// Genflow is designed for backend services that need reliable multi-step
// operations: flows whose intermediate results survive crashes, that can
// suspend while waiting for external input, and that resume or retry
// without redoing completed work. It runs fully in Go, supports multiple
// persistence backends, and integrates cleanly into existing codebases.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Flow
//  2. Dispatcher
//  3. FlowStateStore
//  4. Worker
//  5. LocalRunner
//
// # Flow
//
// A Flow pairs a name and optional JSON schemas with a steps function, the
// Go function that is the flow's body. Inside the body, RunStep executes
// named, memoized steps:
//
//	flow, err := dispatcher.DefineFlow(genflow.FlowConfig{Name: "orderMeal"},
//	    func(ctx context.Context, input any) (any, error) {
//	        dish, err := genflow.RunStep(ctx, "pick-dish", func(ctx context.Context) (any, error) {
//	            return pickDish(input)
//	        })
//	        if err != nil {
//	            return nil, err
//	        }
//	        return genflow.RunStep(ctx, "place-order", func(ctx context.Context) (any, error) {
//	            return placeOrder(dish)
//	        })
//	    })
//
// Each step result is persisted the moment the step completes. If the flow
// is replayed later, completed steps return their recorded results without
// running again, so a retry after a crash re-executes only the work that
// had not finished.
//
// Flows can suspend: WaitForEvent parks the flow until a resume message
// supplies a payload, and EmitChunk streams incremental output to callers
// of Stream.
//
// # Dispatcher
//
// The Dispatcher owns the flow state machine. It interprets control
// messages (start, schedule, runScheduled, resume, retry, state), runs flow
// bodies, and records every transition in the state store. Business
// failures inside a flow settle into the flow's operation result; only
// engine-level failures (an unreachable store, an invalid transition)
// surface as Go errors.
//
// Dispatchers are constructed per backend:
//
//   - NewInMemoryDispatcher (non-durable, best for tests)
//   - NewSQLiteDispatcher (embedded durability)
//   - NewPostgresDispatcher
//   - NewRedisDispatcher
//   - NewMongoDispatcher
//   - NewDispatcher (any custom FlowStateStore)
//
// # FlowStateStore
//
// All durability flows through the FlowStateStore interface. Implementing
// its four methods (Create, Load, Save, List) on a new backend is enough to
// host flows on it.
//
// # Worker
//
// A Worker pulls queued control messages and feeds them to a dispatcher.
// It owns delayed delivery of scheduled runs and bounded redelivery of
// messages that failed at the engine level. Each storage backend has a
// matching queue implementation, so states and messages can share one
// database.
//
// # LocalRunner
//
// LocalRunner bundles an in-memory dispatcher, queue, and worker for
// development and tests. NewRunner builds the same wiring from a YAML
// configuration for deployments, and NewSQLiteBundle packs a durable
// single-file setup.
package genflow
