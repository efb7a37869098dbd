// Package api contains the core building blocks of the genflow engine. It
// provides the primitives for defining flows and actions, the durable
// FlowState record, the control-message envelope, the flow state store
// contract, and observability hooks.
//
// Most users interact with the higher-level genflow package, which
// re-exports selected types and helpers from this package. The api package
// is intended for custom integrations (alternative state store backends,
// transports delivering control messages, or observers) and for
// contributors extending the engine itself.
//
// # Flows and Steps
//
// A flow is a named, schema-validated definition pairing input, output, and
// stream schemas with a steps function. The steps function is ordinary Go
// code; durable checkpoints are introduced by running named steps through
// RunStep:
//
//	flow, _ := dispatcher.DefineFlow(api.FlowConfig{Name: "summarize"},
//	    func(ctx context.Context, input any) (any, error) {
//	        doc, err := api.RunStep(ctx, "fetch", func(ctx context.Context) (any, error) {
//	            return fetch(ctx, input)
//	        })
//	        if err != nil {
//	            return nil, err
//	        }
//	        return api.RunStep(ctx, "summarize", func(ctx context.Context) (any, error) {
//	            return model.Invoke(ctx, doc)
//	        })
//	    })
//
// Each step runs at most once per flowId: its result is memoized into the
// flow state and persisted before control returns to the flow body, so
// replaying the body after a crash, retry, or resume re-executes only steps
// that had not yet completed. Step thunks should therefore be idempotent;
// the engine guarantees at-least-once execution, not exactly-once.
//
// # Suspension and Resumption
//
// WaitForEvent suspends a flow until a resume control message supplies the
// awaited payload. The dispatcher parks the flow as BLOCKED, persists it,
// and replays the body when the payload arrives.
//
// # Operations
//
// Every interaction with a flow returns an Operation: the externally
// visible projection of the execution. Callers poll it (or receive it from
// a stream) regardless of whether the flow finished synchronously, failed,
// or is suspended.
//
// # State Stores
//
// FlowStateStore is the persistence contract. The genflow package ships
// in-memory, SQLite, Postgres, Redis, and MongoDB backends; any store with
// per-key atomic overwrite can implement it.
package api
