// Package worker provides the background worker that drives asynchronous
// flow executions.
//
// Workers consume control-message tasks from a task queue and hand each
// envelope to a dispatcher. They are lightweight, embeddable, and can be
// scaled horizontally: multiple workers may safely share one queue.
//
// # Worker Responsibilities
//
// A worker is responsible for:
//
//   - Polling a task queue for pending control messages
//   - Dispatching each message through the flow engine
//   - Emitting the delayed runScheduled follow-up for schedule messages
//   - Redelivering messages whose dispatch failed at the engine level,
//     with bounded attempts and backoff
//
// The division of labor with the dispatcher is deliberate: the dispatcher
// holds no timers and performs no retries of messages. Delays and
// redelivery are transport concerns and live here.
//
// # Failure Handling
//
// Business failures inside a flow body settle into the flow's operation
// result and are never retried by the worker; re-running a failed flow is an
// explicit retry message. Engine-level failures (an unreachable state store,
// for example) are retried by re-enqueueing the task until the retry
// policy's attempts run out.
//
// Most applications construct workers through the genflow package's runner
// helpers, which wire dispatchers, stores, and queues together with sensible
// defaults.
package worker
