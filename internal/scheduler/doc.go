// Package scheduler implements the event queue and the handler pipeline.
//
// Dispatch appends an event to the tail of a FIFO queue. When the queue was
// idle, exactly one flush task is posted to the Executor; further dispatches
// issued before the flush runs coalesce into it. A flush pops events from the
// head one at a time and runs each through the handler pipeline to
// completion before popping the next.
//
// # Pipeline
//
// Handlers are consulted in declaration order until one claims the event
// (Context.Succeed or Context.Fail). Inside a handler:
//
//   - Forward replaces the in-flight event with a new one (same type, new
//     identity, parented to the original) and continues with the handlers not
//     yet consulted.
//   - Stack runs a child event through the whole pipeline immediately and
//     returns its Result. The parent stays unresolved.
//   - Defer appends a child event to the tail of the queue.
//   - Debug emits a diagnostic and has no effect on control flow.
//
// An event nobody claims resolves to an UnhandledError failure. A handler that
// returns an error or panics resolves the event to a HandlerError failure;
// the rest of the flush is unaffected.
//
// # States
//
// Idle → Queued (dispatch) → Flushing (flush task runs) → Settled (queue
// drained, settle listeners notified once) → Idle.
//
// # Threading
//
// Dispatch is safe from any goroutine. Flushes, handlers and listeners run on
// the executor's goroutine only. Parent references form a lineage chain for
// diagnostics; ordering never looks at them.
package scheduler
