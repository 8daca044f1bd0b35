// Package asyncx provides the concurrency primitives the session
// engine is built on.
//
// The engine follows a cooperative model: cross-operation ordering is
// expressed through futures and serialized critical sections rather
// than fine-grained locking of shared state.
//
//   - Future: one-shot resolution, cached for repeated awaits. Exit
//     notification and lazy spawn results are futures.
//   - QueueMutex: mutual exclusion with a bounded acquisition queue
//     that fails fast once full. Serializes developer-console buffer
//     mutation and redraw.
//   - Debounce: coalesces bursts of calls into one invocation whose
//     outcome is shared by every coalesced caller. Used for resize.
package asyncx
