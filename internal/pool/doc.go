// Package pool runs CPU-bound verify/generate work on a fixed-size set of
// workers so the request-handling path never performs expensive
// cryptography inline.
//
// # Design
//
// The contract is: bounded queue, crash-isolated workers, replace-on-crash,
// no shared mutable state between submitter and worker beyond the message
// channels. Submit rejects immediately with [ErrQueueFull] when the pending
// queue is at capacity; backpressure is signaled rather than buffered into
// unbounded memory.
//
// A panicking task fails only its own submission: the panic is reported to
// the submitter as [ErrWorkerCrashed] and the worker is replaced, so the
// pool never shrinks below its configured size while running. Submitters
// that abandon a call via context cancellation do not preempt the in-flight
// task; it completes and its result is discarded.
package pool
