// Package kv wraps the shared Redis store behind the small set of atomic
// primitives the security core is allowed to use.
//
// # Design
//
// Every cross-process state transition in authcore is expressed as a single
// atomic store operation: INCR with TTL-on-first-hit for fixed windows,
// SET NX PX for one-shot markers, and Lua scripts where a transition spans
// more than one key. Callers never perform read-then-write pairs against
// the store.
//
// # What this package must NOT do
//
//   - Interpret key contents (that belongs to the owning component).
//   - Import any sibling authcore package.
//   - Swallow store failures: every error wraps [ErrUnavailable] so callers
//     can decide their own fail-open or fail-closed policy.
package kv
