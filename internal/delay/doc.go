// Package delay applies escalating artificial latency to repeated
// authentication failures from one origin IP.
//
// # Design
//
// The failure counter lives in the shared store (TTL one hour), so the
// backoff holds across horizontally scaled processes. The computed delay is
// exponential with a cap, plus symmetric random jitter so an attacker
// cannot infer the exact attempt count from response timing.
//
// Apply is the only operation in the core that deliberately introduces
// latency as a security control. It suspends the calling goroutine only;
// concurrent unrelated requests are unaffected, and context cancellation
// cuts the wait short.
package delay
