// Package rate enforces fixed-window request limits per (operation, client)
// pair using shared store counters.
//
// # Design
//
// A window is anchored to its first request: the counter's TTL is set
// exactly once, on the 0->1 transition. Fixed windows admit up to 2x the
// limit across a window boundary; that is accepted because rate limiting is
// a defense-in-depth layer here, with progressive delay covering the gap.
//
// On store failure the limiter fails open: availability is prioritized over
// strictness for this layer, since the delay and token checks still bound
// damage. The failure is still reported to the caller for logging.
package rate
