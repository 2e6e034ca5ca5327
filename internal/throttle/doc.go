// Package throttle provides a fixed-window request limiter with a global
// counter and per-key counters, used to cap agent actions per minute and
// per hour.
//
// Counters live in a single mutex-guarded map owned by the Limiter; the
// whole check-and-count sequence for a request is atomic under that lock.
// Windows are fixed, not sliding: counters reset at window boundaries, and
// a burst of up to twice the limit can land across an edge. A background
// sweep evicts buckets for keys that have gone idle.
package throttle
