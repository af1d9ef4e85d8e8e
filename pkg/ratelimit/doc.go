/*
Package ratelimit holds the throttling primitives of detthrottle.

The leakybucket subpackage implements leaky buckets driven by a caller
supplied clock. Buckets never read the wall clock and never block:

	throttle, _ := leakybucket.NewThrottle("Transfers", 10_000, 1_000) // 10 ops/sec, 1s burst
	if throttle.Allow(now, 1) {
		throttle.Commit(now, 1)
	}

Combining several throttles into one all-or-nothing decision is the job of
pkg/throttle/reservation.
*/
package ratelimit
