/*
Package leakybucket provides deterministic leaky bucket throttles for
replicated admission control.

Unlike a wall-clock rate limiter, every call takes the decision time as an
argument. Two replicas that feed the same (time, request) sequence into
identically configured buckets reach identical answers and identical usage,
which is what lets admission control run outside of consensus order.

Basic usage:

	throttle, err := leakybucket.NewThrottle("ThroughputLimits", 10_000, 1_000) // 10 ops/sec, 1s burst
	if err != nil {
		return err
	}
	if throttle.Allow(now, 1) {
		throttle.Commit(now, 1)
	}

Fixed-point arithmetic:

All arithmetic is uint64. One operation occupies CapacityUnitsPerTxn (10^12)
capacity units, and a throttle rated at mtps milli-operations per second leaks
exactly mtps units per elapsed nanosecond:

	capacity = mtps * burstPeriodMs * 10^6
	used(t2) = max(0, used(t1) - mtps*(t2-t1))

A GasThrottle scales one gas to 10^9 units so a gasPerSec rate leaks gasPerSec
units per nanosecond over a one second burst window.

Allow and Commit:

Allow is a pure query and Commit charges the bucket. Splitting them lets a
caller check several buckets before charging any, so a rejected multi-bucket
reservation leaves every bucket untouched.

Time handling:

A decision time that is not after the last decision leaks nothing, and it never
moves the last decision time backwards. Usage never goes negative and never
exceeds capacity.

Thread Safety:

Buckets are not safe for concurrent use. Each one belongs to a single logical
timeline, and callers serialize access externally.
*/
package leakybucket
