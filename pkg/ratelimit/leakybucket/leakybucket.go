package leakybucket

import (
	"math"
	"math/bits"
	"time"
)

// Bucket is a fixed-point leaky bucket whose clock is supplied by the caller.
// Usage leaks at leakPerNano units for every nanosecond of decision time that
// passes; the leak is computed lazily, so an idle bucket costs nothing.
//
// A Bucket is not safe for concurrent use. Callers sequence all decisions on
// one logical timeline.
type Bucket struct {
	capacity     uint64
	leakPerNano  uint64
	used         uint64
	lastDecision time.Time
}

// UsageSnapshot captures the mutable state of a bucket.
type UsageSnapshot struct {
	Used             uint64
	LastDecisionTime time.Time
}

// NewBucket creates an empty bucket holding at most capacity units and
// leaking leakPerNano units per nanosecond.
func NewBucket(capacity, leakPerNano uint64) *Bucket {
	return &Bucket{
		capacity:    capacity,
		leakPerNano: leakPerNano,
	}
}

// Capacity returns the total number of units the bucket can hold.
func (b *Bucket) Capacity() uint64 {
	return b.capacity
}

// LeakPerNano returns the number of units leaked per nanosecond.
func (b *Bucket) LeakPerNano() uint64 {
	return b.leakPerNano
}

// Used returns the units in use as of the last decision time.
func (b *Bucket) Used() uint64 {
	return b.used
}

// LastDecisionTime returns the latest time at which the bucket was charged.
func (b *Bucket) LastDecisionTime() time.Time {
	return b.lastDecision
}

// UsedAt returns the units that would be in use at now, without mutating the bucket.
func (b *Bucket) UsedAt(now time.Time) uint64 {
	return b.leakedUsage(now)
}

// FreeAt returns the units that would be free at now.
func (b *Bucket) FreeAt(now time.Time) uint64 {
	return b.capacity - b.leakedUsage(now)
}

// HasCapacity reports whether units more would fit at now. It never mutates
// the bucket.
func (b *Bucket) HasCapacity(now time.Time, units uint64) bool {
	return units <= b.FreeAt(now)
}

// Use leaks the bucket up to now and then adds units. Callers check
// HasCapacity first; usage saturates at capacity regardless.
func (b *Bucket) Use(now time.Time, units uint64) {
	b.used = b.leakedUsage(now)
	if units > b.capacity-b.used {
		b.used = b.capacity
	} else {
		b.used += units
	}
	if b.lastDecision.IsZero() || now.After(b.lastDecision) {
		b.lastDecision = now
	}
}

// Release returns units to the bucket, flooring usage at zero. The last
// decision time is unchanged.
func (b *Bucket) Release(units uint64) {
	if units >= b.used {
		b.used = 0
		return
	}
	b.used -= units
}

// Reset empties the bucket. Capacity and leak rate are unchanged.
func (b *Bucket) Reset() {
	b.used = 0
	b.lastDecision = time.Time{}
}

// Snapshot returns the current mutable state.
func (b *Bucket) Snapshot() UsageSnapshot {
	return UsageSnapshot{Used: b.used, LastDecisionTime: b.lastDecision}
}

// Restore replaces the mutable state with s, clamping usage to capacity.
func (b *Bucket) Restore(s UsageSnapshot) {
	b.used = s.Used
	if b.used > b.capacity {
		b.used = b.capacity
	}
	b.lastDecision = s.LastDecisionTime
}

// leakedUsage computes usage at now. Time that does not move forward from the
// last decision leaks nothing.
func (b *Bucket) leakedUsage(now time.Time) uint64 {
	if b.used == 0 || b.lastDecision.IsZero() || !now.After(b.lastDecision) {
		return b.used
	}

	elapsed := uint64(now.Sub(b.lastDecision))
	hi, leaked := bits.Mul64(elapsed, b.leakPerNano)
	if hi != 0 || leaked >= b.used {
		return 0
	}
	return b.used - leaked
}

// percentOf returns used as a percentage of capacity.
func percentOf(used, capacity uint64) float64 {
	if capacity == 0 {
		return 100
	}
	return 100 * float64(used) / float64(capacity)
}

// mulSaturating multiplies a and b, saturating at math.MaxUint64.
func mulSaturating(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}
