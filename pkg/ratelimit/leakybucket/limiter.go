package leakybucket

import (
	"fmt"
	"math/bits"
	"time"

	"github.com/vnykmshr/detthrottle/pkg/common/errors"
)

const (
	// CapacityUnitsPerTxn is the number of capacity units one admitted
	// operation occupies.
	CapacityUnitsPerTxn uint64 = 1_000_000_000_000

	// MtpsPerTps converts operations per second to milli-operations per second.
	MtpsPerTps uint64 = 1_000

	nanosPerMilli uint64 = 1_000_000
)

// Throttle is a named leaky bucket measured in operations. A throttle with a
// rate of mtps milli-operations per second leaks exactly mtps capacity units
// per nanosecond, and holds mtps*burstPeriodMs*10^6 units, i.e. the number of
// operations the rate admits over one burst period.
type Throttle struct {
	name          string
	mtps          uint64
	burstPeriodMs uint64
	bucket        *Bucket
}

// NewThrottle creates a throttle admitting mtps milli-operations per second
// with a burst window of burstPeriodMs milliseconds. It returns a
// ValidationError if the capacity overflows or cannot hold one operation.
func NewThrottle(name string, mtps, burstPeriodMs uint64) (*Throttle, error) {
	hi, perMs := bits.Mul64(mtps, burstPeriodMs)
	if hi != 0 {
		return nil, overflowError(name, mtps, burstPeriodMs)
	}
	hi, capacity := bits.Mul64(perMs, nanosPerMilli)
	if hi != 0 {
		return nil, overflowError(name, mtps, burstPeriodMs)
	}
	if capacity < CapacityUnitsPerTxn {
		return nil, errors.NewValidationError("leakybucket", "throttle", name,
			fmt.Sprintf("capacity of %d units cannot hold one operation at %d mtps over %dms", capacity, mtps, burstPeriodMs)).
			WithHint("raise the rate or the burst period")
	}

	return &Throttle{
		name:          name,
		mtps:          mtps,
		burstPeriodMs: burstPeriodMs,
		bucket:        NewBucket(capacity, mtps),
	}, nil
}

func overflowError(name string, mtps, burstPeriodMs uint64) error {
	return errors.NewValidationError("leakybucket", "throttle", name,
		fmt.Sprintf("capacity overflows at %d mtps over %dms", mtps, burstPeriodMs))
}

// Name returns the throttle name.
func (t *Throttle) Name() string {
	return t.name
}

// Mtps returns the rate in milli-operations per second.
func (t *Throttle) Mtps() uint64 {
	return t.mtps
}

// BurstPeriod returns the burst window.
func (t *Throttle) BurstPeriod() time.Duration {
	return time.Duration(t.burstPeriodMs) * time.Millisecond
}

// Capacity returns the capacity in units.
func (t *Throttle) Capacity() uint64 {
	return t.bucket.Capacity()
}

// Used returns the units in use as of the last decision.
func (t *Throttle) Used() uint64 {
	return t.bucket.Used()
}

// UsedAt returns the units that would be in use at now.
func (t *Throttle) UsedAt(now time.Time) uint64 {
	return t.bucket.UsedAt(now)
}

// PercentUsed returns usage at now as a percentage of capacity.
func (t *Throttle) PercentUsed(now time.Time) float64 {
	return percentOf(t.bucket.UsedAt(now), t.bucket.Capacity())
}

// CapacityRequiredFor returns the units n operations occupy, saturating on
// overflow.
func CapacityRequiredFor(n uint64) uint64 {
	return mulSaturating(n, CapacityUnitsPerTxn)
}

// Allow reports whether n operations would be admitted at now. It never
// mutates the throttle.
func (t *Throttle) Allow(now time.Time, n uint64) bool {
	return t.bucket.HasCapacity(now, CapacityRequiredFor(n))
}

// Commit charges n operations at now. Callers check Allow first.
func (t *Throttle) Commit(now time.Time, n uint64) {
	t.bucket.Use(now, CapacityRequiredFor(n))
}

// Reset empties the throttle.
func (t *Throttle) Reset() {
	t.bucket.Reset()
}

// UsageSnapshot returns the current usage state.
func (t *Throttle) UsageSnapshot() UsageSnapshot {
	return t.bucket.Snapshot()
}

// ResetUsageTo restores a previously captured usage state.
func (t *Throttle) ResetUsageTo(s UsageSnapshot) {
	t.bucket.Restore(s)
}

func (t *Throttle) String() string {
	return fmt.Sprintf("%s(%d mtps, %dms burst)", t.name, t.mtps, t.burstPeriodMs)
}
