package leakybucket

import (
	"fmt"
	"math/bits"
	"time"

	"github.com/vnykmshr/detthrottle/pkg/common/errors"
)

// capacityUnitsPerGas scales gas so a gasPerSec rate leaks gasPerSec units per
// nanosecond.
const capacityUnitsPerGas uint64 = 1_000_000_000

// GasThrottle is a leaky bucket measured in gas with a one second burst
// window. A zero rate yields a throttle that rejects every request.
type GasThrottle struct {
	gasPerSec uint64
	bucket    *Bucket
}

// NewGasThrottle creates a gas throttle admitting gasPerSec gas per second.
func NewGasThrottle(gasPerSec uint64) (*GasThrottle, error) {
	hi, capacity := bits.Mul64(gasPerSec, capacityUnitsPerGas)
	if hi != 0 {
		return nil, errors.NewValidationError("leakybucket", "gasPerSec", gasPerSec,
			fmt.Sprintf("capacity overflows above %d gas/sec", ^uint64(0)/capacityUnitsPerGas))
	}
	return &GasThrottle{
		gasPerSec: gasPerSec,
		bucket:    NewBucket(capacity, gasPerSec),
	}, nil
}

// GasPerSec returns the configured rate.
func (g *GasThrottle) GasPerSec() uint64 {
	return g.gasPerSec
}

// Capacity returns the capacity in gas.
func (g *GasThrottle) Capacity() uint64 {
	return g.gasPerSec
}

// Used returns the gas in use as of the last decision, rounded up.
func (g *GasThrottle) Used() uint64 {
	return unitsToGas(g.bucket.Used())
}

// UsedAt returns the gas that would be in use at now, rounded up.
func (g *GasThrottle) UsedAt(now time.Time) uint64 {
	return unitsToGas(g.bucket.UsedAt(now))
}

// PercentUsed returns usage at now as a percentage of capacity.
func (g *GasThrottle) PercentUsed(now time.Time) float64 {
	return percentOf(g.bucket.UsedAt(now), g.bucket.Capacity())
}

// Allow reports whether gas would fit at now without mutating the throttle.
// A zero-capacity throttle admits nothing, not even zero gas.
func (g *GasThrottle) Allow(now time.Time, gas uint64) bool {
	if g.gasPerSec == 0 {
		return false
	}
	return g.bucket.HasCapacity(now, mulSaturating(gas, capacityUnitsPerGas))
}

// Commit charges gas at now. Callers check Allow first.
func (g *GasThrottle) Commit(now time.Time, gas uint64) {
	g.bucket.Use(now, mulSaturating(gas, capacityUnitsPerGas))
}

// Reserve charges gas at now if it fits, reporting whether it did.
func (g *GasThrottle) Reserve(now time.Time, gas uint64) bool {
	if !g.Allow(now, gas) {
		return false
	}
	g.Commit(now, gas)
	return true
}

// Release returns gas reserved earlier but not consumed, flooring usage at zero.
func (g *GasThrottle) Release(gas uint64) {
	g.bucket.Release(mulSaturating(gas, capacityUnitsPerGas))
}

// Reset empties the throttle.
func (g *GasThrottle) Reset() {
	g.bucket.Reset()
}

// UsageSnapshot returns the current usage state in capacity units.
func (g *GasThrottle) UsageSnapshot() UsageSnapshot {
	return g.bucket.Snapshot()
}

// ResetUsageTo restores a previously captured usage state.
func (g *GasThrottle) ResetUsageTo(s UsageSnapshot) {
	g.bucket.Restore(s)
}

func unitsToGas(units uint64) uint64 {
	gas := units / capacityUnitsPerGas
	if units%capacityUnitsPerGas != 0 {
		gas++
	}
	return gas
}
