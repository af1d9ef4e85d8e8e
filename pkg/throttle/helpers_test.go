package throttle

import (
	"fmt"
	"testing"
	"time"

	"github.com/vnykmshr/detthrottle/internal/testutil"
	"github.com/vnykmshr/detthrottle/pkg/common/errors"
	"github.com/vnykmshr/detthrottle/pkg/ratelimit/leakybucket"
	"github.com/vnykmshr/detthrottle/pkg/throttle/definitions"
	"github.com/vnykmshr/detthrottle/pkg/throttle/functionality"
)

// bucket is a one-group bucket admitting tps operations per second over a
// one second burst.
func bucket(name string, tps uint64, ops ...functionality.Functionality) definitions.ThrottleBucket {
	return definitions.ThrottleBucket{
		Name:          name,
		BurstPeriodMs: 1000,
		Groups: []definitions.ThrottleGroup{
			{OpsPerSec: tps, Operations: ops},
		},
	}
}

func defsOf(buckets ...definitions.ThrottleBucket) *definitions.Definitions {
	return &definitions.Definitions{Buckets: buckets}
}

func defaultProps() *StaticProperties {
	return &StaticProperties{
		GasThrottling: true,
		GasPerSec: map[Mode]uint64{
			HAPI:      1_000_000,
			Consensus: 2_000_000,
			Schedule:  3_000_000,
		},
		AutoCreation:    true,
		MintScaleFactor: OneToOne,
	}
}

func newThrottling(t *testing.T, mode Mode, props Properties, defs *definitions.Definitions, opts ...Option) *Throttling {
	t.Helper()
	th, err := New(mode, props, opts...)
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, th.RebuildFor(defs))
	return th
}

// throttleNamed returns the active throttle called name.
func throttleNamed(t *testing.T, th *Throttling, name string) *leakybucket.Throttle {
	t.Helper()
	for _, throttle := range th.ActiveThrottles() {
		if throttle.Name() == name {
			return throttle
		}
	}
	t.Fatalf("no active throttle named %q", name)
	return nil
}

func ops(n uint64) uint64 {
	return leakybucket.CapacityRequiredFor(n)
}

type scheduleMap map[string]*ScheduledTxn

func (m scheduleMap) Get(id string) (*ScheduledTxn, error) {
	s, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("schedule %s: %w", id, errors.ErrNotFound)
	}
	return s, nil
}

type decision struct {
	op           functionality.Functionality
	throttled    bool
	gasThrottled bool
}

type recordingObserver struct {
	decisions []decision
	usage     map[string]float64
	rebuilds  []error
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{usage: make(map[string]float64)}
}

func (o *recordingObserver) ObserveDecision(_ Mode, op functionality.Functionality, throttled, gasThrottled bool) {
	o.decisions = append(o.decisions, decision{op: op, throttled: throttled, gasThrottled: gasThrottled})
}

func (o *recordingObserver) ObserveUsage(_ Mode, throttle string, percentUsed float64) {
	o.usage[throttle] = percentUsed
}

func (o *recordingObserver) ObserveRebuild(_ Mode, err error) {
	o.rebuilds = append(o.rebuilds, err)
}

var t0 = testutil.Epoch

func at(d time.Duration) time.Time {
	return t0.Add(d)
}

func assertTxnAdmitted(t *testing.T, th *Throttling, txn *TxnInfo, now time.Time) {
	t.Helper()
	throttled, err := th.ShouldThrottleTxn(txn, now)
	testutil.AssertAdmitted(t, throttled, err)
}

func assertTxnThrottled(t *testing.T, th *Throttling, txn *TxnInfo, now time.Time) {
	t.Helper()
	throttled, err := th.ShouldThrottleTxn(txn, now)
	testutil.AssertThrottled(t, throttled, err)
}

func assertQueryAdmitted(t *testing.T, th *Throttling, q QueryInfo, now time.Time) {
	t.Helper()
	throttled, err := th.ShouldThrottleQuery(q, now)
	testutil.AssertAdmitted(t, throttled, err)
}

func assertQueryThrottled(t *testing.T, th *Throttling, q QueryInfo, now time.Time) {
	t.Helper()
	throttled, err := th.ShouldThrottleQuery(q, now)
	testutil.AssertThrottled(t, throttled, err)
}
