// Package integration contains integration tests that verify cross-package functionality.
// These tests drive a throttle table loaded from files through the collaborators
// a node wires around it.
package integration

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vnykmshr/detthrottle/internal/testutil"
	"github.com/vnykmshr/detthrottle/pkg/config"
	"github.com/vnykmshr/detthrottle/pkg/metrics"
	"github.com/vnykmshr/detthrottle/pkg/ratelimit/leakybucket"
	"github.com/vnykmshr/detthrottle/pkg/throttle"
	"github.com/vnykmshr/detthrottle/pkg/throttle/definitions"
	"github.com/vnykmshr/detthrottle/pkg/throttle/functionality"
	"github.com/vnykmshr/detthrottle/pkg/throttle/reload"
	"github.com/vnykmshr/detthrottle/pkg/throttle/schedstore"
)

const (
	throttlesFile  = "testdata/throttles.yaml"
	propertiesFile = "testdata/properties.yaml"
)

func loadDefinitions() (*definitions.Definitions, error) {
	return definitions.Load(throttlesFile)
}

// TestFrontendThrottling verifies that schedule charging, the gas overlay and
// metrics agree when the table and properties come from files.
func TestFrontendThrottling(t *testing.T) {
	props, err := config.Load(propertiesFile)
	testutil.AssertNoError(t, err)

	store := schedstore.NewMemory()
	store.Put("0.0.7", throttle.ScheduledTxn{Body: throttle.TxnInfo{Kind: functionality.CryptoTransfer}})

	registry := metrics.NewRegistry(prometheus.NewRegistry())
	th, err := throttle.New(throttle.HAPI, props,
		throttle.WithScheduleStore(store),
		throttle.WithObserver(metrics.NewThrottleObserver(registry)))
	testutil.AssertNoError(t, err)

	defs, err := loadDefinitions()
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, th.RebuildFor(defs))
	testutil.AssertNoError(t, th.ApplyGasConfig())
	testutil.AssertEqual(t, th.GasLimitThrottle().GasPerSec(), uint64(1_000_000))

	clock := testutil.NewMockClock(testutil.Epoch)
	decide := func(txn *throttle.TxnInfo) bool {
		t.Helper()
		throttled, err := th.ShouldThrottleTxn(txn, clock.Now())
		testutil.AssertNoError(t, err)
		return throttled
	}
	contractCall := func() *throttle.TxnInfo {
		return &throttle.TxnInfo{Kind: functionality.ContractCall, GasLimit: 600_000}
	}

	// The wrapped contract call reserves its gas along with the schedule.
	scheduled := &throttle.TxnInfo{
		Kind:           functionality.ScheduleCreate,
		ScheduleCreate: &throttle.ScheduleCreateOp{Body: contractCall()},
	}
	testutil.AssertEqual(t, decide(scheduled), false)

	testutil.AssertEqual(t, decide(contractCall()), true)
	testutil.AssertEqual(t, th.WasLastTxnGasThrottled(), true)

	clock.Advance(time.Second)
	testutil.AssertEqual(t, decide(contractCall()), false)
	testutil.AssertEqual(t, th.WasLastTxnGasThrottled(), false)

	sign := &throttle.TxnInfo{
		Kind:         functionality.ScheduleSign,
		ScheduleSign: &throttle.ScheduleSignOp{ScheduleID: "0.0.7"},
	}
	testutil.AssertEqual(t, decide(sign), false)
	testutil.AssertEqual(t, th.ActiveThrottlesFor(functionality.CryptoTransfer)[0].Used(), uint64(1_000_000_000_000))

	missing := &throttle.TxnInfo{
		Kind:         functionality.ScheduleSign,
		ScheduleSign: &throttle.ScheduleSignOp{ScheduleID: "0.0.8"},
	}
	testutil.AssertEqual(t, decide(missing), true)

	testutil.AssertEqual(t, promtestutil.ToFloat64(registry.Decisions.WithLabelValues("HAPI", "ContractCall", metrics.OutcomeThrottled)), 1.0)
	testutil.AssertEqual(t, promtestutil.ToFloat64(registry.Decisions.WithLabelValues("HAPI", "ScheduleSign", metrics.OutcomeThrottled)), 1.0)
	testutil.AssertEqual(t, promtestutil.ToFloat64(registry.GasThrottled.WithLabelValues("HAPI")), 1.0)
}

// TestReloadFollowsNodeCount verifies that a reload recompiles the table for
// the current node count and keeps the old table when the new one cannot be
// satisfied.
func TestReloadFollowsNodeCount(t *testing.T) {
	props, err := config.Load(propertiesFile)
	testutil.AssertNoError(t, err)

	nodes := 1
	hapi, err := throttle.New(throttle.HAPI, props,
		throttle.WithNodeCounter(throttle.NodeCountFunc(func() int { return nodes })))
	testutil.AssertNoError(t, err)
	consensus, err := throttle.New(throttle.Consensus, props)
	testutil.AssertNoError(t, err)

	r, err := reload.New(reload.Config{
		Spec:    "@hourly",
		Load:    loadDefinitions,
		Targets: []reload.Target{hapi, consensus},
	})
	testutil.AssertNoError(t, err)

	contractsMtps := func(th *throttle.Throttling) uint64 {
		return th.ActiveThrottlesFor(functionality.ContractCall)[0].Mtps()
	}

	testutil.AssertNoError(t, r.ReloadNow())
	testutil.AssertEqual(t, contractsMtps(hapi), uint64(10_000))
	testutil.AssertEqual(t, contractsMtps(consensus), uint64(10_000))

	nodes = 2
	testutil.AssertNoError(t, r.ReloadNow())
	testutil.AssertEqual(t, contractsMtps(hapi), uint64(5_000))
	for _, bucket := range hapi.ActiveThrottles() {
		if bucket.Capacity() < leakybucket.CapacityRequiredFor(1) {
			t.Errorf("%s cannot hold one operation with 2 nodes", bucket)
		}
	}
	testutil.AssertEqual(t, contractsMtps(consensus), uint64(10_000))

	nodes = 20
	testutil.AssertError(t, r.ReloadNow())
	testutil.AssertEqual(t, contractsMtps(hapi), uint64(5_000))
	testutil.AssertEqual(t, len(hapi.ActiveThrottles()), 3)

	stats := r.Stats()
	testutil.AssertEqual(t, stats.Reloads, 3)
	testutil.AssertEqual(t, stats.Failures, 1)
}
