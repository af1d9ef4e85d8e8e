package throttle

import (
	"time"

	"k8s.io/klog/v2"

	"github.com/vnykmshr/detthrottle/pkg/common/errors"
	"github.com/vnykmshr/detthrottle/pkg/common/validation"
	"github.com/vnykmshr/detthrottle/pkg/ratelimit/leakybucket"
	"github.com/vnykmshr/detthrottle/pkg/throttle/definitions"
	"github.com/vnykmshr/detthrottle/pkg/throttle/functionality"
	"github.com/vnykmshr/detthrottle/pkg/throttle/reservation"
)

const module = "throttle"

// Observer receives the outcome of decisions and rebuilds. Implementations
// must not call back into the Throttling that notifies them.
type Observer interface {
	// ObserveDecision is called once per decision.
	ObserveDecision(mode Mode, op functionality.Functionality, throttled, gasThrottled bool)
	// ObserveUsage is called for every throttle an admitted decision charged.
	ObserveUsage(mode Mode, throttle string, percentUsed float64)
	// ObserveRebuild is called after every RebuildFor, with its error.
	ObserveRebuild(mode Mode, err error)
}

// Option configures a Throttling.
type Option func(*Throttling)

// WithNodeCounter sets the source of the node count used to split
// network-wide rates. The default is a single node.
func WithNodeCounter(nodes NodeCounter) Option {
	return func(t *Throttling) {
		t.nodes = nodes
	}
}

// WithScheduleStore sets the store used to resolve the schedule a
// ScheduleSign refers to.
func WithScheduleStore(store ScheduleStore) Option {
	return func(t *Throttling) {
		t.schedules = store
	}
}

// WithAutoCreationCounter sets the counter of implicit account creations.
func WithAutoCreationCounter(counter AutoCreationCounter) Option {
	return func(t *Throttling) {
		t.autoCreations = counter
	}
}

// WithObserver sets the decision observer.
func WithObserver(observer Observer) Option {
	return func(t *Throttling) {
		t.observer = observer
	}
}

// Throttling decides deterministically whether operations are admitted.
// Given the same definitions, properties, starting usage and sequence of
// (operation, decision time) pairs, every instance reaches the same decisions.
//
// A Throttling is not safe for concurrent use. Decisions, rebuilds and resets
// must be serialized by the caller, in non-decreasing decision time.
type Throttling struct {
	mode          Mode
	props         Properties
	nodes         NodeCounter
	schedules     ScheduleStore
	autoCreations AutoCreationCounter
	observer      Observer

	throttles []*leakybucket.Throttle
	managers  map[functionality.Functionality]*reservation.Manager
	nodeCount int

	gas                 *leakybucket.GasThrottle
	lastTxnGasThrottled bool
}

// New creates a Throttling for mode. It has no throttles until RebuildFor
// succeeds, so every non-exempt operation is throttled until then.
func New(mode Mode, props Properties, opts ...Option) (*Throttling, error) {
	if mode < HAPI || mode > Schedule {
		return nil, errors.NewValidationError(module, "mode", mode, "unknown mode")
	}
	if err := validation.ValidateNotNil(module, "properties", props); err != nil {
		return nil, err
	}

	t := &Throttling{
		mode:     mode,
		props:    props,
		nodes:    FixedNodeCount(1),
		managers: make(map[functionality.Functionality]*reservation.Manager),
	}
	for _, opt := range opts {
		opt(t)
	}
	if err := validation.ValidateNotNil(module, "node counter", t.nodes); err != nil {
		return nil, err
	}
	return t, nil
}

// Mode returns the mode this instance serves.
func (t *Throttling) Mode() Mode {
	return t.mode
}

// RebuildFor compiles defs against the current node count and replaces every
// throttle and reservation manager. On error the previous table stays in
// place untouched.
func (t *Throttling) RebuildFor(defs *definitions.Definitions) (err error) {
	defer func() {
		if t.observer != nil {
			t.observer.ObserveRebuild(t.mode, err)
		}
	}()

	if err := defs.Validate(); err != nil {
		return err
	}
	n := t.nodes.NumNodes()
	if n <= 0 {
		return errors.NewValidationError(module, "nodeCount", n, "must be positive")
	}

	throttles := make([]*leakybucket.Throttle, 0, len(defs.Buckets))
	managers := make(map[functionality.Functionality]*reservation.Manager)
	for _, bucket := range defs.Buckets {
		mapping, err := bucket.Compile(n)
		if err != nil {
			return err
		}
		throttles = append(throttles, mapping.Throttle)
		for _, req := range mapping.Reqs {
			manager, ok := managers[req.Op]
			if !ok {
				manager = reservation.NewManager()
				managers[req.Op] = manager
			}
			manager.Append(reservation.Req{Throttle: mapping.Throttle, Ops: req.Ops})
		}
	}

	t.throttles = throttles
	t.managers = managers
	t.nodeCount = n
	t.logResolvedThrottles()
	return nil
}

// ApplyGasConfig recreates the gas throttle from the rate configured for this
// mode. A zero rate with gas throttling enabled yields a throttle that admits
// no gas. With gas throttling disabled there is no gas throttle.
func (t *Throttling) ApplyGasConfig() error {
	if !t.props.ThrottleByGas() {
		t.gas = nil
		klog.Infof("%s gas throttling disabled", t.mode)
		return nil
	}

	gasPerSec := t.props.MaxGasPerSec(t.mode)
	gas, err := leakybucket.NewGasThrottle(gasPerSec)
	if err != nil {
		return err
	}
	t.gas = gas
	if gasPerSec == 0 {
		klog.Warningf("%s gas throttling enabled, but %s is 0; every gas-throttled operation will be rejected",
			t.mode, t.mode.GasLimitKey())
		return nil
	}
	klog.Infof("Resolved %s gas throttle: %d gas/sec (throttling ON)", t.mode, gasPerSec)
	return nil
}

// ShouldThrottleTxn decides whether txn is throttled at now, charging every
// throttle it needs if it is admitted. The error is non-nil only when now is
// the zero time or txn is nil; no state changes in that case.
func (t *Throttling) ShouldThrottleTxn(txn *TxnInfo, now time.Time) (bool, error) {
	if now.IsZero() {
		return false, errors.ErrDecisionTimeRequired
	}
	if txn == nil {
		return false, errors.NewValidationError(module, "txn", nil, "cannot be nil")
	}

	t.lastTxnGasThrottled = false
	if txn.ThrottleExempt {
		t.observeDecision(txn.Kind, false, nil, now)
		return false, nil
	}

	var p plan
	if !t.planTxn(txn, 0, &p) {
		t.observeDecision(txn.Kind, true, nil, now)
		return true, nil
	}
	throttled := t.admit(now, &p)
	t.observeDecision(txn.Kind, throttled, &p, now)
	return throttled, nil
}

// ShouldThrottleQuery decides whether q is throttled at now. Queries never
// wrap other operations. A gas-eligible query shares the gas throttle with
// transactions, so its gas rejection also sets WasLastTxnGasThrottled. A
// kind that is not a query is a ValidationError.
func (t *Throttling) ShouldThrottleQuery(q QueryInfo, now time.Time) (bool, error) {
	if now.IsZero() {
		return false, errors.ErrDecisionTimeRequired
	}
	if !q.Kind.IsQuery() {
		return false, errors.NewValidationError(module, "query kind", q.Kind, "is not a query")
	}

	t.lastTxnGasThrottled = false
	if q.ThrottleExempt {
		t.observeDecision(q.Kind, false, nil, now)
		return false, nil
	}

	var p plan
	if !t.planQuery(q, &p) {
		t.observeDecision(q.Kind, true, nil, now)
		return true, nil
	}
	throttled := t.admit(now, &p)
	t.observeDecision(q.Kind, throttled, &p, now)
	return throttled, nil
}

// WasLastTxnGasThrottled reports whether the most recent decision, of a
// transaction or a query, was rejected by the gas throttle.
func (t *Throttling) WasLastTxnGasThrottled() bool {
	return t.lastTxnGasThrottled
}

// LeakUnusedGasPreviouslyReserved returns gas that txn reserved but did not
// consume. It does nothing for exempt transactions or without a gas throttle.
func (t *Throttling) LeakUnusedGasPreviouslyReserved(txn *TxnInfo, unused uint64) {
	if txn == nil || txn.ThrottleExempt || t.gas == nil {
		return
	}
	t.gas.Release(unused)
}

// ResetUsage empties every throttle and the gas throttle. Capacities are
// unchanged.
func (t *Throttling) ResetUsage() {
	t.lastTxnGasThrottled = false
	for _, throttle := range t.throttles {
		throttle.Reset()
	}
	if t.gas != nil {
		t.gas.Reset()
	}
}

// ActiveThrottles returns the compiled throttles in definition order.
func (t *Throttling) ActiveThrottles() []*leakybucket.Throttle {
	return append([]*leakybucket.Throttle(nil), t.throttles...)
}

// ActiveThrottlesFor returns the throttles gating op, in definition order.
func (t *Throttling) ActiveThrottlesFor(op functionality.Functionality) []*leakybucket.Throttle {
	manager, ok := t.managers[op]
	if !ok {
		return nil
	}
	return manager.Throttles()
}

// GasLimitThrottle returns the gas throttle, or nil when there is none.
func (t *Throttling) GasLimitThrottle() *leakybucket.GasThrottle {
	return t.gas
}

// UsageSnapshots returns the usage of every active throttle in definition order.
func (t *Throttling) UsageSnapshots() []leakybucket.UsageSnapshot {
	snaps := make([]leakybucket.UsageSnapshot, 0, len(t.throttles))
	for _, throttle := range t.throttles {
		snaps = append(snaps, throttle.UsageSnapshot())
	}
	return snaps
}

// ResetUsageTo restores snapshots taken by UsageSnapshots. It changes nothing
// unless there is exactly one snapshot per active throttle.
func (t *Throttling) ResetUsageTo(snaps []leakybucket.UsageSnapshot) error {
	if len(snaps) != len(t.throttles) {
		return errors.NewValidationError(module, "usage snapshots", len(snaps), "do not match the active throttles").
			WithHint("snapshots must come from the same definitions")
	}
	for i, throttle := range t.throttles {
		throttle.ResetUsageTo(snaps[i])
	}
	return nil
}

// GasUsageSnapshot returns the gas throttle usage and whether there is one.
func (t *Throttling) GasUsageSnapshot() (leakybucket.UsageSnapshot, bool) {
	if t.gas == nil {
		return leakybucket.UsageSnapshot{}, false
	}
	return t.gas.UsageSnapshot(), true
}

// ResetGasUsageTo restores a snapshot taken by GasUsageSnapshot.
func (t *Throttling) ResetGasUsageTo(snap leakybucket.UsageSnapshot) error {
	if t.gas == nil {
		return errors.NewValidationError(module, "gas throttle", nil, "is not configured").
			WithHint("call ApplyGasConfig with gas throttling enabled first")
	}
	t.gas.ResetUsageTo(snap)
	return nil
}

func (t *Throttling) observeDecision(op functionality.Functionality, throttled bool, p *plan, now time.Time) {
	if t.observer == nil {
		return
	}
	t.observer.ObserveDecision(t.mode, op, throttled, t.lastTxnGasThrottled)
	if throttled || p == nil {
		return
	}
	for _, throttle := range p.res.Throttles() {
		t.observer.ObserveUsage(t.mode, throttle.Name(), throttle.PercentUsed(now))
	}
}
