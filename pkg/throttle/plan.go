package throttle

import (
	"math/bits"
	"time"

	"k8s.io/klog/v2"

	"github.com/vnykmshr/detthrottle/pkg/common/errors"
	"github.com/vnykmshr/detthrottle/pkg/throttle/functionality"
	"github.com/vnykmshr/detthrottle/pkg/throttle/reservation"
)

// plan is everything one decision would charge.
type plan struct {
	res         reservation.Reservation
	gasEligible bool
	gas         uint64
}

func (p *plan) addGas(gas uint64) {
	p.gasEligible = true
	sum, carry := bits.Add64(p.gas, gas, 0)
	if carry != 0 {
		sum = ^uint64(0)
	}
	p.gas = sum
}

// admit checks gas and then every throttle of p, committing all of them only
// if all fit. A gas rejection leaves every throttle untouched.
func (t *Throttling) admit(now time.Time, p *plan) bool {
	byGas := p.gasEligible && t.props.ThrottleByGas()
	if byGas && (t.gas == nil || !t.gas.Allow(now, p.gas)) {
		t.lastTxnGasThrottled = true
		return true
	}
	if !p.res.Fits(now) {
		return true
	}
	p.res.Commit(now)
	if byGas {
		t.gas.Commit(now, p.gas)
	}
	return false
}

// planTxn adds the charges of txn to p, reporting false when txn is
// inadmissible regardless of capacity. depth is non-zero for a transaction
// wrapped by a schedule.
func (t *Throttling) planTxn(txn *TxnInfo, depth int, p *plan) bool {
	if depth > 0 {
		if txn.Kind.IsScheduling() {
			return false
		}
		if txn.ThrottleExempt {
			return true
		}
	}

	manager, ok := t.managers[txn.Kind]
	if !ok {
		return false
	}
	p.res.Include(manager, t.admissionsOf(txn))
	if txn.Kind.IsGasThrottled() {
		p.addGas(txn.GasLimit)
	}

	switch txn.Kind {
	case functionality.CryptoTransfer:
		return t.planAutoCreations(txn, p)
	case functionality.ScheduleCreate:
		if txn.ScheduleCreate == nil || txn.ScheduleCreate.Body == nil {
			return false
		}
		if !t.chargesInner(txn.ScheduleCreate.WaitForExpiry) {
			return true
		}
		return t.planTxn(txn.ScheduleCreate.Body, depth+1, p)
	case functionality.ScheduleSign:
		if !t.chargesInner(false) {
			return true
		}
		scheduled, ok := t.lookupSchedule(txn)
		if !ok {
			return false
		}
		if scheduled.WaitForExpiry {
			return true
		}
		return t.planTxn(&scheduled.Body, depth+1, p)
	default:
		return true
	}
}

func (t *Throttling) planQuery(q QueryInfo, p *plan) bool {
	manager, ok := t.managers[q.Kind]
	if !ok {
		return false
	}
	p.res.Include(manager, 1)
	if q.Kind.IsGasThrottled() {
		p.addGas(q.Gas)
	}
	return true
}

// chargesInner reports whether a schedule wrapper must also reserve capacity
// for the transaction it wraps.
func (t *Throttling) chargesInner(waitForExpiry bool) bool {
	return !waitForExpiry && t.mode.chargesNestedSchedules() && t.props.SchedulingLongTermEnabled()
}

func (t *Throttling) lookupSchedule(txn *TxnInfo) (*ScheduledTxn, bool) {
	if t.schedules == nil || txn.ScheduleSign == nil {
		return nil, false
	}
	id := txn.ScheduleSign.ScheduleID
	scheduled, err := t.schedules.Get(id)
	if err != nil {
		if errors.IsRetryable(err) {
			klog.V(2).Infof("Schedule %s lookup timed out, throttling ScheduleSign", id)
		} else {
			klog.V(4).Infof("Schedule %s lookup failed: %v", id, err)
		}
		return nil, false
	}
	if scheduled == nil {
		return nil, false
	}
	return scheduled, true
}

// admissionsOf returns how many admissions of its own manager txn costs.
func (t *Throttling) admissionsOf(txn *TxnInfo) uint64 {
	if txn.Kind == functionality.TokenMint && txn.Mint != nil && txn.Mint.NumSerials > 0 {
		return t.props.NFTMintScaleFactor().ScaledUp(txn.Mint.NumSerials)
	}
	return 1
}

// planAutoCreations charges one CryptoCreate admission per account txn
// creates implicitly. The count is computed once and cached on txn.
func (t *Throttling) planAutoCreations(txn *TxnInfo, p *plan) bool {
	n, known := txn.AutoCreations()
	if !known {
		if t.autoCreations != nil {
			n = t.autoCreations.CountAutoCreations(txn)
		}
		txn.SetAutoCreations(n)
	}
	if n == 0 || !t.props.AutoCreationEnabled() {
		return true
	}
	creations, ok := t.managers[functionality.CryptoCreate]
	if !ok {
		return false
	}
	p.res.Include(creations, n)
	return true
}
