// Package reservation binds operations to the throttles that must all have
// capacity before the operation is admitted, and charges them atomically.
package reservation

import (
	"math/bits"
	"time"

	"github.com/vnykmshr/detthrottle/pkg/ratelimit/leakybucket"
)

// Req is one throttle an operation must fit in, with the operations it costs.
type Req struct {
	Throttle *leakybucket.Throttle
	Ops      uint64
}

// Manager holds the ordered throttle requirements of a single operation kind.
type Manager struct {
	reqs []Req
}

// NewManager creates a manager for the given requirements.
func NewManager(reqs ...Req) *Manager {
	return &Manager{reqs: append([]Req(nil), reqs...)}
}

// Append adds a requirement after the existing ones.
func (m *Manager) Append(req Req) {
	m.reqs = append(m.reqs, req)
}

// Reqs returns a copy of the requirements in order.
func (m *Manager) Reqs() []Req {
	return append([]Req(nil), m.reqs...)
}

// Throttles returns the throttles in requirement order.
func (m *Manager) Throttles() []*leakybucket.Throttle {
	throttles := make([]*leakybucket.Throttle, 0, len(m.reqs))
	for _, req := range m.reqs {
		throttles = append(throttles, req.Throttle)
	}
	return throttles
}

// AllReqsMetAt charges n admissions at now if every throttle has room for
// them, reporting whether it did. No throttle changes when it reports false.
func (m *Manager) AllReqsMetAt(now time.Time, n uint64) bool {
	var r Reservation
	r.Include(m, n)
	return r.TryCommit(now)
}

// Reservation accumulates the charges of one admission decision. Charges for
// the same throttle are summed, so a throttle shared by several parts of a
// decision is checked against their combined demand.
type Reservation struct {
	entries []entry
}

type entry struct {
	throttle *leakybucket.Throttle
	ops      uint64
}

// Include adds n admissions' worth of every requirement of m.
func (r *Reservation) Include(m *Manager, n uint64) {
	for _, req := range m.reqs {
		r.Add(req.Throttle, saturatingMul(req.Ops, n))
	}
}

// Add charges ops operations against throttle, keeping first-seen order.
func (r *Reservation) Add(throttle *leakybucket.Throttle, ops uint64) {
	for i := range r.entries {
		if r.entries[i].throttle == throttle {
			r.entries[i].ops = saturatingAdd(r.entries[i].ops, ops)
			return
		}
	}
	r.entries = append(r.entries, entry{throttle: throttle, ops: ops})
}

// Len returns the number of distinct throttles charged.
func (r *Reservation) Len() int {
	return len(r.entries)
}

// Throttles returns the distinct throttles charged, in first-seen order.
func (r *Reservation) Throttles() []*leakybucket.Throttle {
	throttles := make([]*leakybucket.Throttle, 0, len(r.entries))
	for _, e := range r.entries {
		throttles = append(throttles, e.throttle)
	}
	return throttles
}

// Fits reports whether every charge fits at now. It mutates nothing.
func (r *Reservation) Fits(now time.Time) bool {
	for _, e := range r.entries {
		if !e.throttle.Allow(now, e.ops) {
			return false
		}
	}
	return true
}

// Commit charges every throttle at now, in order. Callers check Fits first.
func (r *Reservation) Commit(now time.Time) {
	for _, e := range r.entries {
		e.throttle.Commit(now, e.ops)
	}
}

// TryCommit commits the reservation if it fits, reporting whether it did.
func (r *Reservation) TryCommit(now time.Time) bool {
	if !r.Fits(now) {
		return false
	}
	r.Commit(now)
	return true
}

func saturatingMul(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return ^uint64(0)
	}
	return lo
}

func saturatingAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return ^uint64(0)
	}
	return sum
}
