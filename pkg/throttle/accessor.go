package throttle

import (
	"github.com/vnykmshr/detthrottle/pkg/throttle/functionality"
)

// TxnInfo is the throttle-relevant view of a transaction. The orchestrator
// caches derived values on it, so callers re-evaluating the same transaction
// pass the same pointer.
type TxnInfo struct {
	Kind           functionality.Functionality `json:"kind" yaml:"kind"`
	GasLimit       uint64                      `json:"gasLimit,omitempty" yaml:"gasLimit,omitempty"`
	ThrottleExempt bool                        `json:"throttleExempt,omitempty" yaml:"throttleExempt,omitempty"`

	ScheduleCreate *ScheduleCreateOp `json:"scheduleCreate,omitempty" yaml:"scheduleCreate,omitempty"`
	ScheduleSign   *ScheduleSignOp   `json:"scheduleSign,omitempty" yaml:"scheduleSign,omitempty"`
	Mint           *MintOp           `json:"mint,omitempty" yaml:"mint,omitempty"`
	Transfer       *TransferOp       `json:"transfer,omitempty" yaml:"transfer,omitempty"`

	autoCreations      uint64
	autoCreationsKnown bool
}

// ScheduleCreateOp is the body of a ScheduleCreate transaction.
type ScheduleCreateOp struct {
	// Body is the wrapped transaction; nil when it could not be decoded.
	Body          *TxnInfo `json:"body,omitempty" yaml:"body,omitempty"`
	WaitForExpiry bool     `json:"waitForExpiry,omitempty" yaml:"waitForExpiry,omitempty"`
}

// ScheduleSignOp is the body of a ScheduleSign transaction.
type ScheduleSignOp struct {
	ScheduleID string `json:"scheduleId" yaml:"scheduleId"`
}

// MintOp is the body of a TokenMint transaction.
type MintOp struct {
	NumSerials uint64 `json:"numSerials,omitempty" yaml:"numSerials,omitempty"`
}

// TransferOp is the body of a CryptoTransfer transaction.
type TransferOp struct {
	Recipients []string `json:"recipients,omitempty" yaml:"recipients,omitempty"`
}

// AutoCreations returns the cached number of accounts this transaction
// creates implicitly and whether it has been computed.
func (t *TxnInfo) AutoCreations() (uint64, bool) {
	return t.autoCreations, t.autoCreationsKnown
}

// SetAutoCreations caches the implicit account creation count.
func (t *TxnInfo) SetAutoCreations(n uint64) {
	t.autoCreations = n
	t.autoCreationsKnown = true
}

// QueryInfo is the throttle-relevant view of a query.
type QueryInfo struct {
	Kind           functionality.Functionality `json:"kind" yaml:"kind"`
	Gas            uint64                      `json:"gas,omitempty" yaml:"gas,omitempty"`
	ThrottleExempt bool                        `json:"throttleExempt,omitempty" yaml:"throttleExempt,omitempty"`
}

// ScheduledTxn is a stored schedule.
type ScheduledTxn struct {
	Body          TxnInfo `json:"body" yaml:"body"`
	WaitForExpiry bool    `json:"waitForExpiry,omitempty" yaml:"waitForExpiry,omitempty"`
}

// ScheduleStore looks up stored schedules by identifier.
type ScheduleStore interface {
	// Get returns the schedule with id, or an error wrapping ErrNotFound.
	Get(id string) (*ScheduledTxn, error)
}

// AutoCreationCounter counts the accounts a transaction would create implicitly.
type AutoCreationCounter interface {
	CountAutoCreations(txn *TxnInfo) uint64
}

// AutoCreationCountFunc adapts a function to AutoCreationCounter.
type AutoCreationCountFunc func(txn *TxnInfo) uint64

// CountAutoCreations calls f(txn).
func (f AutoCreationCountFunc) CountAutoCreations(txn *TxnInfo) uint64 {
	return f(txn)
}

// NodeCounter reports the number of nodes sharing the network-wide capacity.
type NodeCounter interface {
	NumNodes() int
}

// NodeCountFunc adapts a function to NodeCounter.
type NodeCountFunc func() int

// NumNodes calls f().
func (f NodeCountFunc) NumNodes() int {
	return f()
}

// FixedNodeCount is a NodeCounter with a constant count.
type FixedNodeCount int

// NumNodes returns n.
func (n FixedNodeCount) NumNodes() int {
	return int(n)
}
