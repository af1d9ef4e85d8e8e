/*
Package throttle decides deterministically whether transactions and queries
are admitted.

A Throttling compiles bucket definitions into per-node leaky bucket throttles
and binds every operation kind to the throttles that must all have room for
it. Decisions take an explicit decision time and never read the wall clock,
so replicas that see the same operations at the same logical times reach the
same decisions.

# Basic Usage

	props := &throttle.StaticProperties{AutoCreation: true}
	t, err := throttle.New(throttle.HAPI, props,
		throttle.WithNodeCounter(throttle.FixedNodeCount(4)))
	if err != nil {
		return err
	}
	defs, err := definitions.Load("throttles.yaml")
	if err != nil {
		return err
	}
	if err := t.RebuildFor(defs); err != nil {
		return err
	}

	throttled, err := t.ShouldThrottleTxn(&throttle.TxnInfo{Kind: functionality.CryptoTransfer}, consensusTime)

# Modes

HAPI gates operations submitted through the API. CONSENSUS gates operations
as they reach consensus. SCHEDULE gates scheduled transactions when they
execute. Each mode reads its own gas rate.

In HAPI mode with long-term scheduling enabled, a ScheduleCreate or
ScheduleSign that does not wait for expiry also reserves capacity for the
transaction it wraps, in the same all-or-nothing reservation.

# Gas

Gas-throttled operations (contract calls and creates, Ethereum transactions,
local contract calls) are first checked against the gas throttle. A gas
rejection touches no other throttle and is reported by
WasLastTxnGasThrottled until the next decision.

# Thread Safety

A Throttling is not safe for concurrent use. Callers serialize decisions,
rebuilds and resets.
*/
package throttle
