/*
Package detthrottle provides deterministic admission throttling for replicated
transaction processing.

Every decision takes an explicit decision time, so replicas that observe the
same operations at the same logical times admit and reject identically.

Throttles (pkg/ratelimit):
  - leakybucket: Fixed-point leaky buckets measured in operations or gas

Admission control (pkg/throttle):
  - throttle: Per-mode throttle tables, gas overlay and schedule charging
  - definitions: Bucket definitions and their per-node compilation
  - reservation: All-or-nothing charges across several throttles
  - functionality: Operation kinds
  - schedstore: In-memory and Redis stores for scheduled transactions
  - reload: Cron-driven reloading of definitions

Supporting packages:
  - config: Viper-backed runtime properties
  - metrics: Prometheus observers for decisions and rebuilds

Example usage:

	import (
		"github.com/vnykmshr/detthrottle/pkg/throttle"
		"github.com/vnykmshr/detthrottle/pkg/throttle/definitions"
	)

	defs, _ := definitions.Load("throttles.yaml")
	t, _ := throttle.New(throttle.Consensus, props)
	_ = t.RebuildFor(defs)

	if throttled, _ := t.ShouldThrottleTxn(txn, consensusTime); !throttled {
		handle(txn)
	}
*/
package detthrottle
