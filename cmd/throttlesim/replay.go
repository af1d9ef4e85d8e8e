package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/vnykmshr/detthrottle/pkg/throttle"
	"github.com/vnykmshr/detthrottle/pkg/throttle/schedstore"
)

func newReplayCmd(opts *options) *cobra.Command {
	var tracePath string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a trace of operations and print every decision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tr, err := loadTrace(tracePath)
			if err != nil {
				return err
			}
			sim, err := opts.newSimulator()
			if err != nil {
				return err
			}
			if err := sim.storeSchedules(cmd.Context(), tr.Schedules); err != nil {
				return err
			}
			return sim.replay(cmd.OutOrStdout(), tr)
		},
	}
	cmd.Flags().StringVar(&tracePath, "trace", "", "trace file (yaml or json)")
	_ = cmd.MarkFlagRequired("trace")
	return cmd
}

func (s *simulator) storeSchedules(ctx context.Context, schedules map[string]throttle.ScheduledTxn) error {
	if s.memory != nil {
		for id, scheduled := range schedules {
			s.memory.Put(id, scheduled)
		}
		return nil
	}
	if len(schedules) == 0 {
		return nil
	}
	redisStore, ok := s.store.(*schedstore.Redis)
	if !ok {
		return fmt.Errorf("schedule store cannot be written")
	}
	for id, scheduled := range schedules {
		if err := redisStore.Put(ctx, id, scheduled); err != nil {
			return err
		}
	}
	return nil
}

// replay decides every entry of tr in order and prints one line per
// decision, then the final usage of every throttle.
func (s *simulator) replay(out io.Writer, tr *trace) error {
	th := s.throttling
	for _, e := range tr.Entries {
		now := tr.Start.Add(time.Duration(e.Offset))

		var kind fmt.Stringer
		var throttled bool
		var err error
		if e.Txn != nil {
			kind = e.Txn.Kind
			throttled, err = th.ShouldThrottleTxn(e.Txn, now)
			if err == nil && !throttled && e.UnusedGas > 0 {
				th.LeakUnusedGasPreviouslyReserved(e.Txn, e.UnusedGas)
			}
		} else {
			kind = e.Query.Kind
			throttled, err = th.ShouldThrottleQuery(*e.Query, now)
		}
		if err != nil {
			return err
		}

		outcome := "admitted"
		if throttled {
			outcome = "throttled"
			if th.WasLastTxnGasThrottled() {
				outcome = "throttled (gas)"
			}
		}
		klog.V(2).Infof("Decided %s at %s: %s", kind, now.Format(time.RFC3339Nano), outcome)
		fmt.Fprintf(out, "%-12s %-28s %s\n", time.Duration(e.Offset), kind, outcome)
	}

	end := tr.Start
	if n := len(tr.Entries); n > 0 {
		end = tr.Start.Add(time.Duration(tr.Entries[n-1].Offset))
	}
	fmt.Fprintln(out, "usage:")
	for _, bucket := range th.ActiveThrottles() {
		fmt.Fprintf(out, "  %-28s %7.3f%%\n", bucket.Name(), bucket.PercentUsed(end))
	}
	if gas := th.GasLimitThrottle(); gas != nil {
		fmt.Fprintf(out, "  %-28s %7.3f%%\n", "gas", gas.PercentUsed(end))
	}
	return nil
}
