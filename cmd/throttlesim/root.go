package main

import (
	goflag "flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"github.com/vnykmshr/detthrottle/pkg/config"
	"github.com/vnykmshr/detthrottle/pkg/throttle"
	"github.com/vnykmshr/detthrottle/pkg/throttle/definitions"
	"github.com/vnykmshr/detthrottle/pkg/throttle/schedstore"
)

// options are the flags shared by every subcommand.
type options struct {
	definitions string
	properties  string
	mode        string
	nodes       int
	redisAddr   string
	redisPrefix string
}

func (o *options) addFlags(fs *flag.FlagSet) {
	fs.StringVar(&o.definitions, "definitions", "", "throttle definitions YAML file")
	fs.StringVar(&o.properties, "properties", "", "properties file (yaml, json, toml or properties)")
	fs.StringVar(&o.mode, "mode", "hapi", "throttle mode: hapi, consensus or schedule")
	fs.IntVar(&o.nodes, "nodes", 1, "number of nodes sharing the network capacity")
	fs.StringVar(&o.redisAddr, "redis-addr", "", "resolve schedules from this Redis server instead of memory")
	fs.StringVar(&o.redisPrefix, "redis-prefix", "throttle:schedules", "Redis key prefix for schedules")
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "throttlesim",
		Short:        "Simulate deterministic admission throttling",
		SilenceUsage: true,
	}
	opts.addFlags(cmd.PersistentFlags())
	_ = cmd.MarkPersistentFlagRequired("definitions")

	klogFlags := goflag.NewFlagSet("klog", goflag.ContinueOnError)
	klog.InitFlags(klogFlags)
	cmd.PersistentFlags().AddGoFlagSet(klogFlags)

	cmd.AddCommand(newSummaryCmd(opts), newReplayCmd(opts), newServeCmd(opts))
	return cmd
}

// simulator is a Throttling with the collaborators it was built from.
type simulator struct {
	throttling *throttle.Throttling
	props      *config.Properties
	defs       *definitions.Definitions
	store      throttle.ScheduleStore
	memory     *schedstore.Memory
}

func (o *options) newSimulator(extra ...throttle.Option) (*simulator, error) {
	mode, err := throttle.ParseMode(o.mode)
	if err != nil {
		return nil, err
	}
	props, err := config.Load(o.properties)
	if err != nil {
		return nil, err
	}
	defs, err := definitions.Load(o.definitions)
	if err != nil {
		return nil, err
	}

	sim := &simulator{props: props, defs: defs}
	var store throttle.ScheduleStore
	if o.redisAddr != "" {
		store, err = schedstore.NewRedis(schedstore.RedisConfig{
			Redis:     redis.NewClient(&redis.Options{Addr: o.redisAddr}),
			KeyPrefix: o.redisPrefix,
		})
		if err != nil {
			return nil, err
		}
	} else {
		sim.memory = schedstore.NewMemory()
		store = sim.memory
	}

	sim.store = store

	opts := append([]throttle.Option{
		throttle.WithNodeCounter(throttle.FixedNodeCount(o.nodes)),
		throttle.WithScheduleStore(store),
		throttle.WithAutoCreationCounter(throttle.AutoCreationCountFunc(countAliasRecipients)),
	}, extra...)
	sim.throttling, err = throttle.New(mode, props, opts...)
	if err != nil {
		return nil, err
	}
	if err := sim.throttling.RebuildFor(defs); err != nil {
		return nil, err
	}
	if err := sim.throttling.ApplyGasConfig(); err != nil {
		return nil, err
	}
	return sim, nil
}

// countAliasRecipients counts transfer recipients that are not account IDs
// of the form shard.realm.num; each of them creates an account.
func countAliasRecipients(txn *throttle.TxnInfo) uint64 {
	if txn.Transfer == nil {
		return 0
	}
	var n uint64
	for _, r := range txn.Transfer.Recipients {
		if !isAccountID(r) {
			n++
		}
	}
	return n
}

func isAccountID(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if _, err := strconv.ParseUint(p, 10, 64); err != nil {
			return false
		}
	}
	return true
}

func newSummaryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print the effective per-node rate of every operation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sim, err := opts.newSimulator()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mode: %s, nodes: %d\n", sim.throttling.Mode(), opts.nodes)
			for _, s := range sim.throttling.Summary() {
				fmt.Fprintln(out, s)
			}
			if gas := sim.throttling.GasLimitThrottle(); gas != nil {
				fmt.Fprintf(out, "gas: %d gas/sec\n", gas.GasPerSec())
			}
			return nil
		},
	}
}
