// Package definitions models throttle bucket definitions and compiles them
// into per-node leaky bucket throttles.
package definitions

import (
	"bytes"
	"fmt"
	"math/bits"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vnykmshr/detthrottle/pkg/common/errors"
	"github.com/vnykmshr/detthrottle/pkg/common/validation"
	"github.com/vnykmshr/detthrottle/pkg/ratelimit/leakybucket"
	"github.com/vnykmshr/detthrottle/pkg/throttle/functionality"
)

const module = "definitions"

// Definitions is an ordered list of throttle buckets.
type Definitions struct {
	Buckets []ThrottleBucket `yaml:"buckets"`
}

// ThrottleBucket is a named capacity pool shared by the operations of its groups.
type ThrottleBucket struct {
	Name string `yaml:"name"`

	// BurstPeriodMs is the burst window in milliseconds. BurstPeriod, in
	// seconds, is used when BurstPeriodMs is zero.
	BurstPeriodMs uint64 `yaml:"burstPeriodMs,omitempty"`
	BurstPeriod   uint64 `yaml:"burstPeriod,omitempty"`

	Groups []ThrottleGroup `yaml:"throttleGroups"`
}

// ThrottleGroup is a set of operations sharing one network-wide rate allotment.
type ThrottleGroup struct {
	Operations []functionality.Functionality `yaml:"operations"`

	// MilliOpsPerSec is the rate in milli-operations per second. OpsPerSec is
	// used when MilliOpsPerSec is zero.
	MilliOpsPerSec uint64 `yaml:"milliOpsPerSec,omitempty"`
	OpsPerSec      uint64 `yaml:"opsPerSec,omitempty"`
}

// OpReq is the number of bucket operations one admission of Op consumes.
type OpReq struct {
	Op  functionality.Functionality
	Ops uint64
}

// Mapping is a compiled bucket: the per-node throttle and the requirement of
// each operation it gates, in definition order.
type Mapping struct {
	Throttle *leakybucket.Throttle
	Reqs     []OpReq
}

// ImpliedMilliOpsPerSec returns the group rate in milli-operations per second.
func (g ThrottleGroup) ImpliedMilliOpsPerSec() uint64 {
	if g.MilliOpsPerSec > 0 {
		return g.MilliOpsPerSec
	}
	hi, lo := bits.Mul64(g.OpsPerSec, leakybucket.MtpsPerTps)
	if hi != 0 {
		return 0
	}
	return lo
}

// ImpliedBurstPeriodMs returns the burst window in milliseconds.
func (b ThrottleBucket) ImpliedBurstPeriodMs() uint64 {
	if b.BurstPeriodMs > 0 {
		return b.BurstPeriodMs
	}
	hi, lo := bits.Mul64(b.BurstPeriod, 1_000)
	if hi != 0 {
		return 0
	}
	return lo
}

// LogicalMilliOpsPerSec returns the least common multiple of the group rates,
// the smallest network-wide bucket rate in which every group requires a whole
// number of operations.
func (b ThrottleBucket) LogicalMilliOpsPerSec() (uint64, error) {
	lcm := uint64(1)
	for _, g := range b.Groups {
		mtps := g.ImpliedMilliOpsPerSec()
		if mtps == 0 {
			return 0, errors.NewValidationError(module, "milliOpsPerSec", 0, "must be positive").
				WithHint("bucket " + b.Name + " has a group without a rate")
		}
		next, ok := leastCommonMultiple(lcm, mtps)
		if !ok {
			return 0, errors.NewValidationError(module, "bucket", b.Name, "overflow in logical milliOpsPerSec")
		}
		lcm = next
	}
	return lcm, nil
}

// Compile splits the bucket rate across nodeCount nodes and returns the
// resulting throttle with its operation requirements. A bucket that cannot
// admit even one operation of some group after splitting is a fatal
// configuration error.
func (b ThrottleBucket) Compile(nodeCount int) (*Mapping, error) {
	if nodeCount <= 0 {
		return nil, errors.NewValidationError(module, "nodeCount", nodeCount, "must be positive")
	}
	logical, err := b.LogicalMilliOpsPerSec()
	if err != nil {
		return nil, err
	}

	throttle, err := leakybucket.NewThrottle(b.Name, logical/uint64(nodeCount), b.ImpliedBurstPeriodMs())
	if err != nil {
		return nil, unsatisfiable(b.Name, nodeCount).WithHint(err.Error())
	}

	mapping := &Mapping{Throttle: throttle}
	for _, g := range b.Groups {
		ops := logical / g.ImpliedMilliOpsPerSec()
		if leakybucket.CapacityRequiredFor(ops) > throttle.Capacity() {
			return nil, unsatisfiable(b.Name, nodeCount)
		}
		for _, op := range g.Operations {
			mapping.Reqs = append(mapping.Reqs, OpReq{Op: op, Ops: ops})
		}
	}
	return mapping, nil
}

func unsatisfiable(name string, nodeCount int) *errors.ValidationError {
	return errors.NewValidationError(module, "bucket", name,
		fmt.Sprintf("contains an unsatisfiable milliOpsPerSec with %d nodes", nodeCount))
}

// Validate checks the structural rules every definition set must satisfy.
func (d *Definitions) Validate() error {
	if d == nil {
		return errors.NewValidationError(module, "definitions", nil, "cannot be nil")
	}
	names := make(map[string]struct{}, len(d.Buckets))
	for _, b := range d.Buckets {
		if err := validation.ValidateNotEmpty(module, "bucket name", b.Name); err != nil {
			return err
		}
		if err := validation.ValidateUnique(module, "bucket name", b.Name, names); err != nil {
			return err
		}
		if err := validation.ValidatePositive(module, "burstPeriodMs", b.ImpliedBurstPeriodMs()); err != nil {
			return err
		}
		if len(b.Groups) == 0 {
			return errors.NewValidationError(module, "throttleGroups", b.Name, "cannot be empty")
		}
		ops := make(map[string]struct{})
		for _, g := range b.Groups {
			if err := validation.ValidatePositive(module, "milliOpsPerSec", g.ImpliedMilliOpsPerSec()); err != nil {
				return err
			}
			if len(g.Operations) == 0 {
				return errors.NewValidationError(module, "operations", b.Name, "cannot be empty")
			}
			for _, op := range g.Operations {
				if op == functionality.None {
					return errors.NewValidationError(module, "operation", op, "is not a valid operation").
						WithHint("bucket " + b.Name)
				}
				if err := validation.ValidateUnique(module, "operation", op.String(), ops); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Parse decodes and validates YAML definitions. Unknown fields are rejected.
func Parse(data []byte) (*Definitions, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var d Definitions
	if err := dec.Decode(&d); err != nil {
		return nil, errors.NewOperationError(module, "Parse", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// Load reads and parses the definitions file at path.
func Load(path string) (*Definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewOperationError(module, "Load", err).WithContext(path)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

func leastCommonMultiple(a, b uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a/greatestCommonDivisor(a, b), b)
	return lo, hi == 0
}

func greatestCommonDivisor(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
