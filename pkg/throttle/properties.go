package throttle

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// Properties supplies the dynamic settings the orchestrator consults. Values
// are read on every use, so implementations may change them between calls.
type Properties interface {
	// ThrottleByGas reports whether gas-eligible operations are gated by gas.
	ThrottleByGas() bool
	// MaxGasPerSec returns the gas rate for mode.
	MaxGasPerSec(mode Mode) uint64
	// SchedulingLongTermEnabled reports whether long-term scheduling is enabled.
	SchedulingLongTermEnabled() bool
	// AutoCreationEnabled reports whether transfers may auto-create accounts.
	AutoCreationEnabled() bool
	// NFTMintScaleFactor scales the charge of minting NFT serials.
	NFTMintScaleFactor() ScaleFactor
}

// ScaleFactor is a rational multiplier applied to operation counts.
type ScaleFactor struct {
	Numerator   uint64
	Denominator uint64
}

// OneToOne leaves counts unchanged.
var OneToOne = ScaleFactor{Numerator: 1, Denominator: 1}

// ParseScaleFactor parses "n:d", e.g. "5:2".
func ParseScaleFactor(s string) (ScaleFactor, error) {
	num, den, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return ScaleFactor{}, fmt.Errorf("scale factor %q is not of the form n:d", s)
	}
	n, err := strconv.ParseUint(num, 10, 64)
	if err != nil {
		return ScaleFactor{}, fmt.Errorf("scale factor %q: %w", s, err)
	}
	d, err := strconv.ParseUint(den, 10, 64)
	if err != nil {
		return ScaleFactor{}, fmt.Errorf("scale factor %q: %w", s, err)
	}
	if n == 0 || d == 0 {
		return ScaleFactor{}, fmt.Errorf("scale factor %q must have positive terms", s)
	}
	return ScaleFactor{Numerator: n, Denominator: d}, nil
}

// ScaledUp returns ceil(n * Numerator / Denominator), saturating on overflow.
// A zero denominator is treated as one to one.
func (f ScaleFactor) ScaledUp(n uint64) uint64 {
	if f.Numerator == 0 || f.Denominator == 0 {
		return n
	}
	hi, lo := bits.Mul64(n, f.Numerator)
	if hi >= f.Denominator {
		return ^uint64(0)
	}
	q, r := bits.Div64(hi, lo, f.Denominator)
	if r != 0 && q != ^uint64(0) {
		q++
	}
	return q
}

func (f ScaleFactor) String() string {
	return fmt.Sprintf("%d:%d", f.Numerator, f.Denominator)
}

// StaticProperties is a fixed Properties value, useful in tests and tools.
type StaticProperties struct {
	GasThrottling      bool
	GasPerSec          map[Mode]uint64
	LongTermScheduling bool
	AutoCreation       bool
	MintScaleFactor    ScaleFactor
}

var _ Properties = (*StaticProperties)(nil)

// ThrottleByGas returns GasThrottling.
func (p *StaticProperties) ThrottleByGas() bool { return p.GasThrottling }

// MaxGasPerSec returns the rate configured for mode, or zero.
func (p *StaticProperties) MaxGasPerSec(mode Mode) uint64 { return p.GasPerSec[mode] }

// SchedulingLongTermEnabled returns LongTermScheduling.
func (p *StaticProperties) SchedulingLongTermEnabled() bool { return p.LongTermScheduling }

// AutoCreationEnabled returns AutoCreation.
func (p *StaticProperties) AutoCreationEnabled() bool { return p.AutoCreation }

// NFTMintScaleFactor returns MintScaleFactor, or 1:1 when it is unset.
func (p *StaticProperties) NFTMintScaleFactor() ScaleFactor {
	if p.MintScaleFactor.Denominator == 0 {
		return OneToOne
	}
	return p.MintScaleFactor
}
