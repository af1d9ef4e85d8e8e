package throttle

import (
	"fmt"
	"strings"
)

// Mode is the admission-control context an orchestrator serves.
type Mode int

const (
	// HAPI is front-end admission of operations submitted through the API.
	HAPI Mode = iota
	// Consensus is admission at consensus time, identically on every replica.
	Consensus
	// Schedule is admission of scheduled transactions that became executable.
	Schedule
)

// Gas-rate property keys, one per mode.
const (
	FrontendGasLimitKey  = "contracts.frontendThrottleMaxGasLimit"
	ConsensusGasLimitKey = "contracts.consensusThrottleMaxGasLimit"
	ScheduleGasLimitKey  = "contracts.scheduleThrottleMaxGasLimit"
)

func (m Mode) String() string {
	switch m {
	case HAPI:
		return "HAPI"
	case Consensus:
		return "CONSENSUS"
	case Schedule:
		return "SCHEDULE"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// GasLimitKey returns the property key holding this mode's gas rate.
func (m Mode) GasLimitKey() string {
	switch m {
	case HAPI:
		return FrontendGasLimitKey
	case Consensus:
		return ConsensusGasLimitKey
	case Schedule:
		return ScheduleGasLimitKey
	default:
		return ""
	}
}

// chargesNestedSchedules reports whether schedule wrappers admitted in this
// mode also reserve capacity for the transaction they wrap.
func (m Mode) chargesNestedSchedules() bool {
	return m == HAPI
}

// ParseMode parses a mode name, ignoring case.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(s) {
	case "HAPI":
		return HAPI, nil
	case "CONSENSUS":
		return Consensus, nil
	case "SCHEDULE":
		return Schedule, nil
	default:
		return 0, fmt.Errorf("unknown throttle mode %q", s)
	}
}
