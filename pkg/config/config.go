// Package config supplies throttle properties from a viper configuration.
package config

import (
	"strings"
	"sync"

	"github.com/spf13/viper"
	"k8s.io/klog/v2"

	"github.com/vnykmshr/detthrottle/pkg/common/errors"
	"github.com/vnykmshr/detthrottle/pkg/throttle"
)

const module = "config"

// Property keys.
const (
	LongTermSchedulingKey = "scheduling.longTermEnabled"
	ThrottleByGasKey      = "contracts.throttle.throttleByGas"
	AutoCreationKey       = "autoCreation.enabled"
	MintScaleFactorKey    = "tokens.nfts.mintThrottleScaleFactor"
)

// EnvPrefix prefixes environment overrides, e.g.
// THROTTLE_CONTRACTS_THROTTLE_THROTTLEBYGAS=false.
const EnvPrefix = "THROTTLE"

// Properties reads throttle properties from viper on every call, so values
// changed with Set apply to the next decision. It is safe for concurrent use.
type Properties struct {
	mu sync.RWMutex
	v  *viper.Viper
}

var _ throttle.Properties = (*Properties)(nil)

// New returns properties holding the defaults, overridable from the environment.
func New() *Properties {
	v := viper.New()
	v.SetDefault(LongTermSchedulingKey, false)
	v.SetDefault(ThrottleByGasKey, true)
	v.SetDefault(throttle.FrontendGasLimitKey, uint64(15_000_000))
	v.SetDefault(throttle.ConsensusGasLimitKey, uint64(0))
	v.SetDefault(throttle.ScheduleGasLimitKey, uint64(15_000_000))
	v.SetDefault(AutoCreationKey, true)
	v.SetDefault(MintScaleFactorKey, throttle.OneToOne.String())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Properties{v: v}
}

// Load returns properties with the file at path applied over the defaults.
// The format follows the extension: yaml, json, toml or properties.
func Load(path string) (*Properties, error) {
	p := New()
	if path == "" {
		return p, nil
	}
	p.v.SetConfigFile(path)
	if err := p.v.ReadInConfig(); err != nil {
		return nil, errors.NewOperationError(module, "Load", err).WithContext(path)
	}
	if _, err := throttle.ParseScaleFactor(p.v.GetString(MintScaleFactorKey)); err != nil {
		return nil, errors.NewValidationError(module, MintScaleFactorKey, p.v.GetString(MintScaleFactorKey), err.Error())
	}
	return p, nil
}

// Set overrides key.
func (p *Properties) Set(key string, value interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.v.Set(key, value)
}

// ThrottleByGas implements throttle.Properties.
func (p *Properties) ThrottleByGas() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.v.GetBool(ThrottleByGasKey)
}

// MaxGasPerSec implements throttle.Properties.
func (p *Properties) MaxGasPerSec(mode throttle.Mode) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.v.GetUint64(mode.GasLimitKey())
}

// SchedulingLongTermEnabled implements throttle.Properties.
func (p *Properties) SchedulingLongTermEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.v.GetBool(LongTermSchedulingKey)
}

// AutoCreationEnabled implements throttle.Properties.
func (p *Properties) AutoCreationEnabled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.v.GetBool(AutoCreationKey)
}

// NFTMintScaleFactor implements throttle.Properties. An unparsable value
// falls back to one to one.
func (p *Properties) NFTMintScaleFactor() throttle.ScaleFactor {
	p.mu.RLock()
	raw := p.v.GetString(MintScaleFactorKey)
	p.mu.RUnlock()

	f, err := throttle.ParseScaleFactor(raw)
	if err != nil {
		klog.Warningf("Ignoring %s: %v", MintScaleFactorKey, err)
		return throttle.OneToOne
	}
	return f
}
