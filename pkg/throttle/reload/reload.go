// Package reload rebuilds throttles from freshly loaded definitions on a
// cron schedule.
package reload

import (
	stderrors "errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"k8s.io/klog/v2"

	"github.com/vnykmshr/detthrottle/pkg/common/errors"
	"github.com/vnykmshr/detthrottle/pkg/throttle/definitions"
)

const module = "reload"

// Target is rebuilt on every reload. A Target that also implements
// GasTarget has its gas throttle reapplied afterwards.
type Target interface {
	RebuildFor(defs *definitions.Definitions) error
}

// GasTarget reapplies gas configuration.
type GasTarget interface {
	ApplyGasConfig() error
}

// Config holds configuration for a Reloader.
type Config struct {
	// Spec is a cron expression with optional seconds, or a descriptor such
	// as "@every 30s" or "@hourly".
	Spec string

	// Load returns the definitions to apply.
	Load func() (*definitions.Definitions, error)

	// Targets are rebuilt in order.
	Targets []Target

	// Locker serializes reloads with the decisions made on the targets.
	// Defaults to a private mutex.
	Locker sync.Locker

	// OnReload, if set, is called after every reload with its error.
	OnReload func(err error)
}

// Stats describes the reloads performed so far.
type Stats struct {
	Reloads    int
	Failures   int
	LastReload time.Time
	LastError  error
}

// Reloader periodically loads definitions and rebuilds its targets.
type Reloader struct {
	config Config
	cron   *cron.Cron

	mu      sync.Mutex
	running bool
	stats   Stats
}

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New creates a stopped Reloader.
func New(config Config) (*Reloader, error) {
	if config.Load == nil {
		return nil, errors.NewValidationError(module, "load", nil, "cannot be nil")
	}
	if len(config.Targets) == 0 {
		return nil, errors.NewValidationError(module, "targets", 0, "cannot be empty")
	}
	schedule, err := parser.Parse(config.Spec)
	if err != nil {
		return nil, errors.NewValidationError(module, "spec", config.Spec, err.Error()).
			WithHint(`use a cron expression or a descriptor like "@every 1m"`)
	}
	if config.Locker == nil {
		config.Locker = &sync.Mutex{}
	}

	r := &Reloader{
		config: config,
		cron: cron.New(
			cron.WithLogger(klog.Background()),
			cron.WithChain(cron.SkipIfStillRunning(klog.Background())),
		),
	}
	r.cron.Schedule(schedule, cron.FuncJob(func() {
		if err := r.ReloadNow(); err != nil {
			klog.Errorf("Throttle definitions reload failed: %v", err)
		}
	}))
	return r, nil
}

// Start begins reloading on schedule. It does not reload immediately.
func (r *Reloader) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.cron.Start()
}

// Stop stops the schedule and waits for a running reload to finish.
func (r *Reloader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()
	<-r.cron.Stop().Done()
}

// ReloadNow loads definitions and rebuilds every target. A load failure
// leaves every target untouched; a target that rejects the definitions keeps
// its previous table while the others are still rebuilt.
func (r *Reloader) ReloadNow() error {
	err := r.reload()

	r.mu.Lock()
	r.stats.Reloads++
	r.stats.LastReload = time.Now()
	r.stats.LastError = err
	if err != nil {
		r.stats.Failures++
	}
	r.mu.Unlock()

	if r.config.OnReload != nil {
		r.config.OnReload(err)
	}
	return err
}

func (r *Reloader) reload() error {
	defs, err := r.config.Load()
	if err != nil {
		return errors.NewOperationError(module, "Load", err)
	}

	r.config.Locker.Lock()
	defer r.config.Locker.Unlock()

	var errs []error
	for _, target := range r.config.Targets {
		if err := target.RebuildFor(defs); err != nil {
			errs = append(errs, err)
			continue
		}
		if gas, ok := target.(GasTarget); ok {
			if err := gas.ApplyGasConfig(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return stderrors.Join(errs...)
}

// Stats returns the reload statistics.
func (r *Reloader) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
