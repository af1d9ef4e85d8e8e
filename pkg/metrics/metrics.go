// Package metrics provides Prometheus instrumentation for throttling decisions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vnykmshr/detthrottle/pkg/throttle"
	"github.com/vnykmshr/detthrottle/pkg/throttle/functionality"
)

// Decision outcomes.
const (
	OutcomeAdmitted  = "admitted"
	OutcomeThrottled = "throttled"
)

// Rebuild results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Registry holds all throttle metric instances.
type Registry struct {
	Decisions         *prometheus.CounterVec
	GasThrottled      *prometheus.CounterVec
	BucketUtilization *prometheus.GaugeVec
	Rebuilds          *prometheus.CounterVec
}

// DefaultRegistry is registered with prometheus.DefaultRegisterer.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	config := DefaultConfig()
	config.Registry = reg
	return NewRegistryWithConfig(config)
}

// NewRegistryWithConfig creates a metrics registry from config.
func NewRegistryWithConfig(config Config) *Registry {
	reg := config.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	namespace := config.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Registry{
		Decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "throttle",
				Name:        "decisions_total",
				Help:        "Total number of throttling decisions",
				ConstLabels: config.Labels,
			},
			[]string{"mode", "operation", "outcome"},
		),

		GasThrottled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "throttle",
				Name:        "gas_throttled_total",
				Help:        "Total number of decisions rejected by the gas throttle",
				ConstLabels: config.Labels,
			},
			[]string{"mode"},
		),

		BucketUtilization: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace:   namespace,
				Subsystem:   "throttle",
				Name:        "bucket_utilization_percent",
				Help:        "Bucket usage as a percentage of capacity after the last admission it charged",
				ConstLabels: config.Labels,
			},
			[]string{"mode", "bucket"},
		),

		Rebuilds: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   namespace,
				Subsystem:   "throttle",
				Name:        "rebuilds_total",
				Help:        "Total number of throttle rebuilds",
				ConstLabels: config.Labels,
			},
			[]string{"mode", "result"},
		),
	}
}

// ThrottleObserver records throttle decisions in a Registry.
type ThrottleObserver struct {
	registry *Registry
}

var _ throttle.Observer = (*ThrottleObserver)(nil)

// NewThrottleObserver creates an observer recording into registry, or into
// DefaultRegistry when registry is nil.
func NewThrottleObserver(registry *Registry) *ThrottleObserver {
	if registry == nil {
		registry = DefaultRegistry
	}
	return &ThrottleObserver{registry: registry}
}

// ObserveDecision implements throttle.Observer.
func (o *ThrottleObserver) ObserveDecision(mode throttle.Mode, op functionality.Functionality, throttled, gasThrottled bool) {
	outcome := OutcomeAdmitted
	if throttled {
		outcome = OutcomeThrottled
	}
	o.registry.Decisions.WithLabelValues(mode.String(), op.String(), outcome).Inc()
	if gasThrottled {
		o.registry.GasThrottled.WithLabelValues(mode.String()).Inc()
	}
}

// ObserveUsage implements throttle.Observer.
func (o *ThrottleObserver) ObserveUsage(mode throttle.Mode, bucket string, percentUsed float64) {
	o.registry.BucketUtilization.WithLabelValues(mode.String(), bucket).Set(percentUsed)
}

// ObserveRebuild implements throttle.Observer.
func (o *ThrottleObserver) ObserveRebuild(mode throttle.Mode, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	o.registry.Rebuilds.WithLabelValues(mode.String(), result).Inc()
}
