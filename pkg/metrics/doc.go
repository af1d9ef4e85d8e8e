// Package metrics provides Prometheus instrumentation for throttling decisions.
//
// # Overview
//
// A ThrottleObserver plugs into a throttle.Throttling and records:
//   - decisions per mode, operation and outcome
//   - decisions rejected by the gas throttle
//   - bucket utilization after every admission that charged the bucket
//   - successful and failed rebuilds
//
// # Quick Start
//
//	registry := metrics.NewRegistry(prometheus.NewRegistry())
//	t, err := throttle.New(throttle.HAPI, props,
//		throttle.WithObserver(metrics.NewThrottleObserver(registry)))
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//	log.Fatal(http.ListenAndServe(":8080", nil))
//
// # Available Metrics
//
//   - detthrottle_throttle_decisions_total{mode,operation,outcome}
//   - detthrottle_throttle_gas_throttled_total{mode}
//   - detthrottle_throttle_bucket_utilization_percent{mode,bucket}
//   - detthrottle_throttle_rebuilds_total{mode,result}
//
// Observers run inside the decision path, so they never block and never
// influence a decision.
package metrics
