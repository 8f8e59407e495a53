// Package metrics exposes Gray Logic Hub runtime counters to Prometheus.
//
// The API server mounts Handler at /metrics. Session, dispatcher,
// correlator and device runtime components record through the nil-safe
// methods on *Metrics.
package metrics
