package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "glhub"

// Metrics holds the hub's Prometheus collectors on a private registry.
//
// Every recording method is nil-safe, so components accept a *Metrics
// and tests may pass nil.
type Metrics struct {
	registry *prometheus.Registry

	clientsConnected  *prometheus.GaugeVec
	rpcRequests       *prometheus.CounterVec
	rpcDuration       *prometheus.HistogramVec
	notificationsSent prometheus.Counter
	pendingOps        *prometheus.GaugeVec
	opTimeouts        *prometheus.CounterVec
	thingsConfigured  prometheus.Gauge
	pluginFaults      *prometheus.CounterVec
	cloudConnected    prometheus.Gauge
}

// New creates the collectors and registers them together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		clientsConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clients_connected",
			Help:      "Connected JSON-RPC clients by transport.",
		}, []string{"transport"}),
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "JSON-RPC requests by method and response status.",
		}, []string{"method", "status"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_request_duration_seconds",
			Help:      "Time from request receipt to response, including async completion.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		notificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Notification messages delivered to clients.",
		}),
		pendingOps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_operations",
			Help:      "Outstanding asynchronous operations by kind.",
		}, []string{"kind"}),
		opTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_timeouts_total",
			Help:      "Asynchronous operations that hit their deadline.",
		}, []string{"kind"}),
		thingsConfigured: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "things_configured",
			Help:      "Things currently configured and active.",
		}),
		pluginFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plugin_faults_total",
			Help:      "Panics recovered from plugin callbacks.",
		}, []string{"plugin"}),
		cloudConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cloud_tunnel_connected",
			Help:      "1 while the cloud relay tunnel is authenticated.",
		}),
	}

	m.registry.MustRegister(
		m.clientsConnected,
		m.rpcRequests,
		m.rpcDuration,
		m.notificationsSent,
		m.pendingOps,
		m.opTimeouts,
		m.thingsConfigured,
		m.pluginFaults,
		m.cloudConnected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ClientConnected increments the per-transport client gauge.
func (m *Metrics) ClientConnected(transport string) {
	if m == nil {
		return
	}
	m.clientsConnected.WithLabelValues(transport).Inc()
}

// ClientDisconnected decrements the per-transport client gauge.
func (m *Metrics) ClientDisconnected(transport string) {
	if m == nil {
		return
	}
	m.clientsConnected.WithLabelValues(transport).Dec()
}

// RPCCompleted records one answered request.
func (m *Metrics) RPCCompleted(method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.rpcRequests.WithLabelValues(method, status).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(seconds)
}

// NotificationsSent adds n delivered notifications.
func (m *Metrics) NotificationsSent(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.notificationsSent.Add(float64(n))
}

// SetPending sets the outstanding operation count for kind.
func (m *Metrics) SetPending(kind string, n int) {
	if m == nil {
		return
	}
	m.pendingOps.WithLabelValues(kind).Set(float64(n))
}

// OperationTimedOut counts one deadline expiry for kind.
func (m *Metrics) OperationTimedOut(kind string) {
	if m == nil {
		return
	}
	m.opTimeouts.WithLabelValues(kind).Inc()
}

// SetThingsConfigured sets the configured-things gauge.
func (m *Metrics) SetThingsConfigured(n int) {
	if m == nil {
		return
	}
	m.thingsConfigured.Set(float64(n))
}

// PluginFault counts a recovered plugin panic.
func (m *Metrics) PluginFault(plugin string) {
	if m == nil {
		return
	}
	m.pluginFaults.WithLabelValues(plugin).Inc()
}

// SetCloudConnected reports the tunnel state.
func (m *Metrics) SetCloudConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.cloudConnected.Set(1)
	} else {
		m.cloudConnected.Set(0)
	}
}
