package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultRegistry holds every bridge collector and backs the /metrics endpoint.
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		InvocationTotal, InvocationDuration,
		SessionSpawnTotal, SessionsActive,
		ProviderRequestTotal,
	)
}

// InvocationTotal counts tool invocations by tool, execution kind and outcome.
var InvocationTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "toolbridge_invocation_total",
		Help: "Tool invocations by outcome",
	},
	[]string{"tool", "kind", "outcome"}, // outcome: ok | <error kind>
)

// InvocationDuration is the end-to-end invocation latency in seconds.
var InvocationDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "toolbridge_invocation_duration_seconds",
		Help:    "Tool invocation latency in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 45, 90, 120},
	},
	[]string{"kind"},
)

// SessionSpawnTotal counts persistent process starts.
var SessionSpawnTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "toolbridge_session_spawn_total",
		Help: "Persistent tool processes started",
	},
	[]string{"tool", "mode"},
)

// SessionsActive is the number of live persistent processes.
var SessionsActive = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "toolbridge_sessions_active",
		Help: "Live persistent tool processes",
	},
)

// ProviderRequestTotal counts in-process provider calls.
var ProviderRequestTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "toolbridge_provider_request_total",
		Help: "In-process provider calls by outcome",
	},
	[]string{"provider", "outcome"}, // ok | error
)

// Handler exposes DefaultRegistry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(DefaultRegistry, promhttp.HandlerOpts{})
}
