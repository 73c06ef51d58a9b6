// Package metrics registers the Prometheus gauges and counters the core
// exposes about itself (component A3). There is a single package-level
// Registry, in the idiom of client_golang, so the Control API and the
// instrumented components share the same collectors without passing them
// around.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the collector registry served by the Control API's /metrics
// endpoint.
var Registry = prometheus.NewRegistry()

var (
	// ActiveConnections mirrors ProxyStatus.ActiveConnections.
	ActiveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mcaccel_active_connections",
		Help: "Number of client connections currently being relayed.",
	})

	// CurrentNodeLatencyMS is the latency of the currently selected node, 0
	// when none is selected.
	CurrentNodeLatencyMS = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mcaccel_current_node_latency_ms",
		Help: "Latency in milliseconds of the currently selected node.",
	})

	// ProbeTotal counts completed probes by outcome.
	ProbeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mcaccel_probe_total",
		Help: "Total probes completed, labeled by result.",
	}, []string{"result"})

	// NodeRotationsTotal counts every successful auto or manual selection
	// change.
	NodeRotationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mcaccel_node_rotations_total",
		Help: "Total number of times the current node selection changed.",
	})
)

func init() {
	Registry.MustRegister(ActiveConnections, CurrentNodeLatencyMS, ProbeTotal, NodeRotationsTotal)
}

// RecordProbeResult increments ProbeTotal with the right "reachable" or
// "unreachable" label.
func RecordProbeResult(reachable bool) {
	if reachable {
		ProbeTotal.WithLabelValues("reachable").Inc()
	} else {
		ProbeTotal.WithLabelValues("unreachable").Inc()
	}
}

// RecordRotation increments NodeRotationsTotal. Call only when a selection
// change actually applied (ManualSelect of a known node, or AutoSelect to a
// node other than the current one).
func RecordRotation() {
	NodeRotationsTotal.Inc()
}

// SetProxySnapshot mirrors a ProxyStatus-shaped snapshot onto the gauges.
// Kept as plain values rather than importing internal/proxy, so metrics has
// no dependency on the component it observes.
func SetProxySnapshot(activeConnections, currentLatencyMS int64) {
	ActiveConnections.Set(float64(activeConnections))
	CurrentNodeLatencyMS.Set(float64(currentLatencyMS))
}
