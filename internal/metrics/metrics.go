// Package metrics provides Prometheus instrumentation for the relay agent.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "miot_relay"

// Message results used as the "result" label of messages_total.
const (
	ResultActuated = "actuated"
	ResultIgnored  = "ignored"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// Relay state gauge values.
const (
	RelayUnknown = -1
	RelayLow     = 0
	RelayHigh    = 1
)

// Metrics holds the agent's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	MessagesTotal       *prometheus.CounterVec
	ActuationsTotal     *prometheus.CounterVec
	ConnectionLostTotal prometheus.Counter
	RelayState          prometheus.Gauge
	SessionState        prometheus.Gauge
	ReactionDuration    prometheus.Histogram
}

// New registers all collectors, plus the Go and process collectors, on a
// fresh registry. An empty namespace means DefaultNamespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		MessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_total",
				Help:      "Messages delivered on the subscription, by outcome",
			},
			[]string{"result"},
		),
		ActuationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actuations_total",
				Help:      "Commands applied to the relay, by resulting state",
			},
			[]string{"state"},
		),
		ConnectionLostTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connection_lost_total",
				Help:      "Broker connection losses",
			},
		),
		RelayState: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "relay_state",
				Help:      "Current relay level (-1 unknown, 0 low, 1 high)",
			},
		),
		SessionState: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "session_state",
				Help:      "Broker session state (0 disconnected, 1 connecting, 2 connected, 3 subscribed, 4 closed)",
			},
		),
		ReactionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reaction_duration_seconds",
				Help:      "Time from delivery to completed actuation",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
			},
		),
	}
	m.RelayState.Set(RelayUnknown)

	for _, r := range []string{ResultActuated, ResultIgnored, ResultRejected, ResultFailed} {
		m.MessagesTotal.WithLabelValues(r)
	}

	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveMessage counts one delivered message.
func (m *Metrics) ObserveMessage(result string) {
	m.MessagesTotal.WithLabelValues(result).Inc()
}

// ObserveActuation counts an applied command and updates the relay gauge.
func (m *Metrics) ObserveActuation(state string, took time.Duration) {
	m.ActuationsTotal.WithLabelValues(state).Inc()
	m.ReactionDuration.Observe(took.Seconds())
	switch state {
	case "High":
		m.RelayState.Set(RelayHigh)
	case "Low":
		m.RelayState.Set(RelayLow)
	default:
		m.RelayState.Set(RelayUnknown)
	}
}

// ObserveConnectionLost counts one broker connection loss.
func (m *Metrics) ObserveConnectionLost() {
	m.ConnectionLostTotal.Inc()
}

// SetSessionState records the numeric session state.
func (m *Metrics) SetSessionState(state int) {
	m.SessionState.Set(float64(state))
}
