// Package metrics exposes Prometheus instrumentation for the relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

// Metrics groups the relay's collectors on a dedicated registry.
type Metrics struct {
	registry *prometheus.Registry

	connections   prometheus.Gauge
	authenticated prometheus.Gauge
	requests      *prometheus.CounterVec
	pushes        *prometheus.CounterVec
	messages      prometheus.Counter
	rejected      prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relaychat",
			Name:      "connections",
			Help:      "Live transport connections.",
		}),
		authenticated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relaychat",
			Name:      "authenticated_connections",
			Help:      "Connections bound to a logged-in user.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relaychat",
			Name:      "requests_total",
			Help:      "Client requests by type and result code.",
		}, []string{"type", "code"}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relaychat",
			Name:      "pushes_total",
			Help:      "Server-initiated envelopes by type.",
		}, []string{"type"}),
		messages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relaychat",
			Name:      "messages_stored_total",
			Help:      "Messages accepted into the store.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relaychat",
			Name:      "rejected_frames_total",
			Help:      "Inbound frames rejected before dispatch.",
		}),
	}

	reg.MustRegister(
		m.connections,
		m.authenticated,
		m.requests,
		m.pushes,
		m.messages,
		m.rejected,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordConnections sets the live and authenticated connection gauges.
func (m *Metrics) RecordConnections(live, authenticated int) {
	if m == nil {
		return
	}
	m.connections.Set(float64(live))
	m.authenticated.Set(float64(authenticated))
}

// UnknownType labels requests whose type is not a protocol type tag.
const UnknownType = "unknown"

// RecordRequest counts a dispatched request. Types outside the protocol are
// counted under UnknownType so clients cannot mint new series.
func (m *Metrics) RecordRequest(typ, code string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(typeLabel(typ), code).Inc()
}

func typeLabel(typ string) string {
	if protocol.IsKnown(typ) {
		return typ
	}
	return UnknownType
}

// RecordPush counts a server-initiated envelope.
func (m *Metrics) RecordPush(typ string) {
	if m == nil {
		return
	}
	m.pushes.WithLabelValues(typeLabel(typ)).Inc()
}

// RecordMessageStored counts a message accepted into the store.
func (m *Metrics) RecordMessageStored() {
	if m == nil {
		return
	}
	m.messages.Inc()
}

// RecordRejectedFrame counts a frame rejected before dispatch.
func (m *Metrics) RecordRejectedFrame() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}
