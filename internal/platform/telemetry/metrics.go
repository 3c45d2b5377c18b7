package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts callback traffic and the state transitions it produces.
type Metrics struct {
	registry *prometheus.Registry

	callbacksTotal    *prometheus.CounterVec
	statusTransitions *prometheus.CounterVec
	groupReplaces     *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		callbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "callbacks_total",
				Help:      "Callbacks received, by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		statusTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_transitions_total",
				Help:      "Process status transitions applied, by new status",
			},
			[]string{"status"},
		),
		groupReplaces: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "group_replaces_total",
				Help:      "Whole-document group replaces, by outcome",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(m.callbacksTotal, m.statusTransitions, m.groupReplaces)
	return m
}

func (m *Metrics) ObserveCallback(kind, outcome string) {
	if m == nil {
		return
	}
	m.callbacksTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveStatusTransition(status string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveGroupReplace(outcome string) {
	if m == nil {
		return
	}
	m.groupReplaces.WithLabelValues(outcome).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
