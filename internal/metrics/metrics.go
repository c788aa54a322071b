// Package metrics exposes classroom counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/engclass/internal/grading"
	"github.com/example/engclass/internal/session"
	"github.com/example/engclass/pkg/models"
)

const namespace = "engclass"

// Metrics owns a registry and the counters recorded by session hooks
type Metrics struct {
	registry *prometheus.Registry

	grades  *prometheus.CounterVec
	phases  *prometheus.CounterVec
	mastery *prometheus.CounterVec
	stale   prometheus.Counter
}

// New creates the counters on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		grades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grades_total",
			Help:      "Graded typed answers by tier",
		}, []string{"tier"}),
		phases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Session phase entries",
		}, []string{"phase", "forced"}),
		mastery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mastery_transitions_total",
			Help:      "Word status changes",
		}, []string{"from", "to"}),
		stale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_commands_total",
			Help:      "Deferred clears dropped because a newer command superseded them",
		}),
	}
	m.registry.MustRegister(
		m.grades, m.phases, m.mastery, m.stale,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveGrade counts one graded answer; exact answers get their own label
func (m *Metrics) ObserveGrade(_ session.Phase, r grading.Result) {
	tier := r.Tier.String()
	if r.Exact {
		tier = "exact"
	}
	m.grades.WithLabelValues(tier).Inc()
}

// ObservePhase counts entering a phase
func (m *Metrics) ObservePhase(_, to session.Phase, forced bool) {
	m.phases.WithLabelValues(to.String(), strconv.FormatBool(forced)).Inc()
}

// ObserveMastery counts status changes; saves that keep the status are ignored
func (m *Metrics) ObserveMastery(_ string, from, to models.Status) {
	if from == to {
		return
	}
	m.mastery.WithLabelValues(from.String(), to.String()).Inc()
}

// ObserveStale counts one dropped deferred task
func (m *Metrics) ObserveStale() {
	m.stale.Inc()
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
