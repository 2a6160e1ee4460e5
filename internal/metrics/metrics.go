package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mockforge"

// Metrics holds the Prometheus collectors of the server. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HitsTotal counts served mock responses. Labels: method
	HitsTotal *prometheus.CounterVec

	// NoMatchTotal counts requests no mock answered. Labels: method
	NoMatchTotal *prometheus.CounterVec

	// ResponseDelaySeconds observes the configured delay actually waited
	ResponseDelaySeconds prometheus.Histogram

	// AssistantRequestsTotal counts assistant calls. Labels: outcome (suggestion, advice, raw or error)
	AssistantRequestsTotal *prometheus.CounterVec

	// AppliedSuggestionsTotal counts suggestions turned into mocks
	AppliedSuggestionsTotal prometheus.Counter
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mock",
			Name:      "hits_total",
			Help:      "Requests answered by a mock.",
		}, []string{"method"}),
		NoMatchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mock",
			Name:      "no_match_total",
			Help:      "Requests no mock matched.",
		}, []string{"method"}),
		ResponseDelaySeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mock",
			Name:      "response_delay_seconds",
			Help:      "Configured delay waited before responding.",
			Buckets:   []float64{0, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		AssistantRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assistant",
			Name:      "requests_total",
			Help:      "Assistant completions by outcome.",
		}, []string{"outcome"}),
		AppliedSuggestionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assistant",
			Name:      "applied_suggestions_total",
			Help:      "Suggestions applied into the catalog.",
		}),
	}
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHit records a served mock and the delay it waited
func (m *Metrics) ObserveHit(method string, delay time.Duration) {
	if m == nil {
		return
	}
	m.HitsTotal.WithLabelValues(method).Inc()
	m.ResponseDelaySeconds.Observe(delay.Seconds())
}

// ObserveNoMatch records an unanswered request
func (m *Metrics) ObserveNoMatch(method string) {
	if m == nil {
		return
	}
	m.NoMatchTotal.WithLabelValues(method).Inc()
}

// ObserveAssistant records one assistant call outcome
func (m *Metrics) ObserveAssistant(outcome string) {
	if m == nil {
		return
	}
	m.AssistantRequestsTotal.WithLabelValues(outcome).Inc()
}

// ObserveApply records an applied suggestion
func (m *Metrics) ObserveApply() {
	if m == nil {
		return
	}
	m.AppliedSuggestionsTotal.Inc()
}
