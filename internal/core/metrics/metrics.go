// internal/core/metrics/metrics.go
package metrics

/*
 * Prometheus metrics for rule evaluation.
 *
 * Metrics live on a private registry so tests and embedded engines do not
 * collide on the global default registry. The HTTP server exposes the
 * registry at /metrics.
 *
 * Metrics:
 *   - evaluations_total{surface}: evaluation passes (grpc, http)
 *   - evaluation_duration_seconds{surface}: pass latency
 *   - rule_matches_total{rule_id}: matched (record, rule) pairs
 *   - compile_errors_total: rule sets rejected at compile time
 *   - rules_loaded: size of the active rule set
 *   - insight_render_failures_total{field}: template failures by field
 *
 * Dependencies: github.com/prometheus/client_golang
 */

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/davidespo/rules-engine/internal/rules"
	"github.com/davidespo/rules-engine/internal/types"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "rules_engine"

// Surfaces reported in the surface label.
const (
	SurfaceGRPC = "grpc"
	SurfaceHTTP = "http"
)

// EvaluationMetrics records evaluation and rule set activity.
type EvaluationMetrics struct {
	registry *prometheus.Registry

	evaluations    *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	ruleMatches    *prometheus.CounterVec
	compileErrors  prometheus.Counter
	rulesLoaded    prometheus.Gauge
	renderFailures *prometheus.CounterVec
}

// NewEvaluationMetrics registers the evaluation metrics on registry.
// A nil registry gets a fresh one with Go runtime and process collectors.
func NewEvaluationMetrics(namespace string, registry *prometheus.Registry) *EvaluationMetrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m := &EvaluationMetrics{
		registry: registry,
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Evaluation passes over a record batch.",
		}, []string{"surface"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Duration of evaluation passes.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"surface"}),
		ruleMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rule_matches_total",
			Help:      "Matched (record, rule) pairs by rule.",
		}, []string{"rule_id"}),
		compileErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compile_errors_total",
			Help:      "Rule sets rejected because a rule failed to compile.",
		}),
		rulesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rules_loaded",
			Help:      "Rules in the active rule set.",
		}),
		renderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insight_render_failures_total",
			Help:      "Insight template render failures by field.",
		}, []string{"field"}),
	}

	registry.MustRegister(
		m.evaluations,
		m.duration,
		m.ruleMatches,
		m.compileErrors,
		m.rulesLoaded,
		m.renderFailures,
	)
	return m
}

// ObserveEvaluation records one evaluation pass and its matches.
func (m *EvaluationMetrics) ObserveEvaluation(surface string, elapsed time.Duration, matches []types.MatchID) {
	m.evaluations.WithLabelValues(surface).Inc()
	m.duration.WithLabelValues(surface).Observe(elapsed.Seconds())
	for _, id := range matches {
		m.ruleMatches.WithLabelValues(id.RuleID).Inc()
	}
}

// CompileFailed counts a rejected rule set.
func (m *EvaluationMetrics) CompileFailed() {
	m.compileErrors.Inc()
}

// SetRulesLoaded reports the size of the active rule set.
func (m *EvaluationMetrics) SetRulesLoaded(n int) {
	m.rulesLoaded.Set(float64(n))
}

// ObserveRenderFailure counts a template failure. Usable as a rules.RenderObserver.
func (m *EvaluationMetrics) ObserveRenderFailure(f rules.RenderFailure) {
	m.renderFailures.WithLabelValues(f.Field).Inc()
}

// Registry returns the registry the metrics are registered on.
func (m *EvaluationMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *EvaluationMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
