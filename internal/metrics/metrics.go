// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "contas_"

// Refresh triggers.
const (
	TriggerEvent   = "event"
	TriggerCron    = "cron"
	TriggerRequest = "request"
)

// Metrics holds the collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	summaryRefreshes *prometheus.CounterVec
	summaryCache     *prometheus.CounterVec
	ruleOutcomes     *prometheus.CounterVec
	validationErrors *prometheus.CounterVec
	alerts           prometheus.Counter
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "Total HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		summaryRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "summary_refreshes_total",
				Help: "Total summary recomputations by trigger and result",
			},
			[]string{"trigger", "result"},
		),
		summaryCache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "summary_cache_total",
				Help: "Summary cache lookups by result",
			},
			[]string{"result"},
		),
		ruleOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "insight_rule_outcomes_total",
				Help: "Insight rule evaluations by outcome",
			},
			[]string{"outcome"},
		),
		validationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "bill_validation_errors_total",
				Help: "Bill validation errors by field",
			},
			[]string{"field"},
		),
		alerts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_total",
				Help: "Total month alerts raised",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpLatency,
		m.summaryRefreshes,
		m.summaryCache,
		m.ruleOutcomes,
		m.validationErrors,
		m.alerts,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// SummaryRefreshed records a summary recomputation.
func (m *Metrics) SummaryRefreshed(trigger string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.summaryRefreshes.WithLabelValues(trigger, result).Inc()
}

// SummaryCacheLookup records a cache hit or miss.
func (m *Metrics) SummaryCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.summaryCache.WithLabelValues(result).Inc()
}

// RuleOutcome records one insight rule result.
func (m *Metrics) RuleOutcome(outcome string) {
	if m == nil {
		return
	}
	m.ruleOutcomes.WithLabelValues(outcome).Inc()
}

// ValidationError records one rejected bill field.
func (m *Metrics) ValidationError(field string) {
	if m == nil {
		return
	}
	m.validationErrors.WithLabelValues(field).Inc()
}

// AlertRaised records one alert.
func (m *Metrics) AlertRaised() {
	if m == nil {
		return
	}
	m.alerts.Inc()
}
