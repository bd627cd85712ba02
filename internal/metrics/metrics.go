// Package metrics provides Prometheus metrics for the SmartWallet service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Default latency buckets in milliseconds.
var defaultBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000}

// Manager owns every SmartWallet metric. A nil *Manager is valid and
// records nothing, so components can run without metrics.
type Manager struct {
	namespace        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	// Recommendation pipeline
	recommendations       *prometheus.CounterVec
	recommendationLatency prometheus.Histogram
	cardsEvaluated        prometheus.Histogram
	advisoriesTriggered   *prometheus.CounterVec
	catalogLoads          *prometheus.CounterVec

	// Catalog writes
	cardsAdded prometheus.Counter

	// Async worker
	workerJobs *prometheus.CounterVec

	// Retention
	recordsPurged prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	rateLimited         prometheus.Counter
}

// NewManager creates a metrics manager. Without WithRegistry a fresh
// registry carrying the Go and process collectors is used.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "smartwallet",
		histogramBuckets: defaultBuckets,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.recommendations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "recommend",
		Name:      "requests_total",
		Help:      "Recommendations served, by source (computed or cached) and outcome",
	}, []string{"source", "outcome"})

	m.recommendationLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "recommend",
		Name:      "latency_milliseconds",
		Help:      "Time to produce a recommendation in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.cardsEvaluated = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "recommend",
		Name:      "cards_evaluated",
		Help:      "Number of cards scored per recommendation",
		Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
	})

	m.advisoriesTriggered = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "advisory",
		Name:      "triggered_total",
		Help:      "Advisory rules that produced a warning, by rule id",
	}, []string{"rule_id"})

	m.catalogLoads = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "catalog",
		Name:      "loads_total",
		Help:      "Catalog snapshot lookups, by result (hit or miss)",
	}, []string{"result"})

	m.cardsAdded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "catalog",
		Name:      "cards_added_total",
		Help:      "Cards added through the API",
	})

	m.workerJobs = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "worker",
		Name:      "jobs_total",
		Help:      "Async recommendation jobs, by status",
	}, []string{"status"})

	m.recordsPurged = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "retention",
		Name:      "records_purged_total",
		Help:      "Recommendation history records removed by retention",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status code",
	}, []string{"route", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"route", "method"})

	m.rateLimited = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter",
	})
}

// Registry returns the registry backing this manager.
func (m *Manager) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRecommendation records one served recommendation.
func (m *Manager) RecordRecommendation(cached bool, err error, duration time.Duration, cards int) {
	if m == nil {
		return
	}
	source := "computed"
	if cached {
		source = "cached"
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.recommendations.WithLabelValues(source, outcome).Inc()
	if err == nil {
		m.recommendationLatency.Observe(float64(duration.Microseconds()) / 1000)
		if !cached {
			m.cardsEvaluated.Observe(float64(cards))
		}
	}
}

// RecordAdvisoryTriggered counts a warning produced by an advisory rule.
func (m *Manager) RecordAdvisoryTriggered(ruleID string) {
	if m == nil {
		return
	}
	m.advisoriesTriggered.WithLabelValues(ruleID).Inc()
}

// RecordCatalogLoad counts a catalog snapshot lookup.
func (m *Manager) RecordCatalogLoad(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.catalogLoads.WithLabelValues(result).Inc()
}

// RecordCardAdded counts a card added to the catalog.
func (m *Manager) RecordCardAdded() {
	if m == nil {
		return
	}
	m.cardsAdded.Inc()
}

// RecordWorkerJob counts an async job by final status.
func (m *Manager) RecordWorkerJob(status string) {
	if m == nil {
		return
	}
	m.workerJobs.WithLabelValues(status).Inc()
}

// RecordPurged counts history records removed by retention.
func (m *Manager) RecordPurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.recordsPurged.Add(float64(n))
}

// RecordHTTPRequest records one HTTP request.
func (m *Manager) RecordHTTPRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(float64(duration.Microseconds()) / 1000)
}

// RecordRateLimited counts a request rejected by the rate limiter.
func (m *Manager) RecordRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
