// Package metrics counts what a run fetched, extracted and classified. The
// counters live in a private registry and are written to a node-exporter
// textfile at the end of a CLI run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "icpscout"

// Fetch kinds.
const (
	KindHomepage    = "homepage"
	KindSponsorPage = "sponsor_page"
	KindRendered    = "rendered"
)

// Classification batch outcomes and fallback reasons.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"

	ReasonMissing = "missing"
	ReasonError   = "error"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	pagesFetched       *prometheus.CounterVec
	fetchFailures      *prometheus.CounterVec
	companiesExtracted *prometheus.CounterVec
	classifyBatches    *prometheus.CounterVec
	fallbackRows       *prometheus.CounterVec
	planFallbacks      prometheus.Counter
}

// New creates the counters and registers them in a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Pages fetched successfully, by kind.",
		}, []string{"kind"}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Page fetches that failed and were skipped, by kind.",
		}, []string{"kind"}),
		companiesExtracted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "companies_extracted_total",
			Help:      "Company candidates accepted by the normalizer, by source hint.",
		}, []string{"source"}),
		classifyBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classification_batches_total",
			Help:      "Classification oracle batches, by outcome.",
		}, []string{"outcome"}),
		fallbackRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_rows_total",
			Help:      "Validation rows synthesized locally, by reason.",
		}, []string{"reason"}),
		planFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_fallbacks_total",
			Help:      "Runs that fell back to the default plan.",
		}),
	}
	m.registry.MustRegister(
		m.pagesFetched,
		m.fetchFailures,
		m.companiesExtracted,
		m.classifyBatches,
		m.fallbackRows,
		m.planFallbacks,
	)
	return m
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) PageFetched(kind string) {
	if m == nil {
		return
	}
	m.pagesFetched.WithLabelValues(kind).Inc()
}

func (m *Metrics) FetchFailed(kind string) {
	if m == nil {
		return
	}
	m.fetchFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) CompanyExtracted(source string) {
	if m == nil {
		return
	}
	m.companiesExtracted.WithLabelValues(source).Inc()
}

func (m *Metrics) ClassificationBatch(outcome string) {
	if m == nil {
		return
	}
	m.classifyBatches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) FallbackRows(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.fallbackRows.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) PlanFallback() {
	if m == nil {
		return
	}
	m.planFallbacks.Inc()
}

// WriteTextfile writes all counters in the Prometheus text format to path.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
