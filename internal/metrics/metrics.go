// Package metrics exposes Prometheus collectors for the analysis pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ProviderCalls      *prometheus.CounterVec
	ProviderLatency    *prometheus.HistogramVec
	CacheLookups       *prometheus.CounterVec
	DegradedResults    prometheus.Counter
	EnrichmentFailures *prometheus.CounterVec
	ReconcileOutcomes  *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ProviderCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bioguard",
			Name:      "provider_calls_total",
			Help:      "Provider invocations by outcome (ok or a failure kind).",
		}, []string{"provider", "outcome"}),
		ProviderLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "bioguard",
			Name:      "provider_latency_seconds",
			Help:      "Latency of provider invocations.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"provider"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bioguard",
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by result (hit or miss).",
		}, []string{"result"}),
		DegradedResults: f.NewCounter(prometheus.CounterOpts{
			Namespace: "bioguard",
			Name:      "degraded_results_total",
			Help:      "Analyses answered by the offline provider.",
		}),
		EnrichmentFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bioguard",
			Name:      "enrichment_failures_total",
			Help:      "Vector or graph writes that failed and were queued.",
		}, []string{"task"}),
		ReconcileOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bioguard",
			Name:      "reconcile_tasks_total",
			Help:      "Reconciled enrichment tasks by outcome (done, retry, dead).",
		}, []string{"outcome"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bioguard",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
	}
}

func (m *Metrics) ObserveProvider(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(provider, outcome).Inc()
	m.ProviderLatency.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) Degraded() {
	if m == nil {
		return
	}
	m.DegradedResults.Inc()
}

func (m *Metrics) EnrichmentFailed(task string) {
	if m == nil {
		return
	}
	m.EnrichmentFailures.WithLabelValues(task).Inc()
}

func (m *Metrics) Reconciled(outcome string) {
	if m == nil {
		return
	}
	m.ReconcileOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Request(route, status string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, status).Inc()
}
