package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RateMetrics covers the fetch/cache/fallback paths of the rate service.
// A nil *RateMetrics is valid and records nothing, which keeps tests free
// of global registry collisions.
type RateMetrics struct {
	CacheHitsTotal        prometheus.CounterVec
	CacheMissesTotal      prometheus.CounterVec
	UpstreamFailuresTotal prometheus.CounterVec
	FallbackServedTotal   prometheus.CounterVec
	UpstreamFetchDuration prometheus.HistogramVec
}

func NewRateMetrics() *RateMetrics {
	return &RateMetrics{
		CacheHitsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_cache_hits_total",
				Help: "Requests served from the in-memory rate cache",
			},
			[]string{"locality"},
		),
		CacheMissesTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_cache_misses_total",
				Help: "Requests that had to go to the upstream provider",
			},
			[]string{"locality"},
		),
		UpstreamFailuresTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_upstream_failures_total",
				Help: "Upstream fetches that exhausted all retries",
			},
			[]string{"locality"},
		),
		FallbackServedTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_fallback_served_total",
				Help: "Responses served from the last persisted snapshot",
			},
			[]string{"locality"},
		),
		UpstreamFetchDuration: *promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rate_upstream_fetch_duration_seconds",
				Help:    "Duration of upstream fetches including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"locality"},
		),
	}
}

func (m *RateMetrics) CacheHit(locality string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(locality).Inc()
}

func (m *RateMetrics) CacheMiss(locality string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(locality).Inc()
}

func (m *RateMetrics) UpstreamFailure(locality string) {
	if m == nil {
		return
	}
	m.UpstreamFailuresTotal.WithLabelValues(locality).Inc()
}

func (m *RateMetrics) FallbackServed(locality string) {
	if m == nil {
		return
	}
	m.FallbackServedTotal.WithLabelValues(locality).Inc()
}

func (m *RateMetrics) ObserveFetchDuration(locality string, seconds float64) {
	if m == nil {
		return
	}
	m.UpstreamFetchDuration.WithLabelValues(locality).Observe(seconds)
}
