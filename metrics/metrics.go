// Package metrics provides Prometheus metrics for pixopt.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache lookup results, used as the "result" label and the X-Pixopt-Cache
// header value.
const (
	CacheHit   = "HIT"
	CacheMiss  = "MISS"
	CacheStale = "STALE"
)

var (
	// CacheLookups counts image requests by cache result.
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pixopt",
			Name:      "cache_lookups_total",
			Help:      "Image cache lookups by result",
		},
		[]string{"result"},
	)

	// Fallbacks counts responses that served the upstream bytes because the
	// codec failed.
	Fallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pixopt",
			Name:      "fallbacks_total",
			Help:      "Optimizations that fell back to the upstream image",
		},
	)

	// UpstreamErrors counts failed fetches by kind.
	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pixopt",
			Name:      "upstream_errors_total",
			Help:      "Failed upstream fetches",
		},
		[]string{"kind"},
	)

	// TranscodeDuration measures fetch plus transcode plus cache write.
	TranscodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pixopt",
			Name:      "transcode_duration_seconds",
			Help:      "Duration of cache misses and revalidations in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2, 4, 7, 15},
		},
		[]string{"content_type"},
	)

	// MirrorJobs counts settled mirror jobs by backend and outcome.
	MirrorJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pixopt",
			Name:      "mirror_jobs_total",
			Help:      "Settled mirror jobs",
		},
		[]string{"backend", "status"},
	)
)

// RecordLookup records one cache lookup.
func RecordLookup(result string) {
	CacheLookups.WithLabelValues(result).Inc()
}

// RecordTranscode records a finished optimization.
func RecordTranscode(contentType string, d time.Duration, fallback bool) {
	TranscodeDuration.WithLabelValues(contentType).Observe(d.Seconds())
	if fallback {
		Fallbacks.Inc()
	}
}

// RecordUpstreamError records a failed fetch.
func RecordUpstreamError(kind string) {
	UpstreamErrors.WithLabelValues(kind).Inc()
}

// RecordMirrorJob records a mirror job reaching a final state.
func RecordMirrorJob(backend, status string) {
	MirrorJobs.WithLabelValues(backend, status).Inc()
}
