// Package metrics exposes Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ingestPagesTotal        *prometheus.CounterVec
	ingestRecordsTotal      *prometheus.CounterVec
	ingestHTTPRequestsTotal *prometheus.CounterVec
	ingestBackoffSeconds    prometheus.Histogram
	ingestRunSeconds        prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		ingestPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_pages_total",
				Help: "Total number of pages fetched, labeled by status.",
			},
			[]string{"status"},
		)

		ingestRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_records_total",
				Help: "Total number of records processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		ingestHTTPRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_http_requests_total",
				Help: "Total number of HTTP requests to the source API, labeled by code.",
			},
			[]string{"code"},
		)

		ingestBackoffSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingest_retry_backoff_seconds",
				Help:    "Histogram of backoff wait durations before retries.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
			},
		)

		ingestRunSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingest_run_duration_seconds",
				Help:    "Histogram of full ingestion run durations.",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage increments the page counter for the given status.
func ObservePage(status string) {
	Init()
	ingestPagesTotal.WithLabelValues(status).Inc()
}

// ObserveRecords adds n records with the given outcome (loaded, skipped).
func ObserveRecords(outcome string, n int) {
	Init()
	if n > 0 {
		ingestRecordsTotal.WithLabelValues(outcome).Add(float64(n))
	}
}

// ObserveHTTPRequest increments the source request counter for a status code.
// Code 0 means the request never produced a response.
func ObserveHTTPRequest(code int) {
	Init()
	label := "network_error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	ingestHTTPRequestsTotal.WithLabelValues(label).Inc()
}

// ObserveBackoff records a backoff wait duration.
func ObserveBackoff(d time.Duration) {
	Init()
	ingestBackoffSeconds.Observe(d.Seconds())
}

// ObserveRun records the duration of a complete ingestion run.
func ObserveRun(d time.Duration) {
	Init()
	ingestRunSeconds.Observe(d.Seconds())
}
