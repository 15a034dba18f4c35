// Package metrics exposes Prometheus collectors for the article service and
// its pipelines.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesFetchedTotal          *prometheus.CounterVec
	articlesSavedTotal         *prometheus.CounterVec
	articlesSkippedTotal       *prometheus.CounterVec
	enhancementsTotal          *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forge_pages_fetched_total",
				Help: "Total pages fetched from external sites, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		articlesSavedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forge_articles_saved_total",
				Help: "Total articles written through the API, labeled by kind (original|enhanced).",
			},
			[]string{"kind"},
		)

		articlesSkippedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forge_articles_skipped_total",
				Help: "Total articles skipped by a pipeline, labeled by reason.",
			},
			[]string{"reason"},
		)

		enhancementsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forge_enhancements_total",
				Help: "Total enhancement attempts, labeled by result.",
			},
			[]string{"result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forge_http_requests_total",
				Help: "Total API HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forge_http_request_duration_seconds",
				Help:    "Histogram of API request latencies, labeled by method.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname from a URL, or "unknown".
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveFetch records the outcome of one external page fetch.
func ObserveFetch(site, outcome string) {
	Init()
	pagesFetchedTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
}

// ObserveSaved records an article written through the API.
func ObserveSaved(kind string) {
	Init()
	articlesSavedTotal.WithLabelValues(kind).Inc()
}

// ObserveSkipped records a pipeline skipping an article.
func ObserveSkipped(reason string) {
	Init()
	articlesSkippedTotal.WithLabelValues(reason).Inc()
}

// ObserveEnhancement records one enhancement attempt.
func ObserveEnhancement(result string) {
	Init()
	enhancementsTotal.WithLabelValues(result).Inc()
}

// Middleware records request counts and latencies for the API server.
func Middleware(next http.Handler) http.Handler {
	Init()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		httpRequestDurationSeconds.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
