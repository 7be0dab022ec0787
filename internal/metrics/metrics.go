// Package metrics exposes Prometheus collectors for the scraper service.
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
	scraperJobsTotal               *prometheus.CounterVec
	scraperPagesTotal              *prometheus.CounterVec
	scraperExtractionFallbackTotal *prometheus.CounterVec
	scraperParseFailuresTotal      *prometheus.CounterVec
	scraperJobDurationSeconds      *prometheus.HistogramVec
	scraperHeadlessPromotionsTotal prometheus.Counter
	httpRequestsTotal              *prometheus.CounterVec
	httpRequestDurationSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scraperJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_jobs_total",
				Help: "Total number of scrape jobs processed, labeled by kind and status.",
			},
			[]string{"kind", "status"},
		)

		scraperPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_pages_total",
				Help: "Total number of pages scraped, labeled by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		scraperExtractionFallbackTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_extraction_fallbacks_total",
				Help: "Fields that fell back to their sentinel default, labeled by field.",
			},
			[]string{"field"},
		)

		scraperParseFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_parse_failures_total",
				Help: "Compact-count texts that could not be parsed, labeled by field.",
			},
			[]string{"field"},
		)

		scraperJobDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_job_duration_seconds",
				Help:    "Histogram of scrape job durations, labeled by kind.",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"kind"},
		)

		scraperHeadlessPromotionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "scraper_headless_promotions_total",
				Help: "Probe fetches promoted to a headless render.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the job counter and records its duration.
func ObserveJob(kind, status string, duration time.Duration) {
	if scraperJobsTotal == nil {
		return
	}
	scraperJobsTotal.WithLabelValues(kind, status).Inc()
	scraperJobDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObservePage increments the per-page counter.
func ObservePage(kind, outcome string) {
	if scraperPagesTotal == nil {
		return
	}
	scraperPagesTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveFallback records a field degrading to its sentinel default.
func ObserveFallback(field string) {
	if scraperExtractionFallbackTotal == nil {
		return
	}
	scraperExtractionFallbackTotal.WithLabelValues(field).Inc()
}

// ObserveParseFailure records an unparseable compact count.
func ObserveParseFailure(field string) {
	if scraperParseFailuresTotal == nil {
		return
	}
	scraperParseFailuresTotal.WithLabelValues(field).Inc()
}

// ObserveHeadlessPromotion records a probe fetch promoted to headless.
func ObserveHeadlessPromotion() {
	if scraperHeadlessPromotionsTotal == nil {
		return
	}
	scraperHeadlessPromotionsTotal.Inc()
}

// Middleware records request counts and latencies for every route.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		if httpRequestsTotal != nil {
			httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(sw.status)).Inc()
			httpRequestDurationSeconds.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
		}
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
