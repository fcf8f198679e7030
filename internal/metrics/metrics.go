package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Conversion metrics
	conversionsTotal    *prometheus.CounterVec
	conversionDuration  prometheus.Histogram
	conversionsInFlight prometheus.Gauge
	tilesGenerated      prometheus.Counter
	bundleBytes         prometheus.Histogram
	jobsActive          *prometheus.GaugeVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
		conversionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dzi_conversions_total",
				Help: "Total number of image conversions",
			},
			[]string{"status"},
		),
		conversionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dzi_conversion_duration_seconds",
				Help:    "Image conversion duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
			},
		),
		conversionsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "dzi_conversions_in_flight",
				Help: "Number of conversions currently running",
			},
		),
		tilesGenerated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "dzi_tiles_generated_total",
				Help: "Total number of tiles written",
			},
		),
		bundleBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dzi_bundle_bytes",
				Help:    "Size of built bundle archives in bytes",
				Buckets: prometheus.ExponentialBuckets(64<<10, 4, 8),
			},
		),
		jobsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "dzi_jobs_active",
				Help: "Number of active jobs",
			},
			[]string{"type"},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)
	reg.MustRegister(r.conversionsTotal)
	reg.MustRegister(r.conversionDuration)
	reg.MustRegister(r.conversionsInFlight)
	reg.MustRegister(r.tilesGenerated)
	reg.MustRegister(r.bundleBytes)
	reg.MustRegister(r.jobsActive)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// ConversionStarted marks a conversion as running.
func (r *Registry) ConversionStarted() {
	r.conversionsInFlight.Inc()
}

// RecordConversion records a finished conversion.
func (r *Registry) RecordConversion(status string, duration float64, tiles int) {
	r.conversionsInFlight.Dec()
	r.conversionsTotal.WithLabelValues(status).Inc()
	r.conversionDuration.Observe(duration)
	r.tilesGenerated.Add(float64(tiles))
}

// RecordBundle records the size of a built archive.
func (r *Registry) RecordBundle(size int64) {
	r.bundleBytes.Observe(float64(size))
}

// SetJobsActive sets the number of active jobs of a type.
func (r *Registry) SetJobsActive(jobType string, count int) {
	r.jobsActive.WithLabelValues(jobType).Set(float64(count))
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
