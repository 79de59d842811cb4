package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	PortalRequestsTotal   *prometheus.CounterVec
	PortalRequestDuration *prometheus.HistogramVec
	CaptchaAttemptsTotal  *prometheus.CounterVec
	PagesTotal            *prometheus.CounterVec
	DistrictQueriesTotal  *prometheus.CounterVec
	TokenExhaustionsTotal prometheus.Counter
	RecordsFetchedTotal   prometheus.Counter
	BatchRunsTotal        *prometheus.CounterVec
	BatchDuration         prometheus.Histogram
	JobsInQueue           prometheus.Gauge
}

// New registers every collector on reg. Passing nil uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		PortalRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_requests_total",
				Help: "Requests issued to the door plate portal.",
			},
			[]string{"step", "status"}, // status: ok, error
		),
		PortalRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portal_request_duration_seconds",
				Help:    "Duration of requests issued to the door plate portal.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"step"},
		),
		CaptchaAttemptsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "captcha_attempts_total",
				Help: "Captcha acquisition attempts by result.",
			},
			[]string{"result"}, // accepted, fetch_failed, rejected_shape, recognizer_error, manual
		),
		PagesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_pages_total",
				Help: "Result pages fetched by outcome.",
			},
			[]string{"status"}, // ok, failed
		),
		DistrictQueriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "district_queries_total",
				Help: "District queries by credential mode and outcome.",
			},
			[]string{"mode", "status", "error_type"},
		),
		TokenExhaustionsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "continuation_token_exhaustions_total",
				Help: "Times the portal stopped renewing the continuation token.",
			},
		),
		RecordsFetchedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "records_fetched_total",
				Help: "Door plate records collected.",
			},
		),
		BatchRunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batch_runs_total",
				Help: "Batch runs by outcome.",
			},
			[]string{"status"},
		),
		BatchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "batch_duration_seconds",
				Help:    "Duration of whole batch runs.",
				Buckets: []float64{5, 10, 15, 30, 60, 120, 300},
			},
		),
		JobsInQueue: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "batch_jobs_in_queue",
				Help: "Current number of batch jobs waiting in the queue.",
			},
		),
	}
}

func (m *Metrics) ObservePortalRequest(step string, seconds float64, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.PortalRequestsTotal.WithLabelValues(step, status).Inc()
	m.PortalRequestDuration.WithLabelValues(step).Observe(seconds)
}

func (m *Metrics) IncCaptchaAttempt(result string) {
	if m == nil {
		return
	}
	m.CaptchaAttemptsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncPage(status string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) IncDistrictQuery(mode, status, errorType string) {
	if m == nil {
		return
	}
	m.DistrictQueriesTotal.WithLabelValues(mode, status, errorType).Inc()
}

func (m *Metrics) IncTokenExhaustion() {
	if m == nil {
		return
	}
	m.TokenExhaustionsTotal.Inc()
}

func (m *Metrics) AddRecords(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsFetchedTotal.Add(float64(n))
}

func (m *Metrics) ObserveBatch(status string, seconds float64) {
	if m == nil {
		return
	}
	m.BatchRunsTotal.WithLabelValues(status).Inc()
	m.BatchDuration.Observe(seconds)
}

func (m *Metrics) SetJobsInQueue(n int64) {
	if m == nil {
		return
	}
	m.JobsInQueue.Set(float64(n))
}

func (m *Metrics) ObserveHTTP(method, path string, status int, seconds float64) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.HTTPRequestDuration.WithLabelValues(method, path, code).Observe(seconds)
	m.HTTPRequestsTotal.WithLabelValues(method, path, code).Inc()
}
