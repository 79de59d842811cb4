package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/doorplate-crawler/internal/delivery/http/handler"
	"github.com/user/doorplate-crawler/internal/delivery/http/middleware"
	"github.com/user/doorplate-crawler/pkg/metrics"
)

// A synchronous batch over every district can take minutes.
const requestTimeout = 15 * time.Minute

// New builds the API router. gatherer backs /metrics; nil uses the default registry.
func New(h *handler.Handler, m *metrics.Metrics, gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging)
	r.Use(middleware.Metrics(m))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout))

	r.Get("/", h.HandleRoot)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.HandleHealthCheck)
		r.Post("/query/batch", h.HandleBatchQuery)
		r.Post("/jobs", h.HandleSubmitJob)
		r.Get("/jobs/{id}", h.HandleGetJob)
		r.Get("/districts", h.HandleListDistricts)
		r.Get("/records", h.HandleSearchRecords)
		r.Get("/batches", h.HandleListBatches)
		r.Get("/scheduler/status", h.HandleSchedulerStatus)
	})

	return r
}
