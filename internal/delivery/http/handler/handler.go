package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/user/doorplate-crawler/internal/catalog"
	"github.com/user/doorplate-crawler/internal/delivery/http/request"
	"github.com/user/doorplate-crawler/internal/delivery/http/response"
	"github.com/user/doorplate-crawler/internal/entity"
	"github.com/user/doorplate-crawler/internal/repository"
	"github.com/user/doorplate-crawler/internal/scheduler"
	"github.com/user/doorplate-crawler/internal/usecase"
)

const (
	serviceName      = "戶政門牌資料爬蟲 API"
	healthTimeout    = 2 * time.Second
	defaultListLimit = 20
	maxListLimit     = 1000
)

// HealthCheck pings one backing store.
type HealthCheck func(ctx context.Context) error

// SchedulerStatus is the part of the scheduler the API reports on.
type SchedulerStatus interface {
	Status() scheduler.Status
}

// Deps wires the handler. Catalog and Crawler are required; the rest may be
// nil, in which case their endpoints answer 503.
type Deps struct {
	Catalog   *catalog.Catalog
	Crawler   usecase.Crawler
	Jobs      usecase.JobManager
	Records   repository.RecordRepository
	Batches   repository.BatchRepository
	Scheduler SchedulerStatus
	Checks    map[string]HealthCheck
	Version   string
}

type Handler struct {
	deps Deps
	now  func() time.Time
}

func NewHandler(deps Deps) *Handler {
	if deps.Version == "" {
		deps.Version = "dev"
	}
	return &Handler{deps: deps, now: time.Now}
}

func (h *Handler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"name":      serviceName,
		"version":   h.deps.Version,
		"health":    "/api/v1/health",
		"scheduler": "/api/v1/scheduler/status",
		"metrics":   "/metrics",
	})
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := response.HealthResponse{
		Status:    "healthy",
		Version:   h.deps.Version,
		Timestamp: h.now(),
	}

	if len(h.deps.Checks) > 0 {
		resp.Components = make(map[string]string, len(h.deps.Checks))
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		for name, check := range h.deps.Checks {
			if err := check(ctx); err != nil {
				slog.Error("Health check failed", "component", name, "error", err)
				resp.Components[name] = "unhealthy"
				resp.Status = "unhealthy"
				continue
			}
			resp.Components[name] = "healthy"
		}
	}

	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, resp)
}

// HandleBatchQuery runs a batch synchronously and returns its outcome.
func (h *Handler) HandleBatchQuery(w http.ResponseWriter, r *http.Request) {
	var req request.BatchQueryRequest
	if !h.decode(w, r, &req) {
		return
	}

	start := h.now()
	report, err := h.deps.Crawler.Crawl(r.Context(), req.CrawlRequest("api"))
	if err != nil {
		h.writeUseCaseError(w, "Batch query failed", err)
		return
	}

	h.writeJSON(w, http.StatusOK, response.NewBatchQueryResponse(report.BatchID, report.Outcome, h.now().Sub(start)))
}

func (h *Handler) HandleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if h.deps.Jobs == nil {
		h.writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "Job queue is not configured")
		return
	}

	var req request.BatchQueryRequest
	if !h.decode(w, r, &req) {
		return
	}

	id, err := h.deps.Jobs.Submit(r.Context(), req.Job())
	if err != nil {
		h.writeUseCaseError(w, "Failed to submit job", err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, response.JobAcceptedResponse{Status: string(entity.JobStatusPending), JobID: id})
}

func (h *Handler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	if h.deps.Jobs == nil {
		h.writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "Job queue is not configured")
		return
	}

	id := chi.URLParam(r, "id")
	state, err := h.deps.Jobs.Status(r.Context(), id)
	if err != nil {
		h.writeUseCaseError(w, "Failed to get job status", err)
		return
	}
	h.writeJSON(w, http.StatusOK, state)
}

// HandleListDistricts lists every city, or one city when city_code is given.
func (h *Handler) HandleListDistricts(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("city_code")
	if code == "" {
		h.writeJSON(w, http.StatusOK, map[string]any{"cities": h.deps.Catalog.Cities()})
		return
	}

	city, err := h.deps.Catalog.City(code)
	if err != nil {
		h.writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"city_name": city.Name,
		"city_code": city.Code,
		"districts": city.Districts,
	})
}

func (h *Handler) HandleSearchRecords(w http.ResponseWriter, r *http.Request) {
	if h.deps.Records == nil {
		h.writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "Record store is not configured")
		return
	}

	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"), 0)
	if err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	records, err := h.deps.Records.Search(r.Context(), entity.RecordFilter{
		City:      q.Get("city"),
		District:  q.Get("district"),
		EditType:  q.Get("edit_type"),
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
		Limit:     limit,
	})
	if err != nil {
		slog.Error("Failed to search records", "error", err)
		h.writeJSONError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
		return
	}
	if records == nil {
		records = []*entity.StoredRecord{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"count": len(records), "records": records})
}

func (h *Handler) HandleListBatches(w http.ResponseWriter, r *http.Request) {
	if h.deps.Batches == nil {
		h.writeJSONError(w, http.StatusServiceUnavailable, "unavailable", "Batch log is not configured")
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"), defaultListLimit)
	if err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	batches, err := h.deps.Batches.Recent(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list batches", "error", err)
		h.writeJSONError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
		return
	}

	out := make([]response.BatchSummary, 0, len(batches))
	for _, b := range batches {
		out = append(out, response.NewBatchSummary(b))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"batches": out})
}

func (h *Handler) HandleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if h.deps.Scheduler == nil {
		h.writeJSON(w, http.StatusOK, scheduler.Status{Jobs: []scheduler.Entry{}})
		return
	}
	h.writeJSON(w, http.StatusOK, h.deps.Scheduler.Status())
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, req *request.BatchQueryRequest) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return false
	}
	if err := req.Normalize(); err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}

func (h *Handler) writeUseCaseError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, usecase.ErrInvalidRequest),
		errors.Is(err, catalog.ErrUnknownCity),
		errors.Is(err, catalog.ErrUnknownDistrict):
		h.writeJSONError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, usecase.ErrCrawlInProgress):
		h.writeJSONError(w, http.StatusConflict, "crawl_in_progress", err.Error())
	case errors.Is(err, usecase.ErrJobNotFound):
		h.writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		slog.Error(msg, "error", err)
		h.writeJSONError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to write JSON response", "error", err)
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, response.ErrorResponse{ErrorCode: code, ErrorMessage: message})
}

// parseLimit reads a positive limit capped at maxListLimit. An empty value yields def.
func parseLimit(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer, got %q", raw)
	}
	return min(n, maxListLimit), nil
}
