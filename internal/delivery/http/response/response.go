package response

import (
	"time"

	"github.com/user/doorplate-crawler/internal/crawler"
	"github.com/user/doorplate-crawler/internal/entity"
)

// MaxInlineRecords caps how many records a batch response carries inline.
const MaxInlineRecords = 300

// HouseholdRecord is one door plate change as returned by the API.
type HouseholdRecord struct {
	Address  string `json:"address"`
	Date     string `json:"date"`
	Type     string `json:"type"`
	District string `json:"district,omitempty"`
}

// BatchQueryResponse is the result of a synchronous batch query.
type BatchQueryResponse struct {
	Success         bool              `json:"success"`
	BatchID         int64             `json:"batch_id,omitempty"`
	TotalCount      int               `json:"total_count"`
	DistrictResults map[string]int    `json:"district_results"`
	FailedDistricts []string          `json:"failed_districts"`
	ExecutionTime   float64           `json:"execution_time"`
	Data            []HouseholdRecord `json:"data,omitempty"`
	ErrorMessage    string            `json:"error_message,omitempty"`
}

// NewBatchQueryResponse shapes a batch outcome. Failed districts are listed
// separately and left out of district_results. Records are only inlined up
// to MaxInlineRecords.
func NewBatchQueryResponse(batchID int64, outcome crawler.BatchOutcome, elapsed time.Duration) BatchQueryResponse {
	resp := BatchQueryResponse{
		Success:         outcome.Success,
		BatchID:         batchID,
		TotalCount:      outcome.TotalCount(),
		DistrictResults: make(map[string]int, len(outcome.PerDistrict)),
		FailedDistricts: []string{},
		ExecutionTime:   elapsed.Seconds(),
		ErrorMessage:    outcome.ErrorMessage,
	}
	for name, count := range outcome.PerDistrict {
		if count != entity.DistrictFailed {
			resp.DistrictResults[name] = count
		}
	}
	if failed := outcome.FailedDistricts(); failed != nil {
		resp.FailedDistricts = failed
	}
	if len(outcome.Records) <= MaxInlineRecords {
		resp.Data = make([]HouseholdRecord, 0, len(outcome.Records))
		for _, r := range outcome.Records {
			resp.Data = append(resp.Data, HouseholdRecord{
				Address:  r.Address,
				Date:     r.Date,
				Type:     entity.EditTypeName(r.EditTypeCode),
				District: r.District,
			})
		}
	}
	return resp
}

// JobAcceptedResponse acknowledges a queued job.
type JobAcceptedResponse struct {
	Status string `json:"status"`
	JobID  string `json:"job_id"`
}

// HealthResponse reports the service and its backing stores.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
}

// BatchSummary is one row of the batch log.
type BatchSummary struct {
	ID             int64              `json:"id"`
	Trigger        string             `json:"trigger"`
	Status         entity.BatchStatus `json:"status"`
	StartedAt      time.Time          `json:"started_at"`
	FinishedAt     *time.Time         `json:"finished_at,omitempty"`
	RecordsFetched int                `json:"records_fetched"`
	ErrorMessage   string             `json:"error_message,omitempty"`
}

func NewBatchSummary(b *entity.Batch) BatchSummary {
	return BatchSummary{
		ID:             b.ID,
		Trigger:        b.Trigger,
		Status:         b.Status,
		StartedAt:      b.StartedAt,
		FinishedAt:     b.FinishedAt,
		RecordsFetched: b.RecordsFetched,
		ErrorMessage:   b.ErrorMessage,
	}
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Success      bool   `json:"success"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}
