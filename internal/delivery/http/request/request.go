package request

import (
	"fmt"
	"strings"

	"github.com/user/doorplate-crawler/internal/entity"
	"github.com/user/doorplate-crawler/internal/usecase"
)

const (
	defaultCityCode     = "63000000"
	defaultRegisterKind = "1"
)

// BatchQueryRequest is the body of POST /api/v1/query/batch and POST /api/v1/jobs.
type BatchQueryRequest struct {
	CityCode     string   `json:"city_code"`
	StartDate    string   `json:"start_date"`
	EndDate      string   `json:"end_date"`
	RegisterKind string   `json:"register_kind"`
	Districts    []string `json:"districts,omitempty"`
	SaveToDB     *bool    `json:"save_to_db,omitempty"`
}

// Normalize fills defaults and trims whitespace. Required fields are checked
// here; date formats and district names are checked by the use case.
func (r *BatchQueryRequest) Normalize() error {
	r.CityCode = strings.TrimSpace(r.CityCode)
	r.StartDate = strings.TrimSpace(r.StartDate)
	r.EndDate = strings.TrimSpace(r.EndDate)
	r.RegisterKind = strings.TrimSpace(r.RegisterKind)

	if r.CityCode == "" {
		r.CityCode = defaultCityCode
	}
	if r.RegisterKind == "" {
		r.RegisterKind = defaultRegisterKind
	}
	if r.StartDate == "" || r.EndDate == "" {
		return fmt.Errorf("%w: start_date and end_date are required", usecase.ErrInvalidRequest)
	}
	for i, d := range r.Districts {
		r.Districts[i] = strings.TrimSpace(d)
	}
	return nil
}

func (r *BatchQueryRequest) saveToDB() bool {
	return r.SaveToDB == nil || *r.SaveToDB
}

// CrawlRequest converts the body into a use case request.
func (r *BatchQueryRequest) CrawlRequest(trigger string) usecase.CrawlRequest {
	return usecase.CrawlRequest{
		CityCode:  r.CityCode,
		Range:     entity.DateRange{Start: r.StartDate, End: r.EndDate},
		EditKind:  r.RegisterKind,
		Districts: r.Districts,
		SaveToDB:  r.saveToDB(),
		Trigger:   trigger,
	}
}

// Job converts the body into a queued batch job.
func (r *BatchQueryRequest) Job() *entity.BatchJob {
	return &entity.BatchJob{
		CityCode:  r.CityCode,
		Range:     entity.DateRange{Start: r.StartDate, End: r.EndDate},
		EditKind:  r.RegisterKind,
		Districts: r.Districts,
		SaveToDB:  r.saveToDB(),
	}
}
