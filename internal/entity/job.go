package entity

import "time"

// JobStatus is the lifecycle of an asynchronously submitted batch job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// BatchJob is the payload stored in the job queue.
type BatchJob struct {
	ID          string    `json:"id"`
	CityCode    string    `json:"city_code"`
	Range       DateRange `json:"range"`
	EditKind    string    `json:"edit_kind"`
	Districts   []string  `json:"districts,omitempty"`
	SaveToDB    bool      `json:"save_to_db"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// JobState is the status record kept for a submitted job.
type JobState struct {
	ID           string     `json:"id"`
	Status       JobStatus  `json:"status"`
	BatchID      int64      `json:"batch_id,omitempty"`
	TotalCount   int        `json:"total_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}
