package entity

import "time"

// BatchStatus mirrors the status column of crawl_batches.
type BatchStatus string

const (
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusFailed    BatchStatus = "failed"
)

// Batch mirrors the `crawl_batches` PostgreSQL table schema.
type Batch struct {
	ID             int64
	Trigger        string
	StartedAt      time.Time
	FinishedAt     *time.Time
	RecordsFetched int
	Status         BatchStatus
	ErrorMessage   string
}

// StoredRecord mirrors the `household_records` PostgreSQL table schema.
type StoredRecord struct {
	ID           int64     `json:"id"`
	BatchID      int64     `json:"batch_id"`
	City         string    `json:"city"`
	District     string    `json:"district"`
	FullAddress  string    `json:"full_address"`
	EditDate     string    `json:"edit_date"`
	EditTypeCode string    `json:"edit_type_code"`
	EditTypeName string    `json:"edit_type_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// RecordFilter narrows a stored record search. Empty fields are ignored.
type RecordFilter struct {
	City      string
	District  string
	EditType  string
	StartDate string
	EndDate   string
	Limit     int
}

// Recipient mirrors the `notification_recipients` PostgreSQL table schema.
type Recipient struct {
	Email    string
	Name     string
	IsActive bool
}
