package model

import "time"

// IngestStatus represents the state of an ingestion pass.
type IngestStatus string

const (
	IngestStatusRunning  IngestStatus = "running"
	IngestStatusComplete IngestStatus = "complete"
	IngestStatusFailed   IngestStatus = "failed"
)

// IngestRun is the audit row kept for every ingestion pass.
type IngestRun struct {
	ID           string       `json:"id" yaml:"id"`
	Source       string       `json:"source" yaml:"source"`
	Status       IngestStatus `json:"status" yaml:"status"`
	StartedAt    time.Time    `json:"started_at" yaml:"started_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	RowsRead     int64        `json:"rows_read" yaml:"rows_read"`
	RowsInserted int64        `json:"rows_inserted" yaml:"rows_inserted"`
	RowsSkipped  int64        `json:"rows_skipped" yaml:"rows_skipped"`
	Error        string       `json:"error,omitempty" yaml:"error,omitempty"`
}

// IngestCounts is passed when an ingestion pass finishes.
type IngestCounts struct {
	RowsRead     int64 `json:"rows_read"`
	RowsInserted int64 `json:"rows_inserted"`
	RowsSkipped  int64 `json:"rows_skipped"`
}
