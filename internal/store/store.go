// Package store persists normalized plate records and answers segment lookups.
package store

import (
	"context"

	"github.com/sells-group/plates-cli/internal/model"
)

// SegmentFunc receives the three segments of one stored record.
type SegmentFunc func(first, second, third int) error

// Reader is the read side of the record store.
type Reader interface {
	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)

	// SegmentStats returns how many records hold v in any segment and the
	// latest production year among them. latest is nil when count is 0.
	SegmentStats(ctx context.Context, v int) (count int64, latest *int, err error)

	// ScanSegments calls fn for every stored record in storage order.
	ScanSegments(ctx context.Context, fn SegmentFunc) error
}

// Store defines the persistence interface for plate records.
type Store interface {
	Reader

	// Records
	BeginLoad(ctx context.Context) (Loader, error)

	// Ingest audit log
	StartIngest(ctx context.Context, source string) (*model.IngestRun, error)
	CompleteIngest(ctx context.Context, runID string, counts model.IngestCounts) error
	FailIngest(ctx context.Context, runID string, counts model.IngestCounts, reason string) error
	ListIngestRuns(ctx context.Context, limit int) ([]model.IngestRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Loader replaces the stored records inside one transaction. The records
// table is emptied when the load begins and readers see the old data until
// Commit. Rollback leaves the previous records in place.
type Loader interface {
	InsertRecords(ctx context.Context, records []model.PlateRecord) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// recordColumns is the column order of the records table.
var recordColumns = []string{"production_year", "plate_number", "first", "second", "third"}
