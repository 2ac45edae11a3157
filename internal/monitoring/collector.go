// Package monitoring summarizes ingestion health from the ingest run log.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/plates-cli/internal/model"
)

// maxRuns bounds how many runs a single snapshot inspects.
const maxRuns = 10000

// RunLister abstracts the store method needed by the collector.
type RunLister interface {
	ListIngestRuns(ctx context.Context, limit int) ([]model.IngestRun, error)
}

// Snapshot holds a point-in-time view of ingestion health.
type Snapshot struct {
	Total    int     `json:"total" yaml:"total"`
	Complete int     `json:"complete" yaml:"complete"`
	Failed   int     `json:"failed" yaml:"failed"`
	Running  int     `json:"running" yaml:"running"`
	FailRate float64 `json:"fail_rate" yaml:"fail_rate"`

	RowsRead     int64 `json:"rows_read" yaml:"rows_read"`
	RowsInserted int64 `json:"rows_inserted" yaml:"rows_inserted"`
	RowsSkipped  int64 `json:"rows_skipped" yaml:"rows_skipped"`

	LastSuccess *time.Time `json:"last_success,omitempty" yaml:"last_success,omitempty"`
	LastFailure string     `json:"last_failure,omitempty" yaml:"last_failure,omitempty"`

	LookbackHours int       `json:"lookback_hours" yaml:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at" yaml:"collected_at"`
}

// Collector gathers ingestion metrics from the run log.
type Collector struct {
	runs RunLister
	now  func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, now: time.Now}
}

// Collect summarizes the runs started within the lookback window. A
// non-positive lookback covers every recorded run.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.runs.ListIngestRuns(ctx, maxRuns)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list ingest runs")
	}

	var cutoff time.Time
	if lookbackHours > 0 {
		cutoff = now.Add(-time.Duration(lookbackHours) * time.Hour)
	}

	var lastFailureAt time.Time
	for _, r := range runs {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		snap.Total++
		snap.RowsRead += r.RowsRead
		snap.RowsInserted += r.RowsInserted
		snap.RowsSkipped += r.RowsSkipped

		switch r.Status {
		case model.IngestStatusComplete:
			snap.Complete++
			if r.CompletedAt != nil && (snap.LastSuccess == nil || r.CompletedAt.After(*snap.LastSuccess)) {
				t := *r.CompletedAt
				snap.LastSuccess = &t
			}
		case model.IngestStatusFailed:
			snap.Failed++
			if r.StartedAt.After(lastFailureAt) {
				lastFailureAt = r.StartedAt
				snap.LastFailure = r.Error
			}
		case model.IngestStatusRunning:
			snap.Running++
		}
	}

	if finished := snap.Complete + snap.Failed; finished > 0 {
		snap.FailRate = float64(snap.Failed) / float64(finished)
	}

	return snap, nil
}
