package rarity

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/plates-cli/internal/model"
	"github.com/sells-group/plates-cli/internal/store"
)

// Estimator answers rarity queries against a populated, read-only store.
// It is safe for concurrent use.
type Estimator struct {
	reader store.Reader

	mu    sync.Mutex
	table *FrequencyTable
}

// NewEstimator creates an Estimator reading from r.
func NewEstimator(r store.Reader) *Estimator {
	return &Estimator{reader: r}
}

// TotalRecordCount returns the number of stored records.
func (e *Estimator) TotalRecordCount(ctx context.Context) (int64, error) {
	n, err := e.reader.Count(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "rarity: total record count")
	}
	return n, nil
}

// SegmentStats returns the appearance count of v and the latest production
// year among matching records (nil when there are none).
func (e *Estimator) SegmentStats(ctx context.Context, v int) (int64, *int, error) {
	if err := CheckSegment(v); err != nil {
		return 0, nil, err
	}
	count, latest, err := e.reader.SegmentStats(ctx, v)
	if err != nil {
		return 0, nil, eris.Wrapf(err, "rarity: segment stats %d", v)
	}
	return count, latest, nil
}

// RarityPercentile returns v's rarity percentile in 1..100.
func (e *Estimator) RarityPercentile(ctx context.Context, v int) (int, error) {
	if err := CheckSegment(v); err != nil {
		return 0, err
	}
	ft, err := e.Table(ctx)
	if err != nil {
		return 0, err
	}
	return ft.Percentile(v)
}

// Check gathers every statistic for v.
func (e *Estimator) Check(ctx context.Context, v int) (model.SegmentStatistic, error) {
	if err := CheckSegment(v); err != nil {
		return model.SegmentStatistic{}, err
	}

	total, err := e.TotalRecordCount(ctx)
	if err != nil {
		return model.SegmentStatistic{}, err
	}
	count, latest, err := e.SegmentStats(ctx, v)
	if err != nil {
		return model.SegmentStatistic{}, err
	}
	ft, err := e.Table(ctx)
	if err != nil {
		return model.SegmentStatistic{}, err
	}
	rank, err := ft.Rank(v)
	if err != nil {
		return model.SegmentStatistic{}, err
	}

	return model.SegmentStatistic{
		Value:                v,
		AppearanceCount:      count,
		LatestProductionYear: latest,
		Rank:                 rank,
		RarityPercentile:     PercentileForRank(rank),
		TotalRecords:         total,
	}, nil
}

// Leaderboard returns the n most common values, or the n rarest.
func (e *Estimator) Leaderboard(ctx context.Context, n int, rarest bool) ([]model.SegmentCount, error) {
	ft, err := e.Table(ctx)
	if err != nil {
		return nil, err
	}
	return ft.Top(n, rarest), nil
}

// Table returns the frequency table, building it on first use.
func (e *Estimator) Table(ctx context.Context) (*FrequencyTable, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.table != nil {
		return e.table, nil
	}
	ft, err := BuildFrequencyTable(ctx, e.reader)
	if err != nil {
		return nil, err
	}
	e.table = ft
	return ft, nil
}
