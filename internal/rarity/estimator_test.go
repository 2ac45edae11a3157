package rarity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/plates-cli/internal/model"
	"github.com/sells-group/plates-cli/internal/plate"
	"github.com/sells-group/plates-cli/internal/store"
)

// countingReader wraps a Reader and counts full scans.
type countingReader struct {
	store.Reader
	mu    sync.Mutex
	scans int
}

func (c *countingReader) ScanSegments(ctx context.Context, fn store.SegmentFunc) error {
	c.mu.Lock()
	c.scans++
	c.mu.Unlock()
	return c.Reader.ScanSegments(ctx, fn)
}

type failingReader struct{}

func (failingReader) Count(context.Context) (int64, error) { return 0, errors.New("count failed") }
func (failingReader) SegmentStats(context.Context, int) (int64, *int, error) {
	return 0, nil, errors.New("stats failed")
}
func (failingReader) ScanSegments(context.Context, store.SegmentFunc) error {
	return errors.New("scan failed")
}

func newPopulatedStore(t *testing.T, rows [][2]string) store.Store {
	t.Helper()
	ctx := context.Background()

	st, err := store.NewSQLite(store.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(ctx))

	var records []model.PlateRecord
	for _, row := range rows {
		r, err := plate.Normalize(row[0], row[1], plate.DefaultQuote)
		require.NoError(t, err)
		records = append(records, r)
	}
	l, err := st.BeginLoad(ctx)
	require.NoError(t, err)
	_, err = l.InsertRecords(ctx, records)
	require.NoError(t, err)
	require.NoError(t, l.Commit(ctx))
	return st
}

func TestEstimator_EndToEnd(t *testing.T) {
	st := newPopulatedStore(t, [][2]string{
		{"1234567", "2015"},
		{"01234567", "2018"},
		{"12345678", "2010"},
	})
	e := NewEstimator(st)
	ctx := context.Background()

	total, err := e.TotalRecordCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	count, latest, err := e.SegmentStats(ctx, 345)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	require.NotNil(t, latest)
	assert.Equal(t, 2018, *latest)

	count, latest, err = e.SegmentStats(ctx, 678)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	require.NotNil(t, latest)
	assert.Equal(t, 2010, *latest)

	count, latest, err = e.SegmentStats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	assert.Nil(t, latest)
}

func TestEstimator_RangeErrors(t *testing.T) {
	e := NewEstimator(failingReader{})
	ctx := context.Background()

	for _, v := range []int{-1, 1000} {
		_, _, err := e.SegmentStats(ctx, v)
		assert.True(t, IsRangeError(err), "SegmentStats(%d)", v)

		_, err = e.RarityPercentile(ctx, v)
		assert.True(t, IsRangeError(err), "RarityPercentile(%d)", v)

		_, err = e.Check(ctx, v)
		assert.True(t, IsRangeError(err), "Check(%d)", v)
	}
}

func TestEstimator_RarityPercentile(t *testing.T) {
	// 12 and 67 appear on 3 records, 345 on 2, 45 on 1.
	st := newPopulatedStore(t, [][2]string{
		{"1234567", "2015"},
		{"1234567", "2016"},
		{"1299967", "2017"},
		{"12345678", "2010"},
	})
	e := NewEstimator(st)
	ctx := context.Background()

	p12, err := e.RarityPercentile(ctx, 12)
	require.NoError(t, err)
	p67, err := e.RarityPercentile(ctx, 67)
	require.NoError(t, err)
	assert.Equal(t, 1, p12)
	assert.Equal(t, p12, p67)

	stat, err := e.Check(ctx, 45)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stat.AppearanceCount)
	assert.Equal(t, int64(4), stat.TotalRecords)
	require.NotNil(t, stat.LatestProductionYear)
	assert.Equal(t, 2010, *stat.LatestProductionYear)
	// counts: 12=3, 67=3, 345=2, 999=1, 123=1, 45=1, 678=1
	assert.Equal(t, 3, stat.Rank)
	assert.Equal(t, 1, stat.RarityPercentile)

	odds, ok := stat.OneIn()
	assert.True(t, ok)
	assert.InDelta(t, 4.0, odds, 0.0001)
}

func TestEstimator_CachesTable(t *testing.T) {
	st := newPopulatedStore(t, [][2]string{{"1234567", "2015"}})
	reader := &countingReader{Reader: st}
	e := NewEstimator(reader)
	ctx := context.Background()

	for range 5 {
		_, err := e.RarityPercentile(ctx, 12)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, reader.scans)
}

func TestEstimator_ConcurrentQueries(t *testing.T) {
	st := newPopulatedStore(t, [][2]string{
		{"1234567", "2015"},
		{"12345678", "2010"},
	})
	reader := &countingReader{Reader: st}
	e := NewEstimator(reader)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			_, err := e.RarityPercentile(ctx, v)
			assert.NoError(t, err)
		}(i * 50)
	}
	wg.Wait()
	assert.Equal(t, 1, reader.scans)
}

func TestEstimator_ReaderErrors(t *testing.T) {
	e := NewEstimator(failingReader{})
	ctx := context.Background()

	_, err := e.TotalRecordCount(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "total record count")

	_, _, err = e.SegmentStats(ctx, 5)
	require.Error(t, err)
	assert.False(t, IsRangeError(err))

	_, err = e.RarityPercentile(ctx, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build frequency table")

	_, err = e.Leaderboard(ctx, 10, false)
	require.Error(t, err)
}

func TestEstimator_Leaderboard(t *testing.T) {
	st := newPopulatedStore(t, [][2]string{
		{"1234567", "2015"},
		{"1234567", "2016"},
		{"12345678", "2010"},
	})
	e := NewEstimator(st)

	top, err := e.Leaderboard(context.Background(), 3, false)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, model.SegmentCount{Value: 12, AppearanceCount: 2}, top[0])
	assert.Equal(t, model.SegmentCount{Value: 67, AppearanceCount: 2}, top[1])
	assert.Equal(t, model.SegmentCount{Value: 345, AppearanceCount: 2}, top[2])
}
