package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/plates-cli/internal/fetcher"
	"github.com/sells-group/plates-cli/internal/model"
	"github.com/sells-group/plates-cli/internal/plate"
	"github.com/sells-group/plates-cli/internal/store"
)

func newMemoryStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(store.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

// feed returns closed channels pre-loaded with recs and an optional source error.
func feed(recs []fetcher.Record, srcErr error) (<-chan fetcher.Record, <-chan error) {
	recCh := make(chan fetcher.Record, len(recs))
	for _, r := range recs {
		recCh <- r
	}
	close(recCh)

	errCh := make(chan error, 1)
	if srcErr != nil {
		errCh <- srcErr
	}
	close(errCh)
	return recCh, errCh
}

func rec(plateNumber, year string) fetcher.Record {
	return fetcher.Record{"mispar_rechev": plateNumber, "shnat_yitzur": year, "tozeret_cd": "413"}
}

var registryRecords = []fetcher.Record{
	rec("1234567", "2015"),
	rec("01234567", "2018"),
	rec("12345678", "2010"),
}

func TestRun_EndToEnd(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore(t)

	recs, errs := feed(registryRecords, nil)
	res, err := Run(ctx, st, recs, errs, Options{Source: "rechev.csv", BatchSize: 2})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, int64(3), res.RowsRead)
	assert.Equal(t, int64(3), res.RowsInserted)
	assert.Equal(t, int64(0), res.RowsSkipped)

	count, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	n, latest, err := st.SegmentStats(ctx, 345)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.NotNil(t, latest)
	assert.Equal(t, 2018, *latest)

	n, latest, err = st.SegmentStats(ctx, 678)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NotNil(t, latest)
	assert.Equal(t, 2010, *latest)

	runs, err := st.ListIngestRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
	assert.Equal(t, model.IngestStatusComplete, runs[0].Status)
	assert.Equal(t, "rechev.csv", runs[0].Source)
	assert.Equal(t, int64(3), runs[0].RowsInserted)
}

func TestRun_InvalidRecordAborts(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore(t)

	recs, errs := feed([]fetcher.Record{
		rec("1234567", "2015"),
		rec("12A4567", "2016"),
		rec("12345678", "2010"),
	}, nil)
	res, err := Run(ctx, st, recs, errs, Options{Source: "bad.csv"})
	require.Error(t, err)
	assert.True(t, plate.IsInvalidRecord(err))
	assert.Contains(t, err.Error(), "ingest: record 2")
	assert.Equal(t, int64(0), res.RowsInserted)

	count, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	runs, err := st.ListIngestRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.IngestStatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "invalid record")
}

func TestRun_SkipInvalid(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore(t)

	recs, errs := feed([]fetcher.Record{
		rec("1234567", "2015"),
		rec("", "2016"),
		rec("123456", "2016"),
		rec("1234567", "unknown"),
		rec("12345678", "2010"),
	}, nil)
	res, err := Run(ctx, st, recs, errs, Options{SkipInvalid: true})
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.RowsRead)
	assert.Equal(t, int64(2), res.RowsInserted)
	assert.Equal(t, int64(3), res.RowsSkipped)

	count, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestRun_MissingField(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore(t)

	recs, errs := feed([]fetcher.Record{{"plate": "1234567", "year": "2015"}}, nil)
	_, err := Run(ctx, st, recs, errs, Options{})
	require.Error(t, err)
	assert.True(t, plate.IsInvalidRecord(err))

	recs, errs = feed([]fetcher.Record{{"plate": "1234567", "year": "2015"}}, nil)
	res, err := Run(ctx, st, recs, errs, Options{PlateField: "plate", YearField: "year"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsInserted)
}

func TestRun_CustomQuote(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore(t)

	recs, errs := feed([]fetcher.Record{rec("'01234567'", "'2018'")}, nil)
	res, err := Run(ctx, st, recs, errs, Options{Quote: '\''})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsInserted)

	n, _, err := st.SegmentStats(ctx, 67)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRun_SourceError(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore(t)

	recs, errs := feed(registryRecords[:1], errors.New("csv: parse error on line 3"))
	res, err := Run(ctx, st, recs, errs, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest: read source")
	assert.Equal(t, int64(1), res.RowsRead)

	runs, err := st.ListIngestRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.IngestStatusFailed, runs[0].Status)
}

type failingInsertStore struct {
	*store.SQLiteStore
}

func (f failingInsertStore) BeginLoad(ctx context.Context) (store.Loader, error) {
	l, err := f.SQLiteStore.BeginLoad(ctx)
	if err != nil {
		return nil, err
	}
	return failingLoader{l}, nil
}

type failingLoader struct {
	store.Loader
}

func (failingLoader) InsertRecords(context.Context, []model.PlateRecord) (int64, error) {
	return 0, errors.New("disk full")
}

func TestRun_InsertError(t *testing.T) {
	ctx := context.Background()
	st := failingInsertStore{newMemoryStore(t)}

	recs, errs := feed(registryRecords, nil)
	_, err := Run(ctx, st, recs, errs, Options{BatchSize: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	runs, err := st.ListIngestRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.IngestStatusFailed, runs[0].Status)
}

func TestRun_ReplacesPreviousRecords(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore(t)

	recs, errs := feed(registryRecords, nil)
	_, err := Run(ctx, st, recs, errs, Options{})
	require.NoError(t, err)

	recs, errs = feed(registryRecords[2:], nil)
	res, err := Run(ctx, st, recs, errs, Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsInserted)

	count, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRun_FailureKeepsPreviousRecords(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore(t)

	recs, errs := feed(registryRecords, nil)
	_, err := Run(ctx, st, recs, errs, Options{})
	require.NoError(t, err)

	recs, errs = feed([]fetcher.Record{
		rec("7654321", "2020"),
		rec("7654321", "2021"),
		rec("bad", "2021"),
	}, nil)
	res, err := Run(ctx, st, recs, errs, Options{BatchSize: 1})
	require.Error(t, err)
	assert.Equal(t, int64(0), res.RowsInserted)

	count, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	n, _, err := st.SegmentStats(ctx, 543)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestRun_Empty(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore(t)

	recs, errs := feed(nil, nil)
	res, err := Run(ctx, st, recs, errs, Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.RowsRead)
}

func TestRun_FromCSVSource(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st := newMemoryStore(t)

	const export = "\"mispar_rechev\"|\"shnat_yitzur\"\n\"1234567\"|\"2015\"\n\"01234567\"|\"2018\"\n\"12345678\"|\"2010\"\n"
	rows, rowErrs := fetcher.StreamCSV(ctx, strings.NewReader(export), fetcher.CSVOptions{Delimiter: '|'})
	recs, errs := fetcher.StreamRecords(ctx, rows, rowErrs)

	res, err := Run(ctx, st, recs, errs, Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.RowsInserted)
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, DefaultPlateField, o.PlateField)
	assert.Equal(t, DefaultYearField, o.YearField)
	assert.Equal(t, '"', o.Quote)
	assert.Equal(t, DefaultBatchSize, o.BatchSize)
}
