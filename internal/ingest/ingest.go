// Package ingest loads registry export records into a plate store.
package ingest

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/plates-cli/internal/fetcher"
	"github.com/sells-group/plates-cli/internal/model"
	"github.com/sells-group/plates-cli/internal/plate"
	"github.com/sells-group/plates-cli/internal/store"
)

const (
	DefaultBatchSize  = 5000
	DefaultPlateField = "mispar_rechev"
	DefaultYearField  = "shnat_yitzur"

	progressEvery = 100_000
)

// Options configures a single ingestion pass.
type Options struct {
	Source      string // recorded in ingest_runs
	PlateField  string
	YearField   string
	Quote       rune
	SkipInvalid bool
	BatchSize   int
}

func (o Options) withDefaults() Options {
	if o.PlateField == "" {
		o.PlateField = DefaultPlateField
	}
	if o.YearField == "" {
		o.YearField = DefaultYearField
	}
	if o.Quote == 0 {
		o.Quote = plate.DefaultQuote
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	return o
}

// Result summarizes an ingestion pass.
type Result struct {
	RunID        string
	RowsRead     int64
	RowsInserted int64
	RowsSkipped  int64
	Duration     time.Duration
}

// Counts returns the row counters in the form stored on the ingest run.
func (r *Result) Counts() model.IngestCounts {
	return model.IngestCounts{
		RowsRead:     r.RowsRead,
		RowsInserted: r.RowsInserted,
		RowsSkipped:  r.RowsSkipped,
	}
}

// Run normalizes every record from recs in order and replaces the records in
// st with the results, inserted in batches inside a single load. An invalid
// record aborts the run unless opts.SkipInvalid is set, in which case it is
// logged and counted as skipped. Invalid records are never inserted. A failed
// run rolls the load back and leaves the previous records in place. The pass
// is recorded as an ingest run whose final status reflects the outcome.
//
// When Run returns early the producer behind recs may still be blocked on
// send; callers cancel ctx to release it.
func Run(ctx context.Context, st store.Store, recs <-chan fetcher.Record, errs <-chan error, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	start := time.Now()
	log := zap.L().With(zap.String("source", opts.Source))

	run, err := st.StartIngest(ctx, opts.Source)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: start run")
	}
	log = log.With(zap.String("run_id", run.ID))

	loader, err := st.BeginLoad(ctx)
	if err != nil {
		err = eris.Wrap(err, "ingest: begin load")
		if ferr := st.FailIngest(context.WithoutCancel(ctx), run.ID, model.IngestCounts{}, err.Error()); ferr != nil {
			log.Error("failed to record failed ingest run", zap.Error(ferr))
		}
		return &Result{RunID: run.ID, Duration: time.Since(start)}, err
	}

	var read, inserted, skipped atomic.Int64
	batches := make(chan []model.PlateRecord, 2)

	g, gctx := errgroup.WithContext(ctx)

	// Normalizer: the only reader of recs.
	g.Go(func() error {
		defer close(batches)

		batch := make([]model.PlateRecord, 0, opts.BatchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			select {
			case batches <- batch:
			case <-gctx.Done():
				return gctx.Err()
			}
			batch = make([]model.PlateRecord, 0, opts.BatchSize)
			return nil
		}

		for rec := range recs {
			if err := gctx.Err(); err != nil {
				return err
			}
			n := read.Add(1)
			pr, err := plate.Normalize(rec[opts.PlateField], rec[opts.YearField], opts.Quote)
			if err != nil {
				if !opts.SkipInvalid {
					return eris.Wrapf(err, "ingest: record %d", n)
				}
				skipped.Add(1)
				log.Warn("skipping invalid record", zap.Int64("record", n), zap.Error(err))
				continue
			}

			batch = append(batch, pr)
			if len(batch) >= opts.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
			if n%progressEvery == 0 {
				log.Info("ingest progress", zap.Int64("rows_read", n), zap.Int64("rows_inserted", inserted.Load()))
			}
		}

		for err := range errs {
			if err != nil {
				return eris.Wrap(err, "ingest: read source")
			}
		}
		return flush()
	})

	// Writer: the only writer to the store.
	g.Go(func() error {
		for batch := range batches {
			n, err := loader.InsertRecords(gctx, batch)
			if err != nil {
				return eris.Wrap(err, "ingest: insert batch")
			}
			inserted.Add(n)
		}
		return nil
	})

	runErr := g.Wait()
	if runErr == nil {
		runErr = eris.Wrap(loader.Commit(ctx), "ingest: commit load")
	} else if err := loader.Rollback(context.WithoutCancel(ctx)); err != nil {
		log.Error("failed to roll back load", zap.Error(err))
	}

	res := &Result{
		RunID:        run.ID,
		RowsRead:     read.Load(),
		RowsInserted: inserted.Load(),
		RowsSkipped:  skipped.Load(),
		Duration:     time.Since(start),
	}

	if runErr != nil {
		res.RowsInserted = 0
		if err := st.FailIngest(context.WithoutCancel(ctx), run.ID, res.Counts(), runErr.Error()); err != nil {
			log.Error("failed to record failed ingest run", zap.Error(err))
		}
		log.Error("ingest failed", zap.Error(runErr), zap.Int64("rows_read", res.RowsRead))
		return res, runErr
	}

	if err := st.CompleteIngest(ctx, run.ID, res.Counts()); err != nil {
		return res, eris.Wrap(err, "ingest: complete run")
	}

	log.Info("ingest complete",
		zap.Int64("rows_read", res.RowsRead),
		zap.Int64("rows_inserted", res.RowsInserted),
		zap.Int64("rows_skipped", res.RowsSkipped),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}
