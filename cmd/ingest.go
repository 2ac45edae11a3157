package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/plates-cli/internal/config"
	"github.com/sells-group/plates-cli/internal/fetcher"
	"github.com/sells-group/plates-cli/internal/ingest"
	"github.com/sells-group/plates-cli/internal/store"
)

var (
	ingestInput       string
	ingestOutput      string
	ingestFormat      string
	ingestSkipInvalid bool
	ingestBatchSize   int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Convert a registry export into a plate database",
	Long: `Reads a delimited (or .xlsx, or zipped) vehicle registry export, splits every
plate number into its three segments and stores the records in an indexed database.

With the sqlite driver the records are loaded into memory first and the finished
database is written to --output, replacing any existing file. Nothing is written
when the ingestion fails. With the postgres driver the records table is replaced
inside one transaction that is rolled back when the ingestion fails.`,
	Example: `  plates ingest --input rechev.csv --output plates.db
  plates ingest --input rechev.zip --skip-invalid`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Flags().Changed("skip-invalid") {
			cfg.Ingest.SkipInvalid = ingestSkipInvalid
		}
		if ingestBatchSize > 0 {
			cfg.Ingest.BatchSize = ingestBatchSize
		}
		if ingestOutput != "" {
			cfg.Store.Path = ingestOutput
		}
		return runIngest(cmd.Context(), cmd.OutOrStdout(), cfg, ingestInput, ingestFormat)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestInput, "input", "", "path to the registry export (required)")
	ingestCmd.Flags().StringVar(&ingestOutput, "output", "", "output sqlite database (default from config)")
	ingestCmd.Flags().StringVar(&ingestFormat, "format", "", "input format: csv, xlsx or zip (default from extension)")
	ingestCmd.Flags().BoolVar(&ingestSkipInvalid, "skip-invalid", false, "log and skip invalid records instead of aborting")
	ingestCmd.Flags().IntVar(&ingestBatchSize, "batch-size", 0, "records per insert batch (default from config)")
	_ = ingestCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(ctx context.Context, out io.Writer, c *config.Config, input, format string) error {
	if err := c.Validate("ingest"); err != nil {
		return err
	}

	f, err := fetcher.ParseFormat(format, input)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	src, err := fetcher.OpenSource(ctx, input, f, fetcher.SourceOptions{
		CSV: fetcher.CSVOptions{
			Delimiter:  c.Ingest.DelimiterRune(),
			Quote:      c.Ingest.QuoteRune(),
			LazyQuotes: c.Ingest.LazyQuotes,
			Encoding:   c.Ingest.Encoding,
			TrimSpace:  true,
		},
		XLSX: fetcher.XLSXOptions{
			Sheet:     c.Ingest.Sheet,
			TrimSpace: true,
		},
	})
	if err != nil {
		return err
	}
	defer src.Close()

	opts := ingest.Options{
		Source:      input,
		PlateField:  c.Ingest.PlateField,
		YearField:   c.Ingest.YearField,
		Quote:       c.Ingest.QuoteRune(),
		SkipInvalid: c.Ingest.SkipInvalid,
		BatchSize:   c.Ingest.BatchSize,
	}

	var res *ingest.Result
	if c.Store.Driver == "sqlite" {
		res, err = ingestToSQLite(ctx, c.Store.Path, src, opts)
	} else {
		res, err = ingestToStore(ctx, c, src, opts)
	}
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "Parsed %d records in %.2f seconds.\n", res.RowsInserted, res.Duration.Seconds())
	if res.RowsSkipped > 0 {
		_, _ = fmt.Fprintf(out, "Skipped %d invalid records.\n", res.RowsSkipped)
	}
	return nil
}

// ingestToSQLite builds the database in memory and writes it to path only
// after every record has been stored.
func ingestToSQLite(ctx context.Context, path string, src *fetcher.Source, opts ingest.Options) (*ingest.Result, error) {
	mem, err := store.NewSQLite(store.MemoryDSN)
	if err != nil {
		return nil, err
	}
	defer mem.Close() //nolint:errcheck

	if err := mem.Migrate(ctx); err != nil {
		return nil, err
	}

	res, err := ingest.Run(ctx, mem, src.Records, src.Errors, opts)
	if err != nil {
		return nil, err
	}

	if err := mem.Persist(ctx, path); err != nil {
		return nil, err
	}
	zap.L().Info("wrote plate database", zap.String("path", path), zap.Int64("records", res.RowsInserted))
	return res, nil
}

func ingestToStore(ctx context.Context, c *config.Config, src *fetcher.Source, opts ingest.Options) (*ingest.Result, error) {
	st, err := initStore(ctx, c)
	if err != nil {
		return nil, err
	}
	defer st.Close() //nolint:errcheck

	return ingest.Run(ctx, st, src.Records, src.Errors, opts)
}
