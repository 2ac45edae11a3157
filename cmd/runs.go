package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/plates-cli/internal/config"
	"github.com/sells-group/plates-cli/internal/model"
	"github.com/sells-group/plates-cli/internal/monitoring"
)

var (
	runsLimit    int
	runsStats    bool
	runsLookback int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List ingestion runs recorded in the database",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if runsStats {
			return runRunsStats(cmd.Context(), cmd.OutOrStdout(), cfg, runsLookback)
		}
		return runRuns(cmd.Context(), cmd.OutOrStdout(), cfg, runsLimit)
	},
}

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs to show")
	runsCmd.Flags().BoolVar(&runsStats, "stats", false, "show aggregate statistics instead of a list")
	runsCmd.Flags().IntVar(&runsLookback, "lookback", 0, "with --stats, only count runs started in the last N hours (0 = all)")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(ctx context.Context, out io.Writer, c *config.Config, limit int) error {
	if err := c.Validate("query"); err != nil {
		return err
	}

	st, err := openQueryStore(ctx, c)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	runs, err := st.ListIngestRuns(ctx, limit)
	if err != nil {
		return eris.Wrap(err, "runs list")
	}

	if len(runs) == 0 {
		fmt.Fprintln(os.Stderr, "No runs found.")
		return nil
	}

	formatRunsList(out, runs)
	return nil
}

func runRunsStats(ctx context.Context, out io.Writer, c *config.Config, lookbackHours int) error {
	if err := c.Validate("query"); err != nil {
		return err
	}

	st, err := openQueryStore(ctx, c)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	snap, err := monitoring.NewCollector(st).Collect(ctx, lookbackHours)
	if err != nil {
		return err
	}
	formatRunsStats(out, snap)
	return nil
}

func formatRunsStats(out io.Writer, s *monitoring.Snapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	window := "all time"
	if s.LookbackHours > 0 {
		window = fmt.Sprintf("last %dh", s.LookbackHours)
	}
	_, _ = fmt.Fprintf(w, "Window:\t%s\n", window)
	_, _ = fmt.Fprintf(w, "Runs:\t%d (complete %d, failed %d, running %d)\n", s.Total, s.Complete, s.Failed, s.Running)
	_, _ = fmt.Fprintf(w, "Fail rate:\t%.1f%%\n", s.FailRate*100)
	_, _ = fmt.Fprintf(w, "Rows:\t%d read, %d inserted, %d skipped\n", s.RowsRead, s.RowsInserted, s.RowsSkipped)
	if s.LastSuccess != nil {
		_, _ = fmt.Fprintf(w, "Last success:\t%s\n", s.LastSuccess.Format("2006-01-02 15:04"))
	}
	if s.LastFailure != "" {
		_, _ = fmt.Fprintf(w, "Last failure:\t%s\n", s.LastFailure)
	}
	_ = w.Flush()
}

func formatRunsList(out io.Writer, runs []model.IngestRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSOURCE\tSTATUS\tREAD\tINSERTED\tSKIPPED\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t----\t--------\t-------\t-------\t--------")

	for _, r := range runs {
		dur := "-"
		if r.CompletedAt != nil {
			dur = r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}

		source := r.Source
		if len(source) > 30 {
			source = "..." + source[len(source)-27:]
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			truncateID(r.ID),
			source,
			r.Status,
			r.RowsRead,
			r.RowsInserted,
			r.RowsSkipped,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
		)
		if r.Error != "" {
			_, _ = fmt.Fprintf(w, "\t  error: %s\n", r.Error)
		}
	}
	_ = w.Flush()
}

// truncateID shortens a UUID to its first 8 characters for display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
