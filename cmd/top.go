package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/plates-cli/internal/config"
	"github.com/sells-group/plates-cli/internal/model"
	"github.com/sells-group/plates-cli/internal/rarity"
)

var (
	topN      int
	topRarest bool
)

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "List the most common (or rarest) plate numbers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runTop(cmd.Context(), cmd.OutOrStdout(), cfg, topN, topRarest)
	},
}

func init() {
	topCmd.Flags().IntVarP(&topN, "limit", "n", 10, "number of values to list")
	topCmd.Flags().BoolVar(&topRarest, "rarest", false, "list the rarest values first")
	rootCmd.AddCommand(topCmd)
}

func runTop(ctx context.Context, out io.Writer, c *config.Config, n int, rarest bool) error {
	if err := c.Validate("query"); err != nil {
		return err
	}

	st, err := openQueryStore(ctx, c)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	values, err := rarity.NewEstimator(st).Leaderboard(ctx, n, rarest)
	if err != nil {
		return err
	}
	formatTop(out, values)
	return nil
}

func formatTop(out io.Writer, values []model.SegmentCount) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tNUMBER\tPLATES")
	_, _ = fmt.Fprintln(w, "-\t------\t------")
	for i, v := range values {
		_, _ = fmt.Fprintf(w, "%d\t%d\t%d\n", i+1, v.Value, v.AppearanceCount)
	}
	_ = w.Flush()
}
